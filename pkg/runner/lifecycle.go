package runner

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrAlreadyStarted = errors.New("runner already started")
	ErrDrainTimeout   = errors.New("drain timeout")
)

// LifecycleRunner blocks until its context ends or Stop is called, then
// gives the drainer at most timeout to finish.
type LifecycleRunner struct {
	state   atomic.Int32
	quit    chan struct{}
	quitOne sync.Once
	stopOne sync.Once
	stopErr error

	hooks   Hooks
	drainer Drainer
	timeout time.Duration

	Title  string
	Banner io.Writer
}

func NewLifecycleRunner(drainer Drainer, hooks Hooks, timeout time.Duration) *LifecycleRunner {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	r := &LifecycleRunner{
		quit:    make(chan struct{}),
		hooks:   hooks,
		drainer: drainer,
		timeout: timeout,
		Title:   "CALLENGINE",
	}
	r.state.Store(int32(StateNew))
	return r
}

func (r *LifecycleRunner) Run(ctx context.Context) error {
	if !r.state.CompareAndSwap(int32(StateNew), int32(StateStarting)) {
		return ErrAlreadyStarted
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if r.Banner != nil {
		PrintBanner(r.Banner, r.Title, false)
	}
	if r.hooks.OnStart != nil {
		if err := r.hooks.OnStart(); err != nil {
			r.state.Store(int32(StateStopped))
			return err
		}
	}
	r.state.Store(int32(StateRunning))
	select {
	case <-ctx.Done():
	case <-r.quit:
	}
	return r.stop()
}

// Stop ends a running Run, or drains directly when Run was never called.
func (r *LifecycleRunner) Stop() error {
	r.quitOne.Do(func() { close(r.quit) })
	return r.stop()
}

func (r *LifecycleRunner) State() State {
	return State(r.state.Load())
}

func (r *LifecycleRunner) stop() error {
	r.stopOne.Do(func() {
		r.state.Store(int32(StateDraining))
		r.stopErr = r.drain()
		if r.hooks.OnStop != nil {
			r.hooks.OnStop()
		}
		r.state.Store(int32(StateStopped))
	})
	return r.stopErr
}

func (r *LifecycleRunner) drain() error {
	if r.drainer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- r.drainer.Drain(ctx) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ErrDrainTimeout
	}
}
