package metrics

import (
	"sync"
	"sync/atomic"
)

// AsyncObserver hands events to a background recorder so a slow sink never
// delays a call. When the queue is full the event is counted and dropped.
type AsyncObserver struct {
	sink  Observer
	queue chan MetricsEvent
	done  chan struct{}

	// mu guards closed against sends racing Close.
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

func NewAsyncObserver(sink Observer, buffer int) *AsyncObserver {
	if buffer <= 0 {
		buffer = 256
	}
	a := &AsyncObserver{
		sink:  sink,
		queue: make(chan MetricsEvent, buffer),
		done:  make(chan struct{}),
	}
	go a.drain()
	return a
}

func (a *AsyncObserver) RecordEvent(ev MetricsEvent) {
	if a == nil {
		return
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.queue <- ev:
	default:
		a.dropped.Add(1)
	}
}

// Dropped reports events lost to a full queue.
func (a *AsyncObserver) Dropped() int64 { return a.dropped.Load() }

// Close stops intake and blocks until queued events reach the sink. Safe to
// call more than once.
func (a *AsyncObserver) Close() {
	if a == nil {
		return
	}
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	<-a.done
}

func (a *AsyncObserver) drain() {
	defer close(a.done)
	for ev := range a.queue {
		a.sink.RecordEvent(ev)
	}
}
