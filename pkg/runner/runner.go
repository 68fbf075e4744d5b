// Package runner owns the process lifecycle: banner, start hooks and a
// bounded drain on shutdown.
package runner

import (
	"bytes"
	"context"
	"io"

	"github.com/dimiro1/banner"
)

type State int

const (
	StateNew State = iota
	StateStarting
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type Runner interface {
	Run(ctx context.Context) error
	Stop() error
	State() State
}

type Hooks struct {
	// OnStart runs before the runner reports running; an error aborts Run.
	OnStart func() error
	OnStop  func()
}

// Drainer finishes in-flight work before the deadline on ctx.
type Drainer interface {
	Drain(ctx context.Context) error
}

// DrainFunc adapts a function to Drainer.
type DrainFunc func(ctx context.Context) error

func (f DrainFunc) Drain(ctx context.Context) error { return f(ctx) }

const EngineVersion = "dev"

// PrintBanner writes the startup banner to w. Color is off for non-terminal
// writers such as log files.
func PrintBanner(w io.Writer, title string, color bool) {
	tpl := "{{ .Title \"" + title + "\" \"\" 0 }}\nVersion: " + EngineVersion + "\n"
	banner.Init(w, true, color, bytes.NewBufferString(tpl))
}
