// Package runtime is the container runtime boundary of the engine. The
// engine only ever talks to the Runtime interface; the compose driver
// in this package drives an existing docker installation and owns all
// mechanism-level detail of how faults reach a container.
package runtime

import (
	"context"
)

// ExecResult carries the outcome of a command executed inside a container
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Stats is a one-shot resource usage reading of a container
type Stats struct {
	CPUPercent  float64
	MemoryBytes uint64
	NetRxBytes  uint64
	NetTxBytes  uint64
}

// Runtime is the capability contract against the container runtime that
// hosts the system under experiment
type Runtime interface {
	// Build builds the images of the sue, idempotent if already built
	Build(ctx context.Context, composeFile string, services []string) error
	// Up starts the declared services in detached mode
	Up(ctx context.Context, composeFile string, services []string) error
	// Down tears down all containers of the sue
	Down(ctx context.Context, composeFile string) error
	// IsHealthy reports whether the named service passes its health check.
	// Services without a declared healthcheck count as healthy once running.
	IsHealthy(ctx context.Context, composeFile, service string) (bool, error)
	// Exec runs a command inside the named service container
	Exec(ctx context.Context, composeFile, service string, command []string) (ExecResult, error)
	// ExecDetached runs a command inside the named service container
	// without waiting for it to finish
	ExecDetached(ctx context.Context, composeFile, service string, command []string) error
	// Pause freezes all processes of the named service container
	Pause(ctx context.Context, composeFile, service string) error
	// Unpause resumes a paused service container
	Unpause(ctx context.Context, composeFile, service string) error
	// Kill sends the given signal to the named service container
	Kill(ctx context.Context, composeFile, service, signal string) error
	// Restart restarts the named service container
	Restart(ctx context.Context, composeFile, service string) error
	// SampleStats returns a one-shot resource usage reading of the service
	SampleStats(ctx context.Context, composeFile, service string) (Stats, error)
}
