package runtime

import (
	"context"
	"strings"
	"sync"
)

// FakeCall records one capability invocation against a FakeRuntime
type FakeCall struct {
	Op      string
	Service string
	Command []string
}

// FakeRuntime is an in-memory Runtime used by the engine's tests. It
// records every call and can be scripted to fail or to become healthy
// only after a number of polls.
type FakeRuntime struct {
	mu sync.Mutex

	// HealthyAfter is the number of IsHealthy polls per service before
	// the service reports healthy. Zero means healthy immediately.
	HealthyAfter int
	// ExecHandler, when set, decides the result of Exec calls
	ExecHandler func(service string, command []string) (ExecResult, error)

	BuildErr   error
	UpErr      error
	HealthErr  error
	StatsValue Stats
	StatsErr   error

	calls       []FakeCall
	healthPolls map[string]int
	downCount   int
}

var _ Runtime = (*FakeRuntime)(nil)

func (f *FakeRuntime) record(op, service string, command []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, FakeCall{Op: op, Service: service, Command: command})
}

// Calls returns a copy of all recorded invocations
func (f *FakeRuntime) Calls() []FakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FakeCall{}, f.calls...)
}

// CallsFor returns the recorded invocations of one operation
func (f *FakeRuntime) CallsFor(op string) []FakeCall {
	var filtered []FakeCall
	for _, call := range f.Calls() {
		if call.Op == op {
			filtered = append(filtered, call)
		}
	}
	return filtered
}

// CommandLog renders all exec commands as joined strings, oldest first
func (f *FakeRuntime) CommandLog() []string {
	var rendered []string
	for _, call := range f.Calls() {
		if call.Op == "exec" || call.Op == "exec-detached" {
			rendered = append(rendered, call.Service+": "+strings.Join(call.Command, " "))
		}
	}
	return rendered
}

// DownCount returns how many times the sue was torn down
func (f *FakeRuntime) DownCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.downCount
}

func (f *FakeRuntime) Build(ctx context.Context, composeFile string, services []string) error {
	f.record("build", "", services)
	return f.BuildErr
}

func (f *FakeRuntime) Up(ctx context.Context, composeFile string, services []string) error {
	f.record("up", "", services)
	return f.UpErr
}

func (f *FakeRuntime) Down(ctx context.Context, composeFile string) error {
	f.record("down", "", nil)
	f.mu.Lock()
	f.downCount++
	f.mu.Unlock()
	return nil
}

func (f *FakeRuntime) IsHealthy(ctx context.Context, composeFile, service string) (bool, error) {
	f.record("health", service, nil)
	if f.HealthErr != nil {
		return false, f.HealthErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.healthPolls == nil {
		f.healthPolls = map[string]int{}
	}
	f.healthPolls[service]++
	return f.healthPolls[service] > f.HealthyAfter, nil
}

func (f *FakeRuntime) Exec(ctx context.Context, composeFile, service string, command []string) (ExecResult, error) {
	f.record("exec", service, command)
	if f.ExecHandler != nil {
		return f.ExecHandler(service, command)
	}
	return ExecResult{}, nil
}

func (f *FakeRuntime) ExecDetached(ctx context.Context, composeFile, service string, command []string) error {
	f.record("exec-detached", service, command)
	if f.ExecHandler != nil {
		_, err := f.ExecHandler(service, command)
		return err
	}
	return nil
}

func (f *FakeRuntime) Pause(ctx context.Context, composeFile, service string) error {
	f.record("pause", service, nil)
	return nil
}

func (f *FakeRuntime) Unpause(ctx context.Context, composeFile, service string) error {
	f.record("unpause", service, nil)
	return nil
}

func (f *FakeRuntime) Kill(ctx context.Context, composeFile, service, signal string) error {
	f.record("kill", service, []string{signal})
	return nil
}

func (f *FakeRuntime) Restart(ctx context.Context, composeFile, service string) error {
	f.record("restart", service, nil)
	return nil
}

func (f *FakeRuntime) SampleStats(ctx context.Context, composeFile, service string) (Stats, error) {
	f.record("stats", service, nil)
	return f.StatsValue, f.StatsErr
}
