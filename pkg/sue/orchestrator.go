// Package sue owns the lifecycle of the system under experiment: image
// build, startup, readiness and teardown against the container runtime.
package sue

import (
	"context"
	"time"

	"github.com/faultline/faultline-go/pkg/cerrors"
	"github.com/faultline/faultline-go/pkg/log"
	"github.com/faultline/faultline-go/pkg/runtime"
	"github.com/faultline/faultline-go/pkg/types"
)

// DefaultHealthPollInterval is the fixed interval between health polls
const DefaultHealthPollInterval = 2 * time.Second

// Orchestrator builds, starts, health checks and tears down the sue.
// Retry logic does not live here, the readiness timeout is a hard
// external ceiling.
type Orchestrator struct {
	rt       runtime.Runtime
	spec     types.SUESpec
	interval time.Duration
	readyAt  time.Time
	stopped  bool
}

// NewOrchestrator returns an orchestrator for the given sue
func NewOrchestrator(rt runtime.Runtime, spec types.SUESpec) *Orchestrator {
	return &Orchestrator{
		rt:       rt,
		spec:     spec,
		interval: DefaultHealthPollInterval,
	}
}

// WithPollInterval overrides the health poll interval
func (o *Orchestrator) WithPollInterval(interval time.Duration) *Orchestrator {
	o.interval = interval
	return o
}

// Build triggers image construction, idempotent if images exist already
func (o *Orchestrator) Build(ctx context.Context) error {
	log.Infof("[Build]: Building the sue from %v", o.spec.ComposeFile)
	return o.rt.Build(ctx, o.spec.ComposeFile, o.spec.Services)
}

// Start brings up all declared services in detached mode
func (o *Orchestrator) Start(ctx context.Context) error {
	log.Infof("[Start]: Starting %d sue services", len(o.spec.Services))
	return o.rt.Up(ctx, o.spec.ComposeFile, o.spec.Services)
}

// WaitReady polls the health status of every service at a fixed interval
// until all are healthy or the timeout elapses. On success it records the
// wall clock instant at which all checks passed, the scheduler's t0.
func (o *Orchestrator) WaitReady(ctx context.Context, timeout time.Duration) (time.Time, error) {
	log.Infof("[Status]: Waiting up to %v for the sue to become healthy", timeout)
	deadline := time.Now().Add(timeout)
	for {
		healthy, unhealthyService := o.allHealthy(ctx)
		if healthy {
			o.readyAt = time.Now().UTC()
			log.Infof("[Status]: All sue services are healthy")
			return o.readyAt, nil
		}
		if time.Now().After(deadline) {
			return time.Time{}, cerrors.BuildTimeout{
				Timeout: timeout.String(),
				Reason:  "service " + unhealthyService + " never became healthy",
			}
		}
		time.Sleep(o.interval)
	}
}

// allHealthy polls every service once, returning the first unhealthy one
func (o *Orchestrator) allHealthy(ctx context.Context) (bool, string) {
	for _, service := range o.spec.Services {
		healthy, err := o.rt.IsHealthy(ctx, o.spec.ComposeFile, service)
		if err != nil {
			log.Debugf("health poll for %v failed: %v", service, err)
			return false, service
		}
		if !healthy {
			return false, service
		}
	}
	return true, ""
}

// ReadyAt returns the instant all health checks passed
func (o *Orchestrator) ReadyAt() time.Time {
	return o.readyAt
}

// Stop tears down all containers of the sue. It is best-effort and
// idempotent, errors are logged but never propagated so that teardown
// can run on every exit path of a repetition.
func (o *Orchestrator) Stop(ctx context.Context) {
	if o.stopped {
		return
	}
	o.stopped = true
	log.Info("[Teardown]: Tearing down the sue")
	if err := o.rt.Down(ctx, o.spec.ComposeFile); err != nil {
		log.Errorf("unable to tear down the sue, err: %v", err)
	}
}
