// Package engine drives a full experiment invocation: pre-flight
// validation, one or more repetitions against a fresh sue each, and the
// final report. A repetition that aborts never takes the batch down
// with it, the remaining repetitions still run.
package engine

import (
	"context"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/faultline/faultline-go/pkg/accounting"
	"github.com/faultline/faultline-go/pkg/cerrors"
	"github.com/faultline/faultline-go/pkg/events"
	"github.com/faultline/faultline-go/pkg/log"
	"github.com/faultline/faultline-go/pkg/report"
	"github.com/faultline/faultline-go/pkg/runtime"
	"github.com/faultline/faultline-go/pkg/scheduler"
	"github.com/faultline/faultline-go/pkg/sue"
	"github.com/faultline/faultline-go/pkg/telemetry"
	"github.com/faultline/faultline-go/pkg/tracing"
	"github.com/faultline/faultline-go/pkg/treatment"
	"github.com/faultline/faultline-go/pkg/types"
	"github.com/faultline/faultline-go/pkg/utils/common"
)

// DefaultBuildTimeout bounds the wait for sue readiness per repetition
const DefaultBuildTimeout = 5 * time.Minute

// Options control one engine invocation
type Options struct {
	// Runs is the number of repetitions, at least one
	Runs int
	// Randomize permutes the treatment-to-timing-slot assignment per repetition
	Randomize bool
	// Seed fixes the permutation source, zero seeds from the clock
	Seed int64
	// Accounting enables resource usage sampling during repetitions
	Accounting bool
	// BuildTimeout is the readiness ceiling per repetition
	BuildTimeout time.Duration
	// ReportPath overrides the report destination of the experiment spec
	ReportPath string
	// HealthPollInterval overrides the sue readiness poll interval
	HealthPollInterval time.Duration
}

// Runner executes a validated experiment spec
type Runner struct {
	rt         runtime.Runtime
	experiment types.ExperimentSpec
	registry   *treatment.Registry
	collector  *telemetry.Collector
	options    Options
}

// NewRunner wires a runner. The registry must carry every action the
// experiment uses; it is frozen during pre-flight.
func NewRunner(rt runtime.Runtime, experiment types.ExperimentSpec, registry *treatment.Registry, collector *telemetry.Collector, options Options) *Runner {
	if options.Runs < 1 {
		options.Runs = 1
	}
	if options.BuildTimeout == 0 {
		options.BuildTimeout = DefaultBuildTimeout
	}
	if options.ReportPath != "" {
		experiment.Report.Path = options.ReportPath
	}
	return &Runner{
		rt:         rt,
		experiment: experiment,
		registry:   registry,
		collector:  collector,
		options:    options,
	}
}

// Run executes all repetitions and writes the report. The returned
// report is always complete, even when writing it failed.
func (r *Runner) Run(ctx context.Context) (types.Report, error) {
	ctx, span := tracing.StartSpan(ctx, "RunExperiment")
	defer span.End()

	log.InfoWithValues("[Info]: The experiment information is as follows", logrus.Fields{
		"Experiment":   r.experiment.Name,
		"Compose File": r.experiment.SUE.ComposeFile,
		"Services":     len(r.experiment.SUE.Services),
		"Treatments":   len(r.experiment.Treatments),
		"Repetitions":  r.options.Runs,
		"Randomized":   r.options.Randomize,
	})

	assembler := report.NewAssembler(r.experiment)
	if err := r.preflight(); err != nil {
		return assembler.Report(), err
	}

	seed := r.options.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	for repetition := 0; repetition < r.options.Runs; repetition++ {
		log.Infof("[Run]: Starting repetition %d/%d of experiment %v", repetition+1, r.options.Runs, r.experiment.Name)
		result := r.runOnce(ctx, repetition, rng)
		assembler.Append(result)
	}

	if err := assembler.Write(); err != nil {
		return assembler.Report(), err
	}
	return assembler.Report(), nil
}

// preflight builds every declared treatment once to fail on malformed
// specs before any container is touched, then freezes the registry
func (r *Runner) preflight() error {
	deps := r.deps()
	if _, err := r.registry.BuildAll(r.experiment.Treatments, deps); err != nil {
		return err
	}
	r.registry.Freeze()
	log.Infof("[PreFlight]: Validated %d treatments and %d response variables", len(r.experiment.Treatments), len(r.experiment.Responses))
	return nil
}

func (r *Runner) deps() treatment.Deps {
	return treatment.Deps{
		Runtime:     r.rt,
		ComposeFile: r.experiment.SUE.ComposeFile,
		Services:    r.experiment.SUE.Services,
	}
}

// runOnce executes one repetition against a fresh sue. Teardown runs on
// every exit path, and every failure is sealed into the result instead
// of aborting the invocation.
func (r *Runner) runOnce(ctx context.Context, repetition int, rng *rand.Rand) types.RunResult {
	ctx, span := tracing.StartSpan(ctx, "RunRepetition")
	defer span.End()

	recorder := &events.Recorder{}
	result := types.RunResult{
		Repetition: repetition,
		RunID:      common.GetRunID(),
		StartedAt:  time.Now().UTC(),
	}
	seal := func() types.RunResult {
		result.EndedAt = time.Now().UTC()
		result.Events = recorder.Events()
		return result
	}
	abort := func(err error) types.RunResult {
		reason, _ := cerrors.GetRootCauseAndErrorCode(err)
		recorder.Record(events.ReasonRunAborted, "repetition %d: %v", repetition, reason)
		result.Status = types.RunFailed
		result.Error = reason
		return seal()
	}

	// fresh instances per repetition, treatments never share state
	built, err := r.registry.BuildAll(r.experiment.Treatments, r.deps())
	if err != nil {
		return abort(err)
	}
	entries := make([]scheduler.Entry, len(built))
	for i, instance := range built {
		entries[i] = scheduler.Entry{Spec: r.experiment.Treatments[i], Treatment: instance}
	}
	if r.options.Randomize {
		entries = scheduler.Shuffle(entries, rng)
	}

	orchestrator := sue.NewOrchestrator(r.rt, r.experiment.SUE)
	if r.options.HealthPollInterval > 0 {
		orchestrator.WithPollInterval(r.options.HealthPollInterval)
	}
	defer func() {
		orchestrator.Stop(ctx)
		recorder.Record(events.ReasonTeardown, "sue torn down for repetition %d", repetition)
	}()

	recorder.Record(events.ReasonBuildStarted, "building the sue from %v", r.experiment.SUE.ComposeFile)
	if err := orchestrator.Build(ctx); err != nil {
		return abort(err)
	}
	if err := orchestrator.Start(ctx); err != nil {
		return abort(err)
	}
	t0, err := orchestrator.WaitReady(ctx, r.options.BuildTimeout)
	if err != nil {
		return abort(err)
	}
	result.SUEReadyAt = t0
	recorder.Record(events.ReasonSUEReady, "all %d services healthy", len(r.experiment.SUE.Services))

	var accountant *accounting.Accountant
	if r.options.Accounting {
		accountant = accounting.NewAccountant(r.rt, r.experiment.SUE.ComposeFile, r.experiment.SUE.Services)
		accountant.Start(ctx)
	}

	drainCtx, drainSpan := tracing.StartSpan(ctx, "DrainTreatments")
	result.Treatments = scheduler.New(entries, recorder).Run(drainCtx, t0)
	drainSpan.End()
	drainedAt := time.Now().UTC()

	// telemetry is captured after the drain and before teardown, while
	// the stores inside the sue are still reachable
	if r.collector != nil && len(r.experiment.Responses) > 0 {
		collectCtx, collectSpan := tracing.StartSpan(ctx, "CollectResponses")
		result.Responses = r.collector.Collect(collectCtx, r.experiment.Responses, t0, drainedAt)
		collectSpan.End()
		recorder.Record(events.ReasonTelemetry, "captured %d response variables", len(result.Responses))
	}

	if accountant != nil {
		result.Accounting = accountant.Stop()
	}

	result.Status = types.RunCompleted
	return seal()
}
