// Package treatment holds the fault and instrumentation variants of the
// engine. Every variant implements the same contract: parameters are
// validated at construction, Inject applies the fault to its target and
// Recover undoes it. Recover is best-effort and must be a safe no-op on
// a target that was never injected or has already been recovered.
package treatment

import (
	"context"
	"fmt"
	"strings"

	"github.com/faultline/faultline-go/pkg/cerrors"
	"github.com/faultline/faultline-go/pkg/runtime"
	"github.com/faultline/faultline-go/pkg/types"
)

// Treatment is a single fault or instrumentation change with paired
// inject and recover operations. One instance exists per TreatmentSpec
// per repetition, no state survives across repetitions.
type Treatment interface {
	Name() string
	Action() string
	Target() string
	Inject(ctx context.Context) error
	Recover(ctx context.Context) error
}

// Deps carries the capabilities a treatment needs at runtime
type Deps struct {
	Runtime     runtime.Runtime
	ComposeFile string
	// Services are the effective sue service names, used to validate targets
	Services []string
}

// Factory validates a treatment spec and returns a fresh instance.
// Construction fails fast with a SpecValidation error on malformed
// parameters or unknown targets, before any repetition starts.
type Factory func(spec types.TreatmentSpec, deps Deps) (Treatment, error)

// base carries the bookkeeping shared by all builtin variants
type base struct {
	name   string
	action string
	target string
	deps   Deps

	// attempted flips when Inject starts so that Recover can clean up
	// even after a partially failed injection
	attempted bool
}

func (b *base) Name() string   { return b.name }
func (b *base) Action() string { return b.action }
func (b *base) Target() string { return b.target }

func newBase(spec types.TreatmentSpec, deps Deps) base {
	return base{
		name:   spec.Name,
		action: spec.Action,
		target: spec.Target,
		deps:   deps,
	}
}

func (b *base) injectError(reason string) error {
	return cerrors.TreatmentInject{Treatment: b.name, Target: b.target, Reason: reason}
}

func (b *base) recoverError(reason string) error {
	return cerrors.TreatmentRecover{Treatment: b.name, Target: b.target, Reason: reason}
}

func validationError(spec types.TreatmentSpec, reason string) error {
	return cerrors.SpecValidation{Field: "treatments/" + spec.Name, Reason: reason}
}

// requireTarget checks the target against the effective sue services
func requireTarget(spec types.TreatmentSpec, deps Deps) error {
	if spec.Target == "" {
		return validationError(spec, "a target service is required")
	}
	if len(deps.Services) > 0 && !containsService(deps.Services, spec.Target) {
		return validationError(spec, "target '"+spec.Target+"' is not part of the sue")
	}
	return nil
}

func containsService(services []string, name string) bool {
	for _, service := range services {
		if service == name {
			return true
		}
	}
	return false
}

// execInTarget runs a command inside the treatment's target container
// and fails on non-zero exit codes
func (b *base) execInTarget(ctx context.Context, command []string) (runtime.ExecResult, error) {
	result, err := b.deps.Runtime.Exec(ctx, b.deps.ComposeFile, b.target, command)
	if err != nil {
		return result, err
	}
	if result.ExitCode != 0 {
		return result, cerrors.Generic{
			Reason: fmt.Sprintf("command exited with code %d: %s", result.ExitCode, strings.TrimSpace(result.Stderr)),
		}
	}
	return result, nil
}
