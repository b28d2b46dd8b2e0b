package treatment

import (
	"context"

	"github.com/faultline/faultline-go/pkg/log"
	"github.com/faultline/faultline-go/pkg/types"
)

// emptyTreatment observes without perturbing, useful for pure
// observation windows and as a control treatment
type emptyTreatment struct {
	base
}

func newEmptyTreatment(spec types.TreatmentSpec, deps Deps) (Treatment, error) {
	return &emptyTreatment{base: newBase(spec, deps)}, nil
}

func (e *emptyTreatment) Inject(ctx context.Context) error {
	e.attempted = true
	return nil
}

func (e *emptyTreatment) Recover(ctx context.Context) error {
	e.attempted = false
	return nil
}

// pauseTreatment freezes every process of the target container for the
// treatment window
type pauseTreatment struct {
	base
}

func newPauseTreatment(spec types.TreatmentSpec, deps Deps) (Treatment, error) {
	if err := requireTarget(spec, deps); err != nil {
		return nil, err
	}
	return &pauseTreatment{base: newBase(spec, deps)}, nil
}

func (p *pauseTreatment) Inject(ctx context.Context) error {
	p.attempted = true
	if err := p.deps.Runtime.Pause(ctx, p.deps.ComposeFile, p.target); err != nil {
		return p.injectError(err.Error())
	}
	log.Infof("[Inject]: Paused service %v", p.target)
	return nil
}

func (p *pauseTreatment) Recover(ctx context.Context) error {
	if !p.attempted {
		return nil
	}
	if err := p.deps.Runtime.Unpause(ctx, p.deps.ComposeFile, p.target); err != nil {
		return p.recoverError(err.Error())
	}
	p.attempted = false
	log.Infof("[Recover]: Unpaused service %v", p.target)
	return nil
}

// killTreatment sends a signal to the target container and restarts it
// on recovery
type killTreatment struct {
	base
	signal string
}

func newKillTreatment(spec types.TreatmentSpec, deps Deps) (Treatment, error) {
	if err := requireTarget(spec, deps); err != nil {
		return nil, err
	}
	return &killTreatment{
		base:   newBase(spec, deps),
		signal: optionalParam(spec, "signal", "SIGKILL"),
	}, nil
}

func (k *killTreatment) Inject(ctx context.Context) error {
	k.attempted = true
	if err := k.deps.Runtime.Kill(ctx, k.deps.ComposeFile, k.target, k.signal); err != nil {
		return k.injectError(err.Error())
	}
	log.Infof("[Inject]: Killed service %v with %v", k.target, k.signal)
	return nil
}

func (k *killTreatment) Recover(ctx context.Context) error {
	if !k.attempted {
		return nil
	}
	if err := k.deps.Runtime.Restart(ctx, k.deps.ComposeFile, k.target); err != nil {
		return k.recoverError(err.Error())
	}
	k.attempted = false
	log.Infof("[Recover]: Restarted service %v", k.target)
	return nil
}
