package treatment

import (
	"context"
	"strconv"

	"github.com/faultline/faultline-go/pkg/log"
	"github.com/faultline/faultline-go/pkg/types"
)

// stressTreatment loads a resource inside the target container with
// stress-ng. The stressor runs detached until Recover kills it, so the
// scheduler controls the fault window, not the stress tool.
type stressTreatment struct {
	base
	stressArgs []string
}

func (s *stressTreatment) Inject(ctx context.Context) error {
	s.attempted = true
	command := append([]string{"stress-ng"}, s.stressArgs...)
	if err := s.deps.Runtime.ExecDetached(ctx, s.deps.ComposeFile, s.target, command); err != nil {
		return s.injectError(err.Error())
	}
	log.Infof("[Inject]: Started stress-ng %v inside %v", s.stressArgs, s.target)
	return nil
}

func (s *stressTreatment) Recover(ctx context.Context) error {
	if !s.attempted {
		return nil
	}
	result, err := s.deps.Runtime.Exec(ctx, s.deps.ComposeFile, s.target, []string{"pkill", "-f", "stress-ng"})
	if err != nil {
		return s.recoverError(err.Error())
	}
	// pkill exits 1 when no process matched, which is the baseline
	if result.ExitCode > 1 {
		return s.recoverError("pkill exited with code " + strconv.Itoa(result.ExitCode) + ": " + result.Stderr)
	}
	s.attempted = false
	log.Infof("[Recover]: Stopped stress-ng inside %v", s.target)
	return nil
}

func newStressTreatment(spec types.TreatmentSpec, deps Deps, stressArgs []string) Treatment {
	return &stressTreatment{base: newBase(spec, deps), stressArgs: stressArgs}
}

// newStressCPUTreatment burns cpu cycles inside the target
func newStressCPUTreatment(spec types.TreatmentSpec, deps Deps) (Treatment, error) {
	if err := requireTarget(spec, deps); err != nil {
		return nil, err
	}
	workers, err := optionalIntParam(spec, "workers", 1)
	if err != nil {
		return nil, err
	}
	args := []string{"--cpu", strconv.Itoa(workers)}
	if _, exists := spec.Params["load"]; exists {
		percentage, err := requirePercentageParam(spec, "load")
		if err != nil {
			return nil, err
		}
		args = append(args, "--cpu-load", strconv.FormatFloat(percentageValue(percentage), 'f', -1, 64))
	}
	return newStressTreatment(spec, deps, args), nil
}

// newStressMemoryTreatment allocates and touches memory inside the target
func newStressMemoryTreatment(spec types.TreatmentSpec, deps Deps) (Treatment, error) {
	if err := requireTarget(spec, deps); err != nil {
		return nil, err
	}
	workers, err := optionalIntParam(spec, "workers", 1)
	if err != nil {
		return nil, err
	}
	args := []string{
		"--vm", strconv.Itoa(workers),
		"--vm-bytes", optionalParam(spec, "bytes", "256M"),
	}
	return newStressTreatment(spec, deps, args), nil
}

// newStressIOTreatment saturates io inside the target
func newStressIOTreatment(spec types.TreatmentSpec, deps Deps) (Treatment, error) {
	if err := requireTarget(spec, deps); err != nil {
		return nil, err
	}
	workers, err := optionalIntParam(spec, "workers", 1)
	if err != nil {
		return nil, err
	}
	return newStressTreatment(spec, deps, []string{"--io", strconv.Itoa(workers)}), nil
}
