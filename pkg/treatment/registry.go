package treatment

import (
	"sort"

	"github.com/faultline/faultline-go/pkg/cerrors"
	"github.com/faultline/faultline-go/pkg/types"
)

// Registry resolves treatment action names to factories. It follows an
// explicit init-once lifecycle: populated from the builtins plus any
// extension entries before the first repetition, then frozen and
// read-only for the remainder of the invocation.
type Registry struct {
	factories map[string]Factory
	frozen    bool
}

// NewRegistry returns a registry pre-populated with the builtin variants
func NewRegistry() *Registry {
	registry := &Registry{factories: map[string]Factory{}}
	registerBuiltins(registry)
	return registry
}

// Register adds a factory under an action name. Registration fails on
// duplicate names and after the registry has been frozen.
func (r *Registry) Register(action string, factory Factory) error {
	if r.frozen {
		return cerrors.Generic{Phase: "Registry", Reason: "registry is frozen, treatments must be registered before the first repetition"}
	}
	if _, exists := r.factories[action]; exists {
		return cerrors.Generic{Phase: "Registry", Reason: "treatment action '" + action + "' is already registered"}
	}
	r.factories[action] = factory
	return nil
}

// RegisterAlias registers an extension action that reuses a builtin
// mechanism with pre-bound default parameters. Spec-supplied parameters
// win over the defaults.
func (r *Registry) RegisterAlias(action, builtin string, defaults map[string]string) error {
	factory, exists := r.factories[builtin]
	if !exists {
		return cerrors.Generic{Phase: "Registry", Reason: "unknown base action '" + builtin + "' for extension '" + action + "'"}
	}
	return r.Register(action, func(spec types.TreatmentSpec, deps Deps) (Treatment, error) {
		merged := map[string]string{}
		for key, value := range defaults {
			merged[key] = value
		}
		for key, value := range spec.Params {
			merged[key] = value
		}
		spec.Params = merged
		return factory(spec, deps)
	})
}

// Freeze makes the registry read-only
func (r *Registry) Freeze() {
	r.frozen = true
}

// Actions returns all registered action names, sorted
func (r *Registry) Actions() []string {
	var actions []string
	for action := range r.factories {
		actions = append(actions, action)
	}
	sort.Strings(actions)
	return actions
}

// Build validates the spec against its factory and returns a fresh
// treatment instance for one repetition
func (r *Registry) Build(spec types.TreatmentSpec, deps Deps) (Treatment, error) {
	factory, exists := r.factories[spec.Action]
	if !exists {
		return nil, cerrors.SpecValidation{
			Field:  "treatments/" + spec.Name,
			Reason: "unknown treatment action '" + spec.Action + "'",
		}
	}
	return factory(spec, deps)
}

// BuildAll builds fresh instances for every declared treatment, in
// declared order. Used both for the pre-flight validation pass and at
// the start of every repetition.
func (r *Registry) BuildAll(specs []types.TreatmentSpec, deps Deps) ([]Treatment, error) {
	treatments := make([]Treatment, 0, len(specs))
	for _, spec := range specs {
		built, err := r.Build(spec, deps)
		if err != nil {
			return nil, err
		}
		treatments = append(treatments, built)
	}
	return treatments, nil
}

func registerBuiltins(registry *Registry) {
	builtins := map[string]Factory{
		"empty":           newEmptyTreatment,
		"delay":           newDelayTreatment,
		"loss":            newLossTreatment,
		"corrupt":         newCorruptTreatment,
		"bandwidth":       newBandwidthTreatment,
		"partition":       newPartitionTreatment,
		"stress-cpu":      newStressCPUTreatment,
		"stress-memory":   newStressMemoryTreatment,
		"stress-io":       newStressIOTreatment,
		"pause":           newPauseTreatment,
		"kill":            newKillTreatment,
		"sampling":        newSamplingTreatment,
		"tail-sampling":   newTailSamplingTreatment,
		"scrape-interval": newScrapeIntervalTreatment,
		"suppress-export": newSuppressExportTreatment,
	}
	for action, factory := range builtins {
		// the registry is empty here, duplicates are impossible
		_ = registry.Register(action, factory)
	}
}
