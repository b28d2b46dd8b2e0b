// Package spec loads and validates experiment specifications. A spec is
// declared in YAML with human-readable durations; the loader resolves it
// into the typed, immutable form the engine consumes, including the
// effective service set of the sue.
package spec

import (
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/faultline/faultline-go/pkg/cerrors"
	"github.com/faultline/faultline-go/pkg/types"
	"github.com/faultline/faultline-go/pkg/utils/common"
)

// rawExperiment mirrors the YAML document before durations are parsed
type rawExperiment struct {
	Name       string         `yaml:"name"`
	SUE        types.SUESpec  `yaml:"sue"`
	Treatments []rawTreatment `yaml:"treatments"`
	Responses  []rawResponse  `yaml:"responses"`
	Report     rawReport      `yaml:"report"`
}

type rawTreatment struct {
	Name     string            `yaml:"name"`
	Action   string            `yaml:"action"`
	Target   string            `yaml:"target"`
	Params   map[string]string `yaml:"params"`
	Start    string            `yaml:"start"`
	Duration string            `yaml:"duration"`
}

type rawResponse struct {
	Name      string `yaml:"name"`
	Backend   string `yaml:"backend"`
	Query     string `yaml:"query"`
	Lookback  string `yaml:"lookback"`
	Lookahead string `yaml:"lookahead"`
}

type rawReport struct {
	Path string `yaml:"path"`
}

// Load reads, parses and validates an experiment specification file and
// resolves the effective sue service set from its compose file.
func Load(path string) (types.ExperimentSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return types.ExperimentSpec{}, cerrors.SpecValidation{Field: path, Reason: err.Error()}
	}
	experiment, err := Parse(raw)
	if err != nil {
		return types.ExperimentSpec{}, err
	}
	services, err := ResolveServices(experiment.SUE)
	if err != nil {
		return types.ExperimentSpec{}, err
	}
	experiment.SUE.Services = services
	return experiment, nil
}

// Parse decodes and validates a specification document. The sue service
// set is not resolved here, callers that have a compose file on disk
// should prefer Load.
func Parse(document []byte) (types.ExperimentSpec, error) {
	var raw rawExperiment
	if err := yaml.UnmarshalStrict(document, &raw); err != nil {
		return types.ExperimentSpec{}, cerrors.SpecValidation{Field: "experiment", Reason: err.Error()}
	}

	if raw.Name == "" {
		return types.ExperimentSpec{}, cerrors.SpecValidation{Field: "name", Reason: "an experiment name is required"}
	}
	if raw.SUE.ComposeFile == "" {
		return types.ExperimentSpec{}, cerrors.SpecValidation{Field: "sue/compose", Reason: "a compose file is required"}
	}

	experiment := types.ExperimentSpec{
		Name:   raw.Name,
		SUE:    raw.SUE,
		Report: types.ReportOptions{Path: raw.Report.Path},
	}

	seenTreatments := map[string]bool{}
	for _, treatment := range raw.Treatments {
		if treatment.Name == "" {
			return types.ExperimentSpec{}, cerrors.SpecValidation{Field: "treatments", Reason: "every treatment needs a name"}
		}
		if seenTreatments[treatment.Name] {
			return types.ExperimentSpec{}, cerrors.SpecValidation{Field: "treatments/" + treatment.Name, Reason: "duplicate treatment name"}
		}
		seenTreatments[treatment.Name] = true
		if treatment.Action == "" {
			return types.ExperimentSpec{}, cerrors.SpecValidation{Field: "treatments/" + treatment.Name, Reason: "an action is required"}
		}
		start, err := parseOptionalDuration(treatment.Start)
		if err != nil {
			return types.ExperimentSpec{}, cerrors.SpecValidation{Field: "treatments/" + treatment.Name + "/start", Reason: err.Error()}
		}
		duration, err := parseOptionalDuration(treatment.Duration)
		if err != nil {
			return types.ExperimentSpec{}, cerrors.SpecValidation{Field: "treatments/" + treatment.Name + "/duration", Reason: err.Error()}
		}
		experiment.Treatments = append(experiment.Treatments, types.TreatmentSpec{
			Name:     treatment.Name,
			Action:   treatment.Action,
			Target:   treatment.Target,
			Params:   treatment.Params,
			Start:    start,
			Duration: duration,
		})
	}

	seenResponses := map[string]bool{}
	for _, response := range raw.Responses {
		if response.Name == "" {
			return types.ExperimentSpec{}, cerrors.SpecValidation{Field: "responses", Reason: "every response variable needs a name"}
		}
		if seenResponses[response.Name] {
			return types.ExperimentSpec{}, cerrors.SpecValidation{Field: "responses/" + response.Name, Reason: "duplicate response variable name"}
		}
		seenResponses[response.Name] = true
		if response.Backend != types.MetricsBackend && response.Backend != types.TracesBackend {
			return types.ExperimentSpec{}, cerrors.SpecValidation{Field: "responses/" + response.Name, Reason: "backend must be '" + types.MetricsBackend + "' or '" + types.TracesBackend + "'"}
		}
		if response.Query == "" {
			return types.ExperimentSpec{}, cerrors.SpecValidation{Field: "responses/" + response.Name, Reason: "a query is required"}
		}
		lookback, err := parseOptionalDuration(response.Lookback)
		if err != nil {
			return types.ExperimentSpec{}, cerrors.SpecValidation{Field: "responses/" + response.Name + "/lookback", Reason: err.Error()}
		}
		lookahead, err := parseOptionalDuration(response.Lookahead)
		if err != nil {
			return types.ExperimentSpec{}, cerrors.SpecValidation{Field: "responses/" + response.Name + "/lookahead", Reason: err.Error()}
		}
		experiment.Responses = append(experiment.Responses, types.ResponseVariableSpec{
			Name:      response.Name,
			Backend:   response.Backend,
			Query:     response.Query,
			Lookback:  lookback,
			Lookahead: lookahead,
		})
	}

	return experiment, nil
}

// parseOptionalDuration treats the empty string as zero
func parseOptionalDuration(value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	return common.ParseTimeString(value)
}

// composeDocument is the subset of a compose file the engine reads
type composeDocument struct {
	Services map[string]interface{} `yaml:"services"`
}

// ResolveServices parses the compose file of the sue and returns the
// effective service names, sorted. Include wins over the full set,
// exclude is applied afterwards; naming an unknown service in either
// list is a validation error.
func ResolveServices(sue types.SUESpec) ([]string, error) {
	raw, err := os.ReadFile(sue.ComposeFile)
	if err != nil {
		return nil, cerrors.SpecValidation{Field: "sue/compose", Reason: err.Error()}
	}
	var compose composeDocument
	if err := yaml.Unmarshal(raw, &compose); err != nil {
		return nil, cerrors.SpecValidation{Field: "sue/compose", Reason: "not a compose file: " + err.Error()}
	}
	if len(compose.Services) == 0 {
		return nil, cerrors.SpecValidation{Field: "sue/compose", Reason: "compose file declares no services"}
	}

	var declared []string
	for name := range compose.Services {
		declared = append(declared, name)
	}

	selected := declared
	if len(sue.Include) > 0 {
		for _, name := range sue.Include {
			if !common.Contains(name, declared) {
				return nil, cerrors.SpecValidation{Field: "sue/include", Reason: "service '" + name + "' is not declared in the compose file"}
			}
		}
		selected = append([]string{}, sue.Include...)
	}

	if len(sue.Exclude) > 0 {
		for _, name := range sue.Exclude {
			if !common.Contains(name, declared) {
				return nil, cerrors.SpecValidation{Field: "sue/exclude", Reason: "service '" + name + "' is not declared in the compose file"}
			}
		}
		var kept []string
		for _, name := range selected {
			if !common.Contains(name, sue.Exclude) {
				kept = append(kept, name)
			}
		}
		selected = kept
	}

	if len(selected) == 0 {
		return nil, cerrors.SpecValidation{Field: "sue", Reason: "include/exclude leave no services in the experiment"}
	}
	sort.Strings(selected)
	return selected, nil
}
