package spec

import (
	"os"

	"gopkg.in/yaml.v2"

	"github.com/faultline/faultline-go/pkg/cerrors"
	"github.com/faultline/faultline-go/pkg/log"
	"github.com/faultline/faultline-go/pkg/treatment"
)

// Extension declares an additional treatment action that reuses a
// builtin mechanism under a new name with pre-bound default parameters.
type Extension struct {
	Action   string            `yaml:"action"`
	Base     string            `yaml:"base"`
	Defaults map[string]string `yaml:"defaults"`
}

type extensionDocument struct {
	Extensions []Extension `yaml:"extensions"`
}

// LoadExtensions reads an extension file and returns its declarations
func LoadExtensions(path string) ([]Extension, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, cerrors.SpecValidation{Field: path, Reason: err.Error()}
	}
	var document extensionDocument
	if err := yaml.UnmarshalStrict(raw, &document); err != nil {
		return nil, cerrors.SpecValidation{Field: path, Reason: err.Error()}
	}
	for _, extension := range document.Extensions {
		if extension.Action == "" || extension.Base == "" {
			return nil, cerrors.SpecValidation{Field: path, Reason: "every extension needs an action and a base"}
		}
	}
	return document.Extensions, nil
}

// ApplyExtensions registers every extension before the registry freezes
func ApplyExtensions(registry *treatment.Registry, extensions []Extension) error {
	for _, extension := range extensions {
		if err := registry.RegisterAlias(extension.Action, extension.Base, extension.Defaults); err != nil {
			return err
		}
		log.Infof("[Registry]: Registered extension action %v on top of %v", extension.Action, extension.Base)
	}
	return nil
}
