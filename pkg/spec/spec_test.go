package spec

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faultline/faultline-go/pkg/cerrors"
	"github.com/faultline/faultline-go/pkg/treatment"
	"github.com/faultline/faultline-go/pkg/types"
)

const sampleCompose = `
services:
  frontend:
    image: frontend:latest
  backend:
    image: backend:latest
  jaeger:
    image: jaegertracing/all-in-one
`

const sampleExperiment = `
name: checkout-latency
sue:
  compose: %s
treatments:
  - name: slow-frontend
    action: delay
    target: frontend
    params:
      latency: 100ms
    start: 30s
    duration: 2m
responses:
  - name: latency
    backend: metrics
    query: histogram_quantile(0.9, frontend_latency_bucket)
    lookback: 10s
  - name: spans
    backend: traces
    query: "frontend:HTTP GET /cart"
report:
  path: out/report.yaml
`

func sprintfExperiment(composePath string) string {
	return fmt.Sprintf(sampleExperiment, composePath)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadResolvesDurationsAndServices(t *testing.T) {
	composePath := writeFile(t, "compose.yml", sampleCompose)
	specPath := writeFile(t, "experiment.yml", sprintfExperiment(composePath))

	experiment, err := Load(specPath)
	require.NoError(t, err)

	assert.Equal(t, "checkout-latency", experiment.Name)
	assert.Equal(t, []string{"backend", "frontend", "jaeger"}, experiment.SUE.Services)

	require.Len(t, experiment.Treatments, 1)
	assert.Equal(t, 30*time.Second, experiment.Treatments[0].Start)
	assert.Equal(t, 2*time.Minute, experiment.Treatments[0].Duration)
	assert.Equal(t, "100ms", experiment.Treatments[0].Params["latency"])

	require.Len(t, experiment.Responses, 2)
	assert.Equal(t, 10*time.Second, experiment.Responses[0].Lookback)
	assert.Zero(t, experiment.Responses[0].Lookahead)
	assert.Equal(t, "out/report.yaml", experiment.Report.Path)
}

func TestParseAcceptsBareSecondDurations(t *testing.T) {
	experiment, err := Parse([]byte(`
name: x
sue:
  compose: compose.yml
treatments:
  - name: t
    action: pause
    target: frontend
    start: "90"
    duration: "30"
`))
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, experiment.Treatments[0].Start)
	assert.Equal(t, 30*time.Second, experiment.Treatments[0].Duration)
}

func TestParseValidationFailures(t *testing.T) {
	tests := map[string]string{
		"missing name": `
sue:
  compose: compose.yml
`,
		"missing compose": `
name: x
`,
		"duplicate treatment": `
name: x
sue:
  compose: compose.yml
treatments:
  - name: t
    action: pause
  - name: t
    action: kill
`,
		"negative start": `
name: x
sue:
  compose: compose.yml
treatments:
  - name: t
    action: pause
    start: -10s
`,
		"unknown backend": `
name: x
sue:
  compose: compose.yml
responses:
  - name: r
    backend: logs
    query: q
`,
		"missing query": `
name: x
sue:
  compose: compose.yml
responses:
  - name: r
    backend: metrics
`,
		"unknown field": `
name: x
sue:
  compose: compose.yml
loadgen:
  users: 10
`,
	}
	for name, document := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(document))
			require.Error(t, err)
			assert.Equal(t, cerrors.ErrorTypeSpecValidation, cerrors.GetErrorType(err))
		})
	}
}

func TestResolveServicesIncludeExclude(t *testing.T) {
	composePath := writeFile(t, "compose.yml", sampleCompose)

	services, err := ResolveServices(types.SUESpec{
		ComposeFile: composePath,
		Include:     []string{"frontend", "backend", "jaeger"},
		Exclude:     []string{"jaeger"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"backend", "frontend"}, services)
}

func TestResolveServicesUnknownIncludeFails(t *testing.T) {
	composePath := writeFile(t, "compose.yml", sampleCompose)

	_, err := ResolveServices(types.SUESpec{ComposeFile: composePath, Include: []string{"database"}})
	require.Error(t, err)
	assert.Equal(t, cerrors.ErrorTypeSpecValidation, cerrors.GetErrorType(err))
}

func TestResolveServicesEmptySelectionFails(t *testing.T) {
	composePath := writeFile(t, "compose.yml", sampleCompose)

	_, err := ResolveServices(types.SUESpec{
		ComposeFile: composePath,
		Exclude:     []string{"frontend", "backend", "jaeger"},
	})
	require.Error(t, err)
}

func TestLoadExtensionsAndApply(t *testing.T) {
	path := writeFile(t, "extensions.yml", `
extensions:
  - action: heavy-delay
    base: delay
    defaults:
      latency: 250ms
      jitter: 50ms
`)
	extensions, err := LoadExtensions(path)
	require.NoError(t, err)
	require.Len(t, extensions, 1)

	registry := treatment.NewRegistry()
	require.NoError(t, ApplyExtensions(registry, extensions))
	assert.Contains(t, registry.Actions(), "heavy-delay")
}

func TestLoadExtensionsUnknownBaseFails(t *testing.T) {
	path := writeFile(t, "extensions.yml", `
extensions:
  - action: heavy-delay
    base: wormhole
`)
	extensions, err := LoadExtensions(path)
	require.NoError(t, err)

	registry := treatment.NewRegistry()
	assert.Error(t, ApplyExtensions(registry, extensions))
}
