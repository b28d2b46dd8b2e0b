package report

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"

	"github.com/faultline/faultline-go/pkg/cerrors"
	"github.com/faultline/faultline-go/pkg/types"
)

func sampleSpec(path string) types.ExperimentSpec {
	return types.ExperimentSpec{
		Name: "checkout-latency",
		SUE:  types.SUESpec{ComposeFile: "compose.yml", Services: []string{"frontend"}},
		Treatments: []types.TreatmentSpec{
			{Name: "slow-frontend", Action: "delay", Target: "frontend", Start: 10 * time.Second, Duration: 30 * time.Second},
		},
		Report: types.ReportOptions{Path: path},
	}
}

func TestAssemblerWritesRoundTrippableReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.yaml")
	assembler := NewAssembler(sampleSpec(path))

	assembler.Append(types.RunResult{
		Repetition: 0,
		RunID:      "a1b2c3d4",
		Status:     types.RunCompleted,
		Treatments: []types.TreatmentOutcome{
			{Name: "slow-frontend", Action: "delay", Target: "frontend", State: types.Recovered},
		},
		Responses: map[string]types.ResponsePayload{
			"latency": {Name: "latency", Backend: types.MetricsBackend, Data: `[]`},
		},
	})
	assembler.Append(types.RunResult{
		Repetition: 1,
		RunID:      "e5f6a7b8",
		Status:     types.RunFailed,
		Error:      "sue never became healthy",
	})

	require.NoError(t, assembler.Write())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var report types.Report
	require.NoError(t, yaml.Unmarshal(raw, &report))

	assert.Equal(t, "checkout-latency", report.Experiment.Name)
	require.Len(t, report.Runs, 2)
	assert.Equal(t, types.RunCompleted, report.Runs[0].Status)
	assert.Equal(t, types.Recovered, report.Runs[0].Treatments[0].State)
	assert.Equal(t, "sue never became healthy", report.Runs[1].Error)
	assert.True(t, report.AnyRunFailed())
}

func TestAssemblerOverwritesPreviousReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.yaml")
	require.NoError(t, os.WriteFile(path, []byte("stale: true\n"), 0644))

	assembler := NewAssembler(sampleSpec(path))
	assembler.Append(types.RunResult{Repetition: 0, RunID: "a1b2c3d4", Status: types.RunCompleted})
	require.NoError(t, assembler.Write())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "stale")
}

func TestAssemblerDefaultPath(t *testing.T) {
	assembler := NewAssembler(sampleSpec(""))
	assert.Equal(t, DefaultPath, assembler.Path())
}

func TestAssemblerWriteFailureIsTyped(t *testing.T) {
	assembler := NewAssembler(sampleSpec(filepath.Join(t.TempDir(), "missing", "report.yaml")))
	err := assembler.Write()
	require.Error(t, err)
	assert.Equal(t, cerrors.ErrorTypeReportWrite, cerrors.GetErrorType(err))
}
