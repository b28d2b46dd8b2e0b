// Package report assembles the final experiment document out of the
// sealed repetition results and writes it as a single YAML file.
package report

import (
	"os"
	"time"

	"github.com/kyokomi/emoji"
	"gopkg.in/yaml.v2"

	"github.com/faultline/faultline-go/pkg/cerrors"
	"github.com/faultline/faultline-go/pkg/log"
	"github.com/faultline/faultline-go/pkg/types"
)

// DefaultPath is used when the experiment declares no report path
const DefaultPath = "faultline-report.yaml"

// Assembler accumulates repetition results and produces the report
type Assembler struct {
	report types.Report
	path   string
}

// NewAssembler returns an assembler for the given experiment. The
// report path comes from the experiment spec, falling back to
// DefaultPath.
func NewAssembler(spec types.ExperimentSpec) *Assembler {
	path := spec.Report.Path
	if path == "" {
		path = DefaultPath
	}
	return &Assembler{
		report: types.Report{
			Experiment: spec,
			CreatedAt:  time.Now().UTC(),
		},
		path: path,
	}
}

// Append seals one repetition into the report
func (a *Assembler) Append(run types.RunResult) {
	a.report.Runs = append(a.report.Runs, run)
}

// Report returns the assembled document
func (a *Assembler) Report() types.Report {
	return a.report
}

// Path returns the destination file of the report
func (a *Assembler) Path() string {
	return a.path
}

// Write serializes the report to its destination path, overwriting any
// previous report, and logs a per-repetition verdict summary.
func (a *Assembler) Write() error {
	out, err := yaml.Marshal(a.report)
	if err != nil {
		return cerrors.ReportWrite{Path: a.path, Reason: err.Error()}
	}
	if err := os.WriteFile(a.path, out, 0644); err != nil {
		return cerrors.ReportWrite{Path: a.path, Reason: err.Error()}
	}
	a.logSummary()
	log.Infof("[Report]: Experiment report written to %v", a.path)
	return nil
}

func (a *Assembler) logSummary() {
	for _, run := range a.report.Runs {
		verdict := emoji.Sprint(":white_check_mark:")
		if run.Status == types.RunFailed {
			verdict = emoji.Sprint(":cross_mark:")
		}
		log.Infof("[Report]: Repetition %d (%v) %v %v", run.Repetition, run.RunID, run.Status, verdict)
		for _, treatment := range run.Treatments {
			log.Infof("[Report]:   treatment %v on %v finished in state %v", treatment.Name, treatment.Target, treatment.State)
		}
	}
}
