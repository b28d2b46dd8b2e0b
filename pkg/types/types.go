package types

import (
	"time"
)

const (
	// MetricsBackend selects the metrics store for a response variable
	MetricsBackend string = "metrics"
	// TracesBackend selects the trace store for a response variable
	TracesBackend string = "traces"
)

// TreatmentState tracks a treatment instance through one repetition
type TreatmentState string

const (
	// Pending initial state, no action executed yet
	Pending TreatmentState = "Pending"
	// Injected the inject action completed successfully
	Injected TreatmentState = "Injected"
	// Failed the inject action returned an error
	Failed TreatmentState = "Failed"
	// RecoveryPending the recover action is executing
	RecoveryPending TreatmentState = "RecoveryPending"
	// Recovered the recover action completed successfully
	Recovered TreatmentState = "Recovered"
	// RecoverFailed the recover action returned an error
	RecoverFailed TreatmentState = "RecoverFailed"
	// Skipped recover ran against a treatment that was never injected
	Skipped TreatmentState = "Skipped"
)

// Terminal returns true once no further action will touch the treatment
func (s TreatmentState) Terminal() bool {
	switch s {
	case Recovered, RecoverFailed, Skipped:
		return true
	}
	return false
}

// ActionKind discriminates the two halves of a treatment timeline
type ActionKind string

const (
	// InjectAction applies the fault to the target
	InjectAction ActionKind = "Inject"
	// RecoverAction removes the fault from the target
	RecoverAction ActionKind = "Recover"
)

// RunStatus is the verdict of a single repetition
type RunStatus string

const (
	// RunCompleted the repetition drained its full action queue
	RunCompleted RunStatus = "Completed"
	// RunFailed the repetition aborted before its action queue was built
	RunFailed RunStatus = "Failed"
)

// SUESpec describes the system under experiment
type SUESpec struct {
	// ComposeFile is the path of the docker compose file of the sue
	ComposeFile string `yaml:"compose"`
	// Include restricts the experiment to the named compose services
	Include []string `yaml:"include,omitempty"`
	// Exclude removes the named compose services from the experiment
	Exclude []string `yaml:"exclude,omitempty"`
	// Services holds the effective service names, resolved by the loader
	Services []string `yaml:"services,omitempty"`
}

// TreatmentSpec is one declared fault in the experiment specification
type TreatmentSpec struct {
	Name   string            `yaml:"name"`
	Action string            `yaml:"action"`
	Target string            `yaml:"target"`
	Params map[string]string `yaml:"params,omitempty"`
	// Start is the offset from sue readiness at which to inject
	Start time.Duration `yaml:"start"`
	// Duration is the injection window, zero means instantaneous
	Duration time.Duration `yaml:"duration"`
}

// ResponseVariableSpec is one declared telemetry query
type ResponseVariableSpec struct {
	Name    string `yaml:"name"`
	Backend string `yaml:"backend"`
	Query   string `yaml:"query"`
	// Lookback widens the query window to the left of the run start
	Lookback time.Duration `yaml:"lookback,omitempty"`
	// Lookahead widens the query window to the right of the run end
	Lookahead time.Duration `yaml:"lookahead,omitempty"`
}

// ReportOptions control serialization of the final report
type ReportOptions struct {
	Path string `yaml:"path,omitempty"`
}

// ExperimentSpec is the validated, immutable experiment definition
type ExperimentSpec struct {
	Name       string                 `yaml:"name"`
	SUE        SUESpec                `yaml:"sue"`
	Treatments []TreatmentSpec        `yaml:"treatments"`
	Responses  []ResponseVariableSpec `yaml:"responses"`
	Report     ReportOptions          `yaml:"report,omitempty"`
}

// ScheduledAction is one timed entry of a repetition's action queue.
// Actions are totally ordered by (Time, Seq) so that exact-time
// collisions still resolve deterministically.
type ScheduledAction struct {
	Time      time.Time
	Seq       int
	Treatment string
	Kind      ActionKind
}

// TreatmentOutcome is the per-treatment bookkeeping inside a RunResult
type TreatmentOutcome struct {
	Name           string         `yaml:"name"`
	Action         string         `yaml:"action"`
	Target         string         `yaml:"target"`
	State          TreatmentState `yaml:"state"`
	PlannedInject  time.Time      `yaml:"plannedInject"`
	PlannedRecover time.Time      `yaml:"plannedRecover"`
	InjectedAt     time.Time      `yaml:"injectedAt,omitempty"`
	RecoveredAt    time.Time      `yaml:"recoveredAt,omitempty"`
	InjectError    string         `yaml:"injectError,omitempty"`
	RecoverError   string         `yaml:"recoverError,omitempty"`
}

// ResponsePayload holds the opaque query result for one response variable
type ResponsePayload struct {
	Name    string    `yaml:"name"`
	Backend string    `yaml:"backend"`
	Start   time.Time `yaml:"start"`
	End     time.Time `yaml:"end"`
	// Data is the structured backend result, serialized as JSON. The
	// engine performs no semantic interpretation of its content.
	Data  string `yaml:"data,omitempty"`
	Error string `yaml:"error,omitempty"`
}

// AccountingSample is one resource usage reading of a sue service or
// of the engine process itself
type AccountingSample struct {
	Target      string    `yaml:"target"`
	TakenAt     time.Time `yaml:"takenAt"`
	CPUPercent  float64   `yaml:"cpuPercent"`
	MemoryBytes uint64    `yaml:"memoryBytes"`
	NetRxBytes  uint64    `yaml:"netRxBytes"`
	NetTxBytes  uint64    `yaml:"netTxBytes"`
}

// Event is one timestamped engine lifecycle entry of a repetition
type Event struct {
	At      time.Time `yaml:"at"`
	Reason  string    `yaml:"reason"`
	Message string    `yaml:"message"`
}

// RunResult is the sealed record of one repetition
type RunResult struct {
	Repetition int       `yaml:"repetition"`
	RunID      string    `yaml:"runID"`
	Status     RunStatus `yaml:"status"`
	Error      string    `yaml:"error,omitempty"`
	SUEReadyAt time.Time `yaml:"sueReadyAt,omitempty"`
	StartedAt  time.Time `yaml:"startedAt,omitempty"`
	EndedAt    time.Time `yaml:"endedAt,omitempty"`

	Treatments []TreatmentOutcome         `yaml:"treatments,omitempty"`
	Responses  map[string]ResponsePayload `yaml:"responses,omitempty"`
	Accounting []AccountingSample         `yaml:"accounting,omitempty"`
	Events     []Event                    `yaml:"events,omitempty"`
}

// Report is the final experiment document, one entry per repetition
type Report struct {
	Experiment ExperimentSpec `yaml:"experiment"`
	CreatedAt  time.Time      `yaml:"createdAt"`
	Runs       []RunResult    `yaml:"runs"`
}

// AnyRunFailed reports whether any repetition aborted outright.
// Individual treatment failures inside a completed repetition do not
// count as an invocation failure.
func (r Report) AnyRunFailed() bool {
	for _, run := range r.Runs {
		if run.Status == RunFailed {
			return true
		}
	}
	return false
}
