package events

import (
	"fmt"
	"sync"
	"time"

	"github.com/faultline/faultline-go/pkg/log"
	"github.com/faultline/faultline-go/pkg/types"
)

// Reasons attached to engine lifecycle events
const (
	ReasonBuildStarted   = "BuildStarted"
	ReasonSUEReady       = "SUEReady"
	ReasonInjected       = "Injected"
	ReasonInjectFailed   = "InjectFailed"
	ReasonRecovered      = "Recovered"
	ReasonRecoverFailed  = "RecoverFailed"
	ReasonRecoverSkipped = "RecoverSkipped"
	ReasonTelemetry      = "TelemetryCollected"
	ReasonTeardown       = "Teardown"
	ReasonRunAborted     = "RunAborted"
)

// Recorder collects timestamped lifecycle events of one repetition.
// It is safe for concurrent use by the scheduler and the collectors.
type Recorder struct {
	mu     sync.Mutex
	events []types.Event
}

// Record appends an event and mirrors it to the logs. A nil recorder
// only logs, which keeps event recording optional for callers.
func (r *Recorder) Record(reason, format string, values ...interface{}) {
	message := fmt.Sprintf(format, values...)
	if r == nil {
		log.Infof("[Event]: %v: %v", reason, message)
		return
	}
	r.mu.Lock()
	r.events = append(r.events, types.Event{
		At:      time.Now().UTC(),
		Reason:  reason,
		Message: message,
	})
	r.mu.Unlock()
	log.Infof("[Event]: %v: %v", reason, message)
}

// Events returns a copy of all recorded events in insertion order
func (r *Recorder) Events() []types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Event{}, r.events...)
}
