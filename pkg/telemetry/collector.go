package telemetry

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/faultline/faultline-go/pkg/cerrors"
	"github.com/faultline/faultline-go/pkg/log"
	"github.com/faultline/faultline-go/pkg/types"
	"github.com/faultline/faultline-go/pkg/utils/retry"
)

const (
	// DefaultLookback compensates the ingestion delay of the telemetry
	// pipeline on the left edge of the observation window
	DefaultLookback = 30 * time.Second
	// DefaultLookahead compensates it on the right edge
	DefaultLookahead = 30 * time.Second

	defaultQueryRetries = 3
	defaultQueryBackoff = 2 * time.Second
)

// Collector queries every declared response variable over the run's
// observation window. Queries are independent, run concurrently and
// fail per variable, never for the repetition as a whole.
type Collector struct {
	Metrics Backend
	Traces  Backend

	Retries uint
	Backoff time.Duration
}

// NewCollector wires a collector against the two backends
func NewCollector(metrics, traces Backend) *Collector {
	return &Collector{
		Metrics: metrics,
		Traces:  traces,
		Retries: defaultQueryRetries,
		Backoff: defaultQueryBackoff,
	}
}

// Collect issues one query per response variable over
// [start-lookback, end+lookahead] and returns payloads keyed by
// variable name. Failed variables carry an error marker instead of data.
func (c *Collector) Collect(ctx context.Context, variables []types.ResponseVariableSpec, start, end time.Time) map[string]types.ResponsePayload {
	results := make(map[string]types.ResponsePayload, len(variables))
	var mu sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)
	for _, variable := range variables {
		variable := variable
		group.Go(func() error {
			payload := c.collectOne(groupCtx, variable, start, end)
			mu.Lock()
			results[variable.Name] = payload
			mu.Unlock()
			return nil
		})
	}
	// collectOne never returns an error, failures are per-variable markers
	_ = group.Wait()
	return results
}

func (c *Collector) collectOne(ctx context.Context, variable types.ResponseVariableSpec, start, end time.Time) types.ResponsePayload {
	lookback := variable.Lookback
	if lookback == 0 {
		lookback = DefaultLookback
	}
	lookahead := variable.Lookahead
	if lookahead == 0 {
		lookahead = DefaultLookahead
	}
	windowStart := start.Add(-lookback)
	windowEnd := end.Add(lookahead)

	payload := types.ResponsePayload{
		Name:    variable.Name,
		Backend: variable.Backend,
		Start:   windowStart,
		End:     windowEnd,
	}

	backend := c.backendFor(variable.Backend)
	if backend == nil {
		payload.Error = cerrors.TelemetryQuery{
			Variable: variable.Name,
			Backend:  variable.Backend,
			Reason:   "no backend configured",
		}.Error()
		return payload
	}

	var data string
	err := retry.Times(c.Retries).Wait(c.Backoff).Try(func(attempt uint) error {
		var queryErr error
		data, queryErr = backend.Query(ctx, variable.Query, windowStart, windowEnd)
		if queryErr != nil {
			log.Warnf("[Collect]: Query for %v failed on attempt %d: %v", variable.Name, attempt+1, queryErr)
		}
		return queryErr
	})
	if err != nil {
		payload.Error = cerrors.TelemetryQuery{
			Variable: variable.Name,
			Backend:  variable.Backend,
			Reason:   err.Error(),
		}.Error()
		return payload
	}
	payload.Data = data
	log.Infof("[Collect]: Captured response variable %v over [%v, %v]", variable.Name, windowStart.Format(time.RFC3339), windowEnd.Format(time.RFC3339))
	return payload
}

func (c *Collector) backendFor(name string) Backend {
	switch name {
	case types.MetricsBackend:
		return c.Metrics
	case types.TracesBackend:
		return c.Traces
	}
	return nil
}
