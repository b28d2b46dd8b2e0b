// Package telemetry queries the metric and trace backends of the sue
// for declared response variables. Results are opaque structured
// payloads, the engine never interprets metric or trace content.
package telemetry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	papi "github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"

	"github.com/faultline/faultline-go/pkg/log"
)

// DefaultQueryStep is the resolution of prometheus range queries
const DefaultQueryStep = 15 * time.Second

// Backend answers one range query over a time window and returns the
// structured result serialized as JSON
type Backend interface {
	Query(ctx context.Context, query string, start, end time.Time) (string, error)
}

// PrometheusBackend queries the prometheus HTTP API
type PrometheusBackend struct {
	api  promv1.API
	step time.Duration
}

// NewPrometheusBackend returns a metrics backend against the given
// prometheus base url, e.g. http://localhost:9090
func NewPrometheusBackend(address string) (*PrometheusBackend, error) {
	client, err := papi.NewClient(papi.Config{Address: address})
	if err != nil {
		return nil, errors.Errorf("unable to create prometheus client for %v, err: %v", address, err)
	}
	return &PrometheusBackend{api: promv1.NewAPI(client), step: DefaultQueryStep}, nil
}

// WithStep overrides the range query resolution
func (p *PrometheusBackend) WithStep(step time.Duration) *PrometheusBackend {
	p.step = step
	return p
}

func (p *PrometheusBackend) Query(ctx context.Context, query string, start, end time.Time) (string, error) {
	value, warnings, err := p.api.QueryRange(ctx, query, promv1.Range{
		Start: start,
		End:   end,
		Step:  p.step,
	})
	if err != nil {
		return "", err
	}
	for _, warning := range warnings {
		log.Warnf("prometheus warning for query %v: %v", query, warning)
	}
	if matrix, ok := value.(model.Matrix); ok {
		log.Debugf("prometheus returned %d series for query %v", matrix.Len(), query)
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return "", errors.Errorf("unable to serialize prometheus result, err: %v", err)
	}
	return string(payload), nil
}
