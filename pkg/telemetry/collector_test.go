package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faultline/faultline-go/pkg/types"
)

const promMatrixEnvelope = `{
	"status": "success",
	"data": {
		"resultType": "matrix",
		"result": [
			{
				"metric": {"__name__": "frontend_latency"},
				"values": [[1690000000, "0.25"], [1690000015, "1.75"]]
			}
		]
	}
}`

type backendFunc func(ctx context.Context, query string, start, end time.Time) (string, error)

func (f backendFunc) Query(ctx context.Context, query string, start, end time.Time) (string, error) {
	return f(ctx, query, start, end)
}

func newFastCollector(metrics, traces Backend) *Collector {
	collector := NewCollector(metrics, traces)
	collector.Backoff = time.Millisecond
	return collector
}

func TestPrometheusBackendQueryWindow(t *testing.T) {
	var gotStart, gotEnd float64
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotQuery = r.Form.Get("query")
		gotStart, _ = strconv.ParseFloat(r.Form.Get("start"), 64)
		gotEnd, _ = strconv.ParseFloat(r.Form.Get("end"), 64)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, promMatrixEnvelope)
	}))
	defer server.Close()

	backend, err := NewPrometheusBackend(server.URL)
	require.NoError(t, err)

	start := time.Now().Add(-time.Minute)
	end := time.Now()
	payload, err := backend.Query(context.Background(), `frontend_latency{service="frontend"}`, start, end)
	require.NoError(t, err)

	assert.Contains(t, payload, "frontend_latency")
	assert.Equal(t, `frontend_latency{service="frontend"}`, gotQuery)
	assert.InDelta(t, float64(start.Unix()), gotStart, 1)
	assert.InDelta(t, float64(end.Unix()), gotEnd, 1)
}

func TestJaegerBackendQueryParameters(t *testing.T) {
	var gotPath, gotService, gotOperation, gotStart, gotEnd string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotService = r.URL.Query().Get("service")
		gotOperation = r.URL.Query().Get("operation")
		gotStart = r.URL.Query().Get("start")
		gotEnd = r.URL.Query().Get("end")
		fmt.Fprint(w, `{"data": []}`)
	}))
	defer server.Close()

	backend := NewJaegerBackend(server.URL)
	start := time.Unix(1690000000, 0)
	end := time.Unix(1690000600, 0)

	payload, err := backend.Query(context.Background(), "frontend:HTTP GET /cart", start, end)
	require.NoError(t, err)

	assert.Equal(t, `{"data": []}`, payload)
	assert.Equal(t, "/api/traces", gotPath)
	assert.Equal(t, "frontend", gotService)
	assert.Equal(t, "HTTP GET /cart", gotOperation)
	// jaeger expects microseconds since epoch
	assert.Equal(t, "1690000000000000", gotStart)
	assert.Equal(t, "1690000600000000", gotEnd)
}

func TestJaegerBackendNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewJaegerBackend(server.URL).Query(context.Background(), "frontend", time.Now(), time.Now())
	assert.Error(t, err)
}

func TestCollectAppliesDefaultWindowCompensation(t *testing.T) {
	var gotStart, gotEnd time.Time
	metrics := backendFunc(func(ctx context.Context, query string, start, end time.Time) (string, error) {
		gotStart, gotEnd = start, end
		return `[]`, nil
	})

	start := time.Now().Add(-time.Minute)
	end := time.Now()
	results := newFastCollector(metrics, nil).Collect(context.Background(), []types.ResponseVariableSpec{
		{Name: "latency", Backend: types.MetricsBackend, Query: "frontend_latency"},
	}, start, end)

	require.Contains(t, results, "latency")
	payload := results["latency"]
	assert.Empty(t, payload.Error)
	assert.Equal(t, start.Add(-DefaultLookback), gotStart)
	assert.Equal(t, end.Add(DefaultLookahead), gotEnd)
	assert.Equal(t, gotStart, payload.Start)
	assert.Equal(t, gotEnd, payload.End)
}

func TestCollectRetriesThenRecordsPerVariableFailure(t *testing.T) {
	var attempts int32
	metrics := backendFunc(func(ctx context.Context, query string, start, end time.Time) (string, error) {
		atomic.AddInt32(&attempts, 1)
		return "", fmt.Errorf("connection refused")
	})
	traces := backendFunc(func(ctx context.Context, query string, start, end time.Time) (string, error) {
		return `{"data": []}`, nil
	})

	results := newFastCollector(metrics, traces).Collect(context.Background(), []types.ResponseVariableSpec{
		{Name: "latency", Backend: types.MetricsBackend, Query: "frontend_latency"},
		{Name: "spans", Backend: types.TracesBackend, Query: "frontend"},
	}, time.Now().Add(-time.Minute), time.Now())

	require.Len(t, results, 2)
	assert.NotEmpty(t, results["latency"].Error)
	assert.Empty(t, results["latency"].Data)
	assert.EqualValues(t, defaultQueryRetries, atomic.LoadInt32(&attempts))

	// the failing metrics variable never aborts the trace variable
	assert.Empty(t, results["spans"].Error)
	assert.Equal(t, `{"data": []}`, results["spans"].Data)
}

func TestCollectUnknownBackendIsAFailureMarker(t *testing.T) {
	results := newFastCollector(nil, nil).Collect(context.Background(), []types.ResponseVariableSpec{
		{Name: "odd", Backend: "events", Query: "x"},
	}, time.Now(), time.Now())

	require.Contains(t, results, "odd")
	assert.NotEmpty(t, results["odd"].Error)
}

func TestCollectCustomLookbackWins(t *testing.T) {
	var gotStart time.Time
	metrics := backendFunc(func(ctx context.Context, query string, start, end time.Time) (string, error) {
		gotStart = start
		return `[]`, nil
	})

	start := time.Now()
	newFastCollector(metrics, nil).Collect(context.Background(), []types.ResponseVariableSpec{
		{Name: "latency", Backend: types.MetricsBackend, Query: "q", Lookback: 5 * time.Second},
	}, start, start.Add(time.Minute))

	assert.Equal(t, start.Add(-5*time.Second), gotStart)
}
