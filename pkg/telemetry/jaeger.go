package telemetry

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// jaeger trace timestamps are microseconds since epoch on the wire

// JaegerBackend queries the jaeger HTTP API for traces. The query of a
// trace response variable is the service name, optionally followed by
// an operation as "service:operation".
type JaegerBackend struct {
	baseURL string
	client  *http.Client
	limit   int
}

// NewJaegerBackend returns a trace backend against the given jaeger
// query base url, e.g. http://localhost:16686
func NewJaegerBackend(baseURL string) *JaegerBackend {
	return &JaegerBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		limit:   2000,
	}
}

func (j *JaegerBackend) Query(ctx context.Context, query string, start, end time.Time) (string, error) {
	service, operation := splitTraceQuery(query)
	params := url.Values{}
	params.Set("service", service)
	if operation != "" {
		params.Set("operation", operation)
	}
	params.Set("start", strconv.FormatInt(start.UnixMicro(), 10))
	params.Set("end", strconv.FormatInt(end.UnixMicro(), 10))
	params.Set("limit", strconv.Itoa(j.limit))

	endpoint := j.baseURL + "/api/traces?" + params.Encode()
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	response, err := j.client.Do(request)
	if err != nil {
		return "", errors.Errorf("unable to reach jaeger at %v, err: %v", j.baseURL, err)
	}
	defer response.Body.Close()
	body, err := io.ReadAll(response.Body)
	if err != nil {
		return "", err
	}
	if response.StatusCode != http.StatusOK {
		return "", errors.Errorf("jaeger returned status %d: %v", response.StatusCode, strings.TrimSpace(string(body)))
	}
	return string(body), nil
}

func splitTraceQuery(query string) (service, operation string) {
	fields := strings.SplitN(query, ":", 2)
	service = fields[0]
	if len(fields) == 2 {
		operation = fields[1]
	}
	return service, operation
}
