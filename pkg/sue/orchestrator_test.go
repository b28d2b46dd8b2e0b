package sue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faultline/faultline-go/pkg/cerrors"
	"github.com/faultline/faultline-go/pkg/runtime"
	"github.com/faultline/faultline-go/pkg/types"
)

func newTestOrchestrator(rt runtime.Runtime) *Orchestrator {
	spec := types.SUESpec{
		ComposeFile: "compose.yml",
		Services:    []string{"frontend", "backend"},
	}
	return NewOrchestrator(rt, spec).WithPollInterval(5 * time.Millisecond)
}

func TestWaitReadyRecordsReadyTimestamp(t *testing.T) {
	fake := &runtime.FakeRuntime{HealthyAfter: 2}
	orchestrator := newTestOrchestrator(fake)

	before := time.Now().UTC()
	readyAt, err := orchestrator.WaitReady(context.Background(), time.Second)
	require.NoError(t, err)

	assert.False(t, readyAt.Before(before))
	assert.Equal(t, readyAt, orchestrator.ReadyAt())
	// three polls per service until both report healthy
	assert.GreaterOrEqual(t, len(fake.CallsFor("health")), 4)
}

func TestWaitReadyTimesOut(t *testing.T) {
	fake := &runtime.FakeRuntime{HealthyAfter: 1 << 30}
	orchestrator := newTestOrchestrator(fake)

	_, err := orchestrator.WaitReady(context.Background(), 25*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, cerrors.ErrorTypeBuildTimeout, cerrors.GetErrorType(err))
	assert.True(t, orchestrator.ReadyAt().IsZero())
}

func TestWaitReadyTimesOutWhenHealthPollErrors(t *testing.T) {
	fake := &runtime.FakeRuntime{HealthErr: cerrors.Generic{Reason: "no container"}}
	orchestrator := newTestOrchestrator(fake)

	_, err := orchestrator.WaitReady(context.Background(), 25*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, cerrors.ErrorTypeBuildTimeout, cerrors.GetErrorType(err))
}

func TestStopIsIdempotent(t *testing.T) {
	fake := &runtime.FakeRuntime{}
	orchestrator := newTestOrchestrator(fake)

	orchestrator.Stop(context.Background())
	orchestrator.Stop(context.Background())

	assert.Equal(t, 1, fake.DownCount())
}
