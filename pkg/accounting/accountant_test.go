package accounting

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faultline/faultline-go/pkg/cerrors"
	"github.com/faultline/faultline-go/pkg/runtime"
)

func TestAccountantCollectsSamples(t *testing.T) {
	fake := &runtime.FakeRuntime{
		StatsValue: runtime.Stats{CPUPercent: 12.5, MemoryBytes: 1 << 20, NetRxBytes: 100, NetTxBytes: 200},
	}
	accountant := NewAccountant(fake, "compose.yml", []string{"frontend", "backend"}).
		WithInterval(10 * time.Millisecond)

	accountant.Start(context.Background())
	time.Sleep(60 * time.Millisecond)
	samples := accountant.Stop()

	require.NotEmpty(t, samples)

	byTarget := map[string]int{}
	for _, sample := range samples {
		byTarget[sample.Target]++
		if sample.Target != SelfTarget {
			assert.InDelta(t, 12.5, sample.CPUPercent, 0.001)
			assert.Equal(t, uint64(1<<20), sample.MemoryBytes)
		}
	}
	assert.Greater(t, byTarget["frontend"], 0)
	assert.Greater(t, byTarget["backend"], 0)
	// the engine process is sampled alongside the sue services
	assert.Greater(t, byTarget[SelfTarget], 0)
}

func TestAccountantTreatsFailedSamplesAsGaps(t *testing.T) {
	fake := &runtime.FakeRuntime{
		StatsErr: cerrors.Generic{Reason: "container not running"},
	}
	accountant := NewAccountant(fake, "compose.yml", []string{"frontend"}).
		WithInterval(10 * time.Millisecond)

	accountant.Start(context.Background())
	time.Sleep(45 * time.Millisecond)
	samples := accountant.Stop()

	for _, sample := range samples {
		assert.Equal(t, SelfTarget, sample.Target, "failed container samples must be dropped")
	}
	// sampling was attempted despite the failures
	assert.NotEmpty(t, fake.CallsFor("stats"))
}

func TestAccountantStopWithoutStart(t *testing.T) {
	fake := &runtime.FakeRuntime{}
	accountant := NewAccountant(fake, "compose.yml", nil)

	assert.Empty(t, accountant.Stop())
}
