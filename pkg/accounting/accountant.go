// Package accounting samples resource usage of the sue services and of
// the engine process itself while a repetition runs. Sampling is opt-in
// because it adds a few seconds of wall time per declared service, and
// a missed sample is a gap in the series, never an error.
package accounting

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/faultline/faultline-go/pkg/log"
	"github.com/faultline/faultline-go/pkg/runtime"
	"github.com/faultline/faultline-go/pkg/types"
)

// SelfTarget labels samples of the engine's own process
const SelfTarget = "faultline-engine"

// DefaultSampleInterval is the fixed interval between usage readings
const DefaultSampleInterval = time.Second

// Accountant periodically samples every sue service and the engine
// process. It only reads from the runtime, so it can safely overlap
// injection, recovery and telemetry collection.
type Accountant struct {
	rt          runtime.Runtime
	composeFile string
	services    []string
	interval    time.Duration
	self        *process.Process

	mu      sync.Mutex
	samples []types.AccountingSample
	stop    chan struct{}
	done    chan struct{}
}

// NewAccountant returns an accountant over the given sue services
func NewAccountant(rt runtime.Runtime, composeFile string, services []string) *Accountant {
	self, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		// engine self-accounting becomes a gap, container sampling still works
		log.Warnf("unable to open engine process for accounting, err: %v", err)
		self = nil
	}
	return &Accountant{
		rt:          rt,
		composeFile: composeFile,
		services:    services,
		interval:    DefaultSampleInterval,
		self:        self,
	}
}

// WithInterval overrides the sampling interval
func (a *Accountant) WithInterval(interval time.Duration) *Accountant {
	a.interval = interval
	return a
}

// Start launches the periodic sampling task. It runs until Stop is
// called and overlaps the scheduler and the collectors.
func (a *Accountant) Start(ctx context.Context) {
	a.stop = make(chan struct{})
	a.done = make(chan struct{})
	log.Infof("[Accounting]: Sampling %d services every %v", len(a.services), a.interval)
	go func() {
		defer close(a.done)
		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()
		for {
			select {
			case <-a.stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.sampleAll(ctx)
			}
		}
	}()
}

// Stop terminates sampling and returns all collected samples
func (a *Accountant) Stop() []types.AccountingSample {
	if a.stop != nil {
		close(a.stop)
		<-a.done
		a.stop = nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]types.AccountingSample{}, a.samples...)
}

func (a *Accountant) sampleAll(ctx context.Context) {
	now := time.Now().UTC()
	for _, service := range a.services {
		stats, err := a.rt.SampleStats(ctx, a.composeFile, service)
		if err != nil {
			// a dropped sample is a gap in the series, not a failure
			log.Debugf("dropped accounting sample for %v: %v", service, err)
			continue
		}
		a.append(types.AccountingSample{
			Target:      service,
			TakenAt:     now,
			CPUPercent:  stats.CPUPercent,
			MemoryBytes: stats.MemoryBytes,
			NetRxBytes:  stats.NetRxBytes,
			NetTxBytes:  stats.NetTxBytes,
		})
	}
	a.sampleSelf(now)
}

func (a *Accountant) sampleSelf(now time.Time) {
	if a.self == nil {
		return
	}
	cpu, err := a.self.CPUPercent()
	if err != nil {
		log.Debugf("dropped engine cpu sample: %v", err)
		return
	}
	memory, err := a.self.MemoryInfo()
	if err != nil {
		log.Debugf("dropped engine memory sample: %v", err)
		return
	}
	a.append(types.AccountingSample{
		Target:      SelfTarget,
		TakenAt:     now,
		CPUPercent:  cpu,
		MemoryBytes: memory.RSS,
	})
}

func (a *Accountant) append(sample types.AccountingSample) {
	a.mu.Lock()
	a.samples = append(a.samples, sample)
	a.mu.Unlock()
}
