// Package scheduler converts the ordered treatment declarations of an
// experiment into a timed action queue and drains it against the wall
// clock. All sue mutation is serialized through its single control
// loop: at most one inject or recover executes at any instant, and the
// queue is always drained fully so the sue is returned as close to
// baseline as possible even under partial failure.
package scheduler

import (
	"context"
	"math/rand"
	"sort"
	"time"

	"github.com/faultline/faultline-go/pkg/cerrors"
	"github.com/faultline/faultline-go/pkg/events"
	"github.com/faultline/faultline-go/pkg/log"
	"github.com/faultline/faultline-go/pkg/treatment"
	"github.com/faultline/faultline-go/pkg/types"
)

// Entry pairs one treatment spec with its fresh runtime instance
type Entry struct {
	Spec      types.TreatmentSpec
	Treatment treatment.Treatment
}

// Scheduler drains one repetition's action queue
type Scheduler struct {
	entries  []Entry
	recorder *events.Recorder
}

// New returns a scheduler over the given entries in execution order
func New(entries []Entry, recorder *events.Recorder) *Scheduler {
	return &Scheduler{entries: entries, recorder: recorder}
}

// Shuffle permutes which treatment occupies which timing slot. The
// declared order defines the slots (start offset and duration pairs);
// a fresh random permutation assigns treatments to slots, so execution
// order varies even when every declared offset is distinct, while the
// shape of the timeline stays fixed.
func Shuffle(entries []Entry, rng *rand.Rand) []Entry {
	type slot struct {
		start    time.Duration
		duration time.Duration
	}
	slots := make([]slot, len(entries))
	for i, entry := range entries {
		slots[i] = slot{start: entry.Spec.Start, duration: entry.Spec.Duration}
	}
	shuffled := make([]Entry, len(entries))
	for i, j := range rng.Perm(len(entries)) {
		entry := entries[j]
		entry.Spec.Start = slots[i].start
		entry.Spec.Duration = slots[i].duration
		shuffled[i] = entry
	}
	return shuffled
}

// kindRank breaks ties inside a zero-duration pair, inject first
func kindRank(kind types.ActionKind) int {
	if kind == types.InjectAction {
		return 0
	}
	return 1
}

// BuildTimeline creates the total ordered action queue for t0, the sue
// readiness instant. Each treatment contributes an Inject at t0+start
// and a Recover at t0+start+duration; collisions on the exact same
// instant resolve deterministically by execution sequence, then kind.
func BuildTimeline(entries []Entry, t0 time.Time) []types.ScheduledAction {
	actions := make([]types.ScheduledAction, 0, 2*len(entries))
	for i, entry := range entries {
		actions = append(actions, types.ScheduledAction{
			Time:      t0.Add(entry.Spec.Start),
			Seq:       i,
			Treatment: entry.Spec.Name,
			Kind:      types.InjectAction,
		})
		actions = append(actions, types.ScheduledAction{
			Time:      t0.Add(entry.Spec.Start + entry.Spec.Duration),
			Seq:       i,
			Treatment: entry.Spec.Name,
			Kind:      types.RecoverAction,
		})
	}
	sort.SliceStable(actions, func(a, b int) bool {
		if !actions[a].Time.Equal(actions[b].Time) {
			return actions[a].Time.Before(actions[b].Time)
		}
		if actions[a].Seq != actions[b].Seq {
			return actions[a].Seq < actions[b].Seq
		}
		return kindRank(actions[a].Kind) < kindRank(actions[b].Kind)
	})
	return actions
}

// Run drains the full action queue against the wall clock and returns
// the per-treatment outcomes in execution order. It never aborts early:
// a failed inject leaves its paired recover in place, a failed recover
// never blocks subsequent actions.
func (s *Scheduler) Run(ctx context.Context, t0 time.Time) []types.TreatmentOutcome {
	outcomes := make([]*types.TreatmentOutcome, len(s.entries))
	byName := map[string]int{}
	for i, entry := range s.entries {
		outcomes[i] = &types.TreatmentOutcome{
			Name:           entry.Spec.Name,
			Action:         entry.Spec.Action,
			Target:         entry.Spec.Target,
			State:          types.Pending,
			PlannedInject:  t0.Add(entry.Spec.Start),
			PlannedRecover: t0.Add(entry.Spec.Start + entry.Spec.Duration),
		}
		byName[entry.Spec.Name] = i
	}

	actions := BuildTimeline(s.entries, t0)
	log.Infof("[Schedule]: Draining %d actions for %d treatments", len(actions), len(s.entries))

	for _, action := range actions {
		if wait := time.Until(action.Time); wait > 0 {
			log.Debugf("suspending %v until next action", wait)
			time.Sleep(wait)
		}
		index := byName[action.Treatment]
		entry := s.entries[index]
		outcome := outcomes[index]
		switch action.Kind {
		case types.InjectAction:
			s.inject(ctx, entry, outcome)
		case types.RecoverAction:
			s.recover(ctx, entry, outcome)
		}
	}

	sealed := make([]types.TreatmentOutcome, len(outcomes))
	for i, outcome := range outcomes {
		sealed[i] = *outcome
	}
	return sealed
}

func (s *Scheduler) inject(ctx context.Context, entry Entry, outcome *types.TreatmentOutcome) {
	err := entry.Treatment.Inject(ctx)
	now := time.Now().UTC()
	if err != nil {
		reason, _ := cerrors.GetRootCauseAndErrorCode(err)
		outcome.State = types.Failed
		outcome.InjectError = reason
		s.recorder.Record(events.ReasonInjectFailed, "treatment %v: %v", entry.Spec.Name, reason)
		return
	}
	outcome.State = types.Injected
	outcome.InjectedAt = now
	s.recorder.Record(events.ReasonInjected, "treatment %v injected into %v", entry.Spec.Name, entry.Spec.Target)
}

func (s *Scheduler) recover(ctx context.Context, entry Entry, outcome *types.TreatmentOutcome) {
	if outcome.State != types.Injected {
		// cleanup is still attempted, but a treatment that never took
		// effect must never report a recovery failure
		if err := entry.Treatment.Recover(ctx); err != nil {
			log.Debugf("best-effort recover of uninjected treatment %v: %v", entry.Spec.Name, err)
		}
		if outcome.State == types.Pending {
			outcome.State = types.Skipped
			s.recorder.Record(events.ReasonRecoverSkipped, "treatment %v was never injected", entry.Spec.Name)
		}
		return
	}
	outcome.State = types.RecoveryPending
	err := entry.Treatment.Recover(ctx)
	now := time.Now().UTC()
	if err != nil {
		reason, _ := cerrors.GetRootCauseAndErrorCode(err)
		outcome.State = types.RecoverFailed
		outcome.RecoverError = reason
		s.recorder.Record(events.ReasonRecoverFailed, "treatment %v: %v", entry.Spec.Name, reason)
		return
	}
	outcome.State = types.Recovered
	outcome.RecoveredAt = now
	s.recorder.Record(events.ReasonRecovered, "treatment %v recovered on %v", entry.Spec.Name, entry.Spec.Target)
}

// MarkSkipped seals outcomes for treatments whose queue never ran, e.g.
// when a repetition aborts before scheduling. Their recover is a no-op
// reported as Skipped, never as a failure.
func MarkSkipped(ctx context.Context, entries []Entry, t0 time.Time) []types.TreatmentOutcome {
	outcomes := make([]types.TreatmentOutcome, len(entries))
	for i, entry := range entries {
		if err := entry.Treatment.Recover(ctx); err != nil {
			log.Debugf("best-effort recover of unscheduled treatment %v: %v", entry.Spec.Name, err)
		}
		outcomes[i] = types.TreatmentOutcome{
			Name:           entry.Spec.Name,
			Action:         entry.Spec.Action,
			Target:         entry.Spec.Target,
			State:          types.Skipped,
			PlannedInject:  t0.Add(entry.Spec.Start),
			PlannedRecover: t0.Add(entry.Spec.Start + entry.Spec.Duration),
		}
	}
	return outcomes
}
