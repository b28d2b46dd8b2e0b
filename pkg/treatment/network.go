package treatment

import (
	"context"
	"fmt"
	"strings"

	"github.com/faultline/faultline-go/pkg/log"
	"github.com/faultline/faultline-go/pkg/types"
)

const defaultNetworkInterface = "eth0"

// qdiscTreatment impairs the network boundary of its target by
// installing a qdisc on the container's interface. All netem and tbf
// based variants share the inject/recover/probe mechanics and differ
// only in the qdisc arguments.
type qdiscTreatment struct {
	base
	iface string
	// qdiscArgs follow "tc qdisc replace dev <iface> root", e.g.
	// ["netem", "delay", "100ms"] or ["tbf", "rate", "1mbit", ...]
	qdiscArgs []string
}

func (q *qdiscTreatment) Inject(ctx context.Context) error {
	q.attempted = true
	command := append([]string{"tc", "qdisc", "replace", "dev", q.iface, "root"}, q.qdiscArgs...)
	if _, err := q.execInTarget(ctx, command); err != nil {
		return q.injectError(err.Error())
	}
	log.Infof("[Inject]: Applied %v qdisc on %v/%v", q.qdiscArgs[0], q.target, q.iface)
	return nil
}

func (q *qdiscTreatment) Recover(ctx context.Context) error {
	if !q.attempted {
		return nil
	}
	_, deleteErr := q.execInTarget(ctx, []string{"tc", "qdisc", "delete", "dev", q.iface, "root"})
	// the delete may fail if the inject never installed the qdisc, the
	// probe below decides whether the target is actually back at baseline
	if err := q.probeBaseline(ctx); err != nil {
		if deleteErr != nil {
			return q.recoverError(deleteErr.Error())
		}
		return q.recoverError(err.Error())
	}
	q.attempted = false
	log.Infof("[Recover]: Removed %v qdisc from %v/%v", q.qdiscArgs[0], q.target, q.iface)
	return nil
}

// probeBaseline verifies that no impairment qdisc remains installed
func (q *qdiscTreatment) probeBaseline(ctx context.Context) error {
	result, err := q.execInTarget(ctx, []string{"tc", "qdisc", "show", "dev", q.iface})
	if err != nil {
		return err
	}
	if strings.Contains(result.Stdout, q.qdiscArgs[0]) {
		return fmt.Errorf("%v qdisc still present on %v after recovery", q.qdiscArgs[0], q.iface)
	}
	return nil
}

func newQdiscTreatment(spec types.TreatmentSpec, deps Deps, qdiscArgs []string) *qdiscTreatment {
	return &qdiscTreatment{
		base:      newBase(spec, deps),
		iface:     optionalParam(spec, "interface", defaultNetworkInterface),
		qdiscArgs: qdiscArgs,
	}
}

// newDelayTreatment adds latency, and optionally jitter with a
// correlation, to all egress traffic of the target
func newDelayTreatment(spec types.TreatmentSpec, deps Deps) (Treatment, error) {
	if err := requireTarget(spec, deps); err != nil {
		return nil, err
	}
	delay, err := requireDurationParam(spec, "delay")
	if err != nil {
		return nil, err
	}
	args := []string{"netem", "delay", fmt.Sprintf("%dms", delay.Milliseconds())}
	if jitter, exists := spec.Params["jitter"]; exists && jitter != "" {
		parsed, err := requireDurationParam(spec, "jitter")
		if err != nil {
			return nil, err
		}
		args = append(args, fmt.Sprintf("%dms", parsed.Milliseconds()))
		correlation, err := optionalPercentageParam(spec, "correlation")
		if err != nil {
			return nil, err
		}
		if correlation != "" {
			args = append(args, correlation)
		}
	}
	return newQdiscTreatment(spec, deps, args), nil
}

// newLossTreatment drops a percentage of the target's egress packets
func newLossTreatment(spec types.TreatmentSpec, deps Deps) (Treatment, error) {
	if err := requireTarget(spec, deps); err != nil {
		return nil, err
	}
	percentage, err := requirePercentageParam(spec, "percentage")
	if err != nil {
		return nil, err
	}
	args := []string{"netem", "loss", percentage}
	correlation, err := optionalPercentageParam(spec, "correlation")
	if err != nil {
		return nil, err
	}
	if correlation != "" {
		args = append(args, correlation)
	}
	return newQdiscTreatment(spec, deps, args), nil
}

// newCorruptTreatment flips bits in a percentage of egress packets
func newCorruptTreatment(spec types.TreatmentSpec, deps Deps) (Treatment, error) {
	if err := requireTarget(spec, deps); err != nil {
		return nil, err
	}
	percentage, err := requirePercentageParam(spec, "percentage")
	if err != nil {
		return nil, err
	}
	args := []string{"netem", "corrupt", percentage}
	correlation, err := optionalPercentageParam(spec, "correlation")
	if err != nil {
		return nil, err
	}
	if correlation != "" {
		args = append(args, correlation)
	}
	return newQdiscTreatment(spec, deps, args), nil
}

// newBandwidthTreatment caps the egress bandwidth of the target with a
// token bucket filter
func newBandwidthTreatment(spec types.TreatmentSpec, deps Deps) (Treatment, error) {
	if err := requireTarget(spec, deps); err != nil {
		return nil, err
	}
	rate, err := requireParam(spec, "rate")
	if err != nil {
		return nil, err
	}
	args := []string{
		"tbf",
		"rate", rate,
		"burst", optionalParam(spec, "burst", "32kbit"),
		"latency", optionalParam(spec, "latency", "400ms"),
	}
	return newQdiscTreatment(spec, deps, args), nil
}

// partitionTreatment cuts the target off from a peer service in both
// directions via iptables drop rules inside the target container
type partitionTreatment struct {
	base
	peer string
}

func newPartitionTreatment(spec types.TreatmentSpec, deps Deps) (Treatment, error) {
	if err := requireTarget(spec, deps); err != nil {
		return nil, err
	}
	peer, err := requireParam(spec, "peer")
	if err != nil {
		return nil, err
	}
	if len(deps.Services) > 0 && !containsService(deps.Services, peer) {
		return nil, validationError(spec, "peer '"+peer+"' is not part of the sue")
	}
	if peer == spec.Target {
		return nil, validationError(spec, "peer must differ from the target")
	}
	return &partitionTreatment{base: newBase(spec, deps), peer: peer}, nil
}

func (p *partitionTreatment) rules(flag string) [][]string {
	return [][]string{
		{"iptables", flag, "INPUT", "-s", p.peer, "-j", "DROP"},
		{"iptables", flag, "OUTPUT", "-d", p.peer, "-j", "DROP"},
	}
}

func (p *partitionTreatment) Inject(ctx context.Context) error {
	p.attempted = true
	for _, command := range p.rules("-A") {
		if _, err := p.execInTarget(ctx, command); err != nil {
			return p.injectError(err.Error())
		}
	}
	log.Infof("[Inject]: Partitioned %v from %v", p.target, p.peer)
	return nil
}

func (p *partitionTreatment) Recover(ctx context.Context) error {
	if !p.attempted {
		return nil
	}
	var failed []string
	for _, command := range p.rules("-D") {
		if _, err := p.execInTarget(ctx, command); err != nil {
			// a partially failed inject leaves only some rules behind,
			// deleting the missing ones is expected to fail
			failed = append(failed, err.Error())
		}
	}
	if len(failed) == len(p.rules("-D")) {
		return p.recoverError(strings.Join(failed, "; "))
	}
	p.attempted = false
	log.Infof("[Recover]: Healed partition between %v and %v", p.target, p.peer)
	return nil
}
