package runtime

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/faultline/faultline-go/pkg/log"
)

// statsFormat keeps the docker stats output parseable without json decoding
const statsFormat = "{{.CPUPerc}};{{.MemUsage}};{{.NetIO}}"

type execFn func(ctx context.Context, name string, args ...string) (ExecResult, error)

// ComposeRuntime drives a docker compose project through the docker cli.
// It implements the Runtime capability contract for compose based sues.
type ComposeRuntime struct {
	// Binary is the docker binary to invoke, defaults to "docker"
	Binary string

	run execFn
}

// NewComposeRuntime returns a Runtime backed by the local docker cli
func NewComposeRuntime() *ComposeRuntime {
	runtime := &ComposeRuntime{Binary: "docker"}
	runtime.run = runtime.runCommand
	return runtime
}

func (c *ComposeRuntime) runCommand(ctx context.Context, name string, args ...string) (ExecResult, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	result := ExecResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}
	if err != nil {
		return result, errors.Errorf("unable to run %v %v, err: %v", name, strings.Join(args, " "), err)
	}
	return result, nil
}

func (c *ComposeRuntime) docker(ctx context.Context, args ...string) (ExecResult, error) {
	result, err := c.run(ctx, c.Binary, args...)
	if err != nil {
		return result, err
	}
	if result.ExitCode != 0 {
		return result, errors.Errorf("%v %v exited with code %d: %v", c.Binary, strings.Join(args, " "), result.ExitCode, strings.TrimSpace(result.Stderr))
	}
	return result, nil
}

// containerID resolves a compose service name to its container id
func (c *ComposeRuntime) containerID(ctx context.Context, composeFile, service string) (string, error) {
	result, err := c.docker(ctx, "compose", "-f", composeFile, "ps", "-q", service)
	if err != nil {
		return "", err
	}
	id := strings.TrimSpace(result.Stdout)
	if id == "" {
		return "", errors.Errorf("no running container found for service %v", service)
	}
	// compose may report multiple replicas, the engine targets the first
	if idx := strings.IndexByte(id, '\n'); idx != -1 {
		id = id[:idx]
	}
	return id, nil
}

func (c *ComposeRuntime) Build(ctx context.Context, composeFile string, services []string) error {
	args := append([]string{"compose", "-f", composeFile, "build"}, services...)
	_, err := c.docker(ctx, args...)
	return err
}

func (c *ComposeRuntime) Up(ctx context.Context, composeFile string, services []string) error {
	args := append([]string{"compose", "-f", composeFile, "up", "--detach"}, services...)
	_, err := c.docker(ctx, args...)
	return err
}

func (c *ComposeRuntime) Down(ctx context.Context, composeFile string) error {
	_, err := c.docker(ctx, "compose", "-f", composeFile, "down", "--volumes", "--remove-orphans")
	return err
}

func (c *ComposeRuntime) IsHealthy(ctx context.Context, composeFile, service string) (bool, error) {
	id, err := c.containerID(ctx, composeFile, service)
	if err != nil {
		return false, err
	}
	result, err := c.docker(ctx, "inspect", "--format", "{{.State.Status}};{{if .State.Health}}{{.State.Health.Status}}{{end}}", id)
	if err != nil {
		return false, err
	}
	fields := strings.SplitN(strings.TrimSpace(result.Stdout), ";", 2)
	status := fields[0]
	health := ""
	if len(fields) == 2 {
		health = fields[1]
	}
	if health != "" {
		return health == "healthy", nil
	}
	return status == "running", nil
}

func (c *ComposeRuntime) Exec(ctx context.Context, composeFile, service string, command []string) (ExecResult, error) {
	args := append([]string{"compose", "-f", composeFile, "exec", "-T", service}, command...)
	result, err := c.run(ctx, c.Binary, args...)
	if err != nil {
		return result, err
	}
	return result, nil
}

func (c *ComposeRuntime) ExecDetached(ctx context.Context, composeFile, service string, command []string) error {
	args := append([]string{"compose", "-f", composeFile, "exec", "-T", "--detach", service}, command...)
	_, err := c.docker(ctx, args...)
	return err
}

func (c *ComposeRuntime) Pause(ctx context.Context, composeFile, service string) error {
	_, err := c.docker(ctx, "compose", "-f", composeFile, "pause", service)
	return err
}

func (c *ComposeRuntime) Unpause(ctx context.Context, composeFile, service string) error {
	_, err := c.docker(ctx, "compose", "-f", composeFile, "unpause", service)
	return err
}

func (c *ComposeRuntime) Kill(ctx context.Context, composeFile, service, signal string) error {
	_, err := c.docker(ctx, "compose", "-f", composeFile, "kill", "--signal", signal, service)
	return err
}

func (c *ComposeRuntime) Restart(ctx context.Context, composeFile, service string) error {
	_, err := c.docker(ctx, "compose", "-f", composeFile, "restart", service)
	return err
}

func (c *ComposeRuntime) SampleStats(ctx context.Context, composeFile, service string) (Stats, error) {
	id, err := c.containerID(ctx, composeFile, service)
	if err != nil {
		return Stats{}, err
	}
	result, err := c.docker(ctx, "stats", "--no-stream", "--format", statsFormat, id)
	if err != nil {
		return Stats{}, err
	}
	stats, err := parseStatsLine(strings.TrimSpace(result.Stdout))
	if err != nil {
		log.Debugf("unparseable stats line for service %v: %v", service, err)
		return Stats{}, err
	}
	return stats, nil
}

// parseStatsLine parses a "cpu;memUsage;netIO" line emitted by docker stats,
// e.g. "0.15%;21.5MiB / 7.6GiB;1.2kB / 648B"
func parseStatsLine(line string) (Stats, error) {
	fields := strings.Split(line, ";")
	if len(fields) != 3 {
		return Stats{}, errors.Errorf("expected 3 stats fields, got %d in %q", len(fields), line)
	}
	cpu, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(fields[0]), "%"), 64)
	if err != nil {
		return Stats{}, errors.Errorf("unparseable cpu field %q", fields[0])
	}
	mem, err := parseSize(firstOfPair(fields[1]))
	if err != nil {
		return Stats{}, err
	}
	rx, err := parseSize(firstOfPair(fields[2]))
	if err != nil {
		return Stats{}, err
	}
	tx, err := parseSize(secondOfPair(fields[2]))
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		CPUPercent:  cpu,
		MemoryBytes: mem,
		NetRxBytes:  rx,
		NetTxBytes:  tx,
	}, nil
}

func firstOfPair(pair string) string {
	return strings.TrimSpace(strings.SplitN(pair, "/", 2)[0])
}

func secondOfPair(pair string) string {
	fields := strings.SplitN(pair, "/", 2)
	if len(fields) != 2 {
		return ""
	}
	return strings.TrimSpace(fields[1])
}

var sizeUnits = []struct {
	suffix     string
	multiplier float64
}{
	{"GiB", 1 << 30},
	{"MiB", 1 << 20},
	{"KiB", 1 << 10},
	{"GB", 1e9},
	{"MB", 1e6},
	{"kB", 1e3},
	{"B", 1},
}

// parseSize converts docker's humanized byte sizes back to bytes
func parseSize(value string) (uint64, error) {
	value = strings.TrimSpace(value)
	for _, unit := range sizeUnits {
		if strings.HasSuffix(value, unit.suffix) {
			number := strings.TrimSpace(strings.TrimSuffix(value, unit.suffix))
			parsed, err := strconv.ParseFloat(number, 64)
			if err != nil {
				return 0, errors.Errorf("unparseable size %q", value)
			}
			return uint64(parsed * unit.multiplier), nil
		}
	}
	return 0, errors.Errorf("unknown size unit in %q", value)
}
