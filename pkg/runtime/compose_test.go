package runtime

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCommand struct {
	name string
	args []string
}

func newStubbedCompose(results map[string]ExecResult) (*ComposeRuntime, *[]recordedCommand) {
	recorded := &[]recordedCommand{}
	runtime := NewComposeRuntime()
	runtime.run = func(ctx context.Context, name string, args ...string) (ExecResult, error) {
		*recorded = append(*recorded, recordedCommand{name: name, args: args})
		if result, ok := results[strings.Join(args, " ")]; ok {
			return result, nil
		}
		return ExecResult{}, nil
	}
	return runtime, recorded
}

func TestComposeRuntimeCommandAssembly(t *testing.T) {
	runtime, recorded := newStubbedCompose(nil)

	require.NoError(t, runtime.Build(context.Background(), "compose.yml", []string{"frontend", "backend"}))
	require.NoError(t, runtime.Up(context.Background(), "compose.yml", []string{"frontend"}))
	require.NoError(t, runtime.Down(context.Background(), "compose.yml"))
	require.NoError(t, runtime.Pause(context.Background(), "compose.yml", "frontend"))
	require.NoError(t, runtime.Kill(context.Background(), "compose.yml", "frontend", "SIGKILL"))

	commands := *recorded
	require.Len(t, commands, 5)
	assert.Equal(t, []string{"compose", "-f", "compose.yml", "build", "frontend", "backend"}, commands[0].args)
	assert.Equal(t, []string{"compose", "-f", "compose.yml", "up", "--detach", "frontend"}, commands[1].args)
	assert.Equal(t, []string{"compose", "-f", "compose.yml", "down", "--volumes", "--remove-orphans"}, commands[2].args)
	assert.Equal(t, []string{"compose", "-f", "compose.yml", "pause", "frontend"}, commands[3].args)
	assert.Equal(t, []string{"compose", "-f", "compose.yml", "kill", "--signal", "SIGKILL", "frontend"}, commands[4].args)
	for _, command := range commands {
		assert.Equal(t, "docker", command.name)
	}
}

func TestComposeRuntimeExecUsesNoTTY(t *testing.T) {
	runtime, recorded := newStubbedCompose(nil)

	_, err := runtime.Exec(context.Background(), "compose.yml", "frontend", []string{"tc", "qdisc", "show"})
	require.NoError(t, err)

	commands := *recorded
	require.Len(t, commands, 1)
	assert.Equal(t, []string{"compose", "-f", "compose.yml", "exec", "-T", "frontend", "tc", "qdisc", "show"}, commands[0].args)
}

func TestComposeRuntimeIsHealthy(t *testing.T) {
	testCases := []struct {
		inspect string
		healthy bool
	}{
		{inspect: "running;healthy\n", healthy: true},
		{inspect: "running;unhealthy\n", healthy: false},
		{inspect: "running;starting\n", healthy: false},
		// no healthcheck declared, running is good enough
		{inspect: "running;\n", healthy: true},
		{inspect: "exited;\n", healthy: false},
	}

	for _, tc := range testCases {
		runtime, _ := newStubbedCompose(map[string]ExecResult{
			"compose -f compose.yml ps -q frontend": {Stdout: "abc123\n"},
			"inspect --format {{.State.Status}};{{if .State.Health}}{{.State.Health.Status}}{{end}} abc123": {Stdout: tc.inspect},
		})
		healthy, err := runtime.IsHealthy(context.Background(), "compose.yml", "frontend")
		require.NoError(t, err)
		assert.Equal(t, tc.healthy, healthy, "inspect output %q", tc.inspect)
	}
}

func TestComposeRuntimeIsHealthyNoContainer(t *testing.T) {
	runtime, _ := newStubbedCompose(map[string]ExecResult{
		"compose -f compose.yml ps -q frontend": {Stdout: "\n"},
	})

	_, err := runtime.IsHealthy(context.Background(), "compose.yml", "frontend")
	assert.Error(t, err)
}

func TestParseStatsLine(t *testing.T) {
	stats, err := parseStatsLine("0.15%;21.5MiB / 7.6GiB;1.2kB / 648B")
	require.NoError(t, err)

	assert.InDelta(t, 0.15, stats.CPUPercent, 0.001)
	assert.Equal(t, uint64(21.5*(1<<20)), stats.MemoryBytes)
	assert.Equal(t, uint64(1200), stats.NetRxBytes)
	assert.Equal(t, uint64(648), stats.NetTxBytes)
}

func TestParseStatsLineRejectsGarbage(t *testing.T) {
	for _, line := range []string{"", "1%;2MiB", "x%;1MiB / 2MiB;1kB / 2kB", "1%;1parsec / 2MiB;1kB / 2kB"} {
		_, err := parseStatsLine(line)
		assert.Error(t, err, "line %q", line)
	}
}
