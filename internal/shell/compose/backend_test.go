package compose

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

type call struct {
	name string
	args []string
}

// fakeRunner records commands instead of executing them.
type fakeRunner struct {
	calls []call
	out   string
	err   error
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (string, error) {
	f.calls = append(f.calls, call{name: name, args: args})
	return f.out, f.err
}

func setupBackend(t *testing.T) (*CLIBackend, *fakeRunner) {
	t.Helper()
	runner := &fakeRunner{}
	backend, err := NewCLIBackend(runner, "/srv/app/docker-compose.yml", "myproj", nil)
	require.NoError(t, err)
	return backend, runner
}

// =============================================================================
// Command Construction Tests
// =============================================================================

func TestNewCLIBackend_RequiresComposeFile(t *testing.T) {
	_, err := NewCLIBackend(nil, "", "proj", nil)
	assert.Error(t, err)
}

func TestUp_BuildsExpectedCommand(t *testing.T) {
	backend, runner := setupBackend(t)

	require.NoError(t, backend.Up(context.Background()))

	require.Len(t, runner.calls, 1)
	assert.Equal(t, "docker", runner.calls[0].name)
	assert.Equal(t,
		[]string{"compose", "-f", "/srv/app/docker-compose.yml", "-p", "myproj", "up", "-d", "--remove-orphans"},
		runner.calls[0].args)
}

func TestUp_NamedServices(t *testing.T) {
	backend, runner := setupBackend(t)

	require.NoError(t, backend.Up(context.Background(), "api", "web"))

	args := runner.calls[0].args
	assert.Equal(t, []string{"api", "web"}, args[len(args)-2:])
}

func TestStop_IncludesTimeout(t *testing.T) {
	backend, runner := setupBackend(t)

	require.NoError(t, backend.Stop(context.Background(), 30*time.Second, "db"))

	assert.Equal(t,
		[]string{"compose", "-f", "/srv/app/docker-compose.yml", "-p", "myproj", "stop", "-t", "30", "db"},
		runner.calls[0].args)
}

func TestStop_ZeroTimeoutOmitsFlag(t *testing.T) {
	backend, runner := setupBackend(t)

	require.NoError(t, backend.Stop(context.Background(), 0))

	assert.Equal(t,
		[]string{"compose", "-f", "/srv/app/docker-compose.yml", "-p", "myproj", "stop"},
		runner.calls[0].args)
}

func TestKillAndPull(t *testing.T) {
	backend, runner := setupBackend(t)

	require.NoError(t, backend.Kill(context.Background(), "web"))
	require.NoError(t, backend.Pull(context.Background()))

	assert.Equal(t, "kill", runner.calls[0].args[5])
	assert.Equal(t, "web", runner.calls[0].args[6])
	assert.Equal(t, "pull", runner.calls[1].args[5])
}

func TestRestart_IncludesTimeout(t *testing.T) {
	backend, runner := setupBackend(t)

	require.NoError(t, backend.Restart(context.Background(), 10*time.Second))

	args := runner.calls[0].args
	assert.Equal(t, []string{"restart", "-t", "10"}, args[len(args)-3:])
}

func TestBackend_NoProjectFlagWhenUnset(t *testing.T) {
	runner := &fakeRunner{}
	backend, err := NewCLIBackend(runner, "/srv/app/docker-compose.yml", "", nil)
	require.NoError(t, err)

	require.NoError(t, backend.Up(context.Background()))

	assert.Equal(t,
		[]string{"compose", "-f", "/srv/app/docker-compose.yml", "up", "-d", "--remove-orphans"},
		runner.calls[0].args)
}

// =============================================================================
// Failure Tests
// =============================================================================

func TestRun_WrapsFailureWithOutput(t *testing.T) {
	backend, runner := setupBackend(t)
	runner.err = errors.New("exit status 1")
	runner.out = "no such service: ghost\n"

	err := backend.Up(context.Background(), "ghost")

	require.ErrorIs(t, err, ErrCommandFailed)
	assert.True(t, strings.Contains(err.Error(), "no such service: ghost"))
}

func TestPs_ReturnsRawOutput(t *testing.T) {
	backend, runner := setupBackend(t)
	runner.out = "NAME  STATUS\nweb   running\n"

	out, err := backend.Ps(context.Background())

	require.NoError(t, err)
	assert.Equal(t, runner.out, out)
}
