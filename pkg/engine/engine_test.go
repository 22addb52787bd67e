package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestHostEventsFiltersAndOrders(t *testing.T) {
	out := &Outcome{Events: []Event{
		{Counter: 3, EventData: EventData{Host: "web-01", Task: "late"}},
		{Counter: 1, EventData: EventData{Host: "web-02"}},
		{Counter: 2, EventData: EventData{Host: "web-01", Task: "early"}},
		{Counter: 4, Event: "playbook_on_stats"},
	}}

	events := out.HostEvents("web-01")
	require.Len(t, events, 2)
	assert.Equal(t, "early", events[0].EventData.Task)
	assert.Equal(t, "late", events[1].EventData.Task)

	assert.Empty(t, out.HostEvents("db-01"))
	assert.Nil(t, (*Outcome)(nil).HostEvents("web-01"))
}

func TestBuildArgs(t *testing.T) {
	inv := Invocation{
		Ident:       "id-1",
		Module:      "command",
		Args:        "echo hi",
		Inventory:   "/etc/ansible/hosts",
		HostPattern: "web-01",
		Limit:       "web-01",
		Forks:       2,
		Quiet:       true,
		Cmdline:     "--user=root --timeout=5",
	}
	assert.Equal(t, []string{
		"run", "/tmp/pdd", "--ident", "id-1", "-m", "command", "--hosts", "web-01",
		"-a", "echo hi",
		"--inventory", "/etc/ansible/hosts",
		"--limit", "web-01",
		"--forks", "2",
		"--cmdline", "--user=root --timeout=5",
		"--quiet",
	}, buildArgs("/tmp/pdd", inv))
}

func TestBuildArgsMinimal(t *testing.T) {
	inv := Invocation{Ident: "id-2", Module: "ping", HostPattern: "localhost"}
	assert.Equal(t, []string{"run", "/tmp/pdd", "--ident", "id-2", "-m", "ping", "--hosts", "localhost"},
		buildArgs("/tmp/pdd", inv))
}

func TestWriteEnvVars(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, writeEnvVars(dir, map[string]string{"MAX_EVENT_RES": "9223372036854775807"}))

	data, err := os.ReadFile(filepath.Join(dir, "env", "envvars"))
	require.NoError(t, err)
	var env map[string]string
	require.NoError(t, yaml.Unmarshal(data, &env))
	assert.Equal(t, "9223372036854775807", env["MAX_EVENT_RES"])

	empty := t.TempDir()
	require.NoError(t, writeEnvVars(empty, nil))
	_, err = os.Stat(filepath.Join(empty, "env"))
	assert.True(t, os.IsNotExist(err))
}

func TestEnvList(t *testing.T) {
	assert.Equal(t, []string{"A=1", "B=2"}, envList(map[string]string{"B": "2", "A": "1"}))
}

func writeArtifacts(t *testing.T, dir string, rc string, events map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "job_events"), 0755))
	if rc != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "rc"), []byte(rc), 0644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "status"), []byte("successful\n"), 0644))
	for name, body := range events {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "job_events", name), []byte(body), 0644))
	}
}

func TestLoadArtifacts(t *testing.T) {
	dir := t.TempDir()
	writeArtifacts(t, dir, "2\n", map[string]string{
		"2-b.json": `{"uuid":"b","counter":2,"event":"runner_on_ok","event_data":{"host":"localhost","res":{"stdout":"hi","rc":0}}}`,
		"1-a.json": `{"uuid":"a","counter":1,"event":"playbook_on_start","event_data":{}}`,
	})

	out, err := loadArtifacts(dir, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, out.RC)
	assert.Equal(t, "successful", out.Status)
	require.Len(t, out.Events, 2)
	assert.Equal(t, "a", out.Events[0].UUID)
	assert.Equal(t, "hi", out.Events[1].EventData.Res["stdout"])
}

func TestLoadArtifactsFallbackRC(t *testing.T) {
	out, err := loadArtifacts(filepath.Join(t.TempDir(), "missing"), 4)
	require.NoError(t, err)
	assert.Equal(t, 4, out.RC)
	assert.Empty(t, out.Events)
}

func TestLoadArtifactsBadEvent(t *testing.T) {
	dir := t.TempDir()
	writeArtifacts(t, dir, "0", map[string]string{"1-x.json": "{not json"})
	_, err := loadArtifacts(dir, 0)
	assert.ErrorContains(t, err, "decode job event")
}

const fakeRunner = `#!/bin/sh
# args: run <pdd> --ident <id> ...
pdd="$2"
ident="$4"
art="$pdd/artifacts/$ident"
mkdir -p "$art/job_events"
test -f "$pdd/env/envvars" || exit 9
printf '{"counter":1,"event":"runner_on_ok","event_data":{"host":"localhost","res":{"stdout":"%s"}}}' "$FAKE_STDOUT" > "$art/job_events/1-x.json"
echo 0 > "$art/rc"
exit 0
`

func TestAnsibleRunnerRunWithFakeBinary(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script fake")
	}
	bin := filepath.Join(t.TempDir(), "ansible-runner")
	require.NoError(t, os.WriteFile(bin, []byte(fakeRunner), 0755))

	work := t.TempDir()
	a := NewAnsibleRunner(WithBinary(bin), WithWorkDir(work))
	out, err := a.Run(context.Background(), Invocation{
		Module:      "command",
		Args:        "echo hi",
		HostPattern: "localhost",
		Env:         map[string]string{"FAKE_STDOUT": "hi"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, out.RC)
	events := out.HostEvents("localhost")
	require.Len(t, events, 1)
	assert.Equal(t, "hi", events[0].EventData.Res["stdout"])

	entries, err := os.ReadDir(work)
	require.NoError(t, err)
	assert.Empty(t, entries, "private data dir should be removed")
}

func TestAnsibleRunnerMissingBinary(t *testing.T) {
	a := NewAnsibleRunner(WithBinary(filepath.Join(t.TempDir(), "nope")))
	_, err := a.Run(context.Background(), Invocation{Module: "ping", HostPattern: "localhost"})
	assert.Error(t, err)
}

type failingEngine struct{ calls int }

func (f *failingEngine) Run(context.Context, Invocation) (*Outcome, error) {
	f.calls++
	return nil, errors.New("exec: not found")
}

func TestWithBreakerTrips(t *testing.T) {
	next := &failingEngine{}
	settings := DefaultBreakerSettings("test")
	settings.ReadyToTrip = func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 2 }
	eng := WithBreaker(next, settings)

	for i := 0; i < 2; i++ {
		_, err := eng.Run(context.Background(), Invocation{})
		assert.EqualError(t, err, "exec: not found")
	}
	_, err := eng.Run(context.Background(), Invocation{})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, next.calls)
}

// ctxEngine fails only when the caller context is done.
type ctxEngine struct{ calls int }

func (c *ctxEngine) Run(ctx context.Context, _ Invocation) (*Outcome, error) {
	c.calls++
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("run ansible-runner: %w", err)
	}
	return &Outcome{}, nil
}

func TestWithBreakerIgnoresCallerCancellation(t *testing.T) {
	next := &ctxEngine{}
	eng := WithBreaker(next, DefaultBreakerSettings("test"))

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	expired, cancelExpired := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancelExpired()

	for i := 0; i < 6; i++ {
		_, err := eng.Run(canceled, Invocation{})
		assert.ErrorIs(t, err, context.Canceled)
		_, err = eng.Run(expired, Invocation{})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	}

	out, err := eng.Run(context.Background(), Invocation{})
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Equal(t, 13, next.calls)
}

func TestWithBreakerDefaultsIsSuccessful(t *testing.T) {
	next := &ctxEngine{}
	settings := DefaultBreakerSettings("test")
	settings.IsSuccessful = nil
	settings.ReadyToTrip = func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 1 }
	eng := WithBreaker(next, settings)

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := eng.Run(canceled, Invocation{})
	assert.ErrorIs(t, err, context.Canceled)

	_, err = eng.Run(context.Background(), Invocation{})
	assert.NoError(t, err)
}

type okEngine struct{}

func (okEngine) Run(context.Context, Invocation) (*Outcome, error) {
	return &Outcome{RC: 2}, nil
}

func TestWithBreakerPassesOutcome(t *testing.T) {
	eng := WithBreaker(okEngine{}, DefaultBreakerSettings("test"))
	out, err := eng.Run(context.Background(), Invocation{})
	require.NoError(t, err)
	assert.Equal(t, 2, out.RC)
}
