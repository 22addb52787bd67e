package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/andrej220/ansirun/pkg/lg"
	"github.com/andrej220/ansirun/pkg/runner"
	dm "github.com/andrej220/ansirun/pkg/shared-models"
)

type stubExecutor struct {
	res    runner.Result
	err    error
	module string
	args   string
}

func (s *stubExecutor) Execute(_ context.Context, module, arguments string) (runner.Result, error) {
	s.module, s.args = module, arguments
	return s.res, s.err
}

type recordingSink struct {
	recs []dm.Record
	err  error
}

func (r *recordingSink) Store(_ context.Context, rec dm.Record) error {
	r.recs = append(r.recs, rec)
	return r.err
}

func fixedNow() func() time.Time {
	t0 := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return func() time.Time { return t0 }
}

func TestRequestTaskSuccess(t *testing.T) {
	stub := &stubExecutor{res: runner.Result{"stdout": "hi"}}
	sink := &recordingSink{}
	var gotHost string
	task := NewRequestTask(dm.Request{Host: "web-01", Arguments: "echo hi"},
		func(host string) (Executor, error) { gotHost = host; return stub, nil }, sink)
	task.Now = fixedNow()

	rec, err := task.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "web-01", gotHost)
	assert.Equal(t, "command", stub.module)
	assert.Equal(t, "echo hi", stub.args)
	assert.NotEqual(t, uuid.Nil, rec.ExecutionUID)
	assert.Equal(t, "hi", rec.Stdout)
	assert.False(t, rec.Failed())
	require.Len(t, sink.recs, 1)
	assert.Equal(t, rec, sink.recs[0])
}

func TestRequestTaskLogsOutcome(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	ctx := lg.Attach(context.Background(), lg.FromZap(zap.New(core)))

	task := NewRequestTask(dm.Request{Host: "web-01"},
		func(string) (Executor, error) { return nil, errors.New("no route") }, nil)
	task.Now = fixedNow()
	_, err := task.Execute(ctx)
	require.Error(t, err)

	entries := logs.FilterMessage("Request executed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "web-01", fields["host"])
	assert.Equal(t, true, fields["failed"])
	assert.Equal(t, time.Duration(0), fields["elapsed"])
	started, ok := fields["started"].(time.Time)
	require.True(t, ok)
	assert.True(t, fixedNow()().Equal(started))
}

func TestRequestTaskRunnerError(t *testing.T) {
	stub := &stubExecutor{err: &runner.RunnerError{Module: "command", RC: 2, Stdout: "err"}}
	uid := uuid.New()
	task := NewRequestTask(dm.Request{ExecutionUID: uid, Host: "web-01", Module: "command"},
		func(string) (Executor, error) { return stub, nil }, nil)

	rec, err := task.Execute(context.Background())
	var runErr *runner.RunnerError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, uid, rec.ExecutionUID)
	assert.Equal(t, 2, rec.RC)
	assert.Equal(t, "err", rec.Stdout)
	assert.True(t, rec.Failed())
}

func TestRequestTaskFactoryError(t *testing.T) {
	sink := &recordingSink{}
	task := NewRequestTask(dm.Request{Host: ""},
		func(string) (Executor, error) { return nil, errors.New("invalid host") }, sink)

	rec, err := task.Execute(context.Background())
	assert.ErrorContains(t, err, "invalid host")
	assert.True(t, rec.Failed())
	assert.Len(t, sink.recs, 1, "failures are stored too")
}

func TestRequestTaskSinkError(t *testing.T) {
	stub := &stubExecutor{res: runner.Result{"stdout": "hi"}}
	task := NewRequestTask(dm.Request{Host: "web-01"},
		func(string) (Executor, error) { return stub, nil }, &recordingSink{err: errors.New("disk full")})

	_, err := task.Execute(context.Background())
	assert.EqualError(t, err, "disk full")
}
