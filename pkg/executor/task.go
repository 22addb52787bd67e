package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/andrej220/ansirun/pkg/lg"
	"github.com/andrej220/ansirun/pkg/persistence"
	"github.com/andrej220/ansirun/pkg/runner"
	dm "github.com/andrej220/ansirun/pkg/shared-models"
)

// RequestTask executes one request and stores its record.
type RequestTask struct {
	Request dm.Request
	New     Factory
	Sink    persistence.Sink // optional
	Now     func() time.Time
}

func NewRequestTask(req dm.Request, factory Factory, sink persistence.Sink) *RequestTask {
	return &RequestTask{Request: req, New: factory, Sink: sink, Now: time.Now}
}

// Execute runs the request. The returned record is always filled in; the error is
// the execution error, or the sink error when the execution itself succeeded.
func (t *RequestTask) Execute(ctx context.Context) (dm.Record, error) {
	req := t.Request
	if req.ExecutionUID == uuid.Nil {
		req.ExecutionUID = uuid.New()
	}
	if req.Module == "" {
		req.Module = runner.DefaultModule
	}
	logger := lg.FromContext(ctx).With(
		lg.String("exuid", req.ExecutionUID.String()),
		lg.String("host", req.Host))

	started := t.Now()
	var res runner.Result
	exec, err := t.New(req.Host)
	if err == nil {
		res, err = exec.Execute(ctx, req.Module, req.Arguments)
	} else {
		err = fmt.Errorf("executor for %s: %w", req.Host, err)
	}
	rec := NewRecord(req, res, err, started, t.Now())
	logger.Debug("Request executed",
		lg.Time("started", rec.Started),
		lg.Duration("elapsed", rec.Finished.Sub(rec.Started)),
		lg.Bool("failed", rec.Failed()))

	if t.Sink != nil {
		if sinkErr := t.Sink.Store(ctx, rec); sinkErr != nil {
			logger.Error("Failed to store record", lg.Err(sinkErr))
			if err == nil {
				err = sinkErr
			}
		}
	}
	return rec, err
}

// NewRecord builds the record of one execution.
func NewRecord(req dm.Request, res runner.Result, err error, started, finished time.Time) dm.Record {
	rec := dm.Record{
		ExecutionUID: req.ExecutionUID,
		Host:         req.Host,
		Module:       req.Module,
		Arguments:    req.Arguments,
		Result:       res,
		Stdout:       res.Stdout(),
		Started:      started,
		Finished:     finished,
	}
	if err != nil {
		rec.Error = err.Error()
		var runErr *runner.RunnerError
		if errors.As(err, &runErr) {
			rec.RC = runErr.RC
			rec.Stdout = runErr.Stdout
		}
	}
	return rec
}
