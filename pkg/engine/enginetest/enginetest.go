// Package enginetest provides a scripted in-memory engine for testing.
package enginetest

import (
	"context"
	"sync"

	"github.com/andrej220/ansirun/pkg/engine"
)

// Step is one scripted reply.
type Step struct {
	Outcome *engine.Outcome
	Err     error
}

// Engine replays queued steps in order and records every invocation.
// Once the queue is exhausted the last step repeats. Safe for concurrent use.
type Engine struct {
	mu    sync.Mutex
	steps []Step
	next  int
	calls []engine.Invocation

	// Handler, when set, is used instead of the queued steps.
	Handler func(ctx context.Context, inv engine.Invocation) (*engine.Outcome, error)
}

func New(steps ...Step) *Engine {
	return &Engine{steps: steps}
}

func (e *Engine) Run(ctx context.Context, inv engine.Invocation) (*engine.Outcome, error) {
	e.mu.Lock()
	e.calls = append(e.calls, inv)
	handler := e.Handler
	var step Step
	if handler == nil && len(e.steps) > 0 {
		idx := e.next
		if idx >= len(e.steps) {
			idx = len(e.steps) - 1
		} else {
			e.next++
		}
		step = e.steps[idx]
	}
	e.mu.Unlock()

	if handler != nil {
		return handler(ctx, inv)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return step.Outcome, step.Err
}

// Calls returns a copy of the recorded invocations.
func (e *Engine) Calls() []engine.Invocation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]engine.Invocation(nil), e.calls...)
}

// Outcome builds an outcome whose events carry the given results for host.
// A nil result produces an event without a payload.
func Outcome(rc int, host string, results ...map[string]any) *engine.Outcome {
	out := &engine.Outcome{RC: rc, Status: "successful"}
	if rc != 0 {
		out.Status = "failed"
	}
	for i, res := range results {
		out.Events = append(out.Events, engine.Event{
			Counter:   i + 1,
			Event:     "runner_on_ok",
			EventData: engine.EventData{Host: host, Res: res},
		})
	}
	return out
}
