package executor

import (
	"context"

	"github.com/andrej220/ansirun/pkg/runner"
	dm "github.com/andrej220/ansirun/pkg/shared-models"
)

// Executor runs a module on one host, applying retries itself, and returns the
// module result. *runner.Runner implements it.
type Executor interface {
	Execute(ctx context.Context, module, arguments string) (runner.Result, error)
}

// Factory returns an Executor bound to host.
type Factory func(host string) (Executor, error)

// Task is responsible for taking a request + executor, invoking the executor,
// and turning the output into a stored record.
type Task interface {
	Execute(ctx context.Context) (dm.Record, error)
}
