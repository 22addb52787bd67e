// Package runner runs a single ansible module against one host through an engine
// and turns the outcome into exactly one result or a typed error.
package runner

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/andrej220/ansirun/pkg/engine"
	"github.com/andrej220/ansirun/pkg/lg"
)

//go:embed ansible.cfg
var bundledAnsibleConfig []byte

// Runner executes modules on its target host. It holds no mutable state, so a
// Runner may be shared between goroutines.
type Runner struct {
	cfg           Config
	engine        engine.Engine
	base          lg.Logger
	logger        lg.Logger
	ansibleConfig string
}

// New validates cfg and resolves the ansible.cfg the engine will use.
func New(cfg Config, eng engine.Engine, logger lg.Logger) (*Runner, error) {
	if eng == nil {
		return nil, errors.New("runner: engine must not be nil")
	}
	if logger == nil {
		logger = lg.Discard
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ansibleConfig := cfg.AnsibleConfig
	if ansibleConfig == "" {
		path, err := bundledAnsibleConfigPath()
		if err != nil {
			return nil, err
		}
		ansibleConfig = path
	}

	return &Runner{
		cfg:           cfg,
		engine:        eng,
		base:          logger,
		logger:        logger.With(lg.String("target_host", cfg.TargetHost)),
		ansibleConfig: ansibleConfig,
	}, nil
}

// Config returns a copy of the runner configuration.
func (r *Runner) Config() Config {
	return r.cfg
}

// WithTargetHost returns an independent Runner for host sharing the engine and logger.
func (r *Runner) WithTargetHost(host string) (*Runner, error) {
	cfg := r.cfg
	cfg.TargetHost = host
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Runner{
		cfg:           cfg,
		engine:        r.engine,
		base:          r.base,
		logger:        r.base.With(lg.String("target_host", host)),
		ansibleConfig: r.ansibleConfig,
	}, nil
}

// Execute runs module with arguments on the target host and returns its single result.
// An empty module means DefaultModule. A *RunnerError is retried according to the
// retry policy; a *UnexpectedItemCountError and engine failures are returned at once.
func (r *Runner) Execute(ctx context.Context, module, arguments string) (Result, error) {
	if module == "" {
		module = DefaultModule
	}

	var result Result
	operation := func() error {
		res, err := r.execute(ctx, module, arguments)
		if err != nil {
			var runErr *RunnerError
			if errors.As(err, &runErr) {
				return err
			}
			return backoff.Permanent(err)
		}
		result = res
		return nil
	}
	notify := func(err error, next time.Duration) {
		r.logger.Warn("Retrying ansible runner",
			lg.String("module", module),
			lg.String("arguments", arguments),
			lg.Duration("backoff", next),
			lg.Err(err))
	}

	if err := backoff.RetryNotify(operation, r.backOff(ctx), notify); err != nil {
		return nil, err
	}
	r.logger.Debug("Executed ansible runner", lg.String("module", module), lg.String("arguments", arguments))
	return result, nil
}

func (r *Runner) backOff(ctx context.Context) backoff.BackOff {
	p := r.cfg.Retry
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval.Duration
	b.MaxInterval = p.MaxInterval.Duration
	b.Multiplier = p.Multiplier
	b.MaxElapsedTime = 0
	retries := uint64(0)
	if p.MaxAttempts > 1 {
		retries = uint64(p.MaxAttempts - 1)
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, retries), ctx)
}

// execute performs one engine run.
func (r *Runner) execute(ctx context.Context, module, arguments string) (Result, error) {
	inv := r.invocation(module, arguments)
	r.logger.Debug("Executing ansible runner",
		lg.String("module", module),
		lg.String("arguments", arguments),
		lg.String("ident", inv.Ident))

	out, err := r.engine.Run(ctx, inv)
	if err != nil {
		return nil, report(r.logger, fmt.Errorf("run engine: %w", err))
	}

	results := hostResults(out, r.cfg.TargetHost)
	if len(results) != 1 {
		return nil, report(r.logger, &UnexpectedItemCountError{Items: results, Descriptor: resultsDescriptor})
	}
	r.logger.Debug("Ansible runner finished", lg.Int("rc", out.RC), lg.Any("results", results[0]))

	if out.RC != 0 {
		return nil, report(r.logger, &RunnerError{
			Module:    module,
			Arguments: arguments,
			LogFile:   r.cfg.LogFile,
			RC:        out.RC,
			Stdout:    results[0].Stdout(),
		})
	}
	return results[0], nil
}

// invocation builds a fresh engine invocation; nothing in it is shared between calls.
func (r *Runner) invocation(module, arguments string) engine.Invocation {
	env := map[string]string{
		"MAX_EVENT_RES":  strconv.FormatInt(math.MaxInt64, 10),
		"ANSIBLE_CONFIG": r.ansibleConfig,
	}
	if r.cfg.StdoutCallback != "" && r.cfg.StdoutCallback != DefaultStdoutCallback {
		env["ANSIBLE_STDOUT_CALLBACK"] = r.cfg.StdoutCallback
	}
	if r.cfg.LogFile != "" {
		env["ANSIBLE_LOG_PATH"] = r.cfg.LogFile
	}

	return engine.Invocation{
		Ident:       uuid.NewString(),
		Module:      module,
		Args:        arguments,
		Inventory:   r.cfg.InventoryFile,
		HostPattern: r.cfg.TargetHost,
		Limit:       r.cfg.TargetHost,
		Forks:       r.cfg.Forks,
		Quiet:       r.cfg.Quiet,
		Cmdline:     fmt.Sprintf("--user=%s --timeout=%d", r.cfg.RemoteUser, r.cfg.Timeout),
		Env:         env,
	}
}

var bundled struct {
	once sync.Once
	path string
	err  error
}

// bundledAnsibleConfigPath materializes the bundled ansible.cfg once per process.
func bundledAnsibleConfigPath() (string, error) {
	bundled.once.Do(func() {
		bundled.path, bundled.err = materializeAnsibleConfig(os.TempDir())
	})
	return bundled.path, bundled.err
}

// materializeAnsibleConfig writes the bundled ansible.cfg into a new directory
// under parent that only the current user can access, and returns the file path.
func materializeAnsibleConfig(parent string) (string, error) {
	dir, err := os.MkdirTemp(parent, "ansirun-cfg-")
	if err != nil {
		return "", fmt.Errorf("create ansible.cfg dir: %w", err)
	}
	if err := os.Chmod(dir, 0700); err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("chmod ansible.cfg dir: %w", err)
	}
	path := filepath.Join(dir, "ansible.cfg")
	if err := os.WriteFile(path, bundledAnsibleConfig, 0600); err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("write bundled ansible.cfg: %w", err)
	}
	return path, nil
}
