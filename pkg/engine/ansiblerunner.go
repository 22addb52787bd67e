package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/andrej220/ansirun/pkg/lg"
)

const DefaultBinary = "ansible-runner"

// AnsibleRunner runs ad-hoc modules through the ansible-runner CLI. Each Run gets
// its own private data directory, so one AnsibleRunner can serve concurrent callers.
type AnsibleRunner struct {
	binary        string
	workDir       string
	keepArtifacts bool
	logger        lg.Logger
}

// Option configures an AnsibleRunner.
type Option func(*AnsibleRunner)

// WithBinary sets the ansible-runner executable.
func WithBinary(path string) Option {
	return func(a *AnsibleRunner) {
		if path != "" {
			a.binary = path
		}
	}
}

// WithWorkDir sets where private data directories are created. Defaults to the OS temp dir.
func WithWorkDir(dir string) Option {
	return func(a *AnsibleRunner) { a.workDir = dir }
}

// WithKeepArtifacts leaves private data directories in place after a run.
func WithKeepArtifacts(keep bool) Option {
	return func(a *AnsibleRunner) { a.keepArtifacts = keep }
}

// WithLogger sets the logger for run diagnostics. A nil logger is ignored.
func WithLogger(logger lg.Logger) Option {
	return func(a *AnsibleRunner) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAnsibleRunner returns an engine that runs DefaultBinary with a discarding
// logger unless opts say otherwise.
func NewAnsibleRunner(opts ...Option) *AnsibleRunner {
	a := &AnsibleRunner{
		binary: DefaultBinary,
		logger: lg.Discard,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *AnsibleRunner) Run(ctx context.Context, inv Invocation) (*Outcome, error) {
	if inv.Ident == "" {
		inv.Ident = uuid.NewString()
	}

	dir, err := os.MkdirTemp(a.workDir, "ansirun-")
	if err != nil {
		return nil, fmt.Errorf("create private data dir: %w", err)
	}
	if a.keepArtifacts {
		a.logger.Debug("Keeping ansible-runner artifacts", lg.String("dir", dir))
	} else {
		defer os.RemoveAll(dir)
	}

	if err := writeEnvVars(dir, inv.Env); err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, a.binary, buildArgs(dir, inv)...)
	cmd.Env = append(os.Environ(), envList(inv.Env)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	a.logger.Debug("Starting ansible-runner", lg.String("ident", inv.Ident), lg.Any("args", cmd.Args))
	exitCode := 0
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("run %s: %w", a.binary, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("run %s: %w", a.binary, ctxErr)
		}
		exitCode = exitErr.ExitCode()
	}

	outcome, err := loadArtifacts(filepath.Join(dir, "artifacts", inv.Ident), exitCode)
	if err != nil {
		a.logger.Debug("ansible-runner output",
			lg.String("stdout", stdout.String()),
			lg.String("stderr", stderr.String()))
		return nil, err
	}
	return outcome, nil
}

func buildArgs(dir string, inv Invocation) []string {
	args := []string{"run", dir, "--ident", inv.Ident, "-m", inv.Module, "--hosts", inv.HostPattern}
	if inv.Args != "" {
		args = append(args, "-a", inv.Args)
	}
	if inv.Inventory != "" {
		args = append(args, "--inventory", inv.Inventory)
	}
	if inv.Limit != "" {
		args = append(args, "--limit", inv.Limit)
	}
	if inv.Forks > 0 {
		args = append(args, "--forks", strconv.Itoa(inv.Forks))
	}
	if inv.Cmdline != "" {
		args = append(args, "--cmdline", inv.Cmdline)
	}
	if inv.Quiet {
		args = append(args, "--quiet")
	}
	return args
}

// writeEnvVars stores env in <dir>/env/envvars, where ansible-runner picks it up.
func writeEnvVars(dir string, env map[string]string) error {
	if len(env) == 0 {
		return nil
	}
	envDir := filepath.Join(dir, "env")
	if err := os.MkdirAll(envDir, 0700); err != nil {
		return fmt.Errorf("create env dir: %w", err)
	}
	data, err := yaml.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envvars: %w", err)
	}
	if err := os.WriteFile(filepath.Join(envDir, "envvars"), data, 0600); err != nil {
		return fmt.Errorf("write envvars: %w", err)
	}
	return nil
}

func envList(env map[string]string) []string {
	list := make([]string, 0, len(env))
	for k, v := range env {
		list = append(list, k+"="+v)
	}
	sort.Strings(list)
	return list
}

// loadArtifacts reads rc, status and job events from an ansible-runner artifact directory.
// fallbackRC is used when the rc file is missing.
func loadArtifacts(dir string, fallbackRC int) (*Outcome, error) {
	outcome := &Outcome{RC: fallbackRC}

	if data, err := os.ReadFile(filepath.Join(dir, "rc")); err == nil {
		rc, err := strconv.Atoi(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, fmt.Errorf("parse rc file: %w", err)
		}
		outcome.RC = rc
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read rc file: %w", err)
	}

	if data, err := os.ReadFile(filepath.Join(dir, "status")); err == nil {
		outcome.Status = strings.TrimSpace(string(data))
	}

	files, err := filepath.Glob(filepath.Join(dir, "job_events", "*.json"))
	if err != nil {
		return nil, fmt.Errorf("list job events: %w", err)
	}
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read job event %s: %w", filepath.Base(file), err)
		}
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode job event %s: %w", filepath.Base(file), err)
		}
		outcome.Events = append(outcome.Events, ev)
	}
	sort.SliceStable(outcome.Events, func(i, j int) bool {
		return outcome.Events[i].Counter < outcome.Events[j].Counter
	})
	return outcome, nil
}
