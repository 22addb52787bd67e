package runner

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/andrej220/ansirun/pkg/config"
)

const (
	DefaultTargetHost     = "localhost"
	DefaultForks          = 1
	DefaultQuiet          = true
	DefaultRemoteUser     = "root"
	DefaultTimeout        = 5 // seconds
	DefaultStdoutCallback = "quiet"
	DefaultModule         = "command"
)

// Config is the invocation configuration of a Runner. It is copied into the
// Runner at construction and never modified afterwards.
type Config struct {
	TargetHost     string `yaml:"target_host" json:"target_host" validate:"required"`
	InventoryFile  string `yaml:"inventory_file,omitempty" json:"inventory_file,omitempty"`
	Forks          int    `yaml:"forks" json:"forks" validate:"min=1"`
	Quiet          bool   `yaml:"quiet" json:"quiet"`
	RemoteUser     string `yaml:"remote_user" json:"remote_user" validate:"required"`
	Timeout        int    `yaml:"timeout" json:"timeout" validate:"min=1"` // seconds
	StdoutCallback string `yaml:"stdout_callback" json:"stdout_callback" validate:"required"`
	LogFile        string `yaml:"log_file,omitempty" json:"log_file,omitempty"`

	// AnsibleConfig overrides the bundled ansible.cfg.
	AnsibleConfig string `yaml:"ansible_config,omitempty" json:"ansible_config,omitempty"`

	Retry RetryPolicy `yaml:"retry" json:"retry"`
}

// RetryPolicy bounds how often a failed module run is repeated.
type RetryPolicy struct {
	MaxAttempts     int             `yaml:"max_attempts" json:"max_attempts" validate:"min=1"`
	InitialInterval config.Duration `yaml:"initial_interval" json:"initial_interval"`
	MaxInterval     config.Duration `yaml:"max_interval" json:"max_interval"`
	Multiplier      float64         `yaml:"multiplier" json:"multiplier" validate:"gte=1"`
}

// DefaultRetryPolicy makes three attempts with backoff from 1s doubling up to 10s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: config.Duration{Duration: 1 * time.Second},
		MaxInterval:     config.Duration{Duration: 10 * time.Second},
		Multiplier:      2,
	}
}

// DefaultConfig targets localhost with the default forks, user, timeout and retry policy.
func DefaultConfig() Config {
	return Config{
		TargetHost:     DefaultTargetHost,
		Forks:          DefaultForks,
		Quiet:          DefaultQuiet,
		RemoteUser:     DefaultRemoteUser,
		Timeout:        DefaultTimeout,
		StdoutCallback: DefaultStdoutCallback,
		Retry:          DefaultRetryPolicy(),
	}
}

var validate = validator.New()

// Validate checks the config for values the engine cannot work with.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid runner config: %w", err)
	}
	if c.Retry.InitialInterval.Duration < 0 || c.Retry.MaxInterval.Duration < 0 {
		return fmt.Errorf("invalid runner config: retry intervals must be non-negative")
	}
	if c.Retry.MaxInterval.Duration < c.Retry.InitialInterval.Duration {
		return fmt.Errorf("invalid runner config: retry max_interval %s is below initial_interval %s",
			c.Retry.MaxInterval, c.Retry.InitialInterval)
	}
	return nil
}
