package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/andrej220/ansirun/pkg/config"
	"github.com/andrej220/ansirun/pkg/consumer"
	"github.com/andrej220/ansirun/pkg/runner"
)

const (
	SERVICENAME    = "ansirun"
	CONFIGFILENAME = "ansirun.yaml"

	configDBName   = "ansirun"
	configCollName = "config"
)

type EngineConfig struct {
	Binary        string `yaml:"binary" json:"binary"`
	WorkDir       string `yaml:"workDir,omitempty" json:"workDir,omitempty"`
	KeepArtifacts bool   `yaml:"keepArtifacts" json:"keepArtifacts"`
	Breaker       bool   `yaml:"breaker" json:"breaker"`
}

type LogConfig struct {
	Debug  bool   `yaml:"debug" json:"debug"`
	Format string `yaml:"format" json:"format"`
}

type ServerConfig struct {
	Addr            string          `yaml:"addr" json:"addr"`
	ShutdownTimeout config.Duration `yaml:"shutdownTimeout" json:"shutdownTimeout"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

type KafkaConfig struct {
	Brokers      []string `yaml:"brokers" json:"brokers"`
	RequestTopic string   `yaml:"requestTopic" json:"requestTopic"`
	GroupID      string   `yaml:"groupID" json:"groupID"`
	ResultTopic  string   `yaml:"resultTopic,omitempty" json:"resultTopic,omitempty"`
}

func (k KafkaConfig) consumer() consumer.Config {
	return consumer.Config{Brokers: k.Brokers, Topic: k.RequestTopic, GroupID: k.GroupID}
}

type MongoConfig struct {
	URI        string `yaml:"uri,omitempty" json:"uri,omitempty"`
	DBName     string `yaml:"dbName" json:"dbName"`
	Collection string `yaml:"collection" json:"collection"`
}

type OutputConfig struct {
	Dir string `yaml:"dir,omitempty" json:"dir,omitempty"`
}

// AppConfig is the configuration file of the ansirun command.
type AppConfig struct {
	Runner  runner.Config `yaml:"runner" json:"runner"`
	Engine  EngineConfig  `yaml:"engine" json:"engine"`
	Log     LogConfig     `yaml:"log" json:"log"`
	Server  ServerConfig  `yaml:"server" json:"server"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
	Kafka   KafkaConfig   `yaml:"kafka" json:"kafka"`
	Mongo   MongoConfig   `yaml:"mongo" json:"mongo"`
	Output  OutputConfig  `yaml:"output" json:"output"`
	Workers int           `yaml:"workers" json:"workers"`
	// JobTimeout bounds one consumed request. Zero means no limit.
	JobTimeout config.Duration `yaml:"jobTimeout" json:"jobTimeout"`
}

func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		Runner: runner.DefaultConfig(),
		Engine: EngineConfig{Binary: "ansible-runner", Breaker: true},
		Log:    LogConfig{Format: "json"},
		Server: ServerConfig{
			Addr:            ":8081",
			ShutdownTimeout: config.Duration{Duration: 30 * time.Second},
		},
		Kafka: KafkaConfig{
			RequestTopic: "ansirun-requests",
			GroupID:      "ansirun",
		},
		Mongo:      MongoConfig{DBName: "ansirun", Collection: "records"},
		Workers:    4,
		JobTimeout: config.Duration{Duration: 10 * time.Minute},
	}
}

// openConfigStore returns the store behind path. A MongoDB URI selects the
// document SERVICENAME in the ansirun.config collection.
func openConfigStore(path string) (config.Config, error) {
	return config.Open(path, config.MongoConfig{
		DBName:   configDBName,
		CollName: configCollName,
		ID:       SERVICENAME,
	})
}

// loadAppConfig reads path over the defaults. An empty path falls back to
// CONFIGFILENAME in the working directory when it exists.
func loadAppConfig(path string) (*AppConfig, error) {
	cfg := DefaultAppConfig()
	if path == "" {
		if _, err := os.Stat(CONFIGFILENAME); errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		path = CONFIGFILENAME
	}

	store, err := openConfigStore(path)
	if err != nil {
		return nil, err
	}
	defer store.Close(context.Background())
	if err := store.Load(cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// Validate checks the sections every command depends on.
func (c *AppConfig) Validate() error {
	if err := c.Runner.Validate(); err != nil {
		return err
	}
	if c.Workers < 1 {
		return fmt.Errorf("invalid config: workers must be at least 1, got %d", c.Workers)
	}
	if c.JobTimeout.Duration < 0 {
		return fmt.Errorf("invalid config: jobTimeout must not be negative, got %s", c.JobTimeout)
	}
	return nil
}
