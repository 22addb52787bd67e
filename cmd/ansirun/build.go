package main

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/andrej220/ansirun/pkg/engine"
	"github.com/andrej220/ansirun/pkg/executor"
	"github.com/andrej220/ansirun/pkg/lg"
	"github.com/andrej220/ansirun/pkg/metrics"
	"github.com/andrej220/ansirun/pkg/producer"
	"github.com/andrej220/ansirun/pkg/runner"
)

// newEngine builds the ansible-runner engine with the configured breaker and,
// when reg is set, Prometheus instrumentation.
func newEngine(cfg EngineConfig, reg prometheus.Registerer, logger lg.Logger) (engine.Engine, error) {
	var eng engine.Engine = engine.NewAnsibleRunner(
		engine.WithBinary(cfg.Binary),
		engine.WithWorkDir(cfg.WorkDir),
		engine.WithKeepArtifacts(cfg.KeepArtifacts),
		engine.WithLogger(logger),
	)
	if cfg.Breaker {
		eng = engine.WithBreaker(eng, engine.DefaultBreakerSettings(SERVICENAME))
	}
	if reg != nil {
		collector, err := metrics.NewCollector(reg)
		if err != nil {
			return nil, err
		}
		eng = collector.Instrument(eng)
	}
	return eng, nil
}

// runnerFactory returns a factory of per-host runners sharing base's engine.
func runnerFactory(base *runner.Runner) executor.Factory {
	return func(host string) (executor.Executor, error) {
		if host == "" || host == base.Config().TargetHost {
			return base, nil
		}
		return base.WithTargetHost(host)
	}
}

func newProducer() *producer.Producer {
	return producer.New(appCfg.Kafka.Brokers, appCfg.Kafka.RequestTopic, logger)
}
