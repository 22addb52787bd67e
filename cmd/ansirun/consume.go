package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/andrej220/ansirun/pkg/consumer"
	"github.com/andrej220/ansirun/pkg/engine"
	"github.com/andrej220/ansirun/pkg/executor"
	"github.com/andrej220/ansirun/pkg/lg"
	"github.com/andrej220/ansirun/pkg/metrics"
	"github.com/andrej220/ansirun/pkg/persistence"
	"github.com/andrej220/ansirun/pkg/runner"
	"github.com/andrej220/ansirun/pkg/serverutil"
	dm "github.com/andrej220/ansirun/pkg/shared-models"
	"github.com/andrej220/ansirun/pkg/workerpool"
)

const readRetryDelay = time.Second

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Run requests read from Kafka",
	Long:  `Read execution requests from the Kafka request topic, run them on a bounded worker pool and store the records in the configured sinks. The runner section is reloaded when the config file changes.`,
	Args:  cobra.NoArgs,
	RunE:  runConsume,
}

func init() {
	rootCmd.AddCommand(consumeCmd)
}

// reloadableRunner hands out runners built from the latest runner config.
type reloadableRunner struct {
	engine engine.Engine
	logger lg.Logger
	base   atomic.Pointer[runner.Runner]
}

func newReloadableRunner(cfg runner.Config, eng engine.Engine, logger lg.Logger) (*reloadableRunner, error) {
	rr := &reloadableRunner{engine: eng, logger: logger}
	if err := rr.Reload(cfg); err != nil {
		return nil, err
	}
	return rr, nil
}

// Reload swaps in a runner for cfg. Runs already in progress keep their runner.
func (rr *reloadableRunner) Reload(cfg runner.Config) error {
	r, err := runner.New(cfg, rr.engine, rr.logger)
	if err != nil {
		return err
	}
	rr.base.Store(r)
	return nil
}

func (rr *reloadableRunner) Factory(host string) (executor.Executor, error) {
	return runnerFactory(rr.base.Load())(host)
}

func runConsume(cmd *cobra.Command, _ []string) error {
	if len(appCfg.Kafka.Brokers) == 0 || appCfg.Kafka.RequestTopic == "" {
		return fmt.Errorf("consume needs kafka.brokers and kafka.requestTopic")
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = lg.Attach(ctx, logger)

	reg := newRegistry()
	eng, err := newEngine(appCfg.Engine, reg, logger)
	if err != nil {
		return err
	}
	runners, err := newReloadableRunner(appCfg.Runner, eng, logger)
	if err != nil {
		return err
	}
	stopWatch := watchConfig(runners)
	defer stopWatch()

	if appCfg.Metrics.Addr != "" {
		go func() {
			srvCfg := serverutil.DefaultServerConfig()
			srvCfg.Addr = appCfg.Metrics.Addr
			if err := serverutil.RunServer(ctx, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), srvCfg, logger); err != nil {
				logger.Error("Metrics server failed", lg.Err(err))
			}
		}()
	}

	sinks, closeSinks, err := openSinks(ctx, appCfg, logger)
	if err != nil {
		return err
	}
	defer closeSinks()

	pool := workerpool.NewPool[dm.Request](appCfg.Workers)
	defer pool.Stop()
	if err := metrics.RegisterActiveWorkers(reg, pool.ActiveWorkers); err != nil {
		return err
	}

	cons := consumer.NewConsumer[dm.Request](appCfg.Kafka.consumer())
	defer cons.Close()

	logger.Info("Consuming requests",
		lg.Any("brokers", appCfg.Kafka.Brokers),
		lg.String("topic", appCfg.Kafka.RequestTopic),
		lg.Int("workers", appCfg.Workers))
	return consumeLoop(ctx, cons, pool, runners.Factory, sinks, appCfg.JobTimeout.Duration)
}

type requestReader interface {
	Read(ctx context.Context) (dm.Request, error)
}

// consumeLoop submits every request read from r to pool until ctx is done.
// Each job runs under its own context, bounded by timeout when it is positive.
func consumeLoop(ctx context.Context, r requestReader, pool *workerpool.Pool[dm.Request],
	factory executor.Factory, sink persistence.Sink, timeout time.Duration) error {
	run := func(ctx context.Context, req dm.Request) error {
		_, err := executor.NewRequestTask(req, factory, sink).Execute(ctx)
		return err
	}

	for {
		req, err := r.Read(ctx)
		if ctx.Err() != nil {
			logger.Info("Consumer stopping")
			return nil
		}
		if err != nil {
			var decErr *consumer.DecodeError
			if errors.As(err, &decErr) {
				logger.Warn("Skipping malformed request", lg.Err(err))
				continue
			}
			logger.Error("Failed to read request", lg.Err(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(readRetryDelay):
			}
			continue
		}

		logger.Debug("Received request", lg.Any("request", req))
		jobCtx, cancel := jobContext(ctx, timeout)
		job := workerpool.Job[dm.Request]{Payload: req, Fn: run, Ctx: jobCtx, CleanupFunc: cancel}
		if err := pool.Submit(job); err != nil {
			cancel()
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func jobContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

// watchConfig reloads the runner section whenever the config file changes and
// returns a function that stops watching. Stores that cannot be watched leave
// the runner config fixed.
func watchConfig(runners *reloadableRunner) func() {
	noop := func() {}
	path := cfgFile
	if path == "" {
		if _, err := os.Stat(CONFIGFILENAME); err != nil {
			return noop
		}
		path = CONFIGFILENAME
	}
	store, err := openConfigStore(path)
	if err != nil {
		logger.Warn("Config reload disabled", lg.Err(err))
		return noop
	}
	err = store.Watch(func() {
		cfg, err := loadAppConfig(path)
		if err != nil {
			logger.Warn("Ignoring config change", lg.Err(err))
			return
		}
		applyOverrides(cfg, rootCmd.PersistentFlags())
		if err := runners.Reload(cfg.Runner); err != nil {
			logger.Warn("Ignoring config change", lg.Err(err))
			return
		}
		logger.Info("Runner config reloaded", lg.String("target_host", cfg.Runner.TargetHost))
	})
	if err != nil {
		logger.Warn("Config reload disabled", lg.Err(err))
		store.Close(context.Background())
		return noop
	}
	return func() { store.Close(context.Background()) }
}
