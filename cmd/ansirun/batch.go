package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/andrej220/ansirun/pkg/executor"
	"github.com/andrej220/ansirun/pkg/lg"
	"github.com/andrej220/ansirun/pkg/persistence"
	"github.com/andrej220/ansirun/pkg/runner"
	dm "github.com/andrej220/ansirun/pkg/shared-models"
)

var (
	batchHosts    []string
	batchParallel int
)

var batchCmd = &cobra.Command{
	Use:   "batch --hosts a,b,c [module] [arguments]",
	Short: "Run one module on several hosts",
	Long:  `Run the same module on every host with one independent runner per host and print one record per host.`,
	Args:  cobra.MaximumNArgs(2),
	RunE:  runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)
	batchCmd.Flags().StringSliceVar(&batchHosts, "hosts", nil, "comma separated target hosts (required)")
	batchCmd.Flags().IntVar(&batchParallel, "parallel", 0, "maximum concurrent runs (default is workers from config)")
	batchCmd.MarkFlagRequired("hosts")
}

func runBatch(cmd *cobra.Command, args []string) error {
	module, arguments := moduleArgs(args)

	eng, err := newEngine(appCfg.Engine, nil, logger)
	if err != nil {
		return err
	}
	base, err := runner.New(appCfg.Runner, eng, logger)
	if err != nil {
		return err
	}
	var sink persistence.Sink
	if appCfg.Output.Dir != "" {
		sink = persistence.NewFileSink(appCfg.Output.Dir)
	}

	parallel := batchParallel
	if parallel <= 0 {
		parallel = appCfg.Workers
	}
	records, err := runHosts(cmd.Context(), runnerFactory(base), sink, batchHosts, module, arguments, parallel)
	if err != nil {
		return err
	}
	if err := printJSON(cmd.OutOrStdout(), records); err != nil {
		return err
	}

	failed := 0
	for _, rec := range records {
		if rec.Failed() {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d hosts failed", failed, len(records))
	}
	return nil
}

// runHosts executes module on every host, at most parallel at a time, and returns
// the records in host order. Execution failures are reported in the records.
func runHosts(ctx context.Context, factory executor.Factory, sink persistence.Sink,
	hosts []string, module, arguments string, parallel int) ([]dm.Record, error) {
	records := make([]dm.Record, len(hosts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)

	for i, host := range hosts {
		g.Go(func() error {
			task := executor.NewRequestTask(dm.Request{Host: host, Module: module, Arguments: arguments}, factory, sink)
			rec, err := task.Execute(gctx)
			if err != nil {
				logger.Warn("Host failed", lg.String("host", host), lg.Err(err))
			}
			records[i] = rec
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}
