package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/andrej220/ansirun/pkg/executor"
	"github.com/andrej220/ansirun/pkg/lg"
	"github.com/andrej220/ansirun/pkg/persistence"
	"github.com/andrej220/ansirun/pkg/runner"
	"github.com/andrej220/ansirun/pkg/serverutil"
	dm "github.com/andrej220/ansirun/pkg/shared-models"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve module runs over HTTP",
	Long:  `Accept execution requests on POST /execute and answer with the execution record. With Kafka configured, POST /submit queues a request for a consume process instead. Metrics are served on /metrics.`,
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := newRegistry()
	eng, err := newEngine(appCfg.Engine, reg, logger)
	if err != nil {
		return err
	}
	base, err := runner.New(appCfg.Runner, eng, logger)
	if err != nil {
		return err
	}
	sinks, closeSinks, err := openSinks(ctx, appCfg, logger)
	if err != nil {
		return err
	}
	defer closeSinks()

	mux := http.NewServeMux()
	mux.Handle("POST /execute", serverutil.NewValidationHandler[dm.Request](newExecuteHandler(runnerFactory(base), sinks)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if len(appCfg.Kafka.Brokers) > 0 && appCfg.Kafka.RequestTopic != "" {
		p := newProducer()
		defer p.Close()
		mux.Handle("POST /submit", serverutil.NewValidationHandler[dm.Request](newSubmitHandler(p)))
	}

	srvCfg := serverutil.DefaultServerConfig()
	srvCfg.Addr = appCfg.Server.Addr
	if appCfg.Server.ShutdownTimeout.Duration > 0 {
		srvCfg.ShutdownTimeout = appCfg.Server.ShutdownTimeout.Duration
	}
	return serverutil.RunServer(ctx, mux, srvCfg, logger)
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

type executeHandler struct {
	factory executor.Factory
	sink    persistence.Sink
}

func newExecuteHandler(factory executor.Factory, sink persistence.Sink) http.Handler {
	return &executeHandler{factory: factory, sink: sink}
}

// ServeHTTP runs the validated request and answers with its record: 200 when the
// module succeeded, 500 otherwise.
func (h *executeHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	req, ok := serverutil.RequestFromContext[dm.Request](r.Context())
	if !ok {
		http.Error(rw, "Internal server error", http.StatusInternalServerError)
		return
	}
	rec, err := executor.NewRequestTask(req, h.factory, h.sink).Execute(r.Context())
	status := http.StatusOK
	if err != nil {
		lg.FromContext(r.Context()).Warn("Execution failed", lg.String("exuid", rec.ExecutionUID.String()), lg.Err(err))
		status = http.StatusInternalServerError
	}
	serverutil.WriteJSON(rw, status, rec)
}
