package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/andrej220/ansirun/pkg/lg"
	"github.com/andrej220/ansirun/pkg/serverutil"
	dm "github.com/andrej220/ansirun/pkg/shared-models"
)

var submitHosts []string

var submitCmd = &cobra.Command{
	Use:   "submit --hosts a,b,c [module] [arguments]",
	Short: "Queue requests on the Kafka request topic",
	Long:  `Publish one execution request per host to the Kafka request topic for a consume process to run, and print the queued requests.`,
	Args:  cobra.MaximumNArgs(2),
	RunE:  runSubmit,
}

func init() {
	rootCmd.AddCommand(submitCmd)
	submitCmd.Flags().StringSliceVar(&submitHosts, "hosts", nil, "comma separated target hosts (default is the configured target host)")
}

type requestSubmitter interface {
	Submit(ctx context.Context, req dm.Request) (dm.Request, error)
}

func runSubmit(cmd *cobra.Command, args []string) error {
	if len(appCfg.Kafka.Brokers) == 0 || appCfg.Kafka.RequestTopic == "" {
		return fmt.Errorf("submit needs kafka.brokers and kafka.requestTopic")
	}
	module, arguments := moduleArgs(args)
	hosts := submitHosts
	if len(hosts) == 0 {
		hosts = []string{appCfg.Runner.TargetHost}
	}

	p := newProducer()
	defer p.Close()

	queued, err := submitRequests(cmd.Context(), p, hosts, module, arguments)
	if perr := printJSON(cmd.OutOrStdout(), queued); perr != nil && err == nil {
		err = perr
	}
	return err
}

// submitRequests queues one request per host and stops at the first failure.
func submitRequests(ctx context.Context, s requestSubmitter, hosts []string, module, arguments string) ([]dm.Request, error) {
	queued := make([]dm.Request, 0, len(hosts))
	for _, host := range hosts {
		req, err := s.Submit(ctx, dm.Request{Host: host, Module: module, Arguments: arguments})
		if err != nil {
			return queued, err
		}
		queued = append(queued, req)
	}
	return queued, nil
}

type submitHandler struct {
	submitter requestSubmitter
}

func newSubmitHandler(s requestSubmitter) http.Handler {
	return &submitHandler{submitter: s}
}

// ServeHTTP queues the validated request and answers 202 with its execution UID.
func (h *submitHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	req, ok := serverutil.RequestFromContext[dm.Request](r.Context())
	if !ok {
		http.Error(rw, "Internal server error", http.StatusInternalServerError)
		return
	}
	queued, err := h.submitter.Submit(r.Context(), req)
	if err != nil {
		lg.FromContext(r.Context()).Error("Failed to queue request", lg.Err(err))
		http.Error(rw, "Failed to process request", http.StatusInternalServerError)
		return
	}
	serverutil.WriteJSON(rw, http.StatusAccepted, queued)
}
