package serverutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/andrej220/ansirun/pkg/lg"
)

// ServerConfig holds configuration for the HTTP server.
type ServerConfig struct {
	Addr            string         `yaml:"addr" json:"addr"`
	ReadTimeout     time.Duration  `yaml:"-" json:"-"`
	WriteTimeout    time.Duration  `yaml:"-" json:"-"`
	IdleTimeout     time.Duration  `yaml:"-" json:"-"`
	ShutdownTimeout time.Duration  `yaml:"-" json:"-"`
	OnListen        func(net.Addr) `yaml:"-" json:"-"`
}

// DefaultServerConfig provides default server configuration values. WriteTimeout
// is generous because a handler may wait on several engine attempts.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            ":8081",
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    5 * time.Minute,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// RunServer serves handler until ctx is done, then shuts down gracefully.
func RunServer(ctx context.Context, handler http.Handler, config ServerConfig, logger lg.Logger) error {
	if logger == nil {
		logger = lg.Discard
	}
	def := DefaultServerConfig()
	if config.Addr == "" {
		config.Addr = def.Addr
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = def.ShutdownTimeout
	}

	ln, err := net.Listen("tcp", config.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", config.Addr, err)
	}
	server := &http.Server{
		Handler:      handler,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return lg.Attach(context.Background(), logger) },
	}
	if config.OnListen != nil {
		config.OnListen(ln.Addr())
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting", lg.String("addr", ln.Addr().String()))
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("Server stopping")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info("Server stopped gracefully")
	return nil
}

type requestKey struct{}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidationHandler decodes a JSON body into T, validates it and hands it to next.
type ValidationHandler[T any] struct {
	next http.Handler
}

func NewValidationHandler[T any](next http.Handler) http.Handler {
	return &ValidationHandler[T]{next: next}
}

func (h *ValidationHandler[T]) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var request T
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(rw, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return
	}
	if err := validate.Struct(request); err != nil {
		http.Error(rw, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return
	}

	ctx := context.WithValue(r.Context(), requestKey{}, request)
	h.next.ServeHTTP(rw, r.WithContext(ctx))
}

// RequestFromContext returns the request stored by a ValidationHandler[T].
func RequestFromContext[T any](ctx context.Context) (T, bool) {
	req, ok := ctx.Value(requestKey{}).(T)
	return req, ok
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
