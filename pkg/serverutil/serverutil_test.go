package serverutil

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingRequest struct {
	Host   string `json:"host" validate:"required"`
	Module string `json:"module"`
}

func echoHandler() http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		req, ok := RequestFromContext[pingRequest](r.Context())
		if !ok {
			http.Error(rw, "no request", http.StatusInternalServerError)
			return
		}
		WriteJSON(rw, http.StatusOK, req)
	})
}

func TestValidationHandler(t *testing.T) {
	h := NewValidationHandler[pingRequest](echoHandler())

	tests := []struct {
		name   string
		body   string
		status int
		want   string
	}{
		{"valid", `{"host":"web-01","module":"ping"}`, http.StatusOK, `{"host":"web-01","module":"ping"}`},
		{"malformed", `{"host":`, http.StatusBadRequest, "Invalid request"},
		{"missing host", `{"module":"ping"}`, http.StatusBadRequest, "Host"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/execute", strings.NewReader(tt.body))
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
		})
	}
}

func TestRequestFromContextMissing(t *testing.T) {
	_, ok := RequestFromContext[pingRequest](context.Background())
	assert.False(t, ok)
}

func TestRunServerShutsDownOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	addrCh := make(chan net.Addr, 1)
	cfg := DefaultServerConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.OnListen = func(a net.Addr) { addrCh <- a }

	done := make(chan error, 1)
	go func() {
		done <- RunServer(ctx, http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
			io.WriteString(rw, "ok")
		}), cfg, nil)
	}()

	var addr net.Addr
	select {
	case addr = <-addrCh:
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Get(fmt.Sprintf("http://%s/", addr))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "ok", string(body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRunServerListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := DefaultServerConfig()
	cfg.Addr = ln.Addr().String()
	err = RunServer(context.Background(), http.NotFoundHandler(), cfg, nil)
	assert.Error(t, err)
}
