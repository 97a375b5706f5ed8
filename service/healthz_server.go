package service

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/log"
	"github.com/rs/cors"

	"github.com/ethereum-optimism/infra/op-testkit/metrics"
)

// HealthzServer answers liveness probes. It also reports the outcome of the
// most recent suite run on /healthz/suite.
type HealthzServer struct {
	log      log.Logger
	server   *http.Server
	listener net.Listener
	// lastRun is 0 before the first run, then 1 for a pass and 2 for a failure
	lastRun atomic.Int32
}

// NewHealthzServer creates a healthz server logging to logger
func NewHealthzServer(logger log.Logger) *HealthzServer {
	if logger == nil {
		logger = log.Root()
	}
	return &HealthzServer{log: logger.New("component", "healthz")}
}

// Start binds addr and serves in the background until Shutdown
func (h *HealthzServer) Start(addr string) error {
	hdlr := http.NewServeMux()
	hdlr.HandleFunc("/healthz", h.Handle)
	hdlr.HandleFunc("/healthz/suite", h.HandleSuite)
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	h.listener = listener
	h.server = &http.Server{
		Handler: c.Handler(hdlr),
	}

	go func() {
		if err := h.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.log.Error("healthz server stopped", "err", err)
			metrics.RecordErrorDetails("healthz server stopped", err)
		}
	}()
	return nil
}

// Addr returns the address the server is bound to, nil before Start
func (h *HealthzServer) Addr() net.Addr {
	if h.listener == nil {
		return nil
	}
	return h.listener.Addr()
}

// Shutdown stops the server gracefully
func (h *HealthzServer) Shutdown(ctx context.Context) error {
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}

// SetSuiteResult records the outcome of the latest suite run
func (h *HealthzServer) SetSuiteResult(ok bool) {
	if ok {
		h.lastRun.Store(1)
	} else {
		h.lastRun.Store(2)
	}
}

func (h *HealthzServer) Handle(w http.ResponseWriter, r *http.Request) {
	h.log.Trace("Received health check request", "path", r.URL.Path)
	w.Write([]byte("OK")) //nolint:errcheck
}

func (h *HealthzServer) HandleSuite(w http.ResponseWriter, r *http.Request) {
	switch h.lastRun.Load() {
	case 0:
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte("PENDING")) //nolint:errcheck
	case 1:
		w.Write([]byte("PASS")) //nolint:errcheck
	default:
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("FAIL")) //nolint:errcheck
	}
}
