package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ethereum-optimism/optimism/op-service/httputil"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"

	"github.com/ethereum-optimism/infra/op-testkit/metrics"
)

// Config selects the listen addresses of the service endpoints
type Config struct {
	HealthzAddr string
	Metrics     opmetrics.CLIConfig
}

// Service hosts the healthz and metrics endpoints of a long-running testkit
type Service struct {
	log      log.Logger
	cfg      Config
	registry *prometheus.Registry

	Healthz *HealthzServer
	metrics *httputil.HTTPServer
}

func New(logger log.Logger, cfg Config) *Service {
	if logger == nil {
		logger = log.Root()
	}
	registry := opmetrics.NewRegistry()
	registry.MustRegister(metrics.Collectors()...)

	return &Service{
		log:      logger,
		cfg:      cfg,
		registry: registry,
		Healthz:  NewHealthzServer(logger),
	}
}

// Registry returns the registry holding the testkit collectors
func (s *Service) Registry() *prometheus.Registry {
	return s.registry
}

// Start launches the healthz server and, when enabled, the metrics server
func (s *Service) Start(ctx context.Context) error {
	s.log.Info("service starting")

	s.log.Info("starting healthz server", "addr", s.cfg.HealthzAddr)
	if err := s.Healthz.Start(s.cfg.HealthzAddr); err != nil {
		metrics.RecordErrorDetails("error starting healthz server", err)
		return fmt.Errorf("failed to start healthz server: %w", err)
	}

	if s.cfg.Metrics.Enabled {
		s.log.Info("starting metrics server", "addr", s.cfg.Metrics.ListenAddr, "port", s.cfg.Metrics.ListenPort)
		server, err := opmetrics.StartServer(s.registry, s.cfg.Metrics.ListenAddr, s.cfg.Metrics.ListenPort)
		if err != nil {
			metrics.RecordErrorDetails("error starting metrics server", err)
			return errors.Join(fmt.Errorf("failed to start metrics server: %w", err), s.Healthz.Shutdown(ctx))
		}
		s.log.Info("started metrics server", "endpoint", server.Addr())
		s.metrics = server
	}

	s.log.Info("service started")
	return nil
}

// Shutdown stops every started endpoint
func (s *Service) Shutdown(ctx context.Context) error {
	s.log.Info("service shutting down")

	var result error
	if err := s.Healthz.Shutdown(ctx); err != nil {
		result = errors.Join(result, fmt.Errorf("failed to stop healthz server: %w", err))
	}
	s.log.Info("healthz stopped")

	if s.metrics != nil {
		if err := s.metrics.Stop(ctx); err != nil {
			result = errors.Join(result, fmt.Errorf("failed to stop metrics server: %w", err))
		}
		s.log.Info("metrics stopped")
	}

	s.log.Info("service stopped")
	return result
}
