package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"

	"github.com/ethereum-optimism/infra/op-testkit/metrics"
)

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServiceHealthz(t *testing.T) {
	s := New(log.NewLogger(log.DiscardHandler()), Config{HealthzAddr: "127.0.0.1:0"})
	require.NoError(t, s.Start(context.Background()))
	defer func() {
		require.NoError(t, s.Shutdown(context.Background()))
	}()

	base := fmt.Sprintf("http://%s", s.Healthz.Addr())

	code, body := get(t, base+"/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "OK", body)

	code, body = get(t, base+"/healthz/suite")
	assert.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, "PENDING", body)

	s.Healthz.SetSuiteResult(false)
	code, body = get(t, base+"/healthz/suite")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "FAIL", body)

	s.Healthz.SetSuiteResult(true)
	code, body = get(t, base+"/healthz/suite")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "PASS", body)
}

func TestServiceMetrics(t *testing.T) {
	s := New(log.NewLogger(log.DiscardHandler()), Config{
		HealthzAddr: "127.0.0.1:0",
		Metrics: opmetrics.CLIConfig{
			Enabled:    true,
			ListenAddr: "127.0.0.1",
			ListenPort: 0,
		},
	})
	require.NoError(t, s.Start(context.Background()))
	defer func() {
		require.NoError(t, s.Shutdown(context.Background()))
	}()

	metrics.RecordError("service test")

	code, body := get(t, fmt.Sprintf("http://%s/metrics", s.metrics.Addr()))
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "testkit_errors_total")
}

func TestServiceStartFailsOnBusyAddress(t *testing.T) {
	first := New(log.NewLogger(log.DiscardHandler()), Config{HealthzAddr: "127.0.0.1:0"})
	require.NoError(t, first.Start(context.Background()))
	defer func() {
		_ = first.Shutdown(context.Background())
	}()

	second := New(log.NewLogger(log.DiscardHandler()), Config{HealthzAddr: first.Healthz.Addr().String()})
	err := second.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start healthz server")
}

func TestShutdownBeforeStart(t *testing.T) {
	s := New(nil, Config{})
	assert.NoError(t, s.Shutdown(context.Background()))
	assert.Nil(t, s.Healthz.Addr())
}
