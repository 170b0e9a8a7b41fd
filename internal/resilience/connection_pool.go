package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// errServerStatus marks a 5xx response so the circuit breaker counts it as a failure.
var errServerStatus = errors.New("server error status")

// PoolConfig sizes a ConnectionPool.
type PoolConfig struct {
	MaxIdle        int           // idle keep-alive connections kept open
	MaxActive      int           // requests allowed in flight at once
	IdleTimeout    time.Duration // how long an idle connection survives
	RequestTimeout time.Duration // whole-request timeout, body included
}

// DefaultPoolConfig returns the sizing used for outbound API clients.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxIdle:        10,
		MaxActive:      20,
		IdleTimeout:    30 * time.Second,
		RequestTimeout: 30 * time.Second,
	}
}

func (c PoolConfig) withDefaults() PoolConfig {
	d := DefaultPoolConfig()
	if c.MaxIdle <= 0 {
		c.MaxIdle = d.MaxIdle
	}
	if c.MaxActive <= 0 {
		c.MaxActive = d.MaxActive
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = d.IdleTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	return c
}

// ConnectionPool is a shared HTTP client for one upstream API. It bounds the
// number of requests in flight and sends every request through a circuit
// breaker.
type ConnectionPool struct {
	config    PoolConfig
	breaker   *CircuitBreaker
	transport *http.Transport
	client    *http.Client
	slots     *semaphore.Weighted

	inFlight atomic.Int64
	requests atomic.Int64
	failures atomic.Int64
}

// NewConnectionPool builds a pool. A nil breaker gets a default one.
func NewConnectionPool(config PoolConfig, cb *CircuitBreaker) *ConnectionPool {
	config = config.withDefaults()
	if cb == nil {
		cb = NewCircuitBreaker(CircuitBreakerConfig{})
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          config.MaxIdle,
		MaxIdleConnsPerHost:   max(1, config.MaxIdle/2),
		MaxConnsPerHost:       config.MaxActive,
		IdleConnTimeout:       config.IdleTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: config.RequestTimeout,
		ExpectContinueTimeout: time.Second,
	}

	return &ConnectionPool{
		config:    config,
		breaker:   cb,
		transport: transport,
		client:    &http.Client{Transport: transport, Timeout: config.RequestTimeout},
		slots:     semaphore.NewWeighted(int64(config.MaxActive)),
	}
}

// DoRequest sends one request. It waits for a free slot, honouring ctx, and
// fails fast while the breaker is open. 5xx responses count against the
// breaker but are still returned to the caller.
func (cp *ConnectionPool) DoRequest(ctx context.Context, method, url string, headers map[string]string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	if err := cp.slots.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for connection slot: %w", err)
	}
	defer cp.slots.Release(1)

	var resp *http.Response
	err = cp.breaker.Call(func() error {
		resp, err = cp.send(req)
		if err != nil {
			return err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return errServerStatus
		}
		return nil
	})

	switch {
	case err == nil, errors.Is(err, errServerStatus):
		return resp, nil
	default:
		return nil, err
	}
}

func (cp *ConnectionPool) send(req *http.Request) (*http.Response, error) {
	cp.requests.Add(1)
	cp.inFlight.Add(1)
	defer cp.inFlight.Add(-1)

	start := time.Now()
	resp, err := cp.client.Do(req)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		cp.failures.Add(1)
		slog.Warn("Request failed", "url", req.URL.Redacted(), "error", err, "duration_ms", elapsed)
		return nil, err
	}

	slog.Debug("Request completed", "url", req.URL.Redacted(), "status", resp.StatusCode, "duration_ms", elapsed)
	return resp, nil
}

// GetStats reports pool usage and breaker state for /metrics
func (cp *ConnectionPool) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"in_flight":             cp.inFlight.Load(),
		"total_requests":        cp.requests.Load(),
		"transport_failures":    cp.failures.Load(),
		"max_idle":              cp.config.MaxIdle,
		"max_active":            cp.config.MaxActive,
		"idle_timeout_ms":       cp.config.IdleTimeout.Milliseconds(),
		"circuit_breaker_state": cp.breaker.State().String(),
		"circuit_breaker_fails": cp.breaker.Failures(),
	}
}

// Close drops idle keep-alive connections
func (cp *ConnectionPool) Close() error {
	cp.transport.CloseIdleConnections()
	slog.Info("Connection pool closed")
	return nil
}
