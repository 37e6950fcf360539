// Package health keeps the gRPC health status in line with the service's
// dependencies: the database and the handoff ledger.
package health

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/intake/internal/logging"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ReadinessCheck reports whether one dependency is usable.
type ReadinessCheck interface {
	Name() string
	IsReady(ctx context.Context) error
}

// CheckFunc adapts a function to ReadinessCheck.
type CheckFunc struct {
	CheckName string
	Fn        func(ctx context.Context) error
}

func (c CheckFunc) Name() string                      { return c.CheckName }
func (c CheckFunc) IsReady(ctx context.Context) error { return c.Fn(ctx) }

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

func Database(db Pinger) ReadinessCheck {
	return CheckFunc{CheckName: "database", Fn: db.PingContext}
}

// Ledger checks a ledger-like store; *ledger.Ledger satisfies the argument.
func Ledger(l interface{ EnsureReady() error }) ReadinessCheck {
	return CheckFunc{CheckName: "ledger", Fn: func(context.Context) error { return l.EnsureReady() }}
}

const checkTimeout = 500 * time.Millisecond

// Monitor evaluates the checks on a ticker and publishes the overall
// status: SERVING only while every check passes.
type Monitor struct {
	server   *grpchealth.Server
	checks   []ReadinessCheck
	interval time.Duration
	logger   logging.Logger

	mu      sync.RWMutex
	lastErr error
	checked bool
}

func NewMonitor(server *grpchealth.Server, interval time.Duration, logger logging.Logger, checks ...ReadinessCheck) *Monitor {
	// start pessimistic
	server.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	return &Monitor{
		server:   server,
		checks:   checks,
		interval: interval,
		logger:   logger.With("module", "health"),
	}
}

// Check runs every check once, updates the served status and returns the
// joined failures.
func (m *Monitor) Check(ctx context.Context) error {
	var errs []error
	for _, c := range m.checks {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := c.IsReady(cctx)
		cancel()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.Name(), err))
		}
	}
	err := errors.Join(errs...)

	status := healthpb.HealthCheckResponse_SERVING
	if err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	m.server.SetServingStatus("", status)

	m.mu.Lock()
	changed := !m.checked || (m.lastErr == nil) != (err == nil)
	m.lastErr, m.checked = err, true
	m.mu.Unlock()

	if changed {
		if err != nil {
			m.logger.Warn(ctx, "service not ready", "error", err)
		} else {
			m.logger.Info(ctx, "service ready")
		}
	}
	return err
}

// Ready returns the outcome of the most recent Check.
func (m *Monitor) Ready() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.checked {
		return errors.New("not checked yet")
	}
	return m.lastErr
}

// Run checks immediately and then on every tick until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	_ = m.Check(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = m.Check(ctx)
		}
	}
}
