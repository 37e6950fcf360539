package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/intake/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type fakePinger struct{ err error }

func (f *fakePinger) PingContext(context.Context) error { return f.err }

type fakeLedger struct{ err error }

func (f *fakeLedger) EnsureReady() error { return f.err }

func servingStatus(t *testing.T, hs *grpchealth.Server) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := hs.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestMonitor_StartsNotServing(t *testing.T) {
	hs := grpchealth.NewServer()
	m := NewMonitor(hs, time.Second, logging.Nop{})
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, servingStatus(t, hs))
	assert.Error(t, m.Ready())
}

func TestMonitor_Check(t *testing.T) {
	db := &fakePinger{}
	l := &fakeLedger{}
	hs := grpchealth.NewServer()
	m := NewMonitor(hs, time.Second, logging.Nop{}, Database(db), Ledger(l))

	require.NoError(t, m.Check(context.Background()))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, servingStatus(t, hs))
	assert.NoError(t, m.Ready())

	l.err = errors.New("ledger unavailable")
	err := m.Check(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ledger: ledger unavailable")
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, servingStatus(t, hs))

	db.err = errors.New("connection refused")
	err = m.Check(context.Background())
	assert.Contains(t, err.Error(), "database: connection refused")
	assert.Equal(t, err, m.Ready())
}

func TestMonitor_RunStopsOnCancel(t *testing.T) {
	hs := grpchealth.NewServer()
	m := NewMonitor(hs, 10*time.Millisecond, logging.Nop{}, CheckFunc{CheckName: "ok", Fn: func(context.Context) error { return nil }})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return m.Ready() == nil }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, servingStatus(t, hs))
}
