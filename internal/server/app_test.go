package server

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/intake/internal/logging"
	"github.com/dmitrijs2005/intake/internal/server/config"
	"github.com/dmitrijs2005/intake/internal/server/handoff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	c := &config.Config{}
	c.LoadDefaults()
	c.QuarantineDir = filepath.Join(dir, "quarantine")
	c.ValidatedDir = filepath.Join(dir, "validated")
	c.LedgerDir = filepath.Join(dir, "ledger")
	c.LockFile = filepath.Join(dir, "reconcile.lock")
	c.HealthCheckInterval = time.Second
	return c
}

func stubOpenDB(t *testing.T) sqlmock.Sqlmock {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	orig := openDB
	openDB = func(string) (*sql.DB, error) { return db, nil }
	t.Cleanup(func() { openDB = orig })
	return mock
}

func TestNewApp_Wiring(t *testing.T) {
	mock := stubOpenDB(t)
	c := testConfig(t)

	app, err := NewApp(context.Background(), c)
	require.NoError(t, err)
	assert.NotNil(t, app.reconciler)
	assert.NotNil(t, app.uploads)
	assert.Equal(t, c.LedgerDir, app.ledger.Dir())

	// nothing is quarantined, so a pass only selects
	for range 2 {
		mock.ExpectQuery("SELECT .* FROM uploads").WillReturnRows(sqlmock.NewRows([]string{"id", "form_name", "status", "error", "created_by", "created_at"}))
	}
	report, err := app.ReconcileOnce(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Batches, 2)

	mock.ExpectClose()
	require.NoError(t, app.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewApp_OpenError(t *testing.T) {
	orig := openDB
	openDB = func(string) (*sql.DB, error) { return nil, errors.New("bad dsn") }
	t.Cleanup(func() { openDB = orig })

	_, err := NewApp(context.Background(), testConfig(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db open error")
}

func TestNewTransport(t *testing.T) {
	c := testConfig(t)

	tr, err := newTransport(context.Background(), c, logging.Nop{})
	require.NoError(t, err)
	assert.IsType(t, handoff.NopTransport{}, tr)

	c.HandoffTransport = "ftp"
	_, err = newTransport(context.Background(), c, logging.Nop{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown handoff transport "ftp"`)
}
