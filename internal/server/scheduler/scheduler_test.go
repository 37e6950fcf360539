package scheduler

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/intake/internal/common"
	"github.com/dmitrijs2005/intake/internal/logging"
	"github.com/dmitrijs2005/intake/internal/server/promotion"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	calls  atomic.Int32
	report *promotion.RunReport
	err    error
}

func (f *fakeRunner) Run(context.Context) (*promotion.RunReport, error) {
	f.calls.Add(1)
	return f.report, f.err
}

func TestNew_BadSpec(t *testing.T) {
	_, err := New("every now and then", &fakeRunner{}, logging.Nop{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse schedule")
}

func TestRunOnce_LogsBatches(t *testing.T) {
	var buf bytes.Buffer
	r := &fakeRunner{report: &promotion.RunReport{Batches: []*promotion.BatchReport{{
		Kind: "cantab",
		Outcomes: []promotion.Outcome{
			{UploadID: "a", Result: promotion.ResultValidated},
			{UploadID: "b", Result: promotion.ResultDeferred},
		},
	}}}}
	s, err := New("@every 1h", r, logging.NewJSONLogger(&buf, slog.LevelInfo))
	require.NoError(t, err)

	s.runOnce()
	assert.Equal(t, int32(1), r.calls.Load())
	assert.Contains(t, buf.String(), `"kind":"cantab"`)
	assert.Contains(t, buf.String(), `"validated":1`)
	assert.Contains(t, buf.String(), `"deferred":1`)
}

func TestRunOnce_Errors(t *testing.T) {
	var buf bytes.Buffer
	s, err := New("@every 1h", &fakeRunner{err: common.ErrRunInProgress}, logging.NewJSONLogger(&buf, slog.LevelInfo))
	require.NoError(t, err)
	s.runOnce()
	assert.Contains(t, buf.String(), "reconciliation skipped")

	buf.Reset()
	s, err = New("@every 1h", &fakeRunner{err: errors.New("db down")}, logging.NewJSONLogger(&buf, slog.LevelInfo))
	require.NoError(t, err)
	s.runOnce()
	assert.Contains(t, buf.String(), "db down")
}

func TestStartStop(t *testing.T) {
	s, err := New("@every 1h", &fakeRunner{report: &promotion.RunReport{}}, logging.Nop{})
	require.NoError(t, err)

	s.Start(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}
