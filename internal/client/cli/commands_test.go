package cli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/intake/internal/client/client"
	"github.com/dmitrijs2005/intake/internal/client/config"
	"github.com/dmitrijs2005/intake/internal/logging"
	"github.com/dmitrijs2005/intake/internal/netx"
	"github.com/dmitrijs2005/intake/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	apiClient

	pingErr   atomic.Value
	pings     atomic.Int32
	submitted struct {
		form   string
		fields map[string]string
		files  []netx.FilePart
	}
	submitRes *client.SubmitResult
	upload    *models.Upload
	list      []*models.Upload
	filter    client.ListFilter
	cells     []models.DashboardCell
	centre    string
	report    *client.RunReport
	response  client.Response
	err       error
}

func (f *fakeAPI) Ping(context.Context) error {
	f.pings.Add(1)
	if err, ok := f.pingErr.Load().(error); ok && err != nil {
		return err
	}
	return nil
}

func (f *fakeAPI) Submit(_ context.Context, form string, fields map[string]string, files []netx.FilePart) (*client.SubmitResult, error) {
	f.submitted.form, f.submitted.fields, f.submitted.files = form, fields, files
	return f.submitRes, f.err
}

func (f *fakeAPI) Get(context.Context, string) (*models.Upload, error) { return f.upload, f.err }

func (f *fakeAPI) List(_ context.Context, lf client.ListFilter) ([]*models.Upload, error) {
	f.filter = lf
	return f.list, f.err
}

func (f *fakeAPI) Dashboard(_ context.Context, centre string) ([]models.DashboardCell, error) {
	f.centre = centre
	return f.cells, f.err
}

func (f *fakeAPI) Reconcile(context.Context) (*client.RunReport, error) { return f.report, f.err }

func (f *fakeAPI) RecordResponse(_ context.Context, r client.Response) error {
	f.response = r
	return f.err
}

func newTestApp(api *fakeAPI, input string) (*App, *bytes.Buffer) {
	out := &bytes.Buffer{}
	return &App{
		config: &config.Config{Operator: "alice", OnlineCheckInterval: 10 * time.Millisecond},
		api:    api,
		logger: logging.Nop{},
		reader: bufio.NewReader(strings.NewReader(input)),
		out:    out,
	}, out
}

func TestApp_Submit(t *testing.T) {
	msg := "subject mismatch"
	api := &fakeAPI{submitRes: &client.SubmitResult{
		Upload: &models.Upload{ID: "u-1", Status: models.StatusRejected, Error: &msg},
		Report: &client.Report{Fragments: []client.Fragment{{Title: "Subject ID mismatch"}}},
	}}
	a, out := newTestApp(api, "sid=090001789012\ntime_point=FU2\n\n")

	require.NoError(t, a.Submit(context.Background(), []string{"cantab", "cant=/data/a.csv", "zip=/data/b.zip"}))

	assert.Equal(t, "cantab", api.submitted.form)
	assert.Equal(t, map[string]string{"sid": "090001789012", "time_point": "FU2"}, api.submitted.fields)
	assert.Equal(t, []netx.FilePart{{Role: "cant", Path: "/data/a.csv"}, {Role: "zip", Path: "/data/b.zip"}}, api.submitted.files)
	assert.Contains(t, out.String(), "upload u-1: Rejected")
	assert.Contains(t, out.String(), "Subject ID mismatch")
}

func TestApp_Submit_Usage(t *testing.T) {
	a, _ := newTestApp(&fakeAPI{}, "")

	err := a.Submit(context.Background(), []string{"cantab"})
	assert.ErrorIs(t, err, errUsage)

	err = a.Submit(context.Background(), []string{"cantab", "/data/a.csv"})
	require.Error(t, err)
}

func TestApp_Get(t *testing.T) {
	msg := "A system error was raised."
	api := &fakeAPI{upload: &models.Upload{
		ID: "u-1", FormName: "cantab", Status: models.StatusRejected, CreatedBy: "alice", Error: &msg,
		Fields: []models.UploadField{{Name: "sid", Value: "090001789012"}},
		Files:  []models.UploadFile{{Role: "cant", DataName: "a.csv", Size: 3, SHA1Hex: "abc"}},
	}}
	a, out := newTestApp(api, "")

	require.NoError(t, a.Get(context.Background(), []string{"u-1"}))
	assert.Contains(t, out.String(), "sid = 090001789012")
	assert.Contains(t, out.String(), "[cant] a.csv 3 bytes sha1 abc")
	assert.Contains(t, out.String(), "A system error was raised.")

	assert.ErrorIs(t, a.Get(context.Background(), nil), errUsage)
}

func TestApp_List(t *testing.T) {
	api := &fakeAPI{list: []*models.Upload{{ID: "u-1", FormName: "cantab", Status: models.StatusQuarantine,
		Fields: []models.UploadField{{Name: "sid", Value: "090001789012"}}}}}
	a, out := newTestApp(api, "")

	require.NoError(t, a.List(context.Background(), []string{"status=Quarantine", "limit=3", "form=cantab"}))
	assert.Equal(t, client.ListFilter{FormName: "cantab", Status: models.StatusQuarantine, Limit: 3}, api.filter)
	assert.Contains(t, out.String(), "090001789012")

	assert.ErrorIs(t, a.List(context.Background(), []string{"limit=many"}), errUsage)
}

func TestApp_List_Empty(t *testing.T) {
	a, out := newTestApp(&fakeAPI{}, "")
	require.NoError(t, a.List(context.Background(), nil))
	assert.Equal(t, "no uploads\n", out.String())
}

func TestApp_Dashboard(t *testing.T) {
	api := &fakeAPI{cells: []models.DashboardCell{{UploadID: "u-1", SubjectID: "090001789012", TimePoint: "FU2", FormName: "cantab", Status: models.StatusValidated}}}
	a, out := newTestApp(api, "")

	require.NoError(t, a.Dashboard(context.Background(), []string{"PARIS"}))
	assert.Equal(t, "PARIS", api.centre)
	assert.Contains(t, out.String(), "Validated")
}

func TestApp_Reconcile(t *testing.T) {
	api := &fakeAPI{report: &client.RunReport{Batches: []*client.BatchReport{
		{Kind: "cantab", Outcomes: []client.Outcome{{UploadID: "a", Result: "validated"}, {UploadID: "b", Result: "deferred", Diagnostic: "hash mismatch"}}},
		{Kind: "imaging", Skipped: true, Reason: "ledger unavailable"},
	}}}
	a, out := newTestApp(api, "")

	require.NoError(t, a.Reconcile(context.Background()))
	assert.Contains(t, out.String(), "cantab: 1 validated, 0 rejected, 0 pending, 1 deferred, 0 failed")
	assert.Contains(t, out.String(), "  b deferred: hash mismatch")
	assert.Contains(t, out.String(), "imaging: skipped (ledger unavailable)")
}

func TestApp_Respond(t *testing.T) {
	api := &fakeAPI{}
	a, out := newTestApp(api, "")

	require.NoError(t, a.Respond(context.Background(), []string{"scan.zip", "Rejected", "T1", "missing"}))
	assert.Equal(t, client.Response{Name: "scan.zip", Status: "Rejected", Message: "T1 missing"}, api.response)
	assert.Contains(t, out.String(), "recorded Rejected for scan.zip")

	assert.ErrorIs(t, a.Respond(context.Background(), []string{"scan.zip"}), errUsage)
}

func TestApp_Health(t *testing.T) {
	api := &fakeAPI{}
	a, out := newTestApp(api, "")

	require.NoError(t, a.Health(context.Background()))
	assert.Equal(t, ModeOnline, a.Mode())
	assert.Contains(t, out.String(), "server is ready")

	api.pingErr.Store(errors.New("down"))
	require.Error(t, a.Health(context.Background()))
	assert.Equal(t, ModeOffline, a.Mode())
}

func TestApp_APIErrorsPropagate(t *testing.T) {
	api := &fakeAPI{err: client.ErrUnavailable}
	a, _ := newTestApp(api, "\n")

	assert.ErrorIs(t, a.Get(context.Background(), []string{"x"}), client.ErrUnavailable)
	assert.ErrorIs(t, a.List(context.Background(), nil), client.ErrUnavailable)
	assert.ErrorIs(t, a.Dashboard(context.Background(), nil), client.ErrUnavailable)
	assert.ErrorIs(t, a.Reconcile(context.Background()), client.ErrUnavailable)
	assert.ErrorIs(t, a.Submit(context.Background(), []string{"cantab", "cant=/x"}), client.ErrUnavailable)
}
