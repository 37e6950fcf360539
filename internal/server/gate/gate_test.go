package gate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/intake/internal/common"
	"github.com/dmitrijs2005/intake/internal/server/kinds"
	"github.com/dmitrijs2005/intake/internal/server/models"
	"github.com/dmitrijs2005/intake/internal/server/repositories/uploads"
	"github.com/dmitrijs2005/intake/internal/server/validators"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = func() time.Time { return time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC) }

func storeFile(t *testing.T, dir, name, content string) models.UploadFile {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return models.UploadFile{DataName: name, Path: p}
}

func cantabFiles(t *testing.T, sid, tp string) []models.UploadFile {
	dir := t.TempDir()
	var files []models.UploadFile
	for role, format := range map[string]string{
		"cant":               "cant_%s.cclar",
		"datasheet":          "datasheet_%s.csv",
		"detailed_datasheet": "detailed_datasheet_%s.csv",
		"report":             "report_%s.html",
	} {
		f := storeFile(t, dir, strings.Replace(format, "%s", sid+tp, 1), "content")
		f.Role = role
		files = append(files, f)
	}
	return files
}

func submitted(sid, tp string) map[string]string {
	return map[string]string{
		common.FieldSubjectID:       sid,
		common.FieldTimePoint:       tp,
		common.FieldCentre:          "PARIS",
		common.FieldAcquisitionDate: "2024-05-01",
	}
}

func newGate(repo *uploads.MemoryRepository) *Gate {
	return New(repo, kinds.Default(fixedNow))
}

func titles(r *Report) []string {
	if r == nil {
		return nil
	}
	var out []string
	for _, f := range r.Fragments {
		out = append(out, f.Title)
	}
	return out
}

func TestValidate_CleanSubmission(t *testing.T) {
	g := newGate(uploads.NewMemoryRepository())

	r, err := g.Validate(context.Background(), submitted("123456789012", "FU3"),
		&models.Upload{ID: "u1", FormName: "cantab"}, cantabFiles(t, "123456789012", "FU3"))
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestValidate_AccumulatesInOrder(t *testing.T) {
	ctx := context.Background()
	repo := uploads.NewMemoryRepository()
	require.NoError(t, repo.Create(ctx, &models.Upload{
		ID: "u0", FormName: "cantab", Status: models.StatusQuarantine,
		Fields: []models.UploadField{{Name: "sid", Value: "12345678901x"}, {Name: "time_point", Value: "SB"}},
	}))
	g := newGate(repo)

	dir := t.TempDir()
	bad := storeFile(t, dir, "cant_wrong.cclar", "")
	bad.Role = "cant"
	odd := storeFile(t, dir, "notes.txt", "x")
	odd.Role = "notes"

	r, err := g.Validate(ctx, submitted("12345678901x", "SB"),
		&models.Upload{ID: "u1", FormName: "cantab"}, []models.UploadFile{bad, odd})
	require.NoError(t, err)
	require.NotNil(t, r)

	assert.Equal(t, []string{
		sidTitle,
		duplicateTitle,
		"File cant_wrong.cclar [cant_<PSC1><TP>.cclar]",
		"File notes.txt",
	}, titles(r), "malformed sid skips the cohort table")

	details := r.Fragments[2].Details
	require.Len(t, details, 2)
	assert.Contains(t, details[0], "file name should be cant_12345678901xSB.cclar")
	assert.Equal(t, "file is empty", details[1])
	assert.Contains(t, r.Fragments[3].Details[0], `unexpected file role "notes"`)
}

func TestValidate_BadDateReportedOnce(t *testing.T) {
	g := newGate(uploads.NewMemoryRepository())
	in := submitted("123456789012", "FU3")
	in[common.FieldAcquisitionDate] = "01/05/2024"

	r, err := g.Validate(context.Background(), in,
		&models.Upload{ID: "u1", FormName: "cantab"}, cantabFiles(t, "123456789012", "FU3"))
	require.NoError(t, err)
	require.NotNil(t, r)

	assert.Equal(t, []string{dateTitle}, titles(r), "four valid files, one date fragment")
	require.Len(t, r.Fragments[0].Details, 1)
	assert.Equal(t, `acquisition date must be YYYY-MM-DD ["01/05/2024"]`, r.Fragments[0].Details[0])

	in[common.FieldAcquisitionDate] = "2024-05-11"
	r, err = g.Validate(context.Background(), in,
		&models.Upload{ID: "u1", FormName: "cantab"}, cantabFiles(t, "123456789012", "FU3"))
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, []string{dateTitle}, titles(r))
	assert.Contains(t, r.Fragments[0].Details[0], "in the future")
}

func TestValidate_CohortRule(t *testing.T) {
	g := newGate(uploads.NewMemoryRepository())

	r, err := g.Validate(context.Background(), submitted("090001789012", "FU3"),
		&models.Upload{ID: "u1", FormName: "cantab"}, cantabFiles(t, "090001789012", "FU3"))
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, []string{cohortTitle}, titles(r))
	assert.Equal(t, `Subject ID prefix 090001 requires time point SB, got "FU3".`, r.Fragments[0].Details[0])
}

func TestValidate_StratifyScenario(t *testing.T) {
	ctx := context.Background()
	repo := uploads.NewMemoryRepository()
	g := newGate(repo)
	sid, tp := "090001789012", "SB"

	first := &models.Upload{ID: "u1", FormName: "cantab", Status: models.StatusQuarantine, Fields: []models.UploadField{
		{Name: common.FieldSubjectID, Value: sid}, {Name: common.FieldTimePoint, Value: tp},
	}}
	r, err := g.Validate(ctx, submitted(sid, tp), first, cantabFiles(t, sid, tp))
	require.NoError(t, err)
	assert.Nil(t, r, "stratify prefix with SB passes")
	require.NoError(t, repo.Create(ctx, first))

	r, err = g.Validate(ctx, submitted(sid, tp), &models.Upload{ID: "u2", FormName: "cantab"}, cantabFiles(t, sid, tp))
	require.NoError(t, err)
	assert.Equal(t, []string{duplicateTitle}, titles(r))
}

func TestValidate_NoFiles(t *testing.T) {
	g := newGate(uploads.NewMemoryRepository())

	r, err := g.Validate(context.Background(), submitted("123456789012", "FU3"),
		&models.Upload{ID: "u1", FormName: "MRI"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{noFileTitle}, titles(r))
}

func TestValidate_UnknownKind(t *testing.T) {
	g := newGate(uploads.NewMemoryRepository())

	_, err := g.Validate(context.Background(), submitted("123456789012", "FU3"),
		&models.Upload{ID: "u1", FormName: "eeg"}, nil)
	require.ErrorIs(t, err, common.ErrUnknownKind)
}

type failingCounter struct{}

func (failingCounter) CountEquivalent(context.Context, string, string, string, string) (int, error) {
	return 0, errors.New("db down")
}

func TestValidate_CountFailureIsAnError(t *testing.T) {
	g := New(failingCounter{}, kinds.Default(fixedNow))

	_, err := g.Validate(context.Background(), submitted("123456789012", "FU3"),
		&models.Upload{ID: "u1", FormName: "cantab"}, nil)
	require.ErrorContains(t, err, "db down")
}

func TestFileDetails_HidesStoragePath(t *testing.T) {
	got := fileDetails([]validators.ValidationError{
		{Message: "cannot open /srv/q/MRI/u1/a.zip", Path: "a.zip"},
		{Message: "bad entry", Path: "T1/1.dcm", Sample: strings.Repeat("x", 60)},
	}, "a.zip", "/srv/q/MRI/u1/a.zip")

	assert.Equal(t, "cannot open a.zip", got[0])
	assert.True(t, strings.HasPrefix(got[1], "bad entry [T1/1.dcm] [\"xxx"))
	assert.True(t, strings.HasSuffix(got[1], "...]"))
}
