package promotion

import (
	"path/filepath"
	"testing"

	"github.com/dmitrijs2005/intake/internal/common"
	"github.com/dmitrijs2005/intake/internal/server/kinds"
	"github.com/dmitrijs2005/intake/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalPath(t *testing.T) {
	u := &models.Upload{Fields: []models.UploadField{
		{Name: common.FieldSubjectID, Value: "090001789012"},
		{Name: common.FieldTimePoint, Value: "FU3"},
		{Name: common.FieldCentre, Value: "PARIS"},
	}}

	got, err := CanonicalPath("/data/validated", &kinds.Kind{Subdir: "imaging"}, u, "scan.zip")
	require.NoError(t, err)
	assert.Equal(t, filepath.FromSlash("/data/validated/FU3/RAW/PSC1/PARIS/090001789012/imaging/scan.zip"), got)

	got, err = CanonicalPath("/data/validated", &kinds.Kind{}, u, "scan.zip")
	require.NoError(t, err)
	assert.Equal(t, filepath.FromSlash("/data/validated/FU3/RAW/PSC1/PARIS/090001789012/scan.zip"), got)
}

func TestCanonicalPath_Errors(t *testing.T) {
	k := &kinds.Kind{}
	_, err := CanonicalPath("/v", k, &models.Upload{}, "x")
	assert.ErrorIs(t, err, common.ErrMissingField)

	u := &models.Upload{Fields: []models.UploadField{
		{Name: common.FieldSubjectID, Value: "090001789012"},
		{Name: common.FieldTimePoint, Value: "SB"},
		{Name: common.FieldCentre, Value: "../etc"},
	}}
	_, err = CanonicalPath("/v", k, u, "x")
	require.Error(t, err)

	u.Fields[2].Value = "LONDON"
	_, err = CanonicalPath("/v", k, u, "..")
	require.Error(t, err)
}
