package validators

import (
	"archive/zip"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/intake/internal/common"
)

const (
	placeholderSID = "<PSC1>"
	placeholderTP  = "<TP>"
)

// ContentCheck inspects the stored file beyond the generic checks.
type ContentCheck func(path string, expected map[string]bool) []ValidationError

// FileChecker is the default Checker. NameFormat is a fmt template that
// receives the subject id then the time point, e.g. "cant_%s%s.cclar".
type FileChecker struct {
	NameFormat string
	Content    ContentCheck
}

func (c *FileChecker) Pattern() string {
	return fmt.Sprintf(c.NameFormat, placeholderSID, placeholderTP)
}

func (c *FileChecker) CheckName(filename, timePoint, sid string) (bool, []ValidationError) {
	want := fmt.Sprintf(c.NameFormat, sid, timePoint)
	if filename == want {
		return true, nil
	}
	return false, []ValidationError{{
		Message: fmt.Sprintf("file name should be %s", want),
		Path:    filename,
	}}
}

// CheckContent ignores the acquisition date; it is a form-level field and
// is checked once by CheckAcquisitionDate.
func (c *FileChecker) CheckContent(path, timePoint, sid, date string, expected map[string]bool) (bool, []ValidationError) {
	var errs []ValidationError

	info, err := os.Stat(path)
	switch {
	case err != nil:
		errs = append(errs, ValidationError{Message: "file cannot be read"})
	case !info.Mode().IsRegular():
		errs = append(errs, ValidationError{Message: "not a regular file"})
	case info.Size() == 0:
		errs = append(errs, ValidationError{Message: "file is empty"})
	case c.Content != nil:
		errs = append(errs, c.Content(path, expected)...)
	}

	return len(errs) == 0, errs
}

// CheckAcquisitionDate requires a YYYY-MM-DD date that is not after the
// current day.
func CheckAcquisitionDate(date string, now time.Time) []ValidationError {
	d, err := time.Parse(common.AcquisitionDateLayout, date)
	if err != nil {
		return []ValidationError{{Message: "acquisition date must be YYYY-MM-DD", Sample: date}}
	}
	y, m, day := now.Date()
	today := time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
	if d.After(today) {
		return []ValidationError{{Message: "acquisition date is in the future", Sample: date}}
	}
	return nil
}

// ZipContent requires a readable zip archive with at least one entry.
// Sequence-level inspection of the archive is left to format-specific
// checkers.
func ZipContent(path string, _ map[string]bool) []ValidationError {
	r, err := zip.OpenReader(path)
	if err != nil {
		return []ValidationError{{Message: fmt.Sprintf("not a valid zip archive: %v", err)}}
	}
	defer r.Close()

	if len(r.File) == 0 {
		return []ValidationError{{Message: "zip archive is empty"}}
	}
	return nil
}
