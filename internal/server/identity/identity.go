// Package identity validates subject identifiers, detects duplicate
// submissions and applies the cohort time-point table.
package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/intake/internal/common"
)

// SubjectIDLength is the number of decimal digits in a PSC1 subject code.
const SubjectIDLength = 12

// IsValidSubjectID reports whether v is exactly twelve ASCII decimal digits.
func IsValidSubjectID(v string) bool {
	if len(v) != SubjectIDLength {
		return false
	}
	for i := 0; i < len(v); i++ {
		if v[i] < '0' || v[i] > '9' {
			return false
		}
	}
	return true
}

// EquivalentCounter is the slice of the upload store the duplicate check needs.
type EquivalentCounter interface {
	CountEquivalent(ctx context.Context, formName, sid, timePoint, excludeID string) (int, error)
}

// IsAlreadyUploaded reports whether another non-rejected upload of formName
// exists with the same sid and time point as submitted. excludeID is the
// upload being checked, which never counts against itself.
func IsAlreadyUploaded(ctx context.Context, repo EquivalentCounter, submitted map[string]string, formName, excludeID string) (bool, error) {
	n, err := repo.CountEquivalent(ctx, formName,
		submitted[common.FieldSubjectID], submitted[common.FieldTimePoint], excludeID)
	if err != nil {
		return false, fmt.Errorf("duplicate check: %w", err)
	}
	return n > 0, nil
}

// CohortError reports a time point that the cohort table does not allow
// for the subject's prefix.
type CohortError struct {
	Prefix    string
	TimePoint string
	Allowed   []string
}

func (e *CohortError) Error() string {
	return fmt.Sprintf("time point %q is not allowed for subject prefix %s (expected %s)",
		e.TimePoint, e.Prefix, strings.Join(e.Allowed, " or "))
}

// PrefixLength is the number of leading digits that select a cohort.
const PrefixLength = 6

// cohortTimePoints maps a subject prefix to the only time points its
// cohort may upload. The Stratify prefixes are SB only; 090099 belongs to
// both cohorts. Any prefix not listed falls back to defaultTimePoints.
var cohortTimePoints = map[string][]string{
	"090001": {"SB"},
	"090002": {"SB"},
	"090003": {"SB"},
	"090004": {"SB"},
	"090005": {"SB"},
	"090006": {"SB"},
	"090099": {"FU3", "SB"},
}

var defaultTimePoints = []string{"FU3"}

// AllowedTimePoints returns the time points permitted for sid's prefix.
func AllowedTimePoints(sid string) []string {
	if len(sid) < PrefixLength {
		return defaultTimePoints
	}
	if tps, ok := cohortTimePoints[sid[:PrefixLength]]; ok {
		return tps
	}
	return defaultTimePoints
}

// CheckCohort returns a *CohortError when timePoint is not permitted for
// sid. Malformed subject ids are not checked; the format check reports them.
func CheckCohort(sid, timePoint string) error {
	if !IsValidSubjectID(sid) {
		return nil
	}
	allowed := AllowedTimePoints(sid)
	for _, tp := range allowed {
		if tp == timePoint {
			return nil
		}
	}
	return &CohortError{
		Prefix:    sid[:PrefixLength],
		TimePoint: timePoint,
		Allowed:   append([]string(nil), allowed...),
	}
}
