// Package gate is the synchronous submission check: subject id format,
// acquisition date, duplicate detection, per-file name and content checks
// and the cohort table, accumulated into one Report.
package gate

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/intake/internal/common"
	"github.com/dmitrijs2005/intake/internal/server/identity"
	"github.com/dmitrijs2005/intake/internal/server/kinds"
	"github.com/dmitrijs2005/intake/internal/server/models"
	"github.com/dmitrijs2005/intake/internal/server/validators"
)

const (
	sidTitle       = "The subject ID is malformed."
	sidDetail      = "12 decimal digits required."
	duplicateTitle = "A similar upload already exists."
	cohortTitle    = "The time point does not match the subject ID."
	dateTitle      = "The acquisition date is invalid."
	noFileTitle    = "No file was uploaded."
)

var duplicateDetails = []string{
	"Same subject ID and time point, and upload not rejected.",
	"Please contact an administrator if you want to force the upload.",
}

type Gate struct {
	repo  identity.EquivalentCounter
	kinds *kinds.Registry
}

func New(repo identity.EquivalentCounter, registry *kinds.Registry) *Gate {
	return &Gate{repo: repo, kinds: registry}
}

// Validate runs every check against the submission and returns nil when
// nothing was found. It only reads; the error return is reserved for
// infrastructure failures and unknown kinds.
func (g *Gate) Validate(ctx context.Context, submitted map[string]string, upload *models.Upload, files []models.UploadFile) (*Report, error) {
	kind, err := g.kinds.Lookup(upload.FormName)
	if err != nil {
		return nil, err
	}

	sid := submitted[common.FieldSubjectID]
	tp := submitted[common.FieldTimePoint]
	date := submitted[common.FieldAcquisitionDate]

	report := &Report{}

	if !identity.IsValidSubjectID(sid) {
		report.add(sidTitle, sidDetail)
	}

	if errs := validators.CheckAcquisitionDate(date, g.kinds.Now()); len(errs) > 0 {
		report.add(dateTitle, fileDetails(errs, "", "")...)
	}

	dup, err := identity.IsAlreadyUploaded(ctx, g.repo, submitted, upload.FormName, upload.ID)
	if err != nil {
		return nil, err
	}
	if dup {
		report.add(duplicateTitle, duplicateDetails...)
	}

	if len(files) == 0 {
		report.add(noFileTitle, fmt.Sprintf("The %s form needs at least one file.", kind.Name))
	}

	expected := kind.Expected(submitted)
	for _, f := range files {
		checker, ok := kind.Checker(f.Role)
		if !ok {
			report.add(fmt.Sprintf("File %s", f.DataName),
				fmt.Sprintf("unexpected file role %q for form %s", f.Role, kind.Name))
			continue
		}

		var errs []validators.ValidationError
		if ok, e := checker.CheckName(f.DataName, tp, sid); !ok {
			errs = append(errs, e...)
		}
		if ok, e := checker.CheckContent(f.Path, tp, sid, date, expected); !ok {
			errs = append(errs, e...)
		}
		if len(errs) > 0 {
			report.add(fmt.Sprintf("File %s [%s]", f.DataName, checker.Pattern()),
				fileDetails(errs, f.DataName, f.Path)...)
		}
	}

	if kind.CohortRule {
		var ce *identity.CohortError
		if err := identity.CheckCohort(sid, tp); errors.As(err, &ce) {
			report.add(cohortTitle, fmt.Sprintf("Subject ID prefix %s requires time point %s, got %q.",
				ce.Prefix, strings.Join(ce.Allowed, " or "), ce.TimePoint))
		}
	}

	if report.empty() {
		return nil, nil
	}
	return report, nil
}

// fileDetails renders validator errors for one file. The storage path is
// replaced by the user's file name so it never reaches the operator.
func fileDetails(errs []validators.ValidationError, filename, storagePath string) []string {
	base := filepath.Base(storagePath)
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		msg := e.Message
		if e.Path != "" && e.Path != filename && e.Path != storagePath && e.Path != base {
			msg += " [" + e.Path + "]"
		}
		if s := e.DisplaySample(); s != "" {
			msg += " [" + s + "]"
		}
		if storagePath != "" {
			msg = strings.ReplaceAll(msg, storagePath, filename)
			msg = strings.ReplaceAll(msg, base, filename)
		}
		out = append(out, msg)
	}
	return out
}
