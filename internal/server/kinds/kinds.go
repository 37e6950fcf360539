// Package kinds is the registry of upload kinds: which file roles a form
// accepts, how each role is checked, and how accepted uploads are promoted.
package kinds

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/intake/internal/common"
	"github.com/dmitrijs2005/intake/internal/server/validators"
)

// Mode selects the promotion path of a kind.
type Mode int

const (
	// Direct kinds are promoted by the reconciler without outside review.
	Direct Mode = iota
	// External kinds are forwarded to the validation authority first.
	External
)

func (m Mode) String() string {
	switch m {
	case Direct:
		return "direct"
	case External:
		return "external"
	}
	return "unknown"
}

// Role is one file slot of a kind's form.
type Role struct {
	Name    string
	Checker validators.Checker
}

// Kind describes one upload form.
type Kind struct {
	Name string
	Mode Mode
	// Subdir is appended below the subject directory of the canonical
	// layout. Empty means files land directly in the subject directory.
	Subdir string
	Roles  []Role
	// ExpectedFlags are boolean form fields announcing which sequences the
	// upload contains.
	ExpectedFlags []string
	// CohortRule enables the prefix/time point consistency table.
	CohortRule bool
}

// Checker returns the checker of the named role.
func (k *Kind) Checker(role string) (validators.Checker, bool) {
	for _, r := range k.Roles {
		if r.Name == role {
			return r.Checker, true
		}
	}
	return nil, false
}

// RequiredFields lists the form fields a submission of this kind must carry.
func (k *Kind) RequiredFields() []string {
	req := []string{
		common.FieldSubjectID,
		common.FieldTimePoint,
		common.FieldCentre,
		common.FieldAcquisitionDate,
	}
	return append(req, k.ExpectedFlags...)
}

// Expected parses the kind's expected-sequence flags out of fields.
// Unparseable or missing values count as false.
func (k *Kind) Expected(fields map[string]string) map[string]bool {
	if len(k.ExpectedFlags) == 0 {
		return nil
	}
	m := make(map[string]bool, len(k.ExpectedFlags))
	for _, name := range k.ExpectedFlags {
		m[name] = parseFlag(fields[name])
	}
	return m
}

func parseFlag(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	switch v {
	case "yes", "y", "on":
		return true
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

// Registry resolves kinds by case-insensitive name.
type Registry struct {
	kinds map[string]*Kind
	now   func() time.Time
}

func NewRegistry(kinds ...*Kind) *Registry {
	r := &Registry{kinds: make(map[string]*Kind, len(kinds)), now: time.Now}
	for _, k := range kinds {
		r.kinds[strings.ToLower(k.Name)] = k
	}
	return r
}

// Lookup returns the kind named name, or an error wrapping
// common.ErrUnknownKind.
func (r *Registry) Lookup(name string) (*Kind, error) {
	k, ok := r.kinds[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", common.ErrUnknownKind, name)
	}
	return k, nil
}

// Now is the clock form-level checks compare against.
func (r *Registry) Now() time.Time { return r.now() }

// All returns every kind sorted by name.
func (r *Registry) All() []*Kind {
	out := make([]*Kind, 0, len(r.kinds))
	for _, k := range r.kinds {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

const (
	Cantab = "cantab"
	MRI    = "MRI"
)

// MRISequenceFlags are the expected-sequence fields of the MRI form.
var MRISequenceFlags = []string{"t2", "flair", "adni_mprage", "mid", "ft", "ss", "b0", "dti", "rs", "recog"}

// Default returns the cantab and MRI kinds with the default checkers.
// now drives the acquisition date check; nil means time.Now.
func Default(now func() time.Time) *Registry {
	checker := func(format string, content validators.ContentCheck) *validators.FileChecker {
		return &validators.FileChecker{NameFormat: format, Content: content}
	}

	cantab := &Kind{
		Name:   Cantab,
		Mode:   Direct,
		Subdir: "cantab",
		Roles: []Role{
			{Name: "cant", Checker: checker("cant_%s%s.cclar", nil)},
			{Name: "datasheet", Checker: checker("datasheet_%s%s.csv", nil)},
			{Name: "detailed_datasheet", Checker: checker("detailed_datasheet_%s%s.csv", nil)},
			{Name: "report", Checker: checker("report_%s%s.html", nil)},
		},
		CohortRule: true,
	}

	mri := &Kind{
		Name:   MRI,
		Mode:   External,
		Subdir: "imaging",
		Roles: []Role{
			{Name: "zip", Checker: checker("%s%s.zip", validators.ZipContent)},
		},
		ExpectedFlags: MRISequenceFlags,
		CohortRule:    true,
	}

	r := NewRegistry(cantab, mri)
	if now != nil {
		r.now = now
	}
	return r
}
