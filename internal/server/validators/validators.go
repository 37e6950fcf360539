// Package validators defines the contract between the submission gate and
// the per-kind file checkers, along with the default checkers used when no
// format-specific implementation is plugged in.
package validators

import (
	"strconv"
	"unicode/utf8"
)

// SampleLen bounds the displayed sample of a ValidationError, in runes.
const SampleLen = 40

// ValidationError is one problem found in an uploaded file. Path and Sample
// are optional.
type ValidationError struct {
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
	Sample  string `json:"sample,omitempty"`
}

// DisplaySample returns the quoted sample, cut to SampleLen runes with a
// trailing ellipsis. Empty when there is no sample.
func (e ValidationError) DisplaySample() string {
	if e.Sample == "" {
		return ""
	}
	s := strconv.Quote(e.Sample)
	if utf8.RuneCountInString(s) <= SampleLen {
		return s
	}
	r := []rune(s)
	return string(r[:SampleLen]) + "..."
}

// Checker validates one file role of an upload kind.
type Checker interface {
	// Pattern is the human-readable naming convention, e.g. "<PSC1><TP>.zip".
	Pattern() string
	CheckName(filename, timePoint, sid string) (bool, []ValidationError)
	CheckContent(path, timePoint, sid, date string, expected map[string]bool) (bool, []ValidationError)
}
