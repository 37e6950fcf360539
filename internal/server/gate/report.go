package gate

import (
	"html"
	"strings"
)

// Fragment is one titled block of a Report.
type Fragment struct {
	Title   string   `json:"title"`
	Details []string `json:"details,omitempty"`
}

// Report collects everything the gate found wrong with a submission.
type Report struct {
	Fragments []Fragment `json:"fragments"`
}

func (r *Report) add(title string, details ...string) {
	r.Fragments = append(r.Fragments, Fragment{Title: title, Details: details})
}

func (r *Report) empty() bool {
	return r == nil || len(r.Fragments) == 0
}

// String renders the report as plain text, one fragment per paragraph.
// This is the form stored in the upload's error column.
func (r *Report) String() string {
	if r.empty() {
		return ""
	}
	var b strings.Builder
	for i, f := range r.Fragments {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(f.Title)
		b.WriteByte('\n')
		for _, d := range f.Details {
			b.WriteString("  - ")
			b.WriteString(d)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// HTML renders the report as definition lists with every text node escaped.
func (r *Report) HTML() string {
	if r.empty() {
		return ""
	}
	var b strings.Builder
	for _, f := range r.Fragments {
		b.WriteString("<dl><dt>")
		b.WriteString(html.EscapeString(f.Title))
		b.WriteString("</dt>")
		for _, d := range f.Details {
			b.WriteString("<dd>")
			b.WriteString(html.EscapeString(d))
			b.WriteString("</dd>")
		}
		b.WriteString("</dl>")
	}
	return b.String()
}
