// Package models defines server-side data models persisted in the database.
package models

import "time"

// Status is the lifecycle state of an upload. Quarantine is the only
// non-terminal state.
type Status string

const (
	StatusQuarantine Status = "Quarantine"
	StatusValidated  Status = "Validated"
	StatusRejected   Status = "Rejected"
)

func (s Status) Valid() bool {
	switch s {
	case StatusQuarantine, StatusValidated, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusValidated || s == StatusRejected
}

// Upload is one user submission: a kind (form name), metadata fields and
// the files stored in quarantine.
type Upload struct {
	ID        string        `json:"id"`
	FormName  string        `json:"form_name"`
	Status    Status        `json:"status"`
	Error     *string       `json:"error,omitempty"`
	CreatedBy string        `json:"created_by"`
	CreatedAt time.Time     `json:"created_at"`
	Fields    []UploadField `json:"fields"`
	Files     []UploadFile  `json:"files"`
}

// UploadField is a single name/value pair posted with an upload.
type UploadField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// UploadFile describes one stored blob. Role is the form slot the file was
// posted under (e.g. "cant", "zip"); DataName is the user's file name.
type UploadFile struct {
	Role     string `json:"role"`
	DataName string `json:"data_name"`
	Path     string `json:"-"`
	SHA1Hex  string `json:"sha1hex"`
	Size     int64  `json:"size"`
}

// Field returns the value of the named field, or "" when absent.
func (u *Upload) Field(name string) string {
	for _, f := range u.Fields {
		if f.Name == name {
			return f.Value
		}
	}
	return ""
}

// FieldMap flattens Fields into a map. Later duplicates win.
func (u *Upload) FieldMap() map[string]string {
	m := make(map[string]string, len(u.Fields))
	for _, f := range u.Fields {
		m[f.Name] = f.Value
	}
	return m
}

// DashboardCell is the state of one (subject, time point, form) slot.
type DashboardCell struct {
	UploadID  string `json:"upload_id"`
	SubjectID string `json:"sid"`
	TimePoint string `json:"time_point"`
	FormName  string `json:"form_name"`
	Status    Status `json:"status"`
}
