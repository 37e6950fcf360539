// Package common defines shared constants and sentinel errors used across
// the intake server, the reconciler and their storage layers. Callers should
// use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Submission errors.
	ErrValidation  = errors.New("validation failed")
	ErrUnknownKind = errors.New("unknown upload kind")

	// Ledger errors.
	ErrLedgerUnavailable  = errors.New("ledger unavailable")
	ErrInvalidLedgerField = errors.New("invalid ledger field")

	// Promotion / handoff errors.
	ErrHandoffFailed  = errors.New("handoff failed")
	ErrHashMismatch   = errors.New("hash mismatch")
	ErrRunInProgress  = errors.New("reconciler run already in progress")
	ErrMissingField   = errors.New("missing upload field")
	ErrNoUploadedFile = errors.New("upload has no file")
)
