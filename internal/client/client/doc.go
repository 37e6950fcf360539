// Package client talks to the intake HTTP API on behalf of the operator
// console.
//
// APIClient wraps the /api/v1 routes: Submit posts a multipart upload, Get,
// List and Dashboard read the registry, Reconcile triggers a promotion run
// and RecordResponse feeds an authority verdict into the handoff ledger.
// Ping probes /healthz and is used by the online status watcher.
//
// Transport failures are reported as ErrUnavailable. Unexpected status codes
// surface as *netx.StatusError; 404 also matches ErrNotFound.
package client
