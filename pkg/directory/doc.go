// Package directory adapts the external user directory that acts as the
// system of record for subscription state.
//
// Every user has an identity (id, email) and an app-metadata record the
// directory treats as an opaque key-value document. This package exposes the
// operations the reconciler and the seat manager need (lookup by id and
// email, user provisioning, partial metadata updates, reverse member
// search), a Patch type with explicit key-removal semantics, an HTTP client
// for the real directory API, and an in-memory client for tests and local
// development.
//
// The directory is authoritative: no local cache of its contents may be
// treated as truth. Transient failures of the HTTP client are retried with
// bounded attempts and backoff; authorization failures are not retried and
// propagate immediately.
package directory
