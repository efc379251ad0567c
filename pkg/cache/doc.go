// Package cache provides a bounded TTL cache for short-lived lookup results
// such as bearer-token→user-id and provider-id→user-id mappings.
//
// Entries are capped by an LRU eviction policy and expire after a fixed TTL.
// The clock is injected so expiry is testable without sleeping. Nothing in
// this cache is authoritative: the external user directory remains the
// system of record and every cached value must tolerate being stale or
// dropped at any moment.
package cache
