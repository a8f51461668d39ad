// Package storage defines the persisted entities of the identity authority and
// the capability interfaces each backend implements.
//
// # Architecture boundaries
//
// Backends live in sub-packages: memory (tests and development), postgres
// (production relational store) and redis (sessions and single-use tokens).
// Sessions are owned by the session package; this package only carries users,
// verification tokens, API keys and roles.
//
// # What this package must NOT do
//
//   - Hash, mint, or compare secrets. Callers pass hashes in and get hashes out.
//   - Import any other merco package.
package storage
