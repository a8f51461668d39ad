// Package internal contains helpers that are private to the merco module,
// chiefly secure random minting of the prefixed opaque secrets.
//
// # Wire shapes
//
//	rt_<64>     refresh token (48 random bytes)
//	sess_<32>   session id (24 random bytes)
//	mk_<32>     API key (24 random bytes)
//	ml_<48>     magic-link token (36 random bytes)
//	reset_<48>  password-reset token (36 random bytes)
//
// Bodies are base64url without padding. Every secret is persisted only as
// [HashSecret] (hex SHA-256).
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - bootstrap: config to running engine, shared by the binaries
//   - config: environment loading for the binaries
//   - httpapi: chi router and JSON handlers
//   - ids: ULID minting
//   - jobs: asynq tasks for delivery and periodic sweeps
//   - rate: fixed-window rate limiters (in-memory and Redis)
//
// # What this package must NOT do
//
//   - Export types that appear in the public merco API.
//   - Be imported by any package outside the merco module.
package internal
