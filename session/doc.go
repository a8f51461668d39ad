// Package session owns the session lifecycle: creation, refresh-token rotation,
// revocation and expiry sweeps.
//
// # State machine
//
//	Active --refresh--> Active (new refresh hash, extended expiry)
//	Active --revoke---> Revoked (terminal)
//	Active --time-----> Expired (observed lazily at read time)
//
// Rotation is a compare-and-swap on the stored refresh hash: of N concurrent
// refreshes presenting the same token exactly one wins, the rest get
// [ErrInvalidToken].
//
// # Architecture boundaries
//
// [Manager] mints tokens through token.Issuer and persists through [Store].
// [RedisStore] is the Redis implementation; relational and in-memory stores
// live under storage/.
//
// # What this package must NOT do
//
//   - Evaluate permissions or load users. The caller supplies a [PrincipalLoader].
//   - Persist raw refresh tokens.
//   - Import the root merco package.
package session
