// Package token issues and verifies access tokens and mints opaque refresh tokens.
//
// Access tokens are JWTs (HS256 by default, EdDSA optional) carrying
// sub, tid, sid, roles, permissions, iat, exp and iss. They are stateless:
// validity is signature plus expiry.
//
// Refresh tokens are "rt_" followed by 64 base64url characters. They are only
// valid while a usable session holds their hash; that check belongs to the
// session package.
//
// # What this package must NOT do
//
//   - Touch any store.
//   - Import the root merco package.
package token
