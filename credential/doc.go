// Package credential turns presented proofs of identity into principals.
//
// Supported proofs are passwords (Argon2id), single-use verification tokens
// (OTP codes, magic links, reset tokens), API keys and TOTP codes.
//
// # Indistinguishability
//
// Unknown user and wrong password both yield [ErrInvalidCredentials], and a
// dummy hash compare runs for unknown users. Wrong, expired and already used
// single-use tokens all yield [ErrInvalidToken].
//
// # What this package must NOT do
//
//   - Create sessions or mint access tokens.
//   - Write anything except the used-at mark on a consumed token.
package credential
