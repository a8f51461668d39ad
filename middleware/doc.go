// Package middleware adapts merco.Engine to net/http.
//
// # Guards
//
//   - [Guard] verifies the bearer access token in the mode given.
//   - [RequireJWTOnly] checks the signature only and performs no I/O.
//   - [RequireStrict] also requires the session to be live.
//   - [RequirePermission] checks a resource:action permission after a guard.
//
// [APIKey] resolves the tenant from the X-API-Key header and [ClientMeta]
// records the caller address. [RateLimit] spends the per-caller request
// budget; mount it after APIKey so the budget follows the verified key.
//
// Errors are written as {"error": code, "message": text} by [WriteError].
// The middleware makes no decisions of its own; every check is an Engine call.
package middleware
