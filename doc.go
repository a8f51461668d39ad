// Package merco is a multi-tenant identity authority. It turns a verified
// credential (password, one-time code, magic-link token or API key) into a
// bounded-lifetime session made of a signed access token and an opaque
// rotating refresh token, and answers authorization questions from
// role-derived permissions.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// merco is the orchestration surface. Credential checks live in credential,
// token signing in token, session lifecycle in session, permission matching
// in permission and persistence behind the storage interfaces. Every
// operation is scoped by tenant id; the same email in two tenants names two
// unrelated principals.
//
// # Errors
//
// Engine methods return the sentinel errors declared in this package.
// [ErrorCode] and [HTTPStatus] map them to the stable wire codes used by the
// HTTP layer. Storage failures are logged and collapse to [ErrInternal].
//
// # Hot path
//
// [Engine.Authenticate] verifies the access token signature only and performs
// no I/O. [Engine.AuthenticateStrict] adds one session lookup so revocation
// takes effect before the access token expires.
package merco
