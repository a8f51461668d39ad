// Package permission evaluates wildcard resource:action permissions.
//
// # Matching law
//
// A granted permission g matches a required permission r iff
//
//	(g.Resource == "*" || r.Resource == "*" || g.Resource == r.Resource) &&
//	(g.Action   == "*" || r.Action   == "*" || g.Action   == r.Action)
//
// The bare string "*" parses as "*:*". A principal is authorized when any one
// of its effective permissions matches; permissions only ever add.
//
// # Architecture boundaries
//
// [Permission.Matches] and [Set.Allows] are pure. [Evaluator] reads role
// assignments through a [RoleSource] and never writes.
//
// # What this package must NOT do
//
//   - Mutate roles or assignments.
//   - Import the root merco package.
package permission
