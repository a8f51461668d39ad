// Package password implements Argon2id hashing and the credential shape policy.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Argon2.NeedsUpgrade] reports hashes produced with weaker parameters so the
// caller can re-hash on the next successful sign-in.
//
// # Policy
//
// [ValidatePassword], [ValidateEmail] and [ValidatePhone] are pure shape checks
// run before any store access.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Import any other merco package.
//   - Log plaintext passwords.
package password
