// Package password implements Argon2id password hashing and verification.
//
// Hashes use the PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Verification reads the work factors back out of the stored hash, so
// parameters can be raised without invalidating existing hashes;
// [Hasher.NeedsRehash] tells callers when to re-hash on the next
// successful login.
//
// Password policy (length bounds, required character classes) is the
// engine's job, not this package's.
package password
