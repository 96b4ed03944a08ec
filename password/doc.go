// Package password implements Argon2id password hashing.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Salt and hash segments are unpadded standard base64, which is what other
// argon2 implementations (libsodium, node-argon2) emit, so hashes created by
// those tools verify here. [Argon2.NeedsUpgrade] reports hashes created with
// weaker parameters so a caller can re-hash after a successful login.
//
// This package owns hashing and verification only. It never stores passwords
// and never logs plaintext or hash parameters.
package password
