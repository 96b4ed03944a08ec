// Package jwt signs and verifies access tokens and publishes the verification
// key as a JWK set.
//
// Key material is read lazily from a [KeySource] (a secret store) the first
// time a token is signed or parsed, guarded so concurrent first calls share a
// single load. [Manager.Invalidate] forces a reload after a key rotation.
package jwt
