// Package secrets resolves named secrets (signing keys, client keys, the MFA
// sealing key) and caches them.
//
// [Source] implementations read from the environment, a mounted directory or a
// fixed map. [Cache] wraps any source with a single-flight guarded lazy cache
// that can be invalidated per name after a rotation. [Box] seals MFA shared
// secrets at rest.
package secrets
