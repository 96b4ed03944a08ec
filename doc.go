// Package authkit is a credential issuance and session lifecycle engine:
// password login, short-lived signed access tokens, rotating opaque refresh
// tokens with reuse detection, and a TOTP plus recovery code second factor.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// authkit is the public surface. It exposes [Engine], [Builder], [Config], the
// repository contracts it depends on, and value types ([IssuedSession],
// [LoginResult], [MFAFactor]). Storage lives behind those contracts; the
// store/memory, store/postgres and store/redis packages implement them.
//
// # Refresh rotation
//
// Refresh tokens are 32 random bytes, stored only as a SHA-256 hash. Each
// rotation marks the presented record used with a conditional write and
// issues a child whose ParentJTI points back, so a family forms a chain.
// Presenting a used token revokes every refresh token of the user and fails
// with [ErrReuseDetected].
//
// # Second factor
//
// A TOTP factor is pending until [Engine.ActivateTOTP] accepts a code for it.
// Only active factors gate [Engine.Login]. Each accepted time step is stored
// per factor and cannot be used again. Recovery codes are stored hashed and
// redeem once.
//
// # What this package must NOT do
//
//   - Log or persist raw refresh tokens, recovery codes or TOTP secrets.
//   - Tell an unknown username apart from a wrong password.
//   - Import any sub-package that re-imports authkit (no import cycles).
package authkit
