// Package memory provides process-local implementations of every authkit
// repository contract. Each store guards its state with a mutex, which makes
// MarkUsed, ActivateFactor and AdvanceStep atomic per record.
//
// Use it for tests, development and single-instance deployments. State is
// lost on restart.
package memory
