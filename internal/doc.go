// Package internal holds token and recovery-code primitives shared by the
// engine and the store adapters: random values, hashing and formatting.
package internal
