// Package postgres implements every authkit repository contract on
// PostgreSQL through pgxpool.
//
// Conditional updates carry the atomicity the engine relies on:
//
//	MarkUsed      UPDATE ... WHERE used = false AND revoked_at IS NULL
//	AdvanceStep   UPDATE ... WHERE last_used_step < $step
//	recovery use  UPDATE ... WHERE used_at IS NULL
//
// ActivateFactor and ReplaceCodes run in a transaction. The schema ships as
// embedded SQL; call Store.Migrate before first use.
package postgres
