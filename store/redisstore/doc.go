// Package redisstore implements the refresh token and login transaction
// contracts of authkit on Redis.
//
// Refresh records are hashes keyed by jti. MarkUsed and Revoke run as Lua
// scripts so concurrent rotations of one token have a single winner across
// every node sharing the Redis deployment. Login transactions use GETDEL for
// single-use consumption.
package redisstore
