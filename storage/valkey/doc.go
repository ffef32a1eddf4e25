// Package valkey provides a Valkey-backed implementation of all storage
// interfaces for multi-instance deployments.
//
// Valkey is a Redis-compatible in-memory data store; this package works
// against both. Atomicity requirements of the storage contracts are met
// with native commands where possible (SET NX for nonce insertion) and
// small Lua scripts where a compare-and-swap is needed (token exchange
// and renewal).
//
// Key layout, under a configurable prefix (default "oauthsp:"):
//
//	{prefix}consumer:{key}        registered consumer, JSON
//	{prefix}token:{key}           token record, JSON
//	{prefix}nonce:{triple}        nonce marker with TTL
//
// Token records carry a TTL covering the renewal window, so expired and
// unrenewable tokens age out without a cleanup process.
package valkey
