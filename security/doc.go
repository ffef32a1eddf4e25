// Package security provides the supporting security features of the
// service provider: credential generation, audit logging, per-client rate
// limiting, request ID propagation and response header hardening.
//
// Nothing in this package implements protocol rules; those live in the
// root package and in signature. This package exists so that the pieces
// every deployment wants around the protocol — "who did what" audit
// trails, DoS resistance on the token endpoints, cache-safety headers on
// credential responses — ship with the library instead of being
// reinvented per deployment.
package security
