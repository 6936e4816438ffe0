// Package control owns the arbitration core for a single scanning-probe
// microscope.
//
// Ownership boundary:
// - problem registry and derived control state
//
// - exclusive ownership (request/release)
//
// - gating and forwarding of device-affecting commands through the gateway
//
// Every request yields exactly one Response; nothing in this package
// returns an error to a client.
//
// Mode precedence:
// - problems present -> problem
//
// - owner present -> automated
//
// - otherwise -> manual
package control
