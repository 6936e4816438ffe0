// Package device owns the router's link to the SPM device server and a
// simulated device server used for bench runs and tests.
//
// Ownership boundary:
// - Link: framed request/reply client implementing control.Device
// - Scanner: simulated scan state machine
// - Server: TCP endpoint that drives a Scanner
package device
