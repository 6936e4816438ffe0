// Package session owns typed frame helpers for the router's two links.
//
// Ownership boundary:
// - client<->router control and state frames
// - router<->device command, result and status frames
// - error frames
// - transport timeouts and retry backoff
package session
