// Package router hosts the control router process: the client-facing
// TCP endpoint, the device link, the scan-completion poller and the
// heartbeat log.
package router
