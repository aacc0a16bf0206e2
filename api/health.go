// Package api defines public API contracts for shm-arbiter.
package api

// Health reports arbiter liveness and readiness.
type Health interface {
	// Live returns nil while the request loop has not failed.
	Live() error
	// Ready returns nil while the listening socket accepts connections.
	Ready() error
}
