// Package api defines public API contracts for shm-arbiter.
package api

import "context"

// Lifecycle starts and stops an arbiter owned by the caller.
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	State() string
}
