// Package api defines public API contracts for shm-arbiter.
package api

import "context"

// SegmentClient is the caller-facing view of an arbiter, as consumed by
// language bindings. Create and Get hand back a Segment the caller owns.
type SegmentClient interface {
	Create(ctx context.Context, name string, size int) (Segment, error)
	Get(ctx context.Context, name string) (Segment, error)
	Remove(ctx context.Context, name string) error
	Quit(ctx context.Context) error
}
