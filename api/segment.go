// Package api defines public API contracts for shm-arbiter.
package api

// Segment is the client-side view of a named shared-memory segment, as
// consumed by language bindings.
type Segment interface {
	// Fd returns the owned descriptor, or -1 once released.
	Fd() int
	// Addr returns the mapped base address, or 0 before Map.
	Addr() uintptr
	Size() int
	// Map maps the segment at target, or anywhere when target is 0.
	Map(target uintptr) error
	Close() error
}
