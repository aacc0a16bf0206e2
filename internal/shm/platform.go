// Package shm contains platform-specific helpers for memfd-backed segments.
package shm

import (
	"errors"
	"unsafe"
)

// ErrUnsupported is returned on platforms without memfd and descriptor passing.
var ErrUnsupported = errors.New("shm: memfd segments are not supported on this platform")

// MappedRegion represents a memory-mapped shared region.
type MappedRegion struct {
	Addr unsafe.Pointer
	Size int
}

// Bytes returns the region as a byte slice. The slice is only valid until UnmapRegion.
func (r *MappedRegion) Bytes() []byte {
	if r == nil || r.Addr == nil {
		return nil
	}
	return unsafe.Slice((*byte)(r.Addr), r.Size)
}

// MapOptions defines options for mapping a segment descriptor.
type MapOptions struct {
	Fd   int
	Size int
	// Target requests a mapping at exactly this address. Zero lets the kernel choose.
	Target uintptr
}

// Function implementations are provided in platform-specific files (platform_linux.go, platform_other.go).
