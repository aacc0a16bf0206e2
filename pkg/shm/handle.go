/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package shm

import (
	"errors"
	"fmt"
	"syscall"
	"unsafe"

	"github.com/srediag/shm-arbiter/api"
	ishm "github.com/srediag/shm-arbiter/internal/shm"
)

var (
	ErrAlreadyMapped      = errors.New("shm: handle is already mapped")
	ErrAddressUnavailable = errors.New("shm: target address is unavailable")
	ErrReleased           = errors.New("shm: handle has no descriptor")
	ErrNotMapped          = errors.New("shm: handle is not mapped")
	ErrOutOfRange         = errors.New("shm: offset out of range")
)

// Handle owns a segment descriptor and at most one mapping of it.
type Handle struct {
	fd     int
	size   int
	region *ishm.MappedRegion
}

var _ api.Segment = (*Handle)(nil)

func newHandle(fd, size int) *Handle {
	return &Handle{fd: fd, size: size}
}

// Fd returns the raw descriptor, or -1 after Close or Move.
func (h *Handle) Fd() int {
	return h.fd
}

// Size is the segment length as reported by the kernel.
func (h *Handle) Size() int {
	return h.size
}

// Addr returns the mapped base address, or 0 when unmapped.
func (h *Handle) Addr() uintptr {
	if h.region == nil {
		return 0
	}
	return uintptr(h.region.Addr)
}

// Mapped reports whether Map succeeded.
func (h *Handle) Mapped() bool {
	return h.region != nil
}

// Bytes returns the mapping as a slice of exactly Size bytes. It is nil when
// unmapped and must not be used after Close.
func (h *Handle) Bytes() []byte {
	return h.region.Bytes()
}

// Map maps the descriptor read/write and shared for Size bytes. A non-zero
// target must be honoured exactly; the kernel is never allowed to relocate or
// replace an existing mapping. A handle maps at most once.
func (h *Handle) Map(target uintptr) error {
	if h.fd < 0 {
		return ErrReleased
	}
	if h.region != nil {
		return ErrAlreadyMapped
	}
	region, err := ishm.MapRegion(ishm.MapOptions{Fd: h.fd, Size: h.size, Target: target})
	if err != nil {
		if target != 0 && errors.Is(err, syscall.EEXIST) {
			return fmt.Errorf("%w: %#x: %v", ErrAddressUnavailable, target, err)
		}
		return err
	}
	h.region = region
	return nil
}

// Move transfers the descriptor and mapping to a new Handle. h is left empty
// and closing it is a no-op.
func (h *Handle) Move() *Handle {
	n := &Handle{fd: h.fd, size: h.size, region: h.region}
	h.fd, h.size, h.region = -1, 0, nil
	return n
}

// Close unmaps the segment, then closes the descriptor. Both steps are
// attempted; their errors are joined.
func (h *Handle) Close() error {
	var errs []error
	if h.region != nil {
		if err := ishm.UnmapRegion(h.region); err != nil {
			errs = append(errs, err)
		}
		h.region = nil
	}
	if h.fd >= 0 {
		if err := ishm.CloseFd(h.fd); err != nil {
			errs = append(errs, err)
		}
		h.fd = -1
	}
	return errors.Join(errs...)
}

func (h *Handle) word(off int) (unsafe.Pointer, error) {
	if h.region == nil {
		return nil, ErrNotMapped
	}
	if off < 0 || off%8 != 0 || off+8 > h.size {
		return nil, fmt.Errorf("%w: %d", ErrOutOfRange, off)
	}
	return unsafe.Add(h.region.Addr, off), nil
}

// LoadUint64 atomically reads the 8-byte aligned word at off.
func (h *Handle) LoadUint64(off int) (uint64, error) {
	p, err := h.word(off)
	if err != nil {
		return 0, err
	}
	return ishm.AtomicLoadUint64(p), nil
}

// StoreUint64 atomically writes the 8-byte aligned word at off.
func (h *Handle) StoreUint64(off int, v uint64) error {
	p, err := h.word(off)
	if err != nil {
		return err
	}
	ishm.AtomicStoreUint64(p, v)
	return nil
}

// CompareAndSwapUint64 atomically swaps the word at off from old to new.
func (h *Handle) CompareAndSwapUint64(off int, old, new uint64) (bool, error) {
	p, err := h.word(off)
	if err != nil {
		return false, err
	}
	return ishm.AtomicCompareAndSwapUint64(p, old, new), nil
}

// AddUint64 atomically adds delta to the word at off and returns the result.
func (h *Handle) AddUint64(off int, delta uint64) (uint64, error) {
	p, err := h.word(off)
	if err != nil {
		return 0, err
	}
	return ishm.AtomicAddUint64(p, delta), nil
}
