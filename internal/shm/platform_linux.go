//go:build linux

package shm

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// CreateAnonymous creates a memfd of the given size. The returned descriptor is
// not visible in any filesystem path.
func CreateAnonymous(name string, size int64) (int, error) {
	fd, err := unix.MemfdCreate(name, unix.MFD_CLOEXEC)
	if err != nil {
		return -1, fmt.Errorf("memfd_create: %w", err)
	}
	if err := unix.Ftruncate(fd, size); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("ftruncate: %w", err)
	}
	return fd, nil
}

// FdSize returns the byte length of the object behind fd.
func FdSize(fd int) (int64, error) {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return 0, fmt.Errorf("fstat: %w", err)
	}
	return st.Size, nil
}

// CloseFd closes a descriptor.
func CloseFd(fd int) error {
	if err := unix.Close(fd); err != nil {
		return fmt.Errorf("close fd %d: %w", fd, err)
	}
	return nil
}

// MapRegion maps opts.Fd read/write and shared for exactly opts.Size bytes.
// With a target address the kernel must not relocate the mapping.
func MapRegion(opts MapOptions) (*MappedRegion, error) {
	if opts.Size <= 0 {
		return nil, fmt.Errorf("mmap: invalid size %d", opts.Size)
	}
	flags := unix.MAP_SHARED
	if opts.Target != 0 {
		flags |= unix.MAP_FIXED_NOREPLACE
	}
	addr, err := unix.MmapPtr(opts.Fd, 0, unsafe.Pointer(opts.Target), uintptr(opts.Size),
		unix.PROT_READ|unix.PROT_WRITE, flags)
	if err != nil {
		return nil, fmt.Errorf("mmap: %w", err)
	}
	// Kernels older than 4.17 treat MAP_FIXED_NOREPLACE as a hint.
	if opts.Target != 0 && uintptr(addr) != opts.Target {
		_ = unix.MunmapPtr(addr, uintptr(opts.Size))
		return nil, fmt.Errorf("mmap: %w", unix.EEXIST)
	}
	return &MappedRegion{Addr: addr, Size: opts.Size}, nil
}

// UnmapRegion unmaps the region over its recorded length.
func UnmapRegion(region *MappedRegion) error {
	if region == nil || region.Addr == nil {
		return nil
	}
	if err := unix.MunmapPtr(region.Addr, uintptr(region.Size)); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	region.Addr = nil
	return nil
}
