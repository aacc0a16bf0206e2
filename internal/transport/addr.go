// Package transport contains low-level unix socket helpers for the arbiter protocol.
package transport

import (
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"
)

// DefaultAddress is the abstract-namespace socket shared by every arbiter and
// client on the host. It has no filesystem path.
const DefaultAddress = "@shm_man"

// SunPathLen is the size of sun_path in struct sockaddr_un on Linux.
const SunPathLen = 108

// IsAbstract reports whether address names a Linux abstract socket.
func IsAbstract(address string) bool {
	return strings.HasPrefix(address, "@")
}

// ResolveAddr turns an address string into a unix stream address.
//
// Abstract names are NUL-padded to the whole sun_path, the way C peers that
// pass sizeof(struct sockaddr_un) to bind and connect name their socket. The
// kernel compares abstract names by length, so "@shm_man" only meets such a
// peer in its padded form.
func ResolveAddr(address string) (*net.UnixAddr, error) {
	if address == "" || address == "@" {
		return nil, fmt.Errorf("transport: empty socket address")
	}
	if IsAbstract(address) {
		if len(address) > SunPathLen {
			return nil, fmt.Errorf("transport: abstract address longer than %d bytes", SunPathLen)
		}
		address += strings.Repeat("\x00", SunPathLen-len(address))
	}
	return &net.UnixAddr{Net: "unix", Name: address}, nil
}

// RemoveStaleSocket removes a leftover socket file so a path-based address can
// be bound again. Abstract addresses are left alone. It reports whether a file
// was removed.
func RemoveStaleSocket(address string) bool {
	if IsAbstract(address) {
		return false
	}
	fi, err := os.Lstat(address)
	if err != nil || fi.Mode()&os.ModeSocket == 0 {
		return false
	}
	return syscall.Unlink(address) == nil
}
