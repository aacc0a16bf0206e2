//go:build linux

package transport

import (
	"fmt"
	"math/rand"
	"net"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// TestAbstractNameFillsSunPath binds a short abstract name and checks the
// kernel recorded all 108 bytes of sun_path, which is how a C peer calling
// bind(fd, &addr, sizeof(addr)) names the same socket.
func TestAbstractNameFillsSunPath(t *testing.T) {
	name := fmt.Sprintf("shm-addr-test-%d-%d", os.Getpid(), rand.Int63())
	addr, err := ResolveAddr("@" + name)
	require.NoError(t, err)
	ln, err := net.ListenUnix("unix", addr)
	require.NoError(t, err)
	defer ln.Close()

	table, err := os.ReadFile("/proc/net/unix")
	require.NoError(t, err)
	// the kernel prints every NUL of an abstract name as '@'
	want := "@" + name + strings.Repeat("@", SunPathLen-1-len(name))
	found := false
	for _, line := range strings.Split(string(table), "\n") {
		fields := strings.Fields(line)
		if len(fields) > 0 && fields[len(fields)-1] == want {
			found = true
			break
		}
	}
	assert.True(t, found, "no socket named %q in /proc/net/unix", want)
}

// TestSizeofPeerConnects connects the way a C client does, with the name
// zero-filled to the end of sun_path, and expects to reach the listener.
func TestSizeofPeerConnects(t *testing.T) {
	address := fmt.Sprintf("@shm-addr-test-%d-%d", os.Getpid(), rand.Int63())
	addr, err := ResolveAddr(address)
	require.NoError(t, err)
	ln, err := net.ListenUnix("unix", addr)
	require.NoError(t, err)
	defer ln.Close()

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	defer unix.Close(fd)
	padded := address + strings.Repeat("\x00", SunPathLen-len(address))
	require.NoError(t, unix.Connect(fd, &unix.SockaddrUnix{Name: padded}))

	// the short form is a different socket
	short, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	defer unix.Close(short)
	assert.Error(t, unix.Connect(short, &unix.SockaddrUnix{Name: address}))
}
