// Package security identifies the process on the other end of an arbiter
// connection. It does not authenticate or authorize anything.
package security

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/process"
)

// Peer holds the credentials the kernel recorded for a connected socket.
type Peer struct {
	PID int32
	UID uint32
	GID uint32
}

// Unknown is returned when credentials are unavailable.
var Unknown = Peer{PID: -1}

func (p Peer) Known() bool {
	return p.PID > 0
}

// ProcessName looks up the executable name of the peer process.
func (p Peer) ProcessName() (string, error) {
	if !p.Known() {
		return "", fmt.Errorf("security: unknown peer")
	}
	proc, err := process.NewProcess(p.PID)
	if err != nil {
		return "", fmt.Errorf("security: peer %d: %w", p.PID, err)
	}
	return proc.Name()
}

// Details returns audit fields describing the peer.
func (p Peer) Details() map[string]interface{} {
	d := map[string]interface{}{
		"pid": p.PID,
		"uid": p.UID,
		"gid": p.GID,
	}
	if name, err := p.ProcessName(); err == nil {
		d["process"] = name
	}
	return d
}

func (p Peer) String() string {
	if !p.Known() {
		return "peer(unknown)"
	}
	return fmt.Sprintf("peer(pid=%d uid=%d gid=%d)", p.PID, p.UID, p.GID)
}
