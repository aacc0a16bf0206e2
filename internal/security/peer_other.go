//go:build !linux

package security

import (
	"errors"
	"net"
)

func PeerOf(conn *net.UnixConn) (Peer, error) {
	return Unknown, errors.New("security: peer credentials are not supported on this platform")
}
