//go:build linux

package transport

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// RightsSpace is the control buffer size needed to receive one descriptor.
var RightsSpace = unix.CmsgSpace(4)

// PackRights encodes fds as SCM_RIGHTS control data.
func PackRights(fds ...int) []byte {
	return unix.UnixRights(fds...)
}

// UnpackRights extracts every descriptor carried in oob. The caller owns all
// returned descriptors, including when it rejects them.
func UnpackRights(oob []byte) ([]int, error) {
	msgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, fmt.Errorf("parse control message: %w", err)
	}
	var fds []int
	for i := range msgs {
		if msgs[i].Header.Level != unix.SOL_SOCKET || msgs[i].Header.Type != unix.SCM_RIGHTS {
			continue
		}
		got, err := unix.ParseUnixRights(&msgs[i])
		if err != nil {
			CloseAll(fds)
			return nil, fmt.Errorf("parse unix rights: %w", err)
		}
		fds = append(fds, got...)
	}
	return fds, nil
}

// CloseAll closes every descriptor, ignoring errors.
func CloseAll(fds []int) {
	for _, fd := range fds {
		_ = unix.Close(fd)
	}
}

// ControlTruncated reports whether recvmsg dropped control data, which happens
// when the peer sent more descriptors than the buffer holds.
func ControlTruncated(flags int) bool {
	return flags&unix.MSG_CTRUNC != 0
}
