// Package transport carries one request and one reply over a single-use unix
// stream connection between a client and the arbiter.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/valyala/bytebufferpool"

	itransport "github.com/srediag/shm-arbiter/internal/transport"
	"github.com/srediag/shm-arbiter/pkg/protocol"
)

var (
	// ErrFraming marks a connection that did not carry a well-formed request.
	// The arbiter drops such connections and keeps serving.
	ErrFraming = errors.New("transport: malformed request")
	// ErrNoReply is returned when the peer closed the connection without replying.
	ErrNoReply = errors.New("transport: connection closed without reply")
	// ErrDescriptorCount is returned when a descriptor reply does not carry exactly one descriptor.
	ErrDescriptorCount = errors.New("transport: expected exactly one descriptor")
)

// fdPayload is the single data byte that accompanies a passed descriptor.
var fdPayload = []byte{'!'}

// Conn wraps a unix stream connection used for a single exchange.
type Conn struct {
	conn *net.UnixConn
	stop func() bool
}

// NewConn wraps an accepted connection.
func NewConn(c *net.UnixConn) *Conn {
	return &Conn{conn: c}
}

// Dial connects to the arbiter at address. Cancelling ctx unblocks any
// pending read or write on the returned Conn.
func Dial(ctx context.Context, address string) (*Conn, error) {
	addr, err := itransport.ResolveAddr(address)
	if err != nil {
		return nil, err
	}
	var d net.Dialer
	c, err := d.DialContext(ctx, "unix", addr.Name)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	uc := c.(*net.UnixConn)
	if deadline, ok := ctx.Deadline(); ok {
		_ = uc.SetDeadline(deadline)
	}
	return &Conn{
		conn: uc,
		stop: context.AfterFunc(ctx, func() {
			_ = uc.SetDeadline(time.Unix(1, 0))
		}),
	}, nil
}

// Listen binds address. Stale socket files at a filesystem address are removed first.
func Listen(address string) (*net.UnixListener, error) {
	addr, err := itransport.ResolveAddr(address)
	if err != nil {
		return nil, err
	}
	itransport.RemoveStaleSocket(address)
	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", address, err)
	}
	return ln, nil
}

// UnixConn exposes the underlying connection.
func (c *Conn) UnixConn() *net.UnixConn {
	return c.conn
}

// SetDeadline bounds every following read and write.
func (c *Conn) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}

func (c *Conn) Close() error {
	if c.stop != nil {
		c.stop()
	}
	return c.conn.Close()
}

// WriteRequest sends req verbatim.
func (c *Conn) WriteRequest(req protocol.Request) error {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	buf.B = req.AppendBinary(buf.B)
	if _, err := c.conn.Write(buf.B); err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	return nil
}

// ReadRequest reads exactly protocol.RequestSize bytes. Short reads, unknown
// modes, resets and expired deadlines are reported as ErrFraming; any other
// failure is a socket error.
func (c *Conn) ReadRequest() (protocol.Request, error) {
	var (
		req protocol.Request
		raw [protocol.RequestSize]byte
	)
	n, err := io.ReadFull(c.conn, raw[:])
	if err != nil {
		if isPeerGone(err) || errors.Is(err, os.ErrDeadlineExceeded) {
			return req, fmt.Errorf("%w: read %d of %d bytes: %v", ErrFraming, n, protocol.RequestSize, err)
		}
		return req, fmt.Errorf("recv request: %w", err)
	}
	if err := req.UnmarshalBinary(raw[:]); err != nil {
		return req, fmt.Errorf("%w: %v", ErrFraming, err)
	}
	return req, nil
}

// WriteStatus sends a status reply.
func (c *Conn) WriteStatus(status int32) error {
	if _, err := c.conn.Write(protocol.AppendStatus(nil, status)); err != nil {
		return fmt.Errorf("send status: %w", err)
	}
	return nil
}

// ReadStatus reads a status reply.
func (c *Conn) ReadStatus() (int32, error) {
	var raw [protocol.StatusSize]byte
	n, err := io.ReadFull(c.conn, raw[:])
	if err != nil {
		if n == 0 && isPeerGone(err) {
			return 0, ErrNoReply
		}
		return 0, fmt.Errorf("recv status: %w", err)
	}
	return protocol.ParseStatus(raw[:])
}

// SendFd passes fd to the peer. The caller keeps its own copy of fd.
func (c *Conn) SendFd(fd int) error {
	n, oobn, err := c.conn.WriteMsgUnix(fdPayload, itransport.PackRights(fd), nil)
	if err != nil {
		return fmt.Errorf("send fd: %w", err)
	}
	if n != len(fdPayload) || oobn == 0 {
		return fmt.Errorf("send fd: short write")
	}
	return nil
}

// RecvFd receives exactly one passed descriptor, which the caller then owns.
func (c *Conn) RecvFd() (int, error) {
	payload := make([]byte, len(fdPayload))
	oob := make([]byte, itransport.RightsSpace)
	n, oobn, flags, _, err := c.conn.ReadMsgUnix(payload, oob)
	var fds []int
	if oobn > 0 {
		var perr error
		fds, perr = itransport.UnpackRights(oob[:oobn])
		if perr != nil && err == nil {
			err = perr
		}
	}
	if err != nil {
		itransport.CloseAll(fds)
		if n == 0 && oobn == 0 && isPeerGone(err) {
			return -1, ErrNoReply
		}
		return -1, fmt.Errorf("recv fd: %w", err)
	}
	if itransport.ControlTruncated(flags) || len(fds) != 1 {
		itransport.CloseAll(fds)
		return -1, fmt.Errorf("%w: got %d", ErrDescriptorCount, len(fds))
	}
	return fds[0], nil
}

func isPeerGone(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE)
}
