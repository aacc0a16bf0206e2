//go:build linux

package shm

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/srediag/shm-arbiter/api"
	"github.com/srediag/shm-arbiter/pkg/protocol"
	"github.com/srediag/shm-arbiter/pkg/transport"
)

// fakeArbiter answers one request by passing a memfd of replySize bytes.
func fakeArbiter(t *testing.T, replySize int64) (string, <-chan protocol.Request) {
	address := testAddress("fake")
	ln, err := transport.Listen(address)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	got := make(chan protocol.Request, 1)
	go func() {
		uc, err := ln.AcceptUnix()
		if err != nil {
			return
		}
		conn := transport.NewConn(uc)
		defer conn.Close()
		req, err := conn.ReadRequest()
		if err != nil {
			return
		}
		got <- req
		fd, err := unix.MemfdCreate("fake", unix.MFD_CLOEXEC)
		if err != nil {
			return
		}
		defer unix.Close(fd)
		if err := unix.Ftruncate(fd, replySize); err != nil {
			return
		}
		_ = conn.SendFd(fd)
	}()
	return address, got
}

// statusArbiter answers one request with the given status reply.
func statusArbiter(t *testing.T, status int32) (string, <-chan protocol.Request) {
	address := testAddress("status")
	ln, err := transport.Listen(address)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	got := make(chan protocol.Request, 1)
	go func() {
		uc, err := ln.AcceptUnix()
		if err != nil {
			return
		}
		conn := transport.NewConn(uc)
		defer conn.Close()
		req, err := conn.ReadRequest()
		if err != nil {
			return
		}
		got <- req
		_ = conn.WriteStatus(status)
	}()
	return address, got
}

func newTestClient(t *testing.T, address string) *Client {
	cc := DefaultClientConfig()
	cc.Address = address
	cc.LogOutput = io.Discard
	c, err := NewClient(cc)
	require.NoError(t, err)
	return c
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestClientSizeMismatch(t *testing.T) {
	address, got := fakeArbiter(t, 2048)
	_, err := newTestClient(t, address).Create(testCtx(t), "buf", 1024)
	assert.ErrorIs(t, err, ErrSizeMismatch)

	req := <-got
	assert.Equal(t, protocol.ModeCreate, req.Mode)
	assert.Equal(t, "buf", req.Name.String())
	assert.Equal(t, uint64(1024), req.Size)
}

func TestClientZeroLength(t *testing.T) {
	address, _ := fakeArbiter(t, 0)
	_, err := newTestClient(t, address).Get(testCtx(t), "empty")
	assert.ErrorIs(t, err, ErrZeroLength)
}

func TestClientGetAcceptsAnySize(t *testing.T) {
	address, got := fakeArbiter(t, 12288)
	h, err := newTestClient(t, address).Get(testCtx(t), "any")
	require.NoError(t, err)
	defer h.Close()
	assert.Equal(t, 12288, h.Size())
	assert.Equal(t, uint64(0), (<-got).Size)
}

func TestClientInvalidSize(t *testing.T) {
	c := newTestClient(t, testAddress("nobody"))
	_, err := c.Create(testCtx(t), "zero", 0)
	assert.ErrorIs(t, err, ErrInvalidSize)
	_, err = c.Create(testCtx(t), "negative", -1)
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestClientUnreachable(t *testing.T) {
	c := newTestClient(t, testAddress("nobody"))
	_, err := c.Get(testCtx(t), "x")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Error(t, c.Quit(testCtx(t)))
}

func TestNewClientBadAddress(t *testing.T) {
	cc := DefaultClientConfig()
	cc.Address = ""
	_, err := NewClient(cc)
	assert.Error(t, err)

	c, err := NewClient(nil)
	require.NoError(t, err)
	assert.Equal(t, "@shm_man", c.Address())
}

func TestSegmentClient(t *testing.T) {
	address, _ := fakeArbiter(t, 4096)
	var sc api.SegmentClient = newTestClient(t, address).Segments()
	seg, err := sc.Get(testCtx(t), "any")
	require.NoError(t, err)
	defer seg.Close()
	assert.Equal(t, 4096, seg.Size())
	require.NoError(t, seg.Map(0))
	assert.NotZero(t, seg.Addr())

	_, err = sc.Create(testCtx(t), "zero", 0)
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestClientFailureStatus(t *testing.T) {
	address, got := statusArbiter(t, -1)
	err := newTestClient(t, address).Remove(testCtx(t), "buf")
	assert.ErrorIs(t, err, ErrStatus)
	assert.NotErrorIs(t, err, ErrNotFound)
	req := <-got
	assert.Equal(t, protocol.ModeRemove, req.Mode)
	assert.Equal(t, "buf", req.Name.String())

	address, _ = statusArbiter(t, 3)
	assert.ErrorIs(t, newTestClient(t, address).Quit(testCtx(t)), ErrStatus)

	address, _ = statusArbiter(t, protocol.StatusOK)
	assert.NoError(t, newTestClient(t, address).Quit(testCtx(t)))
}
