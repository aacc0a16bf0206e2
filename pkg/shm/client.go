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
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/srediag/shm-arbiter/adapter"
	"github.com/srediag/shm-arbiter/api"
	"github.com/srediag/shm-arbiter/internal/logger"
	ishm "github.com/srediag/shm-arbiter/internal/shm"
	itransport "github.com/srediag/shm-arbiter/internal/transport"
	"github.com/srediag/shm-arbiter/pkg/protocol"
	"github.com/srediag/shm-arbiter/pkg/transport"
)

var (
	// ErrNotFound is returned when the arbiter drops a Get or Remove without
	// replying. The protocol has no soft reply, so this is how an unknown name
	// surfaces.
	ErrNotFound = errors.New("shm: segment not found")
	// ErrRejected is returned when the arbiter drops a Create without replying,
	// typically because the name is already registered.
	ErrRejected = errors.New("shm: create rejected by arbiter")
	// ErrStatus is returned for a non-zero status reply.
	ErrStatus = errors.New("shm: arbiter returned failure status")

	ErrInvalidSize  = errors.New("shm: invalid segment size")
	ErrZeroLength   = errors.New("shm: received descriptor has zero length")
	ErrSizeMismatch = errors.New("shm: received descriptor has wrong length")
)

// ClientConfig is used to tune a Client.
type ClientConfig struct {
	// Address of the arbiter socket. A leading '@' selects the abstract namespace.
	Address string

	// Meter and Tracer instrument every request. Nil uses the global providers.
	Meter  metric.Meter
	Tracer trace.Tracer

	// LogOutput is used to control the log destination.
	LogOutput io.Writer
}

// DefaultClientConfig returns a configuration for the default arbiter address.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Address:   itransport.DefaultAddress,
		LogOutput: os.Stdout,
	}
}

// Client sends requests to one arbiter. Each request uses its own connection,
// so a Client is safe for concurrent use.
type Client struct {
	address string
	inst    *adapter.Instruments
	logger  *logger.Logger
}

// NewClient returns a client for conf. A nil conf means DefaultClientConfig.
func NewClient(conf *ClientConfig) (*Client, error) {
	if conf == nil {
		conf = DefaultClientConfig()
	}
	if _, err := itransport.ResolveAddr(conf.Address); err != nil {
		return nil, err
	}
	inst, err := adapter.NewInstruments(conf.Meter, conf.Tracer)
	if err != nil {
		return nil, fmt.Errorf("shm: instruments: %w", err)
	}
	return &Client{
		address: conf.Address,
		inst:    inst,
		logger:  logger.New("client", conf.LogOutput),
	}, nil
}

func (c *Client) Address() string {
	return c.address
}

// Create asks the arbiter for a new segment of size bytes. The returned
// descriptor must be exactly size bytes long; anything else means the arbiter
// handed back a different segment.
func (c *Client) Create(ctx context.Context, name string, size int) (*Handle, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	return c.open(ctx, protocol.ModeCreate, name, size)
}

// Get looks up an existing segment.
func (c *Client) Get(ctx context.Context, name string) (*Handle, error) {
	return c.open(ctx, protocol.ModeGet, name, 0)
}

// Remove drops the arbiter's reference to name. Handles already obtained stay valid.
func (c *Client) Remove(ctx context.Context, name string) error {
	return c.status(ctx, protocol.NewRequest(protocol.ModeRemove, name, 0))
}

// Quit stops the arbiter after it replies.
func (c *Client) Quit(ctx context.Context) error {
	return c.status(ctx, protocol.NewRequest(protocol.ModeQuit, "", 0))
}

func (c *Client) open(ctx context.Context, mode protocol.Mode, name string, size int) (h *Handle, err error) {
	ctx, end := c.inst.Start(ctx, mode.String(), attribute.String("shm.name", name))
	defer func() { end(err) }()

	conn, err := transport.Dial(ctx, c.address)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	req := protocol.NewRequest(mode, name, uint64(size))
	c.logger.Debugf("sending %s", req)
	if err := conn.WriteRequest(req); err != nil {
		return nil, err
	}
	fd, err := conn.RecvFd()
	if err != nil {
		if errors.Is(err, transport.ErrNoReply) {
			if mode == protocol.ModeCreate {
				return nil, fmt.Errorf("%w: %q", ErrRejected, name)
			}
			return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
		}
		return nil, err
	}
	actual, err := ishm.FdSize(fd)
	if err != nil {
		_ = ishm.CloseFd(fd)
		return nil, err
	}
	switch {
	case actual == 0:
		err = ErrZeroLength
	case mode == protocol.ModeCreate && actual != int64(size):
		err = fmt.Errorf("%w: got %d, want %d", ErrSizeMismatch, actual, size)
	}
	if err != nil {
		_ = ishm.CloseFd(fd)
		return nil, err
	}
	c.logger.Tracef("received fd %d for %q (%d bytes)", fd, name, actual)
	return newHandle(fd, int(actual)), nil
}

func (c *Client) status(ctx context.Context, req protocol.Request) (err error) {
	ctx, end := c.inst.Start(ctx, req.Mode.String(), attribute.String("shm.name", req.Name.String()))
	defer func() { end(err) }()

	conn, err := transport.Dial(ctx, c.address)
	if err != nil {
		return err
	}
	defer conn.Close()

	c.logger.Debugf("sending %s", req)
	if err := conn.WriteRequest(req); err != nil {
		return err
	}
	status, err := conn.ReadStatus()
	if err != nil {
		if errors.Is(err, transport.ErrNoReply) && req.Mode == protocol.ModeRemove {
			return fmt.Errorf("%w: %q", ErrNotFound, req.Name.String())
		}
		return err
	}
	if status != protocol.StatusOK {
		return fmt.Errorf("%w: %d", ErrStatus, status)
	}
	return nil
}

// Segments returns c as an api.SegmentClient.
func (c *Client) Segments() api.SegmentClient {
	return segmentClient{c}
}

type segmentClient struct {
	*Client
}

func (s segmentClient) Create(ctx context.Context, name string, size int) (api.Segment, error) {
	h, err := s.Client.Create(ctx, name, size)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (s segmentClient) Get(ctx context.Context, name string) (api.Segment, error) {
	h, err := s.Client.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	return h, nil
}
