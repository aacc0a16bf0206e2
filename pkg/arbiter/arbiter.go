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

// Package arbiter owns the segment registry and serves create, get, remove and
// quit requests over a unix socket, one connection at a time.
//
// Every registry mutation happens on the goroutine running Run. Requests are
// never processed concurrently, which is what keeps the registry consistent
// without locking; if accept is ever parallelized, Create and Remove need an
// equivalent mutual exclusion.
package arbiter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/srediag/shm-arbiter/api"
	"github.com/srediag/shm-arbiter/internal/logger"
	"github.com/srediag/shm-arbiter/internal/security"
	"github.com/srediag/shm-arbiter/pkg/protocol"
	"github.com/srediag/shm-arbiter/pkg/transport"
)

var (
	ErrNotListening   = errors.New("arbiter: not listening")
	ErrAlreadyRunning = errors.New("arbiter: already running")
	ErrClosed         = errors.New("arbiter: closed")
)

// Arbiter is a single-threaded segment broker.
type Arbiter struct {
	conf     *Config
	registry *Registry
	metrics  *metrics
	logger   *logger.Logger
	audit    api.Audit

	mu      sync.Mutex
	ln      *net.UnixListener
	closing bool
	closed  bool

	running atomic.Bool
	failure atomic.Pointer[error]
}

var _ api.Health = (*Arbiter)(nil)

// New returns an arbiter for conf. A nil conf means DefaultConfig.
func New(conf *Config) (*Arbiter, error) {
	if conf == nil {
		conf = DefaultConfig()
	}
	if err := VerifyConfig(conf); err != nil {
		return nil, err
	}
	m, err := newMetrics(conf.Registerer)
	if err != nil {
		return nil, fmt.Errorf("arbiter: register metrics: %w", err)
	}
	audit := conf.Audit
	if audit == nil {
		audit = api.NopAudit{}
	}
	return &Arbiter{
		conf:     conf,
		registry: NewRegistry(),
		metrics:  m,
		logger:   logger.New("arbiter", conf.LogOutput),
		audit:    audit,
	}, nil
}

func (a *Arbiter) Address() string {
	return a.conf.Address
}

// Registry exposes the segment table for read-only introspection.
func (a *Arbiter) Registry() *Registry {
	return a.registry
}

// Listen binds the configured address. Clients may connect as soon as Listen
// returns; their requests are served once Run starts. Only one arbiter can bind
// an address at a time.
func (a *Arbiter) Listen() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed || a.closing {
		return ErrClosed
	}
	if a.ln != nil {
		return nil
	}
	ln, err := transport.Listen(a.conf.Address)
	if err != nil {
		return err
	}
	a.ln = ln
	a.logger.Infof("listening on %s", a.conf.Address)
	return nil
}

// Run serves requests until a Quit request, Close, cancellation of ctx or a
// fatal error. On return the listening socket and every registered descriptor
// are closed. Run returns nil on a clean stop.
func (a *Arbiter) Run(ctx context.Context) (err error) {
	if !a.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	if err := a.Listen(); err != nil {
		a.running.Store(false)
		return err
	}
	a.mu.Lock()
	ln := a.ln
	a.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { _ = a.Close() })
	defer func() {
		stop()
		if terr := a.teardown(); terr != nil {
			err = errors.Join(err, terr)
		}
		if err != nil {
			a.failure.Store(&err)
			a.logger.Errorf("stopped: %v", err)
		}
		a.running.Store(false)
	}()

	for {
		conn, aerr := ln.AcceptUnix()
		if aerr != nil {
			if a.isClosing() {
				return nil
			}
			return fmt.Errorf("accept: %w", aerr)
		}
		quit, herr := a.serve(conn)
		if herr != nil {
			switch {
			case errors.Is(herr, transport.ErrFraming):
				a.logger.Debugf("dropped connection: %v", herr)
			case isRejection(herr):
				a.logger.Warnf("rejected request: %v", herr)
				if a.conf.FailFast {
					return herr
				}
			default:
				return herr
			}
		}
		if quit {
			a.logger.Infof("quit requested")
			return nil
		}
	}
}

// Close stops a running loop after its current connection and releases the
// listener. Registered descriptors are released by Run on its way out.
func (a *Arbiter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closing = true
	if a.ln == nil || a.closed {
		return nil
	}
	a.closed = true
	return a.ln.Close()
}

func (a *Arbiter) isClosing() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closing
}

func (a *Arbiter) teardown() error {
	var errs []error
	a.mu.Lock()
	if a.ln != nil && !a.closed {
		a.closed = true
		if err := a.ln.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close listener: %w", err))
		}
	}
	a.closing = true
	a.mu.Unlock()

	n := a.registry.Len()
	if err := a.registry.CloseAll(); err != nil {
		errs = append(errs, err)
	}
	a.metrics.update(a.registry)
	a.logger.Infof("released %d segments", n)
	_ = a.audit.LogEvent("arbiter_stopped", map[string]interface{}{"released": n})
	return errors.Join(errs...)
}

// Live reports the error that stopped the loop, if any.
func (a *Arbiter) Live() error {
	if p := a.failure.Load(); p != nil {
		return *p
	}
	return nil
}

// Ready reports whether the listening socket is bound.
func (a *Arbiter) Ready() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ln == nil || a.closed {
		return ErrNotListening
	}
	return nil
}

// serve handles one connection: receive, dispatch, reply, close.
func (a *Arbiter) serve(uc *net.UnixConn) (quit bool, err error) {
	conn := transport.NewConn(uc)
	defer func() {
		if cerr := conn.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close client socket: %w", cerr)
		}
	}()
	if a.conf.RequestTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(a.conf.RequestTimeout))
	}

	req, err := conn.ReadRequest()
	if err != nil {
		a.metrics.observe("unknown", err)
		return false, err
	}
	peer, perr := security.PeerOf(uc)
	if perr != nil {
		peer = security.Unknown
	}
	a.logger.Debugf("%s from %s", req, peer)

	quit, err = a.dispatch(conn, req, peer)
	a.metrics.observe(req.Mode.String(), err)
	if err != nil && isRejection(err) {
		a.auditEvent("request_rejected", req, peer, map[string]interface{}{"error": err.Error()})
	}
	return quit, err
}

func (a *Arbiter) dispatch(conn *transport.Conn, req protocol.Request, peer security.Peer) (bool, error) {
	name := req.Name.Key()
	switch req.Mode {
	case protocol.ModeCreate:
		seg, err := a.registry.Create(name, req.Size, a.conf.MemfdName)
		if err != nil {
			return false, fmt.Errorf("create %q: %w", name, err)
		}
		a.metrics.update(a.registry)
		a.logger.Infof("created %q (%s) fd=%d for %s", name, humanize.IBytes(req.Size), seg.Fd, peer)
		a.auditEvent("segment_created", req, peer, nil)
		return false, a.reply(conn, seg)
	case protocol.ModeGet:
		seg, err := a.registry.Lookup(name)
		if err != nil {
			return false, fmt.Errorf("get %q: %w", name, err)
		}
		return false, a.reply(conn, seg)
	case protocol.ModeRemove:
		if err := a.registry.Remove(name); err != nil {
			return false, fmt.Errorf("remove %q: %w", name, err)
		}
		a.metrics.update(a.registry)
		a.logger.Infof("removed %q for %s", name, peer)
		a.auditEvent("segment_removed", req, peer, nil)
		return false, conn.WriteStatus(protocol.StatusOK)
	case protocol.ModeQuit:
		return true, conn.WriteStatus(protocol.StatusOK)
	}
	return false, fmt.Errorf("%w: %s", transport.ErrFraming, req.Mode)
}

func (a *Arbiter) reply(conn *transport.Conn, seg *Segment) error {
	a.logger.Tracef("sending fd %d for %q", seg.Fd, seg.Name)
	return conn.SendFd(seg.Fd)
}

func (a *Arbiter) auditEvent(event string, req protocol.Request, peer security.Peer, extra map[string]interface{}) {
	if _, nop := a.audit.(api.NopAudit); nop {
		return
	}
	details := peer.Details()
	details["mode"] = req.Mode.String()
	details["name"] = req.Name.Key()
	if req.Mode == protocol.ModeCreate {
		details["size"] = req.Size
	}
	for k, v := range extra {
		details[k] = v
	}
	if err := a.audit.LogEvent(event, details); err != nil {
		a.logger.Warnf("audit %s: %v", event, err)
	}
}
