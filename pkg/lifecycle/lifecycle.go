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

// Package lifecycle runs an arbiter inside the calling process: start it on a
// goroutine, wait until it accepts connections, and stop it with a Quit
// request the way any other client would.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/srediag/shm-arbiter/api"
	"github.com/srediag/shm-arbiter/pkg/arbiter"
	"github.com/srediag/shm-arbiter/pkg/health"
	"github.com/srediag/shm-arbiter/pkg/shm"
)

const (
	StateIdle     = "idle"
	StateStarting = "starting"
	StateRunning  = "running"
	StateStopping = "stopping"
	StateStopped  = "stopped"
	StateFailed   = "failed"
)

var ErrInvalidState = errors.New("lifecycle: invalid state transition")

// DefaultStartPolicy bounds how long Start waits for the socket.
func DefaultStartPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 100 * time.Millisecond
	b.MaxElapsedTime = 5 * time.Second
	return b
}

// Runner owns one arbiter. It is single use: once stopped it cannot start again.
type Runner struct {
	arb    *arbiter.Arbiter
	client *shm.Client
	policy backoff.BackOff

	mu     sync.Mutex
	state  string
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

var _ api.Lifecycle = (*Runner)(nil)

// NewRunner builds an arbiter for conf. A nil policy means DefaultStartPolicy.
func NewRunner(conf *arbiter.Config, policy backoff.BackOff) (*Runner, error) {
	arb, err := arbiter.New(conf)
	if err != nil {
		return nil, err
	}
	cc := shm.DefaultClientConfig()
	cc.Address = arb.Address()
	if conf != nil && conf.LogOutput != nil {
		cc.LogOutput = conf.LogOutput
	}
	client, err := shm.NewClient(cc)
	if err != nil {
		return nil, err
	}
	if policy == nil {
		policy = DefaultStartPolicy()
	}
	return &Runner{
		arb:    arb,
		client: client,
		policy: policy,
		state:  StateIdle,
		done:   make(chan struct{}),
	}, nil
}

// Arbiter returns the managed arbiter, for health checks and introspection.
func (r *Runner) Arbiter() *arbiter.Arbiter {
	return r.arb
}

// Client returns a client bound to the managed arbiter's address.
func (r *Runner) Client() *shm.Client {
	return r.client
}

// Start binds the socket, launches the request loop and returns once the
// arbiter accepts connections. ctx only bounds the wait; the loop keeps
// running until Stop.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.state != StateIdle {
		state := r.state
		r.mu.Unlock()
		return fmt.Errorf("%w: start from %s", ErrInvalidState, state)
	}
	r.state = StateStarting
	r.mu.Unlock()

	if err := r.arb.Listen(); err != nil {
		r.fail(err)
		close(r.done)
		return err
	}
	runCtx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	go func() {
		err := r.arb.Run(runCtx)
		r.mu.Lock()
		r.err = err
		if err != nil {
			r.state = StateFailed
		} else {
			r.state = StateStopped
		}
		r.mu.Unlock()
		cancel()
		close(r.done)
	}()

	if err := health.WaitForArbiterContext(ctx, r.arb.Address(), r.policy); err != nil {
		err = fmt.Errorf("lifecycle: arbiter did not become ready: %w", err)
		cancel()
		<-r.done
		r.fail(err)
		return err
	}
	r.mu.Lock()
	if r.state == StateStarting {
		r.state = StateRunning
	}
	r.mu.Unlock()
	return nil
}

// Stop sends Quit and waits for the loop to exit. If the request cannot be
// delivered the loop is cancelled instead.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	switch r.state {
	case StateRunning:
		r.state = StateStopping
	case StateStopped, StateFailed:
		r.mu.Unlock()
		return r.Wait()
	default:
		state := r.state
		r.mu.Unlock()
		return fmt.Errorf("%w: stop from %s", ErrInvalidState, state)
	}
	cancel := r.cancel
	r.mu.Unlock()

	if err := r.client.Quit(ctx); err != nil {
		cancel()
	}
	select {
	case <-r.done:
		return r.Wait()
	case <-ctx.Done():
		cancel()
		<-r.done
		return ctx.Err()
	}
}

// Wait blocks until the loop exits and returns its error.
func (r *Runner) Wait() error {
	<-r.done
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Runner) State() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runner) fail(err error) {
	r.mu.Lock()
	r.state = StateFailed
	r.err = errors.Join(r.err, err)
	r.mu.Unlock()
}
