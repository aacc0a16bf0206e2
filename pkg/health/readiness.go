// Package health provides readiness waiting and health endpoints for the arbiter.
package health

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"

	itransport "github.com/srediag/shm-arbiter/internal/transport"
)

// WaitForArbiter blocks until a connection to address succeeds. After every
// failed attempt it calls stopWaiting; when that returns true it gives up and
// reports false. The probe connection carries no request and is closed at
// once; the arbiter drops it as malformed.
func WaitForArbiter(address string, stopWaiting func() bool) (bool, error) {
	addr, err := itransport.ResolveAddr(address)
	if err != nil {
		return false, err
	}
	for {
		conn, err := net.DialUnix("unix", nil, addr)
		if err == nil {
			if err := conn.Close(); err != nil {
				return false, fmt.Errorf("health: close probe: %w", err)
			}
			return true, nil
		}
		if stopWaiting() {
			return false, nil
		}
	}
}

// BackoffPredicate adapts a backoff policy to WaitForArbiter: each call sleeps
// for the next interval and gives up once the policy says backoff.Stop.
func BackoffPredicate(b backoff.BackOff) func() bool {
	b.Reset()
	return func() bool {
		next := b.NextBackOff()
		if next == backoff.Stop {
			return true
		}
		time.Sleep(next)
		return false
	}
}

// PollEvery returns a predicate that sleeps d between attempts and never gives up.
func PollEvery(d time.Duration) func() bool {
	return func() bool {
		time.Sleep(d)
		return false
	}
}

// WaitForArbiterContext retries until the arbiter accepts a connection, the
// policy is exhausted or ctx is done.
func WaitForArbiterContext(ctx context.Context, address string, b backoff.BackOff) error {
	addr, err := itransport.ResolveAddr(address)
	if err != nil {
		return err
	}
	var d net.Dialer
	return backoff.Retry(func() error {
		conn, err := d.DialContext(ctx, "unix", addr.Name)
		if err != nil {
			return fmt.Errorf("health: arbiter %s not ready: %w", address, err)
		}
		return conn.Close()
	}, backoff.WithContext(b, ctx))
}
