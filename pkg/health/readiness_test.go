package health

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	itransport "github.com/srediag/shm-arbiter/internal/transport"
)

func testAddress() string {
	return fmt.Sprintf("@shm-health-test-%d-%d", os.Getpid(), rand.Int63())
}

func listen(t *testing.T, address string) *net.UnixListener {
	addr, err := itransport.ResolveAddr(address)
	require.NoError(t, err)
	ln, err := net.ListenUnix("unix", addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	return ln
}

func TestWaitForArbiterGivesUp(t *testing.T) {
	calls := 0
	ok, err := WaitForArbiter(testAddress(), func() bool {
		calls++
		return calls == 3
	})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 3, calls)
}

func TestWaitForArbiterConnects(t *testing.T) {
	address := testAddress()
	listen(t, address)
	ok, err := WaitForArbiter(address, func() bool {
		t.Fatal("predicate must not run when the arbiter is up")
		return true
	})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWaitForArbiterLateStart(t *testing.T) {
	address := testAddress()
	go func() {
		time.Sleep(30 * time.Millisecond)
		listen(t, address)
	}()
	ok, err := WaitForArbiter(address, PollEvery(time.Millisecond))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBackoffPredicate(t *testing.T) {
	stop := BackoffPredicate(backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 2))
	assert.False(t, stop())
	assert.False(t, stop())
	assert.True(t, stop())

	ok, err := WaitForArbiter(testAddress(),
		BackoffPredicate(backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 3)))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWaitForArbiterContext(t *testing.T) {
	address := testAddress()
	go func() {
		time.Sleep(20 * time.Millisecond)
		listen(t, address)
	}()
	err := WaitForArbiterContext(context.Background(), address, backoff.NewConstantBackOff(5*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err = WaitForArbiterContext(ctx, testAddress(), backoff.NewConstantBackOff(5*time.Millisecond))
	require.Error(t, err)
}

type fakeHealth struct {
	live, ready error
}

func (f *fakeHealth) Live() error  { return f.live }
func (f *fakeHealth) Ready() error { return f.ready }

func TestHandler(t *testing.T) {
	h := &fakeHealth{}
	mux := http.NewServeMux()
	Mount(mux, h)

	get := func(path string) int {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec.Code
	}
	assert.Equal(t, http.StatusOK, get("/live"))
	assert.Equal(t, http.StatusOK, get("/ready"))

	h.ready = errors.New("not listening")
	assert.Equal(t, http.StatusOK, get("/live"))
	assert.Equal(t, http.StatusServiceUnavailable, get("/ready"))

	h.live = errors.New("loop failed")
	assert.Equal(t, http.StatusServiceUnavailable, get("/live"))
}
