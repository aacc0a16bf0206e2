//go:build linux

package lifecycle

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/srediag/shm-arbiter/pkg/arbiter"
	"github.com/srediag/shm-arbiter/pkg/transport"
)

type RunnerTestSuite struct {
	suite.Suite
	conf *arbiter.Config
}

func (s *RunnerTestSuite) SetupTest() {
	s.conf = arbiter.DefaultConfig()
	s.conf.Address = fmt.Sprintf("@shm-lifecycle-test-%d-%d", os.Getpid(), rand.Int63())
	s.conf.LogOutput = io.Discard
}

func (s *RunnerTestSuite) ctx() context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	s.T().Cleanup(cancel)
	return ctx
}

func (s *RunnerTestSuite) TestStartServeStop() {
	r, err := NewRunner(s.conf, nil)
	s.Require().NoError(err)
	s.Equal(StateIdle, r.State())

	s.Require().NoError(r.Start(s.ctx()))
	s.Equal(StateRunning, r.State())
	s.NoError(r.Arbiter().Ready())

	h, err := r.Client().Create(s.ctx(), "lifecycle", 4096)
	s.Require().NoError(err)
	s.Equal(4096, h.Size())
	s.NoError(h.Close())
	s.Equal(1, r.Arbiter().Registry().Len())

	s.Require().NoError(r.Stop(s.ctx()))
	s.Equal(StateStopped, r.State())
	s.NoError(r.Wait())
	s.Equal(0, r.Arbiter().Registry().Len())
	s.Error(r.Arbiter().Ready())

	s.ErrorIs(r.Start(s.ctx()), ErrInvalidState)
	s.NoError(r.Stop(s.ctx()))
}

func (s *RunnerTestSuite) TestStopBeforeStart() {
	r, err := NewRunner(s.conf, nil)
	s.Require().NoError(err)
	s.ErrorIs(r.Stop(s.ctx()), ErrInvalidState)
}

func (s *RunnerTestSuite) TestStartOnBusyAddress() {
	ln, err := transport.Listen(s.conf.Address)
	s.Require().NoError(err)
	defer ln.Close()

	r, err := NewRunner(s.conf, nil)
	s.Require().NoError(err)
	s.Error(r.Start(s.ctx()))
	s.Equal(StateFailed, r.State())
	s.Error(r.Wait())
}

func TestRunnerTestSuite(t *testing.T) {
	suite.Run(t, new(RunnerTestSuite))
}
