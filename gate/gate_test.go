/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package gate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"

	"github.com/acronis/go-apiorch/log"
	"github.com/acronis/go-apiorch/log/logtest"
)

type GateTestSuite struct {
	suite.Suite
	logRecorder *logtest.Recorder
	gate        *Gate
}

func TestGate(t *testing.T) {
	suite.Run(t, &GateTestSuite{})
}

func (s *GateTestSuite) SetupTest() {
	s.logRecorder = logtest.NewRecorder()
	s.gate = MustNew(Opts{Logger: s.logRecorder})
}

func (s *GateTestSuite) TearDownTest() {
	s.gate.Close()
}

func (s *GateTestSuite) TestDefaults() {
	s.Require().Equal(DefaultMaxConcurrent, s.gate.MaxConcurrent())
	s.Require().Equal(0, s.gate.Active())
	s.Require().Equal(0, s.gate.Queued())
}

func (s *GateTestSuite) TestCeilingAndFIFO() {
	const total = 10
	permits := make([]*Permit, 0, DefaultMaxConcurrent)
	for i := 0; i < DefaultMaxConcurrent; i++ {
		p, err := s.gate.Acquire(context.Background())
		s.Require().NoError(err)
		permits = append(permits, p)
	}
	_, ok := s.gate.TryAcquire()
	s.Require().False(ok)

	type admission struct {
		idx    int
		permit *Permit
	}
	admitted := make(chan admission, total)
	var eg errgroup.Group
	for i := 0; i < total-DefaultMaxConcurrent; i++ {
		i := i
		eg.Go(func() error {
			p, err := s.gate.Acquire(context.Background())
			if err != nil {
				return err
			}
			admitted <- admission{i, p}
			return nil
		})
		// Enqueue waiters one by one so that the arrival order is deterministic.
		s.Require().Eventually(func() bool { return s.gate.Queued() == i+1 }, time.Second, time.Millisecond)
	}
	s.Require().Equal(DefaultMaxConcurrent, s.gate.Active())
	s.Require().Equal(total-DefaultMaxConcurrent, s.gate.Queued())

	// Free one permit at a time: exactly one waiter (the oldest) is admitted per release.
	var order []int
	for i := 0; i < total-DefaultMaxConcurrent; i++ {
		permits[0].Release()
		permits = permits[1:]
		a := <-admitted
		order = append(order, a.idx)
		s.Require().Equal(DefaultMaxConcurrent, s.gate.Active())
		permits = append(permits, a.permit)
	}
	s.Require().NoError(eg.Wait())
	for _, p := range permits {
		p.Release()
	}
	s.Require().Equal([]int{0, 1, 2, 3, 4, 5}, order)
	s.Require().Equal(0, s.gate.Active())
	s.Require().Equal(0, s.gate.Queued())
}

func (s *GateTestSuite) TestOnlyWaitingCallersAreQueued() {
	permits := make([]*Permit, 0, DefaultMaxConcurrent)
	for i := 0; i < DefaultMaxConcurrent; i++ {
		p, err := s.gate.Acquire(context.Background())
		s.Require().NoError(err)
		permits = append(permits, p)
	}
	s.Require().Equal(0, s.gate.Queued())
	_, found := s.logRecorder.FindEntry("waiting for a permit")
	s.Require().False(found, "free permits are granted without queueing")

	admitted := make(chan *Permit, 1)
	go func() {
		p, _ := s.gate.Acquire(context.Background())
		admitted <- p
	}()
	var entry logtest.RecordedEntry
	s.Require().Eventually(func() bool {
		entry, found = s.logRecorder.FindEntry("waiting for a permit")
		return found
	}, time.Second, time.Millisecond)
	s.Require().Equal(1, s.gate.Queued())
	queued, ok := entry.FindField("queued")
	s.Require().True(ok)
	s.Require().EqualValues(1, queued.Int)

	permits[0].Release()
	p := <-admitted
	s.Require().NotNil(p)
	permits = append(permits[1:], p)
	s.Require().Equal(0, s.gate.Queued())
	for _, p := range permits {
		p.Release()
	}
	s.Require().Equal(0, s.gate.Active())
}

func (s *GateTestSuite) TestAcquireCancelledWhileQueued() {
	g := MustNew(Opts{MaxConcurrent: 1})
	defer g.Close()

	p, err := g.Acquire(context.Background())
	s.Require().NoError(err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = g.Acquire(ctx)
	s.Require().ErrorIs(err, context.DeadlineExceeded)
	s.Require().Equal(0, g.Queued())

	p.Release()
	p2, ok := g.TryAcquire()
	s.Require().True(ok, "cancelled waiter must not consume a permit")
	p2.Release()
}

func (s *GateTestSuite) TestClose() {
	g := MustNew(Opts{MaxConcurrent: 1})
	p, err := g.Acquire(context.Background())
	s.Require().NoError(err)

	errCh := make(chan error, 1)
	go func() {
		_, acqErr := g.Acquire(context.Background())
		errCh <- acqErr
	}()
	s.Require().Eventually(func() bool { return g.Queued() == 1 }, time.Second, time.Millisecond)

	g.Close()
	s.Require().ErrorIs(<-errCh, ErrClosed)

	_, err = g.Acquire(context.Background())
	s.Require().ErrorIs(err, ErrClosed)
	p.Release()
}

func (s *GateTestSuite) TestDoubleRelease() {
	p, err := s.gate.Acquire(context.Background())
	s.Require().NoError(err)
	p.Release()
	p.Release()

	s.Require().Equal(0, s.gate.Active())
	entry, found := s.logRecorder.FindEntry("permit released more than once, ignoring")
	s.Require().True(found)
	s.Require().Equal(log.LevelWarn, entry.Level)
	count, ok := entry.FindField("double_releases")
	s.Require().True(ok)
	s.Require().EqualValues(1, count.Int)

	// The extra release must not have increased the capacity.
	for i := 0; i < DefaultMaxConcurrent; i++ {
		_, ok := s.gate.TryAcquire()
		s.Require().True(ok)
	}
	_, ok = s.gate.TryAcquire()
	s.Require().False(ok)
}

func TestGate_StrictDoubleReleasePanics(t *testing.T) {
	g := MustNew(Opts{MaxConcurrent: 2, Strict: true})
	defer g.Close()
	p, err := g.Acquire(context.Background())
	require.NoError(t, err)
	p.Release()
	require.Panics(t, p.Release)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Opts{MaxConcurrent: -1})
	require.EqualError(t, err, "max concurrent should be positive, got -1")
}
