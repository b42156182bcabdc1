package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"recibos/pkg/platform/sentinel"
)

type SessionSuite struct {
	suite.Suite
	ctx   context.Context
	now   time.Time
	store *InMemory
}

func TestSessionSuite(t *testing.T) {
	suite.Run(t, new(SessionSuite))
}

func (s *SessionSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	s.store = NewInMemory(time.Minute, WithClock(func() time.Time { return s.now }))
}

var sevenPeriods = []string{"07/2025", "06/2025", "05/2025", "04/2025", "03/2025", "02/2025", "01/2025"}

// =============================================================================
// Menu pagination
// =============================================================================

func (s *SessionSuite) TestMenuPagination() {
	m := NewMenu(sevenPeriods)

	s.Run("first page shows three periods and more", func() {
		s.Equal(0, m.Offset)
		s.Equal(sevenPeriods[0:3], m.Page())
		s.True(m.HasMore())
		more, ok := m.Select(4)
		s.Require().True(ok)
		s.Equal(MoreOption, more)
	})

	s.Run("more advances by one page", func() {
		s.True(m.Advance())
		s.Equal(3, m.Offset)
		s.Equal(sevenPeriods[3:6], m.Page())
		p, ok := m.Select(1)
		s.Require().True(ok)
		s.Equal("04/2025", p)
	})

	s.Run("last page has no more option", func() {
		s.True(m.Advance())
		s.Equal(6, m.Offset)
		s.Equal([]string{"01/2025"}, m.Page())
		s.False(m.HasMore())
		_, ok := m.Select(2)
		s.False(ok)
	})

	s.Run("more on the last page is a no-op", func() {
		s.False(m.Advance())
		s.Equal(6, m.Offset)
	})
}

func (s *SessionSuite) TestMenuSmall() {
	m := NewMenu([]string{"03/2025", "01/2025"})
	s.False(m.HasMore())
	s.Len(m.Options, 2)
	s.False(m.Advance())

	s.Equal(0, LastPageOffset(0))
	s.Equal(0, LastPageOffset(3))
	s.Equal(3, LastPageOffset(4))
	s.Equal(6, LastPageOffset(7))
}

// =============================================================================
// Memory store
// =============================================================================

func (s *SessionSuite) TestLoadSave() {
	s.Run("missing phone loads an idle session", func() {
		sess, err := s.store.Load(s.ctx, "1123456789")
		s.Require().NoError(err)
		s.Equal(FlowIdle, sess.State)
		s.Zero(sess.Version)
	})

	s.Run("save round trips the menu", func() {
		sess, _ := s.store.Load(s.ctx, "1123456789")
		sess.State = FlowWaitingOption
		sess.Menu = NewMenu(sevenPeriods)
		s.Require().NoError(s.store.Save(s.ctx, sess))
		s.EqualValues(1, sess.Version)

		got, err := s.store.Load(s.ctx, "1123456789")
		s.Require().NoError(err)
		s.Equal(FlowWaitingOption, got.State)
		s.Equal(sess.Menu.Options, got.Menu.Options)
		s.EqualValues(1, got.Version)
	})

	s.Run("stale version conflicts", func() {
		a, _ := s.store.Load(s.ctx, "1123456789")
		b, _ := s.store.Load(s.ctx, "1123456789")
		a.Reset()
		s.Require().NoError(s.store.Save(s.ctx, a))

		b.State = FlowAwaitingViewConfirm
		s.ErrorIs(s.store.Save(s.ctx, b), sentinel.ErrConflict)
	})

	s.Run("loaded copies are independent", func() {
		a, _ := s.store.Load(s.ctx, "1123456789")
		a.State = FlowAwaitingSignOrObject
		b, _ := s.store.Load(s.ctx, "1123456789")
		s.Equal(FlowIdle, b.State)
	})
}

func (s *SessionSuite) TestExpiry() {
	sess := New("1123456789")
	sess.State = FlowAwaitingSignOrObject
	s.Require().NoError(s.store.Save(s.ctx, sess))

	s.now = s.now.Add(30 * time.Second)
	got, _ := s.store.Load(s.ctx, "1123456789")
	s.Equal(FlowAwaitingSignOrObject, got.State)

	s.now = s.now.Add(2 * time.Minute)
	got, _ = s.store.Load(s.ctx, "1123456789")
	s.Equal(FlowIdle, got.State)
	s.Zero(got.Version)

	s.Run("expired entry can be recreated from scratch", func() {
		s.Require().NoError(s.store.Save(s.ctx, got))
	})

	s.Run("sweep drops expired entries", func() {
		s.Require().NoError(s.store.Save(s.ctx, New("1199999999")))
		s.now = s.now.Add(2 * time.Minute)
		s.Equal(2, s.store.Sweep())
		s.Zero(s.store.Len())
	})
}

func (s *SessionSuite) TestRunStopsWithContext() {
	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan struct{})
	go func() {
		s.store.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	s.Eventually(func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func (s *SessionSuite) TestReset() {
	sess := New("1")
	sess.Track(FlowAwaitingSignOrObject, "30111222", "03/2025", "03-2025/30111222.pdf")
	sess.Reset()
	s.Equal(FlowIdle, sess.State)
	s.Empty(sess.DocumentID)
	s.Empty(sess.FileRef)
	s.Nil(sess.Menu)
}
