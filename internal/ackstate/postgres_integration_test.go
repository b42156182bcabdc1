//go:build integration

package ackstate

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"recibos/internal/platform/postgres"
	"recibos/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *PostgresStore
	ctx   context.Context
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.pg = containers.NewPostgresContainer(s.T())
	s.store = NewPostgres(s.pg.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.Truncate(s.ctx, "document_ack_states"))
}

func (s *PostgresStoreSuite) TestGetSet() {
	key := Key{DocumentID: "100", Period: "03/2025"}

	st, err := s.store.Get(s.ctx, key)
	s.Require().NoError(err)
	s.Equal(StateAvailable, st)

	s.Require().NoError(s.store.Set(s.ctx, key, StateObjected))
	s.Require().NoError(s.store.Set(s.ctx, key, StateSigned))
	st, err = s.store.Get(s.ctx, key)
	s.Require().NoError(err)
	s.Equal(StateSigned, st)
}

func (s *PostgresStoreSuite) TestCompareAndSet() {
	key := Key{DocumentID: "200", Period: "03/2025"}

	s.Run("absent row counts as available", func() {
		ok, err := s.store.CompareAndSet(s.ctx, key, StateAvailable, StateObjected)
		s.Require().NoError(err)
		s.True(ok)
	})

	s.Run("stale expectation loses", func() {
		ok, err := s.store.CompareAndSet(s.ctx, key, StateAvailable, StateSigned)
		s.Require().NoError(err)
		s.False(ok)
	})

	s.Run("matching expectation wins", func() {
		ok, err := s.store.CompareAndSet(s.ctx, key, StateObjected, StateSigned)
		s.Require().NoError(err)
		s.True(ok)
	})
}

func (s *PostgresStoreSuite) TestConcurrentTransitionsSerialize() {
	svc := NewService(s.store)
	key := Key{DocumentID: "300", Period: "03/2025"}

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, action := range []Action{ActionSign, ActionObject} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, results[i] = svc.Transition(s.ctx, key, action)
		}()
	}
	wg.Wait()

	failures := 0
	for _, err := range results {
		if err != nil {
			s.True(IsInvalidTransition(err))
			failures++
		}
	}
	s.Equal(1, failures)
}

func (s *PostgresStoreSuite) TestGetMany() {
	s.Require().NoError(s.store.Set(s.ctx, Key{DocumentID: "100", Period: "03/2025"}, StateSigned))
	s.Require().NoError(s.store.Set(s.ctx, Key{DocumentID: "100", Period: "02/2025"}, StateObjected))

	got, err := s.store.GetMany(s.ctx, []Key{
		{DocumentID: "100", Period: "03/2025"},
		{DocumentID: "100", Period: "02/2025"},
		{DocumentID: "999", Period: "03/2025"},
	})
	s.Require().NoError(err)
	s.Equal(StateSigned, got[Key{DocumentID: "100", Period: "03/2025"}])
	s.Equal(StateObjected, got[Key{DocumentID: "100", Period: "02/2025"}])
	s.Equal(StateAvailable, got[Key{DocumentID: "999", Period: "03/2025"}])
}

func (s *PostgresStoreSuite) TestTransitionInsideTransaction() {
	svc := NewService(s.store)
	runner := postgres.NewTxRunner(s.pg.DB)
	key := Key{DocumentID: "300", Period: "05/2025"}

	s.Run("rollback discards the transition", func() {
		err := runner.RunInTx(s.ctx, func(ctx context.Context) error {
			st, err := svc.Transition(ctx, key, ActionSign)
			s.Require().NoError(err)
			s.Equal(StateSigned, st)
			return errors.New("confirmation failed")
		})
		s.Require().Error(err)

		st, err := s.store.Get(s.ctx, key)
		s.Require().NoError(err)
		s.Equal(StateAvailable, st)
	})

	s.Run("commit keeps it", func() {
		s.Require().NoError(runner.RunInTx(s.ctx, func(ctx context.Context) error {
			_, err := svc.Transition(ctx, key, ActionObject)
			return err
		}))

		st, err := s.store.Get(s.ctx, key)
		s.Require().NoError(err)
		s.Equal(StateObjected, st)
	})
}
