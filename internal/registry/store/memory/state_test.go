package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"registrar/internal/registry/counter"
	"registrar/internal/registry/models"
	"registrar/internal/registry/ports"
	id "registrar/pkg/domain"
	dErrors "registrar/pkg/domain-errors"
	"registrar/pkg/platform/sentinel"
)

type StateSuite struct {
	suite.Suite
	ctx   context.Context
	state *State
	owner id.AccountID
}

func TestStateSuite(t *testing.T) {
	suite.Run(t, new(StateSuite))
}

func (s *StateSuite) SetupTest() {
	s.ctx = context.Background()
	s.owner = id.AccountID(uuid.New())
	var err error
	s.state, err = New(3)
	s.Require().NoError(err)
}

func (s *StateSuite) record(b byte) *models.Record {
	return &models.Record{
		Identity:   models.Identity{b},
		Owner:      s.owner,
		Profile:    models.Profile{Name: "n"},
		Attributes: models.Attributes{Seed: []byte{b}},
	}
}

// put commits one record through all three structures.
func (s *StateSuite) put(b byte) {
	r := s.record(b)
	err := s.state.RunInTx(s.ctx, func(st ports.Stores) error {
		if err := st.Owners.Append(s.ctx, s.owner, r.Identity); err != nil {
			return err
		}
		if _, err := st.Counter.Increment(s.ctx); err != nil {
			return err
		}
		return st.Records.Insert(s.ctx, r.Identity, r)
	})
	s.Require().NoError(err)
}

func (s *StateSuite) TestNew_RejectsNegativeCapacity() {
	_, err := New(-1)
	s.Error(err)
}

func (s *StateSuite) TestCommit() {
	s.put(1)
	s.put(2)

	snap := s.state.Snapshot()
	s.Len(snap.Records, 2)
	s.Equal(uint64(2), snap.Count)
	s.Equal([]models.Identity{{1}, {2}}, snap.Owners[s.owner])

	got, err := s.state.Get(s.ctx, models.Identity{1})
	s.Require().NoError(err)
	s.Equal(s.owner, got.Owner)

	count, err := s.state.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(uint64(2), count)

	owned, err := s.state.ListOwned(s.ctx, s.owner)
	s.Require().NoError(err)
	s.Equal([]models.Identity{{1}, {2}}, owned)
}

func (s *StateSuite) TestRollbackRestoresEveryStructure() {
	s.put(1)
	s.put(2)
	before := s.state.Snapshot()

	boom := errors.New("boom")
	err := s.state.RunInTx(s.ctx, func(st ports.Stores) error {
		s.Require().NoError(st.Records.Remove(s.ctx, models.Identity{1}))
		s.Require().NoError(st.Owners.Remove(s.ctx, s.owner, models.Identity{1}))
		_, err := st.Counter.Decrement(s.ctx)
		s.Require().NoError(err)

		r := s.record(3)
		s.Require().NoError(st.Owners.Append(s.ctx, s.owner, r.Identity))
		_, err = st.Counter.Increment(s.ctx)
		s.Require().NoError(err)
		s.Require().NoError(st.Records.Insert(s.ctx, r.Identity, r))
		return boom
	})
	s.ErrorIs(err, boom)
	s.Equal(before, s.state.Snapshot(), "owner order, records and count must all be restored")
}

func (s *StateSuite) TestRollbackOnPanic() {
	s.put(1)
	before := s.state.Snapshot()

	s.Panics(func() {
		_ = s.state.RunInTx(s.ctx, func(st ports.Stores) error {
			_, _ = st.Counter.Increment(s.ctx)
			panic("mid-transaction")
		})
	})
	s.Equal(before, s.state.Snapshot())
}

func (s *StateSuite) TestInsertNeverOverwrites() {
	s.put(1)
	err := s.state.RunInTx(s.ctx, func(st ports.Stores) error {
		other := s.record(1)
		other.Profile.Name = "intruder"
		return st.Records.Insert(s.ctx, other.Identity, other)
	})
	s.ErrorIs(err, sentinel.ErrConflict)

	got, err := s.state.Get(s.ctx, models.Identity{1})
	s.Require().NoError(err)
	s.Equal("n", got.Profile.Name)
}

func (s *StateSuite) TestStoresAreInvalidAfterCommit() {
	var leaked ports.Stores
	s.Require().NoError(s.state.RunInTx(s.ctx, func(st ports.Stores) error {
		leaked = st
		return nil
	}))

	_, err := leaked.Counter.Increment(s.ctx)
	s.ErrorIs(err, sentinel.ErrInvalidState)
	s.ErrorIs(leaked.Owners.Append(s.ctx, s.owner, models.Identity{9}), sentinel.ErrInvalidState)
	s.ErrorIs(leaked.Records.Insert(s.ctx, models.Identity{9}, s.record(9)), sentinel.ErrInvalidState)
	s.Equal(uint64(0), s.state.Snapshot().Count)
}

func (s *StateSuite) TestCancelledContextIsRejected() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	called := false
	err := s.state.RunInTx(ctx, func(ports.Stores) error {
		called = true
		return nil
	})
	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
	s.False(called)
}

func (s *StateSuite) TestGetReturnsCopy() {
	s.put(1)
	got, err := s.state.Get(s.ctx, models.Identity{1})
	s.Require().NoError(err)
	got.Attributes.Seed[0] = 0xff

	again, err := s.state.Get(s.ctx, models.Identity{1})
	s.Require().NoError(err)
	s.Equal([]byte{1}, again.Attributes.Seed)

	_, err = s.state.Get(s.ctx, models.Identity{42})
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *StateSuite) TestWithCounter() {
	st, err := New(1, WithCounter(counter.New(7)))
	s.Require().NoError(err)
	s.Equal(uint64(7), st.Snapshot().Count)
}

func (s *StateSuite) TestTransactionsDoNotInterleave() {
	const workers = 50
	state, err := New(workers)
	s.Require().NoError(err)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(b byte) {
			defer wg.Done()
			_ = state.RunInTx(s.ctx, func(st ports.Stores) error {
				v, err := st.Counter.Value(s.ctx)
				if err != nil {
					return err
				}
				if _, err := st.Counter.Increment(s.ctx); err != nil {
					return err
				}
				after, _ := st.Counter.Value(s.ctx)
				if after != v+1 {
					return errors.New("interleaved")
				}
				return st.Owners.Append(s.ctx, s.owner, models.Identity{b})
			})
		}(byte(i))
	}
	wg.Wait()

	snap := state.Snapshot()
	s.Equal(uint64(workers), snap.Count)
	s.Len(snap.Owners[s.owner], workers)
}
