package ownership

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"registrar/internal/registry/models"
	id "registrar/pkg/domain"
)

type IndexSuite struct {
	suite.Suite
	ctx   context.Context
	owner id.AccountID
	index *Index
}

func TestIndexSuite(t *testing.T) {
	suite.Run(t, new(IndexSuite))
}

func (s *IndexSuite) SetupTest() {
	s.ctx = context.Background()
	s.owner = id.AccountID(uuid.New())
	var err error
	s.index, err = New(2)
	s.Require().NoError(err)
}

func ident(b byte) models.Identity { return models.Identity{b} }

func (s *IndexSuite) TestNew() {
	s.Run("negative capacity is rejected", func() {
		_, err := New(-1)
		s.Error(err)
	})

	s.Run("zero capacity rejects every append", func() {
		x, err := New(0)
		s.Require().NoError(err)
		s.ErrorIs(x.Append(s.ctx, s.owner, ident(1)), models.ErrCapacityExceeded)
		s.Zero(x.Len(s.owner))
	})
}

func (s *IndexSuite) TestAppend() {
	s.Run("keeps insertion order", func() {
		s.Require().NoError(s.index.Append(s.ctx, s.owner, ident(2)))
		s.Require().NoError(s.index.Append(s.ctx, s.owner, ident(1)))

		got, err := s.index.List(s.ctx, s.owner)
		s.Require().NoError(err)
		s.Equal([]models.Identity{ident(2), ident(1)}, got)
	})

	s.Run("full owner is rejected without mutation", func() {
		before := s.index.Snapshot()
		s.ErrorIs(s.index.Append(s.ctx, s.owner, ident(3)), models.ErrCapacityExceeded)
		s.Equal(before, s.index.Snapshot())
	})

	s.Run("capacity is per owner", func() {
		other := id.AccountID(uuid.New())
		s.NoError(s.index.Append(s.ctx, other, ident(3)))
		s.Equal(1, s.index.Len(other))
	})
}

func (s *IndexSuite) TestRemove() {
	s.Require().NoError(s.index.Append(s.ctx, s.owner, ident(1)))
	s.Require().NoError(s.index.Append(s.ctx, s.owner, ident(2)))

	s.Run("unknown identity is not found", func() {
		s.ErrorIs(s.index.Remove(s.ctx, s.owner, ident(9)), models.ErrNotFound)
	})

	s.Run("identity under another owner is not found", func() {
		s.ErrorIs(s.index.Remove(s.ctx, id.AccountID(uuid.New()), ident(1)), models.ErrNotFound)
	})

	s.Run("removal frees capacity and keeps order", func() {
		s.Require().NoError(s.index.Remove(s.ctx, s.owner, ident(1)))
		s.Require().NoError(s.index.Append(s.ctx, s.owner, ident(3)))

		got, err := s.index.List(s.ctx, s.owner)
		s.Require().NoError(err)
		s.Equal([]models.Identity{ident(2), ident(3)}, got)
	})

	s.Run("last removal drops the owner", func() {
		s.Require().NoError(s.index.Remove(s.ctx, s.owner, ident(2)))
		s.Require().NoError(s.index.Remove(s.ctx, s.owner, ident(3)))
		s.NotContains(s.index.Snapshot(), s.owner)
	})
}

func (s *IndexSuite) TestRemoveUndoesLatestAppend() {
	x, err := New(3)
	s.Require().NoError(err)
	s.Require().NoError(x.Append(s.ctx, s.owner, ident(1)))
	s.Require().NoError(x.Append(s.ctx, s.owner, ident(2)))
	s.Require().NoError(x.Append(s.ctx, s.owner, ident(1)))

	s.Require().NoError(x.Remove(s.ctx, s.owner, ident(1)))
	got, err := x.List(s.ctx, s.owner)
	s.Require().NoError(err)
	s.Equal([]models.Identity{ident(1), ident(2)}, got)
}

func (s *IndexSuite) TestListReturnsCopy() {
	s.Require().NoError(s.index.Append(s.ctx, s.owner, ident(1)))
	got, err := s.index.List(s.ctx, s.owner)
	s.Require().NoError(err)
	got[0] = ident(7)

	again, err := s.index.List(s.ctx, s.owner)
	s.Require().NoError(err)
	s.Equal(ident(1), again[0])
}

func (s *IndexSuite) TestRestore() {
	s.Require().NoError(s.index.Append(s.ctx, s.owner, ident(1)))
	s.Require().NoError(s.index.Append(s.ctx, s.owner, ident(2)))
	before, err := s.index.List(s.ctx, s.owner)
	s.Require().NoError(err)

	s.Require().NoError(s.index.Remove(s.ctx, s.owner, ident(1)))
	s.index.Restore(s.owner, before)

	got, err := s.index.List(s.ctx, s.owner)
	s.Require().NoError(err)
	s.Equal([]models.Identity{ident(1), ident(2)}, got, "restore keeps the original position")

	s.index.Restore(s.owner, nil)
	s.NotContains(s.index.Snapshot(), s.owner)
}
