package service

//go:generate mockgen -source=../ports/ports.go -destination=../ports/mocks/ports-mocks.go -package=mocks Beacon,Sequencer,EventSink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"registrar/internal/registry/attributes"
	"registrar/internal/registry/beacon"
	"registrar/internal/registry/counter"
	"registrar/internal/registry/metrics"
	"registrar/internal/registry/models"
	"registrar/internal/registry/ports"
	"registrar/internal/registry/ports/mocks"
	"registrar/internal/registry/sequence"
	"registrar/internal/registry/store/memory"
	id "registrar/pkg/domain"
	dErrors "registrar/pkg/domain-errors"
	"registrar/pkg/platform/sentinel"
)

var beaconKey = bytes.Repeat([]byte{0x42}, beacon.KeySize)

type ServiceSuite struct {
	suite.Suite
	ctx     context.Context
	ctrl    *gomock.Controller
	events  *mocks.MockEventSink
	state   *memory.State
	chain   *beacon.Chain
	seq     *sequence.Manual
	metrics *metrics.Metrics
	svc     *Service
	alice   id.AccountID
	bob     id.AccountID
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.events = mocks.NewMockEventSink(s.ctrl)
	s.events.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	s.alice = id.AccountID(uuid.New())
	s.bob = id.AccountID(uuid.New())
	s.build(4)
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

// build replaces the service with one backed by a fresh state of the given
// capacity and options.
func (s *ServiceSuite) build(maxOwned int, opts ...memory.Option) {
	var err error
	s.state, err = memory.New(maxOwned, opts...)
	s.Require().NoError(err)
	s.chain, err = beacon.New(beaconKey)
	s.Require().NoError(err)
	s.seq = sequence.NewManual(10)
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.svc, err = New(s.state, s.chain, s.seq,
		WithEventSink(s.events),
		WithMetrics(s.metrics),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	s.Require().NoError(err)
}

func (s *ServiceSuite) request(owner id.AccountID, seed string) CreateRequest {
	return CreateRequest{
		Owner:   owner,
		Seed:    []byte(seed),
		Profile: models.Profile{Name: "kitty", Age: 3, Gender: "female"},
	}
}

func (s *ServiceSuite) create(owner id.AccountID, seed string) *models.Record {
	record, err := s.svc.Create(s.ctx, s.request(owner, seed))
	s.Require().NoError(err)
	return record
}

// assertConsistent checks the quiescent-state invariants: the counter equals
// the number of stored records, each record is listed exactly once under its
// owner, and every listed identity resolves to a record of that owner.
func (s *ServiceSuite) assertConsistent() {
	snap := s.state.Snapshot()
	s.Equal(uint64(len(snap.Records)), snap.Count, "counter must equal number of records")

	listed := 0
	for owner, ids := range snap.Owners {
		seen := make(map[models.Identity]bool, len(ids))
		for _, identity := range ids {
			s.False(seen[identity], "identity listed twice under one owner")
			seen[identity] = true
			record, ok := snap.Records[identity]
			s.Require().True(ok, "listed identity must exist in store")
			s.Equal(owner, record.Owner)
		}
		listed += len(ids)
	}
	s.Equal(len(snap.Records), listed, "every record must be listed exactly once")
}

func (s *ServiceSuite) TestNew_RequiresCollaborators() {
	_, err := New(nil, s.chain, s.seq)
	s.Require().Error(err)
	_, err = New(s.state, nil, s.seq)
	s.Require().Error(err)
	_, err = New(s.state, s.chain, nil)
	s.Require().Error(err)
}

func (s *ServiceSuite) TestCreate() {
	s.Run("stores record, lists it and counts it", func() {
		record := s.create(s.alice, "seed-a")

		s.False(record.Identity.IsZero())
		s.Equal(s.alice, record.Owner)
		s.Equal(models.Sequence(10), record.CreatedAt)
		s.Equal(record.Attributes.DNA[0], record.Attributes.Lucky)

		stored, err := s.svc.Get(s.ctx, record.Identity)
		s.Require().NoError(err)
		s.Equal(record.Identity, stored.Identity)
		s.Equal(record.Profile, stored.Profile)

		owned, err := s.svc.ListOwned(s.ctx, s.alice)
		s.Require().NoError(err)
		s.Equal([]models.Identity{record.Identity}, owned)

		count, err := s.svc.Count(s.ctx)
		s.Require().NoError(err)
		s.Equal(uint64(1), count)
		s.assertConsistent()
	})

	s.Run("rejects missing caller", func() {
		_, err := s.svc.Create(s.ctx, s.request(id.AccountID{}, "seed"))
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("rejects invalid profile and seed without mutation", func() {
		before := s.state.Snapshot()
		rejected := testutil.ToFloat64(s.metrics.MintRejections.WithLabelValues(metrics.ReasonInvalidInput))

		req := s.request(s.alice, "seed")
		req.Profile.Name = ""
		_, err := s.svc.Create(s.ctx, req)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))

		_, err = s.svc.Create(s.ctx, s.request(s.alice, ""))
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))

		s.Equal(before, s.state.Snapshot())
		s.Equal(rejected+2, testutil.ToFloat64(s.metrics.MintRejections.WithLabelValues(metrics.ReasonInvalidInput)))
	})
}

func (s *ServiceSuite) TestCreate_EmitsCreatedEvent() {
	ctrl := gomock.NewController(s.T())
	sink := mocks.NewMockEventSink(ctrl)
	svc, err := New(s.state, s.chain, s.seq, WithEventSink(sink))
	s.Require().NoError(err)

	var got ports.Event
	sink.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, e ports.Event) error {
		got = e
		return nil
	})

	record, err := svc.Create(s.ctx, s.request(s.alice, "evented"))
	s.Require().NoError(err)
	s.Equal(ports.Event{
		Type:     models.EventCreated,
		Owner:    s.alice,
		Identity: record.Identity,
		Sequence: record.CreatedAt,
	}, got)
}

func (s *ServiceSuite) TestCreate_EventSinkFailureDoesNotFailCreate() {
	ctrl := gomock.NewController(s.T())
	sink := mocks.NewMockEventSink(ctrl)
	sink.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(errors.New("sink down"))
	svc, err := New(s.state, s.chain, s.seq, WithEventSink(sink))
	s.Require().NoError(err)

	_, err = svc.Create(s.ctx, s.request(s.alice, "lossy"))
	s.Require().NoError(err)
	s.assertConsistent()
}

func (s *ServiceSuite) TestIdentitiesAreUnique() {
	s.build(64)
	seen := make(map[models.Identity]bool)
	for i := range 20 {
		owner := s.alice
		if i%2 == 1 {
			owner = s.bob
		}
		record := s.create(owner, fmt.Sprintf("seed-%d", i))
		s.False(seen[record.Identity], "identity minted twice")
		seen[record.Identity] = true
		if i%5 == 0 {
			s.seq.Advance(1)
		}
	}

	snap := s.state.Snapshot()
	s.Len(snap.Records, len(seen))
	for identity := range seen {
		s.Contains(snap.Records, identity)
	}
	s.assertConsistent()
}

func (s *ServiceSuite) TestCountersStayConsistentAcrossMixedOperations() {
	s.build(8)
	var alices []models.Identity
	for i := range 6 {
		alices = append(alices, s.create(s.alice, fmt.Sprintf("a-%d", i)).Identity)
		s.create(s.bob, fmt.Sprintf("b-%d", i))
		s.assertConsistent()
	}

	s.Require().NoError(s.svc.Remove(s.ctx, s.alice, alices[1]))
	s.Require().NoError(s.svc.Remove(s.ctx, s.alice, alices[4]))
	s.assertConsistent()

	owned, err := s.svc.ListOwned(s.ctx, s.alice)
	s.Require().NoError(err)
	s.Equal([]models.Identity{alices[0], alices[2], alices[3], alices[5]}, owned, "removal preserves insertion order")

	count, err := s.svc.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(uint64(10), count)
}

func (s *ServiceSuite) TestOwnershipLimit() {
	s.build(2)
	first := s.create(s.alice, "one")
	s.create(s.alice, "two")

	before := s.state.Snapshot()
	_, err := s.svc.Create(s.ctx, s.request(s.alice, "three"))
	s.Require().ErrorIs(err, models.ErrOwnershipLimitExceeded)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.Equal(before, s.state.Snapshot(), "rejected create must not change any structure")

	s.Run("limit is per owner", func() {
		s.create(s.bob, "three")
	})

	s.Run("removing frees a slot", func() {
		s.Require().NoError(s.svc.Remove(s.ctx, s.alice, first.Identity))
		s.create(s.alice, "three")
		s.assertConsistent()
	})

	s.Equal(1.0, testutil.ToFloat64(s.metrics.MintRejections.WithLabelValues(metrics.ReasonOwnershipLimit)))
}

func (s *ServiceSuite) TestZeroCapacityRejectsEveryCreate() {
	s.build(0)
	for _, owner := range []id.AccountID{s.alice, s.bob} {
		_, err := s.svc.Create(s.ctx, s.request(owner, "any"))
		s.Require().ErrorIs(err, models.ErrOwnershipLimitExceeded)
	}
	s.Empty(s.state.Snapshot().Records)
}

func (s *ServiceSuite) TestCounterOverflow() {
	s.build(4, memory.WithCounter(counter.New(math.MaxUint64)))

	before := s.state.Snapshot()
	_, err := s.svc.Create(s.ctx, s.request(s.alice, "overflow"))
	s.Require().ErrorIs(err, models.ErrCounterOverflow)
	s.True(dErrors.HasCode(err, dErrors.CodeInsufficientStorage))

	after := s.state.Snapshot()
	s.Equal(before, after)
	s.Empty(after.Owners[s.alice], "reserved slot must be released")
	s.Equal(uint64(math.MaxUint64), after.Count)
}

func (s *ServiceSuite) TestIdentityCollision() {
	first := s.create(s.alice, "same")

	before := s.state.Snapshot()
	_, err := s.svc.Create(s.ctx, s.request(s.alice, "same"))
	s.Require().ErrorIs(err, models.ErrIdentityCollision)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.Equal(before, s.state.Snapshot(), "collision must not overwrite or leak index entries")

	stored, err := s.svc.Get(s.ctx, first.Identity)
	s.Require().NoError(err)
	s.Equal(first.CreatedTime, stored.CreatedTime)

	s.Run("a later tick yields a fresh identity", func() {
		s.seq.Advance(1)
		second := s.create(s.alice, "same")
		s.NotEqual(first.Identity, second.Identity)
	})
}

func (s *ServiceSuite) TestRemove() {
	record := s.create(s.alice, "removable")

	s.Run("non-owner is rejected without mutation", func() {
		before := s.state.Snapshot()
		err := s.svc.Remove(s.ctx, s.bob, record.Identity)
		s.Require().ErrorIs(err, models.ErrNotOwner)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		s.Equal(before, s.state.Snapshot())
	})

	s.Run("owner removes", func() {
		s.Require().NoError(s.svc.Remove(s.ctx, s.alice, record.Identity))
		_, err := s.svc.Get(s.ctx, record.Identity)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
		s.assertConsistent()
	})

	s.Run("missing identity is not found for any caller", func() {
		for _, caller := range []id.AccountID{s.alice, s.bob} {
			err := s.svc.Remove(s.ctx, caller, record.Identity)
			s.Require().ErrorIs(err, models.ErrNotFound)
			s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
		}
	})

	s.Run("missing caller", func() {
		err := s.svc.Remove(s.ctx, id.AccountID{}, record.Identity)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func (s *ServiceSuite) TestRemove_EmitsRemovedEvent() {
	record := s.create(s.alice, "to-remove")

	ctrl := gomock.NewController(s.T())
	sink := mocks.NewMockEventSink(ctrl)
	sink.EXPECT().Emit(gomock.Any(), ports.Event{
		Type:     models.EventRemoved,
		Owner:    s.alice,
		Identity: record.Identity,
		Sequence: record.CreatedAt,
	}).Return(nil)
	svc, err := New(s.state, s.chain, s.seq, WithEventSink(sink))
	s.Require().NoError(err)

	s.Require().NoError(svc.Remove(s.ctx, s.alice, record.Identity))
}

func (s *ServiceSuite) TestAttributesAreDeterministic() {
	record := s.create(s.alice, "repeatable")

	// A second chain with the same key observing the same ticks reproduces
	// the beacon sample, and therefore the attributes.
	replay, err := beacon.New(beaconKey)
	s.Require().NoError(err)
	gen, err := attributes.New(replay)
	s.Require().NoError(err)

	attrs, err := gen.Generate(s.ctx, []byte("repeatable"), record.CreatedAt)
	s.Require().NoError(err)
	s.Equal(record.Attributes, attrs)
}

func (s *ServiceSuite) TestBeaconUnavailable() {
	beaconMock := mocks.NewMockBeacon(s.ctrl)
	beaconMock.EXPECT().Sample(gomock.Any(), []byte("seed"), models.Sequence(10)).
		Return([32]byte{}, errors.New("no entropy"))
	svc, err := New(s.state, beaconMock, s.seq)
	s.Require().NoError(err)

	before := s.state.Snapshot()
	_, err = svc.Create(s.ctx, s.request(s.alice, "seed"))
	s.Require().ErrorIs(err, models.ErrBeaconUnavailable)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	s.Equal(before, s.state.Snapshot())
}

func (s *ServiceSuite) TestCreateAcrossTickBoundary() {
	ahead, err := New(s.state, s.chain, sequence.NewManual(11))
	s.Require().NoError(err)
	behind, err := New(s.state, s.chain, sequence.NewManual(10))
	s.Require().NoError(err)

	_, err = ahead.Create(s.ctx, s.request(s.alice, "later"))
	s.Require().NoError(err)
	record, err := behind.Create(s.ctx, s.request(s.bob, "earlier"))
	s.Require().NoError(err)
	s.Equal(models.Sequence(10), record.CreatedAt)
	s.assertConsistent()
}

func (s *ServiceSuite) TestCreateBehindBeaconWindow() {
	ahead, err := New(s.state, s.chain, sequence.NewManual(10+beacon.DefaultWindow+1))
	s.Require().NoError(err)
	_, err = ahead.Create(s.ctx, s.request(s.alice, "later"))
	s.Require().NoError(err)

	_, err = s.svc.Create(s.ctx, s.request(s.bob, "stale"))
	s.Require().ErrorIs(err, models.ErrBeaconUnavailable)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	s.Equal(1, strings.Count(err.Error(), models.ErrBeaconUnavailable.Error()))
	s.assertConsistent()
}

// racedStore reports every record as already deleted by the time Remove
// runs, as a concurrent remover that committed first would.
type racedStore struct {
	*memory.State
}

func (r racedStore) RunInTx(ctx context.Context, fn func(stores ports.Stores) error) error {
	return r.State.RunInTx(ctx, func(stores ports.Stores) error {
		stores.Records = racedRecords{stores.Records}
		return fn(stores)
	})
}

type racedRecords struct {
	ports.RecordStore
}

func (racedRecords) Remove(context.Context, models.Identity) error {
	return sentinel.ErrNotFound
}

func (s *ServiceSuite) TestRemove_LostRaceIsNotFound() {
	record := s.create(s.alice, "contested")
	svc, err := New(racedStore{s.state}, s.chain, s.seq)
	s.Require().NoError(err)

	err = svc.Remove(s.ctx, s.alice, record.Identity)
	s.Require().ErrorIs(err, models.ErrNotFound)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	s.assertConsistent()
}

func (s *ServiceSuite) TestSequencerFailure() {
	seqMock := mocks.NewMockSequencer(s.ctrl)
	seqMock.EXPECT().Current(gomock.Any()).Return(models.Sequence(0), errors.New("before genesis"))
	svc, err := New(s.state, s.chain, seqMock)
	s.Require().NoError(err)

	_, err = svc.Create(s.ctx, s.request(s.alice, "seed"))
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
}

func (s *ServiceSuite) TestCancelledContext() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	_, err := s.svc.Create(ctx, s.request(s.alice, "late"))
	s.Require().Error(err)
	s.Empty(s.state.Snapshot().Records)
}
