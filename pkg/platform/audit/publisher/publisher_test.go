package publisher

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"

	id "kycflow/pkg/domain"
	audit "kycflow/pkg/platform/audit"
	"kycflow/pkg/platform/audit/store/memory"
)

// gatedStore blocks Append until release is closed, so a test can fill the
// async queue deterministically.
type gatedStore struct {
	*memory.InMemoryStore
	entered chan struct{}
	release chan struct{}
}

func (s *gatedStore) Append(ctx context.Context, e audit.Event) error {
	s.entered <- struct{}{}
	<-s.release
	return s.InMemoryStore.Append(ctx, e)
}

type PublisherSuite struct {
	suite.Suite
	ctx   context.Context
	store *memory.InMemoryStore
	user  id.UserID
	now   time.Time
}

func TestPublisherSuite(t *testing.T) {
	suite.Run(t, new(PublisherSuite))
}

func (s *PublisherSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.NewInMemoryStore()
	s.user = id.UserID(uuid.New())
	s.now = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
}

func (s *PublisherSuite) TearDownTest() {
	goleak.VerifyNone(s.T())
}

func (s *PublisherSuite) event(action audit.AuditEvent) audit.Event {
	return audit.Event{UserID: s.user, Subject: "donor", Action: string(action)}
}

func (s *PublisherSuite) actions(events []audit.Event) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.Action)
	}
	return out
}

// ============================================================
// Synchronous mode
// ============================================================

func (s *PublisherSuite) TestSyncWritesThroughInOrder() {
	pub := NewPublisher(s.store, WithClock(func() time.Time { return s.now }))
	defer pub.Close()

	for _, a := range []audit.AuditEvent{audit.EventDraftSaved, audit.EventAttachmentUploaded, audit.EventDraftSubmitted} {
		s.Require().NoError(pub.Emit(s.ctx, s.event(a)))
	}
	s.Require().NoError(pub.Emit(s.ctx, audit.Event{UserID: id.UserID(uuid.New()), Action: string(audit.EventDraftSaved)}))

	events, err := pub.List(s.ctx, s.user)
	s.Require().NoError(err)
	s.Equal([]string{"kyc_draft_saved", "kyc_attachment_uploaded", "kyc_draft_submitted"}, s.actions(events))
	s.Equal(s.now, events[0].Timestamp)
}

func (s *PublisherSuite) TestStamping() {
	pub := NewPublisher(s.store, WithClock(func() time.Time { return s.now }))
	defer pub.Close()

	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	e := s.event(audit.EventDraftReviewed)
	e.Timestamp = at
	s.Require().NoError(pub.Emit(s.ctx, e))
	s.Require().NoError(pub.Emit(s.ctx, s.event(audit.EventAccessDenied)))

	events, err := pub.List(s.ctx, s.user)
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal(at, events[0].Timestamp, "an explicit timestamp is kept")
	s.Equal(audit.CategoryCompliance, events[0].Category)
	s.Equal(s.now, events[1].Timestamp)
	s.Equal(audit.CategorySecurity, events[1].Category)
}

// ============================================================
// Async mode
// ============================================================

func (s *PublisherSuite) TestAsyncDrainsOnClose() {
	pub := NewPublisher(s.store, WithAsyncBuffer(16))
	for range 10 {
		s.Require().NoError(pub.Emit(s.ctx, s.event(audit.EventDraftSaved)))
	}
	pub.Close()

	events, err := s.store.ListByUser(s.ctx, s.user)
	s.Require().NoError(err)
	s.Len(events, 10)
}

func (s *PublisherSuite) TestAsyncFullQueueFailsFast() {
	gated := &gatedStore{
		InMemoryStore: s.store,
		entered:       make(chan struct{}, 4),
		release:       make(chan struct{}),
	}
	pub := NewPublisher(gated, WithAsyncBuffer(1))

	s.Require().NoError(pub.Emit(s.ctx, s.event(audit.EventDraftSaved)))
	<-gated.entered // worker holds the first event
	s.Require().NoError(pub.Emit(s.ctx, s.event(audit.EventDraftSaved)))

	err := pub.Emit(s.ctx, s.event(audit.EventDraftSaved))
	s.ErrorIs(err, errBufferFull)

	cancelled, cancel := context.WithCancel(s.ctx)
	cancel()
	s.ErrorIs(pub.Emit(cancelled, s.event(audit.EventDraftSaved)), context.Canceled)

	close(gated.release)
	pub.Close()
	events, err := s.store.ListByUser(s.ctx, s.user)
	s.Require().NoError(err)
	s.Len(events, 2)
}

func (s *PublisherSuite) TestEmitAfterCloseWritesThrough() {
	pub := NewPublisher(s.store, WithAsyncBuffer(4))
	pub.Close()
	pub.Close()

	s.Require().NoError(pub.Emit(s.ctx, s.event(audit.EventDraftSaved)))
	events, err := s.store.ListByUser(s.ctx, s.user)
	s.Require().NoError(err)
	s.Len(events, 1)
}
