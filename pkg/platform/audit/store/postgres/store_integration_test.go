//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	id "kycflow/pkg/domain"
	audit "kycflow/pkg/platform/audit"
	auditpg "kycflow/pkg/platform/audit/store/postgres"
	txcontext "kycflow/pkg/platform/tx"
	"kycflow/pkg/testutil/containers"
)

type AuditStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *auditpg.Store
}

func TestAuditStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(AuditStoreSuite))
}

func (s *AuditStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.Require().NoError(auditpg.Migrate(context.Background(), s.postgres.DB))
	s.store = auditpg.New(s.postgres.DB)
}

func (s *AuditStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "audit_events"))
}

func (s *AuditStoreSuite) TestAppendAndList() {
	ctx := context.Background()
	userID := id.UserID(uuid.New())
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	s.Require().NoError(s.store.Append(ctx, audit.Event{
		UserID:    userID,
		Action:    string(audit.EventDraftSubmitted),
		Subject:   "donor",
		Timestamp: at,
	}))

	events, err := s.store.ListByUser(ctx, userID)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(audit.CategoryCompliance, events[0].Category)
	s.Equal("donor", events[0].Subject)
	s.True(at.Equal(events[0].Timestamp))
}

// TestRollbackDiscardsEvent verifies an event appended inside a transaction
// disappears with it.
func (s *AuditStoreSuite) TestRollbackDiscardsEvent() {
	ctx := context.Background()
	userID := id.UserID(uuid.New())

	tx, err := s.postgres.DB.BeginTx(ctx, nil)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Append(txcontext.WithTx(ctx, tx), audit.Event{
		UserID:    userID,
		Action:    string(audit.EventDraftSaved),
		Timestamp: time.Now(),
	}))
	s.Require().NoError(tx.Rollback())

	events, err := s.store.ListByUser(ctx, userID)
	s.Require().NoError(err)
	s.Empty(events)
}
