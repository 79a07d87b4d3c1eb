//go:build integration

package store_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"personhood/internal/worldid/models"
	"personhood/internal/worldid/service"
	"personhood/internal/worldid/store"
	"personhood/pkg/platform/sentinel"
	"personhood/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
	now      time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
	s.now = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "worldid_nullifiers", "worldid_sessions", "accounts")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) seed(accountID string) {
	ctx := context.Background()
	_, err := s.store.EnsureAccount(ctx, accountID, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.SaveSession(ctx, models.Session{
		AccountID: accountID,
		Signal:    "sig-" + accountID,
		Action:    "verify",
		CreatedAt: s.now,
		ExpiresAt: s.now.Add(15 * time.Minute),
	}))
}

func (s *PostgresStoreSuite) verification(accountID, hash string) models.Verification {
	return models.Verification{
		AccountID:         accountID,
		Signal:            "sig-" + accountID,
		NullifierHash:     hash,
		VerificationLevel: models.VerificationLevelDevice,
		TrustScoreBoost:   50,
		BadgeName:         "World ID Verified",
		VerifiedAt:        s.now,
		RecordID:          uuid.New(),
	}
}

func commitAll(v models.Verification) func(service.Store) error {
	ctx := context.Background()
	return func(tx service.Store) error {
		if err := tx.MarkAccountVerified(ctx, v); err != nil {
			return err
		}
		if err := tx.InsertNullifier(ctx, v.NullifierRecord()); err != nil {
			return err
		}
		return tx.MarkSessionVerified(ctx, v.AccountID, v.Signal, v.VerifiedAt)
	}
}

func (s *PostgresStoreSuite) TestCommitRoundTrip() {
	ctx := context.Background()
	s.seed("acct-1")
	v := s.verification("acct-1", strings.Repeat("0", 64))

	s.Require().NoError(s.store.RunInTx(ctx, commitAll(v)))

	account, err := s.store.GetAccount(ctx, "acct-1")
	s.Require().NoError(err)
	s.True(account.IsVerified)
	s.Equal(50, account.TrustScore)
	s.Equal([]string{"World ID Verified"}, account.VerificationBadges)
	s.Require().NotNil(account.WorldIDVerification)
	s.Equal(models.VerificationLevelDevice, account.WorldIDVerification.VerificationLevel)
	s.True(s.now.Equal(account.WorldIDVerification.VerifiedAt))

	record, err := s.store.FindNullifier(ctx, v.NullifierHash)
	s.Require().NoError(err)
	s.Equal(v.RecordID, record.ID)
	s.Equal("acct-1", record.UserID)

	session, err := s.store.GetSession(ctx, "acct-1")
	s.Require().NoError(err)
	s.True(session.Verified)
	s.Require().NotNil(session.VerifiedAt)
}

func (s *PostgresStoreSuite) TestSaveSessionResetsVerifiedFlag() {
	ctx := context.Background()
	s.seed("acct-1")
	s.Require().NoError(s.store.MarkSessionVerified(ctx, "acct-1", "sig-acct-1", s.now))

	s.Require().NoError(s.store.SaveSession(ctx, models.Session{
		AccountID: "acct-1",
		Signal:    "fresh",
		Action:    "verify",
		CreatedAt: s.now,
		ExpiresAt: s.now.Add(time.Minute),
	}))

	session, err := s.store.GetSession(ctx, "acct-1")
	s.Require().NoError(err)
	s.Equal("fresh", session.Signal)
	s.False(session.Verified)
	s.Nil(session.VerifiedAt)
}

func (s *PostgresStoreSuite) TestConflictRollsBackAccountWrite() {
	ctx := context.Background()
	hash := strings.Repeat("a", 64)
	s.seed("acct-1")
	s.seed("acct-2")
	s.Require().NoError(s.store.RunInTx(ctx, commitAll(s.verification("acct-1", hash))))

	err := s.store.RunInTx(ctx, commitAll(s.verification("acct-2", hash)))
	s.ErrorIs(err, sentinel.ErrAlreadyUsed)

	account, err := s.store.GetAccount(ctx, "acct-2")
	s.Require().NoError(err)
	s.False(account.IsVerified)
	s.Zero(account.TrustScore)
	s.Empty(account.VerificationBadges)
}

func (s *PostgresStoreSuite) TestLedgerRejectsMixedCaseHash() {
	ctx := context.Background()
	s.seed("acct-1")

	err := s.store.RunInTx(ctx, commitAll(s.verification("acct-1", strings.Repeat("AB", 32))))
	s.Require().Error(err)

	account, err := s.store.GetAccount(ctx, "acct-1")
	s.Require().NoError(err)
	s.False(account.IsVerified)
}

func (s *PostgresStoreSuite) TestAlreadyVerifiedIsInvalidState() {
	ctx := context.Background()
	s.seed("acct-1")
	s.Require().NoError(s.store.RunInTx(ctx, commitAll(s.verification("acct-1", strings.Repeat("b", 64)))))

	err := s.store.MarkAccountVerified(ctx, s.verification("acct-1", strings.Repeat("c", 64)))
	s.ErrorIs(err, sentinel.ErrInvalidState)

	err = s.store.MarkAccountVerified(ctx, s.verification("ghost", strings.Repeat("c", 64)))
	s.ErrorIs(err, sentinel.ErrNotFound)
}

// TestConcurrentNullifierRace submits one nullifier from many accounts at
// once; the primary key must let exactly one transaction commit.
func (s *PostgresStoreSuite) TestConcurrentNullifierRace() {
	ctx := context.Background()
	const goroutines = 25
	hash := strings.Repeat("f", 64)
	for i := 0; i < goroutines; i++ {
		s.seed(fmt.Sprintf("acct-%02d", i))
	}

	var (
		wg        sync.WaitGroup
		committed atomic.Int32
		conflicts atomic.Int32
		other     atomic.Int32
	)
	start := make(chan struct{})
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			err := s.store.RunInTx(ctx, commitAll(s.verification(fmt.Sprintf("acct-%02d", i), hash)))
			switch {
			case err == nil:
				committed.Add(1)
			case errors.Is(err, sentinel.ErrAlreadyUsed):
				conflicts.Add(1)
			default:
				other.Add(1)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	s.Equal(int32(1), committed.Load())
	s.Equal(int32(goroutines-1), conflicts.Load())
	s.Zero(other.Load())

	var verified int
	err := s.postgres.DB.QueryRowContext(ctx, `SELECT count(*) FROM accounts WHERE is_verified`).Scan(&verified)
	s.Require().NoError(err)
	s.Equal(1, verified)
}
