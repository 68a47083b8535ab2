package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/SscSPs/fx_ledger/internal/apperrors"
	"github.com/SscSPs/fx_ledger/internal/core/domain"
	"github.com/SscSPs/fx_ledger/internal/core/ports/repositories"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedAccount(t *testing.T, s *Store, id, number string) {
	t.Helper()
	require.NoError(t, s.Accounts().SaveAccount(context.Background(), domain.Account{
		AccountID: id, AccountNumber: number, TenantID: "t1", CurrencyCode: domain.USD,
		Balance: decimal.NewFromInt(100), Available: decimal.NewFromInt(100), Status: domain.AccountActive,
	}))
}

func TestWithinTx_RollbackDiscardsStagedWrites(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewDB())
	seedAccount(t, s, "a", "USD1")

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(ctx context.Context, tx repositories.Store) error {
		acc, err := tx.Accounts().LockAccountForUpdate(ctx, "a")
		require.NoError(t, err)
		acc.Balance = decimal.Zero
		require.NoError(t, tx.Accounts().UpdateAccount(ctx, *acc))
		require.NoError(t, tx.Audit().AppendEvent(ctx, domain.AuditEvent{EventID: "e1"}))

		inTx, err := tx.Accounts().FindAccountByID(ctx, "a")
		require.NoError(t, err)
		assert.True(t, inTx.Balance.IsZero(), "unit of work sees its own writes")
		return boom
	})
	assert.ErrorIs(t, err, boom)

	acc, err := s.Accounts().FindAccountByID(ctx, "a")
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(100)))
	_, err = s.Audit().FindEventByID(ctx, "e1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestLockAccountForUpdate_SerializesAndHonoursDeadline(t *testing.T) {
	s := NewStore(NewDB())
	seedAccount(t, s, "a", "USD1")

	locked := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = s.WithinTx(context.Background(), func(ctx context.Context, tx repositories.Store) error {
			_, err := tx.Accounts().LockAccountForUpdate(ctx, "a")
			require.NoError(t, err)
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := s.WithinTx(ctx, func(ctx context.Context, tx repositories.Store) error {
		_, err := tx.Accounts().LockAccountForUpdate(ctx, "a")
		return err
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	wg.Wait()

	err = s.WithinTx(context.Background(), func(ctx context.Context, tx repositories.Store) error {
		_, err := tx.Accounts().LockAccountForUpdate(ctx, "a")
		return err
	})
	assert.NoError(t, err, "lock is released after commit")
}

func TestUpdateTransaction_CompareAndSwap(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewDB())
	require.NoError(t, s.Transactions().SaveTransaction(ctx, domain.Transaction{TransactionID: "tx", TenantID: "t1", Status: domain.StatusPending}))

	first := domain.Transaction{TransactionID: "tx", TenantID: "t1", Status: domain.StatusPartial, Version: 1}
	require.NoError(t, s.Transactions().UpdateTransaction(ctx, first, 0))

	stale := domain.Transaction{TransactionID: "tx", TenantID: "t1", Status: domain.StatusCancelled, Version: 1}
	assert.ErrorIs(t, s.Transactions().UpdateTransaction(ctx, stale, 0), apperrors.ErrVersionMismatch)

	// Two units of work racing on the same version: the second commit loses.
	errA := s.WithinTx(ctx, func(ctx context.Context, tx repositories.Store) error {
		errB := s.WithinTx(ctx, func(ctx context.Context, inner repositories.Store) error {
			return inner.Transactions().UpdateTransaction(ctx, domain.Transaction{TransactionID: "tx", TenantID: "t1", Version: 2}, 1)
		})
		require.NoError(t, errB)
		return tx.Transactions().UpdateTransaction(ctx, domain.Transaction{TransactionID: "tx", TenantID: "t1", Version: 2}, 1)
	})
	assert.ErrorIs(t, errA, apperrors.ErrVersionMismatch)
}

func TestUniqueConstraints(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewDB())
	seedAccount(t, s, "a", "USD1")

	err := s.Accounts().SaveAccount(ctx, domain.Account{AccountID: "b", AccountNumber: "USD1"})
	assert.ErrorIs(t, err, apperrors.ErrDuplicate)

	key := "idem-1"
	require.NoError(t, s.Transactions().SaveTransaction(ctx, domain.Transaction{TransactionID: "t-1", TenantID: "t1", IdempotencyKey: &key}))
	err = s.Transactions().SaveTransaction(ctx, domain.Transaction{TransactionID: "t-2", TenantID: "t1", IdempotencyKey: &key})
	assert.ErrorIs(t, err, apperrors.ErrDuplicate)
	require.NoError(t, s.Transactions().SaveTransaction(ctx, domain.Transaction{TransactionID: "t-3", TenantID: "t2", IdempotencyKey: &key}))

	require.NoError(t, s.Tenants().SaveTenant(ctx, domain.Tenant{TenantID: "x", Code: "HQ"}))
	assert.ErrorIs(t, s.Tenants().SaveTenant(ctx, domain.Tenant{TenantID: "y", Code: "HQ"}), apperrors.ErrDuplicate)
}

func TestPurgeEvents_KeepsHighSeverity(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewDB())
	old := time.Now().Add(-100 * 24 * time.Hour)
	for i, sev := range []domain.Severity{domain.SeverityLow, domain.SeverityMedium, domain.SeverityHigh, domain.SeverityCritical} {
		require.NoError(t, s.Audit().AppendEvent(ctx, domain.AuditEvent{EventID: string(rune('a' + i)), Timestamp: old, Severity: sev}))
	}
	require.NoError(t, s.Audit().AppendEvent(ctx, domain.AuditEvent{EventID: "fresh", Timestamp: time.Now(), Severity: domain.SeverityLow}))

	purged, err := s.Audit().PurgeEvents(ctx, time.Now().Add(-90*24*time.Hour), domain.SeverityHigh)
	require.NoError(t, err)
	assert.Equal(t, int64(2), purged)

	left, _, err := s.Audit().QueryEvents(ctx, domain.AuditFilter{})
	require.NoError(t, err)
	assert.Len(t, left, 3)
}
