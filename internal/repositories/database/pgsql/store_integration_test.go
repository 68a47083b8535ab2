package pgsql_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/SscSPs/fx_ledger/internal/apperrors"
	"github.com/SscSPs/fx_ledger/internal/core/domain"
	portsrepo "github.com/SscSPs/fx_ledger/internal/core/ports/repositories"
	"github.com/SscSPs/fx_ledger/internal/repositories/database/pgsql"
	"github.com/SscSPs/fx_ledger/migrations"
	"github.com/SscSPs/fx_ledger/pkg/database"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// StoreSuite runs against a real PostgreSQL when LEDGER_TEST_PGSQL_URL is set.
type StoreSuite struct {
	suite.Suite
	ctx   context.Context
	store *pgsql.Store
	close func()
}

func TestStoreSuite(t *testing.T) {
	url := os.Getenv("LEDGER_TEST_PGSQL_URL")
	if url == "" {
		t.Skip("LEDGER_TEST_PGSQL_URL not set")
	}
	suite.Run(t, &StoreSuite{})
}

func (s *StoreSuite) SetupSuite() {
	url := os.Getenv("LEDGER_TEST_PGSQL_URL")
	s.ctx = context.Background()
	_, err := database.RunMigrations(url, migrations.FS, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.Require().NoError(err)
	pool, err := database.NewPgxPool(s.ctx, url, database.PoolOptions{Ping: true})
	s.Require().NoError(err)
	s.store = pgsql.NewStore(pool)
	s.close = pool.Close
}

func (s *StoreSuite) TearDownSuite() {
	if s.close != nil {
		s.close()
	}
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func (s *StoreSuite) seedTenant() domain.Tenant {
	at := now()
	t := domain.Tenant{
		TenantID: uuid.NewString(),
		Code:     "T-" + uuid.NewString()[:8],
		Name:     "integration",
		Level:    0,
		IsActive: true,
		OwnerID:  domain.SystemActorID,
		AuditFields: domain.AuditFields{
			CreatedAt: at, CreatedBy: domain.SystemActorID, LastUpdatedAt: at, LastUpdatedBy: domain.SystemActorID,
		},
	}
	s.Require().NoError(s.store.Tenants().SaveTenant(s.ctx, t))
	return t
}

func (s *StoreSuite) seedAccount(tenantID string, balance string) domain.Account {
	at := now()
	seq, err := s.store.Accounts().NextAccountSequence(s.ctx)
	s.Require().NoError(err)
	b := decimal.RequireFromString(balance)
	a := domain.Account{
		AccountID:     uuid.NewString(),
		AccountNumber: "USD" + uuid.NewString()[:12],
		TenantID:      tenantID,
		OwnerID:       "owner",
		CurrencyCode:  domain.USD,
		AccountType:   domain.AccountWallet,
		Balance:       b,
		Available:     b,
		LastResetAt:   at,
		Status:        domain.AccountActive,
		AuditFields: domain.AuditFields{
			CreatedAt: at, CreatedBy: domain.SystemActorID, LastUpdatedAt: at, LastUpdatedBy: domain.SystemActorID,
		},
	}
	s.Require().Positive(seq)
	s.Require().NoError(s.store.Accounts().SaveAccount(s.ctx, a))
	return a
}

func (s *StoreSuite) TestLockAndUpdateCommitsAtomically() {
	tenant := s.seedTenant()
	acc := s.seedAccount(tenant.TenantID, "100.00")

	err := s.store.WithinTx(s.ctx, func(ctx context.Context, tx portsrepo.Store) error {
		locked, err := tx.Accounts().LockAccountForUpdate(ctx, acc.AccountID)
		if err != nil {
			return err
		}
		if err := locked.ApplyDelta(decimal.RequireFromString("40"), domain.DeltaDebit, now()); err != nil {
			return err
		}
		return tx.Accounts().UpdateAccount(ctx, *locked)
	})
	s.Require().NoError(err)

	got, err := s.store.Accounts().FindAccountByID(s.ctx, acc.AccountID)
	s.Require().NoError(err)
	s.True(got.Balance.Equal(decimal.RequireFromString("60")))
	s.NoError(got.CheckInvariants())
}

func (s *StoreSuite) TestFailedUnitLeavesNoTrace() {
	tenant := s.seedTenant()
	acc := s.seedAccount(tenant.TenantID, "10")
	boom := errors.New("abort")

	err := s.store.WithinTx(s.ctx, func(ctx context.Context, tx portsrepo.Store) error {
		locked, err := tx.Accounts().LockAccountForUpdate(ctx, acc.AccountID)
		if err != nil {
			return err
		}
		locked.Balance = locked.Balance.Add(decimal.NewFromInt(5))
		locked.Available = locked.Available.Add(decimal.NewFromInt(5))
		if err := tx.Accounts().UpdateAccount(ctx, *locked); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)

	got, err := s.store.Accounts().FindAccountByID(s.ctx, acc.AccountID)
	s.Require().NoError(err)
	s.True(got.Balance.Equal(decimal.NewFromInt(10)))
}

func (s *StoreSuite) TestTransactionVersionAndIdempotency() {
	tenant := s.seedTenant()
	acc := s.seedAccount(tenant.TenantID, "10")
	at := now()
	key := "key-" + uuid.NewString()
	txn := domain.Transaction{
		TransactionID:   uuid.NewString(),
		TenantID:        tenant.TenantID,
		ActorID:         domain.SystemActorID,
		Type:            domain.TxFee,
		FromAccountID:   &acc.AccountID,
		SourceAmount:    decimal.NewFromInt(1),
		SourceCurrency:  domain.USD,
		Rate:            decimal.NewFromInt(1),
		ConvertedAmount: decimal.NewFromInt(1),
		TargetCurrency:  domain.USD,
		Total:           decimal.NewFromInt(1),
		Paid:            decimal.NewFromInt(1),
		Status:          domain.StatusCompleted,
		IdempotencyKey:  &key,
		AuditFields:     domain.AuditFields{CreatedAt: at, CreatedBy: "x", LastUpdatedAt: at, LastUpdatedBy: "x"},
	}
	s.Require().NoError(s.store.Transactions().SaveTransaction(s.ctx, txn))

	dup := txn
	dup.TransactionID = uuid.NewString()
	s.ErrorIs(s.store.Transactions().SaveTransaction(s.ctx, dup), apperrors.ErrDuplicate)

	found, err := s.store.Transactions().FindTransactionByIdempotencyKey(s.ctx, tenant.TenantID, key)
	s.Require().NoError(err)
	s.Equal(txn.TransactionID, found.TransactionID)

	s.Require().NoError(found.Transition(domain.StatusRolledBack, "x", "test", now()))
	s.Require().NoError(s.store.Transactions().UpdateTransaction(s.ctx, *found, 0))
	s.ErrorIs(s.store.Transactions().UpdateTransaction(s.ctx, *found, 0), apperrors.ErrVersionMismatch)

	reloaded, err := s.store.Transactions().FindTransactionByID(s.ctx, txn.TransactionID)
	s.Require().NoError(err)
	s.Equal(int64(1), reloaded.Version)
	s.Len(reloaded.StatusHistory, 1)
}

func (s *StoreSuite) TestLockOutsideUnitOfWorkIsRejected() {
	_, err := s.store.Accounts().LockAccountForUpdate(s.ctx, "whatever")
	assert.Error(s.T(), err)
}

func TestStoreRequiresMigrationsFS(t *testing.T) {
	entries, err := migrations.FS.ReadDir(".")
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Contains(t, names, "000001_ledger_schema.up.sql")
	assert.Contains(t, names, "000001_ledger_schema.down.sql")
}
