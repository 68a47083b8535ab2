package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/SscSPs/fx_ledger/internal/core/domain"
	"github.com/SscSPs/fx_ledger/internal/dto"
	"github.com/SscSPs/fx_ledger/internal/platform/bootstrap"
	"github.com/SscSPs/fx_ledger/internal/platform/config"
	"github.com/SscSPs/fx_ledger/internal/repositories/database/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ctlFixture struct {
	t      *testing.T
	store  *memory.Store
	cfg    *config.Config
	stdout bytes.Buffer
	stderr bytes.Buffer
	now    time.Time
}

func newCtlFixture(t *testing.T) *ctlFixture {
	t.Helper()
	f := &ctlFixture{
		t:     t,
		store: memory.NewStore(memory.NewDB()),
		cfg: &config.Config{
			StoreDriver:        config.StoreDriverMemory,
			MaxRetries:         1,
			RetryBaseDelay:     time.Millisecond,
			UoWTimeout:         5 * time.Second,
			AuditRetention:     90 * 24 * time.Hour,
			FieldEncryptionKey: "ctl-field-key-0123456789",
			AuditHMACKey:       "ctl-hmac-key-0123456789",
			RateCacheTTL:       time.Minute,
			RateLimit:          "100-M",
		},
		now: time.Now().UTC(),
	}
	f.seed()
	return f
}

func (f *ctlFixture) seed() {
	ctx := context.Background()
	audit := domain.AuditFields{CreatedAt: f.now, CreatedBy: domain.SystemActorID, LastUpdatedAt: f.now, LastUpdatedBy: domain.SystemActorID}
	require.NoError(f.t, f.store.Tenants().SaveTenant(ctx, domain.Tenant{
		TenantID: "t1", Code: "T1", Name: "Exchange one", IsActive: true, OwnerID: domain.SystemActorID, AuditFields: audit,
	}))
	for id, balance := range map[string]int64{"acc-a": 100, "acc-b": 0} {
		b := decimal.NewFromInt(balance)
		require.NoError(f.t, f.store.Accounts().SaveAccount(ctx, domain.Account{
			AccountID: id, AccountNumber: "N-" + id, TenantID: "t1", OwnerID: domain.SystemActorID,
			CurrencyCode: domain.USD, AccountType: domain.AccountWallet,
			Balance: b, Available: b, LastResetAt: f.now, Status: domain.AccountActive, AuditFields: audit,
		}))
	}
}

func (f *ctlFixture) app() *app {
	return &app{
		stdout:     &f.stdout,
		stderr:     &f.stderr,
		logger:     slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
		loadConfig: func() (*config.Config, error) { return f.cfg, nil },
		open: func(ctx context.Context, cfg *config.Config) (*bootstrap.Runtime, error) {
			return bootstrap.Open(ctx, cfg, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)), bootstrap.Options{Store: f.store})
		},
		now: func() time.Time { return f.now },
	}
}

func (f *ctlFixture) run(args ...string) int {
	f.stdout.Reset()
	f.stderr.Reset()
	return f.app().run(context.Background(), args)
}

func (f *ctlFixture) transfer(amount int64) string {
	rt, err := f.app().open(context.Background(), f.cfg)
	require.NoError(f.t, err)
	defer rt.Close()
	txn, err := rt.Services.Ledger.Transfer(context.Background(), domain.SystemActor(), dto.TransferRequest{
		FromAccountID: "acc-a", ToAccountID: "acc-b", Amount: decimal.NewFromInt(amount),
	})
	require.NoError(f.t, err)
	return txn.TransactionID
}

func decodeSummary(t *testing.T, buf *bytes.Buffer) summary {
	t.Helper()
	var s summary
	require.NoError(t, json.Unmarshal(buf.Bytes(), &s), buf.String())
	return s
}

func TestVerifyTrialBalance_Passes(t *testing.T) {
	f := newCtlFixture(t)
	f.transfer(25)

	code := f.run("verify-trial-balance", "t1")

	assert.Equal(t, exitPass, code, f.stderr.String())
	s := decodeSummary(t, &f.stdout)
	assert.True(t, s.Passed)
	assert.Equal(t, "verify-trial-balance", s.Command)
	assert.Empty(t, f.stderr.String())
}

func TestVerifyTrialBalance_DiscrepancyGoesToStderr(t *testing.T) {
	f := newCtlFixture(t)
	require.NoError(t, f.store.Journal().SaveEntries(context.Background(), []domain.JournalEntry{{
		EntryID: "orphan", TenantID: "t1", TransactionID: "txn-orphan", AccountCode: "acc-a",
		AccountClass: domain.Liability, Debit: decimal.Zero, Credit: decimal.NewFromInt(10),
		Currency: domain.USD, CreatedAt: f.now,
	}}))

	code := f.run("verify-trial-balance", "--tenant", "t1")

	assert.Equal(t, exitDiscrepancy, code)
	assert.Empty(t, f.stdout.String())
	s := decodeSummary(t, &f.stderr)
	assert.False(t, s.Passed)
}

func TestVerifyTrialBalance_RequiresTenant(t *testing.T) {
	f := newCtlFixture(t)

	code := f.run("verify-trial-balance")

	assert.Equal(t, exitError, code)
	s := decodeSummary(t, &f.stderr)
	assert.Equal(t, "tenant is required", s.Error)
}

func TestVerifyAuditIntegrity_PositionalRange(t *testing.T) {
	f := newCtlFixture(t)
	f.transfer(10)
	from := f.now.Add(-time.Hour).Format(time.RFC3339)
	to := f.now.Add(time.Hour).Format(time.RFC3339)

	code := f.run("verify-audit-integrity", "t1", from+"/"+to)

	assert.Equal(t, exitPass, code, f.stderr.String())
	s := decodeSummary(t, &f.stdout)
	assert.True(t, s.Passed)
}

func TestVerifyAuditIntegrity_BadRange(t *testing.T) {
	f := newCtlFixture(t)

	code := f.run("verify-audit-integrity", "t1", "yesterday")

	assert.Equal(t, exitError, code)
	assert.Contains(t, decodeSummary(t, &f.stderr).Error, "<from>/<to>")
}

func TestRebuildJournal_StoredEntriesMatch(t *testing.T) {
	f := newCtlFixture(t)
	txnID := f.transfer(30)

	code := f.run("rebuild-journal", "t1", txnID)

	assert.Equal(t, exitPass, code, f.stderr.String())
	s := decodeSummary(t, &f.stdout)
	assert.True(t, s.Passed)
}

func TestPurgeAuditAndDetection(t *testing.T) {
	f := newCtlFixture(t)

	assert.Equal(t, exitPass, f.run("purge-audit", "--retention", "720h"), f.stderr.String())
	assert.Equal(t, exitPass, f.run("run-detection"), f.stderr.String())
}

func TestMigrate_RequiresPostgres(t *testing.T) {
	f := newCtlFixture(t)

	code := f.run("migrate")

	assert.Equal(t, exitError, code)
	assert.Contains(t, decodeSummary(t, &f.stderr).Error, "STORE_DRIVER")
}

func TestUnknownCommand(t *testing.T) {
	f := newCtlFixture(t)

	assert.Equal(t, exitError, f.run("explode"))
	assert.Contains(t, f.stderr.String(), "unknown command")
}
