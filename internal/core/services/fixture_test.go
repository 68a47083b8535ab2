package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/SscSPs/fx_ledger/internal/core/domain"
	portsrepo "github.com/SscSPs/fx_ledger/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/fx_ledger/internal/core/ports/services"
	"github.com/SscSPs/fx_ledger/internal/core/services"
	"github.com/SscSPs/fx_ledger/internal/dto"
	"github.com/SscSPs/fx_ledger/internal/repositories/database/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const (
	testHMACKey       = "audit-hmac-key-for-tests-only"
	testEncryptionKey = "field-encryption-key-for-tests"
)

// recordingSink keeps every delivered alert.
type recordingSink struct {
	mu     sync.Mutex
	events []domain.AuditEvent
	err    error
}

func (s *recordingSink) Deliver(_ context.Context, event domain.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) delivered() []domain.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.AuditEvent(nil), s.events...)
}

// fixture is a platform root with two exchanges t1 and t2 below it.
type fixture struct {
	t     *testing.T
	ctx   context.Context
	store *memory.Store
	svc   *portssvc.ServiceContainer
	sink  *recordingSink

	super     domain.Actor
	admin1    domain.Actor // exchange-admin of t1
	staff1    domain.Actor // staff of t1
	customer1 domain.Actor // customer of t1
}

func newFixture(t *testing.T, tweaks ...func(*services.Settings)) *fixture {
	t.Helper()
	store := memory.NewStore(memory.NewDB())
	return newFixtureWithStore(t, store, store, tweaks...)
}

// newFixtureWithStore seeds through seed and builds the services on top of uow,
// which may wrap seed to inject failures.
func newFixtureWithStore(t *testing.T, seed *memory.Store, uow portsrepo.UnitOfWorkStore, tweaks ...func(*services.Settings)) *fixture {
	t.Helper()
	f := &fixture{t: t, ctx: context.Background(), store: seed, sink: &recordingSink{}}
	settings := services.Settings{
		HMACKey:       []byte(testHMACKey),
		EncryptionKey: testEncryptionKey,
		AlertSink:     f.sink,
	}
	for _, tweak := range tweaks {
		tweak(&settings)
	}
	svc, err := services.NewContainer(uow, settings)
	require.NoError(t, err)
	f.svc = svc

	f.seedTenant("root", nil, 0)
	f.seedTenant("t1", strPtr("root"), 1)
	f.seedTenant("t2", strPtr("root"), 1)

	f.super = domain.SystemActor()
	f.admin1 = f.seedUser("admin1", "t1", domain.RoleExchangeAdmin)
	f.staff1 = f.seedUser("staff1", "t1", domain.RoleStaff)
	f.customer1 = f.seedUser("cust1", "t1", domain.RoleCustomer)
	return f
}

func strPtr(s string) *string { return &s }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func (f *fixture) seedTenant(id string, parent *string, level int) {
	f.t.Helper()
	now := time.Now().UTC()
	require.NoError(f.t, f.store.Tenants().SaveTenant(f.ctx, domain.Tenant{
		TenantID: id, Code: id, Name: "Exchange " + id, ParentID: parent, Level: level,
		IsActive: true, OwnerID: "system",
		AuditFields: domain.AuditFields{CreatedAt: now, CreatedBy: "system", LastUpdatedAt: now, LastUpdatedBy: "system"},
	}))
}

func (f *fixture) seedUser(id, tenantID string, role domain.Role) domain.Actor {
	f.t.Helper()
	user := domain.User{
		UserID: id, TenantID: strPtr(tenantID), Email: id + "@example.com", Name: id, Role: role, IsActive: true,
	}
	require.NoError(f.t, f.store.Users().SaveUser(f.ctx, user))
	return domain.ActorFromUser(user, "203.0.113.7", "ledger-tests")
}

func (f *fixture) seedAccount(id, tenantID, ownerID string, currency domain.CurrencyCode, balance string) {
	f.t.Helper()
	now := time.Now().UTC()
	require.NoError(f.t, f.store.Accounts().SaveAccount(f.ctx, domain.Account{
		AccountID: id, AccountNumber: "N-" + id, TenantID: tenantID, OwnerID: ownerID,
		CurrencyCode: currency, AccountType: domain.AccountWallet,
		Balance: dec(balance), Available: dec(balance), Frozen: decimal.Zero,
		DailyUsed: decimal.Zero, MonthlyUsed: decimal.Zero, DailyLimit: decimal.Zero, MonthlyLimit: decimal.Zero,
		LastResetAt: now, Status: domain.AccountActive,
		AuditFields: domain.AuditFields{CreatedAt: now, CreatedBy: "system", LastUpdatedAt: now, LastUpdatedBy: "system"},
	}))
}

func (f *fixture) seedRate(from, to domain.CurrencyCode, tenantID, rate string) {
	f.t.Helper()
	now := time.Now().UTC()
	require.NoError(f.t, f.store.ExchangeRates().SaveExchangeRate(f.ctx, domain.ExchangeRate{
		ExchangeRateID: string(from) + string(to) + tenantID, TenantID: tenantID,
		FromCurrency: from, ToCurrency: to, Rate: dec(rate), IsActive: true,
		EffectiveAt: now.Add(-time.Hour), Source: "manual",
		AuditFields: domain.AuditFields{CreatedAt: now, CreatedBy: "system", LastUpdatedAt: now, LastUpdatedBy: "system"},
	}))
}

func (f *fixture) account(id string) domain.Account {
	f.t.Helper()
	a, err := f.store.Accounts().FindAccountByID(f.ctx, id)
	require.NoError(f.t, err)
	return *a
}

func (f *fixture) events(kinds ...domain.EventKind) []domain.AuditEvent {
	f.t.Helper()
	events, _, err := f.store.Audit().QueryEvents(f.ctx, domain.AuditFilter{Kinds: kinds, Limit: 500})
	require.NoError(f.t, err)
	return events
}

func (f *fixture) transactions() []domain.Transaction {
	f.t.Helper()
	txns, _, err := f.svc.Ledger.ListTransactions(f.ctx, f.super, dto.ListTransactionsParams{Limit: 500})
	require.NoError(f.t, err)
	return txns
}
