package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SscSPs/fx_ledger/internal/core/domain"
	portssvc "github.com/SscSPs/fx_ledger/internal/core/ports/services"
	"github.com/SscSPs/fx_ledger/internal/core/services"
	"github.com/SscSPs/fx_ledger/internal/dto"
	"github.com/SscSPs/fx_ledger/internal/handlers"
	"github.com/SscSPs/fx_ledger/internal/platform/config"
	"github.com/SscSPs/fx_ledger/internal/repositories/database/memory"
	"github.com/SscSPs/fx_ledger/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ledgerTestSecret = "ledger-handler-secret-0123456789"

// ledgerAPI runs the real services on the memory store behind the real router.
type ledgerAPI struct {
	t      *testing.T
	router http.Handler
	store  *memory.Store
	svc    *portssvc.ServiceContainer
}

func newTestEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func newLedgerAPI(t *testing.T) *ledgerAPI {
	t.Helper()
	store := memory.NewStore(memory.NewDB())
	svc, err := services.NewContainer(store, services.Settings{
		HMACKey:       []byte("audit-hmac-key-for-handler-tests"),
		EncryptionKey: "field-key-for-handler-tests",
	})
	require.NoError(t, err)

	cfg := &config.Config{JWTSecret: ledgerTestSecret, JWTIssuer: "fx-ledger-test"}
	router := newTestEngine()
	handlers.RegisterRoutes(router, cfg, svc)

	api := &ledgerAPI{t: t, router: router, store: store, svc: svc}
	api.seed()
	return api
}

func (a *ledgerAPI) seed() {
	ctx := context.Background()
	now := time.Now().UTC()
	audit := domain.AuditFields{CreatedAt: now, CreatedBy: "system", LastUpdatedAt: now, LastUpdatedBy: "system"}
	t1 := "t1"
	require.NoError(a.t, a.store.Tenants().SaveTenant(ctx, domain.Tenant{
		TenantID: t1, Code: "T1", Name: "Exchange one", Level: 0, IsActive: true, OwnerID: "system", AuditFields: audit,
	}))
	require.NoError(a.t, a.store.Users().SaveUser(ctx, domain.User{
		UserID: "staff1", TenantID: &t1, Email: "staff1@example.com", Name: "Staff", Role: domain.RoleStaff, IsActive: true, AuditFields: audit,
	}))
	require.NoError(a.t, a.store.Users().SaveUser(ctx, domain.User{
		UserID: "cust1", TenantID: &t1, Email: "cust1@example.com", Name: "Customer", Role: domain.RoleCustomer, IsActive: true, AuditFields: audit,
	}))
	for id, balance := range map[string]int64{"acc-a": 100, "acc-b": 0} {
		b := decimal.NewFromInt(balance)
		require.NoError(a.t, a.store.Accounts().SaveAccount(ctx, domain.Account{
			AccountID: id, AccountNumber: "N-" + id, TenantID: t1, OwnerID: "cust1",
			CurrencyCode: domain.USD, AccountType: domain.AccountWallet,
			Balance: b, Available: b, LastResetAt: now, Status: domain.AccountActive, AuditFields: audit,
		}))
	}
}

func (a *ledgerAPI) call(userID, method, url string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	token, err := utils.GenerateJWT(userID, ledgerTestSecret, time.Hour, "fx-ledger-test")
	require.NoError(a.t, err)
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *ledgerAPI) balance(accountID string) decimal.Decimal {
	acc, err := a.store.Accounts().FindAccountByID(context.Background(), accountID)
	require.NoError(a.t, err)
	return acc.Balance
}

func TestLedgerAPI_TransferThenTrialBalance(t *testing.T) {
	api := newLedgerAPI(t)

	w := api.call("staff1", http.MethodPost, "/api/v1/transactions/transfer", map[string]any{
		"fromAccountID": "acc-a", "toAccountID": "acc-b", "amount": "40.00", "idempotencyKey": "k-1",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var txn dto.TransactionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &txn))
	assert.Equal(t, domain.StatusCompleted, txn.Status)
	assert.True(t, api.balance("acc-a").Equal(decimal.NewFromInt(60)))
	assert.True(t, api.balance("acc-b").Equal(decimal.NewFromInt(40)))

	// Replaying the key returns the recorded transaction without moving funds again.
	w = api.call("staff1", http.MethodPost, "/api/v1/transactions/transfer", map[string]any{
		"fromAccountID": "acc-a", "toAccountID": "acc-b", "amount": "40.00", "idempotencyKey": "k-1",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.True(t, api.balance("acc-a").Equal(decimal.NewFromInt(60)))

	w = api.call("staff1", http.MethodGet, "/api/v1/transactions/"+txn.TransactionID+"/journal", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var entries []domain.JournalEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	assert.NotEmpty(t, entries)

	w = api.call("staff1", http.MethodGet, "/api/v1/journal/trial-balance/t1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var tb domain.TrialBalance
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tb))
	assert.True(t, tb.Balanced)
}

func TestLedgerAPI_InsufficientFundsLeavesBalances(t *testing.T) {
	api := newLedgerAPI(t)

	w := api.call("staff1", http.MethodPost, "/api/v1/transactions/transfer", map[string]any{
		"fromAccountID": "acc-a", "toAccountID": "acc-b", "amount": "250",
	})

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "LEDGER_INSUFFICIENT_AVAILABLE")
	assert.True(t, api.balance("acc-a").Equal(decimal.NewFromInt(100)))
	assert.True(t, api.balance("acc-b").IsZero())
}

func TestLedgerAPI_CustomerCannotReadJournal(t *testing.T) {
	api := newLedgerAPI(t)

	w := api.call("cust1", http.MethodGet, "/api/v1/journal/trial-balance/t1", nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "AUTH_PERMISSION_DENIED")
}

func TestLedgerAPI_UnknownUserIsRejected(t *testing.T) {
	api := newLedgerAPI(t)

	w := api.call("ghost", http.MethodGet, "/api/v1/accounts/acc-a", nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
