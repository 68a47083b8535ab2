package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SscSPs/fx_ledger/internal/apperrors"
	"github.com/SscSPs/fx_ledger/internal/core/domain"
	portsrepo "github.com/SscSPs/fx_ledger/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/fx_ledger/internal/core/ports/services"
	"github.com/SscSPs/fx_ledger/internal/dto"
	"github.com/SscSPs/fx_ledger/internal/handlers"
	"github.com/SscSPs/fx_ledger/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

// --- Mock AccountService ---
type MockAccountService struct {
	mock.Mock
}

func (m *MockAccountService) GetAccount(ctx context.Context, actor domain.Actor, accountID string) (*domain.Account, error) {
	args := m.Called(ctx, actor, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}
func (m *MockAccountService) GetAccountByNumber(ctx context.Context, actor domain.Actor, accountNumber string) (*domain.Account, error) {
	args := m.Called(ctx, actor, accountNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}
func (m *MockAccountService) ListAccounts(ctx context.Context, actor domain.Actor, params dto.ListAccountsParams) ([]domain.Account, *string, error) {
	args := m.Called(ctx, actor, params)
	var next *string
	if args.Get(1) != nil {
		next = args.Get(1).(*string)
	}
	if args.Get(0) == nil {
		return nil, next, args.Error(2)
	}
	return args.Get(0).([]domain.Account), next, args.Error(2)
}
func (m *MockAccountService) CreateAccount(ctx context.Context, actor domain.Actor, req dto.CreateAccountRequest) (*domain.Account, error) {
	args := m.Called(ctx, actor, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}
func (m *MockAccountService) UpdateLimits(ctx context.Context, actor domain.Actor, accountID string, req dto.UpdateAccountLimitsRequest) (*domain.Account, error) {
	args := m.Called(ctx, actor, accountID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}
func (m *MockAccountService) ChangeStatus(ctx context.Context, actor domain.Actor, accountID string, req dto.ChangeAccountStatusRequest) (*domain.Account, error) {
	args := m.Called(ctx, actor, accountID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}
func (m *MockAccountService) FreezeFunds(ctx context.Context, actor domain.Actor, accountID string, req dto.FreezeFundsRequest) (*domain.Account, error) {
	args := m.Called(ctx, actor, accountID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}
func (m *MockAccountService) UnfreezeFunds(ctx context.Context, actor domain.Actor, accountID string, req dto.FreezeFundsRequest) (*domain.Account, error) {
	args := m.Called(ctx, actor, accountID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}
func (m *MockAccountService) LockForUpdate(ctx context.Context, tx portsrepo.Store, accountIDs []string) (map[string]*domain.Account, error) {
	args := m.Called(ctx, tx, accountIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]*domain.Account), args.Error(1)
}
func (m *MockAccountService) Persist(ctx context.Context, tx portsrepo.Store, accounts map[string]*domain.Account) error {
	return m.Called(ctx, tx, accounts).Error(0)
}

// Ensure mock implements the interface
var _ portssvc.AccountSvcFacade = (*MockAccountService)(nil)

// --- Mock actor resolver ---
type MockResolver struct {
	mock.Mock
}

func (m *MockResolver) ResolveActor(ctx context.Context, userID, ip, userAgent string) (domain.Actor, error) {
	args := m.Called(ctx, userID, ip, userAgent)
	return args.Get(0).(domain.Actor), args.Error(1)
}

// --- Test Suite ---
type AccountHandlerTestSuite struct {
	suite.Suite
	router             *gin.Engine
	mockAccountService *MockAccountService
	mockResolver       *MockResolver
	jwtSecret          string
	actor              domain.Actor
}

// generateTestToken creates a signed JWT for testing.
func (suite *AccountHandlerTestSuite) generateTestToken(userID string) string {
	claims := jwt.RegisteredClaims{
		Issuer:    "fx-ledger-test",
		Subject:   userID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(1 * time.Hour)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(suite.jwtSecret))
	if err != nil {
		suite.FailNow("Failed to sign test token", err.Error())
	}
	return signed
}

func (suite *AccountHandlerTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	suite.router = gin.New()
	suite.jwtSecret = "test-secret-key-that-is-long-enough"

	suite.mockAccountService = new(MockAccountService)
	suite.mockResolver = new(MockResolver)
	suite.actor = domain.Actor{
		UserID:      uuid.NewString(),
		TenantID:    "t1",
		Role:        domain.RoleBranchManager,
		Permissions: domain.DefaultPermissions(domain.RoleBranchManager),
	}
	suite.mockResolver.On("ResolveActor", mock.Anything, suite.actor.UserID, mock.Anything, mock.Anything).
		Return(suite.actor, nil).Maybe()

	v1 := suite.router.Group("/api/v1", middleware.AuthMiddleware(suite.jwtSecret, "fx-ledger-test", suite.mockResolver, nil))
	handlers.RegisterAccountRoutes(v1, suite.mockAccountService)
}

func (suite *AccountHandlerTestSuite) do(method, url string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		suite.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req, _ := http.NewRequest(method, url, &buf)
	req.Header.Set("Authorization", "Bearer "+suite.generateTestToken(suite.actor.UserID))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)
	return w
}

func sampleAccount(id string) *domain.Account {
	return &domain.Account{
		AccountID:     id,
		AccountNumber: "USD-000001",
		TenantID:      "t1",
		OwnerID:       "owner-1",
		CurrencyCode:  domain.USD,
		AccountType:   domain.AccountWallet,
		Balance:       decimal.NewFromInt(100),
		Available:     decimal.NewFromInt(100),
		Status:        domain.AccountActive,
	}
}

// --- Test Cases ---

func (suite *AccountHandlerTestSuite) TestCreateAccount_Success() {
	req := dto.CreateAccountRequest{
		TenantID:     "t1",
		OwnerID:      "owner-1",
		CurrencyCode: domain.USD,
		AccountType:  domain.AccountWallet,
	}
	created := sampleAccount(uuid.NewString())
	suite.mockAccountService.On("CreateAccount", mock.Anything, suite.actor,
		mock.MatchedBy(func(r dto.CreateAccountRequest) bool {
			return r.TenantID == "t1" && r.CurrencyCode == domain.USD
		}),
	).Return(created, nil).Once()

	w := suite.do(http.MethodPost, "/api/v1/accounts", req)

	suite.Equal(http.StatusCreated, w.Code)
	var resp dto.AccountResponse
	suite.NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	suite.Equal(created.AccountID, resp.AccountID)
	suite.True(resp.Balance.Equal(decimal.NewFromInt(100)))
	suite.mockAccountService.AssertExpectations(suite.T())
}

func (suite *AccountHandlerTestSuite) TestCreateAccount_InvalidBody() {
	w := suite.do(http.MethodPost, "/api/v1/accounts", map[string]any{"tenantID": "t1", "accountType": "PIGGYBANK"})

	suite.Equal(http.StatusBadRequest, w.Code)
	suite.Contains(w.Body.String(), "VALIDATION_ERROR")
	suite.mockAccountService.AssertNotCalled(suite.T(), "CreateAccount")
}

func (suite *AccountHandlerTestSuite) TestGetAccount_NotFound() {
	suite.mockAccountService.On("GetAccount", mock.Anything, suite.actor, "missing").
		Return(nil, apperrors.New(apperrors.AccountNotFound, "account missing not found")).Once()

	w := suite.do(http.MethodGet, "/api/v1/accounts/missing", nil)

	suite.Equal(http.StatusNotFound, w.Code)
	var body map[string]any
	suite.NoError(json.Unmarshal(w.Body.Bytes(), &body))
	suite.Equal("ACCOUNT_NOT_FOUND", body["code"])
	suite.Equal("account not found", body["error"])
}

func (suite *AccountHandlerTestSuite) TestGetAccount_PermissionDeniedDoesNotLeak() {
	suite.mockAccountService.On("GetAccount", mock.Anything, suite.actor, "other").
		Return(nil, apperrors.New(apperrors.PermissionDenied, "account other belongs to tenant t9")).Once()

	w := suite.do(http.MethodGet, "/api/v1/accounts/other", nil)

	suite.Equal(http.StatusForbidden, w.Code)
	suite.NotContains(w.Body.String(), "t9")
}

func (suite *AccountHandlerTestSuite) TestInternalErrorIsMasked() {
	suite.mockAccountService.On("GetAccount", mock.Anything, suite.actor, "boom").
		Return(nil, context.DeadlineExceeded).Once()

	w := suite.do(http.MethodGet, "/api/v1/accounts/boom", nil)

	suite.Equal(http.StatusInternalServerError, w.Code)
	suite.NotContains(w.Body.String(), "deadline")
}

func (suite *AccountHandlerTestSuite) TestListAccounts_DefaultsToActorTenant() {
	next := "cursor-2"
	suite.mockAccountService.On("ListAccounts", mock.Anything, suite.actor,
		mock.MatchedBy(func(p dto.ListAccountsParams) bool {
			return p.TenantID == "t1" && p.Limit == 10
		}),
	).Return([]domain.Account{*sampleAccount("a1"), *sampleAccount("a2")}, &next, nil).Once()

	w := suite.do(http.MethodGet, "/api/v1/accounts?limit=10", nil)

	suite.Equal(http.StatusOK, w.Code)
	var resp dto.ListAccountsResponse
	suite.NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	suite.Len(resp.Accounts, 2)
	suite.Require().NotNil(resp.NextToken)
	suite.Equal(next, *resp.NextToken)
}

func (suite *AccountHandlerTestSuite) TestFreezeFunds_Insufficient() {
	suite.mockAccountService.On("FreezeFunds", mock.Anything, suite.actor, "a1", mock.Anything).
		Return(nil, apperrors.New(apperrors.InsufficientAvailable, "account a1 cannot freeze 500")).Once()

	w := suite.do(http.MethodPost, "/api/v1/accounts/a1/freeze", map[string]any{"amount": "500", "reason": "hold"})

	suite.Equal(http.StatusUnprocessableEntity, w.Code)
	suite.Contains(w.Body.String(), "LEDGER_INSUFFICIENT_AVAILABLE")
}

func (suite *AccountHandlerTestSuite) TestMissingToken() {
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/accounts/a1", nil)
	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)

	suite.Equal(http.StatusUnauthorized, w.Code)
	suite.mockAccountService.AssertNotCalled(suite.T(), "GetAccount")
}

// --- Run Test Suite ---
func TestAccountHandler(t *testing.T) {
	suite.Run(t, new(AccountHandlerTestSuite))
}
