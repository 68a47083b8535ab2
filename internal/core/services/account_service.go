package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/SscSPs/fx_ledger/internal/apperrors"
	"github.com/SscSPs/fx_ledger/internal/core/domain"
	portsrepo "github.com/SscSPs/fx_ledger/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/fx_ledger/internal/core/ports/services"
	"github.com/SscSPs/fx_ledger/internal/dto"
	"github.com/SscSPs/fx_ledger/internal/utils"
	"github.com/SscSPs/fx_ledger/internal/utils/money"
	"github.com/SscSPs/fx_ledger/internal/utils/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// accountNumberAttempts bounds retries on account number collisions.
const accountNumberAttempts = 3

type accountService struct {
	BaseService
	store  portsrepo.UnitOfWorkStore
	authz  portssvc.AuthorizationSvc
	audit  portssvc.AuditWriterSvc
	runner *uowRunner
}

// AccountOption configures the account service.
type AccountOption func(*accountService)

// WithAccountUoW sets the retry policy and deadline of account units of work.
func WithAccountUoW(maxRetries int, base, timeout time.Duration) AccountOption {
	return func(s *accountService) {
		if maxRetries > 0 {
			s.runner.maxRetries = maxRetries
		}
		if base > 0 {
			s.runner.baseDelay = base
		}
		if timeout > 0 {
			s.runner.timeout = timeout
		}
	}
}

// WithAccountObserver reports unit of work outcomes and retries.
func WithAccountObserver(o portssvc.Observer) AccountOption {
	return func(s *accountService) {
		s.runner.observer = o
	}
}

// WithAccountClock overrides the time source.
func WithAccountClock(clock func() time.Time) AccountOption {
	return func(s *accountService) {
		s.Clock = clock
		s.runner.Clock = clock
	}
}

// NewAccountService creates the account store service.
func NewAccountService(store portsrepo.UnitOfWorkStore, authz portssvc.AuthorizationSvc, audit portssvc.AuditWriterSvc, options ...AccountOption) portssvc.AccountSvcFacade {
	svc := &accountService{store: store, authz: authz, audit: audit, runner: newUoWRunner(store)}
	for _, option := range options {
		option(svc)
	}
	return svc
}

var _ portssvc.AccountSvcFacade = (*accountService)(nil)

func validateLimits(daily, monthly decimal.Decimal, overdraft *dto.OverdraftRequest) error {
	if daily.IsNegative() || monthly.IsNegative() {
		return apperrors.New(apperrors.InvalidRequest, "limits cannot be negative")
	}
	if daily.IsPositive() && monthly.IsPositive() && daily.GreaterThan(monthly) {
		return apperrors.New(apperrors.InvalidRequest, "daily limit cannot exceed monthly limit")
	}
	if overdraft != nil && overdraft.Limit.IsNegative() {
		return apperrors.New(apperrors.InvalidRequest, "overdraft limit cannot be negative")
	}
	return nil
}

func (s *accountService) CreateAccount(ctx context.Context, actor domain.Actor, req dto.CreateAccountRequest) (*domain.Account, error) {
	if err := dto.Validate(req); err != nil {
		return nil, err
	}
	if !req.CurrencyCode.IsValid() {
		return nil, apperrors.Newf(apperrors.InvalidCurrency, "unsupported currency %q", req.CurrencyCode)
	}
	if err := validateLimits(req.DailyLimit, req.MonthlyLimit, req.Overdraft); err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, actor, domain.OpCreateAccount, req.TenantID); err != nil {
		return nil, err
	}
	if actor.Role == domain.RoleCustomer && req.OwnerID != actor.UserID {
		return nil, s.authz.Deny(ctx, actor, domain.OpCreateAccount, "account", "", "customers open accounts for themselves only")
	}

	now := s.now()
	status := domain.AccountActive
	if req.Pending {
		status = domain.AccountPending
	}
	account := domain.Account{
		AccountID:    uuid.NewString(),
		TenantID:     req.TenantID,
		OwnerID:      req.OwnerID,
		CurrencyCode: req.CurrencyCode,
		AccountType:  req.AccountType,
		Balance:      decimal.Zero,
		Available:    decimal.Zero,
		Frozen:       decimal.Zero,
		DailyUsed:    decimal.Zero,
		MonthlyUsed:  decimal.Zero,
		DailyLimit:   money.Round(req.DailyLimit, req.CurrencyCode),
		MonthlyLimit: money.Round(req.MonthlyLimit, req.CurrencyCode),
		LastResetAt:  now,
		Status:       status,
		AuditFields: domain.AuditFields{
			CreatedAt:     now,
			CreatedBy:     actor.UserID,
			LastUpdatedAt: now,
			LastUpdatedBy: actor.UserID,
		},
	}
	if req.Overdraft != nil {
		account.Overdraft = domain.OverdraftPolicy{Enabled: req.Overdraft.Enabled, Limit: money.Round(req.Overdraft.Limit, req.CurrencyCode)}
	}

	var err error
	for attempt := 1; attempt <= accountNumberAttempts; attempt++ {
		err = s.runner.run(ctx, domain.OpCreateAccount.Name, func(ctx context.Context, tx portsrepo.Store) error {
			return s.insertAccount(ctx, tx, actor, &account)
		})
		if !errors.Is(err, apperrors.ErrDuplicate) {
			break
		}
		s.LogWarn(ctx, err, "Account number collision, retrying", slog.Int("attempt", attempt))
	}
	if err != nil {
		if errors.Is(err, apperrors.ErrDuplicate) {
			err = apperrors.Wrap(apperrors.Conflict, err, "could not allocate a unique account number")
		}
		s.LogError(ctx, err, "Failed to create account", slog.String("tenant_id", req.TenantID))
		auditFailure(ctx, s.BaseService, s.audit, actor, domain.OpCreateAccount, req.TenantID, "account", account.AccountID, err)
		return nil, err
	}
	s.LogInfo(ctx, "Account created",
		slog.String("account_id", account.AccountID),
		slog.String("account_number", account.AccountNumber))
	return &account, nil
}

func (s *accountService) insertAccount(ctx context.Context, tx portsrepo.Store, actor domain.Actor, account *domain.Account) error {
	tenant, err := tx.Tenants().FindTenantByID(ctx, account.TenantID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.Newf(apperrors.TenantNotFound, "tenant %s not found", account.TenantID)
		}
		return fmt.Errorf("failed to load tenant: %w", err)
	}
	if !tenant.IsActive {
		return apperrors.Newf(apperrors.TenantNotFound, "tenant %s is inactive", account.TenantID)
	}
	owner, err := tx.Users().FindUserByID(ctx, account.OwnerID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.Newf(apperrors.InvalidRequest, "owner %s not found", account.OwnerID)
		}
		return fmt.Errorf("failed to load owner: %w", err)
	}
	if owner.TenantID == nil || *owner.TenantID != account.TenantID {
		return apperrors.Newf(apperrors.InvalidRequest, "owner %s does not belong to tenant %s", account.OwnerID, account.TenantID)
	}

	seq, err := tx.Accounts().NextAccountSequence(ctx)
	if err != nil {
		return fmt.Errorf("failed to allocate account sequence: %w", err)
	}
	suffix, err := utils.GenerateRandomDigits(3)
	if err != nil {
		return err
	}
	account.AccountNumber = utils.FormatAccountNumber(string(account.CurrencyCode), seq, suffix)

	if err := tx.Accounts().SaveAccount(ctx, *account); err != nil {
		return err
	}
	_, err = s.audit.AppendInTx(ctx, tx, portssvc.AuditRecord{
		Kind:         domain.EventAccountCreated,
		Severity:     domain.SeverityMedium,
		Actor:        &actor,
		TenantID:     strPtr(account.TenantID),
		Action:       domain.OpCreateAccount.Name,
		ResourceKind: "account",
		ResourceID:   account.AccountID,
		Details: map[string]any{
			"accountNumber": account.AccountNumber,
			"currency":      string(account.CurrencyCode),
			"ownerID":       account.OwnerID,
		},
	})
	return err
}

// load fetches an account and checks the actor may act on it. Unknown ids are
// reported as denials so that account existence does not leak across tenants.
func (s *accountService) load(ctx context.Context, actor domain.Actor, op domain.Operation, accountID string) (*domain.Account, error) {
	account, err := s.store.Accounts().FindAccountByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			if actor.IsSuper() {
				notFound := apperrors.Newf(apperrors.AccountNotFound, "account %s not found", accountID)
				auditFailure(ctx, s.BaseService, s.audit, actor, op, "", "account", accountID, notFound)
				return nil, notFound
			}
			return nil, s.authz.Deny(ctx, actor, op, "account", accountID, "unknown account")
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, s.authorizeAccount(ctx, actor, op, account)
}

func (s *accountService) authorizeAccount(ctx context.Context, actor domain.Actor, op domain.Operation, account *domain.Account) error {
	if err := s.authz.Authorize(ctx, actor, op, account.TenantID); err != nil {
		return err
	}
	if actor.Role == domain.RoleCustomer && account.OwnerID != actor.UserID {
		return s.authz.Deny(ctx, actor, op, "account", account.AccountID, "account owned by another user")
	}
	return nil
}

func (s *accountService) GetAccount(ctx context.Context, actor domain.Actor, accountID string) (*domain.Account, error) {
	account, err := s.load(ctx, actor, domain.OpReadAccount, accountID)
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (s *accountService) GetAccountByNumber(ctx context.Context, actor domain.Actor, accountNumber string) (*domain.Account, error) {
	account, err := s.store.Accounts().FindAccountByNumber(ctx, accountNumber)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			if actor.IsSuper() {
				return nil, apperrors.Newf(apperrors.AccountNotFound, "account %s not found", accountNumber)
			}
			return nil, s.authz.Deny(ctx, actor, domain.OpReadAccount, "account", accountNumber, "unknown account")
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if err := s.authorizeAccount(ctx, actor, domain.OpReadAccount, account); err != nil {
		return nil, err
	}
	return account, nil
}

func (s *accountService) ListAccounts(ctx context.Context, actor domain.Actor, params dto.ListAccountsParams) ([]domain.Account, *string, error) {
	if err := dto.Validate(params); err != nil {
		return nil, nil, err
	}
	filter := portsrepo.AccountFilter{
		OwnerID:  params.OwnerID,
		Status:   params.Status,
		Currency: params.Currency,
		Page:     domain.Page{Limit: pagination.NormalizeLimit(params.Limit), NextToken: params.NextToken},
	}
	if params.TenantID != "" {
		if err := s.authz.Authorize(ctx, actor, domain.OpReadAccount, params.TenantID); err != nil {
			return nil, nil, err
		}
		filter.TenantIDs = []string{params.TenantID}
	} else {
		if err := s.authz.Authorize(ctx, actor, domain.OpReadAccount); err != nil {
			return nil, nil, err
		}
		visible, err := s.authz.AccessibleTenants(ctx, actor, domain.ActionRead)
		if err != nil {
			return nil, nil, err
		}
		if visible != nil && len(visible) == 0 {
			return []domain.Account{}, nil, nil
		}
		filter.TenantIDs = visible
	}
	if actor.Role == domain.RoleCustomer {
		filter.OwnerID = strPtr(actor.UserID)
	}

	accounts, next, err := s.store.Accounts().ListAccounts(ctx, filter)
	if err != nil {
		s.LogError(ctx, err, "Failed to list accounts")
		return nil, nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, next, nil
}

// mutate locks one account, applies fn and writes it back with an audit record.
// Failures are audited like any other unit of work.
func (s *accountService) mutate(ctx context.Context, actor domain.Actor, op domain.Operation, accountID string, kind domain.EventKind, severity domain.Severity, fn func(*domain.Account) (map[string]any, error)) (*domain.Account, error) {
	current, err := s.load(ctx, actor, op, accountID)
	if err != nil {
		return nil, err
	}
	var updated domain.Account
	err = s.runner.run(ctx, op.Name, func(ctx context.Context, tx portsrepo.Store) error {
		locked, err := s.LockForUpdate(ctx, tx, []string{accountID})
		if err != nil {
			return err
		}
		account := locked[accountID]
		details, err := fn(account)
		if err != nil {
			return err
		}
		account.LastUpdatedAt = s.now()
		account.LastUpdatedBy = actor.UserID
		if err := s.Persist(ctx, tx, locked); err != nil {
			return err
		}
		updated = *account
		_, err = s.audit.AppendInTx(ctx, tx, portssvc.AuditRecord{
			Kind:         kind,
			Severity:     severity,
			Actor:        &actor,
			TenantID:     strPtr(account.TenantID),
			Action:       op.Name,
			ResourceKind: "account",
			ResourceID:   accountID,
			Details:      details,
		})
		return err
	})
	if err != nil {
		s.LogError(ctx, err, "Failed to update account",
			slog.String("account_id", accountID),
			slog.String("operation", op.Name))
		auditFailure(ctx, s.BaseService, s.audit, actor, op, current.TenantID, "account", accountID, err)
		return nil, err
	}
	return &updated, nil
}

func (s *accountService) UpdateLimits(ctx context.Context, actor domain.Actor, accountID string, req dto.UpdateAccountLimitsRequest) (*domain.Account, error) {
	if err := dto.Validate(req); err != nil {
		return nil, err
	}
	return s.mutate(ctx, actor, domain.OpUpdateAccountLimits, accountID, domain.EventAccountLimitsUpdated, domain.SeverityMedium,
		func(a *domain.Account) (map[string]any, error) {
			daily, monthly := a.DailyLimit, a.MonthlyLimit
			if req.DailyLimit != nil {
				daily = money.Round(*req.DailyLimit, a.CurrencyCode)
			}
			if req.MonthlyLimit != nil {
				monthly = money.Round(*req.MonthlyLimit, a.CurrencyCode)
			}
			if err := validateLimits(daily, monthly, req.Overdraft); err != nil {
				return nil, err
			}
			a.DailyLimit, a.MonthlyLimit = daily, monthly
			if req.Overdraft != nil {
				a.Overdraft = domain.OverdraftPolicy{Enabled: req.Overdraft.Enabled, Limit: money.Round(req.Overdraft.Limit, a.CurrencyCode)}
			}
			return map[string]any{
				"dailyLimit":     a.DailyLimit.String(),
				"monthlyLimit":   a.MonthlyLimit.String(),
				"overdraft":      a.Overdraft.Enabled,
				"overdraftLimit": a.Overdraft.Limit.String(),
			}, nil
		})
}

func (s *accountService) ChangeStatus(ctx context.Context, actor domain.Actor, accountID string, req dto.ChangeAccountStatusRequest) (*domain.Account, error) {
	if err := dto.Validate(req); err != nil {
		return nil, err
	}
	severity := domain.SeverityMedium
	if req.Status == domain.AccountSuspended || req.Status == domain.AccountClosed {
		severity = domain.SeverityHigh
	}
	return s.mutate(ctx, actor, domain.OpChangeAccountStatus, accountID, domain.EventAccountStatusChanged, severity,
		func(a *domain.Account) (map[string]any, error) {
			if !a.Status.CanTransitionTo(req.Status) {
				return nil, apperrors.Newf(apperrors.InvalidStateTransition, "account %s cannot move from %s to %s", a.AccountID, a.Status, req.Status)
			}
			if req.Status == domain.AccountClosed && (!a.Balance.IsZero() || !a.Frozen.IsZero()) {
				return nil, apperrors.Newf(apperrors.InvalidStateTransition, "account %s must be empty before closing", a.AccountID)
			}
			previous := a.Status
			a.Status = req.Status
			return map[string]any{"from": string(previous), "to": string(req.Status), "reason": req.Reason}, nil
		})
}

func (s *accountService) FreezeFunds(ctx context.Context, actor domain.Actor, accountID string, req dto.FreezeFundsRequest) (*domain.Account, error) {
	return s.hold(ctx, actor, accountID, req, domain.DeltaFreeze, domain.EventFundsFrozen)
}

func (s *accountService) UnfreezeFunds(ctx context.Context, actor domain.Actor, accountID string, req dto.FreezeFundsRequest) (*domain.Account, error) {
	return s.hold(ctx, actor, accountID, req, domain.DeltaUnfreeze, domain.EventFundsUnfrozen)
}

func (s *accountService) hold(ctx context.Context, actor domain.Actor, accountID string, req dto.FreezeFundsRequest, kind domain.DeltaKind, event domain.EventKind) (*domain.Account, error) {
	if err := dto.Validate(req); err != nil {
		return nil, err
	}
	return s.mutate(ctx, actor, domain.OpFreezeFunds, accountID, event, domain.SeverityHigh,
		func(a *domain.Account) (map[string]any, error) {
			if err := money.ValidateAmount(req.Amount, a.CurrencyCode); err != nil {
				return nil, err
			}
			if err := a.ApplyDelta(req.Amount, kind, s.now()); err != nil {
				return nil, err
			}
			return map[string]any{"amount": req.Amount.String(), "reason": req.Reason}, nil
		})
}

// LockForUpdate locks accounts in ascending id order, the one order every unit
// of work uses, so two units touching the same accounts cannot deadlock.
func (s *accountService) LockForUpdate(ctx context.Context, tx portsrepo.Store, accountIDs []string) (map[string]*domain.Account, error) {
	ids := sortedUnique(accountIDs)
	locked := make(map[string]*domain.Account, len(ids))
	for _, id := range ids {
		account, err := tx.Accounts().LockAccountForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return nil, apperrors.Newf(apperrors.AccountNotFound, "account %s not found", id)
			}
			return nil, fmt.Errorf("failed to lock account %s: %w", id, err)
		}
		locked[id] = account
	}
	return locked, nil
}

// Persist writes locked accounts back in the same ascending order.
func (s *accountService) Persist(ctx context.Context, tx portsrepo.Store, accounts map[string]*domain.Account) error {
	ids := make([]string, 0, len(accounts))
	for id := range accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := tx.Accounts().UpdateAccount(ctx, *accounts[id]); err != nil {
			return fmt.Errorf("failed to update account %s: %w", id, err)
		}
	}
	return nil
}

func sortedUnique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
