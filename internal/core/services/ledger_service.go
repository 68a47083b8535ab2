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
	"github.com/SscSPs/fx_ledger/internal/utils/money"
	"github.com/SscSPs/fx_ledger/internal/utils/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ledgerService is the transaction coordinator. Every value-moving call runs as
// one unit of work: lock accounts in id order, validate, mutate balances,
// persist the transaction, project the journal and append the audit event.
type ledgerService struct {
	BaseService
	store    portsrepo.UnitOfWorkStore
	authz    portssvc.AuthorizationSvc
	accounts portssvc.AccountLockerSvc
	rates    portssvc.ExchangeRateReaderSvc
	journal  portssvc.JournalProjectorSvc
	audit    portssvc.AuditWriterSvc
	runner   *uowRunner
}

// LedgerOption configures the coordinator.
type LedgerOption func(*ledgerService)

// WithRetryPolicy sets how often a unit of work is retried after a write
// conflict and the base of its exponential backoff.
func WithRetryPolicy(maxRetries int, base time.Duration) LedgerOption {
	return func(s *ledgerService) {
		s.runner.maxRetries = maxRetries
		s.runner.baseDelay = base
	}
}

// WithUoWTimeout sets the deadline of every unit of work.
func WithUoWTimeout(timeout time.Duration) LedgerOption {
	return func(s *ledgerService) {
		s.runner.timeout = timeout
	}
}

// WithLedgerClock overrides the time source.
func WithLedgerClock(clock func() time.Time) LedgerOption {
	return func(s *ledgerService) {
		s.Clock = clock
		s.runner.Clock = clock
	}
}

// WithLedgerObserver reports unit of work outcomes and retries.
func WithLedgerObserver(o portssvc.Observer) LedgerOption {
	return func(s *ledgerService) {
		s.runner.observer = o
	}
}

// NewLedgerService creates the coordinator.
func NewLedgerService(
	store portsrepo.UnitOfWorkStore,
	authz portssvc.AuthorizationSvc,
	accounts portssvc.AccountLockerSvc,
	rates portssvc.ExchangeRateReaderSvc,
	journal portssvc.JournalProjectorSvc,
	audit portssvc.AuditWriterSvc,
	options ...LedgerOption,
) portssvc.LedgerSvcFacade {
	svc := &ledgerService{
		store:    store,
		authz:    authz,
		accounts: accounts,
		rates:    rates,
		journal:  journal,
		audit:    audit,
		runner:   newUoWRunner(store),
	}
	for _, option := range options {
		option(svc)
	}
	return svc
}

var _ portssvc.LedgerSvcFacade = (*ledgerService)(nil)

// accountDelta is one balance mutation of a settlement.
type accountDelta struct {
	accountID string
	amount    decimal.Decimal
	kind      domain.DeltaKind
}

// settlementDeltas maps a transaction to the balance mutations that settle it.
func settlementDeltas(txn domain.Transaction) []accountDelta {
	from, to := derefOr(txn.FromAccountID, ""), derefOr(txn.ToAccountID, "")
	switch txn.Type {
	case domain.TxTransfer:
		return []accountDelta{
			{from, txn.SourceAmount, domain.DeltaDebit},
			{to, txn.ConvertedAmount, domain.DeltaCredit},
		}
	case domain.TxExchange:
		return []accountDelta{
			{from, txn.Total, domain.DeltaDebit},
			{to, txn.ConvertedAmount, domain.DeltaCredit},
		}
	case domain.TxFee:
		return []accountDelta{{from, txn.Total, domain.DeltaDebit}}
	case domain.TxAdjustment:
		if txn.Direction != nil && *txn.Direction == domain.AdjustmentWithdrawal {
			return []accountDelta{{from, txn.Total, domain.DeltaDebit}}
		}
		return []accountDelta{{to, txn.ConvertedAmount, domain.DeltaCredit}}
	case domain.TxRefund:
		return []accountDelta{{to, txn.ConvertedAmount, domain.DeltaCredit}}
	case domain.TxBuy:
		return []accountDelta{{to, txn.ConvertedAmount, domain.DeltaCredit}}
	case domain.TxSell, domain.TxRemittance:
		// The total was frozen when the trade was opened.
		return []accountDelta{
			{from, txn.Total, domain.DeltaUnfreeze},
			{from, txn.Total, domain.DeltaDebit},
		}
	}
	return nil
}

func deltaAccountIDs(deltas []accountDelta) []string {
	ids := make([]string, 0, len(deltas))
	for _, d := range deltas {
		ids = append(ids, d.accountID)
	}
	return ids
}

func applyDeltas(locked map[string]*domain.Account, deltas []accountDelta, now time.Time) error {
	for _, d := range deltas {
		account, ok := locked[d.accountID]
		if !ok {
			return apperrors.Newf(apperrors.AccountNotFound, "account %s not locked", d.accountID)
		}
		if err := account.ApplyDelta(d.amount, d.kind, now); err != nil {
			return err
		}
		account.LastUpdatedAt = now
	}
	return nil
}

// reverseDeltas undoes a settlement made at settledAt in reverse order. Released
// holds are not re-frozen: a rolled-back trade no longer reserves funds.
func reverseDeltas(locked map[string]*domain.Account, deltas []accountDelta, settledAt, now time.Time) error {
	for i := len(deltas) - 1; i >= 0; i-- {
		d := deltas[i]
		if d.kind == domain.DeltaUnfreeze {
			continue
		}
		account, ok := locked[d.accountID]
		if !ok {
			return apperrors.Newf(apperrors.AccountNotFound, "account %s not locked", d.accountID)
		}
		if err := account.ApplyReversal(d.amount, d.kind, settledAt, now); err != nil {
			return err
		}
		account.LastUpdatedAt = now
	}
	return nil
}

func (s *ledgerService) newTransaction(actor domain.Actor, typ domain.TransactionType, tenantID string, key *string, description string, now time.Time) domain.Transaction {
	return domain.Transaction{
		TransactionID:   uuid.NewString(),
		TenantID:        tenantID,
		ActorID:         actor.UserID,
		Type:            typ,
		SourceAmount:    decimal.Zero,
		Rate:            decimal.NewFromInt(1),
		ConvertedAmount: decimal.Zero,
		Commission:      decimal.Zero,
		Total:           decimal.Zero,
		Paid:            decimal.Zero,
		Remaining:       decimal.Zero,
		Status:          domain.StatusPending,
		IdempotencyKey:  key,
		Description:     description,
		AuditFields: domain.AuditFields{
			CreatedAt:     now,
			CreatedBy:     actor.UserID,
			LastUpdatedAt: now,
			LastUpdatedBy: actor.UserID,
		},
	}
}

// completed marks an immediate transaction as settled at version 0.
func completed(txn *domain.Transaction, actorID string, now time.Time) {
	txn.Paid = txn.Total
	txn.Remaining = decimal.Zero
	txn.Status = domain.StatusCompleted
	txn.Version = 0
	txn.StatusHistory = []domain.StatusChange{{To: domain.StatusCompleted, ActorID: actorID, Reason: "posted", ChangedAt: now}}
}

func txnDetails(txn domain.Transaction) map[string]any {
	details := map[string]any{
		"type":           string(txn.Type),
		"status":         string(txn.Status),
		"version":        txn.Version,
		"sourceAmount":   txn.SourceAmount.String(),
		"sourceCurrency": string(txn.SourceCurrency),
		"total":          txn.Total.String(),
	}
	if txn.FromAccountID != nil {
		details["fromAccountID"] = *txn.FromAccountID
	}
	if txn.ToAccountID != nil {
		details["toAccountID"] = *txn.ToAccountID
	}
	if txn.IsCrossCurrency() {
		details["rate"] = txn.Rate.String()
		details["convertedAmount"] = txn.ConvertedAmount.String()
		details["targetCurrency"] = string(txn.TargetCurrency)
	}
	return details
}

func (s *ledgerService) record(ctx context.Context, tx portsrepo.Store, actor domain.Actor, op domain.Operation, kind domain.EventKind, txn domain.Transaction, extra map[string]any) error {
	details := txnDetails(txn)
	for k, v := range extra {
		details[k] = v
	}
	_, err := s.audit.AppendInTx(ctx, tx, portssvc.AuditRecord{
		Kind:         kind,
		Severity:     domain.SeverityHigh,
		Actor:        &actor,
		TenantID:     strPtr(txn.TenantID),
		Action:       op.Name,
		ResourceKind: "transaction",
		ResourceID:   txn.TransactionID,
		Details:      details,
	})
	return err
}

// recordFailure appends a standalone event named after the failure kind. The
// unit of work it describes has already been rolled back.
func (s *ledgerService) recordFailure(ctx context.Context, actor domain.Actor, op domain.Operation, tenantID, resourceID string, cause error) {
	auditFailure(ctx, s.BaseService, s.audit, actor, op, tenantID, "transaction", resourceID, cause)
}

// preload reads the accounts outside the unit of work to authorize the call.
// Unknown accounts are denied for everybody but super users.
func (s *ledgerService) preload(ctx context.Context, actor domain.Actor, op domain.Operation, accountIDs ...string) (map[string]domain.Account, error) {
	ids := sortedUnique(accountIDs)
	found, err := s.store.Accounts().FindAccountsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}
	tenants := make([]string, 0, len(ids))
	for _, id := range ids {
		account, ok := found[id]
		if !ok {
			if actor.IsSuper() {
				notFound := apperrors.Newf(apperrors.AccountNotFound, "account %s not found", id)
				auditFailure(ctx, s.BaseService, s.audit, actor, op, "", "account", id, notFound)
				return nil, notFound
			}
			return nil, s.authz.Deny(ctx, actor, op, "account", id, "unknown account")
		}
		tenants = append(tenants, account.TenantID)
	}
	if err := s.authz.Authorize(ctx, actor, op, tenants...); err != nil {
		return nil, err
	}
	return found, nil
}

// requireOwnership keeps customers to their own accounts for debits.
func (s *ledgerService) requireOwnership(ctx context.Context, actor domain.Actor, op domain.Operation, accounts map[string]domain.Account, debited ...string) error {
	if actor.Role != domain.RoleCustomer {
		return nil
	}
	for _, id := range debited {
		if accounts[id].OwnerID != actor.UserID {
			return s.authz.Deny(ctx, actor, op, "account", id, "account owned by another user")
		}
	}
	return nil
}

// intent is what an idempotent request asks for. A replayed transaction must match it.
type intent struct {
	txType   domain.TransactionType
	accounts []string
	amount   decimal.Decimal
}

func (i intent) matches(txn *domain.Transaction) bool {
	if txn.Type != i.txType || !txn.SourceAmount.Equal(i.amount) {
		return false
	}
	for _, id := range i.accounts {
		if derefOr(txn.FromAccountID, "") != id && derefOr(txn.ToAccountID, "") != id {
			return false
		}
	}
	return true
}

// replay returns the transaction already recorded under key, if any.
// A key held by another actor is denied; a key reused for a different request is a conflict.
func (s *ledgerService) replay(ctx context.Context, actor domain.Actor, op domain.Operation, tenantID string, key *string, want intent) (*domain.Transaction, error) {
	if key == nil || *key == "" {
		return nil, nil
	}
	txn, err := s.store.Transactions().FindTransactionByIdempotencyKey(ctx, tenantID, *key)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up idempotency key: %w", err)
	}
	if txn.ActorID != actor.UserID {
		return nil, s.authz.Deny(ctx, actor, op, "idempotency-key", *key, "idempotency key recorded by another actor")
	}
	if !want.matches(txn) {
		return nil, apperrors.Newf(apperrors.Conflict, "idempotency key %s was used for a different request", *key)
	}
	return txn, nil
}

// settle applies the settlement of txn to the locked accounts and persists everything.
func (s *ledgerService) settle(ctx context.Context, tx portsrepo.Store, locked map[string]*domain.Account, txn domain.Transaction, now time.Time) error {
	if err := applyDeltas(locked, settlementDeltas(txn), now); err != nil {
		return err
	}
	if err := s.accounts.Persist(ctx, tx, locked); err != nil {
		return err
	}
	if err := tx.Transactions().SaveTransaction(ctx, txn); err != nil {
		return fmt.Errorf("failed to save transaction: %w", err)
	}
	_, err := s.journal.Project(ctx, tx, txn, now)
	return err
}

// posting describes an immediate operation.
type posting struct {
	op         domain.Operation
	event      domain.EventKind
	accountIDs []string
	debited    []string
	key        *string
	want       intent
	build      func(ctx context.Context, tx portsrepo.Store, locked map[string]*domain.Account, now time.Time) (domain.Transaction, error)
}

func (s *ledgerService) post(ctx context.Context, actor domain.Actor, p posting) (*domain.Transaction, error) {
	accounts, err := s.preload(ctx, actor, p.op, p.accountIDs...)
	if err != nil {
		return nil, err
	}
	if err := s.requireOwnership(ctx, actor, p.op, accounts, p.debited...); err != nil {
		return nil, err
	}
	tenantID := accounts[p.accountIDs[0]].TenantID
	if existing, err := s.replay(ctx, actor, p.op, tenantID, p.key, p.want); err != nil || existing != nil {
		if err != nil {
			s.recordFailure(ctx, actor, p.op, tenantID, "", err)
		}
		return existing, err
	}

	var result domain.Transaction
	err = s.runner.run(ctx, p.op.Name, func(ctx context.Context, tx portsrepo.Store) error {
		locked, err := s.accounts.LockForUpdate(ctx, tx, p.accountIDs)
		if err != nil {
			return err
		}
		now := s.now()
		txn, err := p.build(ctx, tx, locked, now)
		if err != nil {
			return err
		}
		if err := s.settle(ctx, tx, locked, txn, now); err != nil {
			return err
		}
		result = txn
		return s.record(ctx, tx, actor, p.op, p.event, txn, nil)
	})
	if err != nil {
		return s.failed(ctx, actor, p.op, tenantID, p.key, p.want, err)
	}
	s.LogInfo(ctx, "Transaction posted",
		slog.String("transaction_id", result.TransactionID),
		slog.String("type", string(result.Type)))
	return &result, nil
}

// failed turns a lost idempotency race into a replay and audits everything else.
func (s *ledgerService) failed(ctx context.Context, actor domain.Actor, op domain.Operation, tenantID string, key *string, want intent, err error) (*domain.Transaction, error) {
	if key != nil && errors.Is(err, apperrors.ErrDuplicate) {
		existing, lookupErr := s.replay(ctx, actor, op, tenantID, key, want)
		if lookupErr == nil && existing != nil {
			return existing, nil
		}
		if lookupErr != nil {
			err = lookupErr
		}
	}
	s.recordFailure(ctx, actor, op, tenantID, "", err)
	return nil, err
}

func (s *ledgerService) buildTransfer(actor domain.Actor, from, to *domain.Account, amount decimal.Decimal, description string, key *string, now time.Time) (domain.Transaction, error) {
	if from.CurrencyCode != to.CurrencyCode {
		return domain.Transaction{}, apperrors.Newf(apperrors.InvalidCurrency, "transfer between %s and %s accounts", from.CurrencyCode, to.CurrencyCode)
	}
	if err := money.ValidateAmount(amount, from.CurrencyCode); err != nil {
		return domain.Transaction{}, err
	}
	txn := s.newTransaction(actor, domain.TxTransfer, from.TenantID, key, description, now)
	txn.FromAccountID = strPtr(from.AccountID)
	txn.ToAccountID = strPtr(to.AccountID)
	txn.SourceAmount = amount
	txn.SourceCurrency = from.CurrencyCode
	txn.ConvertedAmount = amount
	txn.TargetCurrency = to.CurrencyCode
	txn.Total = amount
	completed(&txn, actor.UserID, now)
	return txn, nil
}

func validateCommission(commission decimal.Decimal, currency domain.CurrencyCode) error {
	if commission.IsNegative() {
		return apperrors.New(apperrors.InvalidRequest, "commission cannot be negative")
	}
	if !money.IsRepresentable(commission, currency) {
		return apperrors.Newf(apperrors.InvalidRequest, "commission %s has more than %d decimals for %s", commission, currency.MinorUnitExp(), currency)
	}
	return nil
}

// price loads the rate snapshot for a conversion and computes the converted amount.
func (s *ledgerService) price(ctx context.Context, txn *domain.Transaction) error {
	rate, err := s.rates.GetRate(ctx, txn.SourceCurrency, txn.TargetCurrency, txn.TenantID, time.Time{})
	if err != nil {
		return err
	}
	converted, err := money.Convert(txn.SourceAmount, txn.SourceCurrency, txn.TargetCurrency, rate)
	if err != nil {
		return err
	}
	if !converted.IsPositive() {
		return apperrors.Newf(apperrors.InvalidRequest, "%s %s converts to nothing in %s", txn.SourceAmount, txn.SourceCurrency, txn.TargetCurrency)
	}
	txn.Rate = rate
	txn.ConvertedAmount = converted
	txn.Total = txn.SourceAmount.Add(txn.Commission)
	return nil
}

func (s *ledgerService) buildExchange(ctx context.Context, actor domain.Actor, from, to *domain.Account, amount, commission decimal.Decimal, description string, key *string, now time.Time) (domain.Transaction, error) {
	if from.CurrencyCode == to.CurrencyCode {
		return domain.Transaction{}, apperrors.Newf(apperrors.InvalidCurrency, "exchange needs two currencies, both accounts hold %s", from.CurrencyCode)
	}
	if err := money.ValidateAmount(amount, from.CurrencyCode); err != nil {
		return domain.Transaction{}, err
	}
	if err := validateCommission(commission, from.CurrencyCode); err != nil {
		return domain.Transaction{}, err
	}
	txn := s.newTransaction(actor, domain.TxExchange, from.TenantID, key, description, now)
	txn.FromAccountID = strPtr(from.AccountID)
	txn.ToAccountID = strPtr(to.AccountID)
	txn.SourceAmount = amount
	txn.SourceCurrency = from.CurrencyCode
	txn.TargetCurrency = to.CurrencyCode
	txn.Commission = commission
	if err := s.price(ctx, &txn); err != nil {
		return domain.Transaction{}, err
	}
	completed(&txn, actor.UserID, now)
	return txn, nil
}

func (s *ledgerService) Transfer(ctx context.Context, actor domain.Actor, req dto.TransferRequest) (*domain.Transaction, error) {
	if err := dto.Validate(req); err != nil {
		return nil, err
	}
	return s.post(ctx, actor, posting{
		op:         domain.OpTransfer,
		want:       intent{txType: domain.TxTransfer, accounts: []string{req.FromAccountID, req.ToAccountID}, amount: req.Amount},
		event:      domain.EventTransferCompleted,
		accountIDs: []string{req.FromAccountID, req.ToAccountID},
		debited:    []string{req.FromAccountID},
		key:        req.IdempotencyKey,
		build: func(_ context.Context, _ portsrepo.Store, locked map[string]*domain.Account, now time.Time) (domain.Transaction, error) {
			return s.buildTransfer(actor, locked[req.FromAccountID], locked[req.ToAccountID], req.Amount, req.Description, req.IdempotencyKey, now)
		},
	})
}

func (s *ledgerService) Exchange(ctx context.Context, actor domain.Actor, req dto.ExchangeRequest) (*domain.Transaction, error) {
	if err := dto.Validate(req); err != nil {
		return nil, err
	}
	return s.post(ctx, actor, posting{
		op:         domain.OpExchange,
		want:       intent{txType: domain.TxExchange, accounts: []string{req.FromAccountID, req.ToAccountID}, amount: req.Amount},
		event:      domain.EventExchangeCompleted,
		accountIDs: []string{req.FromAccountID, req.ToAccountID},
		debited:    []string{req.FromAccountID},
		key:        req.IdempotencyKey,
		build: func(ctx context.Context, _ portsrepo.Store, locked map[string]*domain.Account, now time.Time) (domain.Transaction, error) {
			return s.buildExchange(ctx, actor, locked[req.FromAccountID], locked[req.ToAccountID], req.Amount, req.Commission, req.Description, req.IdempotencyKey, now)
		},
	})
}

func (s *ledgerService) PostFee(ctx context.Context, actor domain.Actor, req dto.PostFeeRequest) (*domain.Transaction, error) {
	if err := dto.Validate(req); err != nil {
		return nil, err
	}
	return s.post(ctx, actor, posting{
		op:         domain.OpPostFee,
		want:       intent{txType: domain.TxFee, accounts: []string{req.AccountID}, amount: req.Amount},
		event:      domain.EventFeePosted,
		accountIDs: []string{req.AccountID},
		key:        req.IdempotencyKey,
		build: func(_ context.Context, _ portsrepo.Store, locked map[string]*domain.Account, now time.Time) (domain.Transaction, error) {
			account := locked[req.AccountID]
			if err := money.ValidateAmount(req.Amount, account.CurrencyCode); err != nil {
				return domain.Transaction{}, err
			}
			txn := s.newTransaction(actor, domain.TxFee, account.TenantID, req.IdempotencyKey, req.Description, now)
			txn.FromAccountID = strPtr(account.AccountID)
			txn.SourceAmount = req.Amount
			txn.SourceCurrency = account.CurrencyCode
			txn.ConvertedAmount = req.Amount
			txn.TargetCurrency = account.CurrencyCode
			txn.Total = req.Amount
			completed(&txn, actor.UserID, now)
			return txn, nil
		},
	})
}

func (s *ledgerService) PostAdjustment(ctx context.Context, actor domain.Actor, req dto.PostAdjustmentRequest) (*domain.Transaction, error) {
	if err := dto.Validate(req); err != nil {
		return nil, err
	}
	return s.post(ctx, actor, posting{
		op:         domain.OpPostAdjustment,
		want:       intent{txType: domain.TxAdjustment, accounts: []string{req.AccountID}, amount: req.Amount},
		event:      domain.EventAdjustmentPosted,
		accountIDs: []string{req.AccountID},
		key:        req.IdempotencyKey,
		build: func(_ context.Context, _ portsrepo.Store, locked map[string]*domain.Account, now time.Time) (domain.Transaction, error) {
			account := locked[req.AccountID]
			if err := money.ValidateAmount(req.Amount, account.CurrencyCode); err != nil {
				return domain.Transaction{}, err
			}
			direction := req.Direction
			txn := s.newTransaction(actor, domain.TxAdjustment, account.TenantID, req.IdempotencyKey, req.Description, now)
			if direction == domain.AdjustmentWithdrawal {
				txn.FromAccountID = strPtr(account.AccountID)
			} else {
				txn.ToAccountID = strPtr(account.AccountID)
			}
			txn.Direction = &direction
			txn.SourceAmount = req.Amount
			txn.SourceCurrency = account.CurrencyCode
			txn.ConvertedAmount = req.Amount
			txn.TargetCurrency = account.CurrencyCode
			txn.Total = req.Amount
			completed(&txn, actor.UserID, now)
			return txn, nil
		},
	})
}

func (s *ledgerService) PostRefund(ctx context.Context, actor domain.Actor, req dto.PostRefundRequest) (*domain.Transaction, error) {
	if err := dto.Validate(req); err != nil {
		return nil, err
	}
	return s.post(ctx, actor, posting{
		op:         domain.OpPostRefund,
		want:       intent{txType: domain.TxRefund, accounts: []string{req.AccountID}, amount: req.Amount},
		event:      domain.EventRefundPosted,
		accountIDs: []string{req.AccountID},
		key:        req.IdempotencyKey,
		build: func(ctx context.Context, tx portsrepo.Store, locked map[string]*domain.Account, now time.Time) (domain.Transaction, error) {
			account := locked[req.AccountID]
			if err := money.ValidateAmount(req.Amount, account.CurrencyCode); err != nil {
				return domain.Transaction{}, err
			}
			description := req.Description
			if req.OriginalTransactionID != nil {
				original, err := tx.Transactions().FindTransactionByID(ctx, *req.OriginalTransactionID)
				if err != nil || original.TenantID != account.TenantID {
					if err == nil || errors.Is(err, apperrors.ErrNotFound) {
						return domain.Transaction{}, apperrors.Newf(apperrors.NotFound, "transaction %s not found", *req.OriginalTransactionID)
					}
					return domain.Transaction{}, fmt.Errorf("failed to load refunded transaction: %w", err)
				}
				if original.Status != domain.StatusCompleted {
					return domain.Transaction{}, apperrors.Newf(apperrors.InvalidStateTransition, "transaction %s is %s and cannot be refunded", original.TransactionID, original.Status)
				}
				description = fmt.Sprintf("%s (refund of %s)", req.Description, original.TransactionID)
			}
			txn := s.newTransaction(actor, domain.TxRefund, account.TenantID, req.IdempotencyKey, description, now)
			txn.ToAccountID = strPtr(account.AccountID)
			txn.SourceAmount = req.Amount
			txn.SourceCurrency = account.CurrencyCode
			txn.ConvertedAmount = req.Amount
			txn.TargetCurrency = account.CurrencyCode
			txn.Total = req.Amount
			completed(&txn, actor.UserID, now)
			return txn, nil
		},
	})
}

func batchItemKey(key *string, index int) *string {
	if key == nil || *key == "" {
		return nil
	}
	return strPtr(fmt.Sprintf("%s#%d", *key, index))
}

func minAccountID(item dto.BatchItem) string {
	if item.FromAccountID < item.ToAccountID {
		return item.FromAccountID
	}
	return item.ToAccountID
}

// ExecuteBatch runs every item in one unit of work, ordered by the smallest
// account id of each item. Either every item commits or none does.
func (s *ledgerService) ExecuteBatch(ctx context.Context, actor domain.Actor, req dto.BatchRequest) ([]domain.Transaction, error) {
	if err := dto.Validate(req); err != nil {
		return nil, err
	}
	ids := make([]string, 0, 2*len(req.Items))
	for _, item := range req.Items {
		ids = append(ids, item.FromAccountID, item.ToAccountID)
	}
	accounts, err := s.preload(ctx, actor, domain.OpBatch, ids...)
	if err != nil {
		return nil, err
	}
	debited := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		debited = append(debited, item.FromAccountID)
	}
	if err := s.requireOwnership(ctx, actor, domain.OpBatch, accounts, debited...); err != nil {
		return nil, err
	}

	order := make([]int, len(req.Items))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return minAccountID(req.Items[order[a]]) < minAccountID(req.Items[order[b]])
	})
	tenantID := accounts[req.Items[order[0]].FromAccountID].TenantID

	if replayed, err := s.replayBatch(ctx, actor, req, accounts, order); err != nil || replayed != nil {
		if err != nil {
			s.recordFailure(ctx, actor, domain.OpBatch, tenantID, "", err)
		}
		return replayed, err
	}

	var results []domain.Transaction
	err = s.runner.run(ctx, domain.OpBatch.Name, func(ctx context.Context, tx portsrepo.Store) error {
		locked, err := s.accounts.LockForUpdate(ctx, tx, ids)
		if err != nil {
			return err
		}
		now := s.now()
		committed := make([]domain.Transaction, 0, len(order))
		for _, i := range order {
			item := req.Items[i]
			key := batchItemKey(req.IdempotencyKey, i)
			from, to := locked[item.FromAccountID], locked[item.ToAccountID]
			var txn domain.Transaction
			if item.Type == domain.TxExchange {
				txn, err = s.buildExchange(ctx, actor, from, to, item.Amount, item.Commission, item.Description, key, now)
			} else {
				txn, err = s.buildTransfer(actor, from, to, item.Amount, item.Description, key, now)
			}
			if err != nil {
				return fmt.Errorf("batch item %d: %w", i, err)
			}
			if err := applyDeltas(locked, settlementDeltas(txn), now); err != nil {
				return fmt.Errorf("batch item %d: %w", i, err)
			}
			if err := tx.Transactions().SaveTransaction(ctx, txn); err != nil {
				return fmt.Errorf("failed to save batch item %d: %w", i, err)
			}
			if _, err := s.journal.Project(ctx, tx, txn, now); err != nil {
				return fmt.Errorf("batch item %d: %w", i, err)
			}
			committed = append(committed, txn)
		}
		if err := s.accounts.Persist(ctx, tx, locked); err != nil {
			return err
		}

		txnIDs := make([]string, len(committed))
		for i, txn := range committed {
			txnIDs[i] = txn.TransactionID
		}
		_, err = s.audit.AppendInTx(ctx, tx, portssvc.AuditRecord{
			Kind:         domain.EventBatchCompleted,
			Severity:     domain.SeverityHigh,
			Actor:        &actor,
			TenantID:     strPtr(tenantID),
			Action:       domain.OpBatch.Name,
			ResourceKind: "batch",
			ResourceID:   committed[0].TransactionID,
			Details:      map[string]any{"count": len(committed), "transactionIDs": txnIDs},
		})
		if err != nil {
			return err
		}
		results = committed
		return nil
	})
	if err != nil {
		if req.IdempotencyKey != nil && errors.Is(err, apperrors.ErrDuplicate) {
			replayed, lookupErr := s.replayBatch(ctx, actor, req, accounts, order)
			if lookupErr == nil && replayed != nil {
				return replayed, nil
			}
			if lookupErr != nil {
				err = lookupErr
			}
		}
		s.recordFailure(ctx, actor, domain.OpBatch, tenantID, "", err)
		return nil, err
	}
	s.LogInfo(ctx, "Batch committed", slog.Int("items", len(results)))
	return results, nil
}

// replayBatch returns the earlier result of a batch whose first item is already recorded.
func (s *ledgerService) replayBatch(ctx context.Context, actor domain.Actor, req dto.BatchRequest, accounts map[string]domain.Account, order []int) ([]domain.Transaction, error) {
	if req.IdempotencyKey == nil || *req.IdempotencyKey == "" {
		return nil, nil
	}
	var out []domain.Transaction
	for _, i := range order {
		item := req.Items[i]
		want := intent{txType: domain.TxTransfer, accounts: []string{item.FromAccountID, item.ToAccountID}, amount: item.Amount}
		if item.Type == domain.TxExchange {
			want.txType = domain.TxExchange
		}
		tenantID := accounts[item.FromAccountID].TenantID
		txn, err := s.replay(ctx, actor, domain.OpBatch, tenantID, batchItemKey(req.IdempotencyKey, i), want)
		if err != nil {
			return nil, err
		}
		if txn == nil {
			if len(out) == 0 {
				return nil, nil
			}
			return nil, apperrors.Newf(apperrors.Internal, "batch %s was only partially recorded", *req.IdempotencyKey)
		}
		out = append(out, *txn)
	}
	return out, nil
}

// CreateStagedTransaction opens a buy, sell or remittance in pending state.
// Sells and remittances freeze amount plus commission on the account.
func (s *ledgerService) CreateStagedTransaction(ctx context.Context, actor domain.Actor, req dto.CreateTradeRequest) (*domain.Transaction, error) {
	if err := dto.Validate(req); err != nil {
		return nil, err
	}
	accounts, err := s.preload(ctx, actor, domain.OpStagedTrade, req.AccountID)
	if err != nil {
		return nil, err
	}
	tenantID := accounts[req.AccountID].TenantID
	want := intent{txType: req.Type, accounts: []string{req.AccountID}, amount: req.Amount}
	if existing, err := s.replay(ctx, actor, domain.OpStagedTrade, tenantID, req.IdempotencyKey, want); err != nil || existing != nil {
		if err != nil {
			s.recordFailure(ctx, actor, domain.OpStagedTrade, tenantID, "", err)
		}
		return existing, err
	}

	var result domain.Transaction
	err = s.runner.run(ctx, domain.OpStagedTrade.Name, func(ctx context.Context, tx portsrepo.Store) error {
		locked, err := s.accounts.LockForUpdate(ctx, tx, []string{req.AccountID})
		if err != nil {
			return err
		}
		account := locked[req.AccountID]
		if account.Status != domain.AccountActive {
			return apperrors.Newf(apperrors.AccountSuspended, "account %s is %s", account.AccountID, account.Status)
		}
		if !req.CounterCurrency.IsValid() {
			return apperrors.Newf(apperrors.InvalidCurrency, "unsupported currency %q", req.CounterCurrency)
		}
		if req.Type != domain.TxRemittance && req.CounterCurrency == account.CurrencyCode {
			return apperrors.Newf(apperrors.InvalidCurrency, "%s needs a counter currency other than %s", req.Type, account.CurrencyCode)
		}

		now := s.now()
		txn := s.newTransaction(actor, req.Type, account.TenantID, req.IdempotencyKey, req.Description, now)
		if req.Type == domain.TxBuy {
			txn.ToAccountID = strPtr(account.AccountID)
			txn.SourceCurrency, txn.TargetCurrency = req.CounterCurrency, account.CurrencyCode
		} else {
			txn.FromAccountID = strPtr(account.AccountID)
			txn.SourceCurrency, txn.TargetCurrency = account.CurrencyCode, req.CounterCurrency
		}
		if err := money.ValidateAmount(req.Amount, txn.SourceCurrency); err != nil {
			return err
		}
		if err := validateCommission(req.Commission, txn.SourceCurrency); err != nil {
			return err
		}
		txn.SourceAmount = req.Amount
		txn.Commission = req.Commission
		if err := s.price(ctx, &txn); err != nil {
			return err
		}
		txn.Remaining = txn.Total
		txn.StatusHistory = []domain.StatusChange{{To: domain.StatusPending, ActorID: actor.UserID, Reason: "opened", ChangedAt: now}}

		if txn.FromAccountID != nil {
			if err := account.ApplyDelta(txn.Total, domain.DeltaFreeze, now); err != nil {
				return err
			}
			account.LastUpdatedAt = now
			if err := s.accounts.Persist(ctx, tx, locked); err != nil {
				return err
			}
		}
		if err := tx.Transactions().SaveTransaction(ctx, txn); err != nil {
			return fmt.Errorf("failed to save transaction: %w", err)
		}
		result = txn
		return s.record(ctx, tx, actor, domain.OpStagedTrade, domain.EventTransactionCreated, txn, nil)
	})
	if err != nil {
		return s.failed(ctx, actor, domain.OpStagedTrade, tenantID, req.IdempotencyKey, want, err)
	}
	return &result, nil
}

// loadTransaction reads a transaction and checks the actor may act on it.
// Customers must own one of its accounts.
func (s *ledgerService) loadTransaction(ctx context.Context, actor domain.Actor, op domain.Operation, transactionID string) (*domain.Transaction, error) {
	txn, err := s.store.Transactions().FindTransactionByID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			if actor.IsSuper() {
				return nil, apperrors.Newf(apperrors.NotFound, "transaction %s not found", transactionID)
			}
			return nil, s.authz.Deny(ctx, actor, op, "transaction", transactionID, "unknown transaction")
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	if err := s.authz.Authorize(ctx, actor, op, txn.TenantID); err != nil {
		return nil, err
	}
	if actor.Role == domain.RoleCustomer {
		ids := []string{derefOr(txn.FromAccountID, ""), derefOr(txn.ToAccountID, "")}
		accounts, err := s.store.Accounts().FindAccountsByIDs(ctx, sortedUnique(ids))
		if err != nil {
			return nil, fmt.Errorf("failed to load accounts: %w", err)
		}
		for _, a := range accounts {
			if a.OwnerID == actor.UserID {
				return txn, nil
			}
		}
		return nil, s.authz.Deny(ctx, actor, op, "transaction", transactionID, "transaction of another user")
	}
	return txn, nil
}

// mutation is a state change of an existing transaction at a caller-supplied version.
type mutation struct {
	op              domain.Operation
	transactionID   string
	expectedVersion int64
	apply           func(ctx context.Context, tx portsrepo.Store, txn *domain.Transaction, now time.Time) (domain.EventKind, map[string]any, error)
}

func (s *ledgerService) mutateTransaction(ctx context.Context, actor domain.Actor, m mutation) (*domain.Transaction, error) {
	loaded, err := s.loadTransaction(ctx, actor, m.op, m.transactionID)
	if err != nil {
		return nil, err
	}

	var result domain.Transaction
	err = s.runner.run(ctx, m.op.Name, func(ctx context.Context, tx portsrepo.Store) error {
		txn, err := tx.Transactions().FindTransactionByID(ctx, m.transactionID)
		if err != nil {
			return fmt.Errorf("failed to reload transaction: %w", err)
		}
		if txn.Version != m.expectedVersion {
			return apperrors.Newf(apperrors.VersionConflict, "transaction %s is at version %d, not %d", txn.TransactionID, txn.Version, m.expectedVersion)
		}
		now := s.now()
		event, extra, err := m.apply(ctx, tx, txn, now)
		if err != nil {
			return err
		}
		if err := tx.Transactions().UpdateTransaction(ctx, *txn, m.expectedVersion); err != nil {
			return fmt.Errorf("failed to update transaction: %w", err)
		}
		result = *txn
		return s.record(ctx, tx, actor, m.op, event, *txn, extra)
	})
	if err != nil {
		s.recordFailure(ctx, actor, m.op, loaded.TenantID, m.transactionID, err)
		return nil, err
	}
	s.LogInfo(ctx, "Transaction updated",
		slog.String("transaction_id", result.TransactionID),
		slog.String("status", string(result.Status)),
		slog.Int64("version", result.Version))
	return &result, nil
}

func requireStaged(txn *domain.Transaction) error {
	if !txn.Type.IsStaged() {
		return apperrors.Newf(apperrors.InvalidStateTransition, "%s transactions have no payment stages", txn.Type)
	}
	return nil
}

func (s *ledgerService) AddPayment(ctx context.Context, actor domain.Actor, transactionID string, req dto.AddPaymentRequest) (*domain.Transaction, error) {
	if err := dto.Validate(req); err != nil {
		return nil, err
	}
	return s.mutateTransaction(ctx, actor, mutation{
		op:              domain.OpPayment,
		transactionID:   transactionID,
		expectedVersion: req.ExpectedVersion,
		apply: func(ctx context.Context, tx portsrepo.Store, txn *domain.Transaction, now time.Time) (domain.EventKind, map[string]any, error) {
			if err := requireStaged(txn); err != nil {
				return "", nil, err
			}
			if err := money.ValidateAmount(req.Amount, txn.SourceCurrency); err != nil {
				return "", nil, err
			}
			if err := txn.Transition(domain.StatusPartial, actor.UserID, "payment added", now); err != nil {
				return "", nil, err
			}
			if err := txn.RecordPayment(req.Amount); err != nil {
				return "", nil, err
			}
			direction := domain.PaymentOutbound
			if txn.Type == domain.TxBuy {
				direction = domain.PaymentInbound
			}
			leg := domain.PaymentLeg{
				LegID:         uuid.NewString(),
				TransactionID: txn.TransactionID,
				TenantID:      txn.TenantID,
				Direction:     direction,
				Amount:        req.Amount,
				Currency:      txn.SourceCurrency,
				Method:        req.Method,
				ProofRefs:     req.ProofRefs,
				AuditFields: domain.AuditFields{
					CreatedAt:     now,
					CreatedBy:     actor.UserID,
					LastUpdatedAt: now,
					LastUpdatedBy: actor.UserID,
				},
			}
			if err := tx.Transactions().SavePaymentLeg(ctx, leg); err != nil {
				return "", nil, fmt.Errorf("failed to save payment leg: %w", err)
			}
			return domain.EventPaymentAdded, map[string]any{"legID": leg.LegID, "amount": req.Amount.String(), "method": req.Method}, nil
		},
	})
}

// VerifyPayment marks a leg verified. Once every leg is verified and the total
// is paid, the trade settles and its journal is projected.
func (s *ledgerService) VerifyPayment(ctx context.Context, actor domain.Actor, transactionID string, req dto.VerifyPaymentRequest) (*domain.Transaction, error) {
	if err := dto.Validate(req); err != nil {
		return nil, err
	}
	return s.mutateTransaction(ctx, actor, mutation{
		op:              domain.OpPayment,
		transactionID:   transactionID,
		expectedVersion: req.ExpectedVersion,
		apply: func(ctx context.Context, tx portsrepo.Store, txn *domain.Transaction, now time.Time) (domain.EventKind, map[string]any, error) {
			if err := requireStaged(txn); err != nil {
				return "", nil, err
			}
			legs, err := tx.Transactions().ListPaymentLegs(ctx, txn.TransactionID)
			if err != nil {
				return "", nil, fmt.Errorf("failed to load payment legs: %w", err)
			}
			var leg *domain.PaymentLeg
			allVerified := true
			for i := range legs {
				if legs[i].LegID == req.LegID {
					leg = &legs[i]
					continue
				}
				allVerified = allVerified && legs[i].Verified
			}
			if leg == nil {
				return "", nil, apperrors.Newf(apperrors.NotFound, "payment leg %s not found", req.LegID)
			}
			if leg.Verified {
				return "", nil, apperrors.Newf(apperrors.InvalidStateTransition, "payment leg %s is already verified", req.LegID)
			}
			leg.Verified = true
			leg.VerifiedBy = strPtr(actor.UserID)
			leg.VerifiedAt = &now
			leg.LastUpdatedAt = now
			leg.LastUpdatedBy = actor.UserID
			if err := tx.Transactions().UpdatePaymentLeg(ctx, *leg); err != nil {
				return "", nil, fmt.Errorf("failed to update payment leg: %w", err)
			}

			if !allVerified || !txn.Paid.Equal(txn.Total) {
				if err := txn.Transition(domain.StatusPartial, actor.UserID, "payment verified", now); err != nil {
					return "", nil, err
				}
				return domain.EventPaymentVerified, map[string]any{"legID": leg.LegID}, nil
			}

			deltas := settlementDeltas(*txn)
			locked, err := s.accounts.LockForUpdate(ctx, tx, deltaAccountIDs(deltas))
			if err != nil {
				return "", nil, err
			}
			if err := applyDeltas(locked, deltas, now); err != nil {
				return "", nil, err
			}
			if err := s.accounts.Persist(ctx, tx, locked); err != nil {
				return "", nil, err
			}
			if err := txn.Transition(domain.StatusCompleted, actor.UserID, "all payments verified", now); err != nil {
				return "", nil, err
			}
			if _, err := s.journal.Project(ctx, tx, *txn, now); err != nil {
				return "", nil, err
			}
			event := domain.EventTradeCompleted
			if txn.Type == domain.TxRemittance {
				event = domain.EventRemittanceCompleted
			}
			return event, map[string]any{"legID": leg.LegID}, nil
		},
	})
}

func (s *ledgerService) CancelTransaction(ctx context.Context, actor domain.Actor, transactionID string, req dto.TransitionRequest) (*domain.Transaction, error) {
	return s.abandon(ctx, actor, transactionID, req, domain.StatusCancelled, domain.EventTransactionCancelled)
}

func (s *ledgerService) FailTransaction(ctx context.Context, actor domain.Actor, transactionID string, req dto.TransitionRequest) (*domain.Transaction, error) {
	return s.abandon(ctx, actor, transactionID, req, domain.StatusFailed, domain.EventTransactionFailed)
}

// abandon moves a staged transaction to cancelled or failed and releases its hold.
func (s *ledgerService) abandon(ctx context.Context, actor domain.Actor, transactionID string, req dto.TransitionRequest, target domain.TransactionStatus, event domain.EventKind) (*domain.Transaction, error) {
	if err := dto.Validate(req); err != nil {
		return nil, err
	}
	return s.mutateTransaction(ctx, actor, mutation{
		op:              domain.OpStagedTrade,
		transactionID:   transactionID,
		expectedVersion: req.ExpectedVersion,
		apply: func(ctx context.Context, tx portsrepo.Store, txn *domain.Transaction, now time.Time) (domain.EventKind, map[string]any, error) {
			if err := txn.Transition(target, actor.UserID, req.Reason, now); err != nil {
				return "", nil, err
			}
			if txn.Type.IsStaged() && txn.FromAccountID != nil {
				locked, err := s.accounts.LockForUpdate(ctx, tx, []string{*txn.FromAccountID})
				if err != nil {
					return "", nil, err
				}
				if err := locked[*txn.FromAccountID].ApplyDelta(txn.Total, domain.DeltaUnfreeze, now); err != nil {
					return "", nil, err
				}
				if err := s.accounts.Persist(ctx, tx, locked); err != nil {
					return "", nil, err
				}
			}
			return event, map[string]any{"reason": req.Reason}, nil
		},
	})
}

// Rollback reverses a completed transaction: inverse balance deltas, reversing
// journal entries and status rolled-back.
func (s *ledgerService) Rollback(ctx context.Context, actor domain.Actor, transactionID string, req dto.TransitionRequest) (*domain.Transaction, error) {
	if err := dto.Validate(req); err != nil {
		return nil, err
	}
	return s.mutateTransaction(ctx, actor, mutation{
		op:              domain.OpRollback,
		transactionID:   transactionID,
		expectedVersion: req.ExpectedVersion,
		apply: func(ctx context.Context, tx portsrepo.Store, txn *domain.Transaction, now time.Time) (domain.EventKind, map[string]any, error) {
			if txn.Status != domain.StatusCompleted {
				return "", nil, apperrors.Newf(apperrors.InvalidStateTransition, "transaction %s is %s, only completed transactions roll back", txn.TransactionID, txn.Status)
			}
			deltas := settlementDeltas(*txn)
			locked, err := s.accounts.LockForUpdate(ctx, tx, deltaAccountIDs(deltas))
			if err != nil {
				return "", nil, err
			}
			if err := reverseDeltas(locked, deltas, txn.SettledAt(), now); err != nil {
				return "", nil, err
			}
			if err := s.accounts.Persist(ctx, tx, locked); err != nil {
				return "", nil, err
			}
			if err := txn.Transition(domain.StatusRolledBack, actor.UserID, req.Reason, now); err != nil {
				return "", nil, err
			}
			if _, err := s.journal.Reverse(ctx, tx, *txn, now); err != nil {
				return "", nil, err
			}
			return domain.EventTransactionRolledBack, map[string]any{"reason": req.Reason}, nil
		},
	})
}

func (s *ledgerService) GetTransaction(ctx context.Context, actor domain.Actor, transactionID string) (*domain.Transaction, error) {
	return s.loadTransaction(ctx, actor, domain.OpReadTransaction, transactionID)
}

func (s *ledgerService) ListPaymentLegs(ctx context.Context, actor domain.Actor, transactionID string) ([]domain.PaymentLeg, error) {
	if _, err := s.loadTransaction(ctx, actor, domain.OpReadTransaction, transactionID); err != nil {
		return nil, err
	}
	legs, err := s.store.Transactions().ListPaymentLegs(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment legs: %w", err)
	}
	return legs, nil
}

func (s *ledgerService) ListTransactions(ctx context.Context, actor domain.Actor, params dto.ListTransactionsParams) ([]domain.Transaction, *string, error) {
	if err := dto.Validate(params); err != nil {
		return nil, nil, err
	}
	filter := portsrepo.TransactionFilter{
		Status:    params.Status,
		Type:      params.Type,
		AccountID: params.AccountID,
		From:      params.From,
		To:        params.To,
		Page:      domain.Page{Limit: pagination.NormalizeLimit(params.Limit), NextToken: params.NextToken},
	}

	if actor.Role == domain.RoleCustomer {
		if params.AccountID == nil {
			return nil, nil, s.authz.Deny(ctx, actor, domain.OpReadTransaction, "transaction", "", "customers list transactions per owned account")
		}
		accounts, err := s.preload(ctx, actor, domain.OpReadTransaction, *params.AccountID)
		if err != nil {
			return nil, nil, err
		}
		if err := s.requireOwnership(ctx, actor, domain.OpReadTransaction, accounts, *params.AccountID); err != nil {
			return nil, nil, err
		}
	}

	if params.TenantID != "" {
		if err := s.authz.Authorize(ctx, actor, domain.OpReadTransaction, params.TenantID); err != nil {
			return nil, nil, err
		}
		filter.TenantIDs = []string{params.TenantID}
	} else {
		if err := s.authz.Authorize(ctx, actor, domain.OpReadTransaction); err != nil {
			return nil, nil, err
		}
		visible, err := s.authz.AccessibleTenants(ctx, actor, domain.ActionRead)
		if err != nil {
			return nil, nil, err
		}
		if visible != nil && len(visible) == 0 {
			return []domain.Transaction{}, nil, nil
		}
		filter.TenantIDs = visible
	}

	txns, next, err := s.store.Transactions().ListTransactions(ctx, filter)
	if err != nil {
		s.LogError(ctx, err, "Failed to list transactions")
		return nil, nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txns, next, nil
}
