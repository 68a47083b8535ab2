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
	"github.com/SscSPs/fx_ledger/internal/utils/accounting"
	"github.com/SscSPs/fx_ledger/internal/utils/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Canonical account code prefixes. Customer balances are liabilities of the
// tenant; currency positions are equity; cash is the tenant's asset.
const (
	codeTransferFrom   = "TRANSFER_FROM_"
	codeTransferTo     = "TRANSFER_TO_"
	codeExchangeFrom   = "EXCHANGE_FROM_"
	codeExchangeTo     = "EXCHANGE_TO_"
	codeBuyTo          = "BUY_TO_"
	codeSellFrom       = "SELL_FROM_"
	codeRemitFrom      = "REMIT_FROM_"
	codeFeeFrom        = "FEE_FROM_"
	codeRefundTo       = "REFUND_TO_"
	codeAdjustmentTo   = "ADJUSTMENT_TO_"
	codeAdjustmentFrom = "ADJUSTMENT_FROM_"
	codeInventory      = "INVENTORY_"
	codeFeeRevenue     = "FEE_REVENUE_"
	codeCash           = "CASH_"
	codeRefundExpense  = "FEE_EXPENSE_REFUND"
)

type journalService struct {
	BaseService
	store portsrepo.UnitOfWorkStore
	authz portssvc.AuthorizationSvc
	audit portssvc.AuditWriterSvc
}

// NewJournalService creates the journal projector.
func NewJournalService(store portsrepo.UnitOfWorkStore, authz portssvc.AuthorizationSvc, audit portssvc.AuditWriterSvc) portssvc.JournalSvcFacade {
	return &journalService{store: store, authz: authz, audit: audit}
}

var _ portssvc.JournalSvcFacade = (*journalService)(nil)

// entryBuilder accumulates the lines of one transaction, skipping zero amounts.
type entryBuilder struct {
	txn     domain.Transaction
	at      time.Time
	entries []domain.JournalEntry
}

func (b *entryBuilder) line(code string, class domain.AccountClass, currency domain.CurrencyCode, amount decimal.Decimal, debit bool) {
	if !amount.IsPositive() {
		return
	}
	e := domain.JournalEntry{
		EntryID:       uuid.NewString(),
		TenantID:      b.txn.TenantID,
		TransactionID: b.txn.TransactionID,
		AccountCode:   code,
		AccountClass:  class,
		Debit:         decimal.Zero,
		Credit:        decimal.Zero,
		Currency:      currency,
		Description:   b.txn.Description,
		CreatedAt:     b.at,
	}
	if debit {
		e.Debit = amount
	} else {
		e.Credit = amount
	}
	b.entries = append(b.entries, e)
}

func (b *entryBuilder) debit(code string, class domain.AccountClass, currency domain.CurrencyCode, amount decimal.Decimal) {
	b.line(code, class, currency, amount, true)
}

func (b *entryBuilder) credit(code string, class domain.AccountClass, currency domain.CurrencyCode, amount decimal.Decimal) {
	b.line(code, class, currency, amount, false)
}

// conversion books the currency position for value leaving in the source
// currency and arriving in the target currency.
func (b *entryBuilder) conversion() {
	t := b.txn
	b.credit(codeInventory+string(t.SourceCurrency), domain.Equity, t.SourceCurrency, t.SourceAmount)
	b.credit(codeFeeRevenue+string(t.SourceCurrency), domain.Revenue, t.SourceCurrency, t.Commission)
	b.debit(codeInventory+string(t.TargetCurrency), domain.Equity, t.TargetCurrency, t.ConvertedAmount)
}

func (s *journalService) Derive(txn domain.Transaction, at time.Time) ([]domain.JournalEntry, error) {
	b := &entryBuilder{txn: txn, at: at}
	from, to := derefOr(txn.FromAccountID, ""), derefOr(txn.ToAccountID, "")

	switch txn.Type {
	case domain.TxTransfer:
		b.debit(codeTransferFrom+from, domain.Liability, txn.SourceCurrency, txn.SourceAmount)
		b.credit(codeTransferTo+to, domain.Liability, txn.TargetCurrency, txn.ConvertedAmount)
	case domain.TxExchange:
		b.debit(codeExchangeFrom+from, domain.Liability, txn.SourceCurrency, txn.Total)
		b.conversion()
		b.credit(codeExchangeTo+to, domain.Liability, txn.TargetCurrency, txn.ConvertedAmount)
	case domain.TxBuy:
		b.debit(codeCash+string(txn.SourceCurrency), domain.Asset, txn.SourceCurrency, txn.Total)
		b.conversion()
		b.credit(codeBuyTo+to, domain.Liability, txn.TargetCurrency, txn.ConvertedAmount)
	case domain.TxSell, domain.TxRemittance:
		prefix := codeSellFrom
		if txn.Type == domain.TxRemittance {
			prefix = codeRemitFrom
		}
		b.debit(prefix+from, domain.Liability, txn.SourceCurrency, txn.Total)
		b.conversion()
		b.credit(codeCash+string(txn.TargetCurrency), domain.Asset, txn.TargetCurrency, txn.ConvertedAmount)
	case domain.TxFee:
		b.debit(codeFeeFrom+from, domain.Liability, txn.SourceCurrency, txn.Total)
		b.credit(codeFeeRevenue+string(txn.SourceCurrency), domain.Revenue, txn.SourceCurrency, txn.Total)
	case domain.TxRefund:
		b.debit(codeRefundExpense, domain.Expense, txn.TargetCurrency, txn.ConvertedAmount)
		b.credit(codeRefundTo+to, domain.Liability, txn.TargetCurrency, txn.ConvertedAmount)
	case domain.TxAdjustment:
		if txn.Direction != nil && *txn.Direction == domain.AdjustmentWithdrawal {
			b.debit(codeAdjustmentFrom+from, domain.Liability, txn.SourceCurrency, txn.Total)
			b.credit(codeCash+string(txn.SourceCurrency), domain.Asset, txn.SourceCurrency, txn.Total)
		} else {
			b.debit(codeCash+string(txn.TargetCurrency), domain.Asset, txn.TargetCurrency, txn.ConvertedAmount)
			b.credit(codeAdjustmentTo+to, domain.Liability, txn.TargetCurrency, txn.ConvertedAmount)
		}
	default:
		return nil, apperrors.Newf(apperrors.InvalidRequest, "no journal mapping for transaction type %q", txn.Type)
	}

	if err := accounting.ValidateBalance(b.entries); err != nil {
		return nil, apperrors.Wrap(apperrors.JournalImbalance, err, "transaction "+txn.TransactionID)
	}
	return b.entries, nil
}

func (s *journalService) Project(ctx context.Context, tx portsrepo.Store, txn domain.Transaction, at time.Time) ([]domain.JournalEntry, error) {
	entries, err := s.Derive(txn, at)
	if err != nil {
		return nil, err
	}
	if err := tx.Journal().SaveEntries(ctx, entries); err != nil {
		return nil, fmt.Errorf("failed to save journal entries: %w", err)
	}
	return entries, nil
}

// reversalOf swaps the sides of every original entry.
func reversalOf(original []domain.JournalEntry, txn domain.Transaction, at time.Time) []domain.JournalEntry {
	out := make([]domain.JournalEntry, 0, len(original))
	for _, e := range original {
		if e.IsReversal() {
			continue
		}
		r := e
		r.EntryID = uuid.NewString()
		r.Debit, r.Credit = e.Credit, e.Debit
		r.ReversalOf = strPtr(txn.TransactionID)
		r.Description = "reversal: " + e.Description
		r.CreatedAt = at
		out = append(out, r)
	}
	return out
}

func (s *journalService) Reverse(ctx context.Context, tx portsrepo.Store, txn domain.Transaction, at time.Time) ([]domain.JournalEntry, error) {
	stored, err := tx.Journal().FindEntriesByTransactionID(ctx, txn.TransactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load journal entries: %w", err)
	}
	reversal := reversalOf(stored, txn, at)
	if len(reversal) == 0 {
		return nil, apperrors.Newf(apperrors.JournalImbalance, "transaction %s has no entries to reverse", txn.TransactionID)
	}
	if err := accounting.ValidateBalance(reversal); err != nil {
		return nil, apperrors.Wrap(apperrors.JournalImbalance, err, "reversal of "+txn.TransactionID)
	}
	if err := tx.Journal().SaveEntries(ctx, reversal); err != nil {
		return nil, fmt.Errorf("failed to save reversal entries: %w", err)
	}
	return reversal, nil
}

func (s *journalService) loadTransaction(ctx context.Context, actor domain.Actor, op domain.Operation, transactionID string) (*domain.Transaction, error) {
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
	return txn, nil
}

func (s *journalService) GetEntries(ctx context.Context, actor domain.Actor, transactionID string) ([]domain.JournalEntry, error) {
	if _, err := s.loadTransaction(ctx, actor, domain.OpReadJournal, transactionID); err != nil {
		return nil, err
	}
	entries, err := s.store.Journal().FindEntriesByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load journal entries: %w", err)
	}
	return entries, nil
}

func (s *journalService) TrialBalance(ctx context.Context, actor domain.Actor, tenantID string) (*domain.TrialBalance, error) {
	if err := s.authz.Authorize(ctx, actor, domain.OpReadJournal, tenantID); err != nil {
		return nil, err
	}
	rows, err := s.store.Journal().SumEntriesByClass(ctx, tenantID)
	if err != nil {
		s.LogError(ctx, err, "Failed to sum journal entries", slog.String("tenant_id", tenantID))
		return nil, fmt.Errorf("failed to sum journal entries: %w", err)
	}
	tb, err := accounting.BuildTrialBalance(tenantID, rows, s.now())
	if err != nil {
		return nil, apperrors.Wrap(apperrors.JournalImbalance, err, "building trial balance")
	}
	if !tb.Balanced {
		s.GetLogger(ctx).Error("Trial balance does not balance", slog.String("tenant_id", tenantID))
	}
	return &tb, nil
}

// entryKey identifies an entry for multiset comparison, ignoring ids and timestamps.
func entryKey(e domain.JournalEntry) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s|%t", e.AccountCode, e.AccountClass, e.Currency, e.Debit.String(), e.Credit.String(), e.IsReversal())
}

func compareEntries(expected, stored []domain.JournalEntry) []string {
	counts := make(map[string]int)
	for _, e := range expected {
		counts[entryKey(e)]++
	}
	for _, e := range stored {
		counts[entryKey(e)]--
	}
	var mismatches []string
	for key, n := range counts {
		switch {
		case n > 0:
			mismatches = append(mismatches, fmt.Sprintf("missing %d x %s", n, key))
		case n < 0:
			mismatches = append(mismatches, fmt.Sprintf("unexpected %d x %s", -n, key))
		}
	}
	sort.Strings(mismatches)
	return mismatches
}

// expectedEntries re-derives what the journal of txn should hold.
func (s *journalService) expectedEntries(txn domain.Transaction, at time.Time) ([]domain.JournalEntry, error) {
	switch txn.Status {
	case domain.StatusCompleted:
		return s.Derive(txn, at)
	case domain.StatusRolledBack:
		forward, err := s.Derive(txn, at)
		if err != nil {
			return nil, err
		}
		return append(forward, reversalOf(forward, txn, at)...), nil
	default:
		return nil, nil
	}
}

func (s *journalService) RebuildJournal(ctx context.Context, actor domain.Actor, tenantID, transactionID string) (*dto.RebuildJournalResult, error) {
	if err := s.authz.Authorize(ctx, actor, domain.OpRebuildJournal, tenantID); err != nil {
		return nil, err
	}

	var txns []domain.Transaction
	if transactionID != "" {
		txn, err := s.store.Transactions().FindTransactionByID(ctx, transactionID)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return nil, apperrors.Newf(apperrors.NotFound, "transaction %s not found", transactionID)
			}
			return nil, fmt.Errorf("failed to get transaction: %w", err)
		}
		if txn.TenantID != tenantID {
			return nil, apperrors.Newf(apperrors.NotFound, "transaction %s not found in tenant %s", transactionID, tenantID)
		}
		txns = append(txns, *txn)
	} else {
		filter := portsrepo.TransactionFilter{TenantIDs: []string{tenantID}, Page: domain.Page{Limit: pagination.MaxLimit}}
		for {
			page, next, err := s.store.Transactions().ListTransactions(ctx, filter)
			if err != nil {
				return nil, fmt.Errorf("failed to list transactions: %w", err)
			}
			txns = append(txns, page...)
			if next == nil {
				break
			}
			filter.Page.NextToken = next
		}
	}

	result := &dto.RebuildJournalResult{TenantID: tenantID, TransactionID: transactionID, Balanced: true, Entries: []domain.JournalEntry{}}
	now := s.now()
	for _, txn := range txns {
		expected, err := s.expectedEntries(txn, now)
		if err != nil {
			result.Balanced = false
			result.Mismatches = append(result.Mismatches, txn.TransactionID+": "+err.Error())
			continue
		}
		stored, err := s.store.Journal().FindEntriesByTransactionID(ctx, txn.TransactionID)
		if err != nil {
			return nil, fmt.Errorf("failed to load journal entries: %w", err)
		}
		result.Expected += len(expected)
		result.Stored += len(stored)

		if len(stored) == 0 && len(expected) > 0 {
			if err := s.repair(ctx, actor, txn, expected); err != nil {
				return nil, err
			}
			result.Written += len(expected)
			result.Entries = append(result.Entries, expected...)
			continue
		}
		if len(stored) > 0 {
			if err := accounting.ValidateBalance(stored); err != nil {
				result.Balanced = false
			}
		}
		for _, m := range compareEntries(expected, stored) {
			result.Mismatches = append(result.Mismatches, txn.TransactionID+": "+m)
		}
	}

	s.LogInfo(ctx, "Journal rebuilt",
		slog.String("tenant_id", tenantID),
		slog.Int("transactions", len(txns)),
		slog.Int("written", result.Written),
		slog.Int("mismatches", len(result.Mismatches)))
	return result, nil
}

// repair writes the derived entries of a transaction whose journal is missing.
func (s *journalService) repair(ctx context.Context, actor domain.Actor, txn domain.Transaction, entries []domain.JournalEntry) error {
	return withinTx(ctx, s.store, func(ctx context.Context, tx portsrepo.Store) error {
		existing, err := tx.Journal().FindEntriesByTransactionID(ctx, txn.TransactionID)
		if err != nil {
			return fmt.Errorf("failed to load journal entries: %w", err)
		}
		if len(existing) > 0 {
			return apperrors.Newf(apperrors.Conflict, "journal of %s was written concurrently", txn.TransactionID)
		}
		if err := tx.Journal().SaveEntries(ctx, entries); err != nil {
			return fmt.Errorf("failed to save journal entries: %w", err)
		}
		_, err = s.audit.AppendInTx(ctx, tx, portssvc.AuditRecord{
			Kind:         domain.EventJournalRebuilt,
			Severity:     domain.SeverityHigh,
			Actor:        &actor,
			TenantID:     strPtr(txn.TenantID),
			Action:       domain.OpRebuildJournal.Name,
			ResourceKind: "transaction",
			ResourceID:   txn.TransactionID,
			Details:      map[string]any{"entries": len(entries)},
		})
		return err
	})
}
