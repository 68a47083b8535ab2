package accounting

import (
	"fmt"
	"sort"
	"time"

	"github.com/SscSPs/fx_ledger/internal/core/domain"
	"github.com/SscSPs/fx_ledger/internal/utils/money"
	"github.com/shopspring/decimal"
)

// CalculateSignedAmount applies the normal-side sign of the entry's account class.
//
//	DEBIT to ASSET/EXPENSE -> Positive (+)
//	CREDIT to ASSET/EXPENSE -> Negative (-)
//	DEBIT to LIABILITY/EQUITY/REVENUE -> Negative (-)
//	CREDIT to LIABILITY/EQUITY/REVENUE -> Positive (+)
func CalculateSignedAmount(entry domain.JournalEntry) (decimal.Decimal, error) {
	net := entry.Debit.Sub(entry.Credit)
	switch entry.AccountClass {
	case domain.Asset, domain.Expense:
		return net, nil
	case domain.Liability, domain.Equity, domain.Revenue:
		return net.Neg(), nil
	default:
		return decimal.Zero, fmt.Errorf("unknown account class '%s' encountered for account code %s", entry.AccountClass, entry.AccountCode)
	}
}

// ValidateEntry checks that exactly one side of the entry is set and positive.
func ValidateEntry(entry domain.JournalEntry) error {
	debit, credit := entry.Debit.IsPositive(), entry.Credit.IsPositive()
	if debit == credit {
		return fmt.Errorf("entry for %s must carry exactly one positive side (debit %s, credit %s)", entry.AccountCode, entry.Debit, entry.Credit)
	}
	if entry.Debit.IsNegative() || entry.Credit.IsNegative() {
		return fmt.Errorf("entry for %s has a negative side", entry.AccountCode)
	}
	if !entry.Currency.IsValid() {
		return fmt.Errorf("entry for %s has unsupported currency %q", entry.AccountCode, entry.Currency)
	}
	return nil
}

// CurrencyTotals is the sum of both sides for one currency.
type CurrencyTotals struct {
	Debits  decimal.Decimal
	Credits decimal.Decimal
}

// SumByCurrency totals debits and credits per currency.
func SumByCurrency(entries []domain.JournalEntry) map[domain.CurrencyCode]CurrencyTotals {
	totals := make(map[domain.CurrencyCode]CurrencyTotals)
	for _, e := range entries {
		t := totals[e.Currency]
		t.Debits = t.Debits.Add(e.Debit)
		t.Credits = t.Credits.Add(e.Credit)
		totals[e.Currency] = t
	}
	return totals
}

// ValidateBalance checks that debits equal credits per currency within one ulp
// of that currency's minor unit.
func ValidateBalance(entries []domain.JournalEntry) error {
	if len(entries) < 2 {
		return fmt.Errorf("a journal must have at least two entries")
	}
	for _, e := range entries {
		if err := ValidateEntry(e); err != nil {
			return err
		}
	}
	for currency, t := range SumByCurrency(entries) {
		if !money.WithinTolerance(t.Debits, t.Credits, currency) {
			return fmt.Errorf("entries do not balance in %s: debits %s, credits %s", currency, t.Debits, t.Credits)
		}
	}
	return nil
}

// BuildTrialBalance folds class totals into the per-currency identity
// (assets + expenses) = (liabilities + equity + revenue).
func BuildTrialBalance(tenantID string, rows []domain.TrialBalanceRow, now time.Time) (domain.TrialBalance, error) {
	byCurrency := make(map[domain.CurrencyCode]*domain.CurrencyTrialBalance)
	for _, row := range rows {
		ctb, ok := byCurrency[row.Currency]
		if !ok {
			ctb = &domain.CurrencyTrialBalance{
				Currency: row.Currency,
				Classes:  make(map[domain.AccountClass]decimal.Decimal),
			}
			byCurrency[row.Currency] = ctb
		}
		signed, err := CalculateSignedAmount(domain.JournalEntry{
			AccountClass: row.AccountClass, AccountCode: string(row.AccountClass), Debit: row.Debit, Credit: row.Credit,
		})
		if err != nil {
			return domain.TrialBalance{}, err
		}
		ctb.Classes[row.AccountClass] = ctb.Classes[row.AccountClass].Add(signed)
		if row.AccountClass.IsDebitNormal() {
			ctb.DebitSide = ctb.DebitSide.Add(signed)
		} else {
			ctb.CreditSide = ctb.CreditSide.Add(signed)
		}
	}

	tb := domain.TrialBalance{TenantID: tenantID, GeneratedAt: now, Balanced: true}
	for _, ctb := range byCurrency {
		ctb.Difference = ctb.DebitSide.Sub(ctb.CreditSide)
		ctb.Balanced = money.WithinTolerance(ctb.DebitSide, ctb.CreditSide, ctb.Currency)
		if !ctb.Balanced {
			tb.Balanced = false
		}
		tb.Currencies = append(tb.Currencies, *ctb)
	}
	sort.Slice(tb.Currencies, func(i, j int) bool { return tb.Currencies[i].Currency < tb.Currencies[j].Currency })
	return tb, nil
}
