package accounting

import (
	"testing"
	"time"

	"github.com/SscSPs/fx_ledger/internal/core/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func entry(code string, class domain.AccountClass, debit, credit string, cur domain.CurrencyCode) domain.JournalEntry {
	return domain.JournalEntry{AccountCode: code, AccountClass: class, Debit: dec(debit), Credit: dec(credit), Currency: cur}
}

func TestCalculateSignedAmount(t *testing.T) {
	tests := []struct {
		name  string
		entry domain.JournalEntry
		want  string
	}{
		{"debit asset", entry("CASH_USD", domain.Asset, "10", "0", domain.USD), "10"},
		{"credit asset", entry("CASH_USD", domain.Asset, "0", "10", domain.USD), "-10"},
		{"debit liability", entry("TRANSFER_FROM_A", domain.Liability, "10", "0", domain.USD), "-10"},
		{"credit revenue", entry("FEE_REVENUE_USD", domain.Revenue, "0", "3", domain.USD), "3"},
		{"debit expense", entry("FEE_EXPENSE_REFUND", domain.Expense, "4", "0", domain.USD), "4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalculateSignedAmount(tt.entry)
			require.NoError(t, err)
			assert.True(t, got.Equal(dec(tt.want)), "got %s", got)
		})
	}

	_, err := CalculateSignedAmount(entry("X", domain.AccountClass("BOGUS"), "1", "0", domain.USD))
	assert.Error(t, err)
}

func TestValidateBalance(t *testing.T) {
	t.Run("balanced per currency", func(t *testing.T) {
		err := ValidateBalance([]domain.JournalEntry{
			entry("EXCHANGE_FROM_X", domain.Liability, "100", "0", domain.USD),
			entry("INVENTORY_USD", domain.Equity, "0", "100", domain.USD),
			entry("INVENTORY_EUR", domain.Equity, "90", "0", domain.EUR),
			entry("EXCHANGE_TO_Y", domain.Liability, "0", "90", domain.EUR),
		})
		assert.NoError(t, err)
	})

	t.Run("cross currency totals do not offset", func(t *testing.T) {
		err := ValidateBalance([]domain.JournalEntry{
			entry("EXCHANGE_FROM_X", domain.Liability, "100", "0", domain.USD),
			entry("EXCHANGE_TO_Y", domain.Liability, "0", "100", domain.EUR),
		})
		assert.Error(t, err)
	})

	t.Run("one ulp is tolerated, two are not", func(t *testing.T) {
		assert.NoError(t, ValidateBalance([]domain.JournalEntry{
			entry("A", domain.Liability, "10.00", "0", domain.USD),
			entry("B", domain.Liability, "0", "10.01", domain.USD),
		}))
		assert.Error(t, ValidateBalance([]domain.JournalEntry{
			entry("A", domain.Liability, "10.00", "0", domain.USD),
			entry("B", domain.Liability, "0", "10.02", domain.USD),
		}))
	})

	t.Run("entry with both sides", func(t *testing.T) {
		assert.Error(t, ValidateBalance([]domain.JournalEntry{
			entry("A", domain.Liability, "1", "1", domain.USD),
			entry("B", domain.Liability, "0", "0", domain.USD),
		}))
	})

	t.Run("single entry", func(t *testing.T) {
		assert.Error(t, ValidateBalance([]domain.JournalEntry{entry("A", domain.Asset, "1", "0", domain.USD)}))
	})
}

func TestBuildTrialBalance(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := []domain.TrialBalanceRow{
		{Currency: domain.USD, AccountClass: domain.Asset, Debit: dec("1000"), Credit: dec("0")},
		{Currency: domain.USD, AccountClass: domain.Liability, Debit: dec("250"), Credit: dec("1250")},
		{Currency: domain.EUR, AccountClass: domain.Equity, Debit: dec("90"), Credit: dec("0")},
		{Currency: domain.EUR, AccountClass: domain.Liability, Debit: dec("0"), Credit: dec("90")},
	}

	tb, err := BuildTrialBalance("t1", rows, now)
	require.NoError(t, err)
	assert.True(t, tb.Balanced)
	require.Len(t, tb.Currencies, 2)
	assert.Equal(t, domain.EUR, tb.Currencies[0].Currency)
	assert.True(t, tb.Currencies[1].DebitSide.Equal(dec("1000")))
	assert.True(t, tb.Currencies[1].CreditSide.Equal(dec("1000")))

	rows = append(rows, domain.TrialBalanceRow{Currency: domain.USD, AccountClass: domain.Revenue, Debit: dec("0"), Credit: dec("5")})
	tb, err = BuildTrialBalance("t1", rows, now)
	require.NoError(t, err)
	assert.False(t, tb.Balanced)
}
