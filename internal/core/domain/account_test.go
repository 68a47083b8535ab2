package domain_test

import (
	"testing"
	"time"

	"github.com/SscSPs/fx_ledger/internal/apperrors"
	"github.com/SscSPs/fx_ledger/internal/core/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func activeAccount(balance string) domain.Account {
	return domain.Account{
		AccountID:    "acc-1",
		CurrencyCode: domain.USD,
		Balance:      d(balance),
		Available:    d(balance),
		Frozen:       decimal.Zero,
		DailyUsed:    decimal.Zero,
		MonthlyUsed:  decimal.Zero,
		Status:       domain.AccountActive,
		LastResetAt:  time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestAccount_ApplyDelta_DailyLimitBoundary(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("exactly at daily limit is accepted", func(t *testing.T) {
		acc := activeAccount("1000")
		acc.DailyLimit = d("500")
		require.NoError(t, acc.ApplyDelta(d("500"), domain.DeltaDebit, now))
		assert.True(t, acc.DailyUsed.Equal(d("500")))
		assert.NoError(t, acc.CheckInvariants())
	})

	t.Run("one minor unit over daily limit is rejected", func(t *testing.T) {
		acc := activeAccount("1000")
		acc.DailyLimit = d("500")
		err := acc.ApplyDelta(d("500.01"), domain.DeltaDebit, now)
		assert.True(t, apperrors.Is(err, apperrors.DailyLimitExceeded))
		assert.True(t, acc.Balance.Equal(d("1000")))
		assert.True(t, acc.DailyUsed.IsZero())
	})

	t.Run("monthly limit applies after daily", func(t *testing.T) {
		acc := activeAccount("1000")
		acc.MonthlyLimit = d("100")
		acc.MonthlyUsed = d("90")
		err := acc.ApplyDelta(d("10.01"), domain.DeltaDebit, now)
		assert.True(t, apperrors.Is(err, apperrors.MonthlyLimitExceeded))
	})
}

func TestAccount_ApplyDelta_OverdraftBoundary(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("exactly at negative overdraft limit is accepted", func(t *testing.T) {
		acc := activeAccount("100")
		acc.Overdraft = domain.OverdraftPolicy{Enabled: true, Limit: d("50")}
		require.NoError(t, acc.ApplyDelta(d("150"), domain.DeltaDebit, now))
		assert.True(t, acc.Balance.Equal(d("-50")))
		assert.NoError(t, acc.CheckInvariants())
	})

	t.Run("one minor unit further is rejected", func(t *testing.T) {
		acc := activeAccount("100")
		acc.Overdraft = domain.OverdraftPolicy{Enabled: true, Limit: d("50")}
		err := acc.ApplyDelta(d("150.01"), domain.DeltaDebit, now)
		assert.True(t, apperrors.Is(err, apperrors.OverdraftLimitExceeded))
		assert.True(t, acc.Balance.Equal(d("100")))
	})

	t.Run("no overdraft rejects below available", func(t *testing.T) {
		acc := activeAccount("100")
		err := acc.ApplyDelta(d("100.01"), domain.DeltaDebit, now)
		assert.True(t, apperrors.Is(err, apperrors.InsufficientAvailable))
	})
}

func TestAccount_ApplyDelta_FreezeKeepsBalanceIdentity(t *testing.T) {
	now := time.Now()
	acc := activeAccount("100")

	require.NoError(t, acc.ApplyDelta(d("30"), domain.DeltaFreeze, now))
	assert.True(t, acc.Available.Equal(d("70")))
	assert.True(t, acc.Frozen.Equal(d("30")))
	assert.NoError(t, acc.CheckInvariants())

	err := acc.ApplyDelta(d("80"), domain.DeltaDebit, now)
	assert.True(t, apperrors.Is(err, apperrors.InsufficientAvailable))

	err = acc.ApplyDelta(d("31"), domain.DeltaUnfreeze, now)
	assert.True(t, apperrors.Is(err, apperrors.InsufficientAvailable))

	require.NoError(t, acc.ApplyDelta(d("30"), domain.DeltaUnfreeze, now))
	assert.True(t, acc.Available.Equal(d("100")))
	assert.NoError(t, acc.CheckInvariants())
}

func TestAccount_ApplyDelta_RejectsInactiveAndNonPositive(t *testing.T) {
	now := time.Now()
	acc := activeAccount("100")
	acc.Status = domain.AccountSuspended
	assert.True(t, apperrors.Is(acc.ApplyDelta(d("1"), domain.DeltaCredit, now), apperrors.AccountSuspended))

	acc.Status = domain.AccountActive
	assert.True(t, apperrors.Is(acc.ApplyDelta(d("0"), domain.DeltaCredit, now), apperrors.InvalidRequest))
	assert.True(t, apperrors.Is(acc.ApplyDelta(d("-1"), domain.DeltaCredit, now), apperrors.InvalidRequest))
}

func TestAccount_RolloverLimits(t *testing.T) {
	acc := activeAccount("100")
	acc.LastResetAt = time.Date(2025, 1, 31, 23, 0, 0, 0, time.UTC)
	acc.DailyUsed = d("10")
	acc.MonthlyUsed = d("200")

	acc.RolloverLimits(time.Date(2025, 1, 31, 23, 30, 0, 0, time.UTC))
	assert.True(t, acc.DailyUsed.Equal(d("10")), "same day keeps counters")

	acc.RolloverLimits(time.Date(2025, 2, 1, 0, 5, 0, 0, time.UTC))
	assert.True(t, acc.DailyUsed.IsZero())
	assert.True(t, acc.MonthlyUsed.IsZero())

	acc.DailyUsed = d("5")
	acc.MonthlyUsed = d("5")
	acc.RolloverLimits(time.Date(2025, 2, 2, 9, 0, 0, 0, time.UTC))
	assert.True(t, acc.DailyUsed.IsZero())
	assert.True(t, acc.MonthlyUsed.Equal(d("5")))
}

func TestAccount_ApplyReversal_OnlyGivesBackCurrentWindows(t *testing.T) {
	debitedAt := time.Date(2025, 3, 1, 23, 0, 0, 0, time.UTC)

	t.Run("next day, same month", func(t *testing.T) {
		acc := activeAccount("1000")
		require.NoError(t, acc.ApplyDelta(d("100"), domain.DeltaDebit, debitedAt))
		nextDay := time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)
		require.NoError(t, acc.ApplyDelta(d("30"), domain.DeltaDebit, nextDay))

		require.NoError(t, acc.ApplyReversal(d("100"), domain.DeltaDebit, debitedAt, nextDay))
		assert.True(t, acc.Balance.Equal(d("970")))
		assert.True(t, acc.DailyUsed.Equal(d("30")), "today's usage is untouched, got %s", acc.DailyUsed)
		assert.True(t, acc.MonthlyUsed.Equal(d("30")), "the month gives back the reversed debit, got %s", acc.MonthlyUsed)
	})

	t.Run("next month", func(t *testing.T) {
		acc := activeAccount("1000")
		require.NoError(t, acc.ApplyDelta(d("100"), domain.DeltaDebit, debitedAt))
		nextMonth := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
		require.NoError(t, acc.ApplyDelta(d("40"), domain.DeltaDebit, nextMonth))

		require.NoError(t, acc.ApplyReversal(d("100"), domain.DeltaDebit, debitedAt, nextMonth))
		assert.True(t, acc.Balance.Equal(d("960")))
		assert.True(t, acc.DailyUsed.Equal(d("40")))
		assert.True(t, acc.MonthlyUsed.Equal(d("40")))
	})
}

func TestAccount_ApplyReversal_RestoresBalances(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	acc := activeAccount("1000")
	acc.DailyLimit = d("1000")

	require.NoError(t, acc.ApplyDelta(d("250"), domain.DeltaDebit, now))
	require.NoError(t, acc.ApplyReversal(d("250"), domain.DeltaDebit, now, now))
	assert.True(t, acc.Balance.Equal(d("1000")))
	assert.True(t, acc.Available.Equal(d("1000")))
	assert.True(t, acc.DailyUsed.IsZero())

	require.NoError(t, acc.ApplyDelta(d("50"), domain.DeltaCredit, now))
	require.NoError(t, acc.ApplyReversal(d("50"), domain.DeltaCredit, now, now))
	assert.True(t, acc.Balance.Equal(d("1000")))
	assert.True(t, acc.DailyUsed.IsZero(), "reversed credits do not consume limits")
}
