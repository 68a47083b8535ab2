package money_test

import (
	"testing"

	"github.com/SscSPs/fx_ledger/internal/apperrors"
	"github.com/SscSPs/fx_ledger/internal/core/domain"
	"github.com/SscSPs/fx_ledger/internal/utils/money"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestRound_BankersRounding(t *testing.T) {
	tests := []struct {
		in       string
		currency domain.CurrencyCode
		want     string
	}{
		{"2.345", domain.USD, "2.34"},
		{"2.355", domain.USD, "2.36"},
		{"2.3451", domain.USD, "2.35"},
		{"-2.345", domain.USD, "-2.34"},
		{"12.5", domain.JPY, "12"},
		{"13.5", domain.JPY, "14"},
		{"0.123456785", domain.BTC, "0.12345678"},
		{"1.0005", domain.KWD, "1"},
	}
	for _, tt := range tests {
		t.Run(tt.in+string(tt.currency), func(t *testing.T) {
			got := money.Round(d(tt.in), tt.currency)
			assert.True(t, got.Equal(d(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

func TestPrecise_CapsSignificantDigits(t *testing.T) {
	in := d("1.23456789012345678901234567891234")
	got := money.Precise(in)
	assert.Equal(t, 28, len(got.Coefficient().String()))
	assert.True(t, got.Equal(d("1.234567890123456789012345679")))

	small := d("123.45")
	assert.True(t, money.Precise(small).Equal(small))
}

func TestConvert(t *testing.T) {
	t.Run("cross currency rounds to target minor unit", func(t *testing.T) {
		got, err := money.Convert(d("100"), domain.USD, domain.EUR, d("0.9"))
		require.NoError(t, err)
		assert.Equal(t, "90.00", money.Format(got, domain.EUR))

		got, err = money.Convert(d("10.01"), domain.USD, domain.JPY, d("151.255"))
		require.NoError(t, err)
		assert.True(t, got.Equal(d("1514")), "got %s", got)
	})

	t.Run("same currency is identity without rounding", func(t *testing.T) {
		got, err := money.Convert(d("1.005"), domain.USD, domain.USD, d("7"))
		require.NoError(t, err)
		assert.True(t, got.Equal(d("1.005")))
	})

	t.Run("unknown currency", func(t *testing.T) {
		_, err := money.Convert(d("1"), domain.CurrencyCode("XXX"), domain.USD, d("1"))
		assert.True(t, apperrors.Is(err, apperrors.InvalidCurrency))
	})

	t.Run("missing rate", func(t *testing.T) {
		_, err := money.Convert(d("1"), domain.USD, domain.EUR, decimal.Zero)
		assert.True(t, apperrors.Is(err, apperrors.RateUnavailable))
	})
}

func TestValidateAmount(t *testing.T) {
	assert.NoError(t, money.ValidateAmount(d("10.25"), domain.USD))
	assert.True(t, apperrors.Is(money.ValidateAmount(d("10.255"), domain.USD), apperrors.InvalidRequest))
	assert.True(t, apperrors.Is(money.ValidateAmount(d("0"), domain.USD), apperrors.InvalidRequest))
	assert.True(t, apperrors.Is(money.ValidateAmount(d("1.5"), domain.JPY), apperrors.InvalidRequest))
	assert.True(t, apperrors.Is(money.ValidateAmount(d("1"), domain.CurrencyCode("ZZZ")), apperrors.InvalidCurrency))
}

func TestWithinTolerance(t *testing.T) {
	assert.True(t, money.WithinTolerance(d("1.00"), d("1.01"), domain.USD))
	assert.False(t, money.WithinTolerance(d("1.00"), d("1.02"), domain.USD))
	assert.True(t, money.ULP(domain.JPY).Equal(d("1")))
}
