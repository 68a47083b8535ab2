// Package money holds the fixed-precision arithmetic shared by every amount
// the ledger touches: 28 significant digits, banker's rounding to minor units.
package money

import (
	"github.com/SscSPs/fx_ledger/internal/apperrors"
	"github.com/SscSPs/fx_ledger/internal/core/domain"
	"github.com/shopspring/decimal"
)

// SignificantDigits is the precision carried by intermediate results.
const SignificantDigits = 28

// Precise rounds d half-to-even so that it carries at most SignificantDigits significant digits.
func Precise(d decimal.Decimal) decimal.Decimal {
	if d.IsZero() {
		return d
	}
	digits := int32(len(d.Coefficient().Abs(d.Coefficient()).String()))
	if digits <= SignificantDigits {
		return d
	}
	// Digits after the point to keep: current scale minus the excess.
	keep := -d.Exponent() - (digits - SignificantDigits)
	return d.RoundBank(keep)
}

// Round rounds d half-to-even to the minor unit of currency.
func Round(d decimal.Decimal, currency domain.CurrencyCode) decimal.Decimal {
	return d.RoundBank(currency.MinorUnitExp())
}

// ULP is one unit of the currency's minor unit.
func ULP(currency domain.CurrencyCode) decimal.Decimal {
	return decimal.New(1, -currency.MinorUnitExp())
}

// IsRepresentable reports whether d has no digits below the currency's minor unit.
func IsRepresentable(d decimal.Decimal, currency domain.CurrencyCode) bool {
	return d.Equal(d.Truncate(currency.MinorUnitExp()))
}

// WithinTolerance reports whether |a - b| <= 1 ulp of currency.
func WithinTolerance(a, b decimal.Decimal, currency domain.CurrencyCode) bool {
	return a.Sub(b).Abs().LessThanOrEqual(ULP(currency))
}

// Convert returns amount * rate rounded to the target minor unit. Same-currency
// conversion uses rate 1 and returns amount unchanged.
func Convert(amount decimal.Decimal, from, to domain.CurrencyCode, rate decimal.Decimal) (decimal.Decimal, error) {
	if !from.IsValid() || !to.IsValid() {
		return decimal.Zero, apperrors.Newf(apperrors.InvalidCurrency, "unsupported currency pair %s/%s", from, to)
	}
	if from == to {
		return amount, nil
	}
	if !rate.IsPositive() {
		return decimal.Zero, apperrors.Newf(apperrors.RateUnavailable, "no usable rate for %s/%s", from, to)
	}
	return Round(Precise(amount.Mul(rate)), to), nil
}

// ValidateAmount checks that amount is positive and fits the currency's minor unit.
func ValidateAmount(amount decimal.Decimal, currency domain.CurrencyCode) error {
	if !currency.IsValid() {
		return apperrors.Newf(apperrors.InvalidCurrency, "unsupported currency %q", currency)
	}
	if !amount.IsPositive() {
		return apperrors.Newf(apperrors.InvalidRequest, "amount must be positive, got %s", amount)
	}
	if !IsRepresentable(amount, currency) {
		return apperrors.Newf(apperrors.InvalidRequest, "amount %s has more than %d decimals for %s", amount, currency.MinorUnitExp(), currency)
	}
	return nil
}

// Format renders d with exactly the currency's minor-unit digits.
func Format(d decimal.Decimal, currency domain.CurrencyCode) string {
	return Round(d, currency).StringFixedBank(currency.MinorUnitExp())
}
