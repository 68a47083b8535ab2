package domain

import "strings"

// CurrencyCode identifies a currency from the closed set the ledger supports.
type CurrencyCode string

// CurrencyKind separates fiat from crypto assets.
type CurrencyKind string

const (
	Fiat   CurrencyKind = "FIAT"
	Crypto CurrencyKind = "CRYPTO"
)

// Currency represents a supported currency in the domain.
type Currency struct {
	Code         CurrencyCode `json:"code"`         // e.g., "USD"
	Name         string       `json:"name"`         // e.g., "US Dollar"
	Kind         CurrencyKind `json:"kind"`         // FIAT or CRYPTO
	MinorUnitExp int32        `json:"minorUnitExp"` // digits after the decimal point
}

const (
	USD  CurrencyCode = "USD"
	EUR  CurrencyCode = "EUR"
	GBP  CurrencyCode = "GBP"
	CHF  CurrencyCode = "CHF"
	JPY  CurrencyCode = "JPY"
	CAD  CurrencyCode = "CAD"
	AUD  CurrencyCode = "AUD"
	CNY  CurrencyCode = "CNY"
	INR  CurrencyCode = "INR"
	AED  CurrencyCode = "AED"
	TRY  CurrencyCode = "TRY"
	IRR  CurrencyCode = "IRR"
	KWD  CurrencyCode = "KWD"
	BTC  CurrencyCode = "BTC"
	ETH  CurrencyCode = "ETH"
	USDT CurrencyCode = "USDT"
	USDC CurrencyCode = "USDC"
)

var currencies = map[CurrencyCode]Currency{
	USD:  {Code: USD, Name: "US Dollar", Kind: Fiat, MinorUnitExp: 2},
	EUR:  {Code: EUR, Name: "Euro", Kind: Fiat, MinorUnitExp: 2},
	GBP:  {Code: GBP, Name: "Pound Sterling", Kind: Fiat, MinorUnitExp: 2},
	CHF:  {Code: CHF, Name: "Swiss Franc", Kind: Fiat, MinorUnitExp: 2},
	JPY:  {Code: JPY, Name: "Japanese Yen", Kind: Fiat, MinorUnitExp: 0},
	CAD:  {Code: CAD, Name: "Canadian Dollar", Kind: Fiat, MinorUnitExp: 2},
	AUD:  {Code: AUD, Name: "Australian Dollar", Kind: Fiat, MinorUnitExp: 2},
	CNY:  {Code: CNY, Name: "Yuan Renminbi", Kind: Fiat, MinorUnitExp: 2},
	INR:  {Code: INR, Name: "Indian Rupee", Kind: Fiat, MinorUnitExp: 2},
	AED:  {Code: AED, Name: "UAE Dirham", Kind: Fiat, MinorUnitExp: 2},
	TRY:  {Code: TRY, Name: "Turkish Lira", Kind: Fiat, MinorUnitExp: 2},
	IRR:  {Code: IRR, Name: "Iranian Rial", Kind: Fiat, MinorUnitExp: 0},
	KWD:  {Code: KWD, Name: "Kuwaiti Dinar", Kind: Fiat, MinorUnitExp: 3},
	BTC:  {Code: BTC, Name: "Bitcoin", Kind: Crypto, MinorUnitExp: 8},
	ETH:  {Code: ETH, Name: "Ether", Kind: Crypto, MinorUnitExp: 18},
	USDT: {Code: USDT, Name: "Tether", Kind: Crypto, MinorUnitExp: 6},
	USDC: {Code: USDC, Name: "USD Coin", Kind: Crypto, MinorUnitExp: 6},
}

// LookupCurrency returns the currency definition for code.
func LookupCurrency(code CurrencyCode) (Currency, bool) {
	c, ok := currencies[code]
	return c, ok
}

// ParseCurrencyCode normalizes s and checks it against the closed set.
func ParseCurrencyCode(s string) (CurrencyCode, bool) {
	code := CurrencyCode(strings.ToUpper(strings.TrimSpace(s)))
	_, ok := currencies[code]
	return code, ok
}

// IsValid reports whether the code belongs to the supported set.
func (c CurrencyCode) IsValid() bool {
	_, ok := currencies[c]
	return ok
}

// MinorUnitExp returns the minor-unit exponent, or 0 for unknown codes.
func (c CurrencyCode) MinorUnitExp() int32 {
	return currencies[c].MinorUnitExp
}

// SupportedCurrencies lists every currency of the closed set.
func SupportedCurrencies() []Currency {
	out := make([]Currency, 0, len(currencies))
	for _, c := range currencies {
		out = append(out, c)
	}
	return out
}
