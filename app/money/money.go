// Package money centralizes amount handling. All monetary values in the
// service are fixed-point decimals; nothing in this package or its callers
// ever converts an amount through a float.
package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidCurrency = errors.New("invalid currency code")
	ErrInvalidScale    = errors.New("amount exceeds currency scale")
	ErrNotPositive     = errors.New("amount must be positive")
)

// Exponent overrides for currencies whose minor unit is not 2.
var currencyExponents = map[string]int32{
	"BIF": 0, "CLP": 0, "DJF": 0, "GNF": 0, "ISK": 0, "JPY": 0,
	"KMF": 0, "KRW": 0, "PYG": 0, "RWF": 0, "UGX": 0, "VND": 0,
	"VUV": 0, "XAF": 0, "XOF": 0, "XPF": 0,
	"BHD": 3, "IQD": 3, "JOD": 3, "KWD": 3, "LYD": 3, "OMR": 3, "TND": 3,
}

// Exponent returns the canonical number of decimal places for a currency.
func Exponent(currency string) int32 {
	if exp, ok := currencyExponents[strings.ToUpper(currency)]; ok {
		return exp
	}
	return 2
}

// ValidateCurrency checks that the code is a three-letter alphabetic code.
func ValidateCurrency(currency string) error {
	if len(currency) != 3 {
		return ErrInvalidCurrency
	}
	for _, r := range currency {
		if r < 'A' || r > 'Z' {
			return ErrInvalidCurrency
		}
	}
	return nil
}

// ValidateAmount checks that amount is positive and representable at the
// currency's canonical scale.
func ValidateAmount(amount decimal.Decimal, currency string) error {
	if err := ValidateCurrency(currency); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return ErrNotPositive
	}
	if amount.Exponent() < -Exponent(currency) {
		// decimal keeps trailing zeros; re-check after normalization so
		// "10.00" is accepted for JPY-style inputs only when exact.
		if !amount.Equal(amount.Round(Exponent(currency))) {
			return ErrInvalidScale
		}
	}
	return nil
}

// Canonical rescales amount to the currency's canonical scale. Callers must
// validate first; Canonical never rounds away value for validated input.
func Canonical(amount decimal.Decimal, currency string) decimal.Decimal {
	return amount.Round(Exponent(currency))
}

// Parse parses a decimal string and validates it against the currency.
func Parse(raw, currency string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, err
	}
	if err := ValidateAmount(amount, currency); err != nil {
		return decimal.Zero, err
	}
	return Canonical(amount, currency), nil
}
