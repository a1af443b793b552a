// Package money handles the two-decimal amounts used for penalties.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Places is the number of fractional digits kept for every amount.
const Places = 2

// ErrInvalidAmount is returned when a user-supplied amount cannot be parsed,
// is negative or exceeds Max.
var ErrInvalidAmount = errors.New("invalid amount")

// Max is the largest amount a NUMERIC(12,2) column holds.
var Max = decimal.New(999999999999, -Places)

// Parse reads an amount as typed by a user: "5", "2,50", "2.50 €", "€3".
// A comma is accepted as decimal separator. The result is rounded to two
// places and must not be negative.
func Parse(s string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(s)
	cleaned = strings.Trim(cleaned, "€ ")
	cleaned = strings.TrimSpace(strings.TrimSuffix(strings.ToUpper(cleaned), "EUR"))
	cleaned = strings.ReplaceAll(cleaned, ",", ".")
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return Normalize(d)
}

// Normalize rounds d to two places and rejects negative values and values
// above Max.
func Normalize(d decimal.Decimal) (decimal.Decimal, error) {
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %s is negative", ErrInvalidAmount, d.String())
	}
	d = d.Round(Places)
	if d.GreaterThan(Max) {
		return decimal.Zero, fmt.Errorf("%w: %s exceeds %s", ErrInvalidAmount, d.String(), Max.StringFixed(Places))
	}
	return d, nil
}

// Format renders d with two decimals followed by the currency symbol,
// e.g. "5.00 €". An empty currency omits the suffix.
func Format(d decimal.Decimal, currency string) string {
	s := d.StringFixed(Places)
	if currency == "" {
		return s
	}
	return s + " " + currency
}

// ToCents converts d to an integer number of cents.
func ToCents(d decimal.Decimal) int64 {
	return d.Shift(Places).Round(0).IntPart()
}

// FromCents converts an integer number of cents back to a decimal amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -Places)
}
