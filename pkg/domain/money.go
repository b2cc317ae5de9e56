package domain

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Amount is a monetary value in minor units (cents). Amounts cross the wire
// as decimal numbers with two fractional digits and are compared exactly.
type Amount int64

// maxAmount keeps conversions away from float64 precision loss.
const maxAmount = Amount(1) << 50

// ErrSubCent rejects values finer than one minor unit.
var ErrSubCent = errors.New("amount has more than two decimal places")

// AmountFromFloat converts a decimal major-unit value to minor units. Values
// that do not land on a whole cent, such as 100.004, are rejected.
func AmountFromFloat(v float64) (Amount, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("amount is not a finite number")
	}
	if v < 0 {
		return 0, fmt.Errorf("amount must not be negative")
	}
	cents := v * 100
	rounded := math.Round(cents)
	if math.Abs(cents-rounded) > math.Max(1e-9, rounded*1e-13) {
		return 0, ErrSubCent
	}
	a := Amount(rounded)
	if a > maxAmount {
		return 0, fmt.Errorf("amount too large")
	}
	return a, nil
}

// ParseAmount parses a decimal string such as "9.99" exactly. Exponent
// notation goes through AmountFromFloat.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if strings.ContainsAny(s, "eE") {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid amount %q", s)
		}
		return AmountFromFloat(v)
	}
	if strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("amount must not be negative")
	}

	whole, frac, _ := strings.Cut(s, ".")
	if (whole == "" && frac == "") || !digits(whole) || !digits(frac) {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	frac = strings.TrimRight(frac, "0")
	if len(frac) > 2 {
		return 0, ErrSubCent
	}
	whole = strings.TrimLeft(whole, "0")
	if len(whole) > 16 {
		return 0, fmt.Errorf("amount too large")
	}

	var units int64
	if whole != "" {
		units, _ = strconv.ParseInt(whole, 10, 64)
	}
	var cents int64
	if frac != "" {
		cents, _ = strconv.ParseInt((frac + "0")[:2], 10, 64)
	}
	a := Amount(units*100 + cents)
	if a > maxAmount {
		return 0, fmt.Errorf("amount too large")
	}
	return a, nil
}

func digits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Float returns the amount in major units.
func (a Amount) Float() float64 { return float64(a) / 100 }

// String renders the amount with two fractional digits.
func (a Amount) String() string {
	sign := ""
	if a < 0 {
		sign, a = "-", -a
	}
	return fmt.Sprintf("%s%d.%02d", sign, int64(a)/100, int64(a)%100)
}

// MarshalJSON renders the amount as a JSON number in major units.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalJSON accepts a JSON number (or numeric string) in major units.
func (a *Amount) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	v, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Currency is an upper-case ISO-4217 code.
type Currency string

// ParseCurrency normalizes and validates a three-letter currency code.
func ParseCurrency(s string) (Currency, error) {
	c := strings.ToUpper(strings.TrimSpace(s))
	if len(c) != 3 {
		return "", fmt.Errorf("invalid currency %q", s)
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return "", fmt.Errorf("invalid currency %q", s)
		}
	}
	return Currency(c), nil
}

// Equal compares currencies case-insensitively.
func (c Currency) Equal(other Currency) bool {
	return strings.EqualFold(string(c), string(other))
}

func (c Currency) String() string { return string(c) }
