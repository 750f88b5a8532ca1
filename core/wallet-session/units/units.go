// Package units converts between the chain's smallest unit (wei) and
// human-readable decimal amounts.
package units

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// EtherDecimals is the number of decimals of the native currency
const EtherDecimals = 18

var (
	ErrEmptyAmount   = errors.New("amount is empty")
	ErrInvalidAmount = errors.New("amount is not a decimal number")
	ErrTooPrecise    = errors.New("amount has too many decimal places")
)

// ParseEther converts a decimal ether amount into wei
func ParseEther(amount string) (*big.Int, error) {
	return ParseUnits(amount, EtherDecimals)
}

// FormatEther converts wei into a decimal ether amount
func FormatEther(wei *big.Int) string {
	return FormatUnits(wei, EtherDecimals)
}

// ParseUnits converts a decimal string with the given number of decimals into
// its smallest-unit integer value.
func ParseUnits(amount string, decimals int) (*big.Int, error) {
	s := strings.TrimSpace(amount)
	if s == "" {
		return nil, ErrEmptyAmount
	}

	negative := false
	if strings.HasPrefix(s, "-") {
		negative = true
		s = s[1:]
	}

	whole, frac, hasDot := strings.Cut(s, ".")
	if strings.Contains(frac, ".") || (whole == "" && frac == "") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	if !isDigits(whole) || !isDigits(frac) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	if hasDot && whole == "" {
		whole = "0"
	}
	if len(frac) > decimals {
		return nil, fmt.Errorf("%w: %q (max %d)", ErrTooPrecise, amount, decimals)
	}

	frac += strings.Repeat("0", decimals-len(frac))
	value, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	if negative {
		value.Neg(value)
	}
	return value, nil
}

// FormatUnits renders a smallest-unit value as a decimal string, trimming
// trailing zeros but keeping at least one fractional digit.
func FormatUnits(value *big.Int, decimals int) string {
	if value == nil {
		return "0.0"
	}

	digits := new(big.Int).Abs(value).String()
	if len(digits) <= decimals {
		digits = strings.Repeat("0", decimals-len(digits)+1) + digits
	}

	whole := digits[:len(digits)-decimals]
	frac := strings.TrimRight(digits[len(digits)-decimals:], "0")
	if frac == "" {
		frac = "0"
	}

	sign := ""
	if value.Sign() < 0 {
		sign = "-"
	}
	return sign + whole + "." + frac
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
