// Package validator holds declarative request-shape validation applied
// before any lock or store interaction.
package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

var (
	ErrInvalidAmountString = errors.New("amount must be a decimal with at most 18 integer and 18 fractional digits")
	ErrInvalidType         = errors.New("type must be one of: debit, credit")
	ErrInvalidInteger      = errors.New("must be a positive integer")
)

// amountRegex bounds inbound amounts: non-negative, up to 18 integer digits
// and up to 18 fractional digits.
var amountRegex = regexp.MustCompile(`^[0-9]{1,18}(\.[0-9]{1,18})?$`)

// ValidateAmountString checks the wire form of a transaction amount.
func ValidateAmountString(s string) error {
	if !amountRegex.MatchString(s) {
		return fmt.Errorf("%w: got %q", ErrInvalidAmountString, s)
	}
	return nil
}

// ValidateTransactionType checks the wire form of a transaction type.
func ValidateTransactionType(s string) error {
	if s != "debit" && s != "credit" {
		return fmt.Errorf("%w: got %q", ErrInvalidType, s)
	}
	return nil
}

// ParsePositiveInt parses a query/path parameter that must be an integer of
// at least min. An empty string yields the fallback value.
func ParsePositiveInt(s string, min, fallback int) (int, error) {
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < min {
		return 0, fmt.Errorf("%w: got %q", ErrInvalidInteger, s)
	}
	return n, nil
}
