package validator_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/DmitryOnishchenko/accounting-notebook/pkg/validator"
)

func TestValidateAmountString(t *testing.T) {
	valid := []string{
		"0",
		"100",
		"100.25",
		"0.000000000000000001",
		"999999999999999999.999999999999999999",
	}
	for _, s := range valid {
		if err := validator.ValidateAmountString(s); err != nil {
			t.Errorf("ValidateAmountString(%q) = %v, want nil", s, err)
		}
	}

	invalid := []string{
		"",
		"-5",
		"+5",
		"1,5",
		"abc",
		".5",
		"5.",
		"1e3",
		strings.Repeat("9", 19),
		"1." + strings.Repeat("9", 19),
	}
	for _, s := range invalid {
		if err := validator.ValidateAmountString(s); !errors.Is(err, validator.ErrInvalidAmountString) {
			t.Errorf("ValidateAmountString(%q) = %v, want ErrInvalidAmountString", s, err)
		}
	}
}

func TestValidateTransactionType(t *testing.T) {
	for _, s := range []string{"debit", "credit"} {
		if err := validator.ValidateTransactionType(s); err != nil {
			t.Errorf("ValidateTransactionType(%q) = %v, want nil", s, err)
		}
	}
	for _, s := range []string{"", "DEBIT", "transfer", "deposit"} {
		if err := validator.ValidateTransactionType(s); !errors.Is(err, validator.ErrInvalidType) {
			t.Errorf("ValidateTransactionType(%q) = %v, want ErrInvalidType", s, err)
		}
	}
}

func TestParsePositiveInt(t *testing.T) {
	n, err := validator.ParsePositiveInt("", 1, 12)
	if err != nil || n != 12 {
		t.Errorf("empty input: got %d, %v, want fallback 12", n, err)
	}

	n, err = validator.ParsePositiveInt("3", 1, 12)
	if err != nil || n != 3 {
		t.Errorf("got %d, %v, want 3", n, err)
	}

	for _, s := range []string{"0", "-1", "abc", "1.5"} {
		if _, err := validator.ParsePositiveInt(s, 1, 12); !errors.Is(err, validator.ErrInvalidInteger) {
			t.Errorf("ParsePositiveInt(%q) = %v, want ErrInvalidInteger", s, err)
		}
	}
}
