// Package amount provides the exact base-10 decimal value type used for all
// monetary values. Balances and transaction amounts never touch binary
// floating point on the mutation path.
package amount

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"
)

// pattern bounds parsed values to at most 18 integer digits and 18 fractional
// digits. The leading minus is accepted so arithmetic results round-trip;
// request-level validation rejects negative inbound amounts separately.
var pattern = regexp.MustCompile(`^-?[0-9]{1,18}(\.[0-9]{1,18})?$`)

var ErrInvalidAmount = errors.New("invalid decimal amount")

// Amount is an immutable exact decimal. The zero value is 0.
type Amount struct {
	d decimal.Decimal
}

// Zero returns the zero amount.
func Zero() Amount {
	return Amount{}
}

// Parse decodes a canonical decimal string into an Amount.
func Parse(s string) (Amount, error) {
	if !pattern.MatchString(s) {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return Amount{d: d}, nil
}

// MustParse is Parse for literals known to be valid. It panics on error and
// is intended for seeds and tests only.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) Add(b Amount) Amount {
	return Amount{d: a.d.Add(b.d)}
}

func (a Amount) Sub(b Amount) Amount {
	return Amount{d: a.d.Sub(b.d)}
}

// Cmp returns -1, 0 or 1 when a is less than, equal to or greater than b.
func (a Amount) Cmp(b Amount) int {
	return a.d.Cmp(b.d)
}

func (a Amount) Equal(b Amount) bool {
	return a.d.Equal(b.d)
}

func (a Amount) IsNegative() bool {
	return a.d.IsNegative()
}

// String returns the canonical decimal representation. Parse(a.String())
// always yields a value equal to a.
func (a Amount) String() string {
	return a.d.String()
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.d.String())
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, data)
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
