// Package money holds monetary amounts as integer minor units (1/100).
package money

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/shopspring/decimal"
)

const minorDigits = 2

var ErrInvalidAmount = errors.New("invalid amount")

var (
	minMinor = decimal.NewFromInt(math.MinInt64)
	maxMinor = decimal.NewFromInt(math.MaxInt64)
)

// Amount is a count of minor units. Zero is a valid amount.
type Amount int64

func FromMinor(v int64) Amount {
	return Amount(v)
}

func FromMajor(v int64) Amount {
	return Amount(v * 100)
}

// Parse accepts a decimal string with at most two fractional digits.
func Parse(raw string) (Amount, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	return FromDecimal(d)
}

func FromDecimal(d decimal.Decimal) (Amount, error) {
	shifted := d.Shift(minorDigits)
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("%w: %s has more than %d fractional digits", ErrInvalidAmount, d.String(), minorDigits)
	}
	if shifted.LessThan(minMinor) || shifted.GreaterThan(maxMinor) {
		return 0, fmt.Errorf("%w: %s is out of range", ErrInvalidAmount, d.String())
	}
	return Amount(shifted.IntPart()), nil
}

func (a Amount) Minor() int64 {
	return int64(a)
}

func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -minorDigits)
}

func (a Amount) String() string {
	return a.Decimal().StringFixed(minorDigits)
}

func (a Amount) Times(qty int) Amount {
	return a * Amount(qty)
}

func (a Amount) IsNegative() bool {
	return a < 0
}

func (a Amount) IsPositive() bool {
	return a > 0
}

func Max(a, b Amount) Amount {
	if a > b {
		return a
	}
	return b
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = 0
		return nil
	}
	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = s
	}
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func (a Amount) Value() (driver.Value, error) {
	return int64(a), nil
}

func (a *Amount) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*a = 0
	case int64:
		*a = Amount(v)
	case int32:
		*a = Amount(v)
	case []byte:
		n, err := strconv.ParseInt(string(v), 10, 64)
		if err != nil {
			return fmt.Errorf("scan amount: %w", err)
		}
		*a = Amount(n)
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("scan amount: %w", err)
		}
		*a = Amount(n)
	default:
		return fmt.Errorf("scan amount: unsupported type %T", src)
	}
	return nil
}
