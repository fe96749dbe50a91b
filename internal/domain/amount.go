package domain

import (
	"fmt"
	"math"
	"strconv"
)

// Amount is a signed fixed-point quantity of ZLD. The base unit is
// 1/2^24 of one ZLD (§3 "Amount").
type Amount int64

// ZldBaseUnits is the number of base units in one ZLD.
const ZldBaseUnits = int64(1) << 24

// MaxAmount bounds the magnitude of any single Amount value. Operations
// that would exceed it return ErrAmountOverflow.
const MaxAmount Amount = math.MaxInt64 / 2

// Zero is the zero Amount.
const Zero Amount = 0

// NewAmountZld builds an Amount from a ZLD-denominated float, rounding to
// the nearest base unit. Intended for tests and CLI-facing parsing only.
func NewAmountZld(zld float64) Amount {
	return Amount(math.Round(zld * float64(ZldBaseUnits)))
}

// Zld returns the amount expressed in ZLD.
func (a Amount) Zld() float64 {
	return float64(a) / float64(ZldBaseUnits)
}

// Add returns a+b, erroring on overflow past MaxAmount.
func (a Amount) Add(b Amount) (Amount, error) {
	r := a + b
	if r > MaxAmount || r < -MaxAmount {
		return 0, ErrAmountOverflow
	}
	return r, nil
}

// Sub returns a-b, erroring on overflow past MaxAmount.
func (a Amount) Sub(b Amount) (Amount, error) {
	return a.Add(-b)
}

// Neg returns the negation of a.
func (a Amount) Neg() Amount {
	return -a
}

// Cmp returns -1, 0, or 1 as a is less than, equal to, or greater than b.
func (a Amount) Cmp(b Amount) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// MulInt multiplies the amount by a signed integer factor, erroring on
// overflow past MaxAmount.
func (a Amount) MulInt(factor int64) (Amount, error) {
	r := int64(a) * factor
	if factor != 0 && r/factor != int64(a) {
		return 0, ErrAmountOverflow
	}
	if Amount(r) > MaxAmount || Amount(r) < -MaxAmount {
		return 0, ErrAmountOverflow
	}
	return Amount(r), nil
}

// String renders the amount as a signed decimal integer of base units.
func (a Amount) String() string {
	return strconv.FormatInt(int64(a), 10)
}

// ParseAmount parses a signed decimal integer of base units.
func ParseAmount(s string) (Amount, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return Amount(v), nil
}
