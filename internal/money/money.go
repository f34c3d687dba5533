package money

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidAmount is returned when a monetary value would be constructed
	// from a negative quantity of minor units.
	ErrInvalidAmount = errors.New("money amount cannot be negative")

	// ErrNegativeResult is returned when a subtraction would produce a negative
	// amount. Reaching it from the transfer path indicates a logic defect, since
	// balances are checked before any debit.
	ErrNegativeResult = errors.New("money subtraction result is negative")
)

// Money is an immutable monetary value held as integer minor units (cents).
// All arithmetic happens on minor units so no floating-point error can leak
// into stored balances. The type models a single currency.
type Money struct {
	cents int64
}

// FromCents creates a Money from a quantity of minor units.
func FromCents(cents int64) (Money, error) {
	if cents < 0 {
		return Money{}, fmt.Errorf("%w: %d", ErrInvalidAmount, cents)
	}
	return Money{cents: cents}, nil
}

// FromDecimal creates a Money from a decimal value (e.g. dollars), rounding
// half-away-from-zero to the nearest minor unit.
func FromDecimal(value float64) (Money, error) {
	cents := int64(math.Round(value * 100))
	if cents < 0 {
		return Money{}, fmt.Errorf("%w: %.2f", ErrInvalidAmount, value)
	}
	return Money{cents: cents}, nil
}

// Zero returns the zero monetary value.
func Zero() Money {
	return Money{}
}

// Cents returns the value in minor units.
func (m Money) Cents() int64 {
	return m.cents
}

// Decimal returns the value in major units (e.g. dollars).
func (m Money) Decimal() float64 {
	return float64(m.cents) / 100
}

// IsZero reports whether the value is zero.
func (m Money) IsZero() bool {
	return m.cents == 0
}

// Add returns the sum of two monetary values.
func (m Money) Add(other Money) Money {
	return Money{cents: m.cents + other.cents}
}

// Subtract returns m minus other.
// Returns ErrNegativeResult if other is greater than m.
func (m Money) Subtract(other Money) (Money, error) {
	if other.cents > m.cents {
		return Money{}, fmt.Errorf("%w: %d - %d", ErrNegativeResult, m.cents, other.cents)
	}
	return Money{cents: m.cents - other.cents}, nil
}

// Multiply returns the value scaled by factor, rounded half-away-from-zero
// to the nearest minor unit. A negative factor is invalid.
func (m Money) Multiply(factor float64) (Money, error) {
	if factor < 0 {
		return Money{}, fmt.Errorf("%w: factor %.4f", ErrInvalidAmount, factor)
	}
	return Money{cents: int64(math.Round(float64(m.cents) * factor))}, nil
}

// Percentage returns the given percentage of the value, rounded
// half-away-from-zero to the nearest minor unit.
// Example: 10000 cents at 1.5% yields 150 cents; 3333 cents yields 50.
func (m Money) Percentage(percent float64) (Money, error) {
	if percent < 0 {
		return Money{}, fmt.Errorf("%w: percent %.4f", ErrInvalidAmount, percent)
	}
	return Money{cents: int64(math.Round(float64(m.cents) * percent / 100))}, nil
}

// LessThan reports whether m < other.
func (m Money) LessThan(other Money) bool {
	return m.cents < other.cents
}

// LessThanOrEqual reports whether m <= other.
func (m Money) LessThanOrEqual(other Money) bool {
	return m.cents <= other.cents
}

// GreaterThan reports whether m > other.
func (m Money) GreaterThan(other Money) bool {
	return m.cents > other.cents
}

// GreaterThanOrEqual reports whether m >= other.
func (m Money) GreaterThanOrEqual(other Money) bool {
	return m.cents >= other.cents
}

// Equal reports whether two values are equal.
func (m Money) Equal(other Money) bool {
	return m.cents == other.cents
}

// String formats the value in major units with two decimal places.
func (m Money) String() string {
	return fmt.Sprintf("%d.%02d", m.cents/100, m.cents%100)
}
