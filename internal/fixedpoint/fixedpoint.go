package fixedpoint

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Guarded arithmetic failures. Callers match with errors.Is.
var (
	ErrDivisionByZero  = errors.New("fixedpoint: division by zero")
	ErrInvalidExponent = errors.New("fixedpoint: non-positive base raised to non-positive-integer power")
)

// Fractional digits carried through division and exponentiation. Results are
// deterministic for fixed inputs and independent of the package-global
// decimal.DivisionPrecision.
const (
	divPrecision int32 = 32
	powPrecision int32 = 32
)

var (
	// Zero and One are shared constants for the common comparisons.
	Zero = decimal.Zero
	One  = decimal.New(1, 0)
)

// Div returns a/b with divPrecision fractional digits. Division by zero is
// reported as ErrDivisionByZero instead of the panic the underlying library
// raises.
func Div(a, b decimal.Decimal) (decimal.Decimal, error) {
	if b.IsZero() {
		return decimal.Decimal{}, fmt.Errorf("%w: %s / 0", ErrDivisionByZero, a)
	}
	return a.DivRound(b, divPrecision), nil
}

// Pow returns base**exp supporting fractional and negative exponents. A
// non-positive base combined with a fractional exponent has no real result
// and fails with ErrInvalidExponent, as does zero raised to a non-positive
// power.
func Pow(base, exp decimal.Decimal) (decimal.Decimal, error) {
	if base.Sign() <= 0 && !exp.IsInteger() {
		return decimal.Decimal{}, fmt.Errorf("%w: %s**%s", ErrInvalidExponent, base, exp)
	}
	if base.IsZero() && exp.Sign() <= 0 {
		return decimal.Decimal{}, fmt.Errorf("%w: %s**%s", ErrInvalidExponent, base, exp)
	}

	out, err := base.PowWithPrecision(exp, powPrecision)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("pow %s**%s: %w", base, exp, err)
	}
	return out, nil
}

// Complement returns 1 - d.
func Complement(d decimal.Decimal) decimal.Decimal {
	return One.Sub(d)
}

// FromRaw converts raw token base units into normalized units.
func FromRaw(value *big.Int, decimals uint8) decimal.Decimal {
	if value == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(value, -int32(decimals))
}

// ToRaw converts normalized token units into raw base units, truncating
// toward zero.
func ToRaw(d decimal.Decimal, decimals uint8) *big.Int {
	return d.Shift(int32(decimals)).BigInt()
}
