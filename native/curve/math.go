package curve

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// Decimals is the number of base units per whole asset unit. All trade sizes
// and sold totals are expressed in base units; curve parameters are quoted per
// whole unit unless stated otherwise.
const Decimals uint64 = 1_000_000_000

// ErrUnderflow is returned when a checked subtraction would go negative.
var ErrUnderflow = errors.New("curve: arithmetic underflow")

// Stage identifies the sub-expression of a quote computation that overflowed.
// The granularity is part of the contract: callers diagnose curve
// misconfiguration from the stage alone.
type Stage uint8

const (
	StageSupply Stage = iota
	StageSlopeSupply
	StagePricePerToken
	StageLinearCost
	StageNSquared
	StageQuadraticSlope
	StageQuadraticDivision
	StageFinalSum
)

// String returns the canonical label for the stage.
func (s Stage) String() string {
	switch s {
	case StageSupply:
		return "supply"
	case StageSlopeSupply:
		return "slope-supply"
	case StagePricePerToken:
		return "price-per-token"
	case StageLinearCost:
		return "linear-cost"
	case StageNSquared:
		return "n-squared"
	case StageQuadraticSlope:
		return "quadratic-slope"
	case StageQuadraticDivision:
		return "quadratic-division"
	case StageFinalSum:
		return "final-sum"
	default:
		return fmt.Sprintf("stage(%d)", uint8(s))
	}
}

// OverflowError reports a checked arithmetic failure together with the stage
// of the quote computation that produced it.
type OverflowError struct {
	Stage Stage
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("curve: arithmetic overflow at %s", e.Stage)
}

func overflow(stage Stage) error {
	return &OverflowError{Stage: stage}
}

// IsOverflow reports whether err is an overflow at any stage and returns the
// stage when it is.
func IsOverflow(err error) (Stage, bool) {
	var oe *OverflowError
	if errors.As(err, &oe) {
		return oe.Stage, true
	}
	return 0, false
}

// CheckedAdd returns a+b or an overflow error tagged with the given stage.
func CheckedAdd(a, b uint64, stage Stage) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, overflow(stage)
	}
	return sum, nil
}

// CheckedSub returns a-b or ErrUnderflow when b exceeds a.
func CheckedSub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrUnderflow
	}
	return a - b, nil
}

// CheckedMul returns a*b or an overflow error when the product does not fit
// in 64 bits.
func CheckedMul(a, b uint64, stage Stage) (uint64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	product := a * b
	if product/a != b {
		return 0, overflow(stage)
	}
	return product, nil
}

// CheckedDiv returns a/b, guarding against division by zero. Division by zero
// is surfaced as an overflow of the supplied stage: it only occurs when a
// curve parameter collapsed to zero through earlier truncation.
func CheckedDiv(a, b uint64, stage Stage) (uint64, error) {
	if b == 0 {
		return 0, overflow(stage)
	}
	return a / b, nil
}

// maxUint128 bounds the widened intermediates. Products are computed in
// 256-bit precision but must stay within 128 bits, matching the contract that
// a single widening step is available before the final downcast.
var maxUint128 = func() *uint256.Int {
	one := uint256.NewInt(1)
	limit := new(uint256.Int).Lsh(one, 128)
	return new(uint256.Int).Sub(limit, one)
}()

func wideUint(v uint64) *uint256.Int { return uint256.NewInt(v) }

// wideMul multiplies a and b in 256-bit precision and fails with the supplied
// stage when the product exceeds 128 bits.
func wideMul(a, b uint64, stage Stage) (*uint256.Int, error) {
	product := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	if product.Cmp(maxUint128) > 0 {
		return nil, overflow(stage)
	}
	return product, nil
}

// wideMulBig multiplies a widened value by a u64 factor under the same
// 128-bit bound.
func wideMulBig(a *uint256.Int, b uint64, stage Stage) (*uint256.Int, error) {
	product := new(uint256.Int).Mul(a, uint256.NewInt(b))
	if product.Cmp(maxUint128) > 0 {
		return nil, overflow(stage)
	}
	return product, nil
}

// narrow downcasts a widened value to u64, failing with the supplied stage
// when it does not fit.
func narrow(v *uint256.Int, stage Stage) (uint64, error) {
	if !v.IsUint64() {
		return 0, overflow(stage)
	}
	return v.Uint64(), nil
}

// MulDiv computes a*b/den with the product widened past 64 bits, failing
// with the supplied stage when the product exceeds the widened bound or the
// quotient does not fit back into 64 bits. The division truncates.
func MulDiv(a, b, den uint64, stage Stage) (uint64, error) {
	if den == 0 {
		return 0, overflow(stage)
	}
	product, err := wideMul(a, b, stage)
	if err != nil {
		return 0, err
	}
	product.Div(product, wideUint(den))
	return narrow(product, stage)
}

// IntegerSqrt returns floor(sqrt(n)) using Newton's method seeded at
// n/2 + 1, which cannot wrap even at MaxUint64. The loop iterates
// y = (x + n/x) / 2 until y >= x.
func IntegerSqrt(n uint64) uint64 {
	if n < 2 {
		return n
	}
	x := n/2 + 1
	y := (x + n/x) / 2
	for y < x {
		x = y
		y = (x + n/x) / 2
	}
	return x
}
