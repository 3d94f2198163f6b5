package curve

import (
	"errors"
	"fmt"
)

// Kind selects the pricing formula applied to a sale. The linear integral is
// the canonical curve; the spot and sqrt-cap variants retain the contract of
// earlier deployments and remain selectable per sale.
type Kind uint8

const (
	// KindLinear integrates a linear marginal price over the trade size.
	KindLinear Kind = iota
	// KindSpot evaluates the linear price once at the current sold total.
	KindSpot
	// KindSqrtCap scales the unit price with the square root of migration
	// progress.
	KindSqrtCap
)

// Valid reports whether the kind is one of the supported variants.
func (k Kind) Valid() bool {
	switch k {
	case KindLinear, KindSpot, KindSqrtCap:
		return true
	default:
		return false
	}
}

// String returns the canonical label for the curve kind.
func (k Kind) String() string {
	switch k {
	case KindLinear:
		return "linear"
	case KindSpot:
		return "spot"
	case KindSqrtCap:
		return "sqrt-cap"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// SellHaircutBps is the fixed discount applied to gross sell proceeds. It
// guarantees that selling immediately after a buy returns strictly less than
// the buy cost, closing the buy/sell arbitrage loop.
const SellHaircutBps uint64 = 500

// sqrtProgressScale is the integer approximation of sqrt(1000); progress is
// expressed in thousandths so sqrt(progress)/31 normalises to [0, 1].
const sqrtProgressScale uint64 = 31

// perMillion converts a trade size in base units into millions of base units
// for the sqrt-cap price quote.
const perMillion uint64 = 1_000_000

// ErrUnknownKind is returned when a quote is requested for an unsupported
// curve variant.
var ErrUnknownKind = errors.New("curve: unknown curve kind")

// Params carries the per-sale curve configuration. BasePrice and Slope are
// quoted in reserve base units per whole asset unit. BasePerMillion and
// MaxPerMillion are quoted per million asset base units and apply only to
// the sqrt-cap kind, together with ThresholdUnits (the migration threshold
// in asset base units).
type Params struct {
	Kind           Kind
	BasePrice      uint64
	Slope          uint64
	BasePerMillion uint64
	MaxPerMillion  uint64
	ThresholdUnits uint64
}

// Validate performs static validation of the curve parameters.
func (p Params) Validate() error {
	if !p.Kind.Valid() {
		return ErrUnknownKind
	}
	switch p.Kind {
	case KindLinear, KindSpot:
		if p.BasePrice == 0 && p.Slope == 0 {
			return fmt.Errorf("curve: linear curve requires a base price or slope")
		}
	case KindSqrtCap:
		if p.ThresholdUnits == 0 {
			return fmt.Errorf("curve: sqrt-cap curve requires a migration threshold")
		}
		if p.MaxPerMillion < p.BasePerMillion {
			return fmt.Errorf("curve: sqrt-cap price range is negative")
		}
	}
	return nil
}

// BuyCost quotes the reserve cost of buying n asset base units when unitsSold
// base units have already been sold. A zero n quotes zero without error.
func BuyCost(p Params, unitsSold, n uint64) (uint64, error) {
	if n == 0 {
		return 0, nil
	}
	switch p.Kind {
	case KindLinear:
		return linearIntegralCost(p, unitsSold, n)
	case KindSpot:
		return spotCost(p, unitsSold, n)
	case KindSqrtCap:
		return sqrtCapCost(p, unitsSold, n)
	default:
		return 0, ErrUnknownKind
	}
}

// SellProceeds quotes the gross reserve proceeds of selling n asset base
// units back into the curve when unitsSold base units are outstanding. The
// quote is the buy integral over [unitsSold-n, unitsSold] reduced by the
// fixed haircut, so it is strictly below the matching buy cost for n > 0.
func SellProceeds(p Params, unitsSold, n uint64) (uint64, error) {
	if n == 0 {
		return 0, nil
	}
	start, err := CheckedSub(unitsSold, n)
	if err != nil {
		return 0, err
	}
	symmetric, err := BuyCost(p, start, n)
	if err != nil {
		return 0, err
	}
	return MulDiv(symmetric, 10_000-SellHaircutBps, 10_000, StageFinalSum)
}

// SpotPrice returns the instantaneous price per whole asset unit at the
// current sold total (per million base units for the sqrt-cap kind).
func SpotPrice(p Params, unitsSold uint64) (uint64, error) {
	switch p.Kind {
	case KindLinear, KindSpot:
		return linearSpotPrice(p, unitsSold)
	case KindSqrtCap:
		return sqrtCapUnitPrice(p, unitsSold)
	default:
		return 0, ErrUnknownKind
	}
}

// linearIntegralCost computes the exact integral of the linear marginal price
// basePrice + slope*S over the trade:
//
//	cost = basePrice*n/Decimals + slope*(S0*n + n²/2)/Decimals
//
// Each sub-expression is range checked independently so a failure names the
// term that overflowed.
func linearIntegralCost(p Params, unitsSold, n uint64) (uint64, error) {
	if _, err := CheckedAdd(unitsSold, n, StageSupply); err != nil {
		return 0, err
	}

	linear, err := wideMul(p.BasePrice, n, StagePricePerToken)
	if err != nil {
		return 0, err
	}
	linear.Div(linear, wideUint(Decimals))
	first, err := narrow(linear, StageLinearCost)
	if err != nil {
		return 0, err
	}

	second, err := wideMul(n, n, StageNSquared)
	if err != nil {
		return 0, err
	}
	second.Div(second, wideUint(2))

	third, err := wideMul(unitsSold, n, StageSlopeSupply)
	if err != nil {
		return 0, err
	}

	inner := third.Add(third, second)
	quadratic, err := wideMulBig(inner, p.Slope, StageQuadraticSlope)
	if err != nil {
		return 0, err
	}
	quadratic.Div(quadratic, wideUint(Decimals))
	slopePart, err := narrow(quadratic, StageQuadraticDivision)
	if err != nil {
		return 0, err
	}

	return CheckedAdd(first, slopePart, StageFinalSum)
}

// linearSpotPrice evaluates basePrice + slope*S at the current sold total,
// with S scaled down to whole units.
func linearSpotPrice(p Params, unitsSold uint64) (uint64, error) {
	scaled, err := wideMul(p.Slope, unitsSold, StageSlopeSupply)
	if err != nil {
		return 0, err
	}
	scaled.Div(scaled, wideUint(Decimals))
	slopeTerm, err := narrow(scaled, StageSlopeSupply)
	if err != nil {
		return 0, err
	}
	return CheckedAdd(p.BasePrice, slopeTerm, StagePricePerToken)
}

// spotCost multiplies the once-evaluated spot price by the trade size. This
// is the cheaper historical variant: it does not integrate, so large trades
// are quoted at the pre-trade price.
func spotCost(p Params, unitsSold, n uint64) (uint64, error) {
	if _, err := CheckedAdd(unitsSold, n, StageSupply); err != nil {
		return 0, err
	}
	price, err := linearSpotPrice(p, unitsSold)
	if err != nil {
		return 0, err
	}
	cost, err := wideMul(price, n, StageLinearCost)
	if err != nil {
		return 0, err
	}
	cost.Div(cost, wideUint(Decimals))
	return narrow(cost, StageLinearCost)
}

// sqrtCapUnitPrice quotes the price per million base units at the current
// migration progress:
//
//	price = basePerMillion + priceRange*sqrt(progress)/31
//	progress = min(1000, unitsSold*1000/thresholdUnits)
func sqrtCapUnitPrice(p Params, unitsSold uint64) (uint64, error) {
	priceRange, err := CheckedSub(p.MaxPerMillion, p.BasePerMillion)
	if err != nil {
		return 0, err
	}
	scaled, err := wideMul(unitsSold, 1000, StageSupply)
	if err != nil {
		return 0, err
	}
	if p.ThresholdUnits == 0 {
		return 0, overflow(StageQuadraticDivision)
	}
	scaled.Div(scaled, wideUint(p.ThresholdUnits))
	progress, err := narrow(scaled, StageSupply)
	if err != nil {
		return 0, err
	}
	if progress > 1000 {
		progress = 1000
	}
	step, err := CheckedMul(priceRange, IntegerSqrt(progress), StageQuadraticSlope)
	if err != nil {
		return 0, err
	}
	return CheckedAdd(p.BasePerMillion, step/sqrtProgressScale, StageFinalSum)
}

// sqrtCapCost quotes a trade against the sqrt-cap curve. The trade size is
// divided down to millions of base units before the multiply; the ordering is
// required to keep the supply-times-price product inside 64 bits.
func sqrtCapCost(p Params, unitsSold, n uint64) (uint64, error) {
	if _, err := CheckedAdd(unitsSold, n, StageSupply); err != nil {
		return 0, err
	}
	price, err := sqrtCapUnitPrice(p, unitsSold)
	if err != nil {
		return 0, err
	}
	return CheckedMul(n/perMillion, price, StageLinearCost)
}
