package fees

import (
	"errors"
	"fmt"

	"launchpad/native/curve"
)

// MaxTradingFeeBps caps the configurable trading fee at 10%.
const MaxTradingFeeBps uint32 = 1000

// bpsDenominator is the basis-point scale: fees are integers out of 10,000.
const bpsDenominator uint64 = 10_000

// ErrFeeBpsOutOfRange is returned when a fee rate exceeds the configured cap.
var ErrFeeBpsOutOfRange = errors.New("fees: trading fee bps out of range")

// Quote summarises the fee split for one trade. Gross is what the curve
// quoted, Fee is the platform cut, BuyerTotal is gross plus fee (what a buyer
// pays) and SellerNet is gross minus fee (what a seller receives).
type Quote struct {
	Gross      uint64
	Fee        uint64
	BuyerTotal uint64
	SellerNet  uint64
}

// ValidateTradingFeeBps rejects fee rates above the 10% platform cap.
func ValidateTradingFeeBps(bps uint32) error {
	if bps > MaxTradingFeeBps {
		return fmt.Errorf("%w: %d", ErrFeeBpsOutOfRange, bps)
	}
	return nil
}

// Trading computes the fee obligation for a gross trade amount at the given
// basis-point rate. The fee multiply is widened before the downcast; the
// division truncates toward zero, so small trades can legitimately carry a
// zero fee.
func Trading(gross uint64, bps uint32) (Quote, error) {
	if err := ValidateTradingFeeBps(bps); err != nil {
		return Quote{}, err
	}
	q := Quote{Gross: gross}
	fee, err := curve.MulDiv(gross, uint64(bps), bpsDenominator, curve.StageFinalSum)
	if err != nil {
		return Quote{}, err
	}
	q.Fee = fee
	q.BuyerTotal, err = curve.CheckedAdd(gross, q.Fee, curve.StageFinalSum)
	if err != nil {
		return Quote{}, err
	}
	// The fee never exceeds 10% of gross, so the seller net cannot underflow.
	q.SellerNet = gross - q.Fee
	return q, nil
}
