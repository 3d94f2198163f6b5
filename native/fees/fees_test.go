package fees

import (
	"errors"
	"math"
	"testing"
)

func TestTradingTruncatesSmallFees(t *testing.T) {
	// 50 * 150 / 10000 truncates to zero: tiny trades ride free.
	q, err := Trading(50, 150)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Fee != 0 {
		t.Fatalf("fee = %d, want 0", q.Fee)
	}
	if q.BuyerTotal != 50 || q.SellerNet != 50 {
		t.Fatalf("totals = %d/%d, want 50/50", q.BuyerTotal, q.SellerNet)
	}
}

func TestTradingSplit(t *testing.T) {
	cases := []struct {
		gross uint64
		bps   uint32
		fee   uint64
	}{
		{10_000, 150, 150},
		{1_000_000, 1000, 100_000},
		{999, 1000, 99},
		{0, 1000, 0},
	}
	for _, tc := range cases {
		q, err := Trading(tc.gross, tc.bps)
		if err != nil {
			t.Fatalf("Trading(%d, %d): %v", tc.gross, tc.bps, err)
		}
		if q.Fee != tc.fee {
			t.Fatalf("Trading(%d, %d) fee = %d, want %d", tc.gross, tc.bps, q.Fee, tc.fee)
		}
		if q.BuyerTotal != tc.gross+tc.fee {
			t.Fatalf("buyer total = %d, want %d", q.BuyerTotal, tc.gross+tc.fee)
		}
		if q.SellerNet != tc.gross-tc.fee {
			t.Fatalf("seller net = %d, want %d", q.SellerNet, tc.gross-tc.fee)
		}
	}
}

func TestTradingRejectsExcessiveBps(t *testing.T) {
	if _, err := Trading(100, MaxTradingFeeBps+1); !errors.Is(err, ErrFeeBpsOutOfRange) {
		t.Fatalf("expected bps range error, got %v", err)
	}
	if err := ValidateTradingFeeBps(MaxTradingFeeBps); err != nil {
		t.Fatalf("cap itself should validate: %v", err)
	}
}

func TestTradingWidensLargeGross(t *testing.T) {
	// gross*bps overflows 64 bits; the widened multiply keeps the quote exact.
	gross := uint64(math.MaxUint64 / 100)
	q, err := Trading(gross, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := gross / 100
	if q.Fee != want {
		t.Fatalf("fee = %d, want %d", q.Fee, want)
	}
}

func TestTradingBuyerTotalOverflow(t *testing.T) {
	if _, err := Trading(math.MaxUint64, 1000); err == nil {
		t.Fatalf("expected overflow adding fee to MaxUint64 gross")
	}
}
