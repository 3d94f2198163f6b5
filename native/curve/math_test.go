package curve

import (
	"errors"
	"math"
	"testing"
)

func TestIntegerSqrt(t *testing.T) {
	cases := []struct {
		in   uint64
		want uint64
	}{
		{0, 0},
		{1, 1},
		{2, 1},
		{3, 1},
		{4, 2},
		{8, 2},
		{9, 3},
		{15, 3},
		{16, 4},
		{999, 31},
		{1000, 31},
		{1024, 32},
		{1_000_000, 1000},
		{1_000_000_000_000_000_000, 1_000_000_000},
		{math.MaxUint64, 4_294_967_295},
	}
	for _, tc := range cases {
		if got := IntegerSqrt(tc.in); got != tc.want {
			t.Fatalf("IntegerSqrt(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestIntegerSqrtIsFloor(t *testing.T) {
	for n := uint64(0); n < 10_000; n++ {
		root := IntegerSqrt(n)
		if root*root > n {
			t.Fatalf("IntegerSqrt(%d) = %d exceeds the true root", n, root)
		}
		if (root+1)*(root+1) <= n {
			t.Fatalf("IntegerSqrt(%d) = %d is not the floor", n, root)
		}
	}
}

func TestCheckedAdd(t *testing.T) {
	if got, err := CheckedAdd(1, 2, StageFinalSum); err != nil || got != 3 {
		t.Fatalf("CheckedAdd(1, 2) = %d, %v", got, err)
	}
	if _, err := CheckedAdd(math.MaxUint64, 1, StageFinalSum); err == nil {
		t.Fatalf("expected overflow adding past MaxUint64")
	} else if stage, ok := IsOverflow(err); !ok || stage != StageFinalSum {
		t.Fatalf("expected final-sum overflow, got %v", err)
	}
}

func TestCheckedSub(t *testing.T) {
	if got, err := CheckedSub(5, 3); err != nil || got != 2 {
		t.Fatalf("CheckedSub(5, 3) = %d, %v", got, err)
	}
	if _, err := CheckedSub(3, 5); !errors.Is(err, ErrUnderflow) {
		t.Fatalf("expected underflow, got %v", err)
	}
}

func TestCheckedMul(t *testing.T) {
	if got, err := CheckedMul(0, math.MaxUint64, StageNSquared); err != nil || got != 0 {
		t.Fatalf("CheckedMul with zero operand = %d, %v", got, err)
	}
	if got, err := CheckedMul(1<<32, 1<<31, StageNSquared); err != nil || got != 1<<63 {
		t.Fatalf("CheckedMul(2^32, 2^31) = %d, %v", got, err)
	}
	if _, err := CheckedMul(1<<32, 1<<32, StageNSquared); err == nil {
		t.Fatalf("expected overflow multiplying 2^32 by 2^32")
	}
}

func TestCheckedDiv(t *testing.T) {
	if got, err := CheckedDiv(7, 2, StageQuadraticDivision); err != nil || got != 3 {
		t.Fatalf("CheckedDiv(7, 2) = %d, %v (truncation expected)", got, err)
	}
	if _, err := CheckedDiv(1, 0, StageQuadraticDivision); err == nil {
		t.Fatalf("expected error dividing by zero")
	}
}

func TestWideMulBounds(t *testing.T) {
	// MaxUint64 squared fits the widened intermediate.
	if _, err := wideMul(math.MaxUint64, math.MaxUint64, StageNSquared); err != nil {
		t.Fatalf("MaxUint64^2 should fit 128 bits: %v", err)
	}
	big, err := wideMul(math.MaxUint64, math.MaxUint64, StageNSquared)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// One more 64-bit factor pushes it past the widened bound.
	if _, err := wideMulBig(big, 2, StageQuadraticSlope); err == nil {
		t.Fatalf("expected overflow past 128 bits")
	} else if stage, ok := IsOverflow(err); !ok || stage != StageQuadraticSlope {
		t.Fatalf("expected quadratic-slope overflow, got %v", err)
	}
}

func TestStageLabels(t *testing.T) {
	labels := map[Stage]string{
		StageSupply:            "supply",
		StageSlopeSupply:       "slope-supply",
		StagePricePerToken:     "price-per-token",
		StageLinearCost:        "linear-cost",
		StageNSquared:          "n-squared",
		StageQuadraticSlope:    "quadratic-slope",
		StageQuadraticDivision: "quadratic-division",
		StageFinalSum:          "final-sum",
	}
	for stage, want := range labels {
		if got := stage.String(); got != want {
			t.Fatalf("stage %d label = %q, want %q", stage, got, want)
		}
	}
}
