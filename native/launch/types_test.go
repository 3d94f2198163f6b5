package launch

import (
	"testing"

	"launchpad/native/curve"
)

func validSale() *SaleRecord {
	return &SaleRecord{
		AssetID:       [32]byte{0x01},
		Creator:       [20]byte{0x02},
		Kind:          curve.KindLinear,
		BasePrice:     50,
		TotalSupply:   1000,
		TargetReserve: 30_000,
		CreatedAt:     1,
	}
}

func TestSanitizeSale(t *testing.T) {
	if _, err := SanitizeSale(validSale()); err != nil {
		t.Fatalf("valid sale rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*SaleRecord)
	}{
		{"nil asset id", func(s *SaleRecord) { s.AssetID = [32]byte{} }},
		{"nil creator", func(s *SaleRecord) { s.Creator = [20]byte{} }},
		{"zero supply", func(s *SaleRecord) { s.TotalSupply = 0 }},
		{"missing target", func(s *SaleRecord) { s.TargetReserve = 0 }},
		{"oversold", func(s *SaleRecord) { s.UnitsSold = 1001 * curve.Decimals }},
		{"migrated without timestamp", func(s *SaleRecord) { s.Migrated = true }},
		{"pool ref before migration", func(s *SaleRecord) { s.PoolRef = [32]byte{0xFF} }},
	}
	for _, tc := range cases {
		sale := validSale()
		tc.mutate(sale)
		if _, err := SanitizeSale(sale); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestSanitizeSaleSqrtCapThreshold(t *testing.T) {
	sale := validSale()
	sale.Kind = curve.KindSqrtCap
	sale.BasePerMillion = 1
	sale.MaxPerMillion = 32
	sale.TargetReserve = 0
	sale.ThresholdUnits = 600 * curve.Decimals
	if _, err := SanitizeSale(sale); err != nil {
		t.Fatalf("valid sqrt-cap sale rejected: %v", err)
	}
	sale.ThresholdUnits = 1001 * curve.Decimals
	if _, err := SanitizeSale(sale); err == nil {
		t.Fatalf("threshold past the supply should be rejected")
	}
}

func TestMigrationReady(t *testing.T) {
	sale := validSale()
	if sale.MigrationReady() {
		t.Fatalf("fresh sale should not be ready")
	}
	sale.ReserveRaised = 30_000
	if !sale.MigrationReady() {
		t.Fatalf("reserve at target should be ready")
	}
	sale.Migrated = true
	if sale.MigrationReady() {
		t.Fatalf("migrated sale should never be ready")
	}

	cap := validSale()
	cap.Kind = curve.KindSqrtCap
	cap.ThresholdUnits = 600 * curve.Decimals
	cap.ReserveRaised = 1 << 60
	if cap.MigrationReady() {
		t.Fatalf("sqrt-cap readiness must ignore the reserve")
	}
	cap.UnitsSold = 600 * curve.Decimals
	if !cap.MigrationReady() {
		t.Fatalf("sold units at threshold should be ready")
	}
}

func TestProgressPercent(t *testing.T) {
	sale := validSale()
	if got := sale.ProgressPercent(); got != 0 {
		t.Fatalf("progress = %d, want 0", got)
	}
	sale.UnitsSold = 250 * curve.Decimals
	if got := sale.ProgressPercent(); got != 25 {
		t.Fatalf("progress = %d, want 25", got)
	}
	sale.UnitsSold = 1000 * curve.Decimals
	if got := sale.ProgressPercent(); got != 100 {
		t.Fatalf("progress = %d, want 100", got)
	}
}

func TestPlatformConfigValidate(t *testing.T) {
	cfg := &PlatformConfig{Admin: [20]byte{0x01}, FeeVault: [20]byte{0x02}, TradingFeeBps: 150}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	bad := cfg.Clone()
	bad.TradingFeeBps = 1001
	if err := bad.Validate(); err == nil {
		t.Fatalf("excessive bps should be rejected")
	}
	bad = cfg.Clone()
	bad.MigrationFee = MaxMigrationFee + 1
	if err := bad.Validate(); err == nil {
		t.Fatalf("excessive migration fee should be rejected")
	}
	bad = cfg.Clone()
	bad.FeeVault = [20]byte{}
	if err := bad.Validate(); err == nil {
		t.Fatalf("missing vault should be rejected")
	}
}
