package launch

import (
	"fmt"
	"strings"

	"launchpad/native/curve"
	"launchpad/native/fees"
)

// MaxMigrationFee caps the configurable migration fee at one whole reserve
// coin (10^9 base units).
const MaxMigrationFee uint64 = 1_000_000_000

// Status is the lifecycle state of a sale. There are exactly two states:
// a sale sells until it migrates, and migration is terminal.
type Status uint8

const (
	StatusSelling Status = iota
	StatusMigrated
)

// String returns the canonical label for the status.
func (s Status) String() string {
	switch s {
	case StatusSelling:
		return "selling"
	case StatusMigrated:
		return "migrated"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// TokenMetadata is the display metadata registered with the external
// registry at sale creation.
type TokenMetadata struct {
	Name   string
	Symbol string
	URI    string
}

// Validate rejects metadata the registry would refuse.
func (m TokenMetadata) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("launch: metadata name required")
	}
	if strings.TrimSpace(m.Symbol) == "" {
		return fmt.Errorf("launch: metadata symbol required")
	}
	return nil
}

// PlatformConfig is the singleton platform state: fee parameters plus the
// aggregate counters every sale operation updates.
type PlatformConfig struct {
	Admin         [20]byte
	FeeVault      [20]byte
	ListingFee    uint64
	TradingFeeBps uint32
	MigrationFee  uint64

	TotalAssetsCreated uint64
	TotalFeesCollected uint64
	TotalTradingVolume uint64
	TotalMigrations    uint64
}

// Clone returns a copy of the platform configuration.
func (c *PlatformConfig) Clone() *PlatformConfig {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// Validate performs static validation of the fee parameters.
func (c *PlatformConfig) Validate() error {
	if c == nil {
		return fmt.Errorf("launch: nil platform config")
	}
	if c.Admin == ([20]byte{}) {
		return fmt.Errorf("launch: platform admin required")
	}
	if c.FeeVault == ([20]byte{}) {
		return fmt.Errorf("launch: platform fee vault required")
	}
	if err := fees.ValidateTradingFeeBps(c.TradingFeeBps); err != nil {
		return err
	}
	if c.MigrationFee > MaxMigrationFee {
		return fmt.Errorf("launch: migration fee exceeds %d", MaxMigrationFee)
	}
	return nil
}

// SaleRecord is the per-asset sale state: immutable curve configuration set
// at creation plus the running totals the lifecycle mutates. It is owned by
// the engine; collaborators only ever see clones.
type SaleRecord struct {
	AssetID [32]byte
	Creator [20]byte

	Kind           curve.Kind
	BasePrice      uint64
	Slope          uint64
	BasePerMillion uint64
	MaxPerMillion  uint64
	StartMarketCap uint64
	EndMarketCap   uint64

	// TotalSupply is in whole units; UnitsSold, ReserveRaised and the
	// graduation targets are in base units of asset and reserve currency.
	TotalSupply    uint64
	UnitsSold      uint64
	ReserveRaised  uint64
	TargetReserve  uint64
	ThresholdUnits uint64

	Migrated      bool
	MigrationTime int64
	PoolRef       [32]byte
	CreatedAt     int64
}

// Clone returns a copy of the sale record.
func (s *SaleRecord) Clone() *SaleRecord {
	if s == nil {
		return nil
	}
	clone := *s
	return &clone
}

// Status derives the lifecycle state from the migrated flag.
func (s *SaleRecord) Status() Status {
	if s != nil && s.Migrated {
		return StatusMigrated
	}
	return StatusSelling
}

// SupplyBaseUnits converts the whole-unit supply into base units.
func (s *SaleRecord) SupplyBaseUnits() (uint64, error) {
	return curve.CheckedMul(s.TotalSupply, curve.Decimals, curve.StageSupply)
}

// CurveParams assembles the pricing parameters for the quote engine.
func (s *SaleRecord) CurveParams() curve.Params {
	return curve.Params{
		Kind:           s.Kind,
		BasePrice:      s.BasePrice,
		Slope:          s.Slope,
		BasePerMillion: s.BasePerMillion,
		MaxPerMillion:  s.MaxPerMillion,
		ThresholdUnits: s.ThresholdUnits,
	}
}

// ProgressPercent reports how much of the supply has been sold, capped at
// 100.
func (s *SaleRecord) ProgressPercent() uint8 {
	supplyBase, err := s.SupplyBaseUnits()
	if err != nil || supplyBase == 0 {
		return 0
	}
	pct, err := curve.MulDiv(s.UnitsSold, 100, supplyBase, curve.StageSupply)
	if err != nil || pct > 100 {
		return 100
	}
	return uint8(pct)
}

// MigrationReady reports whether the graduation condition holds. Exactly one
// condition is authoritative per curve kind: the reserve target for the
// linear variants, the sold-units threshold for the sqrt-cap variant.
func (s *SaleRecord) MigrationReady() bool {
	if s == nil || s.Migrated {
		return false
	}
	switch s.Kind {
	case curve.KindSqrtCap:
		return s.ThresholdUnits > 0 && s.UnitsSold >= s.ThresholdUnits
	default:
		return s.TargetReserve > 0 && s.ReserveRaised >= s.TargetReserve
	}
}

// SanitizeSale validates the record invariants and returns a clone with a
// consistent shape. Storage backends run it before persisting.
func SanitizeSale(s *SaleRecord) (*SaleRecord, error) {
	if s == nil {
		return nil, fmt.Errorf("launch: nil sale record")
	}
	clone := s.Clone()
	if clone.AssetID == ([32]byte{}) {
		return nil, fmt.Errorf("launch: sale asset id required")
	}
	if clone.Creator == ([20]byte{}) {
		return nil, fmt.Errorf("launch: sale creator required")
	}
	if clone.TotalSupply == 0 {
		return nil, fmt.Errorf("launch: sale supply must be positive")
	}
	if err := clone.CurveParams().Validate(); err != nil {
		return nil, err
	}
	supplyBase, err := clone.SupplyBaseUnits()
	if err != nil {
		return nil, err
	}
	if clone.UnitsSold > supplyBase {
		return nil, fmt.Errorf("launch: units sold %d exceed supply %d", clone.UnitsSold, supplyBase)
	}
	switch clone.Kind {
	case curve.KindSqrtCap:
		if clone.ThresholdUnits == 0 || clone.ThresholdUnits > supplyBase {
			return nil, fmt.Errorf("launch: sqrt-cap threshold out of range")
		}
	default:
		if clone.TargetReserve == 0 {
			return nil, fmt.Errorf("launch: reserve target required")
		}
	}
	if clone.Migrated && clone.MigrationTime == 0 {
		return nil, fmt.Errorf("launch: migrated sale missing timestamp")
	}
	if !clone.Migrated && clone.PoolRef != ([32]byte{}) {
		return nil, fmt.Errorf("launch: pool reference set before migration")
	}
	return clone, nil
}
