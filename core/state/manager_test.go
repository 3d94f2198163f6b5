package state

import (
	"errors"
	"math"
	"testing"

	"launchpad/core/events"
	"launchpad/native/curve"
	"launchpad/native/launch"
	"launchpad/storage"
)

var (
	testAdmin   = [20]byte{0xAA}
	testVault   = [20]byte{0xFE}
	testCreator = [20]byte{0xC0}
	testBuyer   = [20]byte{0xB0}
)

func newTestManager(t *testing.T) (*Manager, storage.Database) {
	t.Helper()
	db := storage.NewMemDB()
	m, err := NewManager(db)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m, db
}

func TestWithinUnitRollsBackOnError(t *testing.T) {
	m, _ := newTestManager(t)
	if err := m.WithinUnit(func() error { return m.Credit(testBuyer, 1_000) }); err != nil {
		t.Fatalf("credit: %v", err)
	}

	boom := errors.New("boom")
	err := m.WithinUnit(func() error {
		if err := m.MoveReserve(testBuyer, testVault, 600); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("unit error = %v, want boom", err)
	}
	bal, err := m.ReserveBalance(testBuyer)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal != 1_000 {
		t.Fatalf("balance = %d, want the pre-unit 1000", bal)
	}
	if vault, _ := m.ReserveBalance(testVault); vault != 0 {
		t.Fatalf("vault = %d, want 0", vault)
	}
}

func TestWithinUnitPersistsOnSuccess(t *testing.T) {
	m, db := newTestManager(t)
	if err := m.WithinUnit(func() error { return m.Credit(testBuyer, 777) }); err != nil {
		t.Fatalf("credit: %v", err)
	}

	reloaded, err := NewManager(db)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	bal, err := reloaded.ReserveBalance(testBuyer)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal != 777 {
		t.Fatalf("reloaded balance = %d, want 777", bal)
	}
}

func TestReserveBalanceRange(t *testing.T) {
	m, _ := newTestManager(t)
	if err := m.WithinUnit(func() error {
		if err := m.Credit(testBuyer, math.MaxUint64); err != nil {
			return err
		}
		return m.Credit(testBuyer, 1)
	}); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if _, err := m.ReserveBalance(testBuyer); !errors.Is(err, ErrBalanceRange) {
		t.Fatalf("expected ErrBalanceRange, got %v", err)
	}
}

func saleLifecycle(t *testing.T, m *Manager, pools launch.PoolCreator) (*launch.Engine, [32]byte) {
	t.Helper()
	engine := launch.NewEngine(m, m, m, pools)
	var assetID [32]byte
	err := m.WithinUnit(func() error {
		if _, err := engine.InitializePlatform(testAdmin, testVault, 100, 100, 50); err != nil {
			return err
		}
		if err := m.Credit(testCreator, 1_000); err != nil {
			return err
		}
		return m.Credit(testBuyer, 100_000)
	})
	if err != nil {
		t.Fatalf("setup unit: %v", err)
	}
	err = m.WithinUnit(func() error {
		sale, err := engine.CreateSale(testCreator, launch.CreateSaleArgs{
			Metadata:       launch.TokenMetadata{Name: "Flat Coin", Symbol: "FLAT", URI: "ipfs://flat"},
			Kind:           curve.KindLinear,
			TotalSupply:    1000,
			StartMarketCap: 50_000,
			EndMarketCap:   50_000,
			TargetReserve:  30_000,
		})
		if err != nil {
			return err
		}
		assetID = sale.AssetID
		return nil
	})
	if err != nil {
		t.Fatalf("create unit: %v", err)
	}
	return engine, assetID
}

func TestEngineLifecycleOverManager(t *testing.T) {
	m, db := newTestManager(t)
	engine, assetID := saleLifecycle(t, m, m)

	err := m.WithinUnit(func() error {
		_, err := engine.Buy(assetID, testBuyer, 100*curve.Decimals, 0)
		return err
	})
	if err != nil {
		t.Fatalf("buy unit: %v", err)
	}
	escrow := m.SaleEscrowAddress(assetID)
	if bal, _ := m.ReserveBalance(escrow); bal != 5_000 {
		t.Fatalf("escrow reserve = %d, want 5000", bal)
	}
	if bal, _ := m.AssetBalance(assetID, testBuyer); bal != 100*curve.Decimals {
		t.Fatalf("buyer units = %d", bal)
	}

	// A restart must see the same world.
	reloaded, err := NewManager(db)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	sale, ok, err := reloaded.LaunchSale(assetID)
	if err != nil || !ok {
		t.Fatalf("reloaded sale: %v %v", ok, err)
	}
	if sale.UnitsSold != 100*curve.Decimals || sale.ReserveRaised != 5_000 {
		t.Fatalf("reloaded totals = %d/%d", sale.UnitsSold, sale.ReserveRaised)
	}
	if _, ok := reloaded.Metadata(assetID); !ok {
		t.Fatalf("metadata not persisted")
	}
	cfg, ok, err := reloaded.LaunchPlatform()
	if err != nil || !ok {
		t.Fatalf("reloaded platform: %v %v", ok, err)
	}
	if cfg.TotalAssetsCreated != 1 || cfg.TotalTradingVolume != 5_000 {
		t.Fatalf("reloaded counters = %+v", cfg)
	}
}

func TestMigrationSeedsPool(t *testing.T) {
	m, _ := newTestManager(t)
	engine, assetID := saleLifecycle(t, m, m)

	// 600 units raise the 30000 target exactly and trigger migration.
	err := m.WithinUnit(func() error {
		receipt, err := engine.Buy(assetID, testBuyer, 600*curve.Decimals, 0)
		if err != nil {
			return err
		}
		if !receipt.Migrated {
			t.Fatalf("buy at target should migrate")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("buy unit: %v", err)
	}
	pool, ok := m.Pool(assetID)
	if !ok {
		t.Fatalf("pool record missing")
	}
	if pool.AssetAmount != 400*curve.Decimals || pool.ReserveAmount != 30_000-50 {
		t.Fatalf("pool = %+v", pool)
	}
	poolAddr := m.PoolAddress(assetID)
	if bal, _ := m.ReserveBalance(poolAddr); bal != 29_950 {
		t.Fatalf("pool reserve = %d", bal)
	}
	if bal, _ := m.AssetBalance(assetID, poolAddr); bal != 400*curve.Decimals {
		t.Fatalf("pool units = %d", bal)
	}
	escrow := m.SaleEscrowAddress(assetID)
	if bal, _ := m.ReserveBalance(escrow); bal != 0 {
		t.Fatalf("escrow should be drained, has %d", bal)
	}
	if _, err := m.CreatePool(assetID, 1, 1, 0); !errors.Is(err, ErrPoolExists) {
		t.Fatalf("second pool = %v, want ErrPoolExists", err)
	}
}

func TestEventsHeldUntilCommit(t *testing.T) {
	m, _ := newTestManager(t)
	sink := &events.Recorder{}
	m.SetEventSink(sink)

	engine, assetID := saleLifecycle(t, m, failingPools{})
	engine.SetEmitter(m)
	sink.Drain()

	// The failing pool aborts the migrating buy after the purchase event
	// was raised; the rolled-back unit must not leak it.
	err := m.WithinUnit(func() error {
		_, err := engine.Buy(assetID, testBuyer, 600*curve.Decimals, 0)
		return err
	})
	if err == nil {
		t.Fatalf("expected pool failure to fail the unit")
	}
	if got := sink.Len(); got != 0 {
		t.Fatalf("failed unit leaked %d event(s): %+v", got, sink.Drain())
	}

	// A committed buy delivers its event to the sink.
	err = m.WithinUnit(func() error {
		_, err := engine.Buy(assetID, testBuyer, 100*curve.Decimals, 0)
		return err
	})
	if err != nil {
		t.Fatalf("buy unit: %v", err)
	}
	delivered := sink.Drain()
	if len(delivered) != 1 || delivered[0].Type != launch.EventTypeSalePurchased {
		t.Fatalf("committed unit events = %+v", delivered)
	}
}

type failingPools struct{}

func (failingPools) CreatePool([32]byte, uint64, uint64, int64) ([32]byte, error) {
	return [32]byte{}, errors.New("venue unavailable")
}

func TestPoolFailureRollsBackTriggeringBuy(t *testing.T) {
	m, _ := newTestManager(t)
	engine, assetID := saleLifecycle(t, m, failingPools{})

	before, _ := m.ReserveBalance(testBuyer)
	err := m.WithinUnit(func() error {
		_, err := engine.Buy(assetID, testBuyer, 600*curve.Decimals, 0)
		return err
	})
	if err == nil {
		t.Fatalf("expected pool failure to fail the unit")
	}
	after, _ := m.ReserveBalance(testBuyer)
	if after != before {
		t.Fatalf("buyer balance %d changed to %d despite rollback", before, after)
	}
	sale, ok, _ := m.LaunchSale(assetID)
	if !ok {
		t.Fatalf("sale missing")
	}
	if sale.UnitsSold != 0 || sale.ReserveRaised != 0 || sale.Migrated {
		t.Fatalf("sale mutated despite rollback: %+v", sale)
	}
}
