package launch

import (
	"encoding/binary"
	"fmt"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"launchpad/core/events"
	"launchpad/native/curve"
	"launchpad/native/fees"
)

// State is the narrow persistence surface the engine mutates. Get methods
// return clones; only Put makes a change visible.
type State interface {
	LaunchPlatform() (*PlatformConfig, bool, error)
	LaunchPutPlatform(*PlatformConfig) error
	LaunchSale(assetID [32]byte) (*SaleRecord, bool, error)
	LaunchPutSale(*SaleRecord) error
}

// Ledger moves reserve currency and sale assets between addresses. Every
// move is all-or-nothing; an insufficient source balance returns
// ErrInsufficientBalance untouched.
type Ledger interface {
	MoveReserve(from, to [20]byte, amount uint64) error
	MoveAsset(assetID [32]byte, from, to [20]byte, amount uint64) error
	MintAsset(assetID [32]byte, to [20]byte, amount uint64) error
	ReserveBalance(addr [20]byte) (uint64, error)
	AssetBalance(assetID [32]byte, addr [20]byte) (uint64, error)
	SaleEscrowAddress(assetID [32]byte) [20]byte
}

// MetadataRegistry records display metadata for a newly created asset. A
// registry failure aborts sale creation.
type MetadataRegistry interface {
	RegisterAsset(assetID [32]byte, meta TokenMetadata) error
}

// PoolCreator seeds the post-migration liquidity venue. The implementation
// moves the remaining asset units and the net reserve out of the sale escrow
// itself and returns an opaque pool reference. A failure aborts the whole
// migration, including any buy that triggered it.
type PoolCreator interface {
	CreatePool(assetID [32]byte, assetAmount, reserveAmount uint64, openTime int64) ([32]byte, error)
}

// CreateSaleArgs carries the caller-supplied sale configuration.
type CreateSaleArgs struct {
	Metadata       TokenMetadata
	Kind           curve.Kind
	TotalSupply    uint64
	StartMarketCap uint64
	EndMarketCap   uint64
	Slope          uint64
	BasePerMillion uint64
	MaxPerMillion  uint64
	TargetReserve  uint64
	ThresholdUnits uint64
	Nonce          uint64
}

// Purchase is the receipt returned by Buy.
type Purchase struct {
	AssetID       [32]byte
	Buyer         [20]byte
	Units         uint64
	Cost          uint64
	Fee           uint64
	Total         uint64
	UnitsSold     uint64
	ReserveRaised uint64
	Migrated      bool
	PoolRef       [32]byte
}

// Redemption is the receipt returned by Sell.
type Redemption struct {
	AssetID       [32]byte
	Seller        [20]byte
	Units         uint64
	Gross         uint64
	Fee           uint64
	Net           uint64
	UnitsSold     uint64
	ReserveRaised uint64
}

// Migration is the receipt returned when a sale graduates.
type Migration struct {
	AssetID       [32]byte
	PoolRef       [32]byte
	AssetAmount   uint64
	ReserveAmount uint64
	FeePaid       uint64
	MigrationTime int64
}

// Engine implements the sale lifecycle. It validates against clones and
// writes nothing until every check and ledger move has succeeded; the host
// wraps each operation in a state snapshot so a late failure rolls back the
// moves as well.
type Engine struct {
	state    State
	ledger   Ledger
	registry MetadataRegistry
	pools    PoolCreator
	emitter  events.Emitter
	nowFn    func() time.Time
}

// NewEngine constructs an engine with a no-op emitter.
func NewEngine(state State, ledger Ledger, registry MetadataRegistry, pools PoolCreator) *Engine {
	return &Engine{
		state:    state,
		ledger:   ledger,
		registry: registry,
		pools:    pools,
		emitter:  events.NoopEmitter{},
		nowFn:    time.Now,
	}
}

// SetEmitter overrides the event emitter. Passing nil restores the no-op
// emitter.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetNowFunc overrides the engine clock.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	e.nowFn = now
}

func (e *Engine) now() int64 { return e.nowFn().Unix() }

// DeriveAssetID computes the deterministic asset identity for a creation
// request: keccak256 over the creator address, the symbol and the creator
// nonce.
func DeriveAssetID(creator [20]byte, symbol string, nonce uint64) [32]byte {
	var nonceBytes [8]byte
	binary.BigEndian.PutUint64(nonceBytes[:], nonce)
	return ethcrypto.Keccak256Hash(creator[:], []byte(symbol), nonceBytes[:])
}

func (e *Engine) platform() (*PlatformConfig, error) {
	cfg, ok, err := e.state.LaunchPlatform()
	if err != nil {
		return nil, err
	}
	if !ok || cfg == nil {
		return nil, ErrPlatformNotFound
	}
	return cfg, nil
}

func (e *Engine) sale(assetID [32]byte) (*SaleRecord, error) {
	sale, ok, err := e.state.LaunchSale(assetID)
	if err != nil {
		return nil, err
	}
	if !ok || sale == nil {
		return nil, ErrSaleNotFound
	}
	return sale, nil
}

// InitializePlatform installs the singleton platform configuration. It can
// run exactly once; fee parameter updates go through UpdatePlatformFees.
func (e *Engine) InitializePlatform(admin, feeVault [20]byte, listingFee uint64, tradingFeeBps uint32, migrationFee uint64) (*PlatformConfig, error) {
	if _, ok, err := e.state.LaunchPlatform(); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrPlatformExists
	}
	cfg := &PlatformConfig{
		Admin:         admin,
		FeeVault:      feeVault,
		ListingFee:    listingFee,
		TradingFeeBps: tradingFeeBps,
		MigrationFee:  migrationFee,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := e.state.LaunchPutPlatform(cfg); err != nil {
		return nil, err
	}
	e.emitter.Emit(platformInitializedEvent(cfg))
	return cfg.Clone(), nil
}

// UpdatePlatformFees replaces the fee parameters. Only the platform admin
// may call it; the counters and vault addresses are untouched.
func (e *Engine) UpdatePlatformFees(caller [20]byte, listingFee uint64, tradingFeeBps uint32, migrationFee uint64) (*PlatformConfig, error) {
	cfg, err := e.platform()
	if err != nil {
		return nil, err
	}
	if cfg.Admin != caller {
		return nil, ErrUnauthorizedAdmin
	}
	updated := cfg.Clone()
	updated.ListingFee = listingFee
	updated.TradingFeeBps = tradingFeeBps
	updated.MigrationFee = migrationFee
	if err := updated.Validate(); err != nil {
		return nil, err
	}
	if err := e.state.LaunchPutPlatform(updated); err != nil {
		return nil, err
	}
	return updated.Clone(), nil
}

// CreateSale mints a new asset supply into the sale escrow and opens the
// bonding curve. The listing fee is charged to the creator up front and
// credited wholly to the platform fee vault; it never seeds the reserve.
func (e *Engine) CreateSale(creator [20]byte, args CreateSaleArgs) (*SaleRecord, error) {
	cfg, err := e.platform()
	if err != nil {
		return nil, err
	}
	if err := args.Metadata.Validate(); err != nil {
		return nil, err
	}
	if args.TotalSupply == 0 {
		return nil, ErrInvalidAmount
	}
	if args.EndMarketCap < args.StartMarketCap {
		return nil, fmt.Errorf("launch: end market cap below start")
	}

	assetID := DeriveAssetID(creator, args.Metadata.Symbol, args.Nonce)
	if _, ok, err := e.state.LaunchSale(assetID); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrSaleExists
	}

	basePrice, err := curve.CheckedDiv(args.StartMarketCap, args.TotalSupply, curve.StagePricePerToken)
	if err != nil {
		return nil, err
	}
	sale := &SaleRecord{
		AssetID:        assetID,
		Creator:        creator,
		Kind:           args.Kind,
		BasePrice:      basePrice,
		Slope:          args.Slope,
		BasePerMillion: args.BasePerMillion,
		MaxPerMillion:  args.MaxPerMillion,
		StartMarketCap: args.StartMarketCap,
		EndMarketCap:   args.EndMarketCap,
		TotalSupply:    args.TotalSupply,
		TargetReserve:  args.TargetReserve,
		ThresholdUnits: args.ThresholdUnits,
		CreatedAt:      e.now(),
	}
	sanitized, err := SanitizeSale(sale)
	if err != nil {
		return nil, err
	}
	supplyBase, err := sanitized.SupplyBaseUnits()
	if err != nil {
		return nil, err
	}

	updated := cfg.Clone()
	updated.TotalAssetsCreated++
	if cfg.ListingFee > 0 {
		updated.TotalFeesCollected, err = curve.CheckedAdd(updated.TotalFeesCollected, cfg.ListingFee, curve.StageFinalSum)
		if err != nil {
			return nil, err
		}
		if err := e.ledger.MoveReserve(creator, cfg.FeeVault, cfg.ListingFee); err != nil {
			return nil, err
		}
	}
	if err := e.registry.RegisterAsset(assetID, args.Metadata); err != nil {
		return nil, err
	}
	escrow := e.ledger.SaleEscrowAddress(assetID)
	if err := e.ledger.MintAsset(assetID, escrow, supplyBase); err != nil {
		return nil, err
	}

	if err := e.state.LaunchPutSale(sanitized); err != nil {
		return nil, err
	}
	if err := e.state.LaunchPutPlatform(updated); err != nil {
		return nil, err
	}
	e.emitter.Emit(saleCreatedEvent(sanitized, args.Metadata))
	return sanitized.Clone(), nil
}

// QuoteBuy prices a prospective purchase without touching state.
func (e *Engine) QuoteBuy(assetID [32]byte, n uint64) (fees.Quote, error) {
	cfg, err := e.platform()
	if err != nil {
		return fees.Quote{}, err
	}
	sale, err := e.sale(assetID)
	if err != nil {
		return fees.Quote{}, err
	}
	if sale.Migrated {
		return fees.Quote{}, ErrAlreadyGraduated
	}
	if n == 0 {
		return fees.Quote{}, ErrInvalidAmount
	}
	cost, err := curve.BuyCost(sale.CurveParams(), sale.UnitsSold, n)
	if err != nil {
		return fees.Quote{}, err
	}
	return fees.Trading(cost, cfg.TradingFeeBps)
}

// QuoteSell prices a prospective sell without touching state.
func (e *Engine) QuoteSell(assetID [32]byte, n uint64) (fees.Quote, error) {
	cfg, err := e.platform()
	if err != nil {
		return fees.Quote{}, err
	}
	sale, err := e.sale(assetID)
	if err != nil {
		return fees.Quote{}, err
	}
	if sale.Migrated {
		return fees.Quote{}, ErrAlreadyGraduated
	}
	if n == 0 {
		return fees.Quote{}, ErrInvalidAmount
	}
	if n > sale.UnitsSold {
		return fees.Quote{}, ErrInsufficientUnitsSold
	}
	gross, err := curve.SellProceeds(sale.CurveParams(), sale.UnitsSold, n)
	if err != nil {
		return fees.Quote{}, err
	}
	return fees.Trading(gross, cfg.TradingFeeBps)
}

// Buy purchases n asset base units from the curve. The buyer pays the curve
// cost plus the trading fee; the cost is escrowed as sale reserve and the fee
// goes to the platform vault. maxCost bounds the total debit, with zero
// meaning unbounded. If the purchase satisfies the graduation condition the
// migration runs inside the same operation and its failure fails the buy.
func (e *Engine) Buy(assetID [32]byte, buyer [20]byte, n, maxCost uint64) (*Purchase, error) {
	cfg, err := e.platform()
	if err != nil {
		return nil, err
	}
	sale, err := e.sale(assetID)
	if err != nil {
		return nil, err
	}
	if sale.Migrated {
		return nil, ErrAlreadyGraduated
	}
	if n == 0 {
		return nil, ErrInvalidAmount
	}
	supplyBase, err := sale.SupplyBaseUnits()
	if err != nil {
		return nil, err
	}
	newSold, err := curve.CheckedAdd(sale.UnitsSold, n, curve.StageSupply)
	if err != nil {
		return nil, err
	}
	if newSold > supplyBase {
		return nil, ErrExceedsSupply
	}

	cost, err := curve.BuyCost(sale.CurveParams(), sale.UnitsSold, n)
	if err != nil {
		return nil, err
	}
	quote, err := fees.Trading(cost, cfg.TradingFeeBps)
	if err != nil {
		return nil, err
	}
	if maxCost > 0 && quote.BuyerTotal > maxCost {
		return nil, ErrSlippageExceeded
	}
	balance, err := e.ledger.ReserveBalance(buyer)
	if err != nil {
		return nil, err
	}
	if balance < quote.BuyerTotal {
		return nil, ErrInsufficientBalance
	}

	newReserve, err := curve.CheckedAdd(sale.ReserveRaised, cost, curve.StageFinalSum)
	if err != nil {
		return nil, err
	}
	updatedCfg := cfg.Clone()
	updatedCfg.TotalTradingVolume, err = curve.CheckedAdd(updatedCfg.TotalTradingVolume, cost, curve.StageFinalSum)
	if err != nil {
		return nil, err
	}
	updatedCfg.TotalFeesCollected, err = curve.CheckedAdd(updatedCfg.TotalFeesCollected, quote.Fee, curve.StageFinalSum)
	if err != nil {
		return nil, err
	}

	escrow := e.ledger.SaleEscrowAddress(assetID)
	if err := e.ledger.MoveReserve(buyer, escrow, cost); err != nil {
		return nil, err
	}
	if quote.Fee > 0 {
		if err := e.ledger.MoveReserve(buyer, cfg.FeeVault, quote.Fee); err != nil {
			return nil, err
		}
	}
	if err := e.ledger.MoveAsset(assetID, escrow, buyer, n); err != nil {
		return nil, err
	}

	updatedSale := sale.Clone()
	updatedSale.UnitsSold = newSold
	updatedSale.ReserveRaised = newReserve
	if err := e.state.LaunchPutSale(updatedSale); err != nil {
		return nil, err
	}
	if err := e.state.LaunchPutPlatform(updatedCfg); err != nil {
		return nil, err
	}
	receipt := &Purchase{
		AssetID:       assetID,
		Buyer:         buyer,
		Units:         n,
		Cost:          cost,
		Fee:           quote.Fee,
		Total:         quote.BuyerTotal,
		UnitsSold:     newSold,
		ReserveRaised: newReserve,
	}
	e.emitter.Emit(salePurchasedEvent(updatedSale, receipt))

	if updatedSale.MigrationReady() {
		migration, err := e.migrate(updatedSale, updatedCfg, e.now())
		if err != nil {
			return nil, err
		}
		receipt.Migrated = true
		receipt.PoolRef = migration.PoolRef
	}
	return receipt, nil
}

// Sell returns n asset base units to the curve. The seller receives the
// haircut proceeds minus the trading fee, paid out of the sale escrow;
// minProceeds bounds the net credit from below.
func (e *Engine) Sell(assetID [32]byte, seller [20]byte, n, minProceeds uint64) (*Redemption, error) {
	cfg, err := e.platform()
	if err != nil {
		return nil, err
	}
	sale, err := e.sale(assetID)
	if err != nil {
		return nil, err
	}
	if sale.Migrated {
		return nil, ErrAlreadyGraduated
	}
	if n == 0 {
		return nil, ErrInvalidAmount
	}
	if n > sale.UnitsSold {
		return nil, ErrInsufficientUnitsSold
	}
	held, err := e.ledger.AssetBalance(assetID, seller)
	if err != nil {
		return nil, err
	}
	if held < n {
		return nil, ErrInsufficientBalance
	}

	gross, err := curve.SellProceeds(sale.CurveParams(), sale.UnitsSold, n)
	if err != nil {
		return nil, err
	}
	quote, err := fees.Trading(gross, cfg.TradingFeeBps)
	if err != nil {
		return nil, err
	}
	if quote.SellerNet < minProceeds {
		return nil, ErrSlippageExceeded
	}
	if gross > sale.ReserveRaised {
		return nil, ErrInsufficientVaultBalance
	}
	escrow := e.ledger.SaleEscrowAddress(assetID)
	escrowed, err := e.ledger.ReserveBalance(escrow)
	if err != nil {
		return nil, err
	}
	if escrowed < gross {
		return nil, ErrInsufficientVaultBalance
	}

	updatedCfg := cfg.Clone()
	updatedCfg.TotalTradingVolume, err = curve.CheckedAdd(updatedCfg.TotalTradingVolume, gross, curve.StageFinalSum)
	if err != nil {
		return nil, err
	}
	updatedCfg.TotalFeesCollected, err = curve.CheckedAdd(updatedCfg.TotalFeesCollected, quote.Fee, curve.StageFinalSum)
	if err != nil {
		return nil, err
	}

	if err := e.ledger.MoveAsset(assetID, seller, escrow, n); err != nil {
		return nil, err
	}
	if err := e.ledger.MoveReserve(escrow, seller, quote.SellerNet); err != nil {
		return nil, err
	}
	if quote.Fee > 0 {
		if err := e.ledger.MoveReserve(escrow, cfg.FeeVault, quote.Fee); err != nil {
			return nil, err
		}
	}

	updatedSale := sale.Clone()
	updatedSale.UnitsSold = sale.UnitsSold - n
	updatedSale.ReserveRaised = sale.ReserveRaised - gross
	if err := e.state.LaunchPutSale(updatedSale); err != nil {
		return nil, err
	}
	if err := e.state.LaunchPutPlatform(updatedCfg); err != nil {
		return nil, err
	}
	receipt := &Redemption{
		AssetID:       assetID,
		Seller:        seller,
		Units:         n,
		Gross:         gross,
		Fee:           quote.Fee,
		Net:           quote.SellerNet,
		UnitsSold:     updatedSale.UnitsSold,
		ReserveRaised: updatedSale.ReserveRaised,
	}
	e.emitter.Emit(saleSoldEvent(updatedSale, receipt))
	return receipt, nil
}

// Migrate graduates a sale explicitly. Only the platform admin or the sale
// creator may trigger it, and only once the graduation condition holds.
func (e *Engine) Migrate(assetID [32]byte, caller [20]byte, openTime int64) (*Migration, error) {
	cfg, err := e.platform()
	if err != nil {
		return nil, err
	}
	sale, err := e.sale(assetID)
	if err != nil {
		return nil, err
	}
	if caller != cfg.Admin && caller != sale.Creator {
		return nil, ErrUnauthorizedAdmin
	}
	if sale.Migrated {
		return nil, ErrAlreadyMigrated
	}
	if !sale.MigrationReady() {
		return nil, ErrTargetNotReached
	}
	if openTime == 0 {
		openTime = e.now()
	}
	return e.migrate(sale, cfg, openTime)
}

// migrate seals the curve: the migration fee moves to the platform vault,
// the pool creator drains the remaining escrow, and the sale record becomes
// terminal. Callers pass the post-trade sale and platform clones.
func (e *Engine) migrate(sale *SaleRecord, cfg *PlatformConfig, openTime int64) (*Migration, error) {
	supplyBase, err := sale.SupplyBaseUnits()
	if err != nil {
		return nil, err
	}
	remaining, err := curve.CheckedSub(supplyBase, sale.UnitsSold)
	if err != nil {
		return nil, err
	}
	feePaid := cfg.MigrationFee
	if feePaid > sale.ReserveRaised {
		feePaid = sale.ReserveRaised
	}
	available := sale.ReserveRaised - feePaid

	escrow := e.ledger.SaleEscrowAddress(sale.AssetID)
	if feePaid > 0 {
		if err := e.ledger.MoveReserve(escrow, cfg.FeeVault, feePaid); err != nil {
			return nil, err
		}
	}
	poolRef, err := e.pools.CreatePool(sale.AssetID, remaining, available, openTime)
	if err != nil {
		return nil, err
	}

	sealed := sale.Clone()
	sealed.Migrated = true
	sealed.MigrationTime = openTime
	sealed.PoolRef = poolRef
	updatedCfg := cfg.Clone()
	updatedCfg.TotalMigrations++
	updatedCfg.TotalFeesCollected, err = curve.CheckedAdd(updatedCfg.TotalFeesCollected, feePaid, curve.StageFinalSum)
	if err != nil {
		return nil, err
	}
	if err := e.state.LaunchPutSale(sealed); err != nil {
		return nil, err
	}
	if err := e.state.LaunchPutPlatform(updatedCfg); err != nil {
		return nil, err
	}
	migration := &Migration{
		AssetID:       sale.AssetID,
		PoolRef:       poolRef,
		AssetAmount:   remaining,
		ReserveAmount: available,
		FeePaid:       feePaid,
		MigrationTime: openTime,
	}
	e.emitter.Emit(saleMigratedEvent(sealed, migration))
	return migration, nil
}
