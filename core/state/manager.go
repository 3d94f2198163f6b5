package state

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"launchpad/core/events"
	"launchpad/core/types"
	"launchpad/native/launch"
	"launchpad/storage"
)

const (
	keyPlatform    = "launchpad/platform"
	prefixAccount  = "launchpad/account/"
	prefixSale     = "launchpad/sale/"
	prefixMetadata = "launchpad/metadata/"
	prefixPool     = "launchpad/pool/"
)

var (
	// ErrBalanceRange is returned when a ledger balance no longer fits the
	// 64-bit quantities the sale engine trades in.
	ErrBalanceRange = errors.New("state: balance exceeds 64-bit range")
	// ErrPoolExists is returned when a pool is created twice for one asset.
	ErrPoolExists = errors.New("state: pool already exists")
)

var maxUint64Big = new(big.Int).SetUint64(math.MaxUint64)

// PoolRecord describes the liquidity venue seeded when a sale graduates.
type PoolRecord struct {
	Ref           [32]byte
	AssetID       [32]byte
	AssetAmount   uint64
	ReserveAmount uint64
	OpenTime      int64
}

// Clone returns a copy of the pool record.
func (p *PoolRecord) Clone() *PoolRecord {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

// Manager owns the in-memory world state and its persistence. It implements
// every collaborator interface the sale engine needs: record storage, the
// reserve and asset ledger, the metadata registry and the pool creator.
//
// Mutations are buffered in memory and flushed to the backing database only
// when a unit of work commits. The engine-facing methods are unlocked and
// must run inside WithinUnit; a failing unit restores the pre-unit state,
// which makes every engine operation atomic including the ledger moves it
// performed before failing.
type Manager struct {
	mu sync.Mutex
	db storage.Database

	sink   events.Emitter
	staged []events.Event

	platform *launch.PlatformConfig
	accounts map[[20]byte]*types.Account
	sales    map[[32]byte]*launch.SaleRecord
	metadata map[[32]byte]launch.TokenMetadata
	pools    map[[32]byte]*PoolRecord

	dirtyPlatform bool
	dirtyAccounts map[[20]byte]struct{}
	dirtySales    map[[32]byte]struct{}
	dirtyMetadata map[[32]byte]struct{}
	dirtyPools    map[[32]byte]struct{}
}

// NewManager loads the persisted world state from db.
func NewManager(db storage.Database) (*Manager, error) {
	m := &Manager{
		db:       db,
		accounts: make(map[[20]byte]*types.Account),
		sales:    make(map[[32]byte]*launch.SaleRecord),
		metadata: make(map[[32]byte]launch.TokenMetadata),
		pools:    make(map[[32]byte]*PoolRecord),
	}
	m.resetDirty()
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) resetDirty() {
	m.dirtyPlatform = false
	m.dirtyAccounts = make(map[[20]byte]struct{})
	m.dirtySales = make(map[[32]byte]struct{})
	m.dirtyMetadata = make(map[[32]byte]struct{})
	m.dirtyPools = make(map[[32]byte]struct{})
}

// SetEventSink registers the downstream emitter that receives engine events
// once the unit of work that produced them commits.
func (m *Manager) SetEventSink(sink events.Emitter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sink = sink
}

// Emit implements events.Emitter. Events raised inside a unit of work are
// staged and delivered to the sink only after the unit commits; a rolled-back
// unit discards them, so subscribers never observe a trade that was undone.
func (m *Manager) Emit(evt events.Event) {
	m.staged = append(m.staged, evt)
}

// WithinUnit runs fn as one atomic unit of work. If fn returns an error the
// in-memory state is restored to the snapshot taken at entry and nothing is
// persisted; otherwise every touched record is flushed to the database and
// the staged events are released to the sink.
func (m *Manager) WithinUnit(fn func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.snapshot()
	m.resetDirty()
	m.staged = nil
	if err := fn(); err != nil {
		m.restore(snap)
		m.staged = nil
		return err
	}
	if err := m.commit(); err != nil {
		m.restore(snap)
		m.staged = nil
		return err
	}
	m.resetDirty()
	m.flushEvents()
	return nil
}

func (m *Manager) flushEvents() {
	staged := m.staged
	m.staged = nil
	if m.sink == nil {
		return
	}
	for _, evt := range staged {
		m.sink.Emit(evt)
	}
}

type worldSnapshot struct {
	platform *launch.PlatformConfig
	accounts map[[20]byte]*types.Account
	sales    map[[32]byte]*launch.SaleRecord
	metadata map[[32]byte]launch.TokenMetadata
	pools    map[[32]byte]*PoolRecord
}

func (m *Manager) snapshot() worldSnapshot {
	snap := worldSnapshot{
		platform: m.platform.Clone(),
		accounts: make(map[[20]byte]*types.Account, len(m.accounts)),
		sales:    make(map[[32]byte]*launch.SaleRecord, len(m.sales)),
		metadata: make(map[[32]byte]launch.TokenMetadata, len(m.metadata)),
		pools:    make(map[[32]byte]*PoolRecord, len(m.pools)),
	}
	for addr, acct := range m.accounts {
		snap.accounts[addr] = acct.Clone()
	}
	for id, sale := range m.sales {
		snap.sales[id] = sale.Clone()
	}
	for id, meta := range m.metadata {
		snap.metadata[id] = meta
	}
	for id, pool := range m.pools {
		snap.pools[id] = pool.Clone()
	}
	return snap
}

func (m *Manager) restore(snap worldSnapshot) {
	m.platform = snap.platform
	m.accounts = snap.accounts
	m.sales = snap.sales
	m.metadata = snap.metadata
	m.pools = snap.pools
	m.resetDirty()
}

func (m *Manager) commit() error {
	if m.dirtyPlatform && m.platform != nil {
		if err := m.persist(keyPlatform, platformToBlob(m.platform)); err != nil {
			return err
		}
	}
	for addr := range m.dirtyAccounts {
		acct := m.accounts[addr]
		if acct == nil {
			continue
		}
		if err := m.persist(prefixAccount+hexKey(addr[:]), accountToBlob(acct)); err != nil {
			return err
		}
	}
	for id := range m.dirtySales {
		sale := m.sales[id]
		if sale == nil {
			continue
		}
		if err := m.persist(prefixSale+hexKey(id[:]), saleToBlob(sale)); err != nil {
			return err
		}
	}
	for id := range m.dirtyMetadata {
		meta, ok := m.metadata[id]
		if !ok {
			continue
		}
		if err := m.persist(prefixMetadata+hexKey(id[:]), meta); err != nil {
			return err
		}
	}
	for id := range m.dirtyPools {
		pool := m.pools[id]
		if pool == nil {
			continue
		}
		if err := m.persist(prefixPool+hexKey(id[:]), poolToBlob(pool)); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) persist(key string, blob interface{}) error {
	raw, err := json.Marshal(blob)
	if err != nil {
		return fmt.Errorf("state: encode %s: %w", key, err)
	}
	return m.db.Put([]byte(key), raw)
}

func (m *Manager) load() error {
	raw, err := m.db.Get([]byte(keyPlatform))
	switch {
	case err == nil:
		cfg, err := platformFromBlob(raw)
		if err != nil {
			return err
		}
		m.platform = cfg
	case !storage.IsNotFound(err):
		return err
	}
	if err := m.db.Iterate([]byte(prefixAccount), func(key, value []byte) error {
		addr, err := hexAddr(string(key[len(prefixAccount):]))
		if err != nil {
			return err
		}
		acct, err := accountFromBlob(value)
		if err != nil {
			return err
		}
		m.accounts[addr] = acct
		return nil
	}); err != nil {
		return err
	}
	if err := m.db.Iterate([]byte(prefixSale), func(key, value []byte) error {
		sale, err := saleFromBlob(value)
		if err != nil {
			return err
		}
		sanitized, err := launch.SanitizeSale(sale)
		if err != nil {
			return fmt.Errorf("state: corrupt sale %x: %w", sale.AssetID, err)
		}
		m.sales[sanitized.AssetID] = sanitized
		return nil
	}); err != nil {
		return err
	}
	if err := m.db.Iterate([]byte(prefixMetadata), func(key, value []byte) error {
		id, err := hexHash(string(key[len(prefixMetadata):]))
		if err != nil {
			return err
		}
		var meta launch.TokenMetadata
		if err := json.Unmarshal(value, &meta); err != nil {
			return fmt.Errorf("state: decode metadata: %w", err)
		}
		m.metadata[id] = meta
		return nil
	}); err != nil {
		return err
	}
	return m.db.Iterate([]byte(prefixPool), func(key, value []byte) error {
		pool, err := poolFromBlob(value)
		if err != nil {
			return err
		}
		m.pools[pool.AssetID] = pool
		return nil
	})
}

func (m *Manager) account(addr [20]byte) *types.Account {
	acct, ok := m.accounts[addr]
	if !ok {
		acct = types.NewAccount()
		m.accounts[addr] = acct
	}
	return acct.Normalize()
}

func (m *Manager) markAccount(addr [20]byte) { m.dirtyAccounts[addr] = struct{}{} }

// LaunchPlatform implements launch.State.
func (m *Manager) LaunchPlatform() (*launch.PlatformConfig, bool, error) {
	if m.platform == nil {
		return nil, false, nil
	}
	return m.platform.Clone(), true, nil
}

// LaunchPutPlatform implements launch.State.
func (m *Manager) LaunchPutPlatform(cfg *launch.PlatformConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.platform = cfg.Clone()
	m.dirtyPlatform = true
	return nil
}

// LaunchSale implements launch.State.
func (m *Manager) LaunchSale(assetID [32]byte) (*launch.SaleRecord, bool, error) {
	sale, ok := m.sales[assetID]
	if !ok {
		return nil, false, nil
	}
	return sale.Clone(), true, nil
}

// LaunchPutSale implements launch.State.
func (m *Manager) LaunchPutSale(sale *launch.SaleRecord) error {
	sanitized, err := launch.SanitizeSale(sale)
	if err != nil {
		return err
	}
	m.sales[sanitized.AssetID] = sanitized
	m.dirtySales[sanitized.AssetID] = struct{}{}
	return nil
}

// MoveReserve implements launch.Ledger.
func (m *Manager) MoveReserve(from, to [20]byte, amount uint64) error {
	if amount == 0 {
		return nil
	}
	src := m.account(from)
	amt := new(big.Int).SetUint64(amount)
	if src.BalanceReserve.Cmp(amt) < 0 {
		return launch.ErrInsufficientBalance
	}
	dst := m.account(to)
	src.BalanceReserve.Sub(src.BalanceReserve, amt)
	dst.BalanceReserve.Add(dst.BalanceReserve, amt)
	m.markAccount(from)
	m.markAccount(to)
	return nil
}

// MoveAsset implements launch.Ledger.
func (m *Manager) MoveAsset(assetID [32]byte, from, to [20]byte, amount uint64) error {
	if amount == 0 {
		return nil
	}
	src := m.account(from)
	amt := new(big.Int).SetUint64(amount)
	held := src.Assets[assetID]
	if held == nil || held.Cmp(amt) < 0 {
		return launch.ErrInsufficientBalance
	}
	dst := m.account(to)
	held.Sub(held, amt)
	if dst.Assets[assetID] == nil {
		dst.Assets[assetID] = new(big.Int)
	}
	dst.Assets[assetID].Add(dst.Assets[assetID], amt)
	m.markAccount(from)
	m.markAccount(to)
	return nil
}

// MintAsset implements launch.Ledger.
func (m *Manager) MintAsset(assetID [32]byte, to [20]byte, amount uint64) error {
	if amount == 0 {
		return nil
	}
	dst := m.account(to)
	if dst.Assets[assetID] == nil {
		dst.Assets[assetID] = new(big.Int)
	}
	dst.Assets[assetID].Add(dst.Assets[assetID], new(big.Int).SetUint64(amount))
	m.markAccount(to)
	return nil
}

// ReserveBalance implements launch.Ledger.
func (m *Manager) ReserveBalance(addr [20]byte) (uint64, error) {
	acct, ok := m.accounts[addr]
	if !ok {
		return 0, nil
	}
	return toUint64(acct.Normalize().BalanceReserve)
}

// AssetBalance implements launch.Ledger.
func (m *Manager) AssetBalance(assetID [32]byte, addr [20]byte) (uint64, error) {
	acct, ok := m.accounts[addr]
	if !ok {
		return 0, nil
	}
	return toUint64(acct.AssetBalance(assetID))
}

// SaleEscrowAddress implements launch.Ledger. The escrow address is derived
// deterministically from the asset identity so it needs no key material.
func (m *Manager) SaleEscrowAddress(assetID [32]byte) [20]byte {
	hash := ethcrypto.Keccak256Hash([]byte("launchpad/escrow"), assetID[:])
	var addr [20]byte
	copy(addr[:], hash[12:])
	return addr
}

// RegisterAsset implements launch.MetadataRegistry.
func (m *Manager) RegisterAsset(assetID [32]byte, meta launch.TokenMetadata) error {
	if err := meta.Validate(); err != nil {
		return err
	}
	m.metadata[assetID] = meta
	m.dirtyMetadata[assetID] = struct{}{}
	return nil
}

// CreatePool implements launch.PoolCreator. The remaining asset units and
// the net reserve leave the sale escrow for the pool address; the returned
// reference identifies the stored pool record.
func (m *Manager) CreatePool(assetID [32]byte, assetAmount, reserveAmount uint64, openTime int64) ([32]byte, error) {
	if _, ok := m.pools[assetID]; ok {
		return [32]byte{}, ErrPoolExists
	}
	escrow := m.SaleEscrowAddress(assetID)
	poolAddr := m.PoolAddress(assetID)
	if err := m.MoveAsset(assetID, escrow, poolAddr, assetAmount); err != nil {
		return [32]byte{}, err
	}
	if err := m.MoveReserve(escrow, poolAddr, reserveAmount); err != nil {
		return [32]byte{}, err
	}
	ref := ethcrypto.Keccak256Hash([]byte("launchpad/pool"), assetID[:])
	pool := &PoolRecord{
		Ref:           ref,
		AssetID:       assetID,
		AssetAmount:   assetAmount,
		ReserveAmount: reserveAmount,
		OpenTime:      openTime,
	}
	m.pools[assetID] = pool
	m.dirtyPools[assetID] = struct{}{}
	return ref, nil
}

// PoolAddress derives the address holding a graduated sale's liquidity.
func (m *Manager) PoolAddress(assetID [32]byte) [20]byte {
	hash := ethcrypto.Keccak256Hash([]byte("launchpad/pool/vault"), assetID[:])
	var addr [20]byte
	copy(addr[:], hash[12:])
	return addr
}

// Credit mints reserve currency into an account. Genesis allocation and
// test faucets use it; it must run inside WithinUnit like every mutation.
func (m *Manager) Credit(addr [20]byte, amount uint64) error {
	acct := m.account(addr)
	acct.BalanceReserve.Add(acct.BalanceReserve, new(big.Int).SetUint64(amount))
	m.markAccount(addr)
	return nil
}

// GetPlatform returns the platform configuration for read-only callers.
func (m *Manager) GetPlatform() (*launch.PlatformConfig, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.platform == nil {
		return nil, false
	}
	return m.platform.Clone(), true
}

// GetSale returns a sale record for read-only callers.
func (m *Manager) GetSale(assetID [32]byte) (*launch.SaleRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sale, ok := m.sales[assetID]
	if !ok {
		return nil, false
	}
	return sale.Clone(), true
}

// Metadata returns the registered metadata for an asset.
func (m *Manager) Metadata(assetID [32]byte) (launch.TokenMetadata, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	meta, ok := m.metadata[assetID]
	return meta, ok
}

// Pool returns the pool record seeded for a graduated asset.
func (m *Manager) Pool(assetID [32]byte) (*PoolRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pool, ok := m.pools[assetID]
	if !ok {
		return nil, false
	}
	return pool.Clone(), true
}

// ListSales returns a clone of every sale record.
func (m *Manager) ListSales() []*launch.SaleRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	sales := make([]*launch.SaleRecord, 0, len(m.sales))
	for _, sale := range m.sales {
		sales = append(sales, sale.Clone())
	}
	return sales
}

func toUint64(v *big.Int) (uint64, error) {
	if v == nil {
		return 0, nil
	}
	if v.Sign() < 0 || v.Cmp(maxUint64Big) > 0 {
		return 0, ErrBalanceRange
	}
	return v.Uint64(), nil
}

func hexKey(b []byte) string { return hex.EncodeToString(b) }

func hexAddr(s string) ([20]byte, error) {
	var addr [20]byte
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != len(addr) {
		return addr, fmt.Errorf("state: malformed address key %q", s)
	}
	copy(addr[:], raw)
	return addr, nil
}

func hexHash(s string) ([32]byte, error) {
	var hash [32]byte
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != len(hash) {
		return hash, fmt.Errorf("state: malformed hash key %q", s)
	}
	copy(hash[:], raw)
	return hash, nil
}
