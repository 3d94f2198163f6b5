package rpc

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"launchpad/native/curve"
	"launchpad/native/fees"
	"launchpad/native/launch"
)

const jsonRPCVersion = "2.0"

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001
	codeNotFound       = -32004
	codeRejected       = -32010
	codeRateLimited    = -32020
)

// RPCRequest is the JSON-RPC 2.0 request envelope.
type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

// RPCResponse is the JSON-RPC 2.0 response envelope.
type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

// RPCError carries a JSON-RPC error object.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type initializeParams struct {
	Admin         string `json:"admin"`
	FeeVault      string `json:"feeVault"`
	ListingFee    uint64 `json:"listingFee"`
	TradingFeeBps uint32 `json:"tradingFeeBps"`
	MigrationFee  uint64 `json:"migrationFee"`
}

type updateFeesParams struct {
	Caller        string `json:"caller"`
	ListingFee    uint64 `json:"listingFee"`
	TradingFeeBps uint32 `json:"tradingFeeBps"`
	MigrationFee  uint64 `json:"migrationFee"`
}

type createSaleParams struct {
	Creator        string `json:"creator"`
	Name           string `json:"name"`
	Symbol         string `json:"symbol"`
	URI            string `json:"uri"`
	Curve          string `json:"curve"`
	TotalSupply    uint64 `json:"totalSupply"`
	StartMarketCap uint64 `json:"startMarketCap"`
	EndMarketCap   uint64 `json:"endMarketCap"`
	Slope          uint64 `json:"slope"`
	BasePerMillion uint64 `json:"basePerMillion"`
	MaxPerMillion  uint64 `json:"maxPerMillion"`
	TargetReserve  uint64 `json:"targetReserve"`
	ThresholdUnits uint64 `json:"thresholdUnits"`
	Nonce          uint64 `json:"nonce"`
}

type tradeParams struct {
	AssetID string `json:"assetId"`
	Trader  string `json:"trader"`
	Units   uint64 `json:"units"`
	// Limit is maxCost for buys (zero means unbounded) and minProceeds
	// for sells.
	Limit uint64 `json:"limit"`
}

type migrateParams struct {
	AssetID  string `json:"assetId"`
	Caller   string `json:"caller"`
	OpenTime int64  `json:"openTime"`
}

type assetParams struct {
	AssetID string `json:"assetId"`
	Units   uint64 `json:"units,omitempty"`
}

// SaleResult is the external view of a sale record.
type SaleResult struct {
	AssetID        string `json:"assetId"`
	Creator        string `json:"creator"`
	Status         string `json:"status"`
	Curve          string `json:"curve"`
	Name           string `json:"name,omitempty"`
	Symbol         string `json:"symbol,omitempty"`
	BasePrice      uint64 `json:"basePrice"`
	Slope          uint64 `json:"slope"`
	TotalSupply    uint64 `json:"totalSupply"`
	UnitsSold      uint64 `json:"unitsSold"`
	ReserveRaised  uint64 `json:"reserveRaised"`
	TargetReserve  uint64 `json:"targetReserve"`
	ThresholdUnits uint64 `json:"thresholdUnits"`
	Progress       uint8  `json:"progressPercent"`
	Migrated       bool   `json:"migrated"`
	MigrationTime  int64  `json:"migrationTime,omitempty"`
	PoolRef        string `json:"poolRef,omitempty"`
	CreatedAt      int64  `json:"createdAt"`
}

// PlatformResult is the external view of the platform configuration.
type PlatformResult struct {
	Admin              string `json:"admin"`
	FeeVault           string `json:"feeVault"`
	ListingFee         uint64 `json:"listingFee"`
	TradingFeeBps      uint32 `json:"tradingFeeBps"`
	MigrationFee       uint64 `json:"migrationFee"`
	TotalAssetsCreated uint64 `json:"totalAssetsCreated"`
	TotalFeesCollected uint64 `json:"totalFeesCollected"`
	TotalTradingVolume uint64 `json:"totalTradingVolume"`
	TotalMigrations    uint64 `json:"totalMigrations"`
}

// QuoteResult prices a prospective trade.
type QuoteResult struct {
	Gross      uint64 `json:"gross"`
	Fee        uint64 `json:"fee"`
	BuyerTotal uint64 `json:"buyerTotal,omitempty"`
	SellerNet  uint64 `json:"sellerNet,omitempty"`
}

// TradeResult is the receipt of an executed trade.
type TradeResult struct {
	AssetID       string `json:"assetId"`
	Trader        string `json:"trader"`
	Side          string `json:"side"`
	Units         uint64 `json:"units"`
	Gross         uint64 `json:"gross"`
	Fee           uint64 `json:"fee"`
	Total         uint64 `json:"total"`
	UnitsSold     uint64 `json:"unitsSold"`
	ReserveRaised uint64 `json:"reserveRaised"`
	Migrated      bool   `json:"migrated,omitempty"`
	PoolRef       string `json:"poolRef,omitempty"`
}

// MigrationResult is the receipt of a graduation.
type MigrationResult struct {
	AssetID       string `json:"assetId"`
	PoolRef       string `json:"poolRef"`
	AssetAmount   uint64 `json:"assetAmount"`
	ReserveAmount uint64 `json:"reserveAmount"`
	FeePaid       uint64 `json:"feePaid"`
	OpenTime      int64  `json:"openTime"`
}

func hexAddress(addr [20]byte) string { return "0x" + hex.EncodeToString(addr[:]) }
func hexHash(h [32]byte) string       { return "0x" + hex.EncodeToString(h[:]) }

func parseAddress(s string) ([20]byte, error) {
	var addr [20]byte
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil || len(raw) != len(addr) {
		return addr, fmt.Errorf("malformed address %q", s)
	}
	copy(addr[:], raw)
	return addr, nil
}

func parseHash(s string) ([32]byte, error) {
	var hash [32]byte
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil || len(raw) != len(hash) {
		return hash, fmt.Errorf("malformed asset id %q", s)
	}
	copy(hash[:], raw)
	return hash, nil
}

func parseCurveKind(s string) (curve.Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "linear":
		return curve.KindLinear, nil
	case "spot":
		return curve.KindSpot, nil
	case "sqrt-cap", "sqrtcap":
		return curve.KindSqrtCap, nil
	default:
		return 0, fmt.Errorf("unknown curve kind %q", s)
	}
}

func saleResult(sale *launch.SaleRecord, meta launch.TokenMetadata) SaleResult {
	result := SaleResult{
		AssetID:        hexHash(sale.AssetID),
		Creator:        hexAddress(sale.Creator),
		Status:         sale.Status().String(),
		Curve:          sale.Kind.String(),
		Name:           meta.Name,
		Symbol:         meta.Symbol,
		BasePrice:      sale.BasePrice,
		Slope:          sale.Slope,
		TotalSupply:    sale.TotalSupply,
		UnitsSold:      sale.UnitsSold,
		ReserveRaised:  sale.ReserveRaised,
		TargetReserve:  sale.TargetReserve,
		ThresholdUnits: sale.ThresholdUnits,
		Progress:       sale.ProgressPercent(),
		Migrated:       sale.Migrated,
		MigrationTime:  sale.MigrationTime,
		CreatedAt:      sale.CreatedAt,
	}
	if sale.PoolRef != ([32]byte{}) {
		result.PoolRef = hexHash(sale.PoolRef)
	}
	return result
}

func platformResult(cfg *launch.PlatformConfig) PlatformResult {
	return PlatformResult{
		Admin:              hexAddress(cfg.Admin),
		FeeVault:           hexAddress(cfg.FeeVault),
		ListingFee:         cfg.ListingFee,
		TradingFeeBps:      cfg.TradingFeeBps,
		MigrationFee:       cfg.MigrationFee,
		TotalAssetsCreated: cfg.TotalAssetsCreated,
		TotalFeesCollected: cfg.TotalFeesCollected,
		TotalTradingVolume: cfg.TotalTradingVolume,
		TotalMigrations:    cfg.TotalMigrations,
	}
}

func buyQuoteResult(q fees.Quote) QuoteResult {
	return QuoteResult{Gross: q.Gross, Fee: q.Fee, BuyerTotal: q.BuyerTotal}
}

func sellQuoteResult(q fees.Quote) QuoteResult {
	return QuoteResult{Gross: q.Gross, Fee: q.Fee, SellerNet: q.SellerNet}
}

func migrationResult(m *launch.Migration) MigrationResult {
	return MigrationResult{
		AssetID:       hexHash(m.AssetID),
		PoolRef:       hexHash(m.PoolRef),
		AssetAmount:   m.AssetAmount,
		ReserveAmount: m.ReserveAmount,
		FeePaid:       m.FeePaid,
		OpenTime:      m.MigrationTime,
	}
}
