package state

import (
	"encoding/json"
	"fmt"
	"math/big"

	"launchpad/core/types"
	"launchpad/native/curve"
	"launchpad/native/launch"
)

// The persisted encoding is JSON with hex-encoded identities and decimal
// strings for the big-integer balances. The schema is versioned implicitly
// by the key prefixes; unknown fields are ignored on load.

type platformBlob struct {
	Admin         string `json:"admin"`
	FeeVault      string `json:"feeVault"`
	ListingFee    uint64 `json:"listingFee"`
	TradingFeeBps uint32 `json:"tradingFeeBps"`
	MigrationFee  uint64 `json:"migrationFee"`

	TotalAssetsCreated uint64 `json:"totalAssetsCreated"`
	TotalFeesCollected uint64 `json:"totalFeesCollected"`
	TotalTradingVolume uint64 `json:"totalTradingVolume"`
	TotalMigrations    uint64 `json:"totalMigrations"`
}

func platformToBlob(cfg *launch.PlatformConfig) platformBlob {
	return platformBlob{
		Admin:              hexKey(cfg.Admin[:]),
		FeeVault:           hexKey(cfg.FeeVault[:]),
		ListingFee:         cfg.ListingFee,
		TradingFeeBps:      cfg.TradingFeeBps,
		MigrationFee:       cfg.MigrationFee,
		TotalAssetsCreated: cfg.TotalAssetsCreated,
		TotalFeesCollected: cfg.TotalFeesCollected,
		TotalTradingVolume: cfg.TotalTradingVolume,
		TotalMigrations:    cfg.TotalMigrations,
	}
}

func platformFromBlob(raw []byte) (*launch.PlatformConfig, error) {
	var blob platformBlob
	if err := json.Unmarshal(raw, &blob); err != nil {
		return nil, fmt.Errorf("state: decode platform: %w", err)
	}
	admin, err := hexAddr(blob.Admin)
	if err != nil {
		return nil, err
	}
	vault, err := hexAddr(blob.FeeVault)
	if err != nil {
		return nil, err
	}
	return &launch.PlatformConfig{
		Admin:              admin,
		FeeVault:           vault,
		ListingFee:         blob.ListingFee,
		TradingFeeBps:      blob.TradingFeeBps,
		MigrationFee:       blob.MigrationFee,
		TotalAssetsCreated: blob.TotalAssetsCreated,
		TotalFeesCollected: blob.TotalFeesCollected,
		TotalTradingVolume: blob.TotalTradingVolume,
		TotalMigrations:    blob.TotalMigrations,
	}, nil
}

type saleBlob struct {
	AssetID string `json:"assetId"`
	Creator string `json:"creator"`

	Kind           uint8  `json:"kind"`
	BasePrice      uint64 `json:"basePrice"`
	Slope          uint64 `json:"slope"`
	BasePerMillion uint64 `json:"basePerMillion"`
	MaxPerMillion  uint64 `json:"maxPerMillion"`
	StartMarketCap uint64 `json:"startMarketCap"`
	EndMarketCap   uint64 `json:"endMarketCap"`

	TotalSupply    uint64 `json:"totalSupply"`
	UnitsSold      uint64 `json:"unitsSold"`
	ReserveRaised  uint64 `json:"reserveRaised"`
	TargetReserve  uint64 `json:"targetReserve"`
	ThresholdUnits uint64 `json:"thresholdUnits"`

	Migrated      bool   `json:"migrated"`
	MigrationTime int64  `json:"migrationTime"`
	PoolRef       string `json:"poolRef"`
	CreatedAt     int64  `json:"createdAt"`
}

func saleToBlob(sale *launch.SaleRecord) saleBlob {
	return saleBlob{
		AssetID:        hexKey(sale.AssetID[:]),
		Creator:        hexKey(sale.Creator[:]),
		Kind:           uint8(sale.Kind),
		BasePrice:      sale.BasePrice,
		Slope:          sale.Slope,
		BasePerMillion: sale.BasePerMillion,
		MaxPerMillion:  sale.MaxPerMillion,
		StartMarketCap: sale.StartMarketCap,
		EndMarketCap:   sale.EndMarketCap,
		TotalSupply:    sale.TotalSupply,
		UnitsSold:      sale.UnitsSold,
		ReserveRaised:  sale.ReserveRaised,
		TargetReserve:  sale.TargetReserve,
		ThresholdUnits: sale.ThresholdUnits,
		Migrated:       sale.Migrated,
		MigrationTime:  sale.MigrationTime,
		PoolRef:        hexKey(sale.PoolRef[:]),
		CreatedAt:      sale.CreatedAt,
	}
}

func saleFromBlob(raw []byte) (*launch.SaleRecord, error) {
	var blob saleBlob
	if err := json.Unmarshal(raw, &blob); err != nil {
		return nil, fmt.Errorf("state: decode sale: %w", err)
	}
	assetID, err := hexHash(blob.AssetID)
	if err != nil {
		return nil, err
	}
	creator, err := hexAddr(blob.Creator)
	if err != nil {
		return nil, err
	}
	poolRef, err := hexHash(blob.PoolRef)
	if err != nil {
		return nil, err
	}
	return &launch.SaleRecord{
		AssetID:        assetID,
		Creator:        creator,
		Kind:           curve.Kind(blob.Kind),
		BasePrice:      blob.BasePrice,
		Slope:          blob.Slope,
		BasePerMillion: blob.BasePerMillion,
		MaxPerMillion:  blob.MaxPerMillion,
		StartMarketCap: blob.StartMarketCap,
		EndMarketCap:   blob.EndMarketCap,
		TotalSupply:    blob.TotalSupply,
		UnitsSold:      blob.UnitsSold,
		ReserveRaised:  blob.ReserveRaised,
		TargetReserve:  blob.TargetReserve,
		ThresholdUnits: blob.ThresholdUnits,
		Migrated:       blob.Migrated,
		MigrationTime:  blob.MigrationTime,
		PoolRef:        poolRef,
		CreatedAt:      blob.CreatedAt,
	}, nil
}

type accountBlob struct {
	Nonce          uint64            `json:"nonce"`
	BalanceReserve string            `json:"balanceReserve"`
	Assets         map[string]string `json:"assets,omitempty"`
}

func accountToBlob(acct *types.Account) accountBlob {
	acct = acct.Normalize()
	blob := accountBlob{
		Nonce:          acct.Nonce,
		BalanceReserve: acct.BalanceReserve.String(),
	}
	if len(acct.Assets) > 0 {
		blob.Assets = make(map[string]string, len(acct.Assets))
		for id, bal := range acct.Assets {
			if bal != nil && bal.Sign() != 0 {
				blob.Assets[hexKey(id[:])] = bal.String()
			}
		}
	}
	return blob
}

func accountFromBlob(raw []byte) (*types.Account, error) {
	var blob accountBlob
	if err := json.Unmarshal(raw, &blob); err != nil {
		return nil, fmt.Errorf("state: decode account: %w", err)
	}
	acct := types.NewAccount()
	acct.Nonce = blob.Nonce
	if blob.BalanceReserve != "" {
		bal, ok := new(big.Int).SetString(blob.BalanceReserve, 10)
		if !ok {
			return nil, fmt.Errorf("state: malformed balance %q", blob.BalanceReserve)
		}
		acct.BalanceReserve = bal
	}
	for idHex, balStr := range blob.Assets {
		id, err := hexHash(idHex)
		if err != nil {
			return nil, err
		}
		bal, ok := new(big.Int).SetString(balStr, 10)
		if !ok {
			return nil, fmt.Errorf("state: malformed asset balance %q", balStr)
		}
		acct.Assets[id] = bal
	}
	return acct, nil
}

type poolBlob struct {
	Ref           string `json:"ref"`
	AssetID       string `json:"assetId"`
	AssetAmount   uint64 `json:"assetAmount"`
	ReserveAmount uint64 `json:"reserveAmount"`
	OpenTime      int64  `json:"openTime"`
}

func poolToBlob(pool *PoolRecord) poolBlob {
	return poolBlob{
		Ref:           hexKey(pool.Ref[:]),
		AssetID:       hexKey(pool.AssetID[:]),
		AssetAmount:   pool.AssetAmount,
		ReserveAmount: pool.ReserveAmount,
		OpenTime:      pool.OpenTime,
	}
}

func poolFromBlob(raw []byte) (*PoolRecord, error) {
	var blob poolBlob
	if err := json.Unmarshal(raw, &blob); err != nil {
		return nil, fmt.Errorf("state: decode pool: %w", err)
	}
	ref, err := hexHash(blob.Ref)
	if err != nil {
		return nil, err
	}
	assetID, err := hexHash(blob.AssetID)
	if err != nil {
		return nil, err
	}
	return &PoolRecord{
		Ref:           ref,
		AssetID:       assetID,
		AssetAmount:   blob.AssetAmount,
		ReserveAmount: blob.ReserveAmount,
		OpenTime:      blob.OpenTime,
	}, nil
}
