package launch

import (
	"encoding/hex"
	"strconv"

	"launchpad/core/events"
)

// Event types emitted by the sale engine.
const (
	EventTypePlatformInitialized = "launchpad.platform.initialized"
	EventTypeSaleCreated         = "launchpad.sale.created"
	EventTypeSalePurchased       = "launchpad.sale.purchased"
	EventTypeSaleSold            = "launchpad.sale.sold"
	EventTypeSaleMigrated        = "launchpad.sale.migrated"
)

func hexBytes(b []byte) string { return "0x" + hex.EncodeToString(b) }

func platformInitializedEvent(cfg *PlatformConfig) events.Event {
	return events.Event{
		Type: EventTypePlatformInitialized,
		Attributes: map[string]string{
			"admin":         hexBytes(cfg.Admin[:]),
			"feeVault":      hexBytes(cfg.FeeVault[:]),
			"listingFee":    strconv.FormatUint(cfg.ListingFee, 10),
			"tradingFeeBps": strconv.FormatUint(uint64(cfg.TradingFeeBps), 10),
			"migrationFee":  strconv.FormatUint(cfg.MigrationFee, 10),
		},
	}
}

func saleCreatedEvent(sale *SaleRecord, meta TokenMetadata) events.Event {
	return events.Event{
		Type: EventTypeSaleCreated,
		Attributes: map[string]string{
			"assetId":     hexBytes(sale.AssetID[:]),
			"creator":     hexBytes(sale.Creator[:]),
			"symbol":      meta.Symbol,
			"name":        meta.Name,
			"curve":       sale.Kind.String(),
			"totalSupply": strconv.FormatUint(sale.TotalSupply, 10),
			"basePrice":   strconv.FormatUint(sale.BasePrice, 10),
		},
	}
}

func salePurchasedEvent(sale *SaleRecord, receipt *Purchase) events.Event {
	return events.Event{
		Type: EventTypeSalePurchased,
		Attributes: map[string]string{
			"assetId":       hexBytes(sale.AssetID[:]),
			"buyer":         hexBytes(receipt.Buyer[:]),
			"units":         strconv.FormatUint(receipt.Units, 10),
			"cost":          strconv.FormatUint(receipt.Cost, 10),
			"fee":           strconv.FormatUint(receipt.Fee, 10),
			"unitsSold":     strconv.FormatUint(receipt.UnitsSold, 10),
			"reserveRaised": strconv.FormatUint(receipt.ReserveRaised, 10),
		},
	}
}

func saleSoldEvent(sale *SaleRecord, receipt *Redemption) events.Event {
	return events.Event{
		Type: EventTypeSaleSold,
		Attributes: map[string]string{
			"assetId":       hexBytes(sale.AssetID[:]),
			"seller":        hexBytes(receipt.Seller[:]),
			"units":         strconv.FormatUint(receipt.Units, 10),
			"gross":         strconv.FormatUint(receipt.Gross, 10),
			"fee":           strconv.FormatUint(receipt.Fee, 10),
			"net":           strconv.FormatUint(receipt.Net, 10),
			"unitsSold":     strconv.FormatUint(receipt.UnitsSold, 10),
			"reserveRaised": strconv.FormatUint(receipt.ReserveRaised, 10),
		},
	}
}

func saleMigratedEvent(sale *SaleRecord, migration *Migration) events.Event {
	return events.Event{
		Type: EventTypeSaleMigrated,
		Attributes: map[string]string{
			"assetId":       hexBytes(sale.AssetID[:]),
			"poolRef":       hexBytes(migration.PoolRef[:]),
			"assetAmount":   strconv.FormatUint(migration.AssetAmount, 10),
			"reserveAmount": strconv.FormatUint(migration.ReserveAmount, 10),
			"feePaid":       strconv.FormatUint(migration.FeePaid, 10),
			"openTime":      strconv.FormatInt(migration.MigrationTime, 10),
		},
	}
}
