package rpc

import (
	"encoding/json"
	"fmt"
	"sort"

	"launchpad/native/fees"
	"launchpad/native/launch"
)

func (s *Server) dispatch(method string, params []json.RawMessage) (interface{}, *RPCError) {
	switch method {
	case "launchpad_initialize":
		return s.handleInitialize(params)
	case "launchpad_updateFees":
		return s.handleUpdateFees(params)
	case "launchpad_createSale":
		return s.handleCreateSale(params)
	case "launchpad_buy":
		return s.handleBuy(params)
	case "launchpad_sell":
		return s.handleSell(params)
	case "launchpad_migrate":
		return s.handleMigrate(params)
	case "launchpad_getPlatform":
		return s.handleGetPlatform()
	case "launchpad_getSale":
		return s.handleGetSale(params)
	case "launchpad_listSales":
		return s.handleListSales()
	case "launchpad_quoteBuy":
		return s.handleQuote(params, true)
	case "launchpad_quoteSell":
		return s.handleQuote(params, false)
	default:
		return nil, &RPCError{Code: codeMethodNotFound, Message: fmt.Sprintf("method %q not found", method)}
	}
}

func decodeParams(params []json.RawMessage, dst interface{}) *RPCError {
	if len(params) != 1 {
		return &RPCError{Code: codeInvalidParams, Message: "expected a single params object"}
	}
	if err := json.Unmarshal(params[0], dst); err != nil {
		return &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
	}
	return nil
}

func invalidParams(err error) *RPCError {
	return &RPCError{Code: codeInvalidParams, Message: err.Error()}
}

func (s *Server) handleInitialize(params []json.RawMessage) (interface{}, *RPCError) {
	var p initializeParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	admin, err := parseAddress(p.Admin)
	if err != nil {
		return nil, invalidParams(err)
	}
	feeVault, err := parseAddress(p.FeeVault)
	if err != nil {
		return nil, invalidParams(err)
	}
	var cfg *launch.PlatformConfig
	unitErr := s.manager.WithinUnit(func() error {
		var err error
		cfg, err = s.engine.InitializePlatform(admin, feeVault, p.ListingFee, p.TradingFeeBps, p.MigrationFee)
		return err
	})
	if unitErr != nil {
		return nil, errToRPC(unitErr)
	}
	return platformResult(cfg), nil
}

func (s *Server) handleUpdateFees(params []json.RawMessage) (interface{}, *RPCError) {
	var p updateFeesParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	caller, err := parseAddress(p.Caller)
	if err != nil {
		return nil, invalidParams(err)
	}
	var cfg *launch.PlatformConfig
	unitErr := s.manager.WithinUnit(func() error {
		var err error
		cfg, err = s.engine.UpdatePlatformFees(caller, p.ListingFee, p.TradingFeeBps, p.MigrationFee)
		return err
	})
	if unitErr != nil {
		return nil, errToRPC(unitErr)
	}
	return platformResult(cfg), nil
}

func (s *Server) handleCreateSale(params []json.RawMessage) (interface{}, *RPCError) {
	var p createSaleParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	creator, err := parseAddress(p.Creator)
	if err != nil {
		return nil, invalidParams(err)
	}
	kind, err := parseCurveKind(p.Curve)
	if err != nil {
		return nil, invalidParams(err)
	}
	args := launch.CreateSaleArgs{
		Metadata:       launch.TokenMetadata{Name: p.Name, Symbol: p.Symbol, URI: p.URI},
		Kind:           kind,
		TotalSupply:    p.TotalSupply,
		StartMarketCap: p.StartMarketCap,
		EndMarketCap:   p.EndMarketCap,
		Slope:          p.Slope,
		BasePerMillion: p.BasePerMillion,
		MaxPerMillion:  p.MaxPerMillion,
		TargetReserve:  p.TargetReserve,
		ThresholdUnits: p.ThresholdUnits,
		Nonce:          p.Nonce,
	}
	var sale *launch.SaleRecord
	unitErr := s.manager.WithinUnit(func() error {
		var err error
		sale, err = s.engine.CreateSale(creator, args)
		return err
	})
	if unitErr != nil {
		return nil, errToRPC(unitErr)
	}
	return saleResult(sale, args.Metadata), nil
}

func (s *Server) handleBuy(params []json.RawMessage) (interface{}, *RPCError) {
	var p tradeParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	assetID, err := parseHash(p.AssetID)
	if err != nil {
		return nil, invalidParams(err)
	}
	buyer, err := parseAddress(p.Trader)
	if err != nil {
		return nil, invalidParams(err)
	}
	var receipt *launch.Purchase
	unitErr := s.manager.WithinUnit(func() error {
		var err error
		receipt, err = s.engine.Buy(assetID, buyer, p.Units, p.Limit)
		return err
	})
	if unitErr != nil {
		return nil, errToRPC(unitErr)
	}
	result := TradeResult{
		AssetID:       hexHash(receipt.AssetID),
		Trader:        hexAddress(receipt.Buyer),
		Side:          "buy",
		Units:         receipt.Units,
		Gross:         receipt.Cost,
		Fee:           receipt.Fee,
		Total:         receipt.Total,
		UnitsSold:     receipt.UnitsSold,
		ReserveRaised: receipt.ReserveRaised,
		Migrated:      receipt.Migrated,
	}
	if receipt.Migrated {
		result.PoolRef = hexHash(receipt.PoolRef)
	}
	return result, nil
}

func (s *Server) handleSell(params []json.RawMessage) (interface{}, *RPCError) {
	var p tradeParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	assetID, err := parseHash(p.AssetID)
	if err != nil {
		return nil, invalidParams(err)
	}
	seller, err := parseAddress(p.Trader)
	if err != nil {
		return nil, invalidParams(err)
	}
	var receipt *launch.Redemption
	unitErr := s.manager.WithinUnit(func() error {
		var err error
		receipt, err = s.engine.Sell(assetID, seller, p.Units, p.Limit)
		return err
	})
	if unitErr != nil {
		return nil, errToRPC(unitErr)
	}
	return TradeResult{
		AssetID:       hexHash(receipt.AssetID),
		Trader:        hexAddress(receipt.Seller),
		Side:          "sell",
		Units:         receipt.Units,
		Gross:         receipt.Gross,
		Fee:           receipt.Fee,
		Total:         receipt.Net,
		UnitsSold:     receipt.UnitsSold,
		ReserveRaised: receipt.ReserveRaised,
	}, nil
}

func (s *Server) handleMigrate(params []json.RawMessage) (interface{}, *RPCError) {
	var p migrateParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	assetID, err := parseHash(p.AssetID)
	if err != nil {
		return nil, invalidParams(err)
	}
	caller, err := parseAddress(p.Caller)
	if err != nil {
		return nil, invalidParams(err)
	}
	var migration *launch.Migration
	unitErr := s.manager.WithinUnit(func() error {
		var err error
		migration, err = s.engine.Migrate(assetID, caller, p.OpenTime)
		return err
	})
	if unitErr != nil {
		return nil, errToRPC(unitErr)
	}
	return migrationResult(migration), nil
}

func (s *Server) handleGetPlatform() (interface{}, *RPCError) {
	cfg, ok := s.manager.GetPlatform()
	if !ok {
		return nil, errToRPC(launch.ErrPlatformNotFound)
	}
	return platformResult(cfg), nil
}

func (s *Server) handleGetSale(params []json.RawMessage) (interface{}, *RPCError) {
	var p assetParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	assetID, err := parseHash(p.AssetID)
	if err != nil {
		return nil, invalidParams(err)
	}
	sale, ok := s.manager.GetSale(assetID)
	if !ok {
		return nil, errToRPC(launch.ErrSaleNotFound)
	}
	meta, _ := s.manager.Metadata(assetID)
	return saleResult(sale, meta), nil
}

func (s *Server) handleListSales() (interface{}, *RPCError) {
	sales := s.manager.ListSales()
	sort.Slice(sales, func(i, j int) bool { return sales[i].CreatedAt < sales[j].CreatedAt })
	results := make([]SaleResult, 0, len(sales))
	for _, sale := range sales {
		meta, _ := s.manager.Metadata(sale.AssetID)
		results = append(results, saleResult(sale, meta))
	}
	return results, nil
}

func (s *Server) handleQuote(params []json.RawMessage, buy bool) (interface{}, *RPCError) {
	var p assetParams
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	assetID, err := parseHash(p.AssetID)
	if err != nil {
		return nil, invalidParams(err)
	}
	var quote fees.Quote
	unitErr := s.manager.WithinUnit(func() error {
		var err error
		if buy {
			quote, err = s.engine.QuoteBuy(assetID, p.Units)
		} else {
			quote, err = s.engine.QuoteSell(assetID, p.Units)
		}
		return err
	})
	if unitErr != nil {
		return nil, errToRPC(unitErr)
	}
	if buy {
		return buyQuoteResult(quote), nil
	}
	return sellQuoteResult(quote), nil
}
