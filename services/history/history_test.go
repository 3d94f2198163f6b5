package history

import (
	"testing"

	"github.com/stretchr/testify/require"

	"launchpad/core/events"
	"launchpad/native/launch"
)

func openTestDB(t *testing.T) *Recorder {
	t.Helper()
	db, err := Open("sqlite", ":memory:")
	require.NoError(t, err)
	return NewRecorder(db, nil)
}

func TestRecorderIndexesSaleAndTrades(t *testing.T) {
	rec := openTestDB(t)

	rec.Emit(events.Event{
		Type: launch.EventTypeSaleCreated,
		Attributes: map[string]string{
			"assetId":     "0x01",
			"creator":     "0xc0",
			"symbol":      "FLAT",
			"name":        "Flat Coin",
			"curve":       "linear",
			"totalSupply": "1000",
			"basePrice":   "50",
		},
	})
	rec.Emit(events.Event{
		Type: launch.EventTypeSalePurchased,
		Attributes: map[string]string{
			"assetId":       "0x01",
			"buyer":         "0xb0",
			"units":         "100000000000",
			"cost":          "5000",
			"fee":           "50",
			"unitsSold":     "100000000000",
			"reserveRaised": "5000",
		},
	})
	rec.Emit(events.Event{
		Type: launch.EventTypeSaleSold,
		Attributes: map[string]string{
			"assetId":       "0x01",
			"seller":        "0xb0",
			"units":         "40000000000",
			"gross":         "1900",
			"fee":           "19",
			"unitsSold":     "60000000000",
			"reserveRaised": "3100",
		},
	})

	var sales []Sale
	require.NoError(t, rec.db.Find(&sales).Error)
	require.Len(t, sales, 1)
	require.Equal(t, "FLAT", sales[0].Symbol)
	require.Equal(t, uint64(50), sales[0].BasePrice)

	var trades []Trade
	require.NoError(t, rec.db.Order("side").Find(&trades).Error)
	require.Len(t, trades, 2)
	require.Equal(t, "buy", trades[0].Side)
	require.Equal(t, uint64(5000), trades[0].Gross)
	require.Equal(t, "0xb0", trades[0].Trader)
	require.Equal(t, "sell", trades[1].Side)
	require.Equal(t, uint64(1900), trades[1].Gross)
	require.Equal(t, uint64(19), trades[1].Fee)
}

func TestRecorderIndexesMigrations(t *testing.T) {
	rec := openTestDB(t)
	rec.Emit(events.Event{
		Type: launch.EventTypeSaleMigrated,
		Attributes: map[string]string{
			"assetId":       "0x01",
			"poolRef":       "0x70",
			"assetAmount":   "400000000000",
			"reserveAmount": "29950",
			"feePaid":       "50",
			"openTime":      "1700000000",
		},
	})
	var rows []Migration
	require.NoError(t, rec.db.Find(&rows).Error)
	require.Len(t, rows, 1)
	require.Equal(t, uint64(29950), rows[0].ReserveAmount)
	require.Equal(t, int64(1700000000), rows[0].OpenTime)
}

func TestRecorderIgnoresUnknownEvents(t *testing.T) {
	rec := openTestDB(t)
	rec.Emit(events.Event{Type: "launchpad.platform.initialized"})
	var trades []Trade
	require.NoError(t, rec.db.Find(&trades).Error)
	require.Empty(t, trades)
}
