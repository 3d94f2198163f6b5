// Package history indexes engine events into a relational store so UIs and
// analytics can query trades without replaying the chain of record.
package history

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"launchpad/core/events"
	"launchpad/native/launch"
)

// Trade is one executed buy or sell.
type Trade struct {
	ID            string `gorm:"type:uuid;primaryKey"`
	AssetID       string `gorm:"index;size:66"`
	Side          string `gorm:"size:4"`
	Trader        string `gorm:"index;size:42"`
	Units         uint64
	Gross         uint64
	Fee           uint64
	UnitsSold     uint64
	ReserveRaised uint64
	CreatedAt     time.Time
}

// Sale is one opened sale.
type Sale struct {
	ID          string `gorm:"type:uuid;primaryKey"`
	AssetID     string `gorm:"uniqueIndex;size:66"`
	Creator     string `gorm:"index;size:42"`
	Symbol      string `gorm:"size:32"`
	Name        string `gorm:"size:128"`
	Curve       string `gorm:"size:16"`
	TotalSupply uint64
	BasePrice   uint64
	CreatedAt   time.Time
}

// Migration is one graduation.
type Migration struct {
	ID            string `gorm:"type:uuid;primaryKey"`
	AssetID       string `gorm:"uniqueIndex;size:66"`
	PoolRef       string `gorm:"size:66"`
	AssetAmount   uint64
	ReserveAmount uint64
	FeePaid       uint64
	OpenTime      int64
	CreatedAt     time.Time
}

// Open connects to the configured database and migrates the schema. Driver
// is "sqlite" or "postgres".
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("history: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", driver, err)
	}
	if err := db.AutoMigrate(&Trade{}, &Sale{}, &Migration{}); err != nil {
		return nil, fmt.Errorf("history: migrate schema: %w", err)
	}
	return db, nil
}

// Recorder consumes engine events and writes them to the store. Indexing is
// best effort: a write failure is logged and never propagates back into the
// trade that produced the event.
type Recorder struct {
	db     *gorm.DB
	logger *slog.Logger
	nowFn  func() time.Time
}

// NewRecorder wraps db as an event consumer.
func NewRecorder(db *gorm.DB, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{db: db, logger: logger, nowFn: time.Now}
}

var _ events.Emitter = (*Recorder)(nil)

// Emit implements events.Emitter.
func (r *Recorder) Emit(evt events.Event) {
	if r == nil || r.db == nil {
		return
	}
	var err error
	switch evt.Type {
	case launch.EventTypeSaleCreated:
		err = r.recordSale(evt)
	case launch.EventTypeSalePurchased:
		err = r.recordTrade(evt, "buy")
	case launch.EventTypeSaleSold:
		err = r.recordTrade(evt, "sell")
	case launch.EventTypeSaleMigrated:
		err = r.recordMigration(evt)
	default:
		return
	}
	if err != nil {
		r.logger.Error("history write failed", "event", evt.Type, "error", err)
	}
}

func (r *Recorder) recordSale(evt events.Event) error {
	row := &Sale{
		ID:          uuid.NewString(),
		AssetID:     evt.Attributes["assetId"],
		Creator:     evt.Attributes["creator"],
		Symbol:      evt.Attributes["symbol"],
		Name:        evt.Attributes["name"],
		Curve:       evt.Attributes["curve"],
		TotalSupply: attrUint(evt, "totalSupply"),
		BasePrice:   attrUint(evt, "basePrice"),
		CreatedAt:   r.nowFn(),
	}
	return r.db.Create(row).Error
}

func (r *Recorder) recordTrade(evt events.Event, side string) error {
	row := &Trade{
		ID:            uuid.NewString(),
		AssetID:       evt.Attributes["assetId"],
		Side:          side,
		UnitsSold:     attrUint(evt, "unitsSold"),
		ReserveRaised: attrUint(evt, "reserveRaised"),
		Units:         attrUint(evt, "units"),
		Fee:           attrUint(evt, "fee"),
		CreatedAt:     r.nowFn(),
	}
	if side == "buy" {
		row.Trader = evt.Attributes["buyer"]
		row.Gross = attrUint(evt, "cost")
	} else {
		row.Trader = evt.Attributes["seller"]
		row.Gross = attrUint(evt, "gross")
	}
	return r.db.Create(row).Error
}

func (r *Recorder) recordMigration(evt events.Event) error {
	row := &Migration{
		ID:            uuid.NewString(),
		AssetID:       evt.Attributes["assetId"],
		PoolRef:       evt.Attributes["poolRef"],
		AssetAmount:   attrUint(evt, "assetAmount"),
		ReserveAmount: attrUint(evt, "reserveAmount"),
		FeePaid:       attrUint(evt, "feePaid"),
		OpenTime:      attrInt(evt, "openTime"),
		CreatedAt:     r.nowFn(),
	}
	return r.db.Create(row).Error
}

func attrUint(evt events.Event, key string) uint64 {
	v, err := strconv.ParseUint(evt.Attributes[key], 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func attrInt(evt events.Event, key string) int64 {
	v, err := strconv.ParseInt(evt.Attributes[key], 10, 64)
	if err != nil {
		return 0
	}
	return v
}
