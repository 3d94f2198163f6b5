package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"launchpad/native/fees"
	"launchpad/native/launch"
)

// Config is the top-level daemon configuration.
type Config struct {
	RPCAddress  string `toml:"RPCAddress"`
	DataDir     string `toml:"DataDir"`
	Environment string `toml:"Environment"`

	// RateLimitRPS bounds mutating JSON-RPC calls per client; zero
	// disables the limiter.
	RateLimitRPS   float64 `toml:"RateLimitRPS"`
	RateLimitBurst int     `toml:"RateLimitBurst"`

	Log      Log      `toml:"Log"`
	Platform Platform `toml:"Platform"`
	History  History  `toml:"History"`
	Genesis  Genesis  `toml:"Genesis"`
}

// Log configures structured logging output.
type Log struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
}

// Platform seeds the singleton platform configuration on first boot. It is
// ignored once the platform exists in state.
type Platform struct {
	Admin         string `toml:"Admin"`
	FeeVault      string `toml:"FeeVault"`
	ListingFee    uint64 `toml:"ListingFee"`
	TradingFeeBps uint32 `toml:"TradingFeeBps"`
	MigrationFee  uint64 `toml:"MigrationFee"`
}

// History configures the trade history indexer.
type History struct {
	Enabled bool   `toml:"Enabled"`
	Driver  string `toml:"Driver"`
	DSN     string `toml:"DSN"`
}

// Genesis funds reserve accounts on an empty database.
type Genesis struct {
	Accounts []GenesisAccount `toml:"Accounts"`
}

// GenesisAccount is one funded address.
type GenesisAccount struct {
	Address string `toml:"Address"`
	Balance uint64 `toml:"Balance"`
}

// Load reads the configuration at path, creating a commented default file
// when none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := defaultConfig()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		RPCAddress:     ":8545",
		DataDir:        "./launchpad-data",
		Environment:    "local",
		RateLimitRPS:   10,
		RateLimitBurst: 20,
		Log:            Log{Level: "info", MaxSizeMB: 100, MaxBackups: 3},
		Platform: Platform{
			ListingFee:    0,
			TradingFeeBps: 100,
			MigrationFee:  0,
		},
		History: History{Enabled: false, Driver: "sqlite", DSN: "launchpad-history.db"},
	}
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.RPCAddress) == "" {
		c.RPCAddress = ":8545"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./launchpad-data"
	}
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = "local"
	}
	if strings.TrimSpace(c.History.Driver) == "" {
		c.History.Driver = "sqlite"
	}
	if c.RateLimitBurst == 0 && c.RateLimitRPS > 0 {
		c.RateLimitBurst = int(c.RateLimitRPS) * 2
	}
}

// Validate rejects configurations the daemon cannot start with.
func (c *Config) Validate() error {
	if err := fees.ValidateTradingFeeBps(c.Platform.TradingFeeBps); err != nil {
		return err
	}
	if c.Platform.MigrationFee > launch.MaxMigrationFee {
		return fmt.Errorf("config: Platform.MigrationFee exceeds %d", launch.MaxMigrationFee)
	}
	if c.Platform.Admin != "" {
		if _, err := ParseAddress(c.Platform.Admin); err != nil {
			return fmt.Errorf("config: Platform.Admin: %w", err)
		}
	}
	if c.Platform.FeeVault != "" {
		if _, err := ParseAddress(c.Platform.FeeVault); err != nil {
			return fmt.Errorf("config: Platform.FeeVault: %w", err)
		}
	}
	for i, acct := range c.Genesis.Accounts {
		if _, err := ParseAddress(acct.Address); err != nil {
			return fmt.Errorf("config: Genesis.Accounts[%d]: %w", i, err)
		}
	}
	switch strings.ToLower(strings.TrimSpace(c.History.Driver)) {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config: History.Driver %q is not sqlite or postgres", c.History.Driver)
	}
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("config: RateLimitRPS must not be negative")
	}
	return nil
}

// PlatformSeed converts the [Platform] section into engine parameters.
// The boolean is false when no seed is configured.
func (c *Config) PlatformSeed() (admin, feeVault [20]byte, ok bool, err error) {
	if strings.TrimSpace(c.Platform.Admin) == "" || strings.TrimSpace(c.Platform.FeeVault) == "" {
		return admin, feeVault, false, nil
	}
	admin, err = ParseAddress(c.Platform.Admin)
	if err != nil {
		return admin, feeVault, false, err
	}
	feeVault, err = ParseAddress(c.Platform.FeeVault)
	if err != nil {
		return admin, feeVault, false, err
	}
	return admin, feeVault, true, nil
}

// ParseAddress decodes a 0x-prefixed 20-byte hex address.
func ParseAddress(s string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("malformed address %q", s)
	}
	if len(raw) != len(addr) {
		return addr, fmt.Errorf("address %q is not 20 bytes", s)
	}
	copy(addr[:], raw)
	return addr, nil
}

func createDefault(path string) (*Config, error) {
	cfg := defaultConfig()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}
