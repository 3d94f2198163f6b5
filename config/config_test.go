package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != ":8545" || cfg.History.Driver != "sqlite" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default file not written: %v", err)
	}
}

func TestLoadParsesPlatformSeed(t *testing.T) {
	path := writeConfig(t, `
RPCAddress = ":9000"

[Platform]
Admin = "0x00000000000000000000000000000000000000aa"
FeeVault = "0x00000000000000000000000000000000000000fe"
ListingFee = 1000
TradingFeeBps = 150
MigrationFee = 500
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	admin, vault, ok, err := cfg.PlatformSeed()
	if err != nil || !ok {
		t.Fatalf("seed: ok=%v err=%v", ok, err)
	}
	if admin[19] != 0xAA || vault[19] != 0xFE {
		t.Fatalf("addresses misparsed: %x %x", admin, vault)
	}
	if cfg.RPCAddress != ":9000" {
		t.Fatalf("RPCAddress = %q", cfg.RPCAddress)
	}
}

func TestLoadRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"excessive bps", "[Platform]\nTradingFeeBps = 1001\n"},
		{"bad admin", "[Platform]\nAdmin = \"nope\"\nFeeVault = \"0x00000000000000000000000000000000000000fe\"\n"},
		{"bad history driver", "[History]\nDriver = \"mysql\"\n"},
		{"bad genesis address", "[[Genesis.Accounts]]\nAddress = \"xyz\"\nBalance = 10\n"},
	}
	for _, tc := range cases {
		if _, err := Load(writeConfig(t, tc.body)); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestPlatformSeedAbsent(t *testing.T) {
	cfg := defaultConfig()
	if _, _, ok, err := cfg.PlatformSeed(); ok || err != nil {
		t.Fatalf("empty seed should be ok=false err=nil, got %v %v", ok, err)
	}
}
