package wallet

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// Config controls where a Wallet keeps its encrypted snapshot and which
// single mint it talks to. Cashu wallets in this package are bound to one
// mint for their whole lifetime; switching mints means opening a new Wallet
// against a new WalletDir.
type Config struct {
	WalletDir string
	MintURL   string
	Unit      string
}

// LoadConfig reads NUTCASE_WALLET_DIR, NUTCASE_MINT_URL and NUTCASE_UNIT from
// the environment, loading a .env file from the current directory first if
// one is present. Values passed in overrides take precedence over both.
func LoadConfig(overrides Config) (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		WalletDir: firstNonEmpty(overrides.WalletDir, os.Getenv("NUTCASE_WALLET_DIR")),
		MintURL:   firstNonEmpty(overrides.MintURL, os.Getenv("NUTCASE_MINT_URL")),
		Unit:      firstNonEmpty(overrides.Unit, os.Getenv("NUTCASE_UNIT"), "sat"),
	}

	if cfg.WalletDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Config{}, fmt.Errorf("wallet: LoadConfig: resolving home directory: %w", err)
		}
		cfg.WalletDir = filepath.Join(home, ".nutcase-wallet")
	}

	if cfg.MintURL == "" {
		return Config{}, fmt.Errorf("wallet: LoadConfig: mint URL not set: pass it explicitly or set NUTCASE_MINT_URL")
	}

	return cfg, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
