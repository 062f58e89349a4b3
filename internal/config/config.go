// Package config centralises every environment-driven setting into a
// single immutable value built once at startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Endpoint is one RPC endpoint entry from rpc_endpoints config.
type Endpoint struct {
	URL    string
	Weight int // 1..100
	Label  string
}

// ServiceDirectory maps a human label to the set of addresses for that
// service, e.g. "Wormhole" -> {...}. May be empty.
type ServiceDirectory map[string][]string

// Config is the engine's single immutable configuration value.
type Config struct {
	RPCEndpoints []Endpoint

	KnownExchangeAddresses []string
	JitoTipAccounts        []string

	CEXDepositAddresses  ServiceDirectory
	SwapServiceAddresses ServiceDirectory
	MixerAddresses       ServiceDirectory
	BridgeAddresses      ServiceDirectory

	OfficialTokenMintAddress string // optional

	AnalysisTimeout       time.Duration
	DeduplicationWindow   time.Duration
	BackoffBase           time.Duration
	BackoffMax            time.Duration
	Jitter                float64

	DBPath string // cache store (auto-exchange log + oracle cache)
}

// Load builds a Config from the environment, falling back to built-in
// defaults. A local .env file is loaded if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		RPCEndpoints: parseEndpoints(envOr("RPC_ENDPOINTS", defaultEndpoints)),

		KnownExchangeAddresses: splitTrim(os.Getenv("KNOWN_EXCHANGE_ADDRESSES")),
		JitoTipAccounts:        splitTrim(envOr("JITO_TIP_ACCOUNTS", defaultJitoTipAccounts)),

		CEXDepositAddresses:  defaultCEXDirectory(),
		SwapServiceAddresses: defaultSwapDirectory(),
		MixerAddresses:       defaultMixerDirectory(),
		BridgeAddresses:      defaultBridgeDirectory(),

		OfficialTokenMintAddress: os.Getenv("OFFICIAL_TOKEN_MINT_ADDRESS"),

		AnalysisTimeout:     time.Duration(envInt("ANALYSIS_TIMEOUT_MS", 30000)) * time.Millisecond,
		DeduplicationWindow: time.Duration(envInt("DEDUPLICATION_WINDOW_MS", 30000)) * time.Millisecond,
		BackoffBase:         time.Duration(envInt("BACKOFF_BASE_MS", 500)) * time.Millisecond,
		BackoffMax:          time.Duration(envInt("BACKOFF_MAX_MS", 30000)) * time.Millisecond,
		Jitter:              envFloat("JITTER", 0.20),

		DBPath: envOr("RISKENGINE_CACHE_DB", "riskengine_cache.db"),
	}

	if len(cfg.RPCEndpoints) == 0 {
		return nil, fmt.Errorf("no RPC endpoints configured")
	}

	return cfg, nil
}

// Validate applies the required-field constraints beyond what Load
// already guarantees.
func (c *Config) Validate() error {
	if len(c.RPCEndpoints) == 0 {
		return fmt.Errorf("rpc_endpoints: required, non-empty")
	}
	if len(c.JitoTipAccounts) == 0 {
		return fmt.Errorf("jito_tip_accounts: required")
	}
	return nil
}

const defaultEndpoints = "https://api.mainnet-beta.solana.com|50|public"

// defaultJitoTipAccounts are the eight well-known Jito block-engine tip
// accounts used to detect bundle/MEV-relay submission.
const defaultJitoTipAccounts = "" +
	"96gYZGLnJYVFmbjzopPSU6QiEV5fGqZNyN9nmNhvrZU5," +
	"HFqU5x63VTqvQss8hp11i4wVV8EaoH9N7JGU3Ce4tf9P," +
	"Cw8CFyM9FkoMi7K7Crf6HNQqf4uEMzpKw6QNghXLvLkY," +
	"ADaUMid9yfUytqMBgopwjb2DTLSokTSzL1zt6iGPaS49," +
	"DfXygSm4jCyNCybVYYK6DwvWqjKee8pbDmJGcLWNDXjh," +
	"ADuUkR4vqLUMWXxW9gh6D6L8pMSawimctcNZ5pGwDcEt," +
	"DttWaMuVvTiduZRnguLF7jNxTgiMBZ1hyAumKUiL2KRL," +
	"3AVi9Tg9Uo68tJfuvoKvqKNWKkC5wuUdyxCVVRcQPdzo"

// parseEndpoints reads "url|weight|label,url|weight|label,..." — pipes,
// not colons, since URLs already contain colons.
func parseEndpoints(spec string) []Endpoint {
	var out []Endpoint
	for _, e := range splitTrim(spec) {
		parts := strings.Split(e, "|")
		ep := Endpoint{URL: parts[0], Weight: 50, Label: "default"}
		if len(parts) >= 2 {
			if w, err := strconv.Atoi(parts[1]); err == nil {
				ep.Weight = w
			}
		}
		if len(parts) >= 3 {
			ep.Label = parts[2]
		}
		out = append(out, ep)
	}
	if len(out) == 0 {
		out = append(out, Endpoint{URL: "https://api.mainnet-beta.solana.com", Weight: 50, Label: "public"})
	}
	return out
}

func defaultCEXDirectory() ServiceDirectory {
	return ServiceDirectory{
		"Coinbase": {"H8sMJSCQxfKiFTCfDR3DUMLPwcRbM61LGFJ8N4dK3WjS"},
		"Binance":  {"5tzFkiKscXHK5ZXCGbXZxdw7gTjjD1mBwuoFbhUvuAi9", "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"},
		"Kraken":   {"FWznbcNXWQuHTawe9RxvQ2LdCENssh12dsznf4RiouN5"},
		"OKX":      {"5VCwKtCXgCJ6kit5FybXjvriW3xELsFDhYrPSqtJNmcD"},
	}
}

func defaultSwapDirectory() ServiceDirectory {
	// Instant-exchange services, HIGH risk tier.
	return ServiceDirectory{
		"Swopshop":    {},
		"FixedFloat":  {"FFixpaKkNRRKmRD1tFGqFrMBF26gKiNaaTPfbSdrFETS", "FFSoLNFqJZuxyaqGG1GXMEfLEVf5pGAfRqVAWfTormYr"},
		"ChangeNOW":   {},
		"SimpleSwap":  {},
		"Godex":       {},
		"StealthEX":   {},
	}
}

func defaultMixerDirectory() ServiceDirectory {
	return ServiceDirectory{}
}

func defaultBridgeDirectory() ServiceDirectory {
	// Cross-chain bridges, MEDIUM risk tier.
	return ServiceDirectory{
		"Wormhole":  {"worm2ZoG2kUd4vFXhvjh93UUH596ayRfgQ2MgjNMTth"},
		"AllBridge": {},
	}
}

// --- generic env helpers ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func splitTrim(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
