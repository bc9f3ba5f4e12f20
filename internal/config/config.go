package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"honestledger/internal/fixed"
)

// AssetConfig describes one basket asset. Decimals of zero are looked up
// from the token contract when an RPC endpoint is configured.
type AssetConfig struct {
	Address     string `mapstructure:"address"`
	Symbol      string `mapstructure:"symbol"`
	Decimals    uint8  `mapstructure:"decimals"`
	Integration string `mapstructure:"integration"`
	Feed        string `mapstructure:"feed"`
	Price       string `mapstructure:"price"`
}

// Accounts are the addresses the ledger components act as.
type Accounts struct {
	Pegged      string `mapstructure:"pegged"`
	Vault       string `mapstructure:"vault"`
	Manager     string `mapstructure:"manager"`
	Savings     string `mapstructure:"savings"`
	Fee         string `mapstructure:"fee"`
	Integration string `mapstructure:"integration"`
}

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	StateFile      string
	JournalFile    string
	PostgresDSN    string
	LedgerName     string
	RPCURL         string
	Caller         string
	Governors      []string
	Accounts       Accounts
	Assets         []AssetConfig
	SwapFeeRate    string
	RedeemFeeRate  string
	ClaimableRatio string
	PriceCacheTTL  time.Duration
	PriceMaxAge    time.Duration
	MaxRetries     int
	RetryBackoff   time.Duration
	LogLevel       string
	LogFile        string
	MetricsFile    string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HONEST")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault("state", "./data/ledger.json")
	v.SetDefault("journal", "./data/journal.jsonl")
	v.SetDefault("ledger", "default")
	v.SetDefault("swap-fee-rate", "0.01")
	v.SetDefault("redeem-fee-rate", "0.01")
	v.SetDefault("claimable-ratio", "0.8")
	v.SetDefault("price-cache-ttl", 30*time.Second)
	v.SetDefault("price-max-age", time.Hour)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("log-level", "info")
	for _, name := range []string{"pegged", "vault", "manager", "savings", "fee", "integration"} {
		v.SetDefault("accounts."+name, SystemAddress(name).Hex())
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("honest")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		StateFile:      v.GetString("state"),
		JournalFile:    v.GetString("journal"),
		PostgresDSN:    v.GetString("postgres-dsn"),
		LedgerName:     v.GetString("ledger"),
		RPCURL:         v.GetString("rpc"),
		Caller:         v.GetString("from"),
		Governors:      getStringSlice(v, "governors"),
		SwapFeeRate:    v.GetString("swap-fee-rate"),
		RedeemFeeRate:  v.GetString("redeem-fee-rate"),
		ClaimableRatio: v.GetString("claimable-ratio"),
		PriceCacheTTL:  v.GetDuration("price-cache-ttl"),
		PriceMaxAge:    v.GetDuration("price-max-age"),
		MaxRetries:     v.GetInt("max-retries"),
		RetryBackoff:   v.GetDuration("retry-backoff"),
		LogLevel:       v.GetString("log-level"),
		LogFile:        v.GetString("log-file"),
		MetricsFile:    v.GetString("metrics-file"),
		Accounts: Accounts{
			Pegged:      v.GetString("accounts.pegged"),
			Vault:       v.GetString("accounts.vault"),
			Manager:     v.GetString("accounts.manager"),
			Savings:     v.GetString("accounts.savings"),
			Fee:         v.GetString("accounts.fee"),
			Integration: v.GetString("accounts.integration"),
		},
	}
	if err := v.UnmarshalKey("assets", &cfg.Assets); err != nil {
		return Config{}, fmt.Errorf("decode assets: %w", err)
	}

	return cfg, nil
}

// FeeSettings parses the configured rates as 18-decimal fractions.
func (c Config) FeeSettings() (swap, redeem, ratio *big.Int, err error) {
	if swap, err = fixed.ParseUnits(c.SwapFeeRate, 18); err != nil {
		return nil, nil, nil, fmt.Errorf("parse swap-fee-rate: %w", err)
	}
	if redeem, err = fixed.ParseUnits(c.RedeemFeeRate, 18); err != nil {
		return nil, nil, nil, fmt.Errorf("parse redeem-fee-rate: %w", err)
	}
	if ratio, err = fixed.ParseUnits(c.ClaimableRatio, 18); err != nil {
		return nil, nil, nil, fmt.Errorf("parse claimable-ratio: %w", err)
	}
	return swap, redeem, ratio, nil
}

// FindAsset matches an asset by address or symbol, ignoring case.
func (c Config) FindAsset(key string) (AssetConfig, bool) {
	key = strings.TrimSpace(key)
	for _, a := range c.Assets {
		if strings.EqualFold(a.Address, key) || (a.Symbol != "" && strings.EqualFold(a.Symbol, key)) {
			return a, true
		}
	}
	return AssetConfig{}, false
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
