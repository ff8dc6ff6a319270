// Package config collects the engine's environment-driven settings.
// Secrets (API keys, DSN credentials) are resolved separately in main via
// Secrets Manager; everything here is plain configuration.
package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/swayfi/dca-engine/internal/constants"
)

// TokenConfig describes one side of the trading pair.
type TokenConfig struct {
	Address  common.Address
	Symbol   string
	Decimals int32
}

// Config is the full engine configuration.
type Config struct {
	Stage string

	RPCURL    string
	ChainID   uint64
	RedisAddr string

	SubmissionMode string
	SettleTimeout  time.Duration

	DelegationManager common.Address
	FeeWallet         common.Address
	RewardPool        common.Address

	// Caveat enforcer contracts.
	TimestampEnforcer      common.Address
	LimitedCallsEnforcer   common.Address
	AllowedTargetsEnforcer common.Address
	AllowedMethodsEnforcer common.Address

	StableToken   TokenConfig
	VolatileToken TokenConfig

	FeeBps              int64
	MinWalletValueCents int64
	MinTradableAmount   *big.Int

	AllowedRouters []common.Address

	QuoterURL    string
	BundlerURL   string
	FearGreedURL string
	ProxySymbol  string

	MaxWallets       int
	InterWalletDelay time.Duration
}

// LoadFromEnv reads and validates the configuration. Missing required
// values are reported together so a misconfigured deploy fails once with
// the full list.
func LoadFromEnv() (*Config, error) {
	var missing []string
	required := func(name string) string {
		v := os.Getenv(name)
		if v == "" {
			missing = append(missing, name)
		}
		return v
	}

	cfg := &Config{
		Stage:        os.Getenv("STAGE"),
		RPCURL:       required("RPC_URL"),
		RedisAddr:    required("REDIS_ADDR"),
		QuoterURL:    required("QUOTER_URL"),
		FearGreedURL: os.Getenv("FEAR_GREED_URL"),
		BundlerURL:   os.Getenv("BUNDLER_URL"),
		ProxySymbol:  envOr("PROXY_SYMBOL", "BTC"),
	}
	if cfg.Stage == "" {
		cfg.Stage = constants.StageLocal
	}

	cfg.SubmissionMode = envOr("SUBMISSION_MODE", constants.DirectSubmission)
	if cfg.SubmissionMode != constants.DirectSubmission && cfg.SubmissionMode != constants.SponsoredSubmission {
		return nil, fmt.Errorf("SUBMISSION_MODE must be %q or %q, got %q",
			constants.DirectSubmission, constants.SponsoredSubmission, cfg.SubmissionMode)
	}
	if cfg.SubmissionMode == constants.SponsoredSubmission && cfg.BundlerURL == "" {
		missing = append(missing, "BUNDLER_URL")
	}

	var err error
	if cfg.ChainID, err = envUint("CHAIN_ID", 8453); err != nil {
		return nil, err
	}
	if cfg.SettleTimeout, err = envDuration("SETTLE_TIMEOUT", 90*time.Second); err != nil {
		return nil, err
	}
	if cfg.InterWalletDelay, err = envDuration("INTER_WALLET_DELAY", 2*time.Second); err != nil {
		return nil, err
	}
	maxWallets, err := envUint("MAX_WALLETS_PER_CYCLE", 100)
	if err != nil {
		return nil, err
	}
	cfg.MaxWallets = int(maxWallets)

	addrs := map[string]*common.Address{
		"DELEGATION_MANAGER_ADDRESS":       &cfg.DelegationManager,
		"FEE_WALLET_ADDRESS":               &cfg.FeeWallet,
		"REWARD_POOL_ADDRESS":              &cfg.RewardPool,
		"TIMESTAMP_ENFORCER_ADDRESS":       &cfg.TimestampEnforcer,
		"LIMITED_CALLS_ENFORCER_ADDRESS":   &cfg.LimitedCallsEnforcer,
		"ALLOWED_TARGETS_ENFORCER_ADDRESS": &cfg.AllowedTargetsEnforcer,
		"ALLOWED_METHODS_ENFORCER_ADDRESS": &cfg.AllowedMethodsEnforcer,
	}
	for name, target := range addrs {
		raw := required(name)
		if raw == "" {
			continue
		}
		if !common.IsHexAddress(raw) {
			return nil, fmt.Errorf("%s is not a valid address: %q", name, raw)
		}
		*target = common.HexToAddress(raw)
	}

	if cfg.StableToken, err = tokenFromEnv("STABLE_TOKEN", &missing); err != nil {
		return nil, err
	}
	if cfg.VolatileToken, err = tokenFromEnv("VOLATILE_TOKEN", &missing); err != nil {
		return nil, err
	}

	feeBps, err := envUint("FEE_BPS", 20)
	if err != nil {
		return nil, err
	}
	cfg.FeeBps = int64(feeBps)
	minValue, err := envUint("MIN_WALLET_VALUE_CENTS", 500)
	if err != nil {
		return nil, err
	}
	cfg.MinWalletValueCents = int64(minValue)

	if raw := os.Getenv("MIN_TRADABLE_AMOUNT"); raw != "" {
		amount, ok := new(big.Int).SetString(raw, 10)
		if !ok {
			return nil, fmt.Errorf("MIN_TRADABLE_AMOUNT is not a valid integer: %q", raw)
		}
		cfg.MinTradableAmount = amount
	}

	routersRaw := required("ALLOWED_ROUTERS")
	for _, entry := range strings.Split(routersRaw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !common.IsHexAddress(entry) {
			return nil, fmt.Errorf("ALLOWED_ROUTERS contains an invalid address: %q", entry)
		}
		cfg.AllowedRouters = append(cfg.AllowedRouters, common.HexToAddress(entry))
	}
	if routersRaw != "" && len(cfg.AllowedRouters) == 0 {
		return nil, fmt.Errorf("ALLOWED_ROUTERS contains no usable addresses: %q", routersRaw)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return cfg, nil
}

func tokenFromEnv(prefix string, missing *[]string) (TokenConfig, error) {
	var t TokenConfig
	addr := os.Getenv(prefix + "_ADDRESS")
	t.Symbol = os.Getenv(prefix + "_SYMBOL")
	if addr == "" {
		*missing = append(*missing, prefix+"_ADDRESS")
	} else if !common.IsHexAddress(addr) {
		return t, fmt.Errorf("%s_ADDRESS is not a valid address: %q", prefix, addr)
	} else {
		t.Address = common.HexToAddress(addr)
	}
	if t.Symbol == "" {
		*missing = append(*missing, prefix+"_SYMBOL")
	}

	decimals, err := envUint(prefix+"_DECIMALS", 0)
	if err != nil {
		return t, err
	}
	if decimals == 0 {
		*missing = append(*missing, prefix+"_DECIMALS")
	}
	t.Decimals = int32(decimals)
	return t, nil
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func envUint(name string, fallback uint64) (uint64, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s is not a valid integer: %q", name, raw)
	}
	return v, nil
}

func envDuration(name string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s is not a valid duration: %q", name, raw)
	}
	return v, nil
}
