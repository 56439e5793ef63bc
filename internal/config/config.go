// config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"crypto-collector/internal/domain"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	LogLevel string

	Database DatabaseConfig
	Redis    RedisConfig
	Security SecurityConfig
	Bitcoin  UTXOChainConfig
	Litecoin UTXOChainConfig
	Ethereum EthereumConfig
	Solana   SolanaConfig
	Oracle   OracleConfig
	Timeouts TimeoutConfig
	Workers  WorkerConfig
}

type DatabaseConfig struct {
	URL             string
	MigrationsPath  string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

type RedisConfig struct {
	Addrs      []string // empty disables the balance cache
	Password   string
	UseCluster bool
	BalanceTTL time.Duration
}

type SecurityConfig struct {
	SeedProvider string // "env", "file"
	FileVaultDir string
	FileVaultKey string
}

type UTXOChainConfig struct {
	Enabled     bool
	Network     string // mainnet, testnet, regtest (BTC only)
	ExplorerURL string
	FeeURL      string
	RPS         float64
}

type EthereumConfig struct {
	Enabled     bool
	RPCURL      string
	MaxGasPrice int64 // in Gwei
}

type SolanaConfig struct {
	Enabled      bool
	RPCURL       string
	RPS          float64
	HeliusURL    string
	HeliusAPIKey string
}

type OracleConfig struct {
	CoinGeckoURL    string
	CoinGeckoAPIKey string
}

type TimeoutConfig struct {
	Lookup    time.Duration
	Broadcast time.Duration
}

type WorkerConfig struct {
	BalanceRefreshInterval time.Duration
	SweepInterval          time.Duration
	SweepDestinations      map[domain.Chain]string
}

// Load reads .env (if present) and the process environment
func Load(logger *zap.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to load .env file", zap.Error(err))
	}

	explorerRPS := getEnvAsFloat("EXPLORER_RPS", 5)

	cfg := &Config{
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// ============================================================================
		// Storage
		// ============================================================================
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MigrationsPath:  getEnv("MIGRATIONS_PATH", "./migrations"),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 20),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Addrs:      splitList(os.Getenv("REDIS_ADDR")),
			Password:   os.Getenv("REDIS_PASSWORD"),
			UseCluster: getEnvAsBool("REDIS_CLUSTER", false),
			BalanceTTL: getEnvAsDuration("BALANCE_CACHE_TTL", 2*time.Minute),
		},

		// ============================================================================
		// Security Configuration
		// ============================================================================
		Security: SecurityConfig{
			SeedProvider: getEnv("SEED_PROVIDER", "env"),
			FileVaultDir: getEnv("FILE_VAULT_DIR", "./vault"),
			FileVaultKey: os.Getenv("FILE_VAULT_KEY"),
		},

		// ============================================================================
		// Chains
		// ============================================================================
		Bitcoin: UTXOChainConfig{
			Enabled:     getEnvAsBool("BITCOIN_ENABLED", true),
			Network:     getEnv("BTC_NETWORK", "mainnet"),
			ExplorerURL: os.Getenv("BTC_EXPLORER_URL"),
			FeeURL:      os.Getenv("BTC_FEE_URL"),
			RPS:         explorerRPS,
		},
		Litecoin: UTXOChainConfig{
			Enabled:     getEnvAsBool("LITECOIN_ENABLED", true),
			Network:     getEnv("LTC_NETWORK", "mainnet"),
			ExplorerURL: os.Getenv("LTC_EXPLORER_URL"),
			FeeURL:      os.Getenv("LTC_FEE_URL"),
			RPS:         explorerRPS,
		},
		Ethereum: EthereumConfig{
			Enabled:     getEnvAsBool("ETHEREUM_ENABLED", true),
			RPCURL:      getEnv("ETHEREUM_RPC_URL", "https://ethereum-rpc.publicnode.com"),
			MaxGasPrice: getEnvAsInt64("ETHEREUM_MAX_GAS_PRICE", 100),
		},
		Solana: SolanaConfig{
			Enabled:      getEnvAsBool("SOLANA_ENABLED", true),
			RPCURL:       getEnv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com"),
			RPS:          getEnvAsFloat("SOLANA_RPS", 5),
			HeliusURL:    os.Getenv("HELIUS_URL"),
			HeliusAPIKey: os.Getenv("HELIUS_API_KEY"),
		},
		Oracle: OracleConfig{
			CoinGeckoURL:    os.Getenv("COINGECKO_URL"),
			CoinGeckoAPIKey: os.Getenv("COINGECKO_API_KEY"),
		},

		// ============================================================================
		// Timeouts and workers
		// ============================================================================
		Timeouts: TimeoutConfig{
			Lookup:    getEnvAsDuration("LOOKUP_TIMEOUT", 15*time.Second),
			Broadcast: getEnvAsDuration("BROADCAST_TIMEOUT", 30*time.Second),
		},
		Workers: WorkerConfig{
			BalanceRefreshInterval: getEnvAsDuration("BALANCE_REFRESH_INTERVAL", 0),
			SweepInterval:          getEnvAsDuration("SWEEP_SCHEDULE_INTERVAL", 0),
			SweepDestinations:      sweepDestinations(),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects settings that would only fail later at first use
func (c *Config) Validate() error {
	switch c.Security.SeedProvider {
	case "env":
	case "file":
		if c.Security.FileVaultKey == "" {
			return fmt.Errorf("FILE_VAULT_KEY is required when SEED_PROVIDER=file")
		}
	default:
		return fmt.Errorf("unknown SEED_PROVIDER %q", c.Security.SeedProvider)
	}

	if c.Timeouts.Lookup <= 0 || c.Timeouts.Broadcast <= 0 {
		return fmt.Errorf("LOOKUP_TIMEOUT and BROADCAST_TIMEOUT must be positive")
	}

	if c.Workers.SweepInterval > 0 && len(c.Workers.SweepDestinations) == 0 {
		return fmt.Errorf("SWEEP_SCHEDULE_INTERVAL is set but no SWEEP_DESTINATION_<CHAIN> is configured")
	}

	return nil
}

// Enabled reports whether a chain is switched on
func (c *Config) Enabled(chain domain.Chain) bool {
	switch chain {
	case domain.ChainBitcoin:
		return c.Bitcoin.Enabled
	case domain.ChainLitecoin:
		return c.Litecoin.Enabled
	case domain.ChainEthereum:
		return c.Ethereum.Enabled
	case domain.ChainSolana:
		return c.Solana.Enabled
	}
	return false
}

// NewLogger builds a production logger, or a development one for LOG_LEVEL=debug
func NewLogger(level string) (*zap.Logger, error) {
	if strings.EqualFold(level, "debug") {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func sweepDestinations() map[domain.Chain]string {
	destinations := make(map[domain.Chain]string)
	for _, chain := range domain.AllChains {
		if v := strings.TrimSpace(os.Getenv("SWEEP_DESTINATION_" + string(chain))); v != "" {
			destinations[chain] = v
		}
	}
	return destinations
}

// ============================================================================
// Helper Functions
// ============================================================================

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
