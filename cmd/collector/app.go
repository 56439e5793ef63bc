package main

import (
	"context"
	"fmt"
	"math/big"

	"crypto-collector/internal/cache"
	"crypto-collector/internal/chains"
	"crypto-collector/internal/chains/bitcoin"
	"crypto-collector/internal/chains/ethereum"
	"crypto-collector/internal/chains/solana"
	"crypto-collector/internal/config"
	"crypto-collector/internal/domain"
	"crypto-collector/internal/oracle"
	"crypto-collector/internal/repository"
	"crypto-collector/internal/security"
	"crypto-collector/internal/usecase"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// app holds every wired component of one CLI invocation
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	pool     *pgxpool.Pool
	cache    *cache.BalanceCache
	ledger   repository.DepositLedger
	registry *chains.Registry
	backends usecase.Backends

	deposits *usecase.DepositUsecase
	balances *usecase.BalanceUsecase
	sweeps   *usecase.SweepUsecase
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	bootstrap, err := zap.NewProduction()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize bootstrap logger: %w", err)
	}

	cfg, err := config.Load(bootstrap)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return cfg, logger, nil
}

// newApp connects storage, loads the seed and wires every enabled chain.
// A missing or invalid seed aborts the process.
func newApp(ctx context.Context) (*app, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}

	// ============================================================================
	// Seed
	// ============================================================================
	provider, err := secretProvider(cfg.Security)
	if err != nil {
		logger.Fatal("failed to open secret provider", zap.Error(err))
	}

	seed, err := security.LoadSeedAuthority(ctx, provider, logger)
	if err != nil {
		logger.Fatal("failed to load master seed", zap.Error(err))
	}

	// ============================================================================
	// Storage
	// ============================================================================
	a.pool, err = config.ConnectDB(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.ledger = repository.NewPostgresLedger(a.pool)

	var balanceCache usecase.BalanceCache
	if len(cfg.Redis.Addrs) > 0 {
		client := cache.NewRedisClient(cfg.Redis.Addrs, cfg.Redis.Password, cfg.Redis.UseCluster)
		a.cache = cache.NewBalanceCache(client, cfg.Redis.BalanceTTL, logger)
		if err := a.cache.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, balances will not be cached", zap.Error(err))
		}
		balanceCache = a.cache
	}

	// ============================================================================
	// Chains
	// ============================================================================
	a.registry = chains.NewRegistry()
	a.backends = make(usecase.Backends)

	if err := a.wireChains(ctx, seed); err != nil {
		a.close()
		return nil, err
	}

	logger.Info("chains initialized", zap.Strings("chains", chainNames(a.registry.List())))

	// ============================================================================
	// Usecases
	// ============================================================================
	prices := oracle.NewCoinGecko(cfg.Oracle.CoinGeckoURL, cfg.Oracle.CoinGeckoAPIKey, logger)

	a.deposits = usecase.NewDepositUsecase(a.ledger, a.registry, prices, cfg.Timeouts.Lookup, logger)
	a.balances = usecase.NewBalanceUsecase(a.ledger, a.backends, balanceCache, cfg.Timeouts.Lookup, logger)
	a.sweeps = usecase.NewSweepUsecase(a.ledger, a.registry, a.backends, a.balances,
		cfg.Timeouts.Lookup, cfg.Timeouts.Broadcast, logger)

	return a, nil
}

func (a *app) wireChains(ctx context.Context, seed *security.SeedAuthority) error {
	for _, utxo := range []struct {
		chain domain.Chain
		cfg   config.UTXOChainConfig
	}{
		{domain.ChainBitcoin, a.cfg.Bitcoin},
		{domain.ChainLitecoin, a.cfg.Litecoin},
	} {
		if !utxo.cfg.Enabled {
			continue
		}

		params, err := bitcoin.NetworkParams(utxo.chain, utxo.cfg.Network)
		if err != nil {
			return err
		}
		deriver, err := bitcoin.NewDeriver(utxo.chain, seed, params)
		if err != nil {
			return fmt.Errorf("failed to initialize %s deriver: %w", utxo.chain, err)
		}
		client := bitcoin.NewEsploraClient(bitcoin.ClientConfig{
			Chain:             utxo.chain,
			Network:           utxo.cfg.Network,
			BaseURL:           utxo.cfg.ExplorerURL,
			FeeURL:            utxo.cfg.FeeURL,
			RequestsPerSecond: utxo.cfg.RPS,
			Timeout:           a.cfg.Timeouts.Lookup,
		}, a.logger)

		bitcoin.LogNetwork(utxo.chain, utxo.cfg.Network, a.logger)

		a.registry.Register(deriver)
		a.backends[utxo.chain] = &usecase.ChainBackend{
			Balances: client,
			UTXO:     client,
			Params:   params,
		}
	}

	if a.cfg.Ethereum.Enabled {
		deriver, err := ethereum.NewDeriver(seed)
		if err != nil {
			return fmt.Errorf("failed to initialize ETHEREUM deriver: %w", err)
		}

		ethConfig := ethereum.DefaultConfig(a.cfg.Ethereum.RPCURL)
		ethConfig.MaxGasPrice = new(big.Int).Mul(big.NewInt(a.cfg.Ethereum.MaxGasPrice), big.NewInt(1e9))

		provider, err := ethereum.NewProvider(ctx, ethConfig, a.logger)
		if err != nil {
			return fmt.Errorf("failed to initialize ETHEREUM provider: %w", err)
		}

		a.registry.Register(deriver)
		a.backends[domain.ChainEthereum] = &usecase.ChainBackend{
			Balances: provider,
			Account:  provider,
		}
	}

	if a.cfg.Solana.Enabled {
		provider := solana.NewProvider(a.cfg.Solana.RPCURL, a.cfg.Solana.RPS, a.logger)
		backend := &usecase.ChainBackend{
			Balances: provider,
			Account:  provider,
		}
		if a.cfg.Solana.HeliusAPIKey != "" {
			backend.Webhooks = solana.NewHeliusWebhooks(a.cfg.Solana.HeliusURL, a.cfg.Solana.HeliusAPIKey, a.logger)
		}

		a.registry.Register(solana.NewDeriver(seed))
		a.backends[domain.ChainSolana] = backend
	}

	return nil
}

func (a *app) close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	_ = a.logger.Sync()
}

func secretProvider(cfg config.SecurityConfig) (security.SecretProvider, error) {
	if cfg.SeedProvider == "file" {
		return security.NewFileSecretProvider(cfg.FileVaultDir, cfg.FileVaultKey)
	}
	return security.NewEnvSecretProvider(), nil
}

func chainNames(list []domain.Chain) []string {
	names := make([]string, len(list))
	for i, c := range list {
		names[i] = string(c)
	}
	return names
}
