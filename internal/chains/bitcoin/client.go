package bitcoin

// internal/chains/bitcoin/client.go
import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"crypto-collector/internal/domain"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	// BalanceBatchSize caps addresses per Balances call
	BalanceBatchSize = 50

	defaultConfirmationTarget = 3
	maxResponseBytes          = 4 << 20
	addressFetchConcurrency   = 8
)

// ClientConfig configures an Esplora-compatible explorer client
type ClientConfig struct {
	Chain   domain.Chain
	Network string

	// BaseURL is the Esplora REST root; empty selects the public explorer
	BaseURL string

	// FeeURL is a mempool.space style /v1/fees/recommended endpoint; empty selects the public one
	FeeURL string

	RequestsPerSecond  float64
	Timeout            time.Duration
	ConfirmationTarget int
}

// EsploraClient reads balances and UTXOs and broadcasts raw transactions
// through a Blockstream/mempool Esplora REST API.
type EsploraClient struct {
	httpClient         *http.Client
	baseURL            string
	feeURL             string
	chain              domain.Chain
	network            string
	confirmationTarget int
	limiter            *rate.Limiter
	logger             *zap.Logger
}

func NewEsploraClient(cfg ClientConfig, logger *zap.Logger) *EsploraClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}

	target := cfg.ConfirmationTarget
	if target <= 0 {
		target = defaultConfirmationTarget
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultExplorerURL(cfg.Chain, cfg.Network)
	}

	feeURL := cfg.FeeURL
	if feeURL == "" {
		feeURL = defaultFeeURL(cfg.Chain, cfg.Network)
	}

	return &EsploraClient{
		httpClient: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		baseURL:            strings.TrimSuffix(baseURL, "/"),
		feeURL:             feeURL,
		chain:              cfg.Chain,
		network:            cfg.Network,
		confirmationTarget: target,
		limiter:            rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		logger:             logger,
	}
}

// ============================================================================
// BALANCES
// ============================================================================

func (c *EsploraClient) BatchSize() int {
	return BalanceBatchSize
}

// Balances returns the confirmed balance of every address in the batch.
// Esplora has no multi-address endpoint, so the batch fans out with bounded concurrency.
func (c *EsploraClient) Balances(ctx context.Context, addresses []string) (map[string]*big.Int, error) {
	if len(addresses) > BalanceBatchSize {
		return nil, fmt.Errorf("batch of %d exceeds limit %d", len(addresses), BalanceBatchSize)
	}

	results := make([]int64, len(addresses))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(addressFetchConcurrency)

	for i, address := range addresses {
		g.Go(func() error {
			balance, err := c.GetBalance(gctx, address)
			if err != nil {
				return err
			}
			results[i] = balance
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	balances := make(map[string]*big.Int, len(addresses))
	for i, address := range addresses {
		balances[address] = big.NewInt(results[i])
	}

	return balances, nil
}

// GetBalance returns funded minus spent outputs in confirmed blocks, in satoshis
func (c *EsploraClient) GetBalance(ctx context.Context, address string) (int64, error) {
	var info AddressInfo
	if err := c.getJSON(ctx, c.baseURL+"/address/"+address, &info); err != nil {
		return 0, fmt.Errorf("failed to get balance for %s: %w", address, err)
	}

	return info.ChainStats.FundedTxoSum - info.ChainStats.SpentTxoSum, nil
}

// ============================================================================
// UTXOS + BROADCAST
// ============================================================================

// ListUnspent returns confirmed and mempool outputs of an address
func (c *EsploraClient) ListUnspent(ctx context.Context, address string) ([]domain.UTXO, error) {
	var utxos []UTXO
	if err := c.getJSON(ctx, c.baseURL+"/address/"+address+"/utxo", &utxos); err != nil {
		return nil, fmt.Errorf("failed to get UTXOs for %s: %w", address, err)
	}

	out := make([]domain.UTXO, 0, len(utxos))
	for _, u := range utxos {
		out = append(out, domain.UTXO{
			TxID:      u.TxID,
			Vout:      u.Vout,
			Value:     u.Value,
			Confirmed: u.Status.Confirmed,
		})
	}

	return out, nil
}

// Broadcast submits a raw transaction and returns the txid the explorer accepted
func (c *EsploraClient) Broadcast(ctx context.Context, rawTxHex string) (string, error) {
	broadcastURL := c.baseURL + "/tx"

	c.logger.Info("Broadcasting transaction",
		zap.String("chain", c.chain.String()),
		zap.String("url", broadcastURL))

	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, broadcastURL, strings.NewReader(rawTxHex))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("broadcast failed (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	txHash := strings.TrimSpace(string(body))
	c.logger.Info("Transaction broadcast",
		zap.String("chain", c.chain.String()),
		zap.String("tx_hash", txHash))

	return txHash, nil
}

// ============================================================================
// FEES
// ============================================================================

// FeeRate estimates the current rate with fallbacks:
// mempool recommended fees, then Esplora fee-estimates, then static defaults.
func (c *EsploraClient) FeeRate(ctx context.Context) (domain.FeeRate, error) {
	if fee, err := c.estimateFeeMempool(ctx); err == nil && fee > 0 {
		return domain.FeeRateFromSatPerVByte(fee), nil
	} else if err != nil {
		c.logger.Debug("mempool fee estimate failed", zap.Error(err))
	}

	if fee, err := c.estimateFeeEsplora(ctx); err == nil && fee > 0 {
		return domain.FeeRateFromSatPerVByte(fee), nil
	} else if err != nil {
		c.logger.Debug("esplora fee estimate failed", zap.Error(err))
	}

	fee := c.defaultFeeRate()
	c.logger.Warn("Using default fee rate",
		zap.String("chain", c.chain.String()),
		zap.Float64("sat_per_vbyte", fee))

	return domain.FeeRateFromSatPerVByte(fee), nil
}

func (c *EsploraClient) estimateFeeMempool(ctx context.Context) (float64, error) {
	if c.feeURL == "" {
		return 0, errors.New("no fee endpoint configured")
	}

	var feeRates struct {
		FastestFee  float64 `json:"fastestFee"`
		HalfHourFee float64 `json:"halfHourFee"`
		HourFee     float64 `json:"hourFee"`
		EconomyFee  float64 `json:"economyFee"`
		MinimumFee  float64 `json:"minimumFee"`
	}

	if err := c.getJSON(ctx, c.feeURL, &feeRates); err != nil {
		return 0, err
	}

	switch {
	case c.confirmationTarget <= 1:
		return feeRates.FastestFee, nil
	case c.confirmationTarget <= 3:
		return feeRates.HalfHourFee, nil
	case c.confirmationTarget <= 6:
		return feeRates.HourFee, nil
	default:
		return feeRates.EconomyFee, nil
	}
}

func (c *EsploraClient) estimateFeeEsplora(ctx context.Context) (float64, error) {
	var feeEstimates map[string]float64
	if err := c.getJSON(ctx, c.baseURL+"/fee-estimates", &feeEstimates); err != nil {
		return 0, err
	}

	if fee, ok := feeEstimates[strconv.Itoa(c.confirmationTarget)]; ok {
		return fee, nil
	}

	for _, target := range []int{3, 6, 1, 2, 12} {
		if fee, ok := feeEstimates[strconv.Itoa(target)]; ok {
			return fee, nil
		}
	}

	return 0, fmt.Errorf("no fee estimates available")
}

// defaultFeeRate returns conservative sat/vB rates when every estimator is down
func (c *EsploraClient) defaultFeeRate() float64 {
	defaults := map[domain.Chain]map[int]float64{
		domain.ChainBitcoin: {
			1:  50.0,
			3:  20.0,
			6:  10.0,
			12: 5.0,
		},
		domain.ChainLitecoin: {
			1:  10.0,
			3:  5.0,
			6:  2.0,
			12: 1.0,
		},
	}

	if c.network != "mainnet" {
		return 1.0
	}

	chainDefaults := defaults[c.chain]
	for _, target := range []int{c.confirmationTarget, 3, 6, 1, 12} {
		if fee, ok := chainDefaults[target]; ok {
			return fee
		}
	}

	return 5.0
}

// ============================================================================
// HTTP
// ============================================================================

func (c *EsploraClient) getJSON(ctx context.Context, url string, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}

func defaultExplorerURL(chain domain.Chain, network string) string {
	switch chain {
	case domain.ChainLitecoin:
		if network == "mainnet" {
			return "https://litecoinspace.org/api"
		}
		return "https://litecoinspace.org/testnet/api"
	default:
		if network == "mainnet" {
			return "https://blockstream.info/api"
		}
		return "https://blockstream.info/testnet/api"
	}
}

func defaultFeeURL(chain domain.Chain, network string) string {
	switch chain {
	case domain.ChainLitecoin:
		if network == "mainnet" {
			return "https://litecoinspace.org/api/v1/fees/recommended"
		}
		return "https://litecoinspace.org/testnet/api/v1/fees/recommended"
	default:
		if network == "mainnet" {
			return "https://mempool.space/api/v1/fees/recommended"
		}
		return "https://mempool.space/testnet/api/v1/fees/recommended"
	}
}

// Response structures
type AddressInfo struct {
	Address    string   `json:"address"`
	ChainStats TxoStats `json:"chain_stats"`
	// MempoolStats is informational; unconfirmed funds are not counted
	MempoolStats TxoStats `json:"mempool_stats"`
}

type TxoStats struct {
	FundedTxoCount int64 `json:"funded_txo_count"`
	FundedTxoSum   int64 `json:"funded_txo_sum"`
	SpentTxoCount  int64 `json:"spent_txo_count"`
	SpentTxoSum    int64 `json:"spent_txo_sum"`
	TxCount        int64 `json:"tx_count"`
}

type UTXO struct {
	TxID   string `json:"txid"`
	Vout   uint32 `json:"vout"`
	Status struct {
		Confirmed   bool   `json:"confirmed"`
		BlockHeight int64  `json:"block_height"`
		BlockHash   string `json:"block_hash"`
		BlockTime   int64  `json:"block_time"`
	} `json:"status"`
	Value int64 `json:"value"` // satoshis
}
