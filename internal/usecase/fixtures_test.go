package usecase

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"crypto-collector/internal/chains"
	"crypto-collector/internal/chains/bitcoin"
	"crypto-collector/internal/chains/ethereum"
	"crypto-collector/internal/chains/solana"
	"crypto-collector/internal/domain"
	"crypto-collector/internal/repository"
	"crypto-collector/internal/security"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

// ============================================================================
// FAKE PROVIDERS
// ============================================================================

type fakeUTXO struct {
	mu           sync.Mutex
	utxos        map[string][]domain.UTXO
	listErr      map[string]error
	feeRate      domain.FeeRate
	feeErr       error
	broadcastErr error
	broadcasts   []*wire.MsgTx

	// entered/release let a test hold a sweep inside ListUnspent
	entered chan struct{}
	release chan struct{}
}

func newFakeUTXO() *fakeUTXO {
	return &fakeUTXO{
		utxos:   make(map[string][]domain.UTXO),
		listErr: make(map[string]error),
		feeRate: 4098,
	}
}

func (f *fakeUTXO) ListUnspent(ctx context.Context, address string) ([]domain.UTXO, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
		<-f.release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.listErr[address]; err != nil {
		return nil, err
	}
	return f.utxos[address], nil
}

func (f *fakeUTXO) FeeRate(ctx context.Context) (domain.FeeRate, error) {
	return f.feeRate, f.feeErr
}

func (f *fakeUTXO) Broadcast(ctx context.Context, rawTxHex string) (string, error) {
	if f.broadcastErr != nil {
		return "", f.broadcastErr
	}

	raw, err := hex.DecodeString(rawTxHex)
	if err != nil {
		return "", err
	}
	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, tx)

	// spent outputs disappear from the explorer
	for address := range f.utxos {
		delete(f.utxos, address)
	}
	return tx.TxHash().String(), nil
}

type transfer struct {
	from, to    string
	amount, fee *big.Int
}

type fakeAccount struct {
	mu          sync.Mutex
	balances    map[string]*big.Int
	fee         *big.Int
	transferErr map[string]error
	transfers   []transfer
}

func newFakeAccount(fee int64) *fakeAccount {
	return &fakeAccount{
		balances:    make(map[string]*big.Int),
		fee:         big.NewInt(fee),
		transferErr: make(map[string]error),
	}
}

func (f *fakeAccount) Balance(ctx context.Context, address string) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.balances[address]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (f *fakeAccount) TransferFee(ctx context.Context, from *domain.DerivedAccount, to string) (*big.Int, error) {
	return new(big.Int).Set(f.fee), nil
}

func (f *fakeAccount) Transfer(ctx context.Context, from *domain.DerivedAccount, to string, amount, fee *big.Int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.transferErr[from.Address]; err != nil {
		return "", err
	}
	f.transfers = append(f.transfers, transfer{from: from.Address, to: to, amount: amount, fee: fee})
	f.balances[from.Address] = new(big.Int)
	return fmt.Sprintf("tx-%d", len(f.transfers)), nil
}

type fakeBalances struct {
	mu        sync.Mutex
	batchSize int
	balances  map[string]*big.Int
	err       error
	failFor   map[string]bool
	calls     [][]string
}

func newFakeBalances(batchSize int) *fakeBalances {
	return &fakeBalances{
		batchSize: batchSize,
		balances:  make(map[string]*big.Int),
		failFor:   make(map[string]bool),
	}
}

func (f *fakeBalances) BatchSize() int { return f.batchSize }

func (f *fakeBalances) Balances(ctx context.Context, addresses []string) (map[string]*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, append([]string(nil), addresses...))
	if f.err != nil {
		return nil, f.err
	}

	out := make(map[string]*big.Int, len(addresses))
	for _, a := range addresses {
		if f.failFor[a] {
			return nil, fmt.Errorf("lookup failed for %s", a)
		}
		b, ok := f.balances[a]
		if !ok {
			b = new(big.Int)
		}
		out[a] = b
	}
	return out, nil
}

func (f *fakeBalances) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeWebhooks struct {
	mu      sync.Mutex
	deleted []string
}

func (f *fakeWebhooks) DeleteWebhook(ctx context.Context, webhookID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, webhookID)
	return nil
}

// ============================================================================
// HARNESS
// ============================================================================

type harness struct {
	ledger   *repository.MemoryLedger
	registry *chains.Registry
	utxo     map[domain.Chain]*fakeUTXO
	accounts map[domain.Chain]*fakeAccount
	balances map[domain.Chain]*fakeBalances
	webhooks *fakeWebhooks
	backends Backends
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	seed, err := security.NewSeedAuthority(testMnemonic, "")
	require.NoError(t, err)

	registry := chains.NewRegistry()
	btc, err := bitcoin.NewDeriver(domain.ChainBitcoin, seed, &chaincfg.MainNetParams)
	require.NoError(t, err)
	ltc, err := bitcoin.NewDeriver(domain.ChainLitecoin, seed, &bitcoin.LitecoinMainNetParams)
	require.NoError(t, err)
	eth, err := ethereum.NewDeriver(seed)
	require.NoError(t, err)
	registry.Register(btc)
	registry.Register(ltc)
	registry.Register(eth)
	registry.Register(solana.NewDeriver(seed))

	h := &harness{
		ledger:   repository.NewMemoryLedger(),
		registry: registry,
		utxo: map[domain.Chain]*fakeUTXO{
			domain.ChainBitcoin:  newFakeUTXO(),
			domain.ChainLitecoin: newFakeUTXO(),
		},
		accounts: map[domain.Chain]*fakeAccount{
			domain.ChainEthereum: newFakeAccount(21_000 * 20_000_000_000),
			domain.ChainSolana:   newFakeAccount(5_000),
		},
		balances: map[domain.Chain]*fakeBalances{
			domain.ChainBitcoin:  newFakeBalances(50),
			domain.ChainLitecoin: newFakeBalances(50),
			domain.ChainEthereum: newFakeBalances(1),
			domain.ChainSolana:   newFakeBalances(100),
		},
		webhooks: &fakeWebhooks{},
	}

	h.backends = Backends{
		domain.ChainBitcoin: {
			Balances: h.balances[domain.ChainBitcoin],
			UTXO:     h.utxo[domain.ChainBitcoin],
			Params:   &chaincfg.MainNetParams,
		},
		domain.ChainLitecoin: {
			Balances: h.balances[domain.ChainLitecoin],
			UTXO:     h.utxo[domain.ChainLitecoin],
			Params:   &bitcoin.LitecoinMainNetParams,
		},
		domain.ChainEthereum: {
			Balances: h.balances[domain.ChainEthereum],
			Account:  h.accounts[domain.ChainEthereum],
		},
		domain.ChainSolana: {
			Balances: h.balances[domain.ChainSolana],
			Account:  h.accounts[domain.ChainSolana],
			Webhooks: h.webhooks,
		},
	}

	return h
}

// issue inserts a deposit row for the next index of a chain
func (h *harness) issue(t *testing.T, chain domain.Chain, orderID string, webhookID *string) *domain.DepositAddress {
	t.Helper()

	d, err := h.ledger.Issue(context.Background(), chain, orderID, func(index uint32) (*domain.DepositAddress, error) {
		account, err := h.registry.Derive(chain, index)
		if err != nil {
			return nil, err
		}
		return &domain.DepositAddress{
			Address:        account.Address,
			ExpectedAmount: "0.00100000",
			FiatAmountUSD:  "50.00",
			PriceUSD:       "50000",
			WebhookID:      webhookID,
		}, nil
	})
	require.NoError(t, err)
	return d
}

// issuePaid issues a row and marks it paid
func (h *harness) issuePaid(t *testing.T, chain domain.Chain, orderID string) *domain.DepositAddress {
	t.Helper()
	d := h.issue(t, chain, orderID, nil)
	require.NoError(t, h.ledger.MarkPaid(context.Background(), d.ID, "incoming-"+orderID))
	return d
}

// treasury returns a destination address owned by the same seed but never issued
func (h *harness) treasury(t *testing.T, chain domain.Chain) string {
	t.Helper()
	account, err := h.registry.Derive(chain, 1_000_000)
	require.NoError(t, err)
	return account.Address
}

func (h *harness) reload(t *testing.T, id string) *domain.DepositAddress {
	t.Helper()
	d, err := h.ledger.GetByID(context.Background(), id)
	require.NoError(t, err)
	return d
}

func fakeTxID(n int) string {
	return fmt.Sprintf("%064x", n)
}
