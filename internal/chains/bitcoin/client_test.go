package bitcoin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"crypto-collector/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeExplorer struct {
	balances     map[string]int64
	utxos        map[string][]UTXO
	feeEstimates map[string]float64
	recommended  map[string]float64
	broadcasts   atomic.Int32
	failAddress  string
}

func (f *fakeExplorer) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /address/{addr}", func(w http.ResponseWriter, r *http.Request) {
		addr := r.PathValue("addr")
		if addr == f.failAddress {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		info := AddressInfo{Address: addr}
		info.ChainStats.FundedTxoSum = f.balances[addr] + 1_000
		info.ChainStats.SpentTxoSum = 1_000
		info.MempoolStats.FundedTxoSum = 777
		_ = json.NewEncoder(w).Encode(info)
	})

	mux.HandleFunc("GET /address/{addr}/utxo", func(w http.ResponseWriter, r *http.Request) {
		utxos := f.utxos[r.PathValue("addr")]
		if utxos == nil {
			utxos = []UTXO{}
		}
		_ = json.NewEncoder(w).Encode(utxos)
	})

	mux.HandleFunc("GET /fee-estimates", func(w http.ResponseWriter, r *http.Request) {
		if f.feeEstimates == nil {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(f.feeEstimates)
	})

	mux.HandleFunc("GET /v1/fees/recommended", func(w http.ResponseWriter, r *http.Request) {
		if f.recommended == nil {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(f.recommended)
	})

	mux.HandleFunc("POST /tx", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if string(body) == "bad" {
			http.Error(w, "sendrawtransaction RPC error: bad-txns", http.StatusBadRequest)
			return
		}
		f.broadcasts.Add(1)
		fmt.Fprint(w, fakeTxID(99))
	})

	return mux
}

func newTestClient(t *testing.T, f *fakeExplorer) *EsploraClient {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	return NewEsploraClient(ClientConfig{
		Chain:             domain.ChainBitcoin,
		Network:           "testnet",
		BaseURL:           srv.URL,
		FeeURL:            srv.URL + "/v1/fees/recommended",
		RequestsPerSecond: 1_000,
	}, zaptest.NewLogger(t))
}

func TestEsploraClient_Balances(t *testing.T) {
	f := &fakeExplorer{balances: map[string]int64{"a": 10_000, "b": 0, "c": 5}}
	client := newTestClient(t, f)

	assert.Equal(t, BalanceBatchSize, client.BatchSize())

	balances, err := client.Balances(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, balances, 3)
	assert.Equal(t, int64(10_000), balances["a"].Int64())
	assert.Equal(t, int64(0), balances["b"].Int64())
	assert.Equal(t, int64(5), balances["c"].Int64())
}

func TestEsploraClient_BalancesFailsWholeBatch(t *testing.T) {
	f := &fakeExplorer{balances: map[string]int64{"a": 1}, failAddress: "b"}
	client := newTestClient(t, f)

	_, err := client.Balances(context.Background(), []string{"a", "b"})
	assert.Error(t, err)

	_, err = client.Balances(context.Background(), make([]string, BalanceBatchSize+1))
	assert.Error(t, err)
}

func TestEsploraClient_ListUnspent(t *testing.T) {
	utxo := UTXO{TxID: fakeTxID(1), Vout: 2, Value: 12_345}
	utxo.Status.Confirmed = true

	f := &fakeExplorer{utxos: map[string][]UTXO{"a": {utxo}}}
	client := newTestClient(t, f)

	utxos, err := client.ListUnspent(context.Background(), "a")
	require.NoError(t, err)
	require.Len(t, utxos, 1)
	assert.Equal(t, domain.UTXO{TxID: fakeTxID(1), Vout: 2, Value: 12_345, Confirmed: true}, utxos[0])

	empty, err := client.ListUnspent(context.Background(), "unused")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestEsploraClient_FeeRateFallbacks(t *testing.T) {
	t.Run("recommended", func(t *testing.T) {
		f := &fakeExplorer{recommended: map[string]float64{"fastestFee": 30, "halfHourFee": 12, "hourFee": 8}}
		rate, err := newTestClient(t, f).FeeRate(context.Background())
		require.NoError(t, err)
		assert.Equal(t, domain.FeeRate(12_000), rate)
	})

	t.Run("esplora estimates", func(t *testing.T) {
		f := &fakeExplorer{feeEstimates: map[string]float64{"1": 20.1, "3": 7.5, "6": 3}}
		rate, err := newTestClient(t, f).FeeRate(context.Background())
		require.NoError(t, err)
		assert.Equal(t, domain.FeeRate(7_500), rate)
	})

	t.Run("defaults", func(t *testing.T) {
		rate, err := newTestClient(t, &fakeExplorer{}).FeeRate(context.Background())
		require.NoError(t, err)
		assert.Equal(t, domain.FeeRate(1_000), rate)
	})
}

func TestEsploraClient_Broadcast(t *testing.T) {
	f := &fakeExplorer{}
	client := newTestClient(t, f)

	txid, err := client.Broadcast(context.Background(), "0100")
	require.NoError(t, err)
	assert.Equal(t, fakeTxID(99), txid)
	assert.Equal(t, int32(1), f.broadcasts.Load())

	_, err = client.Broadcast(context.Background(), "bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad-txns")
}
