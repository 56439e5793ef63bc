// internal/chains/bitcoin/transaction.go
package bitcoin

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"

	"crypto-collector/internal/domain"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// TransactionBuilder assembles a P2PKH spend whose inputs may belong to
// different deposit addresses, each signed with its own derived key.
type TransactionBuilder struct {
	network *chaincfg.Params
	tx      *wire.MsgTx
	inputs  []txInput
}

type txInput struct {
	utxo       domain.UTXO
	privateKey *btcec.PrivateKey
	pkScript   []byte
}

func NewTransactionBuilder(params *chaincfg.Params) *TransactionBuilder {
	return &TransactionBuilder{
		network: params,
		tx:      wire.NewMsgTx(wire.TxVersion),
		inputs:  make([]txInput, 0),
	}
}

// AddInput spends utxo with the key of the account that owns it.
// The account's address must be the P2PKH address of its key.
func (tb *TransactionBuilder) AddInput(utxo domain.UTXO, account *domain.DerivedAccount) error {
	if utxo.Value <= 0 {
		return fmt.Errorf("%w: utxo %s:%d has value %d", domain.ErrInvalidAmount, utxo.TxID, utxo.Vout, utxo.Value)
	}

	prevHash, err := chainhash.NewHashFromStr(utxo.TxID)
	if err != nil {
		return fmt.Errorf("invalid txid: %w", err)
	}

	privateKey, publicKey := btcec.PrivKeyFromBytes(account.Key())

	address, err := p2pkhAddress(publicKey, tb.network)
	if err != nil {
		return err
	}
	if address.EncodeAddress() != account.Address {
		return fmt.Errorf("signing key for index %d does not match address %s", account.Index, account.Address)
	}

	pkScript, err := txscript.PayToAddrScript(address)
	if err != nil {
		return fmt.Errorf("failed to create pkScript: %w", err)
	}

	txIn := wire.NewTxIn(wire.NewOutPoint(prevHash, utxo.Vout), nil, nil)

	// Opt in to replace-by-fee
	txIn.Sequence = wire.MaxTxInSequenceNum - 2

	tb.tx.AddTxIn(txIn)
	tb.inputs = append(tb.inputs, txInput{
		utxo:       utxo,
		privateKey: privateKey,
		pkScript:   pkScript,
	})

	return nil
}

// AddOutput pays amountSats to address
func (tb *TransactionBuilder) AddOutput(address string, amountSats int64) error {
	if amountSats <= 0 {
		return fmt.Errorf("%w: output value %d", domain.ErrInvalidAmount, amountSats)
	}

	addr, err := btcutil.DecodeAddress(address, tb.network)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidAddress, err)
	}
	if !addr.IsForNet(tb.network) {
		return fmt.Errorf("%w: %s is not for %s", domain.ErrInvalidAddress, address, tb.network.Name)
	}

	pkScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return fmt.Errorf("failed to create script: %w", err)
	}

	tb.tx.AddTxOut(wire.NewTxOut(amountSats, pkScript))
	return nil
}

// Sign signs every input with SIGHASH_ALL
func (tb *TransactionBuilder) Sign() error {
	if len(tb.inputs) == 0 || len(tb.tx.TxOut) == 0 {
		return errors.New("transaction needs at least one input and one output")
	}

	for i, input := range tb.inputs {
		sigHash, err := txscript.CalcSignatureHash(input.pkScript, txscript.SigHashAll, tb.tx, i)
		if err != nil {
			return fmt.Errorf("failed to calculate signature hash for input %d: %w", i, err)
		}

		signature := ecdsa.Sign(input.privateKey, sigHash)
		sigBytes := append(signature.Serialize(), byte(txscript.SigHashAll))

		sigScript, err := txscript.NewScriptBuilder().
			AddData(sigBytes).
			AddData(input.privateKey.PubKey().SerializeCompressed()).
			Script()
		if err != nil {
			return fmt.Errorf("failed to build signature script: %w", err)
		}

		tb.tx.TxIn[i].SignatureScript = sigScript
	}

	return nil
}

// Validate executes every input script against its previous output
func (tb *TransactionBuilder) Validate() error {
	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for i, input := range tb.inputs {
		fetcher.AddPrevOut(tb.tx.TxIn[i].PreviousOutPoint, wire.NewTxOut(input.utxo.Value, input.pkScript))
	}
	sigHashes := txscript.NewTxSigHashes(tb.tx, fetcher)

	for i, input := range tb.inputs {
		engine, err := txscript.NewEngine(
			input.pkScript, tb.tx, i, txscript.StandardVerifyFlags,
			nil, sigHashes, input.utxo.Value, fetcher,
		)
		if err != nil {
			return fmt.Errorf("failed to create script engine for input %d: %w", i, err)
		}
		if err := engine.Execute(); err != nil {
			return fmt.Errorf("input %d failed verification: %w", i, err)
		}
	}

	return nil
}

// Serialize returns the raw transaction hex
func (tb *TransactionBuilder) Serialize() (string, error) {
	var buf bytes.Buffer
	if err := tb.tx.Serialize(&buf); err != nil {
		return "", fmt.Errorf("failed to serialize transaction: %w", err)
	}

	return hex.EncodeToString(buf.Bytes()), nil
}

func (tb *TransactionBuilder) TxHash() string {
	return tb.tx.TxHash().String()
}

func (tb *TransactionBuilder) InputValue() int64 {
	var total int64
	for _, input := range tb.inputs {
		total += input.utxo.Value
	}
	return total
}

func (tb *TransactionBuilder) OutputValue() int64 {
	var total int64
	for _, output := range tb.tx.TxOut {
		total += output.Value
	}
	return total
}

// Fee is the implicit fee: inputs minus outputs
func (tb *TransactionBuilder) Fee() int64 {
	return tb.InputValue() - tb.OutputValue()
}
