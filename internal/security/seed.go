// internal/security/seed.go
package security

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"crypto-collector/internal/domain"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/tyler-smith/go-bip39"
	"go.uber.org/zap"
)

// SeedAuthority holds the master seed for the life of the process.
// It is built once at startup and is read-only afterwards; every
// deriver receives it explicitly.
type SeedAuthority struct {
	secpMaster  *hdkeychain.ExtendedKey
	edMaster    Ed25519Node
	fingerprint string
}

// NewSeedAuthority validates a BIP39 mnemonic and expands it into the seed
func NewSeedAuthority(mnemonic, passphrase string) (*SeedAuthority, error) {
	mnemonic = strings.Join(strings.Fields(mnemonic), " ")
	if mnemonic == "" {
		return nil, domain.ErrSeedMissing
	}

	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, passphrase)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSeedInvalid, err)
	}

	return NewSeedAuthorityFromSeed(seed)
}

// NewSeedAuthorityFromSeed builds the authority from a raw 16-64 byte seed
func NewSeedAuthorityFromSeed(seed []byte) (*SeedAuthority, error) {
	if len(seed) == 0 {
		return nil, domain.ErrSeedMissing
	}
	if len(seed) < hdkeychain.MinSeedBytes || len(seed) > hdkeychain.MaxSeedBytes {
		return nil, fmt.Errorf("%w: seed must be %d-%d bytes, got %d",
			domain.ErrSeedInvalid, hdkeychain.MinSeedBytes, hdkeychain.MaxSeedBytes, len(seed))
	}

	// The network only affects xprv serialisation, never derivation.
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSeedInvalid, err)
	}

	// ExtendedKey memoises its public key on first use; do it now so
	// concurrent derivations only ever read.
	pub, err := master.ECPubKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSeedInvalid, err)
	}

	return &SeedAuthority{
		secpMaster:  master,
		edMaster:    ed25519MasterNode(seed),
		fingerprint: hex.EncodeToString(btcutil.Hash160(pub.SerializeCompressed())[:4]),
	}, nil
}

// NewSeedAuthorityFromHex accepts a hex encoded raw seed
func NewSeedAuthorityFromHex(seedHex string) (*SeedAuthority, error) {
	seedHex = strings.TrimSpace(seedHex)
	if seedHex == "" {
		return nil, domain.ErrSeedMissing
	}
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSeedInvalid, err)
	}
	return NewSeedAuthorityFromSeed(seed)
}

// LoadSeedAuthority reads the mnemonic (and optional passphrase) from a secret provider,
// falling back to a raw hex seed
func LoadSeedAuthority(ctx context.Context, provider SecretProvider, logger *zap.Logger) (*SeedAuthority, error) {
	mnemonic, err := provider.GetSecret(ctx, SecretMasterMnemonic)
	if err != nil {
		if !errors.Is(err, ErrSecretNotFound) {
			return nil, fmt.Errorf("failed to read master mnemonic: %w", err)
		}
		return loadHexSeed(ctx, provider, logger)
	}

	passphrase, err := provider.GetSecret(ctx, SecretMasterPassphrase)
	if err != nil {
		if !errors.Is(err, ErrSecretNotFound) {
			return nil, fmt.Errorf("failed to read master passphrase: %w", err)
		}
		passphrase = ""
	}

	authority, err := NewSeedAuthority(mnemonic, passphrase)
	if err != nil {
		return nil, err
	}

	logger.Info("Seed authority initialized",
		zap.String("fingerprint", authority.Fingerprint()),
		zap.Bool("passphrase", passphrase != ""))

	return authority, nil
}

func loadHexSeed(ctx context.Context, provider SecretProvider, logger *zap.Logger) (*SeedAuthority, error) {
	seedHex, err := provider.GetSecret(ctx, SecretMasterSeed)
	if err != nil {
		if errors.Is(err, ErrSecretNotFound) {
			return nil, fmt.Errorf("%w: neither %s nor %s is set", domain.ErrSeedMissing, SecretMasterMnemonic, SecretMasterSeed)
		}
		return nil, fmt.Errorf("failed to read master seed: %w", err)
	}

	authority, err := NewSeedAuthorityFromHex(strings.TrimSpace(seedHex))
	if err != nil {
		return nil, err
	}

	logger.Info("Seed authority initialized from raw seed",
		zap.String("fingerprint", authority.Fingerprint()))

	return authority, nil
}

// Secp256k1Branch derives a BIP32 node below the master and prepares it for
// concurrent use. Derivers call this once for their account branch.
func (s *SeedAuthority) Secp256k1Branch(path ...uint32) (*hdkeychain.ExtendedKey, error) {
	node := s.secpMaster
	for _, segment := range path {
		child, err := node.Derive(segment)
		if err != nil {
			return nil, fmt.Errorf("derive segment %d: %w", segment, err)
		}
		node = child
	}

	if _, err := node.ECPubKey(); err != nil {
		return nil, err
	}

	return node, nil
}

// Ed25519Derive derives a SLIP-0010 node; every segment is hardened
func (s *SeedAuthority) Ed25519Derive(path ...uint32) Ed25519Node {
	return s.edMaster.DerivePath(path...)
}

// Fingerprint identifies the seed in logs without revealing it
func (s *SeedAuthority) Fingerprint() string {
	return s.fingerprint
}

// GenerateMnemonic returns a fresh 24-word BIP39 mnemonic
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", fmt.Errorf("failed to generate entropy: %w", err)
	}

	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("failed to create mnemonic: %w", err)
	}

	return mnemonic, nil
}
