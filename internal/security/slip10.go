package security

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
)

var ed25519SeedKey = []byte("ed25519 seed")

// Ed25519Node is a SLIP-0010 ed25519 extended private key.
// Only hardened children exist on this curve.
type Ed25519Node struct {
	Key       [32]byte
	ChainCode [32]byte
}

func ed25519MasterNode(seed []byte) Ed25519Node {
	mac := hmac.New(sha512.New, ed25519SeedKey)
	mac.Write(seed)
	return splitNode(mac.Sum(nil))
}

// Child derives the hardened child i. i may be passed with or without the hardened bit.
func (n Ed25519Node) Child(i uint32) Ed25519Node {
	if i < hdkeychain.HardenedKeyStart {
		i += hdkeychain.HardenedKeyStart
	}

	data := make([]byte, 0, 37)
	data = append(data, 0x00)
	data = append(data, n.Key[:]...)
	data = binary.BigEndian.AppendUint32(data, i)

	mac := hmac.New(sha512.New, n.ChainCode[:])
	mac.Write(data)
	return splitNode(mac.Sum(nil))
}

// DerivePath walks the hardened path segments from n
func (n Ed25519Node) DerivePath(path ...uint32) Ed25519Node {
	node := n
	for _, segment := range path {
		node = node.Child(segment)
	}
	return node
}

func splitNode(sum []byte) Ed25519Node {
	var node Ed25519Node
	copy(node.Key[:], sum[:32])
	copy(node.ChainCode[:], sum[32:])
	return node
}
