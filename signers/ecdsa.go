// Package signers provides AccountSigner implementations backed by local keys.
package signers

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ECDSASigner signs with a raw secp256k1 private key. It implements the
// typed-digest scheme (raw ECDSA over an EIP-712 digest) and the
// personal-message scheme (EIP-191 prefix over the digest bytes).
type ECDSASigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewECDSASigner creates a signer from a hex-encoded private key, with or
// without a "0x" prefix.
func NewECDSASigner(privateKeyHex string) (*ECDSASigner, error) {
	privateKeyHex = strings.TrimPrefix(privateKeyHex, "0x")

	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	return &ECDSASigner{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
	}, nil
}

// Address returns the account address derived from the key.
func (s *ECDSASigner) Address() common.Address {
	return s.address
}

// SignTypedDigest signs an EIP-712 digest directly. The digest already binds
// its domain, so no further hashing is applied.
func (s *ECDSASigner) SignTypedDigest(_ context.Context, digest [32]byte) ([]byte, error) {
	return s.sign(digest[:])
}

// SignPersonal signs the digest bytes as an EIP-191 personal message.
func (s *ECDSASigner) SignPersonal(_ context.Context, digest [32]byte) ([]byte, error) {
	return s.sign(accounts.TextHash(digest[:]))
}

func (s *ECDSASigner) sign(hash []byte) ([]byte, error) {
	signature, err := crypto.Sign(hash, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}

	// Recovery id 0/1 -> 27/28.
	signature[64] += 27

	return signature, nil
}
