package association

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	agentictrust "github.com/Agentic-Trust-Layer/agentic-trust-sub004"
)

// EIP1271MagicValue is returned by isValidSignature on success.
var EIP1271MagicValue = [4]byte{0x16, 0x26, 0xba, 0x7e}

// ERC1271ABI covers the signature-validation entry point of contract accounts.
var ERC1271ABI = []byte(`[
	{
		"inputs": [
			{"name": "hash", "type": "bytes32"},
			{"name": "signature", "type": "bytes"}
		],
		"name": "isValidSignature",
		"outputs": [{"name": "", "type": "bytes4"}],
		"stateMutability": "view",
		"type": "function"
	}
]`)

// ChainVerifier validates signatures against on-chain authorities through an
// ERC-1271 isValidSignature probe.
type ChainVerifier struct {
	chain agentictrust.ChainReader
	abi   abi.ABI
}

// NewChainVerifier builds a verifier over a chain reader.
func NewChainVerifier(chain agentictrust.ChainReader) (*ChainVerifier, error) {
	parsed, err := abi.JSON(strings.NewReader(string(ERC1271ABI)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC-1271 ABI: %w", err)
	}
	return &ChainVerifier{chain: chain, abi: parsed}, nil
}

// HasCode reports whether the authority has deployed code at the latest block.
func (v *ChainVerifier) HasCode(ctx context.Context, authority common.Address) (bool, error) {
	code, err := v.chain.CodeAt(ctx, authority, nil)
	if err != nil {
		return false, err
	}
	return len(code) > 0, nil
}

// IsValidSignature calls isValidSignature(digest, signature) on the authority
// and compares the response to the EIP-1271 magic value. A revert or a
// non-magic response means the authority rejects the signature.
func (v *ChainVerifier) IsValidSignature(ctx context.Context, authority common.Address, digest [32]byte, signature []byte) (bool, error) {
	data, err := v.abi.Pack("isValidSignature", digest, signature)
	if err != nil {
		return false, fmt.Errorf("failed to pack isValidSignature call: %w", err)
	}

	result, err := v.chain.CallContract(ctx, ethereum.CallMsg{To: &authority, Data: data}, nil)
	if err != nil {
		// Accounts without 1271 support revert; that is a rejection, not an outage.
		if isRevert(err) {
			return false, nil
		}
		return false, err
	}

	values, err := v.abi.Unpack("isValidSignature", result)
	if err != nil {
		return false, nil
	}
	magic, ok := values[0].([4]byte)
	if !ok {
		return false, nil
	}
	return bytes.Equal(magic[:], EIP1271MagicValue[:]), nil
}

func isRevert(err error) bool {
	return err != nil && strings.Contains(err.Error(), "execution reverted")
}
