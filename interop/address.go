// Package interop implements the compact interoperable encoding of
// (chainId, address) pairs shared by the association record format and the
// on-chain association store.
//
// Wire layout:
//
//	header      4 bytes  0x00010000
//	chainRefLen 1 byte
//	chainRef    minimal big-endian chainId (single 0x00 byte for chain 0)
//	addrLen     1 byte   always 20
//	address     20 bytes
package interop

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	agentictrust "github.com/Agentic-Trust-Layer/agentic-trust-sub004"
)

// header identifies version 1 of the interoperable address format with an
// EIP-155 chain reference.
var header = []byte{0x00, 0x01, 0x00, 0x00}

// maxChainRefLen bounds the chain reference at one EVM word.
const maxChainRefLen = 32

// Encode produces the interoperable byte form of a chain-qualified address.
func Encode(chainID *big.Int, account common.Address) ([]byte, error) {
	if chainID == nil {
		return nil, agentictrust.NewEncodingError("chain id is required")
	}
	if chainID.Sign() < 0 {
		return nil, agentictrust.NewEncodingError(fmt.Sprintf("chain id must not be negative: %s", chainID))
	}

	// big.Int.Bytes is minimal big-endian with no leading zeros; chain 0
	// still needs one explicit zero byte on the wire.
	chainRef := chainID.Bytes()
	if len(chainRef) == 0 {
		chainRef = []byte{0x00}
	}
	if len(chainRef) > maxChainRefLen {
		return nil, agentictrust.NewEncodingError(fmt.Sprintf("chain id too large: %s", chainID))
	}

	out := make([]byte, 0, len(header)+1+len(chainRef)+1+common.AddressLength)
	out = append(out, header...)
	out = append(out, byte(len(chainRef)))
	out = append(out, chainRef...)
	out = append(out, byte(common.AddressLength))
	out = append(out, account.Bytes()...)
	return out, nil
}

// EncodeBytes is Encode for a raw address byte slice, failing when the
// address is not exactly 20 bytes.
func EncodeBytes(chainID *big.Int, account []byte) ([]byte, error) {
	if len(account) != common.AddressLength {
		return nil, agentictrust.NewEncodingError(fmt.Sprintf("address must be %d bytes, got %d", common.AddressLength, len(account)))
	}
	return Encode(chainID, common.BytesToAddress(account))
}

// Decode parses an interoperable address back into its (chainId, address)
// pair. Round-trip law: Decode(Encode(c, a)) == (c, a) for all valid inputs.
func Decode(encoded []byte) (*big.Int, common.Address, error) {
	var zero common.Address

	if len(encoded) < len(header)+1 {
		return nil, zero, agentictrust.NewEncodingError(fmt.Sprintf("interoperable address too short: %d bytes", len(encoded)))
	}
	if !bytes.Equal(encoded[:len(header)], header) {
		return nil, zero, agentictrust.NewEncodingError(fmt.Sprintf("unsupported interoperable address header: 0x%x", encoded[:len(header)]))
	}

	refLen := int(encoded[len(header)])
	if refLen == 0 || refLen > maxChainRefLen {
		return nil, zero, agentictrust.NewEncodingError(fmt.Sprintf("invalid chain reference length: %d", refLen))
	}
	if len(encoded) < len(header)+1+refLen+1 {
		return nil, zero, agentictrust.NewEncodingError("interoperable address truncated in chain reference")
	}

	chainRef := encoded[len(header)+1 : len(header)+1+refLen]
	if refLen > 1 && chainRef[0] == 0x00 {
		return nil, zero, agentictrust.NewEncodingError("chain reference has a leading zero byte")
	}

	addrLenPos := len(header) + 1 + refLen
	addrLen := int(encoded[addrLenPos])
	if addrLen != common.AddressLength {
		return nil, zero, agentictrust.NewEncodingError(fmt.Sprintf("unsupported address length: %d", addrLen))
	}
	if len(encoded) != addrLenPos+1+addrLen {
		return nil, zero, agentictrust.NewEncodingError(fmt.Sprintf("interoperable address length mismatch: %d bytes", len(encoded)))
	}

	chainID := new(big.Int).SetBytes(chainRef)
	account := common.BytesToAddress(encoded[addrLenPos+1:])
	return chainID, account, nil
}
