package association

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// EIP-712 domain of the association record digest. The domain deliberately
// carries no chain id and no verifying contract: one digest is valid across
// chains and store deployments. This must stay bit-exact with the on-chain
// verifier.
const (
	DomainName    = "AssociatedAccounts"
	DomainVersion = "1"

	primaryType = "AssociationRecord"
)

// recordTypes declares the typed-data layout of a record. Field order must
// match the on-chain type hash.
var recordTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
	},
	primaryType: {
		{Name: "initiator", Type: "bytes"},
		{Name: "approver", Type: "bytes"},
		{Name: "validAt", Type: "uint40"},
		{Name: "validUntil", Type: "uint40"},
		{Name: "interfaceId", Type: "bytes4"},
		{Name: "data", Type: "bytes"},
	},
}

// Digest computes the deterministic 32-byte identifier of a record:
// keccak256(0x1901 || domainSeparator || structHash). Pure function of the
// record; the result doubles as the association id.
func Digest(record Record) ([32]byte, error) {
	var digest [32]byte

	typedData := apitypes.TypedData{
		Types:       recordTypes,
		PrimaryType: primaryType,
		Domain: apitypes.TypedDataDomain{
			Name:    DomainName,
			Version: DomainVersion,
		},
		Message: apitypes.TypedDataMessage{
			"initiator":   hexutil.Bytes(record.Initiator),
			"approver":    hexutil.Bytes(record.Approver),
			"validAt":     (*math.HexOrDecimal256)(new(big.Int).SetUint64(record.ValidAt)),
			"validUntil":  (*math.HexOrDecimal256)(new(big.Int).SetUint64(record.ValidUntil)),
			"interfaceId": hexutil.Bytes(record.InterfaceID[:]),
			"data":        hexutil.Bytes(record.Data),
		},
	}

	structHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return digest, fmt.Errorf("failed to hash record struct: %w", err)
	}

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return digest, fmt.Errorf("failed to hash domain: %w", err)
	}

	rawData := []byte{0x19, 0x01}
	rawData = append(rawData, domainSeparator...)
	rawData = append(rawData, structHash...)
	copy(digest[:], crypto.Keccak256(rawData))

	return digest, nil
}
