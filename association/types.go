// Package association builds association records binding two chain-qualified
// identities, computes their canonical typed digests, and selects the
// signature encoding a given authority will accept.
package association

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"

	agentictrust "github.com/Agentic-Trust-Layer/agentic-trust-sub004"
)

// Association type tags carried in the data blob.
const (
	// TypeDelegation marks an association whose data describes an operator
	// delegation.
	TypeDelegation uint8 = 1
)

// Key-type tags recorded in signed association records, matching the
// candidate order tried by SelectSignature.
var (
	// KeyTypeTypedData tags a signature produced over the typed digest.
	KeyTypeTypedData = [2]byte{0x00, 0x01}
	// KeyTypePersonal tags a personal-message signature over the raw digest bytes.
	KeyTypePersonal = [2]byte{0x00, 0x02}
)

// Record is the canonical association record. It is immutable once its
// digest has been computed; changing any field invalidates the digest.
type Record struct {
	// Initiator and Approver are interoperable address bytes (see interop).
	Initiator []byte
	Approver  []byte

	// ValidAt and ValidUntil are 40-bit unsigned validity bounds.
	ValidAt    uint64
	ValidUntil uint64

	// InterfaceID selects the association interface on the store contract.
	InterfaceID [4]byte

	// Data is an ABI-encoded (uint8 assocType, string description) tuple.
	Data []byte
}

// SignedRecord is an association record plus the signatures and key-type tags
// the on-chain store persists. The approver signs first in the server-side
// delegation flow; the initiator signature is left empty for the
// counter-party to complete.
type SignedRecord struct {
	RevokedAt          *big.Int
	InitiatorKeyType   [2]byte
	ApproverKeyType    [2]byte
	InitiatorSignature []byte
	ApproverSignature  []byte
	Record             Record
}

// dataArgs is the ABI layout of the association data blob.
var dataArgs = abi.Arguments{
	{Name: "assocType", Type: mustType("uint8")},
	{Name: "description", Type: mustType("string")},
}

func mustType(t string) abi.Type {
	ty, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(fmt.Sprintf("association: bad abi type %q: %v", t, err))
	}
	return ty
}

// EncodeData ABI-encodes the (assocType, description) tuple carried in
// Record.Data. The description commonly holds a JSON pointer to an
// externally anchored payload, never the payload itself.
func EncodeData(assocType uint8, description string) ([]byte, error) {
	out, err := dataArgs.Pack(assocType, description)
	if err != nil {
		return nil, agentictrust.NewEncodingError(fmt.Sprintf("encode association data: %v", err))
	}
	return out, nil
}

// DecodeData parses an association data blob back into its type tag and
// description.
func DecodeData(data []byte) (uint8, string, error) {
	values, err := dataArgs.Unpack(data)
	if err != nil {
		return 0, "", agentictrust.NewEncodingError(fmt.Sprintf("decode association data: %v", err))
	}
	assocType, ok := values[0].(uint8)
	if !ok {
		return 0, "", agentictrust.NewEncodingError("association data: assocType is not uint8")
	}
	description, ok := values[1].(string)
	if !ok {
		return 0, "", agentictrust.NewEncodingError("association data: description is not a string")
	}
	return assocType, description, nil
}
