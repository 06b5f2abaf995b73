package registry

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	agentictrust "github.com/Agentic-Trust-Layer/agentic-trust-sub004"
	"github.com/Agentic-Trust-Layer/agentic-trust-sub004/association"
)

// AssociationStoreABI covers the read side of the on-chain association store.
var AssociationStoreABI = []byte(`[
	{
		"inputs": [{"name": "id", "type": "bytes32"}],
		"name": "getAssociation",
		"outputs": [
			{
				"name": "",
				"type": "tuple",
				"components": [
					{"name": "revokedAt", "type": "uint256"},
					{"name": "initiatorKeyType", "type": "bytes2"},
					{"name": "approverKeyType", "type": "bytes2"},
					{"name": "initiatorSignature", "type": "bytes"},
					{"name": "approverSignature", "type": "bytes"},
					{
						"name": "record",
						"type": "tuple",
						"components": [
							{"name": "initiator", "type": "bytes"},
							{"name": "approver", "type": "bytes"},
							{"name": "validAt", "type": "uint40"},
							{"name": "validUntil", "type": "uint40"},
							{"name": "interfaceId", "type": "bytes4"},
							{"name": "data", "type": "bytes"}
						]
					}
				]
			}
		],
		"stateMutability": "view",
		"type": "function"
	}
]`)

var associationStoreABI = mustABI(AssociationStoreABI)

// storedRecord mirrors the record tuple layout for abi.ConvertType.
type storedRecord struct {
	Initiator   []byte
	Approver    []byte
	ValidAt     *big.Int
	ValidUntil  *big.Int
	InterfaceId [4]byte
	Data        []byte
}

// storedAssociation mirrors the signed-record tuple layout.
type storedAssociation struct {
	RevokedAt          *big.Int
	InitiatorKeyType   [2]byte
	ApproverKeyType    [2]byte
	InitiatorSignature []byte
	ApproverSignature  []byte
	Record             storedRecord
}

// AssociationStore reads stored signed association records.
type AssociationStore struct {
	chain   agentictrust.ChainReader
	address common.Address
	timeout time.Duration
}

// NewAssociationStore builds a store reader for the contract at address.
func NewAssociationStore(chain agentictrust.ChainReader, address common.Address, callTimeout time.Duration) (*AssociationStore, error) {
	if chain == nil {
		return nil, agentictrust.NewConfigurationError("association store requires a chain reader")
	}
	if address == (common.Address{}) {
		return nil, agentictrust.NewConfigurationError("association store address is not configured")
	}
	if callTimeout == 0 {
		callTimeout = DefaultCallTimeout
	}
	return &AssociationStore{chain: chain, address: address, timeout: callTimeout}, nil
}

// GetAssociation fetches the signed record stored under id. Returns
// (nil, nil) when no association exists for the id.
func (s *AssociationStore) GetAssociation(ctx context.Context, id [32]byte) (*association.SignedRecord, error) {
	data, err := associationStoreABI.Pack("getAssociation", id)
	if err != nil {
		return nil, agentictrust.NewEncodingError(fmt.Sprintf("pack getAssociation call: %v", err))
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.chain.CallContract(callCtx, ethereum.CallMsg{To: &s.address, Data: data}, nil)
	if err != nil {
		if strings.Contains(err.Error(), "execution reverted") {
			return nil, nil
		}
		return nil, agentictrust.NewNetworkError(fmt.Sprintf("getAssociation on %s", s.address.Hex()), err)
	}

	values, err := associationStoreABI.Unpack("getAssociation", result)
	if err != nil {
		return nil, agentictrust.NewEncodingError(fmt.Sprintf("unpack getAssociation result: %v", err))
	}
	stored := *abi.ConvertType(values[0], new(storedAssociation)).(*storedAssociation)

	// A zero record means the store has nothing under this id.
	if len(stored.Record.Initiator) == 0 && len(stored.Record.Approver) == 0 {
		return nil, nil
	}

	return &association.SignedRecord{
		RevokedAt:          stored.RevokedAt,
		InitiatorKeyType:   stored.InitiatorKeyType,
		ApproverKeyType:    stored.ApproverKeyType,
		InitiatorSignature: stored.InitiatorSignature,
		ApproverSignature:  stored.ApproverSignature,
		Record: association.Record{
			Initiator:   stored.Record.Initiator,
			Approver:    stored.Record.Approver,
			ValidAt:     stored.Record.ValidAt.Uint64(),
			ValidUntil:  stored.Record.ValidUntil.Uint64(),
			InterfaceID: stored.Record.InterfaceId,
			Data:        stored.Record.Data,
		},
	}, nil
}
