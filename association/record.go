package association

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Agentic-Trust-Layer/agentic-trust-sub004/interop"
)

// MaxUint40 is the largest representable validity bound.
const MaxUint40 = uint64(1)<<40 - 1

// BuildRecord encodes both parties into interoperable form and assembles a
// record. validAt and validUntil are clamped into the 40-bit unsigned range;
// negative inputs clamp to zero.
func BuildRecord(
	initiator common.Address,
	approver common.Address,
	chainID *big.Int,
	validAt int64,
	validUntil int64,
	interfaceID [4]byte,
	data []byte,
) (Record, error) {
	initiatorBytes, err := interop.Encode(chainID, initiator)
	if err != nil {
		return Record{}, err
	}
	approverBytes, err := interop.Encode(chainID, approver)
	if err != nil {
		return Record{}, err
	}

	return Record{
		Initiator:   initiatorBytes,
		Approver:    approverBytes,
		ValidAt:     clampUint40(validAt),
		ValidUntil:  clampUint40(validUntil),
		InterfaceID: interfaceID,
		Data:        data,
	}, nil
}

func clampUint40(v int64) uint64 {
	if v < 0 {
		return 0
	}
	if uint64(v) > MaxUint40 {
		return MaxUint40
	}
	return uint64(v)
}
