package feedbackauth

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	agentictrust "github.com/Agentic-Trust-Layer/agentic-trust-sub004"
)

// agentAccountKey is the identity-registry metadata key naming the account
// a feedback authorization should be attributed to.
const agentAccountKey = "agentAccount"

// accountEncoding tags which of the known agentAccount encodings matched.
type accountEncoding int

const (
	encodingRaw accountEncoding = iota
	encodingHex
	encodingCAIP10
)

func (e accountEncoding) String() string {
	switch e {
	case encodingRaw:
		return "raw"
	case encodingHex:
		return "hex"
	case encodingCAIP10:
		return "caip10"
	default:
		return "unknown"
	}
}

// parseAgentAccount extracts a 20-byte account from the loosely typed
// agentAccount metadata value. Encodings are tried in a fixed order: raw
// 20-byte value, hex string, CAIP-10 account id.
func parseAgentAccount(raw []byte) (common.Address, accountEncoding, error) {
	if len(raw) == common.AddressLength {
		return common.BytesToAddress(raw), encodingRaw, nil
	}

	s := strings.TrimSpace(string(raw))
	if common.IsHexAddress(s) {
		return common.HexToAddress(s), encodingHex, nil
	}

	// CAIP-10: namespace:chainId:address
	if parts := strings.Split(s, ":"); len(parts) == 3 && common.IsHexAddress(parts[2]) {
		return common.HexToAddress(parts[2]), encodingCAIP10, nil
	}

	return common.Address{}, 0, agentictrust.NewEncodingError(fmt.Sprintf("agentAccount metadata is not a recognizable address: %d bytes", len(raw)))
}
