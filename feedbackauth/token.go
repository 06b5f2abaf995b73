// Package feedbackauth builds signed, bounded feedback-authorization tokens:
// a grant letting one client address submit feedback about an agent until an
// index limit or expiry is reached.
package feedbackauth

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	agentictrust "github.com/Agentic-Trust-Layer/agentic-trust-sub004"
)

// Auth is the seven-field authorization struct the reputation registry
// verifies. Field order matches the on-chain ABI tuple.
type Auth struct {
	AgentID          *big.Int
	ClientAddress    common.Address
	IndexLimit       *big.Int
	Expiry           *big.Int
	ChainID          *big.Int
	IdentityRegistry common.Address
	SignerAddress    common.Address
}

// encodedAuthLen is the byte length of the ABI-encoded tuple: seven static
// words.
const encodedAuthLen = 7 * 32

var authArgs = abi.Arguments{
	{Name: "agentId", Type: mustType("uint256")},
	{Name: "clientAddress", Type: mustType("address")},
	{Name: "indexLimit", Type: mustType("uint256")},
	{Name: "expiry", Type: mustType("uint256")},
	{Name: "chainId", Type: mustType("uint256")},
	{Name: "identityRegistry", Type: mustType("address")},
	{Name: "signerAddress", Type: mustType("address")},
}

func mustType(t string) abi.Type {
	ty, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(fmt.Sprintf("feedbackauth: bad abi type %q: %v", t, err))
	}
	return ty
}

// Encode ABI-encodes the authorization tuple in its fixed field order.
func (a Auth) Encode() ([]byte, error) {
	out, err := authArgs.Pack(
		a.AgentID,
		a.ClientAddress,
		a.IndexLimit,
		a.Expiry,
		a.ChainID,
		a.IdentityRegistry,
		a.SignerAddress,
	)
	if err != nil {
		return nil, agentictrust.NewEncodingError(fmt.Sprintf("encode feedback auth: %v", err))
	}
	return out, nil
}

// Token is a built feedback authorization: the struct, its encoding, and the
// signature over the encoding's hash.
type Token struct {
	Auth      Auth
	Encoded   []byte
	Signature []byte
}

// Bytes returns the opaque token consumed downstream: encodedStruct || signature.
func (t *Token) Bytes() []byte {
	out := make([]byte, 0, len(t.Encoded)+len(t.Signature))
	out = append(out, t.Encoded...)
	out = append(out, t.Signature...)
	return out
}

// ParseToken splits an opaque token back into its authorization struct and
// signature.
func ParseToken(token []byte) (Auth, []byte, error) {
	if len(token) <= encodedAuthLen {
		return Auth{}, nil, agentictrust.NewEncodingError(fmt.Sprintf("feedback auth token too short: %d bytes", len(token)))
	}

	values, err := authArgs.Unpack(token[:encodedAuthLen])
	if err != nil {
		return Auth{}, nil, agentictrust.NewEncodingError(fmt.Sprintf("decode feedback auth: %v", err))
	}

	return Auth{
		AgentID:          values[0].(*big.Int),
		ClientAddress:    values[1].(common.Address),
		IndexLimit:       values[2].(*big.Int),
		Expiry:           values[3].(*big.Int),
		ChainID:          values[4].(*big.Int),
		IdentityRegistry: values[5].(common.Address),
		SignerAddress:    values[6].(common.Address),
	}, token[encodedAuthLen:], nil
}
