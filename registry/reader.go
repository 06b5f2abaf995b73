// Package registry implements read-only clients for the identity registry,
// the reputation registry, and the association store. All calls are plain
// eth_call reads with a bounded timeout.
package registry

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	agentictrust "github.com/Agentic-Trust-Layer/agentic-trust-sub004"
)

// DefaultCallTimeout bounds a single registry read.
const DefaultCallTimeout = 10 * time.Second

// IdentityRegistryABI covers the ERC-721-style ownership and approval reads
// plus string-keyed agent metadata.
var IdentityRegistryABI = []byte(`[
	{
		"inputs": [{"name": "agentId", "type": "uint256"}],
		"name": "ownerOf",
		"outputs": [{"name": "", "type": "address"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [{"name": "agentId", "type": "uint256"}],
		"name": "getApproved",
		"outputs": [{"name": "", "type": "address"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "owner", "type": "address"},
			{"name": "operator", "type": "address"}
		],
		"name": "isApprovedForAll",
		"outputs": [{"name": "", "type": "bool"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "agentId", "type": "uint256"},
			{"name": "key", "type": "string"}
		],
		"name": "getMetadata",
		"outputs": [{"name": "", "type": "bytes"}],
		"stateMutability": "view",
		"type": "function"
	}
]`)

// ReputationRegistryABI covers the feedback index watermark and the identity
// registry discovery read.
var ReputationRegistryABI = []byte(`[
	{
		"inputs": [
			{"name": "agentId", "type": "uint256"},
			{"name": "clientAddress", "type": "address"}
		],
		"name": "getLastIndex",
		"outputs": [{"name": "", "type": "uint64"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "identityRegistry",
		"outputs": [{"name": "", "type": "address"}],
		"stateMutability": "view",
		"type": "function"
	}
]`)

var (
	identityABI   = mustABI(IdentityRegistryABI)
	reputationABI = mustABI(ReputationRegistryABI)
)

func mustABI(raw []byte) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(string(raw)))
	if err != nil {
		panic(fmt.Sprintf("registry: bad ABI: %v", err))
	}
	return parsed
}

// Config carries the addresses and chain access a Reader needs.
type Config struct {
	// Chain executes the eth_call reads. Required.
	Chain agentictrust.ChainReader

	// IdentityRegistry is the identity registry contract address. Optional
	// when Reputation is set; it is then discovered on first use.
	IdentityRegistry common.Address

	// ReputationRegistry is the reputation registry contract address.
	// Required for GetLastIndex and for identity registry discovery.
	ReputationRegistry common.Address

	// CallTimeout bounds a single read. Defaults to DefaultCallTimeout.
	CallTimeout time.Duration
}

// Reader implements agentictrust.RegistryReader over eth_call.
// Safe for concurrent use.
type Reader struct {
	chain      agentictrust.ChainReader
	reputation common.Address
	timeout    time.Duration

	mu       sync.Mutex
	identity common.Address // discovered lazily when not configured
}

// NewReader builds a registry reader.
func NewReader(cfg Config) (*Reader, error) {
	if cfg.Chain == nil {
		return nil, agentictrust.NewConfigurationError("registry reader requires a chain reader")
	}
	if cfg.IdentityRegistry == (common.Address{}) && cfg.ReputationRegistry == (common.Address{}) {
		return nil, agentictrust.NewConfigurationError("registry reader requires an identity or reputation registry address")
	}

	timeout := cfg.CallTimeout
	if timeout == 0 {
		timeout = DefaultCallTimeout
	}

	return &Reader{
		chain:      cfg.Chain,
		identity:   cfg.IdentityRegistry,
		reputation: cfg.ReputationRegistry,
		timeout:    timeout,
	}, nil
}

// IdentityRegistryAddr returns the configured identity registry address, or
// reads it from the reputation registry when none was configured.
func (r *Reader) IdentityRegistryAddr(ctx context.Context) (common.Address, error) {
	r.mu.Lock()
	identity := r.identity
	r.mu.Unlock()
	if identity != (common.Address{}) {
		return identity, nil
	}

	values, err := r.call(ctx, r.reputation, reputationABI, "identityRegistry")
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := values[0].(common.Address)
	if !ok || addr == (common.Address{}) {
		return common.Address{}, agentictrust.NewConfigurationError("reputation registry reports no identity registry")
	}

	r.mu.Lock()
	r.identity = addr
	r.mu.Unlock()
	return addr, nil
}

// OwnerOf returns the owner of an agent token.
func (r *Reader) OwnerOf(ctx context.Context, agentID *big.Int) (common.Address, error) {
	identity, err := r.IdentityRegistryAddr(ctx)
	if err != nil {
		return common.Address{}, err
	}
	values, err := r.call(ctx, identity, identityABI, "ownerOf", agentID)
	if err != nil {
		return common.Address{}, err
	}
	return values[0].(common.Address), nil
}

// GetApproved returns the approved delegate for an agent token.
func (r *Reader) GetApproved(ctx context.Context, agentID *big.Int) (common.Address, error) {
	identity, err := r.IdentityRegistryAddr(ctx)
	if err != nil {
		return common.Address{}, err
	}
	values, err := r.call(ctx, identity, identityABI, "getApproved", agentID)
	if err != nil {
		return common.Address{}, err
	}
	return values[0].(common.Address), nil
}

// IsApprovedForAll reports whether operator is approved for all of owner's tokens.
func (r *Reader) IsApprovedForAll(ctx context.Context, owner, operator common.Address) (bool, error) {
	identity, err := r.IdentityRegistryAddr(ctx)
	if err != nil {
		return false, err
	}
	values, err := r.call(ctx, identity, identityABI, "isApprovedForAll", owner, operator)
	if err != nil {
		return false, err
	}
	return values[0].(bool), nil
}

// GetMetadata returns the raw bytes stored under key for an agent, or nil
// when the key is unset.
func (r *Reader) GetMetadata(ctx context.Context, agentID *big.Int, key string) ([]byte, error) {
	identity, err := r.IdentityRegistryAddr(ctx)
	if err != nil {
		return nil, err
	}
	values, err := r.call(ctx, identity, identityABI, "getMetadata", agentID, key)
	if err != nil {
		return nil, err
	}
	raw := values[0].([]byte)
	if len(raw) == 0 {
		return nil, nil
	}
	return raw, nil
}

// GetLastIndex returns the last observed feedback index for the
// (agent, client) pair.
func (r *Reader) GetLastIndex(ctx context.Context, agentID *big.Int, client common.Address) (*big.Int, error) {
	if r.reputation == (common.Address{}) {
		return nil, agentictrust.NewConfigurationError("reputation registry address is not configured")
	}
	values, err := r.call(ctx, r.reputation, reputationABI, "getLastIndex", agentID, client)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetUint64(values[0].(uint64)), nil
}

func (r *Reader) call(ctx context.Context, contract common.Address, parsed abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, agentictrust.NewEncodingError(fmt.Sprintf("pack %s call: %v", method, err))
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.chain.CallContract(callCtx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, agentictrust.NewNetworkError(fmt.Sprintf("%s on %s", method, contract.Hex()), err)
	}

	values, err := parsed.Unpack(method, result)
	if err != nil {
		return nil, agentictrust.NewEncodingError(fmt.Sprintf("unpack %s result: %v", method, err))
	}
	return values, nil
}
