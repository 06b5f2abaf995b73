// Package agentictrust defines the shared error taxonomy and the narrow
// collaborator interfaces consumed by the protocol packages: chain reads,
// account signing, registry lookups, and content-addressed storage.
package agentictrust

import (
	"context"
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// ChainReader is the minimal read surface the protocol needs from a chain
// node. *ethclient.Client satisfies it.
type ChainReader interface {
	// CodeAt returns the contract code at the given account. An empty result
	// means the address has no deployed code (plain key or counterfactual).
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)

	// CallContract executes a read-only contract call.
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// AccountSigner produces signatures on behalf of one account. Implementations
// may wrap a raw key, a provider RPC, or hardware-backed signing.
type AccountSigner interface {
	// Address returns the signer's own account address.
	Address() common.Address

	// SignTypedDigest signs an EIP-712 digest directly (the digest already
	// binds the fixed AssociatedAccounts domain). Returns a 65-byte r||s||v
	// signature with v in {27, 28}.
	SignTypedDigest(ctx context.Context, digest [32]byte) ([]byte, error)

	// SignPersonal signs the 32 digest bytes as a plain personal message
	// (EIP-191 "\x19Ethereum Signed Message" prefix).
	SignPersonal(ctx context.Context, digest [32]byte) ([]byte, error)
}

// RegistryReader exposes the read-only identity/reputation registry calls the
// protocol depends on.
type RegistryReader interface {
	// OwnerOf returns the owner of an agent token.
	OwnerOf(ctx context.Context, agentID *big.Int) (common.Address, error)

	// GetApproved returns the single approved delegate for an agent token.
	GetApproved(ctx context.Context, agentID *big.Int) (common.Address, error)

	// IsApprovedForAll reports whether operator is approved for all tokens of owner.
	IsApprovedForAll(ctx context.Context, owner, operator common.Address) (bool, error)

	// GetMetadata returns the raw bytes stored under a string metadata key for
	// an agent, or nil when the key is unset.
	GetMetadata(ctx context.Context, agentID *big.Int, key string) ([]byte, error)

	// GetLastIndex returns the last observed feedback index for the
	// (agent, client) pair. Zero when no feedback has been recorded.
	GetLastIndex(ctx context.Context, agentID *big.Int, client common.Address) (*big.Int, error)
}

// UploadResult identifies content anchored to content-addressed storage.
type UploadResult struct {
	// ContentID is the content-derived identifier (e.g. an IPFS CID).
	ContentID string `json:"contentId"`
	// URL is a direct gateway URL for the content.
	URL string `json:"url"`
	// TokenURI is the canonical scheme-qualified reference (e.g. "ipfs://...").
	TokenURI string `json:"tokenUri"`
}

// Storage is the upload/fetch contract of the content-addressed storage
// collaborator. Backend details are out of scope for this module.
type Storage interface {
	// Upload anchors data under filename and returns its content identifiers.
	Upload(ctx context.Context, data []byte, filename string) (*UploadResult, error)

	// FetchJSON retrieves and parses the JSON document behind tokenURI.
	// Inline data: URIs are decoded without a network call. Returns (nil, nil)
	// when the content is definitively absent.
	FetchJSON(ctx context.Context, tokenURI string) (json.RawMessage, error)
}
