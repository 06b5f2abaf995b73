package clientcache

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	agentictrust "github.com/Agentic-Trust-Layer/agentic-trust-sub004"
	"github.com/Agentic-Trust-Layer/agentic-trust-sub004/registry"
	"github.com/Agentic-Trust-Layer/agentic-trust-sub004/signers"
)

// ChainConfig carries the per-chain settings needed to build readers and
// signing contexts.
type ChainConfig struct {
	ChainID *big.Int
	RPCURL  string

	IdentityRegistry   common.Address
	ReputationRegistry common.Address

	// Signing keys in priority order. Leave empty for a read-only context.
	AdminPrivateKey    string
	ProviderPrivateKey string
	ClientPrivateKey   string
}

// SignerContext is one live chain-scoped signing/reading context. Signer is
// nil in a read-only context.
type SignerContext struct {
	// Role names the signing context that was resolved: "admin", "provider",
	// "client", or "read-only".
	Role   string
	Signer agentictrust.AccountSigner
	Chain  agentictrust.ChainReader
}

// CanSign reports whether the context carries a signer.
func (c *SignerContext) CanSign() bool {
	return c.Signer != nil
}

// signerStrategy is one entry in the priority-ordered signing-context list:
// a capability check plus a build function.
type signerStrategy struct {
	role      string
	available func(cfg ChainConfig) bool
	key       func(cfg ChainConfig) string
}

// signerStrategies is evaluated in order; the first available context wins.
// The selection is deterministic given the same set of configured keys.
var signerStrategies = []signerStrategy{
	{
		role:      "admin",
		available: func(cfg ChainConfig) bool { return cfg.AdminPrivateKey != "" },
		key:       func(cfg ChainConfig) string { return cfg.AdminPrivateKey },
	},
	{
		role:      "provider",
		available: func(cfg ChainConfig) bool { return cfg.ProviderPrivateKey != "" },
		key:       func(cfg ChainConfig) string { return cfg.ProviderPrivateKey },
	},
	{
		role:      "client",
		available: func(cfg ChainConfig) bool { return cfg.ClientPrivateKey != "" },
		key:       func(cfg ChainConfig) string { return cfg.ClientPrivateKey },
	},
}

// resolveSignerContext dials the chain and takes the first available signing
// context, falling back to a read-only context backed only by the network
// reader when no key is configured.
func resolveSignerContext(ctx context.Context, cfg ChainConfig) (*SignerContext, error) {
	if cfg.RPCURL == "" {
		return nil, agentictrust.NewConfigurationError(fmt.Sprintf("no RPC URL configured for chain %s", cfg.ChainID))
	}

	chain, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, agentictrust.NewNetworkError(fmt.Sprintf("dial %s", cfg.RPCURL), err)
	}

	for _, strategy := range signerStrategies {
		if !strategy.available(cfg) {
			continue
		}
		signer, err := signers.NewECDSASigner(strategy.key(cfg))
		if err != nil {
			return nil, agentictrust.NewConfigurationError(fmt.Sprintf("bad %s key for chain %s: %v", strategy.role, cfg.ChainID, err))
		}
		return &SignerContext{Role: strategy.role, Signer: signer, Chain: chain}, nil
	}

	return &SignerContext{Role: "read-only", Chain: chain}, nil
}

// Caches bundles the chain-keyed caches an application constructs once and
// passes by reference into every component that needs them.
type Caches struct {
	Signers *Cache[uint64, *SignerContext]
	Readers *Cache[uint64, *registry.Reader]
}

// NewCaches builds the signer and reader caches over a chain configuration
// table keyed by chain id.
func NewCaches(configs map[uint64]ChainConfig) *Caches {
	signerCache := New(func(ctx context.Context, chainID uint64) (*SignerContext, error) {
		cfg, ok := configs[chainID]
		if !ok {
			return nil, agentictrust.NewConfigurationError(fmt.Sprintf("no configuration for chain %d", chainID))
		}
		return resolveSignerContext(ctx, cfg)
	})

	readerCache := New(func(ctx context.Context, chainID uint64) (*registry.Reader, error) {
		cfg, ok := configs[chainID]
		if !ok {
			return nil, agentictrust.NewConfigurationError(fmt.Sprintf("no configuration for chain %d", chainID))
		}
		if cfg.RPCURL == "" {
			return nil, agentictrust.NewConfigurationError(fmt.Sprintf("no RPC URL configured for chain %d", chainID))
		}
		chain, err := ethclient.DialContext(ctx, cfg.RPCURL)
		if err != nil {
			return nil, agentictrust.NewNetworkError(fmt.Sprintf("dial %s", cfg.RPCURL), err)
		}
		return registry.NewReader(registry.Config{
			Chain:              chain,
			IdentityRegistry:   cfg.IdentityRegistry,
			ReputationRegistry: cfg.ReputationRegistry,
		})
	})

	return &Caches{Signers: signerCache, Readers: readerCache}
}
