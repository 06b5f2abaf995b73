package feedbackauth

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	agentictrust "github.com/Agentic-Trust-Layer/agentic-trust-sub004"
)

// RegistrySource is optionally implemented by registry readers that can
// report the identity registry address recorded by a related contract. Used
// when no address is configured.
type RegistrySource interface {
	IdentityRegistryAddr(ctx context.Context) (common.Address, error)
}

// Config wires a Builder.
type Config struct {
	// Registry performs the identity/reputation reads. Required.
	Registry agentictrust.RegistryReader

	// Chain detects smart-account signers via code lookups. Required.
	Chain agentictrust.ChainReader

	// Signer produces the token signature. Required.
	Signer agentictrust.AccountSigner

	// ChainID the authorization is scoped to. Required.
	ChainID *big.Int

	// IdentityRegistry, when set, skips the discovery read against the
	// reputation registry.
	IdentityRegistry common.Address

	Logger *zap.Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Builder produces feedback-authorization tokens. Steps run strictly in
// order: resolve registry, check authorization, compute bounds, sign; the
// first error is terminal for the call.
type Builder struct {
	registry         agentictrust.RegistryReader
	chain            agentictrust.ChainReader
	signer           agentictrust.AccountSigner
	chainID          *big.Int
	identityRegistry common.Address
	log              *zap.Logger
	now              func() time.Time
}

// NewBuilder validates the configuration and returns a Builder.
func NewBuilder(cfg Config) (*Builder, error) {
	if cfg.Registry == nil {
		return nil, agentictrust.NewConfigurationError("feedback auth builder requires a registry reader")
	}
	if cfg.Chain == nil {
		return nil, agentictrust.NewConfigurationError("feedback auth builder requires a chain reader")
	}
	if cfg.Signer == nil {
		return nil, agentictrust.NewConfigurationError("feedback auth builder requires a signer")
	}
	if cfg.ChainID == nil || cfg.ChainID.Sign() < 0 {
		return nil, agentictrust.NewConfigurationError("feedback auth builder requires a chain id")
	}

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Builder{
		registry:         cfg.Registry,
		chain:            cfg.Chain,
		signer:           cfg.Signer,
		chainID:          cfg.ChainID,
		identityRegistry: cfg.IdentityRegistry,
		log:              log,
		now:              now,
	}, nil
}

// Build authorizes clientAddr to submit feedback about agentID for
// expirySeconds from now, returning the signed opaque token.
func (b *Builder) Build(ctx context.Context, agentID *big.Int, clientAddr common.Address, expirySeconds uint64) (*Token, error) {
	if agentID == nil {
		return nil, agentictrust.NewConfigurationError("agent id is required")
	}

	identityRegistry, err := b.resolveRegistry(ctx)
	if err != nil {
		return nil, err
	}

	if err := b.checkAuthorization(ctx, agentID); err != nil {
		return nil, err
	}

	signerAddress, err := b.resolveAuthority(ctx, agentID)
	if err != nil {
		return nil, err
	}

	indexLimit, expiry, err := b.computeBounds(ctx, agentID, clientAddr, expirySeconds)
	if err != nil {
		return nil, err
	}

	auth := Auth{
		AgentID:          agentID,
		ClientAddress:    clientAddr,
		IndexLimit:       indexLimit,
		Expiry:           expiry,
		ChainID:          b.chainID,
		IdentityRegistry: identityRegistry,
		SignerAddress:    signerAddress,
	}
	return b.sign(ctx, auth)
}

// resolveRegistry prefers the configured identity registry address; falling
// back costs one extra read against the reputation registry.
func (b *Builder) resolveRegistry(ctx context.Context) (common.Address, error) {
	if b.identityRegistry != (common.Address{}) {
		return b.identityRegistry, nil
	}
	source, ok := b.registry.(RegistrySource)
	if !ok {
		return common.Address{}, agentictrust.NewConfigurationError("identity registry address is not configured and the registry reader cannot discover it")
	}
	return source.IdentityRegistryAddr(ctx)
}

// checkAuthorization requires the signer to be the agent token's approved
// delegate or covered by a blanket operator approval. Smart-account signers
// skip the registry check: the downstream 1271-style validation enforces
// authorization for them.
func (b *Builder) checkAuthorization(ctx context.Context, agentID *big.Int) error {
	signerAddr := b.signer.Address()

	code, err := b.chain.CodeAt(ctx, signerAddr, nil)
	if err != nil {
		return agentictrust.NewNetworkError(fmt.Sprintf("check code at %s", signerAddr.Hex()), err)
	}
	if len(code) > 0 {
		b.log.Debug("smart-account signer, skipping operator approval check",
			zap.String("signer", signerAddr.Hex()))
		return nil
	}

	owner, err := b.registry.OwnerOf(ctx, agentID)
	if err != nil {
		return err
	}

	approved, err := b.registry.GetApproved(ctx, agentID)
	if err != nil {
		return err
	}
	if approved == signerAddr {
		return nil
	}

	approvedForAll, err := b.registry.IsApprovedForAll(ctx, owner, signerAddr)
	if err != nil {
		return err
	}
	if approvedForAll {
		return nil
	}

	return agentictrust.NewAuthorizationError(fmt.Sprintf("signer %s is neither approved for agent %s nor an operator of owner %s", signerAddr.Hex(), agentID, owner.Hex()))
}

// resolveAuthority attributes the token to the agentAccount recorded in the
// identity registry when one decodes to a valid address, and to the raw
// signer otherwise.
func (b *Builder) resolveAuthority(ctx context.Context, agentID *big.Int) (common.Address, error) {
	raw, err := b.registry.GetMetadata(ctx, agentID, agentAccountKey)
	if err != nil {
		return common.Address{}, err
	}
	if len(raw) == 0 {
		return b.signer.Address(), nil
	}

	account, encoding, err := parseAgentAccount(raw)
	if err != nil {
		b.log.Debug("undecodable agentAccount metadata, falling back to signer",
			zap.String("agentId", agentID.String()))
		return b.signer.Address(), nil
	}

	b.log.Debug("resolved authority from agentAccount metadata",
		zap.String("account", account.Hex()),
		zap.Stringer("encoding", encoding))
	return account, nil
}

// computeBounds sets indexLimit to one past the last observed feedback index
// and expiry to now + expirySeconds, clamped to the uint64 maximum.
func (b *Builder) computeBounds(ctx context.Context, agentID *big.Int, clientAddr common.Address, expirySeconds uint64) (indexLimit, expiry *big.Int, err error) {
	lastIndex, err := b.registry.GetLastIndex(ctx, agentID, clientAddr)
	if err != nil {
		return nil, nil, err
	}
	indexLimit = new(big.Int).Add(lastIndex, big.NewInt(1))

	expiry = new(big.Int).SetInt64(b.now().Unix())
	expiry.Add(expiry, new(big.Int).SetUint64(expirySeconds))
	if expiry.Sign() < 0 {
		expiry.SetInt64(0)
	}

	maxExpiry := new(big.Int).SetUint64(math.MaxUint64)
	if expiry.Cmp(maxExpiry) > 0 {
		b.log.Warn("expiry exceeds uint64 range, clamping",
			zap.String("requested", expiry.String()))
		expiry.Set(maxExpiry)
	}

	return indexLimit, expiry, nil
}

// sign hashes the encoded struct and signs the hash, yielding the opaque
// encodedStruct || signature token.
func (b *Builder) sign(ctx context.Context, auth Auth) (*Token, error) {
	encoded, err := auth.Encode()
	if err != nil {
		return nil, err
	}

	var digest [32]byte
	copy(digest[:], crypto.Keccak256(encoded))

	signature, err := b.signer.SignPersonal(ctx, digest)
	if err != nil {
		return nil, fmt.Errorf("failed to sign feedback auth: %w", err)
	}

	return &Token{Auth: auth, Encoded: encoded, Signature: signature}, nil
}
