package delegation

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	agentictrust "github.com/Agentic-Trust-Layer/agentic-trust-sub004"
	"github.com/Agentic-Trust-Layer/agentic-trust-sub004/association"
	"github.com/Agentic-Trust-Layer/agentic-trust-sub004/interop"
)

// AssociationReader fetches stored signed association records, returning
// (nil, nil) when the id is unknown. registry.AssociationStore satisfies it.
type AssociationReader interface {
	GetAssociation(ctx context.Context, id [32]byte) (*association.SignedRecord, error)
}

// Config wires a Builder.
type Config struct {
	// Signer produces the approver-side signature candidates. Required.
	Signer agentictrust.AccountSigner

	// Verifier decides which candidate the authority accepts. Required.
	Verifier association.Verifier

	// Storage anchors delegation payloads. Optional; without it every
	// delegation is built with an unanchored pointer.
	Storage agentictrust.Storage

	// Associations serves the reuse path. Optional.
	Associations AssociationReader

	Logger *zap.Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Request describes one delegation to build.
type Request struct {
	// Authority is the approver identity and the signature-validation target.
	Authority common.Address

	// Operator is the key the delegation empowers.
	Operator common.Address

	// Initiator is the counter-party identity expected to complete the record.
	Initiator common.Address

	// ChainID scopes both parties' interoperable addresses.
	ChainID *big.Int

	// Payload is anchored externally; nil skips anchoring.
	Payload *Payload

	// InterfaceID of the association on the store contract. Zero by default.
	InterfaceID [4]byte

	// ReuseID, when set, reuses the stored signatures of an existing
	// association instead of re-signing.
	ReuseID *[32]byte

	// Optimistic returns the first signature candidate even when the
	// authority validates none of them.
	Optimistic bool
}

// Result is a pending delegation: a partially signed association record for
// the caller to complete (add the initiator signature) and submit on-chain,
// or discard.
type Result struct {
	// AssociationID is the record digest (or the reused id).
	AssociationID [32]byte

	// Signed carries the approver signature; the initiator signature is
	// empty for the counter-party to fill.
	Signed association.SignedRecord

	// Payload echoes the request payload; Ref is the pointer embedded in the
	// record's data blob.
	Payload *Payload
	Ref     *Ref
}

// Builder builds pending delegations.
type Builder struct {
	signer       agentictrust.AccountSigner
	verifier     association.Verifier
	storage      agentictrust.Storage
	associations AssociationReader
	log          *zap.Logger
	now          func() time.Time
}

// NewBuilder validates the configuration and returns a Builder.
func NewBuilder(cfg Config) (*Builder, error) {
	if cfg.Signer == nil {
		return nil, agentictrust.NewConfigurationError("delegation builder requires a signer")
	}
	if cfg.Verifier == nil {
		return nil, agentictrust.NewConfigurationError("delegation builder requires a signature verifier")
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
		signer:       cfg.Signer,
		verifier:     cfg.Verifier,
		storage:      cfg.Storage,
		associations: cfg.Associations,
		log:          log,
		now:          now,
	}, nil
}

// BuildDelegation runs the delegation flow for one request.
func (b *Builder) BuildDelegation(ctx context.Context, req Request) (*Result, error) {
	if req.ChainID == nil {
		return nil, agentictrust.NewConfigurationError("delegation request requires a chain id")
	}
	if req.Authority == (common.Address{}) {
		return nil, agentictrust.NewConfigurationError("delegation request requires an authority")
	}
	if req.Initiator == (common.Address{}) {
		return nil, agentictrust.NewConfigurationError("delegation request requires an initiator")
	}

	createdAt := b.now().UTC().Format(time.RFC3339)

	ref := b.anchorPayload(ctx, req.Payload, createdAt)

	description, err := ref.encode()
	if err != nil {
		return nil, err
	}
	data, err := association.EncodeData(association.TypeDelegation, description)
	if err != nil {
		return nil, err
	}

	// Validity bounds stay zero for store compatibility; the descriptive
	// expiry lives inside the anchored payload.
	record, err := association.BuildRecord(req.Initiator, req.Authority, req.ChainID, 0, 0, req.InterfaceID, data)
	if err != nil {
		return nil, err
	}
	digest, err := association.Digest(record)
	if err != nil {
		return nil, err
	}

	if req.ReuseID != nil {
		return b.reuse(ctx, req, *req.ReuseID, ref)
	}

	candidates := association.DefaultCandidates(b.signer, digest)
	selection, err := association.SelectSignature(ctx, b.verifier, digest, req.Authority, candidates, req.Optimistic)
	if err != nil {
		return nil, err
	}

	return &Result{
		AssociationID: digest,
		Signed: association.SignedRecord{
			RevokedAt:         big.NewInt(0),
			ApproverKeyType:   selection.KeyType,
			ApproverSignature: selection.Signature,
			// InitiatorSignature stays empty for the counter-party.
			Record: record,
		},
		Payload: req.Payload,
		Ref:     &ref,
	}, nil
}

// anchorPayload uploads the payload and returns the pointer to embed.
// Best-effort: a storage failure is logged and yields an unanchored pointer,
// never an aborted delegation.
func (b *Builder) anchorPayload(ctx context.Context, payload *Payload, createdAt string) Ref {
	ref := Ref{Type: KindOperatorDelegation, CreatedAt: createdAt}
	if b.storage == nil || payload == nil {
		return ref
	}

	doc := *payload
	if doc.Kind == "" {
		doc.Kind = KindOperatorDelegation
	}
	doc.CreatedAt = createdAt

	raw, err := json.Marshal(doc)
	if err != nil {
		b.log.Warn("failed to encode delegation payload, proceeding without anchor", zap.Error(err))
		return ref
	}

	uploaded, err := b.storage.Upload(ctx, raw, "")
	if err != nil {
		b.log.Warn("failed to anchor delegation payload, proceeding without anchor", zap.Error(err))
		return ref
	}

	ref.PayloadURI = uploaded.TokenURI
	ref.PayloadCID = uploaded.ContentID
	return ref
}

// reuse fetches an existing association, verifies its parties, and reuses
// its stored key types and signatures verbatim rather than re-signing.
func (b *Builder) reuse(ctx context.Context, req Request, id [32]byte, ref Ref) (*Result, error) {
	if b.associations == nil {
		return nil, agentictrust.NewConfigurationError("delegation builder has no association reader for the reuse path")
	}

	stored, err := b.associations.GetAssociation(ctx, id)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, agentictrust.NewNotFoundError(fmt.Sprintf("association 0x%s does not exist", hex.EncodeToString(id[:])))
	}

	if err := verifyParty(stored.Record.Initiator, req.Initiator, "initiator"); err != nil {
		return nil, err
	}
	if err := verifyParty(stored.Record.Approver, req.Authority, "approver"); err != nil {
		return nil, err
	}

	return &Result{
		AssociationID: id,
		Signed:        *stored,
		Payload:       req.Payload,
		Ref:           &ref,
	}, nil
}

func verifyParty(encoded []byte, expected common.Address, role string) error {
	_, account, err := interop.Decode(encoded)
	if err != nil {
		return err
	}
	if !bytes.Equal(account.Bytes(), expected.Bytes()) {
		return agentictrust.NewAuthorizationError(fmt.Sprintf("stored association %s %s does not match expected %s", role, account.Hex(), expected.Hex()))
	}
	return nil
}
