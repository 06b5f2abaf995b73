package association

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	agentictrust "github.com/Agentic-Trust-Layer/agentic-trust-sub004"
)

// Candidate pairs a key-type tag with the function producing that signature
// encoding over a digest. Candidates are evaluated in slice order.
type Candidate struct {
	KeyType [2]byte
	Sign    func(ctx context.Context) ([]byte, error)
}

// Verifier decides whether an authority accepts a signature over a digest.
// Different authority implementations validate differently, so the predicate
// is pluggable per authority type.
type Verifier interface {
	// HasCode reports whether the authority currently has executable code.
	HasCode(ctx context.Context, authority common.Address) (bool, error)

	// IsValidSignature queries the authority's signature-validation entry
	// point. Returns false (not an error) when the authority rejects the
	// signature.
	IsValidSignature(ctx context.Context, authority common.Address, digest [32]byte, signature []byte) (bool, error)
}

// Selection is the signature encoding an authority accepted, tagged with the
// key type of the scheme that produced it.
type Selection struct {
	KeyType   [2]byte
	Signature []byte
}

// DefaultCandidates returns the candidate signatures tried for an
// association digest, in preference order: the typed-digest scheme under the
// fixed AssociatedAccounts domain, then a personal-message signature over
// the raw digest bytes. Most account implementations accept the first; the
// second covers account variants that reject typed-data signing.
func DefaultCandidates(signer agentictrust.AccountSigner, digest [32]byte) []Candidate {
	return []Candidate{
		{
			KeyType: KeyTypeTypedData,
			Sign: func(ctx context.Context) ([]byte, error) {
				return signer.SignTypedDigest(ctx, digest)
			},
		},
		{
			KeyType: KeyTypePersonal,
			Sign: func(ctx context.Context) ([]byte, error) {
				return signer.SignPersonal(ctx, digest)
			},
		},
	}
}

// SelectSignature produces candidate signatures over digest and returns the
// first one the authority validates.
//
// When the authority has no deployed code (plain key, or a smart account not
// yet deployed), the first candidate is returned without any validation call.
// When no candidate validates, an authorization error is returned unless
// optimistic is set, in which case the first candidate is returned anyway.
func SelectSignature(
	ctx context.Context,
	verifier Verifier,
	digest [32]byte,
	authority common.Address,
	candidates []Candidate,
	optimistic bool,
) (*Selection, error) {
	if len(candidates) == 0 {
		return nil, agentictrust.NewConfigurationError("no signature candidates supplied")
	}

	hasCode, err := verifier.HasCode(ctx, authority)
	if err != nil {
		return nil, agentictrust.NewNetworkError(fmt.Sprintf("check code at %s", authority.Hex()), err)
	}

	if !hasCode {
		// Counterfactual authority: accept the first candidate optimistically.
		signature, err := candidates[0].Sign(ctx)
		if err != nil {
			return nil, fmt.Errorf("sign with first candidate: %w", err)
		}
		return &Selection{KeyType: candidates[0].KeyType, Signature: signature}, nil
	}

	var (
		first    *Selection
		probeErr error
	)
	for i, candidate := range candidates {
		signature, err := candidate.Sign(ctx)
		if err != nil {
			return nil, fmt.Errorf("sign with candidate %d: %w", i, err)
		}
		if first == nil {
			first = &Selection{KeyType: candidate.KeyType, Signature: signature}
		}

		valid, err := verifier.IsValidSignature(ctx, authority, digest, signature)
		if err != nil {
			probeErr = err
			continue
		}
		if valid {
			return &Selection{KeyType: candidate.KeyType, Signature: signature}, nil
		}
	}

	if optimistic {
		return first, nil
	}
	if probeErr != nil {
		return nil, agentictrust.NewNetworkError(fmt.Sprintf("signature validation against %s", authority.Hex()), probeErr)
	}
	return nil, agentictrust.NewAuthorizationError(fmt.Sprintf("authority %s validated none of %d signature candidates", authority.Hex(), len(candidates)))
}
