package association

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agentictrust "github.com/Agentic-Trust-Layer/agentic-trust-sub004"
)

// fakeVerifier counts calls and validates signatures against a predicate.
type fakeVerifier struct {
	hasCode    bool
	hasCodeErr error

	validFn  func(signature []byte) bool
	probeErr error

	hasCodeCalls int
	validCalls   int
}

func (v *fakeVerifier) HasCode(ctx context.Context, authority common.Address) (bool, error) {
	v.hasCodeCalls++
	return v.hasCode, v.hasCodeErr
}

func (v *fakeVerifier) IsValidSignature(ctx context.Context, authority common.Address, digest [32]byte, signature []byte) (bool, error) {
	v.validCalls++
	if v.probeErr != nil {
		return false, v.probeErr
	}
	return v.validFn(signature), nil
}

var (
	typedSig    = []byte{0xaa, 0xaa}
	personalSig = []byte{0xbb, 0xbb}
)

func testCandidates() []Candidate {
	return []Candidate{
		{KeyType: KeyTypeTypedData, Sign: func(ctx context.Context) ([]byte, error) { return typedSig, nil }},
		{KeyType: KeyTypePersonal, Sign: func(ctx context.Context) ([]byte, error) { return personalSig, nil }},
	}
}

func TestSelectSignatureNoCode(t *testing.T) {
	verifier := &fakeVerifier{hasCode: false}

	selection, err := SelectSignature(context.Background(), verifier, [32]byte{}, common.Address{0x01}, testCandidates(), false)
	require.NoError(t, err)

	// First candidate accepted optimistically, no validation probe.
	assert.Equal(t, KeyTypeTypedData, selection.KeyType)
	assert.Equal(t, typedSig, selection.Signature)
	assert.Equal(t, 0, verifier.validCalls)
}

func TestSelectSignatureFallsBackToPersonal(t *testing.T) {
	verifier := &fakeVerifier{
		hasCode: true,
		validFn: func(sig []byte) bool { return bytes.Equal(sig, personalSig) },
	}

	selection, err := SelectSignature(context.Background(), verifier, [32]byte{}, common.Address{0x01}, testCandidates(), false)
	require.NoError(t, err)

	assert.Equal(t, KeyTypePersonal, selection.KeyType)
	assert.Equal(t, personalSig, selection.Signature)
	assert.Equal(t, 2, verifier.validCalls)
}

func TestSelectSignaturePrefersTypedData(t *testing.T) {
	verifier := &fakeVerifier{
		hasCode: true,
		validFn: func(sig []byte) bool { return true },
	}

	selection, err := SelectSignature(context.Background(), verifier, [32]byte{}, common.Address{0x01}, testCandidates(), false)
	require.NoError(t, err)

	assert.Equal(t, KeyTypeTypedData, selection.KeyType)
	assert.Equal(t, 1, verifier.validCalls)
}

func TestSelectSignatureNoneValid(t *testing.T) {
	verifier := &fakeVerifier{
		hasCode: true,
		validFn: func(sig []byte) bool { return false },
	}

	_, err := SelectSignature(context.Background(), verifier, [32]byte{}, common.Address{0x01}, testCandidates(), false)
	require.Error(t, err)
	assert.True(t, agentictrust.IsKind(err, agentictrust.KindAuthorization))
}

func TestSelectSignatureNoneValidOptimistic(t *testing.T) {
	verifier := &fakeVerifier{
		hasCode: true,
		validFn: func(sig []byte) bool { return false },
	}

	selection, err := SelectSignature(context.Background(), verifier, [32]byte{}, common.Address{0x01}, testCandidates(), true)
	require.NoError(t, err)
	assert.Equal(t, KeyTypeTypedData, selection.KeyType)
	assert.Equal(t, typedSig, selection.Signature)
}

func TestSelectSignatureProbeFailure(t *testing.T) {
	verifier := &fakeVerifier{
		hasCode:  true,
		probeErr: errors.New("rpc unavailable"),
	}

	_, err := SelectSignature(context.Background(), verifier, [32]byte{}, common.Address{0x01}, testCandidates(), false)
	require.Error(t, err)
	assert.True(t, agentictrust.IsKind(err, agentictrust.KindNetwork))
}

func TestSelectSignatureHasCodeFailure(t *testing.T) {
	verifier := &fakeVerifier{hasCodeErr: errors.New("rpc unavailable")}

	_, err := SelectSignature(context.Background(), verifier, [32]byte{}, common.Address{0x01}, testCandidates(), false)
	require.Error(t, err)
	assert.True(t, agentictrust.IsKind(err, agentictrust.KindNetwork))
}

func TestSelectSignatureNoCandidates(t *testing.T) {
	_, err := SelectSignature(context.Background(), &fakeVerifier{}, [32]byte{}, common.Address{0x01}, nil, false)
	require.Error(t, err)
	assert.True(t, agentictrust.IsKind(err, agentictrust.KindConfiguration))
}
