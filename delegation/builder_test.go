package delegation

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agentictrust "github.com/Agentic-Trust-Layer/agentic-trust-sub004"
	"github.com/Agentic-Trust-Layer/agentic-trust-sub004/association"
	"github.com/Agentic-Trust-Layer/agentic-trust-sub004/interop"
)

var (
	authorityAddr = common.HexToAddress("0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA1111")
	initiatorAddr = common.HexToAddress("0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB2222")
	chainID       = big.NewInt(11155111)
)

type fakeSigner struct{ addr common.Address }

func (s *fakeSigner) Address() common.Address { return s.addr }

func (s *fakeSigner) SignTypedDigest(ctx context.Context, digest [32]byte) ([]byte, error) {
	return append([]byte{0x01}, digest[:]...), nil
}

func (s *fakeSigner) SignPersonal(ctx context.Context, digest [32]byte) ([]byte, error) {
	return append([]byte{0x02}, digest[:]...), nil
}

type fakeVerifier struct {
	hasCode      bool
	validKeyType *[2]byte
}

func (v *fakeVerifier) HasCode(ctx context.Context, authority common.Address) (bool, error) {
	return v.hasCode, nil
}

func (v *fakeVerifier) IsValidSignature(ctx context.Context, authority common.Address, digest [32]byte, signature []byte) (bool, error) {
	if v.validKeyType == nil || len(signature) == 0 {
		return false, nil
	}
	return signature[0] == (*v.validKeyType)[1], nil
}

type fakeStorage struct {
	uploaded []byte
	err      error
}

func (s *fakeStorage) Upload(ctx context.Context, data []byte, filename string) (*agentictrust.UploadResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.uploaded = data
	return &agentictrust.UploadResult{
		ContentID: "bafytest",
		URL:       "https://ipfs.io/ipfs/bafytest",
		TokenURI:  "ipfs://bafytest",
	}, nil
}

func (s *fakeStorage) FetchJSON(ctx context.Context, tokenURI string) (json.RawMessage, error) {
	return nil, nil
}

type fakeAssociations struct {
	records map[[32]byte]*association.SignedRecord
}

func (a *fakeAssociations) GetAssociation(ctx context.Context, id [32]byte) (*association.SignedRecord, error) {
	return a.records[id], nil
}

func newTestBuilder(t *testing.T, mutate func(*Config)) *Builder {
	t.Helper()

	cfg := Config{
		Signer:   &fakeSigner{addr: common.HexToAddress("0x1000000000000000000000000000000000000001")},
		Verifier: &fakeVerifier{},
		Now:      func() time.Time { return time.Unix(1_700_000_000, 0) },
	}
	if mutate != nil {
		mutate(&cfg)
	}

	builder, err := NewBuilder(cfg)
	require.NoError(t, err)
	return builder
}

func baseRequest() Request {
	return Request{
		Authority: authorityAddr,
		Operator:  common.HexToAddress("0x1000000000000000000000000000000000000001"),
		Initiator: initiatorAddr,
		ChainID:   chainID,
		Payload:   &Payload{AgentID: "7", ClientAddress: "0x3000000000000000000000000000000000000003"},
	}
}

func TestBuildDelegationAnchorsPayload(t *testing.T) {
	storage := &fakeStorage{}
	builder := newTestBuilder(t, func(cfg *Config) { cfg.Storage = storage })

	result, err := builder.BuildDelegation(context.Background(), baseRequest())
	require.NoError(t, err)

	assert.Equal(t, "ipfs://bafytest", result.Ref.PayloadURI)
	assert.Equal(t, "bafytest", result.Ref.PayloadCID)
	assert.Equal(t, KindOperatorDelegation, result.Ref.Type)

	// The anchored document carries the kind and timestamp.
	var doc Payload
	require.NoError(t, json.Unmarshal(storage.uploaded, &doc))
	assert.Equal(t, KindOperatorDelegation, doc.Kind)
	assert.Equal(t, "2023-11-14T22:13:20Z", doc.CreatedAt)
	assert.Equal(t, "7", doc.AgentID)

	// The record's data blob points at the anchor, never the payload itself.
	assocType, description, err := association.DecodeData(result.Signed.Record.Data)
	require.NoError(t, err)
	assert.Equal(t, association.TypeDelegation, assocType)

	var ref Ref
	require.NoError(t, json.Unmarshal([]byte(description), &ref))
	assert.Equal(t, *result.Ref, ref)
}

func TestBuildDelegationRecordShape(t *testing.T) {
	builder := newTestBuilder(t, nil)

	result, err := builder.BuildDelegation(context.Background(), baseRequest())
	require.NoError(t, err)

	wantInitiator, err := interop.Encode(chainID, initiatorAddr)
	require.NoError(t, err)
	wantApprover, err := interop.Encode(chainID, authorityAddr)
	require.NoError(t, err)

	record := result.Signed.Record
	assert.Equal(t, wantInitiator, record.Initiator)
	assert.Equal(t, wantApprover, record.Approver)
	assert.Equal(t, uint64(0), record.ValidAt)
	assert.Equal(t, uint64(0), record.ValidUntil)

	// Pending: approver side signed, initiator side open, not revoked.
	assert.Equal(t, association.KeyTypeTypedData, result.Signed.ApproverKeyType)
	assert.NotEmpty(t, result.Signed.ApproverSignature)
	assert.Empty(t, result.Signed.InitiatorSignature)
	assert.Equal(t, 0, result.Signed.RevokedAt.Sign())

	digest, err := association.Digest(record)
	require.NoError(t, err)
	assert.Equal(t, digest, result.AssociationID)
}

func TestBuildDelegationSmartAccountAuthority(t *testing.T) {
	personal := association.KeyTypePersonal
	builder := newTestBuilder(t, func(cfg *Config) {
		cfg.Verifier = &fakeVerifier{hasCode: true, validKeyType: &personal}
	})

	result, err := builder.BuildDelegation(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, association.KeyTypePersonal, result.Signed.ApproverKeyType)
}

func TestBuildDelegationStorageFailure(t *testing.T) {
	builder := newTestBuilder(t, func(cfg *Config) {
		cfg.Storage = &fakeStorage{err: errors.New("pin service down")}
	})

	result, err := builder.BuildDelegation(context.Background(), baseRequest())
	require.NoError(t, err)

	assert.Empty(t, result.Ref.PayloadURI)
	assert.Empty(t, result.Ref.PayloadCID)
	assert.NotEmpty(t, result.Signed.ApproverSignature)
}

func TestBuildDelegationWithoutStorage(t *testing.T) {
	builder := newTestBuilder(t, nil)

	result, err := builder.BuildDelegation(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Empty(t, result.Ref.PayloadURI)
	assert.Empty(t, result.Ref.PayloadCID)
}

func TestBuildDelegationReuse(t *testing.T) {
	initiator, err := interop.Encode(chainID, initiatorAddr)
	require.NoError(t, err)
	approver, err := interop.Encode(chainID, authorityAddr)
	require.NoError(t, err)

	stored := &association.SignedRecord{
		RevokedAt:          big.NewInt(0),
		InitiatorKeyType:   association.KeyTypePersonal,
		ApproverKeyType:    association.KeyTypeTypedData,
		InitiatorSignature: []byte{0xca, 0xfe},
		ApproverSignature:  []byte{0xbe, 0xef},
		Record: association.Record{
			Initiator: initiator,
			Approver:  approver,
		},
	}
	id := [32]byte{0x42}
	associations := &fakeAssociations{records: map[[32]byte]*association.SignedRecord{id: stored}}

	builder := newTestBuilder(t, func(cfg *Config) { cfg.Associations = associations })

	t.Run("reuses stored signatures", func(t *testing.T) {
		req := baseRequest()
		req.ReuseID = &id

		result, err := builder.BuildDelegation(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, id, result.AssociationID)
		assert.Equal(t, *stored, result.Signed)
	})

	t.Run("unknown id", func(t *testing.T) {
		req := baseRequest()
		missing := [32]byte{0x99}
		req.ReuseID = &missing

		_, err := builder.BuildDelegation(context.Background(), req)
		require.Error(t, err)
		assert.True(t, agentictrust.IsKind(err, agentictrust.KindNotFound))
	})

	t.Run("party mismatch", func(t *testing.T) {
		req := baseRequest()
		req.ReuseID = &id
		req.Initiator = common.HexToAddress("0x9999999999999999999999999999999999999999")

		_, err := builder.BuildDelegation(context.Background(), req)
		require.Error(t, err)
		assert.True(t, agentictrust.IsKind(err, agentictrust.KindAuthorization))
	})

	t.Run("no association reader", func(t *testing.T) {
		bare := newTestBuilder(t, nil)
		req := baseRequest()
		req.ReuseID = &id

		_, err := bare.BuildDelegation(context.Background(), req)
		require.Error(t, err)
		assert.True(t, agentictrust.IsKind(err, agentictrust.KindConfiguration))
	})
}

func TestBuildDelegationValidation(t *testing.T) {
	builder := newTestBuilder(t, nil)

	cases := map[string]func(*Request){
		"missing chain id":  func(r *Request) { r.ChainID = nil },
		"missing authority": func(r *Request) { r.Authority = common.Address{} },
		"missing initiator": func(r *Request) { r.Initiator = common.Address{} },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := baseRequest()
			mutate(&req)

			_, err := builder.BuildDelegation(context.Background(), req)
			require.Error(t, err)
			assert.True(t, agentictrust.IsKind(err, agentictrust.KindConfiguration))
		})
	}
}
