package registry

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agentictrust "github.com/Agentic-Trust-Layer/agentic-trust-sub004"
)

var (
	identityAddr   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	reputationAddr = common.HexToAddress("0x2222222222222222222222222222222222222222")
	testOwner      = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

// fakeChain routes eth_call by function selector and records per-method call
// counts and targets.
type fakeChain struct {
	handlers map[string]func(call ethereum.CallMsg) ([]byte, error)
	calls    map[string]int
	targets  map[string]common.Address
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		handlers: make(map[string]func(call ethereum.CallMsg) ([]byte, error)),
		calls:    make(map[string]int),
		targets:  make(map[string]common.Address),
	}
}

func (c *fakeChain) handle(parsed abi.ABI, method string, fn func(call ethereum.CallMsg) ([]byte, error)) {
	c.handlers[hex.EncodeToString(parsed.Methods[method].ID)] = fn
}

func (c *fakeChain) returns(parsed abi.ABI, method string, outputs ...interface{}) {
	c.handle(parsed, method, func(ethereum.CallMsg) ([]byte, error) {
		return parsed.Methods[method].Outputs.Pack(outputs...)
	})
}

func (c *fakeChain) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return nil, nil
}

func (c *fakeChain) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	selector := hex.EncodeToString(call.Data[:4])
	handler, ok := c.handlers[selector]
	if !ok {
		return nil, errors.New("unexpected call " + selector)
	}
	c.calls[selector]++
	c.targets[selector] = *call.To
	return handler(call)
}

func (c *fakeChain) callCount(parsed abi.ABI, method string) int {
	return c.calls[hex.EncodeToString(parsed.Methods[method].ID)]
}

func (c *fakeChain) target(parsed abi.ABI, method string) common.Address {
	return c.targets[hex.EncodeToString(parsed.Methods[method].ID)]
}

func newTestReader(t *testing.T, chain *fakeChain, identity common.Address) *Reader {
	t.Helper()
	reader, err := NewReader(Config{
		Chain:              chain,
		IdentityRegistry:   identity,
		ReputationRegistry: reputationAddr,
	})
	require.NoError(t, err)
	return reader
}

func TestReaderIdentityReads(t *testing.T) {
	chain := newFakeChain()
	chain.returns(identityABI, "ownerOf", testOwner)
	chain.returns(identityABI, "getApproved", common.Address{0x04})
	chain.returns(identityABI, "isApprovedForAll", true)
	chain.returns(identityABI, "getMetadata", []byte("agent-metadata"))

	reader := newTestReader(t, chain, identityAddr)
	ctx := context.Background()
	agentID := big.NewInt(7)

	owner, err := reader.OwnerOf(ctx, agentID)
	require.NoError(t, err)
	assert.Equal(t, testOwner, owner)
	assert.Equal(t, identityAddr, chain.target(identityABI, "ownerOf"))

	approved, err := reader.GetApproved(ctx, agentID)
	require.NoError(t, err)
	assert.Equal(t, common.Address{0x04}, approved)

	forAll, err := reader.IsApprovedForAll(ctx, testOwner, common.Address{0x04})
	require.NoError(t, err)
	assert.True(t, forAll)

	metadata, err := reader.GetMetadata(ctx, agentID, "agentAccount")
	require.NoError(t, err)
	assert.Equal(t, []byte("agent-metadata"), metadata)
}

func TestReaderEmptyMetadataIsNil(t *testing.T) {
	chain := newFakeChain()
	chain.returns(identityABI, "getMetadata", []byte{})

	reader := newTestReader(t, chain, identityAddr)
	metadata, err := reader.GetMetadata(context.Background(), big.NewInt(7), "agentAccount")
	require.NoError(t, err)
	assert.Nil(t, metadata)
}

func TestReaderGetLastIndex(t *testing.T) {
	chain := newFakeChain()
	chain.returns(reputationABI, "getLastIndex", uint64(41))

	reader := newTestReader(t, chain, identityAddr)
	lastIndex, err := reader.GetLastIndex(context.Background(), big.NewInt(7), common.Address{0x05})
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(41), lastIndex)
	assert.Equal(t, reputationAddr, chain.target(reputationABI, "getLastIndex"))
}

func TestReaderDiscoversIdentityOnce(t *testing.T) {
	chain := newFakeChain()
	chain.returns(reputationABI, "identityRegistry", identityAddr)
	chain.returns(identityABI, "ownerOf", testOwner)

	reader := newTestReader(t, chain, common.Address{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		owner, err := reader.OwnerOf(ctx, big.NewInt(7))
		require.NoError(t, err)
		assert.Equal(t, testOwner, owner)
	}

	// Discovery runs exactly once, then the address is cached.
	assert.Equal(t, 1, chain.callCount(reputationABI, "identityRegistry"))
	assert.Equal(t, 3, chain.callCount(identityABI, "ownerOf"))
	assert.Equal(t, identityAddr, chain.target(identityABI, "ownerOf"))
}

func TestReaderDiscoveryReportsZeroAddress(t *testing.T) {
	chain := newFakeChain()
	chain.returns(reputationABI, "identityRegistry", common.Address{})

	reader := newTestReader(t, chain, common.Address{})
	_, err := reader.OwnerOf(context.Background(), big.NewInt(7))
	require.Error(t, err)
	assert.True(t, agentictrust.IsKind(err, agentictrust.KindConfiguration))
}

func TestReaderCallFailure(t *testing.T) {
	chain := newFakeChain()
	chain.handle(identityABI, "ownerOf", func(ethereum.CallMsg) ([]byte, error) {
		return nil, errors.New("rpc timeout")
	})

	reader := newTestReader(t, chain, identityAddr)
	_, err := reader.OwnerOf(context.Background(), big.NewInt(7))
	require.Error(t, err)
	assert.True(t, agentictrust.IsKind(err, agentictrust.KindNetwork))
}

func TestNewReaderValidation(t *testing.T) {
	_, err := NewReader(Config{})
	require.Error(t, err)
	assert.True(t, agentictrust.IsKind(err, agentictrust.KindConfiguration))

	_, err = NewReader(Config{Chain: newFakeChain()})
	require.Error(t, err)
	assert.True(t, agentictrust.IsKind(err, agentictrust.KindConfiguration))
}
