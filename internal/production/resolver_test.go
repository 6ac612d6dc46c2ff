package production

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lecca.io/oasys-watchtower/internal/explorer"
	"lecca.io/oasys-watchtower/internal/rpc"
	"lecca.io/oasys-watchtower/internal/validators"
)

var (
	now      = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	producer = validators.MustParseAddress("0x2222222222222222222222222222222222222222")
	other    = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

type fakeExplorer struct {
	blocks []explorer.Block
	err    error
	calls  int
}

func (f *fakeExplorer) BlocksValidated(_ context.Context, address string) ([]explorer.Block, error) {
	f.calls++
	return f.blocks, f.err
}

type fakeChain struct {
	head    uint64
	headErr error
	miners  map[uint64]common.Address
	errs    map[uint64]error
	fetched []uint64
}

func (f *fakeChain) BlockNumber(context.Context) (uint64, error) {
	return f.head, f.headErr
}

func (f *fakeChain) BlockByNumber(_ context.Context, n uint64) (*rpc.Block, error) {
	f.fetched = append(f.fetched, n)
	if err, ok := f.errs[n]; ok {
		return nil, err
	}
	miner, ok := f.miners[n]
	if !ok {
		miner = other
	}
	return &rpc.Block{Number: n, Miner: miner, Timestamp: now.Add(-time.Duration(f.head-n) * time.Minute)}, nil
}

func TestResolve_Explorer(t *testing.T) {
	exp := &fakeExplorer{blocks: []explorer.Block{
		{Height: 900, Timestamp: now.Add(-5 * time.Minute)},
		{Height: 950, Timestamp: now.Add(-2 * time.Minute)},
		{Height: 500, Timestamp: now.Add(-30 * time.Hour)},
		{Height: 700, Timestamp: now.Add(-Window)},
		{Height: 999},
	}}
	chain := &fakeChain{}

	rep, err := NewResolver(exp, chain, 10).Resolve(context.Background(), producer, now)
	require.NoError(t, err)

	assert.Equal(t, SourceExplorer, rep.Source)
	assert.False(t, rep.Approximate)
	assert.Equal(t, 3, rep.Count24h)
	require.NotNil(t, rep.NewestBlockTime)
	assert.Equal(t, now.Add(-2*time.Minute), *rep.NewestBlockTime)
	require.NotNil(t, rep.NewestBlockNumber)
	assert.Equal(t, uint64(950), *rep.NewestBlockNumber)
	require.NotNil(t, rep.OldestBlockTime)
	assert.Equal(t, now.Add(-30*time.Hour), *rep.OldestBlockTime)
	assert.Empty(t, chain.fetched, "explorer success must not touch RPC")
}

func TestResolve_ExplorerEmptyList(t *testing.T) {
	chain := &fakeChain{head: 100}
	rep, err := NewResolver(&fakeExplorer{}, chain, 10).Resolve(context.Background(), producer, now)
	require.NoError(t, err)

	assert.Equal(t, SourceExplorer, rep.Source)
	assert.Zero(t, rep.Count24h)
	assert.Nil(t, rep.NewestBlockTime)
	assert.Nil(t, rep.NewestBlockNumber)
	assert.Nil(t, rep.OldestBlockTime)
	assert.Empty(t, chain.fetched)
}

func TestResolve_FallbackOnExplorerFailure(t *testing.T) {
	exp := &fakeExplorer{err: fmt.Errorf("%w: HTTP 500", explorer.ErrUnavailable)}
	chain := &fakeChain{
		head: 1000,
		miners: map[uint64]common.Address{
			998: producer.Common(),
			995: producer.Common(),
		},
	}

	rep, err := NewResolver(exp, chain, 10).Resolve(context.Background(), producer, now)
	require.NoError(t, err)

	assert.Equal(t, 1, exp.calls)
	assert.Equal(t, SourceRPCSample, rep.Source)
	assert.True(t, rep.Approximate)
	assert.Equal(t, 2*24*6, rep.Count24h)
	require.NotNil(t, rep.NewestBlockNumber)
	assert.Equal(t, uint64(998), *rep.NewestBlockNumber)
	require.NotNil(t, rep.NewestBlockTime)
	assert.Equal(t, now, *rep.NewestBlockTime, "fallback approximates recency with the resolution instant")
	assert.Nil(t, rep.OldestBlockTime)
	assert.Len(t, chain.fetched, 10)
	assert.Equal(t, uint64(1000), chain.fetched[0])
	assert.Equal(t, uint64(991), chain.fetched[9])
}

func TestResolve_FallbackNoMatches(t *testing.T) {
	exp := &fakeExplorer{err: explorer.ErrUnavailable}
	chain := &fakeChain{head: 50}

	rep, err := NewResolver(exp, chain, 10).Resolve(context.Background(), producer, now)
	require.NoError(t, err)
	assert.Equal(t, SourceRPCSample, rep.Source)
	assert.Zero(t, rep.Count24h)
	assert.True(t, rep.Approximate)
	require.NotNil(t, rep.NewestBlockTime, "a completed sample always stamps the check time")
	assert.Equal(t, now, *rep.NewestBlockTime)
	assert.Nil(t, rep.NewestBlockNumber)
}

func TestResolve_FallbackSkipsBlockErrors(t *testing.T) {
	chain := &fakeChain{
		head:   20,
		miners: map[uint64]common.Address{18: producer.Common(), 17: producer.Common()},
		errs: map[uint64]error{
			20: errors.New("timeout"),
			18: rpc.ErrNoData,
		},
	}

	rep, err := NewResolver(nil, chain, 10).Resolve(context.Background(), producer, now)
	require.NoError(t, err)
	assert.Equal(t, 24*6, rep.Count24h)
	require.NotNil(t, rep.NewestBlockNumber)
	assert.Equal(t, uint64(17), *rep.NewestBlockNumber)
}

func TestResolve_ShortChain(t *testing.T) {
	chain := &fakeChain{head: 2, miners: map[uint64]common.Address{0: producer.Common()}}

	rep, err := NewResolver(nil, chain, 10).Resolve(context.Background(), producer, now)
	require.NoError(t, err)
	assert.Equal(t, []uint64{2, 1, 0}, chain.fetched)
	assert.Equal(t, 24*6, rep.Count24h)
}

func TestResolve_SampleSizeScaling(t *testing.T) {
	chain := &fakeChain{head: 100, miners: map[uint64]common.Address{100: producer.Common(), 99: producer.Common()}}

	rep, err := NewResolver(nil, chain, 20).Resolve(context.Background(), producer, now)
	require.NoError(t, err)
	assert.Len(t, chain.fetched, 20)
	assert.Equal(t, 24*6, rep.Count24h, "two hits over twenty blocks equals one hit over ten")
}

func TestResolve_HeadFailure(t *testing.T) {
	exp := &fakeExplorer{err: explorer.ErrUnavailable}
	chain := &fakeChain{headErr: errors.New("connection refused")}

	_, err := NewResolver(exp, chain, 10).Resolve(context.Background(), producer, now)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestNewResolver_DefaultSample(t *testing.T) {
	assert.Equal(t, DefaultSampleBlocks, NewResolver(nil, &fakeChain{}, 0).sampleBlocks)
}
