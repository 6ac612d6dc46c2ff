package production

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lecca.io/oasys-watchtower/internal/explorer"
	"lecca.io/oasys-watchtower/internal/logger"
	"lecca.io/oasys-watchtower/internal/rpc"
	"lecca.io/oasys-watchtower/internal/validators"
)

const (
	Window = 24 * time.Hour

	// DefaultSampleBlocks is the RPC fallback window. Ten consecutive blocks
	// are treated as a ten-minute slice of the day.
	DefaultSampleBlocks = 10

	// sampleScale turns a hit count over DefaultSampleBlocks into a daily
	// estimate (24 hours x 6 ten-minute slices).
	sampleScale = 24 * 6
)

type Source string

const (
	SourceExplorer  Source = "explorer"
	SourceRPCSample Source = "rpc-sample"
)

// Report is either a full explorer report or an approximated RPC sample.
// Which one is recorded in Source; the two are never merged.
type Report struct {
	Count24h          int
	NewestBlockTime   *time.Time
	NewestBlockNumber *uint64
	OldestBlockTime   *time.Time
	Source            Source
	// Approximate is set when Count24h is extrapolated and NewestBlockTime is
	// the resolution instant rather than a real block timestamp.
	Approximate bool
}

// BlockSource is the explorer dependency.
type BlockSource interface {
	BlocksValidated(ctx context.Context, address string) ([]explorer.Block, error)
}

// ChainReader is the RPC dependency.
type ChainReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
	BlockByNumber(ctx context.Context, number uint64) (*rpc.Block, error)
}

type Resolver struct {
	explorer     BlockSource
	chain        ChainReader
	sampleBlocks int
}

// NewResolver builds a resolver. A nil explorer sends every lookup straight
// to RPC sampling.
func NewResolver(explorer BlockSource, chain ChainReader, sampleBlocks int) *Resolver {
	if sampleBlocks <= 0 {
		sampleBlocks = DefaultSampleBlocks
	}
	return &Resolver{
		explorer:     explorer,
		chain:        chain,
		sampleBlocks: sampleBlocks,
	}
}

// Resolve tries the explorer once and falls back to RPC sampling once. An
// error is returned only when the fallback cannot read the chain head.
func (r *Resolver) Resolve(ctx context.Context, producer validators.Address, now time.Time) (Report, error) {
	if r.explorer != nil {
		blocks, err := r.explorer.BlocksValidated(ctx, producer.String())
		if err == nil {
			return fromExplorer(blocks, now), nil
		}
		logger.Warn("PROD", "%s explorer lookup failed, falling back to RPC sampling: %v", producer.Short(), err)
	}

	return r.sample(ctx, producer, now)
}

func fromExplorer(blocks []explorer.Block, now time.Time) Report {
	rep := Report{Source: SourceExplorer}
	cutoff := now.Add(-Window)

	var newest, oldest *explorer.Block
	for i := range blocks {
		b := &blocks[i]
		if !b.HasTimestamp() {
			continue
		}
		if newest == nil || b.Timestamp.After(newest.Timestamp) {
			newest = b
		}
		if oldest == nil || b.Timestamp.Before(oldest.Timestamp) {
			oldest = b
		}
		if !b.Timestamp.Before(cutoff) {
			rep.Count24h++
		}
	}

	if newest != nil {
		ts, height := newest.Timestamp, newest.Height
		rep.NewestBlockTime = &ts
		rep.NewestBlockNumber = &height
	}
	if oldest != nil {
		ts := oldest.Timestamp
		rep.OldestBlockTime = &ts
	}
	return rep
}

func (r *Resolver) sample(ctx context.Context, producer validators.Address, now time.Time) (Report, error) {
	head, err := r.chain.BlockNumber(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("block production unavailable: %w", err)
	}

	var (
		observed int
		newest   *uint64
		failed   int
	)
	for i := 0; i < r.sampleBlocks && uint64(i) <= head; i++ {
		if err := ctx.Err(); err != nil {
			return Report{}, err
		}

		number := head - uint64(i)
		block, err := r.chain.BlockByNumber(ctx, number)
		if err != nil {
			failed++
			if !errors.Is(err, rpc.ErrNoData) {
				logger.Debug("PROD", "skipping block %d: %v", number, err)
			}
			continue
		}
		if !producer.Equal(block.Miner.Hex()) {
			continue
		}
		observed++
		if newest == nil {
			n := block.Number
			newest = &n
		}
	}

	// Recency is approximated by the resolution instant whenever the sample
	// completes, matched or not. Only a matched block yields a height.
	ts := now
	rep := Report{
		Count24h:          observed * sampleScale * DefaultSampleBlocks / r.sampleBlocks,
		NewestBlockTime:   &ts,
		NewestBlockNumber: newest,
		Source:            SourceRPCSample,
		Approximate:       true,
	}

	if newest != nil {
		logger.Warn("PROD", "%s using RPC sample: %d/%d blocks matched (%d unreadable), 24h count %d is extrapolated, last block time set to check time",
			producer.Short(), observed, r.sampleBlocks, failed, rep.Count24h)
	} else {
		logger.Warn("PROD", "%s using RPC sample: no block in the last %d matched (%d unreadable), 24h count is 0, last block time set to check time",
			producer.Short(), r.sampleBlocks, failed)
	}
	return rep, nil
}
