package tranche

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ErrUnknownSeries is returned by sources that hold no pool for a series id.
var ErrUnknownSeries = errors.New("tranche: unknown series")

// ReceivablesSource supplies issued receivables pools by series id.
type ReceivablesSource interface {
	Receivables(ctx context.Context, seriesID common.Hash) (ReceivablesPool, error)
}

// FromSource loads a pool and builds its tranche stack.
func FromSource(ctx context.Context, src ReceivablesSource, seriesID common.Hash, splits Splits) (ReceivablesPool, Stack, error) {
	if src == nil {
		return ReceivablesPool{}, Stack{}, fmt.Errorf("tranche: nil receivables source")
	}
	pool, err := src.Receivables(ctx, seriesID)
	if err != nil {
		return ReceivablesPool{}, Stack{}, fmt.Errorf("load series %s: %w", seriesID.Hex(), err)
	}
	pool = pool.WithSeriesID()
	stack, err := BuildTranches(pool, splits)
	if err != nil {
		return ReceivablesPool{}, Stack{}, err
	}
	return pool, stack, nil
}
