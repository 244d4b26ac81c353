package amm

import (
	"context"
	"errors"

	"github.com/holiman/uint256"
)

// ReservePool is an immutable snapshot of a two-asset constant-product pool.
// Engine functions never mutate a snapshot; they return a new one that the
// caller commits under its own single-writer discipline.
type ReservePool struct {
	ID            string
	ReserveA      *uint256.Int
	ReserveB      *uint256.Int
	TotalLPSupply *uint256.Int
}

// NewReservePool returns an empty pool snapshot.
func NewReservePool(id string) ReservePool {
	return ReservePool{
		ID:            id,
		ReserveA:      new(uint256.Int),
		ReserveB:      new(uint256.Int),
		TotalLPSupply: new(uint256.Int),
	}
}

// Clone returns a deep copy of the snapshot with nil values normalised to zero.
func (p ReservePool) Clone() ReservePool {
	return ReservePool{
		ID:            p.ID,
		ReserveA:      cloneInt(p.ReserveA),
		ReserveB:      cloneInt(p.ReserveB),
		TotalLPSupply: cloneInt(p.TotalLPSupply),
	}
}

// Reserves mirrors the venue's getReserves() view.
func (p ReservePool) Reserves() (*uint256.Int, *uint256.Int) {
	return cloneInt(p.ReserveA), cloneInt(p.ReserveB)
}

// K returns reserveA*reserveB. The boolean reports overflow.
func (p ReservePool) K() (*uint256.Int, bool) {
	return new(uint256.Int).MulOverflow(cloneInt(p.ReserveA), cloneInt(p.ReserveB))
}

// SwapResult is the outcome of a swap quote applied to a snapshot.
type SwapResult struct {
	AmountIn  *uint256.Int
	AmountOut *uint256.Int
	Pool      ReservePool
}

// LiquidityResult is the outcome of a deposit. Refund amounts are the parts of
// the desired deposit that the pool ratio left unused.
type LiquidityResult struct {
	AmountA  *uint256.Int
	AmountB  *uint256.Int
	LPMinted *uint256.Int
	RefundA  *uint256.Int
	RefundB  *uint256.Int
	Pool     ReservePool
}

// RemoveResult is the outcome of burning LP shares.
type RemoveResult struct {
	AmountA  *uint256.Int
	AmountB  *uint256.Int
	LPBurned *uint256.Int
	Pool     ReservePool
}

// ErrUnknownPool is returned by sources that hold no pool for an id.
var ErrUnknownPool = errors.New("amm: unknown pool")

// PoolSource supplies reserve snapshots from wherever the caller keeps them.
type PoolSource interface {
	ReservePool(ctx context.Context, id string) (ReservePool, error)
}

func cloneInt(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}
