// Package fixtures loads deterministic pool and receivables data from YAML and
// serves it through the engine source interfaces.
package fixtures

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"

	"campusfi/native/amm"
	nativecommon "campusfi/native/common"
	"campusfi/native/fixed"
	"campusfi/native/tranche"
)

const dateLayout = "2006-01-02"

// File is the on-disk fixture layout. Amounts are decimal token strings.
type File struct {
	Pools       []PoolFixture   `yaml:"amm_pools"`
	Receivables []SeriesFixture `yaml:"receivables"`
}

// PoolFixture seeds one AMM pool. An empty lp_supply mints sqrt(a*b).
type PoolFixture struct {
	ID       string `yaml:"id"`
	ReserveA string `yaml:"reserve_a"`
	ReserveB string `yaml:"reserve_b"`
	LPSupply string `yaml:"lp_supply"`
}

// SeriesFixture describes one receivables pool. The HTTP issuance endpoint
// accepts the same shape as JSON.
type SeriesFixture struct {
	Name         string           `yaml:"name" json:"name"`
	SeriesID     string           `yaml:"series_id" json:"seriesId"`
	IssueDate    string           `yaml:"issue_date" json:"issueDate"`
	MaturityDate string           `yaml:"maturity_date" json:"maturityDate"`
	Obligors     []ObligorFixture `yaml:"obligors" json:"obligors"`
}

// ObligorFixture is one receivable line.
type ObligorFixture struct {
	Address   string  `yaml:"address" json:"address"`
	Principal string  `yaml:"principal" json:"principal"`
	Score     float64 `yaml:"score" json:"score"`
}

// Set is a loaded, validated fixture set.
type Set struct {
	pools       map[string]amm.ReservePool
	receivables map[common.Hash]tranche.ReceivablesPool
}

var (
	_ amm.PoolSource            = (*Set)(nil)
	_ tranche.ReceivablesSource = (*Set)(nil)
)

// Load reads and converts a fixture file.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}
	return Parse(data)
}

// Parse converts fixture YAML into engine snapshots.
func Parse(data []byte) (*Set, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode fixtures: %w", err)
	}
	set := &Set{
		pools:       make(map[string]amm.ReservePool, len(file.Pools)),
		receivables: make(map[common.Hash]tranche.ReceivablesPool, len(file.Receivables)),
	}
	for i, pf := range file.Pools {
		pool, err := pf.Build()
		if err != nil {
			return nil, fmt.Errorf("amm_pools[%d]: %w", i, err)
		}
		if _, dup := set.pools[pool.ID]; dup {
			return nil, fmt.Errorf("amm_pools[%d]: %w: duplicate pool %q", i, nativecommon.ErrInvalidConfiguration, pool.ID)
		}
		set.pools[pool.ID] = pool
	}
	for i, sf := range file.Receivables {
		pool, err := sf.Build()
		if err != nil {
			return nil, fmt.Errorf("receivables[%d]: %w", i, err)
		}
		if _, dup := set.receivables[pool.SeriesID]; dup {
			return nil, fmt.Errorf("receivables[%d]: %w: duplicate series %s", i, nativecommon.ErrInvalidConfiguration, pool.SeriesID.Hex())
		}
		set.receivables[pool.SeriesID] = pool
	}
	return set, nil
}

// ReservePool implements amm.PoolSource.
func (s *Set) ReservePool(_ context.Context, id string) (amm.ReservePool, error) {
	if s == nil {
		return amm.ReservePool{}, amm.ErrUnknownPool
	}
	pool, ok := s.pools[id]
	if !ok {
		return amm.ReservePool{}, fmt.Errorf("%w: %s", amm.ErrUnknownPool, id)
	}
	return pool.Clone(), nil
}

// Receivables implements tranche.ReceivablesSource.
func (s *Set) Receivables(_ context.Context, seriesID common.Hash) (tranche.ReceivablesPool, error) {
	if s == nil {
		return tranche.ReceivablesPool{}, tranche.ErrUnknownSeries
	}
	pool, ok := s.receivables[seriesID]
	if !ok {
		return tranche.ReceivablesPool{}, tranche.ErrUnknownSeries
	}
	return pool.Clone(), nil
}

// PoolIDs lists the AMM pool ids in sorted order.
func (s *Set) PoolIDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, 0, len(s.pools))
	for id := range s.pools {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SeriesIDs lists the receivables series ids in sorted order.
func (s *Set) SeriesIDs() []common.Hash {
	if s == nil {
		return nil
	}
	ids := make([]common.Hash, 0, len(s.receivables))
	for id := range s.receivables {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Hex() < ids[j].Hex() })
	return ids
}

// Build converts the fixture into a reserve snapshot.
func (pf PoolFixture) Build() (amm.ReservePool, error) {
	id := strings.TrimSpace(pf.ID)
	if id == "" {
		return amm.ReservePool{}, fmt.Errorf("%w: pool id required", nativecommon.ErrInvalidConfiguration)
	}
	pool := amm.NewReservePool(id)
	a, err := ParseUint256(pf.ReserveA)
	if err != nil {
		return amm.ReservePool{}, fmt.Errorf("reserve_a: %w", err)
	}
	b, err := ParseUint256(pf.ReserveB)
	if err != nil {
		return amm.ReservePool{}, fmt.Errorf("reserve_b: %w", err)
	}
	if strings.TrimSpace(pf.LPSupply) != "" {
		lp, err := ParseUint256(pf.LPSupply)
		if err != nil {
			return amm.ReservePool{}, fmt.Errorf("lp_supply: %w", err)
		}
		pool.ReserveA, pool.ReserveB, pool.TotalLPSupply = a, b, lp
		return pool, nil
	}
	seeded, err := amm.AddLiquidity(a, b, pool)
	if err != nil {
		return amm.ReservePool{}, err
	}
	return seeded.Pool, nil
}

// Build converts the fixture into a validated receivables pool with its series
// id filled in.
func (sf SeriesFixture) Build() (tranche.ReceivablesPool, error) {
	pool := tranche.ReceivablesPool{Name: strings.TrimSpace(sf.Name), Collected: new(big.Int)}
	var err error
	if pool.IssueDate, err = parseDate(sf.IssueDate); err != nil {
		return pool, fmt.Errorf("issue_date: %w", err)
	}
	if pool.MaturityDate, err = parseDate(sf.MaturityDate); err != nil {
		return pool, fmt.Errorf("maturity_date: %w", err)
	}
	for i, of := range sf.Obligors {
		if !common.IsHexAddress(of.Address) {
			return pool, fmt.Errorf("obligors[%d]: %w: invalid address %q", i, nativecommon.ErrInvalidConfiguration, of.Address)
		}
		principal, err := fixed.ParseWad(of.Principal)
		if err != nil {
			return pool, fmt.Errorf("obligors[%d].principal: %w", i, err)
		}
		pool.Obligors = append(pool.Obligors, tranche.Obligor{
			Address:         common.HexToAddress(of.Address),
			PrincipalOwed:   principal,
			ReputationScore: of.Score,
		})
	}
	if raw := strings.TrimSpace(sf.SeriesID); raw != "" {
		pool.SeriesID = common.HexToHash(raw)
	}
	pool = pool.WithSeriesID()
	if err := pool.Validate(); err != nil {
		return pool, err
	}
	return pool, nil
}

// ParseUint256 parses a decimal token amount into wad units.
func ParseUint256(raw string) (*uint256.Int, error) {
	v, err := fixed.ParseWad(raw)
	if err != nil {
		return nil, err
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, fmt.Errorf("%w: %s does not fit 256 bits", nativecommon.ErrArithmeticOverflow, raw)
	}
	return out, nil
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", nativecommon.ErrInvalidConfiguration, err)
	}
	return t, nil
}
