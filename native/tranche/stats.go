package tranche

import (
	"math/big"

	"campusfi/native/fixed"
	"campusfi/native/risk"
)

// BandStats aggregates the obligors falling into one risk band. Shares are wad
// ratios of the pool totals.
type BandStats struct {
	Band       risk.Band `json:"band"`
	Count      int       `json:"count"`
	TotalValue *big.Int  `json:"totalValue"`
	CountShare *big.Int  `json:"countShare"`
	ValueShare *big.Int  `json:"valueShare"`
}

// Distribution is the per-band breakdown of a pool, in table order. Every band
// of the table appears, including empty ones.
type Distribution struct {
	Bands      []BandStats `json:"bands"`
	TotalCount int         `json:"totalCount"`
	TotalValue *big.Int    `json:"totalValue"`
}

// Lookup returns the stats for the band with the given label.
func (d Distribution) Lookup(label string) (BandStats, bool) {
	for _, b := range d.Bands {
		if b.Band.Label == label {
			return b, true
		}
	}
	return BandStats{}, false
}

// RiskDistribution classifies every obligor with table and aggregates count
// and principal per band. A nil table uses risk.DefaultTable.
func RiskDistribution(pool ReceivablesPool, table *risk.Table) Distribution {
	if table == nil {
		table = risk.DefaultTable()
	}
	bands := table.Bands()
	index := make(map[string]int, len(bands))
	dist := Distribution{Bands: make([]BandStats, len(bands)), TotalValue: new(big.Int)}
	for i, band := range bands {
		index[band.Label] = i
		dist.Bands[i] = BandStats{Band: band, TotalValue: new(big.Int)}
	}
	for _, o := range pool.Obligors {
		band := table.Classify(o.ReputationScore)
		stats := &dist.Bands[index[band.Label]]
		value := fixed.Clone(o.PrincipalOwed)
		stats.Count++
		stats.TotalValue.Add(stats.TotalValue, value)
		dist.TotalCount++
		dist.TotalValue.Add(dist.TotalValue, value)
	}
	total := big.NewInt(int64(dist.TotalCount))
	for i := range dist.Bands {
		stats := &dist.Bands[i]
		stats.CountShare = fixed.DivWad(big.NewInt(int64(stats.Count)), total)
		stats.ValueShare = fixed.DivWad(stats.TotalValue, dist.TotalValue)
	}
	return dist
}

// EstimatedDefaultRate returns the band default rates averaged by obligor
// count. An empty distribution reports zero.
func EstimatedDefaultRate(dist Distribution) *big.Int {
	if dist.TotalCount == 0 {
		return new(big.Int)
	}
	weighted := new(big.Int)
	for _, b := range dist.Bands {
		weighted.Add(weighted, new(big.Int).Mul(big.NewInt(int64(b.Count)), fixed.Clone(b.Band.AssumedDefaultRate)))
	}
	return weighted.Quo(weighted, big.NewInt(int64(dist.TotalCount)))
}

// ValueWeightedDefaultRate returns the band default rates averaged by
// principal.
func ValueWeightedDefaultRate(dist Distribution) *big.Int {
	if dist.TotalValue == nil || dist.TotalValue.Sign() == 0 {
		return new(big.Int)
	}
	weighted := new(big.Int)
	for _, b := range dist.Bands {
		weighted.Add(weighted, new(big.Int).Mul(fixed.Clone(b.TotalValue), fixed.Clone(b.Band.AssumedDefaultRate)))
	}
	return weighted.Quo(weighted, dist.TotalValue)
}
