package tranche

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	nativecommon "campusfi/native/common"
	"campusfi/native/fixed"
)

// Class identifies a tranche by repayment priority. Lower values are senior.
type Class uint8

const (
	Senior Class = iota
	Mezzanine
	Equity
)

// Classes lists the tranche classes in waterfall order.
var Classes = [...]Class{Senior, Mezzanine, Equity}

func (c Class) String() string {
	switch c {
	case Senior:
		return "senior"
	case Mezzanine:
		return "mezzanine"
	case Equity:
		return "equity"
	default:
		return fmt.Sprintf("class(%d)", uint8(c))
	}
}

// Valid reports whether c is one of the three known classes.
func (c Class) Valid() bool { return c <= Equity }

// ParseClass accepts the lowercase class name.
func ParseClass(raw string) (Class, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "senior":
		return Senior, nil
	case "mezzanine", "mezz":
		return Mezzanine, nil
	case "equity":
		return Equity, nil
	default:
		return 0, fmt.Errorf("tranche: %w: unknown tranche class %q", nativecommon.ErrInvalidConfiguration, raw)
	}
}

// MarshalText renders the class name.
func (c Class) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("tranche: %w: invalid class %d", nativecommon.ErrInvalidConfiguration, uint8(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText parses a class name.
func (c *Class) UnmarshalText(text []byte) error {
	parsed, err := ParseClass(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Tranche is one subordinated slice of an issuance.
type Tranche struct {
	Class           Class    `json:"class"`
	TotalAllocation *big.Int `json:"totalAllocation"`
	AmountSold      *big.Int `json:"amountSold"`
	AmountRepaid    *big.Int `json:"amountRepaid"`
}

// Clone returns a deep copy of the tranche.
func (t Tranche) Clone() Tranche {
	return Tranche{
		Class:           t.Class,
		TotalAllocation: fixed.Clone(t.TotalAllocation),
		AmountSold:      fixed.Clone(t.AmountSold),
		AmountRepaid:    fixed.Clone(t.AmountRepaid),
	}
}

// Unsold returns the allocation still available for sale.
func (t Tranche) Unsold() *big.Int {
	return new(big.Int).Sub(fixed.Clone(t.TotalAllocation), fixed.Clone(t.AmountSold))
}

// Outstanding returns sold principal not yet repaid.
func (t Tranche) Outstanding() *big.Int {
	return new(big.Int).Sub(fixed.Clone(t.AmountSold), fixed.Clone(t.AmountRepaid))
}

// FullySold reports whether the whole allocation has been sold.
func (t Tranche) FullySold() bool {
	return fixed.Clone(t.AmountSold).Cmp(fixed.Clone(t.TotalAllocation)) == 0
}

// FullyRepaid reports whether the whole allocation has been sold and repaid.
func (t Tranche) FullyRepaid() bool {
	return t.FullySold() && fixed.Clone(t.AmountRepaid).Cmp(fixed.Clone(t.TotalAllocation)) == 0
}

// Stack is the tranche state of one series, indexed by Class.
type Stack struct {
	SeriesID common.Hash `json:"seriesId"`
	Tranches [3]Tranche  `json:"tranches"`
}

// Clone returns a deep copy of the stack.
func (s Stack) Clone() Stack {
	out := Stack{SeriesID: s.SeriesID}
	for i := range s.Tranches {
		out.Tranches[i] = s.Tranches[i].Clone()
	}
	return out
}

// Tranche returns a copy of the tranche for class.
func (s Stack) Tranche(class Class) Tranche {
	if !class.Valid() {
		return Tranche{Class: class}
	}
	return s.Tranches[class].Clone()
}

// TotalAllocation sums the allocations of all tranches.
func (s Stack) TotalAllocation() *big.Int {
	total := new(big.Int)
	for _, t := range s.Tranches {
		total.Add(total, fixed.Clone(t.TotalAllocation))
	}
	return total
}

// Outstanding sums sold but unrepaid principal across tranches.
func (s Stack) Outstanding() *big.Int {
	total := new(big.Int)
	for _, t := range s.Tranches {
		total.Add(total, t.Outstanding())
	}
	return total
}

// Validate checks amounts and the subordination rules for sales and
// repayments.
func (s Stack) Validate() error {
	for i, t := range s.Tranches {
		if t.Class != Class(i) {
			return fmt.Errorf("tranche: %w: slot %d holds %s", nativecommon.ErrInvalidConfiguration, i, t.Class)
		}
		if !fixed.NonNegative(t.TotalAllocation) || !fixed.NonNegative(t.AmountSold) || !fixed.NonNegative(t.AmountRepaid) {
			return fmt.Errorf("tranche: %w: %s amounts must be non-negative", nativecommon.ErrInvalidConfiguration, t.Class)
		}
		if t.AmountSold.Cmp(t.TotalAllocation) > 0 {
			return fmt.Errorf("tranche: %w: %s sold exceeds allocation", nativecommon.ErrInvalidConfiguration, t.Class)
		}
		if t.AmountRepaid.Cmp(t.AmountSold) > 0 {
			return fmt.Errorf("tranche: %w: %s repaid exceeds sold", nativecommon.ErrInvalidConfiguration, t.Class)
		}
	}
	for _, class := range Classes[1:] {
		junior := s.Tranches[class]
		senior := s.Tranches[class-1]
		if junior.AmountSold.Sign() > 0 && !senior.FullySold() {
			return fmt.Errorf("tranche: %w: %s sold before %s fully sold", nativecommon.ErrInvalidTrancheOrder, class, class-1)
		}
		if junior.AmountRepaid.Sign() > 0 && !senior.FullyRepaid() {
			return fmt.Errorf("tranche: %w: %s repaid before %s fully repaid", nativecommon.ErrInvalidTrancheOrder, class, class-1)
		}
	}
	return nil
}

// Splits divides pool value between tranches in basis points.
type Splits struct {
	SeniorBps    uint64 `json:"seniorBps" yaml:"senior_bps"`
	MezzanineBps uint64 `json:"mezzanineBps" yaml:"mezzanine_bps"`
	EquityBps    uint64 `json:"equityBps" yaml:"equity_bps"`
}

// DefaultSplits is the 70/20/10 structure.
func DefaultSplits() Splits {
	return Splits{SeniorBps: 7_000, MezzanineBps: 2_000, EquityBps: 1_000}
}

// Validate requires the splits to sum to 100%.
func (s Splits) Validate() error {
	if sum := s.SeniorBps + s.MezzanineBps + s.EquityBps; sum != 10_000 {
		return fmt.Errorf("tranche: %w: splits sum to %d bps, want 10000", nativecommon.ErrInvalidConfiguration, sum)
	}
	return nil
}

func (s Splits) bps(class Class) uint64 {
	switch class {
	case Senior:
		return s.SeniorBps
	case Mezzanine:
		return s.MezzanineBps
	default:
		return s.EquityBps
	}
}

// Obligor is a single receivable inside a pool.
type Obligor struct {
	Address         common.Address `json:"address"`
	PrincipalOwed   *big.Int       `json:"principalOwed"`
	ReputationScore float64        `json:"reputationScore"`
}

// ReceivablesPool is an issued pool of receivables. Only Collected changes
// after issuance.
type ReceivablesPool struct {
	SeriesID     common.Hash `json:"seriesId"`
	Name         string      `json:"name"`
	Obligors     []Obligor   `json:"obligors"`
	IssueDate    time.Time   `json:"issueDate"`
	MaturityDate time.Time   `json:"maturityDate"`
	Collected    *big.Int    `json:"collected"`
}

// SeriesID derives the deterministic identifier of a series from its name and
// issue date.
func SeriesID(name string, issueDate time.Time) common.Hash {
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(issueDate.UTC().Unix()))
	return crypto.Keccak256Hash([]byte(strings.TrimSpace(name)), ts[:])
}

// Clone returns a deep copy of the pool.
func (p ReceivablesPool) Clone() ReceivablesPool {
	out := p
	out.Obligors = make([]Obligor, len(p.Obligors))
	for i, o := range p.Obligors {
		out.Obligors[i] = Obligor{Address: o.Address, PrincipalOwed: fixed.Clone(o.PrincipalOwed), ReputationScore: o.ReputationScore}
	}
	out.Collected = fixed.Clone(p.Collected)
	return out
}

// WithSeriesID fills in a missing series id from the pool's name and issue
// date.
func (p ReceivablesPool) WithSeriesID() ReceivablesPool {
	out := p.Clone()
	if out.SeriesID == (common.Hash{}) {
		out.SeriesID = SeriesID(out.Name, out.IssueDate)
	}
	return out
}

// TotalValue sums the principal owed by every obligor.
func (p ReceivablesPool) TotalValue() *big.Int {
	total := new(big.Int)
	for _, o := range p.Obligors {
		total.Add(total, fixed.Clone(o.PrincipalOwed))
	}
	return total
}

// Outstanding returns principal not yet collected.
func (p ReceivablesPool) Outstanding() *big.Int {
	return new(big.Int).Sub(p.TotalValue(), fixed.Clone(p.Collected))
}

// RecordCollection returns a copy of the pool with amount added to the
// collected total.
func (p ReceivablesPool) RecordCollection(amount *big.Int) (ReceivablesPool, error) {
	if amount == nil || amount.Sign() <= 0 {
		return ReceivablesPool{}, fmt.Errorf("tranche: %w: collection must be positive", nativecommon.ErrInvalidConfiguration)
	}
	if err := p.Validate(); err != nil {
		return ReceivablesPool{}, err
	}
	if amount.Cmp(p.Outstanding()) > 0 {
		return ReceivablesPool{}, fmt.Errorf("tranche: %w: collection %s exceeds outstanding %s", nativecommon.ErrInvalidConfiguration, fixed.FormatWad(amount), fixed.FormatWad(p.Outstanding()))
	}
	out := p.Clone()
	out.Collected.Add(out.Collected, amount)
	return out, nil
}

// Validate checks obligor amounts, dates and the collected total.
func (p ReceivablesPool) Validate() error {
	for i, o := range p.Obligors {
		if !fixed.NonNegative(o.PrincipalOwed) {
			return fmt.Errorf("tranche: %w: obligor %d principal must be non-negative", nativecommon.ErrInvalidConfiguration, i)
		}
	}
	if !p.IssueDate.IsZero() && !p.MaturityDate.IsZero() && !p.MaturityDate.After(p.IssueDate) {
		return fmt.Errorf("tranche: %w: maturity must follow issue date", nativecommon.ErrInvalidConfiguration)
	}
	if p.Collected != nil {
		if p.Collected.Sign() < 0 || p.Collected.Cmp(p.TotalValue()) > 0 {
			return fmt.Errorf("tranche: %w: collected amount out of range", nativecommon.ErrInvalidConfiguration)
		}
	}
	return nil
}
