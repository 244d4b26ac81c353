package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	nativecommon "campusfi/native/common"
	"campusfi/native/tranche"
	"campusfi/observability"
	"campusfi/services/financed/fixtures"
	"campusfi/services/financed/storage"
)

type trancheView struct {
	Class           string `json:"class"`
	TotalAllocation string `json:"totalAllocation"`
	AmountSold      string `json:"amountSold"`
	AmountRepaid    string `json:"amountRepaid"`
	Outstanding     string `json:"outstanding"`
}

type seriesView struct {
	SeriesID     string        `json:"seriesId"`
	Name         string        `json:"name"`
	IssueDate    time.Time     `json:"issueDate"`
	MaturityDate time.Time     `json:"maturityDate"`
	Obligors     int           `json:"obligors"`
	TotalValue   string        `json:"totalValue"`
	Collected    string        `json:"collected"`
	Tranches     []trancheView `json:"tranches"`
}

func seriesViewOf(st seriesState) seriesView {
	view := seriesView{
		SeriesID:     st.Receivables.SeriesID.Hex(),
		Name:         st.Receivables.Name,
		IssueDate:    st.Receivables.IssueDate,
		MaturityDate: st.Receivables.MaturityDate,
		Obligors:     len(st.Receivables.Obligors),
		TotalValue:   formatBig(st.Receivables.TotalValue()),
		Collected:    formatBig(st.Receivables.Collected),
	}
	for _, t := range st.Stack.Tranches {
		view.Tranches = append(view.Tranches, trancheView{
			Class:           t.Class.String(),
			TotalAllocation: formatBig(t.TotalAllocation),
			AmountSold:      formatBig(t.AmountSold),
			AmountRepaid:    formatBig(t.AmountRepaid),
			Outstanding:     formatBig(t.Outstanding()),
		})
	}
	return view
}

// seriesKey normalises a series id path parameter to its canonical hex form.
func seriesKey(raw string) string {
	return common.HexToHash(raw).Hex()
}

func (s *Server) handleIssueSeries(w http.ResponseWriter, r *http.Request) {
	var req fixtures.SeriesFixture
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	receivables, err := req.Build()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	stack, err := tranche.BuildTranches(receivables, s.cfg.Splits)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	state := seriesState{Receivables: receivables, Stack: stack}
	key := receivables.SeriesID.Hex()
	err = s.create(r.Context(), nativecommon.ModuleTranche, storage.KindSeries, key, state, func() {
		s.reg.series[key] = &seriesEntry{state: state.clone()}
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	for _, t := range stack.Tranches {
		s.metrics.SetOutstanding(key, t.Class.String(), t.Outstanding())
	}
	writeJSON(w, http.StatusCreated, seriesViewOf(state))
}

func (s *Server) handleListSeries(w http.ResponseWriter, _ *http.Request) {
	ids := s.reg.seriesIDs()
	views := make([]seriesView, 0, len(ids))
	for _, id := range ids {
		if entry, ok := s.reg.seriesByID(id); ok {
			views = append(views, seriesViewOf(entry.snapshot()))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"series": views})
}

func (s *Server) lookupSeries(w http.ResponseWriter, r *http.Request) (seriesState, bool) {
	id := seriesKey(chi.URLParam(r, "id"))
	entry, ok := s.reg.seriesByID(id)
	if !ok {
		s.writeError(w, r, fmt.Errorf("%w: %s", tranche.ErrUnknownSeries, id))
		return seriesState{}, false
	}
	return entry.snapshot(), true
}

func (s *Server) handleGetSeries(w http.ResponseWriter, r *http.Request) {
	st, ok := s.lookupSeries(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, seriesViewOf(st))
}

type seriesRiskResponse struct {
	SeriesID                 string               `json:"seriesId"`
	Distribution             tranche.Distribution `json:"distribution"`
	EstimatedDefaultRate     string               `json:"estimatedDefaultRate"`
	ValueWeightedDefaultRate string               `json:"valueWeightedDefaultRate"`
}

func (s *Server) handleSeriesRisk(w http.ResponseWriter, r *http.Request) {
	st, ok := s.lookupSeries(w, r)
	if !ok {
		return
	}
	dist := tranche.RiskDistribution(st.Receivables, s.risk)
	writeJSON(w, http.StatusOK, seriesRiskResponse{
		SeriesID:                 st.Receivables.SeriesID.Hex(),
		Distribution:             dist,
		EstimatedDefaultRate:     formatBig(tranche.EstimatedDefaultRate(dist)),
		ValueWeightedDefaultRate: formatBig(tranche.ValueWeightedDefaultRate(dist)),
	})
}

type sellRequest struct {
	Class  string `json:"class"`
	Amount string `json:"amount"`
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	id := seriesKey(chi.URLParam(r, "id"))
	var req sellRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	class, err := tranche.ParseClass(req.Class)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	state, err := s.mutateSeries(r.Context(), "sell", observability.EventTrancheSold, id, func(st seriesState) (seriesState, error) {
		stack, err := tranche.Sell(st.Stack, class, amount)
		if err != nil {
			return seriesState{}, err
		}
		st.Stack = stack
		return st, nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, seriesViewOf(state))
}

type allocationView struct {
	Senior    string `json:"senior"`
	Mezzanine string `json:"mezzanine"`
	Equity    string `json:"equity"`
	Excess    string `json:"excess"`
}

type collectResponse struct {
	Allocation allocationView `json:"allocation"`
	Series     seriesView     `json:"series"`
}

func (s *Server) handleCollect(w http.ResponseWriter, r *http.Request) {
	id := seriesKey(chi.URLParam(r, "id"))
	var req amountRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var alloc tranche.Allocation
	state, err := s.mutateSeries(r.Context(), "collect", observability.EventCollection, id, func(st seriesState) (seriesState, error) {
		receivables, err := st.Receivables.RecordCollection(amount)
		if err != nil {
			return seriesState{}, err
		}
		a, stack, err := tranche.AllocateRepayment(amount, st.Stack)
		if err != nil {
			return seriesState{}, err
		}
		st.Receivables, st.Stack, alloc = receivables, stack, a
		return st, nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, collectResponse{
		Allocation: allocationView{
			Senior:    formatBig(alloc.Senior),
			Mezzanine: formatBig(alloc.Mezzanine),
			Equity:    formatBig(alloc.Equity),
			Excess:    formatBig(alloc.Excess),
		},
		Series: seriesViewOf(state),
	})
}
