package server

import (
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	nativecommon "campusfi/native/common"
	"campusfi/native/fixed"
	"campusfi/native/lending"
	"campusfi/native/risk"
	"campusfi/observability"
	"campusfi/services/financed/storage"
)

func formatBig(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return fixed.FormatWad(v)
}

type rateView struct {
	Utilization string `json:"utilization"`
	BorrowAPY   string `json:"borrowApy"`
	SupplyAPY   string `json:"supplyApy"`
}

func rateViewOf(q lending.RateQuote) rateView {
	return rateView{Utilization: formatBig(q.Utilization), BorrowAPY: formatBig(q.BorrowAPY), SupplyAPY: formatBig(q.SupplyAPY)}
}

type lendingPoolView struct {
	ID            string   `json:"id"`
	TotalSupplied string   `json:"totalSupplied"`
	TotalBorrowed string   `json:"totalBorrowed"`
	Reserves      string   `json:"reserves"`
	Available     string   `json:"available"`
	Positions     int      `json:"positions"`
	Rates         rateView `json:"rates"`
}

func (s *Server) lendingPoolView(id string, st lendingState) lendingPoolView {
	return lendingPoolView{
		ID:            id,
		TotalSupplied: formatBig(st.Pool.TotalSupplied),
		TotalBorrowed: formatBig(st.Pool.TotalBorrowed),
		Reserves:      formatBig(st.Pool.Reserves),
		Available:     formatBig(st.Pool.Available()),
		Positions:     len(st.Positions),
		Rates:         rateViewOf(s.lending.Quote(st.Pool)),
	}
}

type positionView struct {
	ID               string    `json:"id"`
	CollateralAmount string    `json:"collateralAmount"`
	BorrowedAmount   string    `json:"borrowedAmount"`
	APYAtOrigination string    `json:"apyAtOrigination"`
	AccruedInterest  string    `json:"accruedInterest"`
	TotalOwed        string    `json:"totalOwed"`
	HealthRatio      string    `json:"healthRatio,omitempty"`
	OpenedAt         time.Time `json:"openedAt"`
}

func (s *Server) positionView(id string, p lending.Position) positionView {
	view := positionView{
		ID:               id,
		CollateralAmount: formatBig(p.CollateralAmount),
		BorrowedAmount:   formatBig(p.BorrowedAmount),
		APYAtOrigination: formatBig(p.APYAtOrigination),
		AccruedInterest:  formatBig(p.AccruedInterest),
		TotalOwed:        formatBig(p.TotalOwed()),
		OpenedAt:         p.OpenedAt,
	}
	if ratio, ok := s.lending.HealthRatio(p); ok {
		view.HealthRatio = formatBig(ratio)
	}
	return view
}

type lendingQuoteRequest struct {
	TotalSupplied string   `json:"totalSupplied"`
	TotalBorrowed string   `json:"totalBorrowed"`
	Collateral    string   `json:"collateral"`
	Score         *float64 `json:"score"`
}

type lendingQuoteResponse struct {
	rateView
	MaxBorrowable string     `json:"maxBorrowable,omitempty"`
	RiskBand      *risk.Band `json:"riskBand,omitempty"`
}

func (s *Server) handleLendingQuote(w http.ResponseWriter, r *http.Request) {
	var req lendingQuoteRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	supplied, err := parseAmount("totalSupplied", req.TotalSupplied)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	borrowed := new(big.Int)
	if strings.TrimSpace(req.TotalBorrowed) != "" {
		if borrowed, err = parseAmount("totalBorrowed", req.TotalBorrowed); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	if borrowed.Cmp(supplied) > 0 {
		s.writeError(w, r, fmt.Errorf("%w: totalBorrowed exceeds totalSupplied", nativecommon.ErrInvalidConfiguration))
		return
	}
	pool := lending.Pool{TotalSupplied: supplied, TotalBorrowed: borrowed, Reserves: new(big.Int)}
	resp := lendingQuoteResponse{rateView: rateViewOf(s.lending.Quote(pool))}
	if strings.TrimSpace(req.Collateral) != "" {
		collateral, err := parseAmount("collateral", req.Collateral)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		resp.MaxBorrowable = formatBig(s.lending.MaxBorrowable(collateral))
	}
	if req.Score != nil {
		band := s.risk.Classify(*req.Score)
		resp.RiskBand = &band
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListLendingPools(w http.ResponseWriter, _ *http.Request) {
	ids := s.reg.lendingIDs()
	views := make([]lendingPoolView, 0, len(ids))
	for _, id := range ids {
		if entry, ok := s.reg.lendingPool(id); ok {
			views = append(views, s.lendingPoolView(id, entry.snapshot()))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"pools": views})
}

func (s *Server) handleGetLendingPool(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entry, ok := s.reg.lendingPool(id)
	if !ok {
		s.writeError(w, r, fmt.Errorf("lending pool %s: %w", id, errNotFound))
		return
	}
	writeJSON(w, http.StatusOK, s.lendingPoolView(id, entry.snapshot()))
}

type createLendingPoolRequest struct {
	ID string `json:"id"`
}

func (s *Server) handleCreateLendingPool(w http.ResponseWriter, r *http.Request) {
	var req createLendingPoolRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.NewString()
	}
	state := lendingState{Pool: lending.NewPool(), Positions: map[string]lending.Position{}}
	err := s.create(r.Context(), nativecommon.ModuleLending, storage.KindLendingPool, id, state, func() {
		s.reg.lending[id] = &lendingEntry{state: state.clone()}
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.lendingPoolView(id, state))
}

type amountRequest struct {
	Amount string `json:"amount"`
}

func (s *Server) handleSupply(w http.ResponseWriter, r *http.Request) {
	s.handlePoolFlow(w, r, "supply", s.lending.Supply)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	s.handlePoolFlow(w, r, "withdraw", s.lending.Withdraw)
}

func (s *Server) handlePoolFlow(w http.ResponseWriter, r *http.Request, op string, apply func(lending.Pool, *big.Int) (lending.Pool, error)) {
	id := chi.URLParam(r, "id")
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
	state, err := s.mutateLending(r.Context(), op, "", id, func(st lendingState) (lendingState, error) {
		pool, err := apply(st.Pool, amount)
		if err != nil {
			return lendingState{}, err
		}
		st.Pool = pool
		return st, nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.lendingPoolView(id, state))
}

type openPositionRequest struct {
	Collateral string `json:"collateral"`
	Borrow     string `json:"borrow"`
}

func (s *Server) handleOpenPosition(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req openPositionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	collateral, err := parseAmount("collateral", req.Collateral)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	borrow, err := parseAmount("borrow", req.Borrow)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	positionID := uuid.NewString()
	var opened lending.Position
	state, err := s.mutateLending(r.Context(), "open_position", observability.EventPositionOpened, id, func(st lendingState) (lendingState, error) {
		pos, pool, err := s.lending.OpenPosition(collateral, borrow, st.Pool, s.now())
		if err != nil {
			return lendingState{}, err
		}
		st.Pool = pool
		st.Positions[positionID] = pos
		opened = pos
		return st, nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"position": s.positionView(positionID, opened),
		"pool":     s.lendingPoolView(id, state),
	})
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	id, pid := chi.URLParam(r, "id"), chi.URLParam(r, "pid")
	entry, ok := s.reg.lendingPool(id)
	if !ok {
		s.writeError(w, r, fmt.Errorf("lending pool %s: %w", id, errNotFound))
		return
	}
	pos, ok := entry.snapshot().Positions[pid]
	if !ok {
		s.writeError(w, r, fmt.Errorf("position %s: %w", pid, errNotFound))
		return
	}
	accrued, err := s.lending.AccrueTo(pos, s.now())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.positionView(pid, accrued))
}

type repayResponse struct {
	InterestPaid  string        `json:"interestPaid"`
	PrincipalPaid string        `json:"principalPaid"`
	Refund        string        `json:"refund"`
	Closed        bool          `json:"closed"`
	Position      *positionView `json:"position,omitempty"`
}

func (s *Server) handleRepay(w http.ResponseWriter, r *http.Request) {
	id, pid := chi.URLParam(r, "id"), chi.URLParam(r, "pid")
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
	var result lending.RepayResult
	_, err = s.mutateLending(r.Context(), "repay", "", id, func(st lendingState) (lendingState, error) {
		pos, ok := st.Positions[pid]
		if !ok {
			return lendingState{}, fmt.Errorf("position %s: %w", pid, errNotFound)
		}
		accrued, err := s.lending.AccrueTo(pos, s.now())
		if err != nil {
			return lendingState{}, err
		}
		res, pool, err := s.lending.Repay(accrued, amount, st.Pool)
		if err != nil {
			return lendingState{}, err
		}
		st.Pool = pool
		if res.Closed {
			delete(st.Positions, pid)
		} else {
			st.Positions[pid] = res.Position.Clone()
		}
		result = res
		return st, nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if result.Closed {
		observability.Events().Record(nativecommon.ModuleLending, observability.EventPositionClosed)
	}
	resp := repayResponse{
		InterestPaid:  formatBig(result.InterestPaid),
		PrincipalPaid: formatBig(result.PrincipalPaid),
		Refund:        formatBig(result.Refund),
		Closed:        result.Closed,
	}
	if result.Position != nil {
		view := s.positionView(pid, *result.Position)
		resp.Position = &view
	}
	writeJSON(w, http.StatusOK, resp)
}

type classifyRequest struct {
	Score *float64 `json:"score"`
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Score == nil {
		s.writeError(w, r, fmt.Errorf("%w: score required", nativecommon.ErrInvalidConfiguration))
		return
	}
	writeJSON(w, http.StatusOK, s.risk.Classify(*req.Score))
}

func (s *Server) handleBands(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"bands": s.risk.Bands()})
}
