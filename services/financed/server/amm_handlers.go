package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"campusfi/native/amm"
	nativecommon "campusfi/native/common"
	"campusfi/observability"
	"campusfi/services/financed/storage"
)

type poolView struct {
	ID            string `json:"id"`
	ReserveA      string `json:"reserveA"`
	ReserveB      string `json:"reserveB"`
	TotalLPSupply string `json:"totalLpSupply"`
	SpotPrice     string `json:"spotPrice,omitempty"`
	FeeBps        uint64 `json:"feeBps"`
}

func (s *Server) poolView(p amm.ReservePool) poolView {
	view := poolView{
		ID:            p.ID,
		ReserveA:      formatU(p.ReserveA),
		ReserveB:      formatU(p.ReserveB),
		TotalLPSupply: formatU(p.TotalLPSupply),
		FeeBps:        s.cfg.FeeBps,
	}
	if price, err := amm.SpotPrice(p); err == nil {
		view.SpotPrice = formatU(price)
	}
	return view
}

type quoteSwapRequest struct {
	AmountIn   string  `json:"amountIn"`
	AmountOut  string  `json:"amountOut"`
	ReserveIn  string  `json:"reserveIn"`
	ReserveOut string  `json:"reserveOut"`
	FeeBps     *uint64 `json:"feeBps"`
}

type quoteSwapResponse struct {
	AmountIn  string `json:"amountIn"`
	AmountOut string `json:"amountOut"`
	FeeBps    uint64 `json:"feeBps"`
}

func (s *Server) handleQuoteSwap(w http.ResponseWriter, r *http.Request) {
	var req quoteSwapRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	fee := s.cfg.FeeBps
	if req.FeeBps != nil {
		fee = *req.FeeBps
	}
	reserveIn, err := parseAmount256("reserveIn", req.ReserveIn)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	reserveOut, err := parseAmount256("reserveOut", req.ReserveOut)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	hasIn, hasOut := strings.TrimSpace(req.AmountIn) != "", strings.TrimSpace(req.AmountOut) != ""
	if hasIn == hasOut {
		s.writeError(w, r, fmt.Errorf("%w: exactly one of amountIn or amountOut required", nativecommon.ErrInvalidConfiguration))
		return
	}
	resp := quoteSwapResponse{FeeBps: fee}
	if hasIn {
		amountIn, err := parseAmount256("amountIn", req.AmountIn)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		out, err := amm.QuoteSwap(amountIn, reserveIn, reserveOut, fee)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		resp.AmountIn, resp.AmountOut = formatU(amountIn), formatU(out)
	} else {
		amountOut, err := parseAmount256("amountOut", req.AmountOut)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		in, err := amm.QuoteAmountIn(amountOut, reserveIn, reserveOut, fee)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		resp.AmountIn, resp.AmountOut = formatU(in), formatU(amountOut)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListPools(w http.ResponseWriter, _ *http.Request) {
	ids := s.reg.ammIDs()
	views := make([]poolView, 0, len(ids))
	for _, id := range ids {
		if entry, ok := s.reg.ammPool(id); ok {
			views = append(views, s.poolView(entry.snapshot()))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"pools": views})
}

func (s *Server) handleGetPool(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entry, ok := s.reg.ammPool(id)
	if !ok {
		s.writeError(w, r, fmt.Errorf("%w: %s", amm.ErrUnknownPool, id))
		return
	}
	writeJSON(w, http.StatusOK, s.poolView(entry.snapshot()))
}

type createPoolRequest struct {
	ID      string `json:"id"`
	AmountA string `json:"amountA"`
	AmountB string `json:"amountB"`
}

func (s *Server) handleCreatePool(w http.ResponseWriter, r *http.Request) {
	var req createPoolRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.NewString()
	}
	amountA, err := parseAmount256("amountA", req.AmountA)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	amountB, err := parseAmount256("amountB", req.AmountB)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := amm.AddLiquidity(amountA, amountB, amm.NewReservePool(id))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	pool := res.Pool
	err = s.create(r.Context(), nativecommon.ModuleAMM, storage.KindAMMPool, id, ammRecordOf(pool), func() {
		s.reg.amm[id] = &ammEntry{pool: pool.Clone()}
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.metrics.SetReserves(id, pool.ReserveA.ToBig(), pool.ReserveB.ToBig())
	observability.Events().Record(nativecommon.ModuleAMM, observability.EventLiquidityAdd)
	writeJSON(w, http.StatusCreated, map[string]any{"pool": s.poolView(pool), "lpMinted": formatU(res.LPMinted)})
}

type swapRequest struct {
	Side         string `json:"side"`
	AmountIn     string `json:"amountIn"`
	MinAmountOut string `json:"minAmountOut"`
}

type swapResponse struct {
	AmountIn  string   `json:"amountIn"`
	AmountOut string   `json:"amountOut"`
	Pool      poolView `json:"pool"`
}

func (s *Server) handleSwap(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req swapRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	var aForB bool
	switch strings.ToLower(strings.TrimSpace(req.Side)) {
	case "a", "":
		aForB = true
	case "b":
		aForB = false
	default:
		s.writeError(w, r, fmt.Errorf("%w: side must be a or b", nativecommon.ErrInvalidConfiguration))
		return
	}
	amountIn, err := parseAmount256("amountIn", req.AmountIn)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	minOut := new(uint256.Int)
	if strings.TrimSpace(req.MinAmountOut) != "" {
		if minOut, err = parseAmount256("minAmountOut", req.MinAmountOut); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	var result amm.SwapResult
	pool, err := s.mutateAMM(r.Context(), "swap", observability.EventSwap, id, func(p amm.ReservePool) (amm.ReservePool, error) {
		res, err := amm.Swap(p, aForB, amountIn, s.cfg.FeeBps)
		if err != nil {
			return amm.ReservePool{}, err
		}
		if res.AmountOut.Lt(minOut) {
			return amm.ReservePool{}, fmt.Errorf("amm: %w: %s below minimum %s", nativecommon.ErrInsufficientOutput, formatU(res.AmountOut), formatU(minOut))
		}
		zero := new(uint256.Int)
		aIn, bIn, aOut, bOut := amountIn, zero, zero, res.AmountOut
		if !aForB {
			aIn, bIn, aOut, bOut = zero, amountIn, res.AmountOut, zero
		}
		if _, err := amm.VerifySwap(p, aIn, bIn, aOut, bOut, s.cfg.FeeBps); err != nil {
			return amm.ReservePool{}, err
		}
		result = res
		return res.Pool, nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, swapResponse{AmountIn: formatU(result.AmountIn), AmountOut: formatU(result.AmountOut), Pool: s.poolView(pool)})
}

type liquidityRequest struct {
	AmountA string `json:"amountA"`
	AmountB string `json:"amountB"`
}

type liquidityResponse struct {
	AmountA  string   `json:"amountA"`
	AmountB  string   `json:"amountB"`
	LPMinted string   `json:"lpMinted"`
	RefundA  string   `json:"refundA"`
	RefundB  string   `json:"refundB"`
	Pool     poolView `json:"pool"`
}

func (s *Server) handleAddLiquidity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req liquidityRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	amountA, err := parseAmount256("amountA", req.AmountA)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	amountB, err := parseAmount256("amountB", req.AmountB)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var result amm.LiquidityResult
	pool, err := s.mutateAMM(r.Context(), "add_liquidity", observability.EventLiquidityAdd, id, func(p amm.ReservePool) (amm.ReservePool, error) {
		res, err := amm.AddLiquidity(amountA, amountB, p)
		if err != nil {
			return amm.ReservePool{}, err
		}
		result = res
		return res.Pool, nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, liquidityResponse{
		AmountA:  formatU(result.AmountA),
		AmountB:  formatU(result.AmountB),
		LPMinted: formatU(result.LPMinted),
		RefundA:  formatU(result.RefundA),
		RefundB:  formatU(result.RefundB),
		Pool:     s.poolView(pool),
	})
}

type burnRequest struct {
	LPAmount string `json:"lpAmount"`
}

type burnResponse struct {
	AmountA  string   `json:"amountA"`
	AmountB  string   `json:"amountB"`
	LPBurned string   `json:"lpBurned"`
	Pool     poolView `json:"pool"`
}

func (s *Server) handleRemoveLiquidity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req burnRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	lp, err := parseAmount256("lpAmount", req.LPAmount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var result amm.RemoveResult
	pool, err := s.mutateAMM(r.Context(), "remove_liquidity", observability.EventLiquidityBurn, id, func(p amm.ReservePool) (amm.ReservePool, error) {
		res, err := amm.RemoveLiquidity(lp, p)
		if err != nil {
			return amm.ReservePool{}, err
		}
		result = res
		return res.Pool, nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, burnResponse{
		AmountA:  formatU(result.AmountA),
		AmountB:  formatU(result.AmountB),
		LPBurned: formatU(result.LPBurned),
		Pool:     s.poolView(pool),
	})
}
