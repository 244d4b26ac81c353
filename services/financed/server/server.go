package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"campusfi/native/amm"
	nativecommon "campusfi/native/common"
	"campusfi/native/lending"
	"campusfi/native/risk"
	"campusfi/native/tranche"
	"campusfi/observability"
	"campusfi/services/financed/fixtures"
	"campusfi/services/financed/storage"
)

// Config carries the runtime knobs the server needs from the daemon config.
type Config struct {
	FeeBps         uint64
	Splits         tranche.Splits
	Tokens         []string
	JWTSecret      string
	JWTIssuer      string
	AllowAnonymous bool
	RateLimits     map[string]RateLimit
	TrustedProxies []string
}

// Options wires the server's collaborators.
type Options struct {
	Config   Config
	Store    *storage.Storage
	Lending  *lending.Engine
	Risk     *risk.Table
	Fixtures *fixtures.Set
	Pauses   nativecommon.PauseView
	Logger   *slog.Logger
	Now      func() time.Time
}

// Server exposes the engines over JSON/HTTP and owns the committed state of
// every pool, position and series.
type Server struct {
	cfg      Config
	store    *storage.Storage
	lending  *lending.Engine
	risk     *risk.Table
	fixtures *fixtures.Set
	pauses   nativecommon.PauseView
	logger   *slog.Logger
	now      func() time.Time
	auth     *Authenticator
	limiter  *RateLimiter
	metrics  *observability.EngineMetrics
	reg      *registry
}

// New constructs the server and hydrates state from storage, then seeds any
// fixture pools and series not yet persisted.
func New(ctx context.Context, opts Options) (*Server, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("storage required")
	}
	if opts.Lending == nil {
		return nil, fmt.Errorf("lending engine required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Risk == nil {
		opts.Risk = risk.DefaultTable()
	}
	if opts.Config.Splits == (tranche.Splits{}) {
		opts.Config.Splits = tranche.DefaultSplits()
	}
	if err := opts.Config.Splits.Validate(); err != nil {
		return nil, err
	}
	trusted, err := ParseTrustedProxies(opts.Config.TrustedProxies)
	if err != nil {
		return nil, err
	}
	auth, err := NewAuthenticator(AuthOptions{
		Tokens:         opts.Config.Tokens,
		JWTSecret:      opts.Config.JWTSecret,
		JWTIssuer:      opts.Config.JWTIssuer,
		AllowAnonymous: opts.Config.AllowAnonymous,
	}, opts.Logger)
	if err != nil {
		return nil, err
	}
	s := &Server{
		cfg:      opts.Config,
		store:    opts.Store,
		lending:  opts.Lending,
		risk:     opts.Risk,
		fixtures: opts.Fixtures,
		pauses:   opts.Pauses,
		logger:   opts.Logger,
		now:      opts.Now,
		auth:     auth,
		limiter:  NewRateLimiter(opts.Config.RateLimits, trusted),
		metrics:  observability.Engine(),
		reg:      newRegistry(),
	}
	if err := s.hydrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Server) hydrate(ctx context.Context) error {
	ammRecords, err := s.store.List(ctx, storage.KindAMMPool)
	if err != nil {
		return err
	}
	for _, rec := range ammRecords {
		var stored ammRecord
		if err := json.Unmarshal(rec.Body, &stored); err != nil {
			return fmt.Errorf("decode amm pool %s: %w", rec.ID, err)
		}
		pool, err := stored.pool()
		if err != nil {
			return fmt.Errorf("amm pool %s: %w", rec.ID, err)
		}
		s.reg.amm[rec.ID] = &ammEntry{pool: pool}
	}

	lendingRecords, err := s.store.List(ctx, storage.KindLendingPool)
	if err != nil {
		return err
	}
	for _, rec := range lendingRecords {
		var state lendingState
		if err := json.Unmarshal(rec.Body, &state); err != nil {
			return fmt.Errorf("decode lending pool %s: %w", rec.ID, err)
		}
		s.reg.lending[rec.ID] = &lendingEntry{state: state.clone()}
	}

	seriesRecords, err := s.store.List(ctx, storage.KindSeries)
	if err != nil {
		return err
	}
	for _, rec := range seriesRecords {
		var state seriesState
		if err := json.Unmarshal(rec.Body, &state); err != nil {
			return fmt.Errorf("decode series %s: %w", rec.ID, err)
		}
		s.reg.series[rec.ID] = &seriesEntry{state: state}
	}

	if s.fixtures == nil {
		return nil
	}
	for _, id := range s.fixtures.PoolIDs() {
		if _, ok := s.reg.amm[id]; ok {
			continue
		}
		pool, err := s.fixtures.ReservePool(ctx, id)
		if err != nil {
			return err
		}
		if err := s.store.Put(ctx, storage.KindAMMPool, id, ammRecordOf(pool)); err != nil {
			return err
		}
		s.reg.amm[id] = &ammEntry{pool: pool}
	}
	for _, seriesID := range s.fixtures.SeriesIDs() {
		key := seriesID.Hex()
		if _, ok := s.reg.series[key]; ok {
			continue
		}
		receivables, stack, err := tranche.FromSource(ctx, s.fixtures, seriesID, s.cfg.Splits)
		if err != nil {
			return err
		}
		state := seriesState{Receivables: receivables, Stack: stack}
		if err := s.store.Put(ctx, storage.KindSeries, key, state); err != nil {
			return err
		}
		s.reg.series[key] = &seriesEntry{state: state}
	}
	s.logger.Info("state hydrated",
		slog.Int("amm_pools", len(s.reg.amm)),
		slog.Int("lending_pools", len(s.reg.lending)),
		slog.Int("series", len(s.reg.series)))
	return nil
}

// Handler returns the routed, instrumented HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.limiter.Middleware("quote"))
		s.route(r, http.MethodPost, "/v1/amm/quote", s.handleQuoteSwap)
		s.route(r, http.MethodGet, "/v1/amm/pools", s.handleListPools)
		s.route(r, http.MethodGet, "/v1/amm/pools/{id}", s.handleGetPool)
		s.route(r, http.MethodPost, "/v1/risk/classify", s.handleClassify)
		s.route(r, http.MethodGet, "/v1/risk/bands", s.handleBands)
		s.route(r, http.MethodPost, "/v1/lending/quote", s.handleLendingQuote)
		s.route(r, http.MethodGet, "/v1/lending/pools", s.handleListLendingPools)
		s.route(r, http.MethodGet, "/v1/lending/pools/{id}", s.handleGetLendingPool)
		s.route(r, http.MethodGet, "/v1/lending/pools/{id}/positions/{pid}", s.handleGetPosition)
		s.route(r, http.MethodGet, "/v1/tranche/series", s.handleListSeries)
		s.route(r, http.MethodGet, "/v1/tranche/series/{id}", s.handleGetSeries)
		s.route(r, http.MethodGet, "/v1/tranche/series/{id}/risk", s.handleSeriesRisk)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.limiter.Middleware("mutate"))
		r.Use(s.auth.Middleware)
		s.route(r, http.MethodPost, "/v1/amm/pools", s.handleCreatePool)
		s.route(r, http.MethodPost, "/v1/amm/pools/{id}/swap", s.handleSwap)
		s.route(r, http.MethodPost, "/v1/amm/pools/{id}/liquidity", s.handleAddLiquidity)
		s.route(r, http.MethodPost, "/v1/amm/pools/{id}/burn", s.handleRemoveLiquidity)
		s.route(r, http.MethodPost, "/v1/lending/pools", s.handleCreateLendingPool)
		s.route(r, http.MethodPost, "/v1/lending/pools/{id}/supply", s.handleSupply)
		s.route(r, http.MethodPost, "/v1/lending/pools/{id}/withdraw", s.handleWithdraw)
		s.route(r, http.MethodPost, "/v1/lending/pools/{id}/positions", s.handleOpenPosition)
		s.route(r, http.MethodPost, "/v1/lending/pools/{id}/positions/{pid}/repay", s.handleRepay)
		s.route(r, http.MethodPost, "/v1/tranche/series", s.handleIssueSeries)
		s.route(r, http.MethodPost, "/v1/tranche/series/{id}/sell", s.handleSell)
		s.route(r, http.MethodPost, "/v1/tranche/series/{id}/collect", s.handleCollect)
	})

	return otelhttp.NewHandler(r, "financed")
}

func (s *Server) route(r chi.Router, method, pattern string, h http.HandlerFunc) {
	r.Method(method, pattern, otelhttp.WithRouteTag(pattern, h))
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.ObserveRequest(route, status, time.Since(start))
	})
}

// Run serves until ctx is cancelled, then drains connections for up to
// shutdownTimeout.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	s.logger.Info("http server listening", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// record finalises a mutation: metrics for every attempt, a warning log for
// rejections and an event counter for commits.
func (s *Server) record(module, op, resource, event string, start time.Time, err error) {
	s.metrics.RecordOperation(module, op, err, time.Since(start))
	if err != nil {
		s.logger.Warn("mutation rejected",
			slog.String("module", module),
			slog.String("op", op),
			slog.String("resource", resource),
			slog.String("kind", nativecommon.Kind(err)),
			slog.Any("error", err))
		return
	}
	if event != "" {
		observability.Events().Record(module, event)
	}
}

// mutateAMM runs fn against a copy of the pool under its lock and commits the
// result only once it has been persisted.
func (s *Server) mutateAMM(ctx context.Context, op, event, id string, fn func(amm.ReservePool) (amm.ReservePool, error)) (pool amm.ReservePool, err error) {
	start := time.Now()
	defer func() { s.record(nativecommon.ModuleAMM, op, id, event, start, err) }()
	if err = nativecommon.Guard(s.pauses, nativecommon.ModuleAMM); err != nil {
		return amm.ReservePool{}, err
	}
	entry, ok := s.reg.ammPool(id)
	if !ok {
		return amm.ReservePool{}, fmt.Errorf("%w: %s", amm.ErrUnknownPool, id)
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	next, err := fn(entry.pool.Clone())
	if err != nil {
		return amm.ReservePool{}, err
	}
	if err = s.store.Put(ctx, storage.KindAMMPool, id, ammRecordOf(next)); err != nil {
		return amm.ReservePool{}, err
	}
	entry.pool = next
	s.metrics.SetReserves(id, next.ReserveA.ToBig(), next.ReserveB.ToBig())
	return next.Clone(), nil
}

func (s *Server) mutateLending(ctx context.Context, op, event, id string, fn func(lendingState) (lendingState, error)) (state lendingState, err error) {
	start := time.Now()
	defer func() { s.record(nativecommon.ModuleLending, op, id, event, start, err) }()
	if err = nativecommon.Guard(s.pauses, nativecommon.ModuleLending); err != nil {
		return lendingState{}, err
	}
	entry, ok := s.reg.lendingPool(id)
	if !ok {
		return lendingState{}, fmt.Errorf("lending pool %s: %w", id, errNotFound)
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	next, err := fn(entry.state.clone())
	if err != nil {
		return lendingState{}, err
	}
	if err = s.store.Put(ctx, storage.KindLendingPool, id, next); err != nil {
		return lendingState{}, err
	}
	entry.state = next
	s.metrics.SetUtilization(id, lending.Utilization(next.Pool))
	return next.clone(), nil
}

func (s *Server) mutateSeries(ctx context.Context, op, event, id string, fn func(seriesState) (seriesState, error)) (state seriesState, err error) {
	start := time.Now()
	defer func() { s.record(nativecommon.ModuleTranche, op, id, event, start, err) }()
	if err = nativecommon.Guard(s.pauses, nativecommon.ModuleTranche); err != nil {
		return seriesState{}, err
	}
	entry, ok := s.reg.seriesByID(id)
	if !ok {
		return seriesState{}, fmt.Errorf("%w: %s", tranche.ErrUnknownSeries, id)
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	next, err := fn(entry.state.clone())
	if err != nil {
		return seriesState{}, err
	}
	if err = s.store.Put(ctx, storage.KindSeries, id, next); err != nil {
		return seriesState{}, err
	}
	entry.state = next
	for _, t := range next.Stack.Tranches {
		s.metrics.SetOutstanding(id, t.Class.String(), t.Outstanding())
	}
	return next.clone(), nil
}

// create registers a new resource after persisting it. It fails if the id is
// taken.
func (s *Server) create(ctx context.Context, module, kind, id string, value any, insert func()) (err error) {
	start := time.Now()
	defer func() { s.record(module, "create", id, "", start, err) }()
	if err = nativecommon.Guard(s.pauses, module); err != nil {
		return err
	}
	s.reg.mu.Lock()
	defer s.reg.mu.Unlock()
	var exists bool
	switch kind {
	case storage.KindAMMPool:
		_, exists = s.reg.amm[id]
	case storage.KindLendingPool:
		_, exists = s.reg.lending[id]
	case storage.KindSeries:
		_, exists = s.reg.series[id]
	}
	if exists {
		return fmt.Errorf("%w: %s %s already exists", nativecommon.ErrInvalidConfiguration, kind, id)
	}
	if err = s.store.Put(ctx, kind, id, value); err != nil {
		return err
	}
	insert()
	return nil
}
