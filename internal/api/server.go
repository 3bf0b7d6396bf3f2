// Package api exposes the forecaster over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/YassChaai/SmartCare-Analytics/internal/artifacts"
	"github.com/YassChaai/SmartCare-Analytics/internal/eval"
	"github.com/YassChaai/SmartCare-Analytics/internal/forecast"
	"github.com/YassChaai/SmartCare-Analytics/internal/inference"
	"github.com/YassChaai/SmartCare-Analytics/internal/logging"
	"github.com/YassChaai/SmartCare-Analytics/internal/metrics"
	"github.com/YassChaai/SmartCare-Analytics/internal/resources"
	"github.com/YassChaai/SmartCare-Analytics/internal/series"
	"github.com/YassChaai/SmartCare-Analytics/internal/similarity"
	"github.com/YassChaai/SmartCare-Analytics/internal/store"
	"github.com/YassChaai/SmartCare-Analytics/internal/trend"
)

// maxBody caps request bodies.
const maxBody = 1 << 20

// MetricsSource returns the evaluation report of the active model set.
// *artifacts.Store implements it.
type MetricsSource interface {
	LoadMetrics() (eval.Report, *artifacts.Manifest, error)
}

// Journal records served predictions. *wal.Journal implements it.
type Journal interface {
	Append(r *store.Record) error
}

// Deps are the collaborators of the server. Only Forecaster is required.
type Deps struct {
	Forecaster *forecast.Forecaster
	Artifacts  MetricsSource
	Store      store.Store
	Journal    Journal
	Capacity   resources.Capacity
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
	Gatherer   prometheus.Gatherer // nil serves the default registry
}

// Options tune the HTTP surface.
type Options struct {
	TokenRate       int
	MetricsUser     string
	MetricsPassword string
	DefaultModel    string // used when a request names no model
}

// Server routes the forecasting API.
type Server struct {
	router      *mux.Router
	forecaster  *forecast.Forecaster
	artifacts   MetricsSource
	store       store.Store
	journal     Journal
	capacity    resources.Capacity
	logger      *zap.Logger
	metrics     *metrics.Metrics
	gatherer    prometheus.Gatherer
	limiter     *rate.Limiter
	model       string
	metricsAuth struct {
		enabled  bool
		user     string
		password string
	}
}

// NewServer wires the routes.
func NewServer(d Deps, opts Options) *Server {
	tokenRate := opts.TokenRate
	if tokenRate < 1 {
		tokenRate = 100
	}
	s := &Server{
		router:     mux.NewRouter(),
		forecaster: d.Forecaster,
		artifacts:  d.Artifacts,
		store:      d.Store,
		journal:    d.Journal,
		capacity:   d.Capacity,
		logger:     logging.OrNop(d.Logger),
		metrics:    d.Metrics,
		gatherer:   d.Gatherer,
		limiter:    rate.NewLimiter(rate.Limit(tokenRate), tokenRate*2),
		model:      opts.DefaultModel,
	}
	s.metricsAuth.enabled = opts.MetricsUser != ""
	s.metricsAuth.user = opts.MetricsUser
	s.metricsAuth.password = opts.MetricsPassword

	s.setupRoutes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.Use(s.rateLimit)

	v1.HandleFunc("/predict", s.handlePredict).Methods(http.MethodPost)
	v1.HandleFunc("/forecast", s.handleForecast).Methods(http.MethodPost)
	v1.HandleFunc("/similar", s.handleSimilar).Methods(http.MethodGet)
	v1.HandleFunc("/trend", s.handleTrend).Methods(http.MethodGet)
	v1.HandleFunc("/models", s.handleModels).Methods(http.MethodGet)
	v1.HandleFunc("/predictions/latest", s.handleLatest).Methods(http.MethodGet)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", s.metricsHandler()).Methods(http.MethodGet)
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			w.Header().Set("Retry-After", "10")
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var body PredictRequest
	if err := decode(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req, err := body.Forecast()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Model == "" {
		req.Model = s.model
	}

	day, err := s.forecaster.Predict(r.Context(), req)
	if err != nil {
		s.fail(w, "predict", err)
		return
	}

	est := s.capacity.Estimate(*day)
	resp := PredictResponse{Day: day, Resources: est}
	if rec, err := store.NewRecord(store.ModeSingle, body, []forecast.Day{*day}); err == nil {
		rec.Resources = &est
		s.persist(r.Context(), rec)
		resp.ID = rec.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	var body ForecastRequest
	if err := decode(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	start, err := body.Parse()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	model := body.Model
	if model == "" {
		model = s.model
	}
	batch, err := s.forecaster.PredictRange(r.Context(), start, body.Days, model)
	if err != nil {
		s.fail(w, "forecast", err)
		return
	}

	summary := s.capacity.Summarize(batch)
	resp := ForecastResponse{Batch: batch, Summary: summary}
	if rec, err := store.NewRecord(store.ModeMulti, body, batch.Days); err == nil {
		rec.Summary = &summary
		s.persist(r.Context(), rec)
		resp.ID = rec.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date, err := series.ParseDate(q.Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid date %q", q.Get("date")))
		return
	}
	holiday, err := queryBool(q.Get("holiday"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid holiday")
		return
	}
	temp := math.NaN()
	if v := q.Get("temperature"); v != "" {
		if temp, err = strconv.ParseFloat(v, 64); err != nil {
			writeError(w, http.StatusBadRequest, "invalid temperature")
			return
		}
	}
	k := 0
	if v := q.Get("k"); v != "" {
		if k, err = strconv.Atoi(v); err != nil || k < 1 {
			writeError(w, http.StatusBadRequest, "k must be a positive integer")
			return
		}
	}

	d := similarity.NewDescriptor(date, holiday, temp, q.Get("weather"), q.Get("event"))
	search, quality := s.forecaster.Similar(r.Context(), d, k)
	writeJSON(w, http.StatusOK, NewSimilarResponse(search, quality))
}

func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	current := s.forecaster.Trend()
	if q.Get("start") == "" && q.Get("end") == "" && q.Get("years") == "" {
		writeJSON(w, http.StatusOK, current)
		return
	}

	hist := s.forecaster.Series()
	startYear, endYear, years := hist.First().Date.Year(), hist.Last().Date.Year(), current.Years
	var err error
	if v := q.Get("start"); v != "" {
		if startYear, err = strconv.Atoi(v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid start year")
			return
		}
	}
	if v := q.Get("end"); v != "" {
		if endYear, err = strconv.Atoi(v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid end year")
			return
		}
	}
	if v := q.Get("years"); v != "" {
		if years, err = strconv.Atoi(v); err != nil || years < 0 {
			writeError(w, http.StatusBadRequest, "invalid years")
			return
		}
	}
	writeJSON(w, http.StatusOK, trend.Compute(hist, startYear, endYear, years))
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	if s.artifacts == nil {
		writeError(w, http.StatusServiceUnavailable, "no artifact store configured")
		return
	}
	report, manifest, err := s.artifacts.LoadMetrics()
	if err != nil {
		s.fail(w, "models", err)
		return
	}
	writeJSON(w, http.StatusOK, NewModelsResponse(report, manifest))
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, store.ErrNotFound.Error())
		return
	}
	rec, err := s.store.Latest(r.Context())
	if err != nil {
		s.fail(w, "latest", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok"}
	if hist := s.forecaster.Series(); hist != nil && hist.Len() > 0 {
		resp.Records = hist.Len()
		resp.HistoryStart = hist.First().Date.Format(series.DateLayout)
		resp.HistoryEnd = hist.Last().Date.Format(series.DateLayout)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) metricsHandler() http.Handler {
	handler := promhttp.Handler()
	if s.gatherer != nil {
		handler = promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})
	}
	if !s.metricsAuth.enabled {
		return handler
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != s.metricsAuth.user || pass != s.metricsAuth.password {
			w.Header().Set("WWW-Authenticate", `Basic realm="Metrics"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}

// persist saves and journals a served record. Failures are logged and
// counted; the response has already been computed.
func (s *Server) persist(ctx context.Context, rec *store.Record) {
	if s.journal != nil {
		if err := s.journal.Append(rec); err != nil {
			s.logger.Error("journal append failed", zap.String("id", rec.ID), zap.Error(err))
			s.metrics.ObserveJournalError()
		}
	}
	if s.store != nil {
		if err := s.store.Save(ctx, rec); err != nil {
			s.logger.Error("store save failed", zap.String("id", rec.ID), zap.Error(err))
			s.metrics.ObserveStoreError()
		}
	}
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("op", op), zap.Error(err))
	}
	writeError(w, status, err.Error())
}

// statusFor maps the error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, forecast.ErrInvalidRange):
		return http.StatusBadRequest
	case errors.Is(err, inference.ErrNoDataForDate), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, artifacts.ErrMissingArtifact), errors.Is(err, artifacts.ErrFeatureMismatch):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func decode(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody+1))
	if err != nil {
		return fmt.Errorf("failed to read body")
	}
	if len(body) > maxBody {
		return fmt.Errorf("body exceeds %d bytes", maxBody)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("invalid JSON: %v", err)
	}
	return nil
}

func queryBool(v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
