package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/YassChaai/SmartCare-Analytics/internal/artifacts"
	"github.com/YassChaai/SmartCare-Analytics/internal/eval"
	"github.com/YassChaai/SmartCare-Analytics/internal/forecast"
	"github.com/YassChaai/SmartCare-Analytics/internal/metrics"
	"github.com/YassChaai/SmartCare-Analytics/internal/resources"
	"github.com/YassChaai/SmartCare-Analytics/internal/series"
	"github.com/YassChaai/SmartCare-Analytics/internal/store"
)

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func testForecaster(t *testing.T, m *metrics.Metrics) *forecast.Forecaster {
	t.Helper()

	recs := make([]series.Record, 120)
	for i := range recs {
		adm := float64(100 + 10*(i%7))
		recs[i] = series.Record{
			Date:       start.AddDate(0, 0, i),
			Admissions: adm,
			TempMean:   10,
			TempMin:    5,
			TempMax:    15,
			Weather:    "Soleil",
			Event:      series.NoEvent,
			Extra: map[string]float64{
				series.ColUrgences:  3 * adm,
				series.ColOccupancy: 0.8,
				series.ColBedsTotal: 1500,
			},
		}
	}
	s, err := series.New(recs, []string{series.ColUrgences, series.ColOccupancy, series.ColBedsTotal})
	if err != nil {
		t.Fatalf("series.New failed: %v", err)
	}
	return forecast.New(s, nil, forecast.DefaultConfig(), nil, m)
}

type fakeJournal struct {
	records []*store.Record
	err     error
}

func (j *fakeJournal) Append(r *store.Record) error {
	if j.err != nil {
		return j.err
	}
	j.records = append(j.records, r)
	return nil
}

type fakeMetrics struct {
	report eval.Report
	err    error
}

func (f fakeMetrics) LoadMetrics() (eval.Report, *artifacts.Manifest, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.report, &artifacts.Manifest{Version: "v1", DefaultModel: "gradient_boosting"}, nil
}

type fixture struct {
	server  *Server
	store   *store.MemoryStore
	journal *fakeJournal
	reg     *prometheus.Registry
}

func newFixture(t *testing.T, d Deps, opts Options) *fixture {
	t.Helper()

	st, err := store.NewMemoryStore("", 0)
	if err != nil {
		t.Fatal(err)
	}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	f := &fixture{store: st, journal: &fakeJournal{}, reg: reg}

	if d.Forecaster == nil {
		d.Forecaster = testForecaster(t, m)
	}
	d.Store = st
	d.Journal = f.journal
	d.Capacity = resources.CapacityFrom(d.Forecaster.Series())
	d.Metrics = m
	d.Gatherer = reg
	if opts.TokenRate == 0 {
		opts.TokenRate = 1000
	}
	f.server = NewServer(d, opts)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	f.server.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("Failed to decode %q: %v", w.Body.String(), err)
	}
}

func TestPredict(t *testing.T) {
	f := newFixture(t, Deps{}, Options{})

	w := f.do(t, http.MethodPost, "/v1/predict", `{"date": "2024-01-01", "temperature": 15}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp PredictResponse
	decodeBody(t, w, &resp)
	if resp.Day.Source != forecast.SourceStats {
		t.Errorf("Expected stats source without a model, got %s", resp.Day.Source)
	}
	if resp.Day.DateJ != "2024-01-01" {
		t.Errorf("Expected date_J 2024-01-01, got %s", resp.Day.DateJ)
	}
	if resp.Resources.BedsTotal != 1500 {
		t.Errorf("Expected 1500 beds, got %d", resp.Resources.BedsTotal)
	}
	if resp.ID == "" {
		t.Fatal("Expected a record id")
	}

	if len(f.journal.records) != 1 || f.journal.records[0].ID != resp.ID {
		t.Errorf("Expected the record to be journalled")
	}
	latest := f.do(t, http.MethodGet, "/v1/predictions/latest", "")
	if latest.Code != http.StatusOK {
		t.Fatalf("Expected 200 for latest, got %d", latest.Code)
	}
	var rec store.Record
	decodeBody(t, latest, &rec)
	if rec.ID != resp.ID || rec.Mode != store.ModeSingle || rec.Resources == nil {
		t.Errorf("Unexpected latest record %+v", rec)
	}
}

func TestPredictBadInput(t *testing.T) {
	f := newFixture(t, Deps{}, Options{})

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"date": `},
		{"missing date", `{"meteo": "Pluie"}`},
		{"bad date", `{"date": "01/01/2024"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, "/v1/predict", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d", w.Code)
			}
			var e ErrorResponse
			decodeBody(t, w, &e)
			if e.Error == "" {
				t.Error("Expected an error message")
			}
		})
	}

	big := `{"date": "2024-01-01", "meteo": "` + strings.Repeat("x", maxBody) + `"}`
	if w := f.do(t, http.MethodPost, "/v1/predict", big); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for oversized body, got %d", w.Code)
	}
}

func TestForecast(t *testing.T) {
	f := newFixture(t, Deps{}, Options{})

	w := f.do(t, http.MethodPost, "/v1/forecast", `{"start": "2024-01-01", "days": 7}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp ForecastResponse
	decodeBody(t, w, &resp)
	if len(resp.Batch.Days) != 7 || resp.Summary.Days != 7 {
		t.Errorf("Expected 7 days, got %d / %d", len(resp.Batch.Days), resp.Summary.Days)
	}
	if len(resp.Summary.Estimates) != 7 {
		t.Errorf("Expected 7 estimates, got %d", len(resp.Summary.Estimates))
	}

	rec, err := f.store.Latest(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if rec.Mode != store.ModeMulti || rec.Summary == nil {
		t.Errorf("Expected a stored multi-day record, got %+v", rec)
	}

	for _, body := range []string{`{"start": "2024-01-01", "days": 0}`, `{"start": "2024-01-01", "days": 91}`, `{"days": 3}`} {
		if w := f.do(t, http.MethodPost, "/v1/forecast", body); w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400 for %s, got %d", body, w.Code)
		}
	}
}

func TestSimilar(t *testing.T) {
	f := newFixture(t, Deps{}, Options{})

	w := f.do(t, http.MethodGet, "/v1/similar?date=2024-08-05&weather=Soleil&temperature=12&k=5", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp SimilarResponse
	decodeBody(t, w, &resp)
	if resp.K != 5 || len(resp.Neighbours) != 5 {
		t.Errorf("Expected 5 neighbours, got k=%d n=%d", resp.K, len(resp.Neighbours))
	}
	if resp.Quality.Count != 5 {
		t.Errorf("Expected quality count 5, got %d", resp.Quality.Count)
	}

	for _, q := range []string{"date=nope", "date=2024-08-05&k=0", "date=2024-08-05&temperature=hot", "date=2024-08-05&holiday=maybe"} {
		if w := f.do(t, http.MethodGet, "/v1/similar?"+q, ""); w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400 for %s, got %d", q, w.Code)
		}
	}
}

func TestTrend(t *testing.T) {
	f := newFixture(t, Deps{}, Options{})

	w := f.do(t, http.MethodGet, "/v1/trend", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	w = f.do(t, http.MethodGet, "/v1/trend?start=2023&end=2024&years=3", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var tr struct {
		StartYear int `json:"start_year"`
		Years     int `json:"years"`
	}
	decodeBody(t, w, &tr)
	if tr.Years != 3 {
		t.Errorf("Expected years 3, got %d", tr.Years)
	}

	if w := f.do(t, http.MethodGet, "/v1/trend?start=last", ""); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestModels(t *testing.T) {
	t.Run("no store", func(t *testing.T) {
		f := newFixture(t, Deps{}, Options{})
		if w := f.do(t, http.MethodGet, "/v1/models", ""); w.Code != http.StatusServiceUnavailable {
			t.Errorf("Expected 503, got %d", w.Code)
		}
	})

	t.Run("missing artifact", func(t *testing.T) {
		f := newFixture(t, Deps{Artifacts: fakeMetrics{err: artifacts.ErrMissingArtifact}}, Options{})
		if w := f.do(t, http.MethodGet, "/v1/models", ""); w.Code != http.StatusServiceUnavailable {
			t.Errorf("Expected 503, got %d", w.Code)
		}
	})

	t.Run("report", func(t *testing.T) {
		report := eval.Report{
			"gradient_boosting":       {MAE: 5, RMSE: 6, MAPE: 3, SMAPE: 3},
			"random_forest":           {MAE: 7, RMSE: 8, MAPE: 4, SMAPE: 4},
			eval.BaselinePrefix + "j": {MAE: 9, RMSE: 10, MAPE: 5, SMAPE: 5},
		}
		f := newFixture(t, Deps{Artifacts: fakeMetrics{report: report}}, Options{})
		w := f.do(t, http.MethodGet, "/v1/models", "")
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", w.Code)
		}
		var resp ModelsResponse
		decodeBody(t, w, &resp)
		if resp.Best != "gradient_boosting" || resp.Version != "v1" || len(resp.Ranking) != 3 {
			t.Errorf("Unexpected models response %+v", resp)
		}
	})
}

func TestLatestEmpty(t *testing.T) {
	f := newFixture(t, Deps{}, Options{})
	if w := f.do(t, http.MethodGet, "/v1/predictions/latest", ""); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestJournalFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, Deps{}, Options{})
	f.journal.err = errors.New("disk full")

	w := f.do(t, http.MethodPost, "/v1/predict", `{"date": "2024-01-02"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if f.store.Len() != 1 {
		t.Errorf("Expected the record to be stored, got %d", f.store.Len())
	}
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, Deps{}, Options{TokenRate: 1})

	// Burst is twice the rate
	for i := 0; i < 2; i++ {
		if w := f.do(t, http.MethodGet, "/v1/trend", ""); w.Code != http.StatusOK {
			t.Fatalf("Expected 200 for request %d, got %d", i, w.Code)
		}
	}
	w := f.do(t, http.MethodGet, "/v1/trend", "")
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Expected Retry-After header")
	}

	// Health is not rate limited
	if w := f.do(t, http.MethodGet, "/health", ""); w.Code != http.StatusOK {
		t.Errorf("Expected 200 for health, got %d", w.Code)
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t, Deps{}, Options{})

	w := f.do(t, http.MethodGet, "/health", "")
	var resp HealthResponse
	decodeBody(t, w, &resp)
	if resp.Status != "ok" || resp.Records != 120 || resp.HistoryStart != "2024-01-01" {
		t.Errorf("Unexpected health %+v", resp)
	}
}

func TestMetricsAuth(t *testing.T) {
	f := newFixture(t, Deps{}, Options{MetricsUser: "prom", MetricsPassword: "secret"})
	f.do(t, http.MethodPost, "/v1/predict", `{"date": "2024-01-01"}`)

	if w := f.do(t, http.MethodGet, "/metrics", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without credentials, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.SetBasicAuth("prom", "secret")
	w := httptest.NewRecorder()
	f.server.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 with credentials, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "smartcare_predictions_total") {
		t.Error("Expected smartcare collectors in the exposition")
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{forecast.ErrInvalidRange, http.StatusBadRequest},
		{store.ErrNotFound, http.StatusNotFound},
		{artifacts.ErrFeatureMismatch, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, expected %d", tt.err, got, tt.want)
		}
	}
}
