package api

import (
	"fmt"
	"math"
	"time"

	"github.com/YassChaai/SmartCare-Analytics/internal/artifacts"
	"github.com/YassChaai/SmartCare-Analytics/internal/eval"
	"github.com/YassChaai/SmartCare-Analytics/internal/forecast"
	"github.com/YassChaai/SmartCare-Analytics/internal/resources"
	"github.com/YassChaai/SmartCare-Analytics/internal/series"
	"github.com/YassChaai/SmartCare-Analytics/internal/similarity"
)

// PredictRequest is the body of POST /v1/predict. Date is the day the
// forecast is issued; the prediction targets Date + 4.
type PredictRequest struct {
	Date        string   `json:"date"`
	Weather     string   `json:"meteo,omitempty"`
	Event       string   `json:"event,omitempty"`
	Holiday     bool     `json:"holiday,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	Model       string   `json:"model,omitempty"`
	TrendPct    *float64 `json:"trend_pct,omitempty"`
}

// Forecast converts the wire request. A missing temperature becomes NaN,
// which the forecaster replaces with the month mean.
func (r PredictRequest) Forecast() (forecast.Request, error) {
	if r.Date == "" {
		return forecast.Request{}, fmt.Errorf("date is required")
	}
	date, err := series.ParseDate(r.Date)
	if err != nil {
		return forecast.Request{}, fmt.Errorf("invalid date %q: %w", r.Date, err)
	}
	temp := math.NaN()
	if r.Temperature != nil {
		temp = *r.Temperature
	}
	return forecast.Request{
		Date:        date,
		Weather:     r.Weather,
		Event:       r.Event,
		Holiday:     r.Holiday,
		Temperature: temp,
		Model:       r.Model,
		TrendPct:    r.TrendPct,
	}, nil
}

// PredictResponse is a single-day forecast with its resource estimate.
type PredictResponse struct {
	ID        string             `json:"id,omitempty"`
	Day       *forecast.Day      `json:"day"`
	Resources resources.Estimate `json:"resources"`
}

// ForecastRequest is the body of POST /v1/forecast.
type ForecastRequest struct {
	Start string `json:"start"`
	Days  int    `json:"days"`
	Model string `json:"model,omitempty"`
}

// Parse validates the request and returns the start date.
func (r ForecastRequest) Parse() (time.Time, error) {
	if r.Start == "" {
		return time.Time{}, fmt.Errorf("start is required")
	}
	start, err := series.ParseDate(r.Start)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid start %q: %w", r.Start, err)
	}
	if r.Days < 1 || r.Days > forecast.MaxDays {
		return time.Time{}, fmt.Errorf("%w: got %d", forecast.ErrInvalidRange, r.Days)
	}
	return start, nil
}

// ForecastResponse is a multi-day forecast with its resource summary.
type ForecastResponse struct {
	ID      string            `json:"id,omitempty"`
	Batch   *forecast.Batch   `json:"batch"`
	Summary resources.Summary `json:"summary"`
}

// SimilarResponse lists every neighbour of a search.
type SimilarResponse struct {
	Date       string                 `json:"date"`
	K          int                    `json:"k"`
	Neighbours []similarity.Neighbour `json:"neighbours"`
	Uniform    []string               `json:"uniform,omitempty"`
	Quality    similarity.Quality     `json:"quality"`
}

// NewSimilarResponse flattens a search for the wire.
func NewSimilarResponse(s *similarity.Search, q similarity.Quality) SimilarResponse {
	resp := SimilarResponse{
		Date:       s.Descriptor.Date.Format(series.DateLayout),
		K:          s.K,
		Neighbours: make([]similarity.Neighbour, 0, s.Count()),
		Uniform:    s.Uniform,
		Quality:    q,
	}
	for _, c := range s.Candidates {
		resp.Neighbours = append(resp.Neighbours, similarity.Neighbour{
			Date:       c.Row.Date.Format(series.DateLayout),
			Admissions: c.Admissions(),
			Distance:   c.Distance,
		})
	}
	return resp
}

// ModelsResponse is the evaluation report of the active artifact version.
type ModelsResponse struct {
	Version      string        `json:"version"`
	CreatedAt    time.Time     `json:"created_at"`
	DefaultModel string        `json:"default_model"`
	Best         string        `json:"best,omitempty"`
	Ranking      []eval.Ranked `json:"ranking"`
}

// NewModelsResponse ranks report for display.
func NewModelsResponse(report eval.Report, m *artifacts.Manifest) ModelsResponse {
	resp := ModelsResponse{Ranking: report.Ranking()}
	if m != nil {
		resp.Version = m.Version
		resp.CreatedAt = m.CreatedAt
		resp.DefaultModel = m.DefaultModel
	}
	if best, ok := report.BestModel(); ok {
		resp.Best = best
	}
	return resp
}

// HealthResponse reports the history snapshot being served.
type HealthResponse struct {
	Status       string `json:"status"`
	Records      int    `json:"records"`
	HistoryStart string `json:"history_start,omitempty"`
	HistoryEnd   string `json:"history_end,omitempty"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
