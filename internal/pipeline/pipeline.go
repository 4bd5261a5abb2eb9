// Package pipeline turns the three master tables into ranked district
// reports: aggregate, derive metrics, detect anomalies, classify.
package pipeline

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/KaramelBytes/satark-cli/internal/anomaly"
	"github.com/KaramelBytes/satark-cli/internal/normalize"
	"github.com/KaramelBytes/satark-cli/internal/table"
)

// Input carries one invocation's data. Nil tables are treated as empty;
// a nil Model requests training.
type Input struct {
	Enrolment   *table.Table
	Biometric   *table.Table
	Demographic *table.Table
	Model       *anomaly.Forest
}

// DistrictReport is the externally visible row for one district.
type DistrictReport struct {
	State      string  `json:"state"`
	District   string  `json:"district"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	Expected   int64   `json:"expected_updates"`
	Actual     int64   `json:"actual_updates"`
	Pending    int64   `json:"pending_updates"`
	Gap        float64 `json:"gap_percentage"`
	Efficiency float64 `json:"efficiency_index"`
	Status     Status  `json:"status"`
	IsAnomaly  bool    `json:"is_anomaly"`
	Reasoning  string  `json:"ai_reasoning"`

	// Metric keeps the unrounded values for local rendering.
	Metric Metric `json:"-"`
}

// Summary aggregates the run.
type Summary struct {
	TotalPending  int64 `json:"total_pending_updates"`
	CriticalCount int   `json:"critical_districts_count"`
	Processed     int   `json:"processed_districts"`
}

// Result is the output of Process. Model and Detection are for the caller
// only and never serialized.
type Result struct {
	RunID     string           `json:"run_id"`
	Summary   Summary          `json:"summary"`
	Districts []DistrictReport `json:"districts"`

	Model     *anomaly.Forest `json:"-"`
	Detection anomaly.Outcome `json:"-"`
	Duration  time.Duration   `json:"-"`
}

// Pipeline is stateless between runs; it is safe to reuse.
type Pipeline struct {
	norm     *normalize.Normalizer
	detector *anomaly.Detector
	locator  *Locator
	logger   *slog.Logger
}

// New wires a pipeline. Nil collaborators get defaults built from the
// embedded reference data and default forest parameters.
func New(norm *normalize.Normalizer, detector *anomaly.Detector, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if norm == nil {
		norm = normalize.New(nil)
	}
	if detector == nil {
		detector = anomaly.NewDetector(anomaly.DefaultParams(), logger)
	}
	return &Pipeline{
		norm:     norm,
		detector: detector,
		locator:  NewLocator(norm.Reference()),
		logger:   logger,
	}
}

// Process runs one full recomputation. Any failure, including a panic, is
// returned as *Error.
func (p *Pipeline) Process(in Input) (res *Result, err error) {
	runID := uuid.NewString()
	stage := StageValidate
	start := time.Now()
	log := p.logger.With("run_id", runID)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			res = nil
		}
		if err != nil {
			log.Error("pipeline failed", "stage", stage, "error", err)
			err = &Error{RunID: runID, Stage: stage, Err: err}
		}
	}()

	type source struct {
		t    *table.Table
		kind table.Kind
	}
	sources := []source{
		{in.Enrolment, table.Enrolment},
		{in.Biometric, table.Biometric},
		{in.Demographic, table.Demographic},
	}
	for _, s := range sources {
		if s.t != nil && s.t.Kind != "" && s.t.Kind != s.kind {
			return nil, fmt.Errorf("%s slot holds a %s table", s.kind, s.t.Kind)
		}
	}

	stage = StageNormalize
	norm := make([]*table.Table, len(sources))
	for i, s := range sources {
		if s.t.Empty() {
			norm[i] = table.New(s.kind)
			continue
		}
		t := s.t
		if t.Kind == "" {
			t = t.Clone()
			t.Kind = s.kind
		}
		norm[i] = p.norm.Table(t)
	}

	stage = StageAggregate
	totals := make([][]Total, len(sources))
	for i, t := range norm {
		totals[i], err = Aggregate(t, sources[i].kind.CountColumn())
		if err != nil {
			return nil, err
		}
	}
	metrics := ComputeMetrics(totals[0], totals[1], totals[2])

	stage = StageDetect
	points := make([]anomaly.Point, len(metrics))
	for i, m := range metrics {
		points[i] = anomaly.Point{Pending: m.Pending, Gap: m.Gap, Demo: m.Demo}
	}
	outcome, err := p.detector.Detect(points, in.Model)
	if err != nil {
		return nil, err
	}
	for i := range metrics {
		metrics[i].AnomalyScore = outcome.Scores[i]
		metrics[i].IsAnomaly = outcome.Anomalies[i]
	}

	stage = StageClassify
	res = &Result{
		RunID:     runID,
		Districts: make([]DistrictReport, 0, len(metrics)),
		Model:     outcome.Model,
		Detection: outcome,
	}
	var pending float64
	for _, m := range metrics {
		res.Districts = append(res.Districts, p.report(m))
		pending += m.Pending
		if m.Gap > CriticalGap {
			res.Summary.CriticalCount++
		}
	}
	res.Summary.TotalPending = int64(pending)
	res.Summary.Processed = len(metrics)
	res.Duration = time.Since(start)

	log.Info("pipeline complete",
		"districts", res.Summary.Processed,
		"critical", res.Summary.CriticalCount,
		"anomalies", outcome.Count,
		"model_mode", outcome.Mode,
		"duration", res.Duration)
	return res, nil
}

func (p *Pipeline) report(m Metric) DistrictReport {
	status, reason := Classify(m)
	loc, _ := p.locator.Locate(m.District)
	return DistrictReport{
		State:      m.State,
		District:   m.District,
		Lat:        loc.Lat,
		Lng:        loc.Lng,
		Expected:   int64(m.Expected),
		Actual:     int64(m.Actual),
		Pending:    int64(m.Pending),
		Gap:        round(m.Gap, 1),
		Efficiency: round(m.Efficiency, 2),
		Status:     status,
		IsAnomaly:  m.IsAnomaly,
		Reasoning:  reason,
		Metric:     m,
	}
}

func round(v float64, places int) float64 {
	f := math.Pow(10, float64(places))
	return math.Round(v*f) / f
}
