// Package anomaly flags districts whose metric profile is a statistical
// outlier, using an isolation forest that can be trained once and reused.
package anomaly

import (
	"errors"
	"log/slog"
)

// Feature names, in model column order.
const (
	FeaturePending = "pending_updates"
	FeatureGap     = "gap_percentage"
	FeatureDemo    = "demo_updates"
)

var (
	// Features is the full model input.
	Features = []string{FeaturePending, FeatureGap, FeatureDemo}
	// FallbackFeatures is used when a stored model predates demographic data.
	FallbackFeatures = []string{FeaturePending, FeatureGap}
)

// Point is the per-district input to detection.
type Point struct {
	Pending float64
	Gap     float64
	Demo    float64
}

func (p Point) vector(width int) []float64 {
	v := []float64{p.Pending, p.Gap, p.Demo}
	return v[:width]
}

// Mode describes how a detection run used its model.
type Mode string

const (
	ModeSkipped   Mode = "skipped"
	ModeTrained   Mode = "trained"
	ModeScored    Mode = "scored"
	ModeFallback  Mode = "fallback"
	ModeRetrained Mode = "retrained"
)

// Outcome is the typed result of Detect. Scores and Anomalies are aligned
// with the input points; both are zero-valued when Mode is ModeSkipped.
type Outcome struct {
	Mode      Mode
	Model     *Forest
	Scores    []float64
	Anomalies []bool
	Count     int
	// Mismatch is set when the supplied model could not score the points
	// with either feature set and a fresh model was trained instead.
	Mismatch *FeatureShapeError
}

// NewModel reports whether Model was produced by this run and should be
// persisted.
func (o Outcome) NewModel() bool {
	return o.Mode == ModeTrained || o.Mode == ModeRetrained
}

// Detector runs training or scoring over a set of points.
type Detector struct {
	params Params
	logger *slog.Logger
}

// NewDetector returns a Detector. A nil logger discards output.
func NewDetector(p Params, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Detector{params: p.withDefaults(), logger: logger}
}

// Params returns the effective training parameters.
func (d *Detector) Params() Params { return d.params }

// Detect scores points with model, or trains a new model when model is nil.
// Fewer than two points skips detection entirely.
func (d *Detector) Detect(points []Point, model *Forest) (Outcome, error) {
	if len(points) < 2 {
		d.logger.Debug("anomaly detection skipped", "points", len(points))
		return Outcome{
			Mode:      ModeSkipped,
			Model:     model,
			Scores:    make([]float64, len(points)),
			Anomalies: make([]bool, len(points)),
		}, nil
	}

	if model == nil {
		return d.train(points, ModeTrained, nil)
	}

	if scores, err := model.ScoreAll(matrix(points, len(Features))); err == nil {
		return finish(ModeScored, model, scores), nil
	} else if !isShape(err) {
		return Outcome{}, err
	}
	d.logger.Warn("model feature count differs, trying fallback features",
		"model_id", model.ID, "model_features", model.NumFeatures())

	scores, err := model.ScoreAll(matrix(points, len(FallbackFeatures)))
	if err == nil {
		return finish(ModeFallback, model, scores), nil
	}
	var shape *FeatureShapeError
	if !errors.As(err, &shape) {
		return Outcome{}, err
	}
	d.logger.Warn("stored model unusable, retraining", "model_id", model.ID, "error", err)
	return d.train(points, ModeRetrained, shape)
}

func (d *Detector) train(points []Point, mode Mode, mismatch *FeatureShapeError) (Outcome, error) {
	f, err := Fit(matrix(points, len(Features)), Features, d.params)
	if err != nil {
		return Outcome{}, err
	}
	scores, err := f.ScoreAll(matrix(points, len(Features)))
	if err != nil {
		return Outcome{}, err
	}
	out := finish(mode, f, scores)
	out.Mismatch = mismatch
	d.logger.Info("anomaly model trained", "model_id", f.ID, "points", len(points), "anomalies", out.Count)
	return out, nil
}

func finish(mode Mode, model *Forest, scores []float64) Outcome {
	out := Outcome{Mode: mode, Model: model, Scores: scores, Anomalies: make([]bool, len(scores))}
	for i, s := range scores {
		if s < 0 {
			out.Anomalies[i] = true
			out.Count++
		}
	}
	return out
}

func matrix(points []Point, width int) [][]float64 {
	X := make([][]float64, len(points))
	for i, p := range points {
		X[i] = p.vector(width)
	}
	return X
}

func isShape(err error) bool {
	var shape *FeatureShapeError
	return errors.As(err, &shape)
}
