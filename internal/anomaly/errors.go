package anomaly

import "fmt"

// FeatureShapeError reports a model applied to vectors of the wrong width.
type FeatureShapeError struct {
	Want int
	Got  int
}

func (e *FeatureShapeError) Error() string {
	return fmt.Sprintf("feature shape mismatch: model expects %d features, got %d", e.Want, e.Got)
}

// InsufficientDataError reports too few samples to fit or score a forest.
type InsufficientDataError struct {
	Have int
	Need int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: have %d samples, need at least %d", e.Have, e.Need)
}
