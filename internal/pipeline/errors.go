package pipeline

import "fmt"

// Stage names the pipeline step that failed.
type Stage string

const (
	StageValidate  Stage = "validate"
	StageNormalize Stage = "normalize"
	StageAggregate Stage = "aggregate"
	StageDetect    Stage = "detect"
	StageClassify  Stage = "classify"
)

// Error is the single structured failure returned by Process. Panics raised
// while processing are recovered into it as well.
type Error struct {
	RunID string
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("pipeline run %s failed at %s: %v", e.RunID, e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
