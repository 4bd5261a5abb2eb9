package table

import "fmt"

// MalformedInputError reports a payload that could not be read as a table
// of the expected kind. No master state is touched when it is returned.
type MalformedInputError struct {
	Source string
	Reason string
	Err    error
}

func (e *MalformedInputError) Error() string {
	msg := "malformed input"
	if e.Source != "" {
		msg += " " + e.Source
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *MalformedInputError) Unwrap() error { return e.Err }

func malformed(source, reason string, err error) error {
	return &MalformedInputError{Source: source, Reason: reason, Err: err}
}
