package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrData is matched by every *DataError.
var ErrData = errors.New("model: inconsistent schedule data")

// DataError reports a schedule whose fields parse but do not make sense
// together, e.g. a recurrence that ends before it starts.
type DataError struct {
	ID     string
	Field  string
	Reason string
}

func (e *DataError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("model: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("model: schedule %s: %s: %s", e.ID, e.Field, e.Reason)
}

func (e *DataError) Is(target error) bool { return target == ErrData }

// FieldError wraps a parse failure with the record field it came from.
type FieldError struct {
	ID    string
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("model: schedule %s: %s: %v", e.ID, e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// Is makes an unparsable field count as bad data for the schedule as a whole,
// while errors.Is(err, calendar.ErrParse) still reaches the parse error.
func (e *FieldError) Is(target error) bool { return target == ErrData }

// Failure is one entry of a batch result: the schedule that was skipped and
// why. Batches never abort on a single bad schedule.
type Failure struct {
	ID  string `json:"id"`
	Err error  `json:"-"`
}

func (f Failure) Error() string {
	if f.Err == nil {
		return f.ID
	}
	return f.Err.Error()
}

// MarshalJSON lets failures travel in JSON responses as their message.
func (f Failure) MarshalJSON() ([]byte, error) {
	msg := ""
	if f.Err != nil {
		msg = f.Err.Error()
	}
	return json.Marshal(struct {
		ID    string `json:"id"`
		Error string `json:"error"`
	}{ID: f.ID, Error: msg})
}
