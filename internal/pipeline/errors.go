package pipeline

import (
	"errors"
	"fmt"

	"github.com/banshee-data/signal.report/internal/align"
	"github.com/banshee-data/signal.report/internal/dsp"
	"github.com/banshee-data/signal.report/internal/sensorlog"
)

// Kind classifies a pipeline failure for callers and for the HTTP status
// mapping.
type Kind string

const (
	KindInputMissing     Kind = "InputMissing"
	KindSchema           Kind = "SchemaError"
	KindInvalidParameter Kind = "InvalidParameter"
	KindInsufficientData Kind = "InsufficientData"
	KindParse            Kind = "ParseError"
	KindInvalidInput     Kind = "InvalidInput"
)

// Stage names the pipeline step that failed.
type Stage string

const (
	StageLoad     Stage = "load"
	StageValidate Stage = "validate"
	StageTimeKey  Stage = "timekey"
	StageTrim     Stage = "trim"
	StageJoin     Stage = "join"
	StageProject  Stage = "project"
	StageFilter   Stage = "filter"
)

// Error is the single error type Run returns.
type Error struct {
	Kind  Kind
	Stage Stage
	Err   error
}

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrInputMissing     = &Error{Kind: KindInputMissing}
	ErrSchema           = &Error{Kind: KindSchema}
	ErrInvalidParameter = &Error{Kind: KindInvalidParameter}
	ErrInsufficientData = &Error{Kind: KindInsufficientData}
	ErrParse            = &Error{Kind: KindParse}
	ErrInvalidInput     = &Error{Kind: KindInvalidInput}
)

func (e *Error) Error() string {
	switch {
	case e.Err == nil:
		return string(e.Kind)
	case e.Stage == "":
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s at %s: %v", e.Kind, e.Stage, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinel errors by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Stage == "" && t.Err == nil && t.Kind == e.Kind
}

// Message is the user-facing text: the cause without the kind prefix.
func (e *Error) Message() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}

// KindOf returns the kind of the first *Error in err's chain, or "" when
// err did not come from the pipeline.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

func newError(kind Kind, stage Stage, format string, args ...any) *Error {
	return &Error{Kind: kind, Stage: stage, Err: fmt.Errorf(format, args...)}
}

// classify wraps a lower-level error, picking the kind from the package
// sentinel it carries. fallback is used when no sentinel matches.
func classify(stage Stage, err error, fallback Kind) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	kind := fallback
	switch {
	case errors.Is(err, sensorlog.ErrParse):
		kind = KindParse
	case errors.Is(err, sensorlog.ErrSchema), errors.Is(err, align.ErrSchema):
		kind = KindSchema
	case errors.Is(err, dsp.ErrInvalidParameter):
		kind = KindInvalidParameter
	case errors.Is(err, dsp.ErrInsufficientData):
		kind = KindInsufficientData
	case errors.Is(err, dsp.ErrInvalidInput), errors.Is(err, align.ErrInvalidInput):
		kind = KindInvalidInput
	}
	return &Error{Kind: kind, Stage: stage, Err: err}
}
