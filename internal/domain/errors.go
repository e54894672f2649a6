package domain

import (
	"errors"
	"fmt"
)

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors carry no infrastructure dependency.

var (
	// Input errors
	ErrNoItems       = errors.New("no file(s) and no image(s) provided")
	ErrBatchTooLarge = errors.New("batch exceeds configured maximum size")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")

	// Model errors
	ErrModelUnavailable = errors.New("model is not available")
	ErrEmptyLabels      = errors.New("label set is empty")
	ErrScoreMismatch    = errors.New("score vector does not match label set")

	// Content errors
	ErrFetchFatal  = errors.New("content fetch failed")
	ErrUnsupported = errors.New("unsupported content reference")

	// History errors
	ErrBatchNotFound = errors.New("batch not found")
)

// ─── Failure Scopes ─────────────────────────────────────────────────────────
// Two scopes, kept apart as distinct types rather than by convention:
// a FatalLoadError stops a whole unit (the batch inline, one worker pooled);
// an ItemError stops one task. Anything else is "unexpected" and is treated
// as task-local by the runners.

// LoadStage names what a unit was loading when it failed.
type LoadStage string

const (
	StageModel  LoadStage = "model"
	StageLabels LoadStage = "labels"
)

// FatalLoadError reports that the classifier could not load its model or labels.
type FatalLoadError struct {
	Stage LoadStage
	Err   error
}

func (e *FatalLoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Stage, e.Err)
}

func (e *FatalLoadError) Unwrap() error { return e.Err }

// ItemErrorKind names the step at which one item failed.
type ItemErrorKind string

const (
	ItemFetch     ItemErrorKind = "fetch"
	ItemDecode    ItemErrorKind = "decode"
	ItemInference ItemErrorKind = "inference"
)

// ItemError reports a failure confined to a single item.
type ItemError struct {
	Kind ItemErrorKind
	Item Item
	Err  error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Kind, e.Item, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// IsFatal reports whether err carries a FatalLoadError.
func IsFatal(err error) bool {
	var fe *FatalLoadError
	return errors.As(err, &fe)
}

// IsItemError reports whether err carries an ItemError.
func IsItemError(err error) bool {
	var ie *ItemError
	return errors.As(err, &ie)
}

// FailureKind classifies err for logs and metrics: the load stage for fatal
// errors, the item step for item errors, "unexpected" otherwise.
func FailureKind(err error) string {
	var fe *FatalLoadError
	if errors.As(err, &fe) {
		return string(fe.Stage)
	}
	var ie *ItemError
	if errors.As(err, &ie) {
		return string(ie.Kind)
	}
	return "unexpected"
}
