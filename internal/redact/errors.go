package redact

import (
	"errors"
	"fmt"

	"github.com/dharsanguruparan/DocScrub/internal/model"
)

// Error tags an engine failure with the stage that failed.
type Error struct {
	Kind model.ErrorKind
	Err  error
}

func (e *Error) Error() string {
	switch e.Kind {
	case model.ErrorUnparseable:
		return fmt.Sprintf("document cannot be parsed: %v", e.Err)
	case model.ErrorWrite:
		return fmt.Sprintf("output cannot be written: %v", e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func unparseable(err error) error {
	return &Error{Kind: model.ErrorUnparseable, Err: err}
}

func writeFailure(err error) error {
	return &Error{Kind: model.ErrorWrite, Err: err}
}

// KindOf returns the tag carried by err, or ok=false when err did not come
// from the engine.
func KindOf(err error) (kind model.ErrorKind, ok bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
