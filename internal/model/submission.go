// Package model contains the submission record and the types shared by the
// stores, the engine, and the HTTP layer.
package model

import (
	"errors"
	"time"
)

// Status describes the processing lifecycle of a submission.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition can follow s.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Valid reports whether s is one of the four known states.
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusDone, StatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether a record in status from may move to status to.
// Failing straight out of queued is allowed so a job that could not be
// scheduled still reaches a terminal state.
func CanTransition(from, to Status) bool {
	switch to {
	case StatusProcessing:
		return from == StatusQueued
	case StatusDone:
		return from == StatusProcessing
	case StatusFailed:
		return from == StatusQueued || from == StatusProcessing
	}
	return false
}

var (
	// ErrNotFound is returned by stores when no record has the requested id.
	ErrNotFound = errors.New("submission not found")
	// ErrInvalidTransition is returned when a status update would regress or
	// skip a state.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ErrorKind tags why a submission failed.
type ErrorKind string

const (
	ErrorUnparseable ErrorKind = "unparseable_document"
	ErrorWrite       ErrorKind = "write_failure"
	ErrorStorage     ErrorKind = "storage_failure"
	ErrorScheduling  ErrorKind = "scheduling_failure"
	ErrorInternal    ErrorKind = "internal_failure"
)

// Submission is one document-processing job and its durable record.
type Submission struct {
	ID           string       `json:"id"`
	Filename     string       `json:"filename"`
	ContentType  string       `json:"content_type"`
	Status       Status       `json:"status"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	Replacements Replacements `json:"replacements"`
	// OutputLocation is the artifact store location of the result. It is
	// never serialized; clients download through the API instead.
	OutputLocation *string    `json:"-"`
	ReplacedCount  *int       `json:"replaced_count,omitempty"`
	ErrorKind      *ErrorKind `json:"error_kind,omitempty"`
	ErrorMessage   *string    `json:"error,omitempty"`
	Rating         *int       `json:"rating,omitempty"`
	RatingNote     *string    `json:"rating_note,omitempty"`
}

// Clone returns a deep copy so callers cannot mutate a store's internal state.
func (s *Submission) Clone() *Submission {
	out := *s
	out.Replacements = append(Replacements(nil), s.Replacements...)
	out.OutputLocation = cloneString(s.OutputLocation)
	out.ErrorMessage = cloneString(s.ErrorMessage)
	out.RatingNote = cloneString(s.RatingNote)
	if s.ReplacedCount != nil {
		n := *s.ReplacedCount
		out.ReplacedCount = &n
	}
	if s.ErrorKind != nil {
		k := *s.ErrorKind
		out.ErrorKind = &k
	}
	if s.Rating != nil {
		r := *s.Rating
		out.Rating = &r
	}
	return &out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
