package summary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind classifies what is being summarised.
type Kind string

const (
	// KindExercise summarises a single exercise's answers.
	KindExercise Kind = "exercise"

	// KindSession summarises one workshop session.
	KindSession Kind = "session"

	// KindWorkshop summarises the whole workshop.
	KindWorkshop Kind = "workshop"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindExercise, KindSession, KindWorkshop:
		return true
	}

	return false
}

// ErrNotConfigured means no summarisation backend is available. It is an
// expected state: callers fall back to static content.
var ErrNotConfigured = errors.New("summary service not configured")

// RemoteError is a failure reported by the summarisation endpoint.
type RemoteError struct {
	// Status is the HTTP status code.
	Status int

	// Message is the endpoint's error text.
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("summary endpoint: %d %s", e.Status,
			http.StatusText(e.Status))
	}

	return fmt.Sprintf("summary endpoint: %d: %s", e.Status, e.Message)
}

// Cached is a reusable cache hit.
type Cached struct {
	SummaryText string
	GeneratedAt time.Time
}

// Result is what FetchSummary hands back.
type Result struct {
	SummaryText string
	GeneratedAt time.Time
	WasCached   bool
}

// Request is the body sent to the summarisation endpoint.
type Request struct {
	Type Kind `json:"type"`

	// ExerciseID is only set for KindExercise.
	ExerciseID string `json:"exerciseId,omitempty"`

	// SessionNumber is only set for KindSession. It marshals as null when
	// the id did not start with a number.
	SessionNumber *SessionNumber `json:"sessionNumber,omitempty"`

	Data json.RawMessage `json:"data"`
}

// Response is the endpoint's success body.
type Response struct {
	Summary   string `json:"summary"`
	Timestamp string `json:"timestamp"`
	Model     string `json:"model"`
}

// ErrorBody is the endpoint's failure body.
type ErrorBody struct {
	Error    string `json:"error"`
	Fallback bool   `json:"fallback,omitempty"`
}

// Summarizer produces a summary for a request. It returns ErrNotConfigured
// when no backend is available.
type Summarizer interface {
	Summarize(ctx context.Context, req Request) (Response, error)
}

// SummarizerFunc adapts a function to Summarizer.
type SummarizerFunc func(ctx context.Context, req Request) (Response, error)

// Summarize implements Summarizer.
func (f SummarizerFunc) Summarize(ctx context.Context,
	req Request) (Response, error) {

	return f(ctx, req)
}

// TimestampLayout is the ISO-8601 form used on the wire and in the cache,
// always in UTC with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp accepts any RFC 3339 timestamp.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
