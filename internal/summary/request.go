package summary

import (
	"encoding/json"
	"math"
	"strings"
	"unicode"
)

// SessionNumber is the numeric session id sent with session summaries. An id
// that does not start with a number is still sent, as null, and left to the
// endpoint to handle.
type SessionNumber struct {
	Value float64
	Valid bool
}

// MarshalJSON implements json.Marshaler.
func (n SessionNumber) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}

	return json.Marshal(n.Value)
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *SessionNumber) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*n = SessionNumber{}
		return nil
	}

	if err := json.Unmarshal(b, &n.Value); err != nil {
		return err
	}
	n.Valid = true

	return nil
}

// BuildRequest shapes a summary request. The id becomes exerciseId for
// exercises and a parsed sessionNumber for sessions; for workshops it is
// dropped. Unknown kinds go through untouched.
func BuildRequest(kind Kind, id string, data json.RawMessage) Request {
	req := Request{
		Type: kind,
		Data: data,
	}

	switch kind {
	case KindExercise:
		req.ExerciseID = id

	case KindSession:
		n, ok := parseLeadingInt(id)
		req.SessionNumber = &SessionNumber{Value: n, Valid: ok}
	}

	return req
}

// parseLeadingInt parses the integer at the start of s the way a lenient
// browser parser does: leading whitespace and a sign are skipped, a 0x
// prefix switches to hex and parsing stops at the first invalid digit. It
// fails only if no digit was read.
func parseLeadingInt(s string) (float64, bool) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)

	sign := 1.0
	switch {
	case strings.HasPrefix(s, "-"):
		sign = -1
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}

	base := 10.0
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		base = 16
		s = s[2:]
	}

	var (
		v      float64
		digits int
	)
	for _, r := range s {
		d := digitValue(r)
		if d < 0 || float64(d) >= base {
			break
		}
		v = v*base + float64(d)
		digits++
	}

	if digits == 0 || math.IsInf(v, 0) {
		return 0, false
	}

	return sign * v, true
}

func digitValue(r rune) int {
	switch {
	case r >= '0' && r <= '9':
		return int(r - '0')
	case r >= 'a' && r <= 'f':
		return int(r-'a') + 10
	case r >= 'A' && r <= 'F':
		return int(r-'A') + 10
	}

	return -1
}
