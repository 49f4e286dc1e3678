package workshop

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
)

// ErrUnknownSession is returned for a session number outside the catalog.
var ErrUnknownSession = errors.New("unknown session")

// exerciseAnswers is one exercise inside a session or workshop payload.
// Answers is null when nothing was recorded yet.
type exerciseAnswers struct {
	ID      string          `json:"id"`
	Title   string          `json:"title"`
	Answers json.RawMessage `json:"answers"`
}

type sessionPayload struct {
	Session   int               `json:"session"`
	Title     string            `json:"title"`
	Exercises []exerciseAnswers `json:"exercises"`
}

type workshopPayload struct {
	OrgName  string           `json:"org_name,omitempty"`
	Sessions []sessionPayload `json:"sessions"`

	// Other holds records that belong to no catalog exercise.
	Other map[string]json.RawMessage `json:"other,omitempty"`
}

func buildSession(s Session, records map[string]json.RawMessage) sessionPayload {
	p := sessionPayload{
		Session:   s.Number,
		Title:     s.Title,
		Exercises: make([]exerciseAnswers, 0, len(s.Exercises)),
	}
	for _, e := range s.Exercises {
		answers := records[e.ID]
		if answers == nil {
			answers = json.RawMessage("null")
		}
		p.Exercises = append(p.Exercises, exerciseAnswers{
			ID:      e.ID,
			Title:   e.Title,
			Answers: answers,
		})
	}

	return p
}

// SessionPayload assembles the summary input for session n from the
// stored answers.
func (s *Store) SessionPayload(n int) (json.RawMessage, error) {
	sess, ok := LookupSession(n)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownSession, n)
	}

	return json.Marshal(buildSession(sess, s.State().Records))
}

// WorkshopPayload assembles the summary input for the whole workshop.
func (s *Store) WorkshopPayload() (json.RawMessage, error) {
	st := s.State()

	p := workshopPayload{OrgName: st.OrgName}
	for _, sess := range Sessions() {
		p.Sessions = append(p.Sessions, buildSession(sess, st.Records))
	}

	for _, id := range slices.Sorted(maps.Keys(st.Records)) {
		if _, ok := LookupExercise(id); ok {
			continue
		}
		if p.Other == nil {
			p.Other = make(map[string]json.RawMessage)
		}
		p.Other[id] = st.Records[id]
	}

	return json.Marshal(p)
}
