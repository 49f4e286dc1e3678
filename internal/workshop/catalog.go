package workshop

import "slices"

// Exercise is one structured activity of the workshop.
type Exercise struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Session int    `json:"session"`
}

// Session groups the exercises done in one sitting.
type Session struct {
	Number    int        `json:"number"`
	Title     string     `json:"title"`
	Exercises []Exercise `json:"exercises"`
}

var catalog = []Session{
	{
		Number: 1,
		Title:  "Foundations",
		Exercises: []Exercise{
			{ID: "icebreakers", Title: "Icebreakers"},
			{ID: "principles", Title: "AI Principles"},
		},
	},
	{
		Number: 2,
		Title:  "Tradeoffs and Friction",
		Exercises: []Exercise{
			{ID: "tradeoff-sliders", Title: "Tradeoff Sliders"},
			{ID: "friction-map", Title: "Friction Map"},
		},
	},
	{
		Number: 3,
		Title:  "Building the MVP",
		Exercises: []Exercise{
			{ID: "mvp-spec", Title: "MVP Specification"},
			{ID: "roadmap", Title: "Roadmap"},
		},
	},
	{
		Number: 4,
		Title:  "Scaling",
		Exercises: []Exercise{
			{ID: "scaling-checklist", Title: "Scaling Checklist"},
		},
	},
}

func init() {
	for i := range catalog {
		for j := range catalog[i].Exercises {
			catalog[i].Exercises[j].Session = catalog[i].Number
		}
	}
}

// Sessions returns the workshop's sessions in order.
func Sessions() []Session {
	out := make([]Session, len(catalog))
	for i, s := range catalog {
		s.Exercises = slices.Clone(s.Exercises)
		out[i] = s
	}

	return out
}

// LookupSession returns session n.
func LookupSession(n int) (Session, bool) {
	for _, s := range Sessions() {
		if s.Number == n {
			return s, true
		}
	}

	return Session{}, false
}

// LookupExercise returns the exercise with the given id.
func LookupExercise(id string) (Exercise, bool) {
	for _, s := range catalog {
		for _, e := range s.Exercises {
			if e.ID == id {
				return e, true
			}
		}
	}

	return Exercise{}, false
}
