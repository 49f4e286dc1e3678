package insight

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/septapod/agentmapper/internal/summary"
)

// systemPrompt frames every insight request.
const systemPrompt = `You are a facilitator's assistant for a ` +
	`multi-session AI strategy workshop. Participants answer structured ` +
	`exercises and you reflect their answers back as a short insight.

Rules:
- Write 2-4 sentences of plain prose, or up to 4 short bullet points
- Name concrete themes, tensions and gaps in the answers
- Do not invent answers the participants did not give
- If the answers are empty or too thin, say what is missing`

// buildPrompt renders the user prompt for req.
func buildPrompt(req summary.Request) (string, error) {
	data, err := indentData(req.Data)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	switch req.Type {
	case summary.KindExercise:
		name := req.ExerciseID
		if name == "" {
			name = "an unnamed exercise"
		}
		fmt.Fprintf(&b, "Summarize the team's answers to the %q "+
			"exercise.\n\n", name)

	case summary.KindSession:
		fmt.Fprintf(&b, "Summarize what the team produced in %s.\n\n",
			sessionLabel(req.SessionNumber))

	case summary.KindWorkshop:
		b.WriteString("Summarize the team's progress across the " +
			"whole workshop and name the most important next " +
			"step.\n\n")

	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, req.Type)
	}

	b.WriteString("--- ANSWERS ---\n")
	b.Write(data)
	b.WriteString("\n--- END ---")

	return b.String(), nil
}

func sessionLabel(n *summary.SessionNumber) string {
	if n == nil || !n.Valid {
		return "an unnumbered session"
	}

	return "session " + strconv.FormatFloat(n.Value, 'f', -1, 64)
}

// indentData pretty-prints the payload so the model sees one field per
// line. An empty payload renders as {}.
func indentData(raw json.RawMessage) ([]byte, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return []byte("{}"), nil
	}

	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}

	return out.Bytes(), nil
}
