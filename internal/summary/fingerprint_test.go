package summary

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// genPayload draws a JSON-like object with scalar and nested values.
func genPayload() *rapid.Generator[map[string]any] {
	scalar := rapid.OneOf(
		rapid.Custom(func(t *rapid.T) any {
			return rapid.String().Draw(t, "s")
		}),
		rapid.Custom(func(t *rapid.T) any {
			return rapid.IntRange(-1000, 1000).Draw(t, "i")
		}),
		rapid.Custom(func(t *rapid.T) any {
			return rapid.Bool().Draw(t, "b")
		}),
		rapid.Custom(func(t *rapid.T) any {
			return rapid.SliceOfN(
				rapid.StringMatching(`[a-z ]{0,6}`), 0, 4,
			).Draw(t, "list")
		}),
	)

	return rapid.MapOfN(
		rapid.StringMatching(`[a-zA-Z][a-zA-Z0-9_]{0,7}`), scalar, 0, 8,
	)
}

// TestFingerprintDeterministic checks that structurally identical payloads
// hash alike, whatever their key order or formatting.
func TestFingerprintDeterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p := genPayload().Draw(t, "payload")

		a, err := Fingerprint(p)
		require.NoError(t, err)

		// Round trip through indented raw JSON.
		raw, err := json.MarshalIndent(p, "", "   ")
		require.NoError(t, err)
		b, err := Fingerprint(json.RawMessage(raw))
		require.NoError(t, err)

		require.Equal(t, a, b)
	})
}

// TestFingerprintSensitive checks that changing one field value changes the
// fingerprint.
func TestFingerprintSensitive(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p := genPayload().Filter(func(m map[string]any) bool {
			return len(m) > 0
		}).Draw(t, "payload")

		keys := make([]string, 0, len(p))
		for k := range p {
			keys = append(keys, k)
		}
		key := rapid.SampledFrom(keys).Draw(t, "key")
		suffix := rapid.StringN(1, 5, -1).Draw(t, "suffix")

		mutated := make(map[string]any, len(p))
		for k, v := range p {
			mutated[k] = v
		}
		mutated[key] = fmt.Sprintf("%v|%s", p[key], suffix)

		before, err := Fingerprint(p)
		require.NoError(t, err)
		after, err := Fingerprint(mutated)
		require.NoError(t, err)

		require.NotEqual(t, before, after)
	})
}

func TestFingerprintExamples(t *testing.T) {
	a, err := Fingerprint(json.RawMessage(`{"a":1,"b":[1,2]}`))
	require.NoError(t, err)
	b, err := Fingerprint(json.RawMessage(`{ "b": [1, 2], "a": 1 }`))
	require.NoError(t, err)
	require.Equal(t, a, b)

	// Array order matters.
	c, err := Fingerprint(json.RawMessage(`{"a":1,"b":[2,1]}`))
	require.NoError(t, err)
	require.NotEqual(t, a, c)

	// Empty payloads are fine.
	_, err = Fingerprint(nil)
	require.NoError(t, err)
	_, err = Fingerprint(json.RawMessage(`{}`))
	require.NoError(t, err)

	_, err = Fingerprint(json.RawMessage(`{broken`))
	require.Error(t, err)
}

// TestCacheKeyIsolation checks that distinct ids never share a slot and
// that an absent id is one shared slot per kind.
func TestCacheKeyIsolation(t *testing.T) {
	kinds := []Kind{KindExercise, KindSession, KindWorkshop}

	rapid.Check(t, func(t *rapid.T) {
		kind := rapid.SampledFrom(kinds).Draw(t, "kind")
		id1 := rapid.String().Draw(t, "id1")
		id2 := rapid.String().Filter(func(s string) bool {
			return s != id1
		}).Draw(t, "id2")

		require.NotEqual(t, CacheKey(kind, id1), CacheKey(kind, id2))
	})

	require.Equal(t, "ai-summary-workshop", CacheKey(KindWorkshop, ""))
	require.Equal(t, "ai-summary-exercise-icebreaker",
		CacheKey(KindExercise, "icebreaker"))
}
