package summary

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint hashes the JSON serialisation of data. Raw JSON is first
// normalised (object keys sorted, insignificant whitespace dropped) so that
// structurally identical payloads hash alike. The hash is not
// cryptographic; a collision only causes a stale cache hit.
func Fingerprint(data any) (string, error) {
	canon, err := canonicalJSON(data)
	if err != nil {
		return "", fmt.Errorf("serialize payload: %w", err)
	}

	return strconv.FormatUint(xxhash.Sum64(canon), 36), nil
}

// canonicalJSON marshals data and re-encodes it through a generic value so
// that map keys come out sorted. Numbers keep their literal text.
func canonicalJSON(data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}

	return json.Marshal(v)
}
