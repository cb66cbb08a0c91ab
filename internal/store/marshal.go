package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/difftrace/internal/value"
)

// marshalStrings converts a string list to canonical JSON TEXT for storage.
// Uses RFC 8785 canonical JSON so identical lists are stored byte-identically.
func marshalStrings(s []string) (string, error) {
	items := make([]any, len(s))
	for i, v := range s {
		items[i] = v
	}
	data, err := value.MarshalCanonical(items)
	if err != nil {
		return "", fmt.Errorf("marshal strings: %w", err)
	}
	return string(data), nil
}

// unmarshalStrings parses a JSON array TEXT column. Returns an empty slice,
// not nil, for an empty array.
func unmarshalStrings(data string) ([]string, error) {
	out := []string{}
	if data == "" || data == "[]" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return nil, fmt.Errorf("unmarshal strings: %w", err)
	}
	return out, nil
}

// Timestamps are stored as RFC 3339 with nanoseconds, in UTC.
func marshalTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func unmarshalTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unmarshal time: %w", err)
	}
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
