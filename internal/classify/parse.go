package classify

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/mikey/inbox-sweeper/internal/core"
)

type rawEntry struct {
	Idx    *json.Number `json:"idx"`
	Cat    string       `json:"cat"`
	C      *json.Number `json:"c"`
	Reason string       `json:"reason"`
	Lang   string       `json:"lang"`
}

type parsedEntry struct {
	verdict  core.Verdict
	reason   string
	language string
}

// extractJSONArray returns the JSON array embedded in a model reply,
// tolerating markdown fences and surrounding prose.
func extractJSONArray(text string) ([]byte, error) {
	trimmed := strings.TrimSpace(text)
	if json.Valid([]byte(trimmed)) && strings.HasPrefix(trimmed, "[") {
		return []byte(trimmed), nil
	}

	start := strings.IndexByte(trimmed, '[')
	end := strings.LastIndexByte(trimmed, ']')
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: no JSON array in reply", core.ErrMalformedResponse)
	}
	candidate := []byte(trimmed[start : end+1])
	if !json.Valid(candidate) {
		return nil, fmt.Errorf("%w: reply contains invalid JSON", core.ErrMalformedResponse)
	}
	return candidate, nil
}

func decodeEntries(text string) ([]rawEntry, error) {
	data, err := extractJSONArray(text)
	if err != nil {
		return nil, err
	}
	var entries []rawEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrMalformedResponse, err)
	}
	return entries, nil
}

// wholeNumber accepts integers and whole-valued floats such as 85.0
func wholeNumber(n *json.Number, field string) (int, error) {
	if n == nil {
		return 0, fmt.Errorf("%w: missing %s", core.ErrMalformedResponse, field)
	}
	if i, err := n.Int64(); err == nil {
		return int(i), nil
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %s %q is not an integer", core.ErrMalformedResponse, field, n.String())
	}
	return int(f), nil
}

func parseEntry(e rawEntry, n int) (int, parsedEntry, error) {
	idx, err := wholeNumber(e.Idx, "idx")
	if err != nil {
		return 0, parsedEntry{}, err
	}
	if idx < 0 || idx >= n {
		return 0, parsedEntry{}, fmt.Errorf("%w: index %d outside 0..%d", core.ErrMalformedResponse, idx, n-1)
	}
	category, err := core.ParseCategory(e.Cat)
	if err != nil {
		return 0, parsedEntry{}, fmt.Errorf("index %d: %w", idx, err)
	}
	confidence, err := wholeNumber(e.C, "confidence")
	if err != nil {
		return 0, parsedEntry{}, fmt.Errorf("index %d: %w", idx, err)
	}
	verdict, err := core.NewVerdict(category, confidence)
	if err != nil {
		return 0, parsedEntry{}, fmt.Errorf("index %d: %w", idx, err)
	}
	return idx, parsedEntry{verdict: verdict, reason: e.Reason, language: strings.ToLower(e.Lang)}, nil
}

// parseClassifications decodes a primary reply for a batch of n items.
// Every index 0..n-1 must appear exactly once.
func parseClassifications(text string, n int) ([]parsedEntry, error) {
	entries, err := decodeEntries(text)
	if err != nil {
		return nil, err
	}

	out := make([]parsedEntry, n)
	seen := make([]bool, n)
	for _, e := range entries {
		idx, pe, err := parseEntry(e, n)
		if err != nil {
			return nil, err
		}
		if seen[idx] {
			return nil, fmt.Errorf("%w: duplicate index %d", core.ErrMalformedResponse, idx)
		}
		seen[idx] = true
		out[idx] = pe
	}

	var missing []int
	for i, ok := range seen {
		if !ok {
			missing = append(missing, i)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing indices %v", core.ErrMalformedResponse, missing)
	}
	return out, nil
}

// parseCorrections decodes a verification reply for n reviewed items.
// Omitted indices mean no change; present indices must be in range and unique.
func parseCorrections(text string, n int) (map[int]parsedEntry, error) {
	entries, err := decodeEntries(text)
	if err != nil {
		return nil, err
	}

	out := make(map[int]parsedEntry, len(entries))
	for _, e := range entries {
		idx, pe, err := parseEntry(e, n)
		if err != nil {
			return nil, err
		}
		if _, dup := out[idx]; dup {
			return nil, fmt.Errorf("%w: duplicate correction for index %d", core.ErrMalformedResponse, idx)
		}
		out[idx] = pe
	}
	return out, nil
}
