package parser

import (
	"encoding/json"
	"fmt"
	"strings"
)

// decodeSchema parses a raw model response into the extraction schema.
// Models occasionally ignore the no-fences instruction, so the payload
// is cleaned before unmarshalling. A response that still fails to parse
// or misses the object shape counts as a provider failure.
func decodeSchema(raw string) (*Schema, error) {
	clean := cleanModelJSON(raw)
	if clean == "" {
		return nil, fmt.Errorf("empty response")
	}

	var s Schema
	dec := json.NewDecoder(strings.NewReader(clean))
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("malformed response: %w", err)
	}
	return &s, nil
}

// cleanModelJSON strips Markdown fences and surrounding junk, keeping
// only the first top-level JSON object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	// Handle ```json ... ``` or ``` ... ``` wrappers.
	if strings.HasPrefix(s, "```") {
		// Drop the first line (``` or ```json).
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}

	// Remove trailing ``` if present.
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	s = strings.TrimSpace(s)

	// If there is still junk around the JSON object, keep only from the
	// first '{' to the last '}'.
	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}

	return s
}
