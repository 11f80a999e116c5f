// Package extract recovers a structured Intent from free-form model text.
//
// Models emit valid JSON only probabilistically, so a single parse strategy
// is brittle. Extraction degrades through increasingly permissive
// heuristics, most precise first: whole-text parse, bracket-balanced
// candidate scan, then a loose pattern match on the "action" key. When all
// three fail the caller falls back to showing the sanitized text itself.
package extract

import (
	"encoding/json"
	"errors"
	"regexp"
	"sort"
	"strings"

	"github.com/tjfontaine/voicebank-gateway/internal/domain"
)

// ErrNoPayload is the definitive "no structured payload found" signal.
var ErrNoPayload = errors.New("no structured payload in model output")

// loosePattern matches a braced region containing the literal key
// "action". Regex cannot balance nested braces, so this is strictly a last
// resort after the depth-tracking scan.
var loosePattern = regexp.MustCompile(`\{[^{}]*"action"[\s\S]*\}`)

// Intent parses sanitized model text into an Intent, or returns
// ErrNoPayload when no strategy yields one.
func Intent(text string) (*domain.Intent, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, ErrNoPayload
	}

	// Strategy 1: the whole text is one JSON value.
	if in, ok := parseIntent(trimmed); ok {
		return in, nil
	}

	// Strategy 2: scan for balanced {...} candidates, longest first. The
	// longest candidate is most likely the full payload rather than a
	// nested fragment such as the parameters object.
	for _, candidate := range balancedObjects(trimmed) {
		if in, ok := parseIntent(candidate); ok {
			return in, nil
		}
	}

	// Strategy 3: loose match on a braced region mentioning "action".
	if m := loosePattern.FindString(trimmed); m != "" {
		if in, ok := parseIntent(m); ok {
			return in, nil
		}
	}

	return nil, ErrNoPayload
}

// parseIntent attempts to parse a single JSON object into an Intent. It
// accepts the object only when it exposes at least one of the expected
// keys, so arbitrary JSON in prose (a quoted example, say) is not
// mistaken for a payload.
func parseIntent(s string) (*domain.Intent, bool) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, false
	}
	if _, ok := raw["action"]; !ok {
		if _, ok := raw["response"]; !ok {
			if _, ok := raw["parameters"]; !ok {
				return nil, false
			}
		}
	}

	in := &domain.Intent{Parameters: map[string]any{}}

	var action string
	if b, ok := raw["action"]; ok {
		// A null or malformed action degrades to "other" rather than
		// rejecting the whole payload.
		_ = json.Unmarshal(b, &action)
	}
	in.Action = domain.ParseAction(action)

	if b, ok := raw["required"]; ok {
		_ = json.Unmarshal(b, &in.Required)
	}
	if b, ok := raw["parameters"]; ok {
		var params map[string]any
		if err := json.Unmarshal(b, &params); err == nil && params != nil {
			in.Parameters = params
		}
	}
	if b, ok := raw["response"]; ok {
		_ = json.Unmarshal(b, &in.Response)
	}

	return in, true
}

// balancedObjects returns every brace-balanced {...} substring, nested
// ones included, sorted by length descending. The scanner tracks nesting
// with a stack of open positions and is aware of JSON strings and escapes,
// so braces inside values do not unbalance it. Nested candidates matter
// when an outer object never closes: the inner payload is still
// recoverable.
func balancedObjects(s string) []string {
	var candidates []string
	var opens []int
	inString := false
	escaped := false

	for i, r := range s {
		if escaped {
			escaped = false
			continue
		}
		switch r {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				opens = append(opens, i)
			}
		case '}':
			if !inString && len(opens) > 0 {
				start := opens[len(opens)-1]
				opens = opens[:len(opens)-1]
				candidates = append(candidates, s[start:i+1])
			}
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return len(candidates[i]) > len(candidates[j])
	})
	return candidates
}
