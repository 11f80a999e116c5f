// Package sanitize strips the model's visible reasoning segments from raw
// completion text before extraction. The SEA-LION reasoning variant emits
// its chain of thought between <think> markers when thinking mode is on;
// none of that may reach the user-facing channel or the extractor.
package sanitize

import "strings"

const (
	openMarker  = "<think>"
	closeMarker = "</think>"
)

// Strip removes every <think>...</think> segment from text. It never
// errors: text without markers passes through untouched, and the function
// is idempotent.
//
// An opening marker with no matching close strips everything from the
// marker to the end of the text. Dropping a payload that might have
// followed is the deliberate trade: leaking reasoning to the user is worse
// than forcing the extraction fallback.
func Strip(text string) string {
	out := text
	for {
		start := strings.Index(out, openMarker)
		if start < 0 {
			break
		}
		rest := out[start+len(openMarker):]
		end := strings.Index(rest, closeMarker)
		if end < 0 {
			out = out[:start]
			break
		}
		out = out[:start] + rest[end+len(closeMarker):]
	}
	return strings.TrimSpace(out)
}
