// File: internal/llmutil/parser.go
package llmutil

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// fencedObjectRegex extracts a JSON object wrapped in a markdown code block.
// \x60 is a backtick; raw strings cannot hold one.
var fencedObjectRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*({.*})\\s*\x60\x60\x60")

// ParseJSONObject decodes the JSON object in a model reply into T. The object
// may be bare, fenced in markdown, or surrounded by conversational text.
func ParseJSONObject[T any](response string) (*T, error) {
	extracted, err := ExtractJSONObject(response)
	if err != nil {
		return nil, err
	}
	var result T
	if err := json.Unmarshal([]byte(extracted), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal LLM JSON response: %w. Extracted JSON (truncated): %s", err, truncateString(extracted, 500))
	}
	return &result, nil
}

// ExtractJSONObject returns the outermost {...} span of a model reply.
func ExtractJSONObject(response string) (string, error) {
	response = strings.TrimSpace(response)

	if strings.Contains(response, "```") {
		if matches := fencedObjectRegex.FindStringSubmatch(response); len(matches) > 1 {
			return matches[1], nil
		}
	}

	first := strings.Index(response, "{")
	last := strings.LastIndex(response, "}")
	if first == -1 || last <= first {
		return "", fmt.Errorf("could not find any JSON object in the LLM response: %s", truncateString(response, 200))
	}
	return response[first : last+1], nil
}

// truncateString cuts s to maxLen bytes for logging.
func truncateString(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return CutUTF8(s, maxLen) + "..."
}

// CutUTF8 returns the longest prefix of s that fits in maxBytes without
// splitting a multi-byte character.
func CutUTF8(s string, maxBytes int) string {
	if maxBytes <= 0 {
		return ""
	}
	if len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
