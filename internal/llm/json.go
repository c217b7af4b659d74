package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoJSON is returned when a completion carries no JSON value
var ErrNoJSON = errors.New("no JSON value in completion")

// ExtractJSON returns the first balanced JSON object or array in text.
// Models often wrap JSON in prose or markdown fences.
func ExtractJSON(text string) (string, error) {
	start := strings.IndexAny(text, "{[")
	for start >= 0 {
		if end := matchClose(text, start); end > start {
			candidate := text[start : end+1]
			if json.Valid([]byte(candidate)) {
				return candidate, nil
			}
		}
		next := strings.IndexAny(text[start+1:], "{[")
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", ErrNoJSON
}

// DecodeJSON extracts and unmarshals the first JSON value in text into v
func DecodeJSON(text string, v any) error {
	raw, err := ExtractJSON(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("decode completion: %w", err)
	}
	return nil
}

// matchClose returns the index of the bracket closing text[start], or -1
func matchClose(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
