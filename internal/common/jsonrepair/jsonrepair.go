// internal/common/jsonrepair/jsonrepair.go

// Package jsonrepair extracts and heals JSON embedded in raw model output.
// Inference gateways truncate mid-array when the token budget runs out;
// without repair an entire review pass would be discarded over one
// incomplete trailing element.
package jsonrepair

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNotRecoverable is returned by Decode when neither the extracted nor
// the repaired text parses as JSON.
var ErrNotRecoverable = errors.New("RESPONSE_PARSE_FAILED")

var (
	reFencedBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(.+?)\\s*```")

	// Trailing-truncation shapes, all anchored at end of text.
	reDanglingObject    = regexp.MustCompile(`,\s*\{[^{}]*$`)
	reDanglingKeyString = regexp.MustCompile(`,\s*"(?:[^"\\]|\\.)*"\s*:\s*"(?:[^"\\]|\\.)*"\s*$`)
	reDanglingString    = regexp.MustCompile(`,\s*"(?:[^"\\]|\\.)*"\s*$`)
	reDanglingKey       = regexp.MustCompile(`,?\s*"(?:[^"\\]|\\.)*"\s*:\s*$`)
)

type scanState struct {
	inString bool
	stack    []byte // unmatched '{' and '[' openers, in order
}

// scan walks text once, tracking quoted-string state (honoring backslash
// escapes) and the unmatched openers outside of strings.
func scan(text string) scanState {
	var st scanState
	escaped := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if st.inString {
			if escaped {
				escaped = false
				continue
			}
			switch c {
			case '\\':
				escaped = true
			case '"':
				st.inString = false
			}
			continue
		}
		switch c {
		case '"':
			st.inString = true
		case '{', '[':
			st.stack = append(st.stack, c)
		case '}':
			if n := len(st.stack); n > 0 && st.stack[n-1] == '{' {
				st.stack = st.stack[:n-1]
			}
		case ']':
			if n := len(st.stack); n > 0 && st.stack[n-1] == '[' {
				st.stack = st.stack[:n-1]
			}
		}
	}
	return st
}

// Extract pulls the JSON payload out of mixed model output: a fenced code
// block if present, else the first balanced {...} span, else the raw text
// unchanged.
func Extract(text string) string {
	if m := reFencedBlock.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if span := balancedSpan(text); span != "" {
		return span
	}
	return text
}

// balancedSpan returns the first {...} span whose braces balance, or ""
// when the text never closes the object (truncated output).
func balancedSpan(text string) string {
	start := strings.IndexByte(text, '{')
	if start == -1 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			if escaped {
				escaped = false
				continue
			}
			switch c {
			case '\\':
				escaped = true
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

// Repair heals text truncated mid-generation. It always returns a string;
// the caller must still attempt the parse. Already-valid JSON passes
// through unchanged.
func Repair(text string) string {
	s := text
	st := scan(s)

	// 1. Close an open string so the trim patterns below can see it.
	closedString := st.inString
	if closedString {
		s += `"`
	}

	// 2. Trim dangling fragments left by truncation. The string-valued
	// shapes only apply when step 1 actually closed a string; otherwise a
	// complete trailing element would be thrown away with it.
	switch {
	case reDanglingObject.MatchString(s):
		s = s[:reDanglingObject.FindStringIndex(s)[0]]
	case closedString && reDanglingKeyString.MatchString(s):
		s = s[:reDanglingKeyString.FindStringIndex(s)[0]]
	case closedString && reDanglingString.MatchString(s):
		s = s[:reDanglingString.FindStringIndex(s)[0]]
	case reDanglingKey.MatchString(s):
		s = s[:reDanglingKey.FindStringIndex(s)[0]]
	}
	s = strings.TrimRight(s, " \t\r\n")
	s = strings.TrimSuffix(s, ",")

	// 3. Re-scan and close whatever is still open, innermost first.
	st = scan(s)
	var closers strings.Builder
	for i := len(st.stack) - 1; i >= 0; i-- {
		if st.stack[i] == '{' {
			closers.WriteByte('}')
		} else {
			closers.WriteByte(']')
		}
	}
	return s + closers.String()
}

// Decode extracts JSON from text and unmarshals it into v, falling back to
// a repair pass when the first parse fails. Repair improves the odds, it
// does not guarantee validity: a second failure reports ErrNotRecoverable.
func Decode(text string, v interface{}) error {
	_, err := DecodeRepaired(text, v)
	return err
}

// DecodeRepaired is Decode plus a flag telling the caller whether the
// repair fallback was needed to produce the parsed value.
func DecodeRepaired(text string, v interface{}) (bool, error) {
	candidate := Extract(text)
	firstErr := json.Unmarshal([]byte(candidate), v)
	if firstErr == nil {
		return false, nil
	}

	// Truncated output has no balanced span, so Extract may have passed
	// prose through. Cut to the first opener before repairing.
	base := candidate
	if idx := strings.IndexAny(base, "{["); idx > 0 {
		base = base[idx:]
	}
	repaired := Repair(base)
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return true, fmt.Errorf("%w: %v (after repair: %v)", ErrNotRecoverable, firstErr, err)
	}
	return true, nil
}
