// Package jsonrepair recovers structured data from raw model output. Models
// wrap JSON in markdown fences, add prose, emit trailing commas or bare keys,
// and get cut off mid-array by stream limits; each defect has its own repair
// pass so the passes can be tested against fixtures independently.
package jsonrepair

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// Failure reasons, distinguished so callers can report them precisely.
const (
	ReasonNoStructure = "no_structure" // no {...} found at all
	ReasonUnparseable = "unparseable"  // structure found but not parseable after repair
	ReasonMissingList = "missing_list" // required list field absent
	ReasonWrongShape  = "wrong_shape"  // required list field is not an array
	ReasonEmptyList   = "empty_list"   // required list field is an empty array
)

// ParseError is the terminal failure of a recovery attempt. Preview carries a
// bounded slice of the raw content for diagnostics.
type ParseError struct {
	Reason  string
	Detail  string
	Preview string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("json recovery failed (%s): %s", e.Reason, e.Detail)
}

const previewLimit = 280

func preview(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > previewLimit {
		return s[:previewLimit] + "…"
	}
	return s
}

// Recover runs the full repair pipeline on raw model text and returns the
// parsed object plus the elements of the required list field. It fails only
// when no recoverable structure exists or the list field is unusable.
func Recover(raw, listField string) (map[string]any, []any, error) {
	s := StripFences(raw)

	s, ok := ExtractObject(s)
	if !ok {
		return nil, nil, &ParseError{
			Reason:  ReasonNoStructure,
			Detail:  "no JSON object found in model output",
			Preview: preview(raw),
		}
	}

	s = FixTrailingCommas(s)
	s = QuoteBareKeys(s)

	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		// Likely a stream truncation: trim the record array back to its last
		// complete element and re-close the enclosing structure.
		trimmed := TrimTruncatedArray(s, listField)
		if err2 := json.Unmarshal([]byte(trimmed), &obj); err2 != nil {
			return nil, nil, &ParseError{
				Reason:  ReasonUnparseable,
				Detail:  err.Error(),
				Preview: preview(raw),
			}
		}
	}

	listVal, present := obj[listField]
	if !present {
		return nil, nil, &ParseError{
			Reason:  ReasonMissingList,
			Detail:  fmt.Sprintf("required field %q is missing", listField),
			Preview: preview(raw),
		}
	}
	list, isList := listVal.([]any)
	if !isList {
		return nil, nil, &ParseError{
			Reason:  ReasonWrongShape,
			Detail:  fmt.Sprintf("field %q is not a list", listField),
			Preview: preview(raw),
		}
	}
	if len(list) == 0 {
		return nil, nil, &ParseError{
			Reason:  ReasonEmptyList,
			Detail:  fmt.Sprintf("field %q is empty", listField),
			Preview: preview(raw),
		}
	}
	return obj, list, nil
}

// StripFences removes a wrapping markdown code fence (``` or ```json) if the
// text carries one.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if idx := strings.IndexByte(s, '\n'); idx != -1 {
		s = s[idx+1:]
	} else {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// ExtractObject slices from the first '{' to the last '}', discarding any
// prose the model added around the object. Reports false when no pair exists.
// The slice may still be internally truncated; later passes handle that.
func ExtractObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return "", false
	}
	end := strings.LastIndexByte(s, '}')
	if end == -1 || end < start {
		// An opening brace with no closer at all is still recoverable by the
		// truncation pass, so keep everything from the brace on.
		return s[start:], true
	}
	return s[start : end+1], true
}

// FixTrailingCommas drops commas that directly precede a closing bracket or
// brace. String-aware: commas inside string values are untouched.
func FixTrailingCommas(s string) string {
	var out strings.Builder
	out.Grow(len(s))

	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			out.WriteByte(c)
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
			out.WriteByte(c)
		case ',':
			// Look ahead past whitespace; drop the comma if a closer follows.
			j := i + 1
			for j < len(s) && isSpace(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
			out.WriteByte(c)
		default:
			out.WriteByte(c)
		}
	}
	return out.String()
}

// QuoteBareKeys wraps unquoted object keys in double quotes. A bare key is an
// identifier-shaped token whose next significant character is ':'.
func QuoteBareKeys(s string) string {
	var out strings.Builder
	out.Grow(len(s) + 16)

	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			out.WriteByte(c)
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
			out.WriteByte(c)
			continue
		}
		if isIdentStart(c) {
			j := i
			for j < len(s) && isIdentPart(s[j]) {
				j++
			}
			word := s[i:j]
			k := j
			for k < len(s) && isSpace(s[k]) {
				k++
			}
			if k < len(s) && s[k] == ':' && !isLiteral(word) {
				out.WriteByte('"')
				out.WriteString(word)
				out.WriteByte('"')
				i = j - 1
				continue
			}
			out.WriteString(word)
			i = j - 1
			continue
		}
		out.WriteByte(c)
	}
	return out.String()
}

// isLiteral guards against quoting JSON keywords that can legally precede
// nothing (they never precede ':' in valid JSON, but stay conservative).
func isLiteral(w string) bool {
	return w == "true" || w == "false" || w == "null"
}

// TrimTruncatedArray repairs a record array cut off mid-element. It locates
// the array value of field, scans it with a quote/escape/depth-aware cursor,
// and if the input ends before the array closes, cuts back to the end of the
// last structurally complete element and re-closes the array and enclosing
// object. Input that parses as-is is returned unchanged.
func TrimTruncatedArray(s, field string) string {
	arrStart := findArrayStart(s, field)
	if arrStart == -1 {
		return s
	}

	depth := 1 // depth relative to the record array's '['
	inString := false
	escaped := false
	lastComplete := -1 // index just past the '}' closing the last complete element

	i := arrStart + 1
	for ; i < len(s); i++ {
		c := s[i]
		if inString {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}':
			depth--
			if depth == 1 {
				lastComplete = i + 1
			}
		case ']':
			depth--
			if depth == 0 {
				// Array closed normally: nothing to repair here.
				return s
			}
		}
	}

	// Ran out of input with the array still open: truncated mid-element (or
	// between elements). Rebuild from the last complete element.
	if lastComplete == -1 {
		// No complete element survived; emit an empty array so the caller can
		// report "empty result" rather than "no structure".
		return s[:arrStart+1] + "]}"
	}
	return strings.TrimRight(s[:lastComplete], ", \t\r\n") + "]}"
}

// findArrayStart returns the index of the '[' opening the array value of
// field, or -1. Matches the quoted field name outside of other strings.
func findArrayStart(s, field string) int {
	needle := `"` + field + `"`
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		if c == '"' {
			if strings.HasPrefix(s[i:], needle) {
				j := i + len(needle)
				for j < len(s) && isSpace(s[j]) {
					j++
				}
				if j < len(s) && s[j] == ':' {
					j++
					for j < len(s) && isSpace(s[j]) {
						j++
					}
					if j < len(s) && s[j] == '[' {
						return j
					}
				}
				// Not followed by an array value: could be a string value that
				// happens to equal the field name. Keep scanning.
			}
			inString = true
		}
	}
	return -1
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isIdentStart(c byte) bool {
	return c == '_' || unicode.IsLetter(rune(c))
}

func isIdentPart(c byte) bool {
	return c == '_' || unicode.IsLetter(rune(c)) || unicode.IsDigit(rune(c))
}
