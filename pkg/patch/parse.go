package patch

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// patchLineRE matches the last "Patch: <payload>" line a runner.py prints,
// per the container contract in SPEC_FULL.md §6.
var patchLineRE = regexp.MustCompile(`(?m)^Patch:\s*(.+)$`)

// ExtractPatchLine returns the payload of the last line matching
// "^Patch: <payload>$" in output, or false if no such line exists.
func ExtractPatchLine(output string) (string, bool) {
	matches := patchLineRE.FindAllStringSubmatch(output, -1)
	if len(matches) == 0 {
		return "", false
	}
	return strings.TrimSpace(matches[len(matches)-1][1]), true
}

// ParsePayload decodes a patch payload into a Patch. It first tries strict
// JSON (the only format a new runner.py should emit); if that fails it
// falls back to a lenient Python-literal-dict parser for compatibility with
// older miner submissions, per the design note in spec.md §9.
func ParsePayload(payload string) (Patch, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, nil
	}

	var p Patch
	if err := json.Unmarshal([]byte(payload), &p); err == nil {
		return p, nil
	}

	p, err := parsePythonLiteral(payload)
	if err != nil {
		return nil, fmt.Errorf("parsing patch payload: not valid JSON and not a recognizable Python literal: %w", err)
	}
	return p, nil
}

// parsePythonLiteral handles the legacy wire format: a Python list of
// dicts using single-quoted keys/strings and True/False/None, e.g.
// [{'file_name': 'a.py', 'line_number': 3, 'line_content': 'x', 'new_line_content': 'y'}]
func parsePythonLiteral(s string) (Patch, error) {
	normalized := pythonToJSON(s)
	var p Patch
	if err := json.Unmarshal([]byte(normalized), &p); err != nil {
		return nil, err
	}
	return p, nil
}

// pythonToJSON performs a conservative, quote-aware rewrite of Python
// literal syntax into JSON: single-quoted strings become double-quoted,
// and the literal tokens True/False/None become true/false/null. It never
// rewrites the contents of an already-open string.
func pythonToJSON(s string) string {
	var b strings.Builder
	inString := false
	var quote byte
	runes := []byte(s)

	for i := 0; i < len(runes); i++ {
		c := runes[i]

		if inString {
			if c == '\\' && i+1 < len(runes) {
				b.WriteByte(c)
				b.WriteByte(runes[i+1])
				i++
				continue
			}
			if c == quote {
				inString = false
				b.WriteByte('"')
				continue
			}
			if c == '"' {
				b.WriteString(`\"`)
				continue
			}
			b.WriteByte(c)
			continue
		}

		switch c {
		case '\'', '"':
			inString = true
			quote = c
			b.WriteByte('"')
		default:
			if matchKeyword(runes, i, "True") {
				b.WriteString("true")
				i += len("True") - 1
			} else if matchKeyword(runes, i, "False") {
				b.WriteString("false")
				i += len("False") - 1
			} else if matchKeyword(runes, i, "None") {
				b.WriteString("null")
				i += len("None") - 1
			} else {
				b.WriteByte(c)
			}
		}
	}

	return b.String()
}

func matchKeyword(data []byte, pos int, word string) bool {
	if pos+len(word) > len(data) {
		return false
	}
	if string(data[pos:pos+len(word)]) != word {
		return false
	}
	// Don't match inside a larger identifier, e.g. "Nonetheless".
	if pos+len(word) < len(data) {
		next := data[pos+len(word)]
		if isIdentByte(next) {
			return false
		}
	}
	if pos > 0 && isIdentByte(data[pos-1]) {
		return false
	}
	return true
}

func isIdentByte(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}

// Serialize renders the patch as its canonical JSON form, used both as the
// wire round-trip format and as the input to content-hash/dedup computation.
func (p Patch) Serialize() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ParseSerialized is the inverse of Serialize.
func ParseSerialized(s string) (Patch, error) {
	var p Patch
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return nil, err
	}
	return p, nil
}

// ensure line numbers parse as plain integers even when a Python literal
// used e.g. "3" as a string for the line number (seen in very old bundles).
func coerceLineNumber(v any) (int, error) {
	switch t := v.(type) {
	case float64:
		return int(t), nil
	case string:
		return strconv.Atoi(t)
	default:
		return 0, fmt.Errorf("unsupported line_number type %T", v)
	}
}
