package tracking

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Default anti-hardcoding thresholds, spec.md §4.3/§8.
const (
	DefaultMaxChars  = 500_000
	DefaultMaxItems  = 1000
	DefaultMaxStrLen = 10000
)

// AllowedExtensions is the fixed set of file extensions a logic bundle may
// contain (spec.md §3, "Logic bundle").
var AllowedExtensions = map[string]bool{
	".py":   true,
	".yaml": true,
	".txt":  true,
	".json": true,
}

// DefaultAllowedImports is the fixed module allow-list referenced in
// spec.md §4.3. Entries with a restricted attribute set are not modeled
// here — the textual prescan can prove an import disallowed but not prove
// an attribute call safe; that depth is delegated to the LLM judge per the
// REDESIGN FLAGS response in SPEC_FULL.md §4.3.
var DefaultAllowedImports = map[string]bool{
	"os": true, "sys": true, "re": true, "json": true, "math": true,
	"time": true, "random": true, "collections": true, "itertools": true,
	"functools": true, "typing": true, "dataclasses": true, "pathlib": true,
	"subprocess": true, "requests": true, "openai": true, "anthropic": true,
}

// Judge is the external LLM-judge collaborator: it reviews the concatenated
// bundle text for hardcoded issue->patch tables, disallowed imports, and
// eval/exec calls that a textual prescan cannot prove absent. Its verdict
// is advisory-but-binding: Allowed=false short-circuits validation.
type Judge interface {
	Review(ctx context.Context, concatenatedText string) (allowed bool, reason string, err error)
}

// Validator runs static validation over a Bundle, grounded on spec.md
// §4.3. A true Python AST walk is not possible from Go; validation here is
// a textual prescan (extension allow-list, byte cap, a line-oriented
// import scanner, and brace/bracket/quote-counting literal-size
// heuristics) followed by delegation to Judge for deeper semantic checks.
type Validator struct {
	Judge         Judge
	MaxChars      int
	MaxItems      int
	MaxStrLen     int
	AllowedImport map[string]bool

	cache map[string]ValidationRecord
}

func NewValidator(judge Judge) *Validator {
	return &Validator{
		Judge:         judge,
		MaxChars:      DefaultMaxChars,
		MaxItems:      DefaultMaxItems,
		MaxStrLen:     DefaultMaxStrLen,
		AllowedImport: DefaultAllowedImports,
		cache:         make(map[string]ValidationRecord),
	}
}

// Validate returns (valid, reason). Results are cached by bundle hash;
// repeat calls with the same content never re-run the LLM judge.
func (v *Validator) Validate(ctx context.Context, b Bundle) (bool, string, error) {
	hash, err := Hash(b)
	if err != nil {
		return false, "", fmt.Errorf("hashing bundle: %w", err)
	}
	if rec, ok := v.cache[hash]; ok {
		return rec.Valid, rec.Reason, nil
	}

	valid, reason, err := v.validateUncached(ctx, b)
	if err != nil {
		return false, "", err
	}

	v.cache[hash] = ValidationRecord{LogicHash: hash, Valid: valid, Reason: reason}
	return valid, reason, nil
}

// Cache returns a snapshot of the validation cache for persistence.
func (v *Validator) Cache() map[string]ValidationRecord {
	out := make(map[string]ValidationRecord, len(v.cache))
	for k, rec := range v.cache {
		out[k] = rec
	}
	return out
}

// LoadCache replaces the validation cache, e.g. after restoring from disk.
func (v *Validator) LoadCache(records map[string]ValidationRecord) {
	v.cache = make(map[string]ValidationRecord, len(records))
	for k, rec := range records {
		v.cache[k] = rec
	}
}

func (v *Validator) validateUncached(ctx context.Context, b Bundle) (bool, string, error) {
	if len(b) == 0 {
		return true, "", nil
	}

	total := 0
	var concat strings.Builder

	for path, text := range b {
		ext := filepath.Ext(path)
		if !AllowedExtensions[ext] {
			return false, fmt.Sprintf("disallowed extension %q on %s", ext, path), nil
		}
		total += len(path) + len(text)
		concat.WriteString(text)
		concat.WriteByte('\n')
	}

	if total > v.MaxChars {
		return false, fmt.Sprintf("bundle size %d exceeds MAX_CHARS %d", total, v.MaxChars), nil
	}

	for path, text := range b {
		if filepath.Ext(path) != ".py" {
			continue
		}
		if reason, bad := v.prescanPython(text); bad {
			return false, fmt.Sprintf("%s: %s", path, reason), nil
		}
	}

	if v.Judge != nil {
		allowed, reason, err := v.Judge.Review(ctx, concat.String())
		if err != nil {
			return false, "", fmt.Errorf("judge review: %w", err)
		}
		if !allowed {
			return false, reason, nil
		}
	}

	return true, "", nil
}

var (
	importLineRE = regexp.MustCompile(`(?m)^\s*(?:from\s+([A-Za-z_][A-Za-z0-9_.]*)\s+import|import\s+([A-Za-z_][A-Za-z0-9_.]*))`)
	evalExecRE   = regexp.MustCompile(`\b(eval|exec)\s*\(`)
)

// prescanPython performs the textual checks spec.md §4.3 describes as an
// AST walk: disallowed imports, eval/exec calls, and oversized literals.
// It cannot prove a program free of these (a sufficiently obfuscated
// submission could hide an eval call behind string concatenation); what it
// catches is the common case, narrowing what needs to reach the judge.
func (v *Validator) prescanPython(src string) (reason string, bad bool) {
	for _, m := range importLineRE.FindAllStringSubmatch(src, -1) {
		mod := m[1]
		if mod == "" {
			mod = m[2]
		}
		root := strings.SplitN(mod, ".", 2)[0]
		if !v.AllowedImport[root] {
			return fmt.Sprintf("disallowed import %q", mod), true
		}
	}

	if evalExecRE.MatchString(src) {
		return "call to eval/exec", true
	}

	if reason, bad := scanLiteralSizes(src, v.MaxItems, v.MaxStrLen); bad {
		return reason, true
	}

	return "", false
}

// scanLiteralSizes heuristically measures Python literal collections and
// string literals by counting top-level commas within matching
// brace/bracket pairs and quote-delimited runs, without a real parser.
func scanLiteralSizes(src string, maxItems, maxStrLen int) (string, bool) {
	runes := []rune(src)
	n := len(runes)

	for i := 0; i < n; i++ {
		switch runes[i] {
		case '[', '{', '(':
			open := runes[i]
			close := matchingClose(open)
			depth := 1
			items := 1
			j := i + 1
			for j < n && depth > 0 {
				switch runes[j] {
				case open:
					depth++
				case close:
					depth--
				case ',':
					if depth == 1 {
						items++
					}
				case '\'', '"':
					j = skipStringLiteral(runes, j, maxStrLen)
					if reasonLen(runes, j) {
						return fmt.Sprintf("string literal exceeds MAX_STRLEN %d", maxStrLen), true
					}
				}
				j++
			}
			if items > maxItems && depth == 0 {
				return fmt.Sprintf("literal collection has %d elements, exceeds MAX_ITEMS %d", items, maxItems), true
			}
		case '\'', '"':
			end := skipStringLiteral(runes, i, maxStrLen)
			if reasonLen(runes, end) {
				return fmt.Sprintf("string literal exceeds MAX_STRLEN %d", maxStrLen), true
			}
			i = end
		}
	}

	return "", false
}

// reasonLen is a sentinel marker: skipStringLiteral returns an index past
// the buffer end when the literal it scanned exceeded maxStrLen.
func reasonLen(runes []rune, end int) bool {
	return end > len(runes)
}

func matchingClose(open rune) rune {
	switch open {
	case '[':
		return ']'
	case '{':
		return '}'
	case '(':
		return ')'
	}
	return 0
}

// skipStringLiteral scans a quoted string literal starting at i (runes[i]
// is the opening quote) and returns the index of its closing quote, or
// len(runes)+1 (signalling overflow) if its content exceeds maxStrLen
// before a closing quote is found.
func skipStringLiteral(runes []rune, i, maxStrLen int) int {
	quote := runes[i]
	length := 0
	j := i + 1
	for j < len(runes) {
		if runes[j] == '\\' {
			j += 2
			length++
			continue
		}
		if runes[j] == quote {
			return j
		}
		length++
		if length > maxStrLen {
			return len(runes) + 1
		}
		j++
	}
	return j
}
