// Package patch implements the validator's line-level patch representation:
// an ordered list of Edits against a repository snapshot, and the conversion
// of that representation into the textual unified diff the grading harness
// expects.
package patch

import (
	"fmt"
	"strings"

	"github.com/aymanbagabas/go-udiff"
)

// Edit describes a single line replacement against a file snapshot.
// LineNumber is 0-indexed, matching the wire format emitted by a logic's
// runner.py ("Patch: [...]").
type Edit struct {
	FileName        string `json:"file_name"`
	LineNumber      int    `json:"line_number"`
	LineContent     string `json:"line_content"`
	NewLineContent  string `json:"new_line_content"`
}

// Patch is an ordered sequence of Edits. An empty Patch is the identity:
// applying it changes nothing.
type Patch []Edit

// IsEmpty reports whether the patch has no edits.
func (p Patch) IsEmpty() bool {
	return len(p) == 0
}

// FileNames returns the distinct file names touched by the patch, in the
// order they first appear.
func (p Patch) FileNames() []string {
	seen := make(map[string]struct{}, len(p))
	var names []string
	for _, e := range p {
		if _, ok := seen[e.FileName]; ok {
			continue
		}
		seen[e.FileName] = struct{}{}
		names = append(names, e.FileName)
	}
	return names
}

// editsForFile returns the subset of edits touching the given file, in
// patch order.
func (p Patch) editsForFile(file string) []Edit {
	var out []Edit
	for _, e := range p {
		if e.FileName == file {
			out = append(out, e)
		}
	}
	return out
}

// ApplyEdits applies every edit touching file to content (the file's current
// line-split snapshot) and returns the resulting lines. The target slice
// auto-extends with empty strings if an edit addresses a line past the
// current end, matching the original runner's lenient semantics.
func (p Patch) ApplyEdits(file string, content []string) []string {
	edits := p.editsForFile(file)
	if len(edits) == 0 {
		return content
	}

	result := make([]string, len(content))
	copy(result, content)

	for _, e := range edits {
		if e.LineNumber < 0 {
			continue
		}
		for len(result) <= e.LineNumber {
			result = append(result, "")
		}
		result[e.LineNumber] = e.NewLineContent
	}

	return result
}

// ChangedFile is the old/new content pair for one file touched by a Patch,
// ready to be rendered as a unified diff.
type ChangedFile struct {
	File       string
	OldContent string
	NewContent string
}

// ChangedFiles converts a Patch into one ChangedFile per touched file,
// reading old content from snapshot (keyed by relative file path).
func (p Patch) ChangedFiles(snapshot map[string]string) []ChangedFile {
	var out []ChangedFile
	for _, file := range p.FileNames() {
		old := snapshot[file]
		oldLines := splitLines(old)
		newLines := p.ApplyEdits(file, oldLines)
		out = append(out, ChangedFile{
			File:       file,
			OldContent: old,
			NewContent: joinLines(newLines, old),
		})
	}
	return out
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	trimmed := strings.TrimSuffix(s, "\n")
	return strings.Split(trimmed, "\n")
}

// joinLines re-joins lines, preserving the trailing-newline convention of
// the original content: if the original ended in "\n" (or was empty), so
// does the result.
func joinLines(lines []string, original string) string {
	joined := strings.Join(lines, "\n")
	if original == "" || strings.HasSuffix(original, "\n") {
		return joined + "\n"
	}
	return joined
}

// UnifiedDiff renders the old->new change for a single file as a textual
// unified diff with the given number of context lines, using go-udiff's
// line-oriented differ. It returns "" if there is no difference.
func UnifiedDiff(file, oldContent, newContent string, contextLines int) (string, error) {
	if oldContent == newContent {
		return "", nil
	}

	edits := udiff.Strings(oldContent, newContent)
	if len(edits) == 0 {
		return "", nil
	}

	unified, err := udiff.ToUnifiedDiff(file, file, oldContent, edits, contextLines)
	if err != nil {
		return "", fmt.Errorf("computing unified diff for %s: %w", file, err)
	}
	if len(unified.Hunks) == 0 {
		return "", nil
	}

	return formatGitStyleDiff(file, unified.Hunks), nil
}

// formatGitStyleDiff renders hunks the way `git apply` expects: a/ b/
// file headers followed by one or more @@ hunks. go-udiff's own String()
// omits the a/ b/ prefixes that git's three apply strategies assume, so
// the headers are built here rather than relying on the library's default
// formatting.
func formatGitStyleDiff(file string, hunks []*udiff.Hunk) string {
	var b strings.Builder
	fmt.Fprintf(&b, "--- a/%s\n", file)
	fmt.Fprintf(&b, "+++ b/%s\n", file)

	for _, h := range hunks {
		fromCount, toCount := 0, 0
		for _, line := range h.Lines {
			switch line.Kind {
			case udiff.Equal:
				fromCount++
				toCount++
			case udiff.Delete:
				fromCount++
			case udiff.Insert:
				toCount++
			}
		}

		// h.FromLine/h.ToLine are already 1-based; git's convention only
		// shifts the start back one for a pure insert/delete hunk (count
		// 0), where the number names the line *before* the change instead
		// of the first changed line.
		fromStart, toStart := h.FromLine, h.ToLine
		if fromCount == 0 {
			fromStart--
		}
		if toCount == 0 {
			toStart--
		}

		fmt.Fprintf(&b, "@@ -%d,%d +%d,%d @@\n", fromStart, fromCount, toStart, toCount)

		for _, line := range h.Lines {
			content := line.Content
			trailingNL := strings.HasSuffix(content, "\n")
			content = strings.TrimSuffix(content, "\n")

			switch line.Kind {
			case udiff.Equal:
				b.WriteString(" " + content + "\n")
			case udiff.Delete:
				b.WriteString("-" + content)
				writeNoNewlineMarker(&b, trailingNL)
			case udiff.Insert:
				b.WriteString("+" + content)
				writeNoNewlineMarker(&b, trailingNL)
			}
		}
	}

	return b.String()
}

func writeNoNewlineMarker(b *strings.Builder, hadNewline bool) {
	if hadNewline {
		b.WriteString("\n")
		return
	}
	b.WriteString("\n\\ No newline at end of file\n")
}
