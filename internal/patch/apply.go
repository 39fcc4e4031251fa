package patch

import (
	"regexp"
	"strings"
)

// DiffFailureInfo records a patch application failure for
// .kai/logs/diff_failures.jsonl and for DiffRepairLoop's in-memory
// last_failure slot.
type DiffFailureInfo struct {
	File        string `json:"file"`
	Diff        string `json:"diff"`
	FileContent string `json:"fileContent"`
	Error       string `json:"error"`
}

// ApplyResult is the outcome of attempting to apply a patch to a file.
type ApplyResult struct {
	Content  string
	Applied  bool
	Fuzzy    bool
	IsDelete bool
	IsCreate bool
	Failure  *DiffFailureInfo
}

// Apply attempts to apply diffText to currentContent for filePath: first
// strictly, then fuzzily (whitespace-insensitive), per spec.md §4.4. On
// failure of both, the returned ApplyResult carries a DiffFailureInfo; the
// caller is responsible for persisting it to diff_failures.jsonl.
func Apply(filePath, currentContent, diffText string) *ApplyResult {
	p, err := Parse(diffText)
	if err != nil {
		return &ApplyResult{Failure: &DiffFailureInfo{
			File: filePath, Diff: diffText, FileContent: currentContent, Error: err.Error(),
		}}
	}

	if p.Action == ActionDelete {
		return &ApplyResult{Applied: true, IsDelete: true, Content: ""}
	}

	base := currentContent
	if p.Action == ActionCreate {
		base = ""
	}

	if content, ok := strictApply(base, p.Hunks); ok {
		if p.Action != ActionCreate && content == "" && base != "" {
			return &ApplyResult{Failure: &DiffFailureInfo{
				File: filePath, Diff: diffText, FileContent: currentContent,
				Error: "patch would blank a modified file",
			}}
		}
		return &ApplyResult{Applied: true, IsCreate: p.Action == ActionCreate, Content: content}
	}

	if content, ok := fuzzyApply(base, p.Hunks); ok {
		if p.Action != ActionCreate && content == "" && base != "" {
			return &ApplyResult{Failure: &DiffFailureInfo{
				File: filePath, Diff: diffText, FileContent: currentContent,
				Error: "patch would blank a modified file",
			}}
		}
		return &ApplyResult{Applied: true, Fuzzy: true, IsCreate: p.Action == ActionCreate, Content: content}
	}

	return &ApplyResult{Failure: &DiffFailureInfo{
		File: filePath, Diff: diffText, FileContent: currentContent,
		Error: "hunk context did not match file content",
	}}
}

// strictApply matches hunk context/removed lines byte-for-byte.
func strictApply(content string, hunks []Hunk) (string, bool) {
	return applyHunks(content, hunks, func(a, b string) bool { return a == b }, false)
}

var horizontalWhitespace = regexp.MustCompile(`[ \t]+`)

func normalizeWhitespace(s string) string {
	return strings.TrimSpace(horizontalWhitespace.ReplaceAllString(s, " "))
}

// fuzzyApply matches hunk context/removed lines after collapsing runs of
// horizontal whitespace and trimming ends, but still re-inserts added
// lines verbatim from the hunk (never normalized), per spec.md §4.4.
func fuzzyApply(content string, hunks []Hunk) (string, bool) {
	return applyHunks(content, hunks, func(a, b string) bool {
		return normalizeWhitespace(a) == normalizeWhitespace(b)
	}, true)
}

// applyHunks walks hunks top-to-bottom against content's lines, locating
// each hunk's anchor (its leading context/removed run) via the given
// equality function, then splicing in the hunk's result.
func applyHunks(content string, hunks []Hunk, eq func(a, b string) bool, fuzzy bool) (string, bool) {
	lines := splitLines(content)
	cursor := 0

	for _, h := range hunks {
		pre := preContextAndRemoved(h)
		idx := locate(lines, pre, cursor, eq, h.OldStart)
		if idx < 0 {
			return "", false
		}

		var result []Line = make([]Line, 0, len(lines))
		result = append(result, toLines(lines[:idx])...)

		pos := idx
		for _, hl := range h.Lines {
			switch hl.Type {
			case LineContext, LineRemoved:
				if pos >= len(lines) || !eq(lines[pos], hl.Content) {
					return "", false
				}
				if hl.Type == LineContext {
					result = append(result, Line{Content: lines[pos]})
				}
				pos++
			case LineAdded:
				result = append(result, Line{Content: hl.Content})
			}
		}

		result = append(result, toLines(lines[pos:])...)
		lines = linesOf(result)
		cursor = idx + countAdded(h)
	}

	out := strings.Join(lines, "\n")
	if out != "" && (content == "" || strings.HasSuffix(content, "\n")) && !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	return out, true
}

func countAdded(h Hunk) int {
	n := 0
	for _, l := range h.Lines {
		if l.Type != LineRemoved {
			n++
		}
	}
	return n
}

func preContextAndRemoved(h Hunk) []string {
	var out []string
	for _, l := range h.Lines {
		if l.Type != LineAdded {
			out = append(out, l.Content)
		}
	}
	return out
}

// locate finds the index in lines where the sequence seq (context+removed
// lines of a hunk, in order) begins, preferring the position implied by
// OldStart but falling back to a full scan.
func locate(lines []string, seq []string, minIdx int, eq func(a, b string) bool, hintStart int) int {
	if len(seq) == 0 {
		if hintStart-1 >= minIdx && hintStart-1 <= len(lines) {
			return hintStart - 1
		}
		return minIdx
	}

	hint := hintStart - 1
	if hint >= minIdx && matchesAt(lines, seq, hint, eq) {
		return hint
	}
	for i := minIdx; i <= len(lines)-len(seq); i++ {
		if matchesAt(lines, seq, i, eq) {
			return i
		}
	}
	return -1
}

func matchesAt(lines []string, seq []string, at int, eq func(a, b string) bool) bool {
	if at < 0 || at+len(seq) > len(lines) {
		return false
	}
	for i, s := range seq {
		if !eq(lines[at+i], s) {
			return false
		}
	}
	return true
}

func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	trimmed := strings.TrimSuffix(content, "\n")
	return strings.Split(trimmed, "\n")
}

func toLines(ss []string) []Line {
	out := make([]Line, len(ss))
	for i, s := range ss {
		out[i] = Line{Content: s}
	}
	return out
}

func linesOf(ls []Line) []string {
	out := make([]string, len(ls))
	for i, l := range ls {
		out[i] = l.Content
	}
	return out
}
