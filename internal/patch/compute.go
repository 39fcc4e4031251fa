// Package patch implements Kai's PatchEngine: computing diffs between two
// content strings, rendering them as unified-diff text, parsing external
// unified-diff text (including fenced ```diff blocks), and applying it
// strictly then fuzzily against a file's current bytes, with failure
// capture on the corpus's atomic-append idiom.
//
// The diff-computation half is adapted from the corpus's own diff engine,
// which wraps sergi/go-diff's diffmatchpatch to produce FileDiff/Hunk
// values; this package extends it with a renderer, a parser, and an
// applier for diff text the corpus's version never had to consume.
package patch

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// LineType classifies a single line within a Hunk.
type LineType int

const (
	LineContext LineType = iota
	LineAdded
	LineRemoved
)

// Line is one line of a Hunk, tagged with its role.
type Line struct {
	Content string
	Type    LineType
}

// Hunk is one contiguous region of change within a unified diff.
type Hunk struct {
	OldStart int
	OldCount int
	NewStart int
	NewCount int
	Lines    []Line
}

// FileDiff is the full set of changes to one file.
type FileDiff struct {
	OldPath  string
	NewPath  string
	Hunks    []Hunk
	IsNew    bool
	IsDelete bool
}

// Engine computes and caches diffs between content strings.
type Engine struct {
	dmp   *diffmatchpatch.DiffMatchPatch
	cache sync.Map
}

type cacheKey struct {
	oldHash uint64
	newHash uint64
}

// NewEngine returns a diff engine configured for exact (non-timeboxed) diffs.
func NewEngine() *Engine {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0
	return &Engine{dmp: dmp}
}

// DefaultEngine is shared by package-level convenience functions.
var DefaultEngine = NewEngine()

// ComputeDiff produces a FileDiff between oldContent and newContent. Render
// turns the result into unified-diff text that ProjectFS.ApplyDiff can
// consume, which is how CoverageLoop turns a model's rewritten file content
// into a diff and routes it through ApplyDiff (falling back to
// DiffRepairLoop on failure) instead of overwriting the file outright.
func (e *Engine) ComputeDiff(oldPath, newPath, oldContent, newContent string) *FileDiff {
	fileDiff := &FileDiff{OldPath: oldPath, NewPath: newPath}
	if oldContent == "" {
		fileDiff.IsNew = true
	}
	if newContent == "" {
		fileDiff.IsDelete = true
	}

	key := cacheKey{hash(oldContent), hash(newContent)}
	if cached, ok := e.cache.Load(key); ok {
		if cd, ok := cached.(*FileDiff); ok {
			result := *cd
			result.OldPath = oldPath
			result.NewPath = newPath
			return &result
		}
	}

	a, b, lineArray := e.dmp.DiffLinesToChars(oldContent, newContent)
	diffs := e.dmp.DiffMain(a, b, false)
	diffs = e.dmp.DiffCleanupSemantic(diffs)
	diffs = e.dmp.DiffCharsToLines(diffs, lineArray)

	fileDiff.Hunks = e.convertToHunks(diffs, 3)
	e.cache.Store(key, fileDiff)
	return fileDiff
}

// ComputeDiff is a convenience wrapping DefaultEngine.
func ComputeDiff(oldPath, newPath, oldContent, newContent string) *FileDiff {
	return DefaultEngine.ComputeDiff(oldPath, newPath, oldContent, newContent)
}

// Render serializes a FileDiff as unified-diff text in the form Parse
// accepts: "--- "/"+++ " headers (with a/, b/, or /dev/null per IsNew/
// IsDelete) followed by each hunk's "@@ -o,n +o,n @@" header and its
// " "/"+"/"-"-prefixed lines.
func Render(fd *FileDiff) string {
	oldHeader := "a/" + fd.OldPath
	if fd.IsNew {
		oldHeader = "/dev/null"
	}
	newHeader := "b/" + fd.NewPath
	if fd.IsDelete {
		newHeader = "/dev/null"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "--- %s\n+++ %s\n", oldHeader, newHeader)
	for _, h := range fd.Hunks {
		fmt.Fprintf(&sb, "@@ -%d,%d +%d,%d @@\n", h.OldStart, h.OldCount, h.NewStart, h.NewCount)
		for _, l := range h.Lines {
			prefix := " "
			switch l.Type {
			case LineAdded:
				prefix = "+"
			case LineRemoved:
				prefix = "-"
			}
			sb.WriteString(prefix)
			sb.WriteString(l.Content)
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

type operation struct {
	typ     LineType
	oldLine int
	newLine int
	content string
}

func (e *Engine) convertToHunks(diffs []diffmatchpatch.Diff, contextLines int) []Hunk {
	ops := e.diffsToOperations(diffs)
	if len(ops) == 0 {
		return nil
	}
	return e.groupIntoHunks(ops, contextLines)
}

func (e *Engine) diffsToOperations(diffs []diffmatchpatch.Diff) []operation {
	operations := make([]operation, 0)
	oldLine, newLine := 0, 0

	for _, d := range diffs {
		lines := strings.Split(d.Text, "\n")
		if len(lines) > 0 && lines[len(lines)-1] == "" {
			lines = lines[:len(lines)-1]
		}
		for _, line := range lines {
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				operations = append(operations, operation{LineContext, oldLine, newLine, line})
				oldLine++
				newLine++
			case diffmatchpatch.DiffDelete:
				operations = append(operations, operation{LineRemoved, oldLine, -1, line})
				oldLine++
			case diffmatchpatch.DiffInsert:
				operations = append(operations, operation{LineAdded, -1, newLine, line})
				newLine++
			}
		}
	}
	return operations
}

func (e *Engine) groupIntoHunks(ops []operation, contextLines int) []Hunk {
	hunks := make([]Hunk, 0)
	var current *Hunk
	lastChangeIdx := -1

	for i, op := range ops {
		isChange := op.typ != LineContext
		if isChange && current == nil {
			current = &Hunk{}
			start := i - contextLines
			if start < 0 {
				start = 0
			}
			for j := start; j < i; j++ {
				if ops[j].typ == LineContext {
					current.Lines = append(current.Lines, Line{ops[j].content, LineContext})
				}
			}
			current.OldStart = ops[start].oldLine + 1
			current.NewStart = ops[start].newLine + 1
			if ops[start].oldLine < 0 {
				current.OldStart = 0
			}
			if ops[start].newLine < 0 {
				current.NewStart = 0
			}
		}
		if isChange {
			lastChangeIdx = i
		}

		if current != nil {
			current.Lines = append(current.Lines, Line{op.content, op.typ})
			if op.typ == LineContext && i-lastChangeIdx > contextLines {
				trimTo := len(current.Lines) - (i - lastChangeIdx - contextLines)
				if trimTo > 0 && trimTo < len(current.Lines) {
					current.Lines = current.Lines[:trimTo]
				}
				computeHunkCounts(current)
				hunks = append(hunks, *current)
				current = nil
			}
		}
	}
	if current != nil && len(current.Lines) > 0 {
		computeHunkCounts(current)
		hunks = append(hunks, *current)
	}
	return hunks
}

func computeHunkCounts(h *Hunk) {
	for _, line := range h.Lines {
		if line.Type == LineRemoved || line.Type == LineContext {
			h.OldCount++
		}
		if line.Type == LineAdded || line.Type == LineContext {
			h.NewCount++
		}
	}
}

func hash(s string) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)
	h := uint64(offset64)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime64
	}
	return h
}
