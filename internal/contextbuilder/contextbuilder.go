// Package contextbuilder implements Kai's ContextBuilder: three context
// construction modes (full, analysis_cache, dynamic) with token budgeting,
// per spec.md §4.6.
package contextbuilder

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"kai/internal/analyzer"
	"kai/internal/model"
	"kai/internal/projectfs"
	"kai/internal/tokens"
)

// Mode names a context construction strategy.
type Mode string

const (
	ModeFull          Mode = "full"
	ModeAnalysisCache Mode = "analysis_cache"
	ModeDynamic       Mode = "dynamic"
)

// Result is the built context string plus its estimated token count.
type Result struct {
	Text       string
	TokenCount int
}

// Builder constructs context in any of the three modes.
type Builder struct {
	FS      *projectfs.FS
	Model   model.Client
	Counter *tokens.Counter
}

// New returns a Builder over fs and client, using the package's default
// token counter.
func New(fs *projectfs.FS, client model.Client) *Builder {
	return &Builder{FS: fs, Model: client, Counter: tokens.NewCounter()}
}

var collapseBlankLines = regexp.MustCompile(`\n{3,}`)
var trailingHSpace = regexp.MustCompile(`[ \t]+\n`)

// optimize applies the full-mode whitespace optimization: strip trailing
// horizontal whitespace per line, collapse runs of >=3 newlines to 2,
// normalize CRLF to LF, and trim the whole string.
func optimize(content string) string {
	s := strings.ReplaceAll(content, "\r\n", "\n")
	s = trailingHSpace.ReplaceAllString(s, "\n")
	s = collapseBlankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// BuildFull enumerates every project file and emits its optimized content
// as a fenced block. There is no token cap in full mode.
func (b *Builder) BuildFull(ignoreRules []string) (*Result, error) {
	files, err := b.FS.Enumerate(ignoreRules)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("Code Base Context:\n")
	for _, relPath := range files {
		content, ok, err := b.FS.Read(relPath)
		if err != nil || !ok {
			continue
		}
		optimized := optimize(content)
		if optimized == "" {
			continue
		}
		fmt.Fprintf(&sb, "\n---\nFile: %s\n```\n%s\n```\n", relPath, optimized)
	}

	text := sb.String()
	return &Result{Text: text, TokenCount: b.Counter.Count(text)}, nil
}

// BuildAnalysisCache formats the persisted AnalysisCache as a context
// string.
func (b *Builder) BuildAnalysisCache(cache *analyzer.Cache) (*Result, error) {
	var sb strings.Builder
	sb.WriteString("Project Analysis Overview:\n")
	if cache.OverallSummary != nil {
		sb.WriteString(*cache.OverallSummary)
	}
	sb.WriteString("\n\nFile Details:\n")

	for _, e := range cache.Entries {
		sizeKB := float64(e.Size) / 1024.0
		locText := ""
		if e.LOC != nil {
			locText = fmt.Sprintf(", %d LOC", *e.LOC)
		}
		summary := "(Not summarized)"
		if e.Summary != nil {
			summary = *e.Summary
		}
		tag := ""
		if e.Type != analyzer.TypeTextAnalyze {
			tag = fmt.Sprintf(" [%s]", e.Type)
		}
		fmt.Fprintf(&sb, "- %s%s (%.1f KB%s): %s\n", e.FilePath, tag, sizeKB, locText, summary)
	}

	text := sb.String()
	return &Result{Text: text, TokenCount: b.Counter.Count(text)}, nil
}

const relevancePromptTemplate = `Given this file catalog:

%s

Query: %s
%s
Available response budget: %d tokens.

List the relative paths of files relevant to answering the query, one per line.
If none are relevant, respond with exactly: NONE`

func (b *Builder) catalog(cache *analyzer.Cache) string {
	var sb strings.Builder
	for _, e := range cache.Entries {
		summary := ""
		if e.Summary != nil {
			summary = truncate(*e.Summary, 100)
		}
		fmt.Fprintf(&sb, "%s (%s, %d bytes) %s\n", e.FilePath, e.Type, e.Size, summary)
	}
	return sb.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// BuildDynamic selects relevant files via a relevance model call and emits
// them as fenced blocks within maxPromptTokens, falling back to the
// analysis-cache format if no files are selected or the call fails.
func (b *Builder) BuildDynamic(ctx context.Context, cache *analyzer.Cache, query, historySummary string, maxPromptTokens int) (*Result, error) {
	baseEstimate := b.Counter.Count(query) + b.Counter.Count(historySummary) + 500
	budget := maxPromptTokens - baseEstimate
	if budget < 0 {
		budget = 0
	}

	historyLine := ""
	if historySummary != "" {
		historyLine = "History: " + historySummary + "\n"
	}
	prompt := fmt.Sprintf(relevancePromptTemplate, b.catalog(cache), query, historyLine, budget)

	response, err := b.Model.RawText(ctx, prompt, true)
	if err != nil || strings.TrimSpace(response) == "" || strings.TrimSpace(response) == "NONE" {
		return b.BuildAnalysisCache(cache)
	}

	paths := sanitizePaths(response)
	if len(paths) == 0 {
		return b.BuildAnalysisCache(cache)
	}

	var sb strings.Builder
	sb.WriteString("Code Base Context:\n")
	total := b.Counter.Count(sb.String())

	for _, p := range paths {
		content, ok, err := b.FS.Read(p)
		if err != nil || !ok {
			continue
		}
		block := fmt.Sprintf("\n---\nFile: %s\n```\n%s\n```\n", p, optimize(content))
		blockTokens := b.Counter.Count(block)
		if total+blockTokens > maxPromptTokens {
			continue
		}
		sb.WriteString(block)
		total += blockTokens
	}

	text := sb.String()
	if strings.TrimSpace(text) == "Code Base Context:" {
		return b.BuildAnalysisCache(cache)
	}
	return &Result{Text: text, TokenCount: total}, nil
}

// sanitizePaths normalizes separators, rejects absolute or escaping paths,
// and deduplicates while preserving order.
func sanitizePaths(response string) []string {
	seen := map[string]bool{}
	var out []string
	for _, line := range strings.Split(response, "\n") {
		p := strings.TrimSpace(line)
		if p == "" || p == "NONE" {
			continue
		}
		p = strings.ReplaceAll(p, "\\", "/")
		if strings.HasPrefix(p, "/") || strings.HasPrefix(p, "..") {
			continue
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// SelectModeAuto picks a mode per spec.md §4.6's auto-selection rule:
// full if it fits the budget, else analysis_cache, escalating to dynamic
// if even the cache's formatted form would exceed the budget.
func (b *Builder) SelectModeAuto(ignoreRules []string, cache *analyzer.Cache, maxPromptTokens int) (Mode, error) {
	full, err := b.BuildFull(ignoreRules)
	if err != nil {
		return "", err
	}
	if full.TokenCount <= maxPromptTokens {
		return ModeFull, nil
	}
	if cache == nil {
		return ModeAnalysisCache, nil
	}
	cacheResult, err := b.BuildAnalysisCache(cache)
	if err != nil {
		return "", err
	}
	if cacheResult.TokenCount > maxPromptTokens {
		return ModeDynamic, nil
	}
	return ModeAnalysisCache, nil
}
