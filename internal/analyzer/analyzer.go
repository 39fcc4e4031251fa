package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"kai/internal/logging"
	"kai/internal/model"
	"kai/internal/projectfs"
)

// Thresholds for classifying a file as text_large rather than
// text_analyze, per spec.md §4.7's default.
const (
	DefaultLOCThreshold  = 1500
	DefaultSizeThreshold = 200 * 1024
)

const summarizePromptTemplate = "Summarize the purpose of this file in two or three sentences.\n\nFile: %s\n\n%s"

const overallSummaryPromptTemplate = "Summarize the overall purpose of this project given these per-file summaries:\n\n%s"

// Analyzer builds and refreshes the AnalysisCache.
type Analyzer struct {
	FS            *projectfs.FS
	Model         model.Client
	CacheFilePath string
	LOCThreshold  int
	SizeThreshold int64
}

// New returns an Analyzer with spec.md §4.7 defaults applied where zero.
func New(fs *projectfs.FS, client model.Client, cacheFilePath string) *Analyzer {
	return &Analyzer{
		FS: fs, Model: client, CacheFilePath: cacheFilePath,
		LOCThreshold: DefaultLOCThreshold, SizeThreshold: DefaultSizeThreshold,
	}
}

// Analyze classifies every enumerated file, summarizes text_analyze files
// via the secondary model, computes an overall summary, and writes the
// cache atomically. Per-file summarization failures leave summary nil and
// do not abort the pass.
func (a *Analyzer) Analyze(ctx context.Context, ignoreRules []string) (*Cache, error) {
	logger := logging.Get(logging.CategoryAnalysis)
	files, err := a.FS.Enumerate(ignoreRules)
	if err != nil {
		return nil, err
	}

	cache := NewCache()
	prev, hadPrev, _ := Load(a.FS, a.CacheFilePath)
	var summaries []string

	for _, relPath := range files {
		content, ok, err := a.FS.Read(relPath)
		if err != nil || !ok {
			continue
		}

		entry := a.classify(relPath, content)
		if hadPrev {
			if old, ok := prev.Get(relPath); ok && old.EntryID != "" {
				entry.EntryID = old.EntryID
			}
		}
		if entry.Type == TypeTextAnalyze {
			summary, err := a.summarize(ctx, relPath, content)
			if err != nil {
				logger.Warn("summarization failed for %s: %v", relPath, err)
			} else {
				entry.Summary = &summary
				summaries = append(summaries, fmt.Sprintf("%s: %s", relPath, summary))
			}
		}
		cache.Upsert(entry)
	}

	if len(summaries) > 0 {
		overall, err := a.Model.RawText(ctx, fmt.Sprintf(overallSummaryPromptTemplate, strings.Join(summaries, "\n")), true)
		if err != nil {
			logger.Warn("overall summary failed: %v", err)
		} else {
			cache.OverallSummary = &overall
		}
	}

	if err := a.persist(cache); err != nil {
		return nil, err
	}
	return cache, nil
}

func (a *Analyzer) classify(relPath, content string) CacheEntry {
	size := int64(len(content))
	loc := strings.Count(content, "\n") + 1

	entry := NewCacheEntry(relPath, "", size)
	switch {
	case loc > a.LOCThreshold || size > a.SizeThreshold:
		entry.Type = TypeTextLarge
		locCopy := loc
		entry.LOC = &locCopy
	default:
		entry.Type = TypeTextAnalyze
		locCopy := loc
		entry.LOC = &locCopy
	}
	return entry
}

func (a *Analyzer) summarize(ctx context.Context, relPath, content string) (string, error) {
	prompt := fmt.Sprintf(summarizePromptTemplate, relPath, content)
	return a.Model.RawText(ctx, prompt, true)
}

// persist writes cache to CacheFilePath via ProjectFS's atomic write
// (temp file + rename in the same directory).
func (a *Analyzer) persist(cache *Cache) error {
	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return err
	}
	return a.FS.Write(a.CacheFilePath, string(data))
}

// Load reads a previously persisted cache, or returns (nil, false) if
// absent.
func Load(fs *projectfs.FS, cacheFilePath string) (*Cache, bool, error) {
	content, ok, err := fs.Read(cacheFilePath)
	if err != nil || !ok {
		return nil, false, err
	}
	cache, err := Unmarshal([]byte(content))
	if err != nil {
		return nil, false, err
	}
	return cache, true, nil
}
