// Package projectfs implements Kai's ProjectFS: project file enumeration
// respecting ignore rules, safe read/write, text/binary sniffing, JSONL
// append, and the PatchEngine apply_diff delegate.
//
// Enumeration is adapted from the corpus's own concurrency-
// limited filesystem scanner (a buffered-channel semaphore over
// filepath.Walk); atomic write is adapted from the corpus's file-transaction
// backup/restore idiom, narrowed to a "write to temp then rename in same
// directory" contract.
package projectfs

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"kai/internal/kerrors"
	"kai/internal/patch"

	"github.com/bmatcuk/doublestar/v4"
)

// builtinExcludeDirs are directories always skipped regardless of
// ignore rules: .git, and .kai, which at default settings contains the
// conversation logs, the analysis cache file and the diff-failure log.
var builtinExcludeDirs = []string{".git", ".kai"}

const sniffWindowBytes = 8192

// FS is Kai's project filesystem abstraction, rooted at ProjectRoot.
type FS struct {
	ProjectRoot string
}

// New returns an FS rooted at root.
func New(root string) *FS {
	return &FS{ProjectRoot: root}
}

// toAbs resolves a project-relative POSIX path to an absolute path,
// refusing any path that escapes the project root.
func (fs *FS) toAbs(relPath string) (string, error) {
	if filepath.IsAbs(relPath) {
		return "", &kerrors.PathEscapeError{Path: relPath}
	}
	clean := filepath.Clean(filepath.FromSlash(relPath))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", &kerrors.PathEscapeError{Path: relPath}
	}
	return filepath.Join(fs.ProjectRoot, clean), nil
}

// Enumerate walks ProjectRoot breadth-first-equivalent (depth-first via
// filepath.Walk, order is stable and deterministic), returning POSIX
// relative paths of every included file: not matched by an ignore rule,
// not binary, and not under a built-in exclude.
func (fs *FS) Enumerate(ignoreRules []string) ([]string, error) {
	var (
		mu      sync.Mutex
		results []string
		wg      sync.WaitGroup
		sem     = make(chan struct{}, 20)
	)

	walkErr := filepath.Walk(fs.ProjectRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(fs.ProjectRoot, path)
		if relErr != nil {
			return nil
		}
		if rel == "." {
			return nil
		}
		posixRel := filepath.ToSlash(rel)

		if info.IsDir() {
			if info.Mode()&os.ModeSymlink != 0 {
				return filepath.SkipDir
			}
			for _, excl := range builtinExcludeDirs {
				if posixRel == excl {
					return filepath.SkipDir
				}
			}
			if matchesIgnore(posixRel+"/", ignoreRules) {
				return filepath.SkipDir
			}
			return nil
		}

		if info.Mode()&os.ModeSymlink != 0 {
			return nil
		}
		if matchesIgnore(posixRel, ignoreRules) {
			return nil
		}

		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if isText, _ := isTextFile(path); isText {
				mu.Lock()
				results = append(results, posixRel)
				mu.Unlock()
			}
		}()
		return nil
	})
	wg.Wait()
	if walkErr != nil {
		return nil, &kerrors.IoError{Path: fs.ProjectRoot, Err: walkErr}
	}

	sort.Strings(results)
	return results, nil
}

func matchesIgnore(posixRel string, rules []string) bool {
	for _, rule := range rules {
		rule = strings.TrimSpace(rule)
		if rule == "" || strings.HasPrefix(rule, "#") {
			continue
		}
		ok, err := doublestar.Match(rule, posixRel)
		if err == nil && ok {
			return true
		}
		if ok2, err2 := doublestar.Match(strings.TrimSuffix(rule, "/")+"/**", posixRel); err2 == nil && ok2 {
			return true
		}
	}
	return false
}

// isTextFile sniffs the first 8KiB of path: text if it contains no NUL
// byte and at least 95% printable-or-whitespace bytes. Read errors are
// treated as text, per spec.md §4.1.
func isTextFile(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return true, nil
	}
	defer f.Close()

	buf := make([]byte, sniffWindowBytes)
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return true, nil
	}
	buf = buf[:n]
	if len(buf) == 0 {
		return true, nil
	}

	printable := 0
	for _, b := range buf {
		if b == 0 {
			return false, nil
		}
		if b == '\t' || b == '\n' || b == '\r' || (b >= 0x20 && b < 0x7f) || b >= 0x80 {
			printable++
		}
	}
	return float64(printable)/float64(len(buf)) >= 0.95, nil
}

// Read returns the file's content, or ("", false, nil) if it does not exist.
func (fs *FS) Read(relPath string) (string, bool, error) {
	abs, err := fs.toAbs(relPath)
	if err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		if os.IsPermission(err) {
			return "", false, &kerrors.PermissionError{Path: relPath, Err: err}
		}
		return "", false, &kerrors.IoError{Path: relPath, Err: err}
	}
	return string(data), true, nil
}

// Write atomically overwrites relPath: write to a sibling temp file, then
// rename into place, ensuring parent directories exist first.
func (fs *FS) Write(relPath, content string) error {
	abs, err := fs.toAbs(relPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return &kerrors.IoError{Path: relPath, Err: err}
	}

	tmp, err := os.CreateTemp(filepath.Dir(abs), ".kai-tmp-*")
	if err != nil {
		return &kerrors.IoError{Path: relPath, Err: err}
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &kerrors.IoError{Path: relPath, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &kerrors.IoError{Path: relPath, Err: err}
	}
	if err := os.Rename(tmpName, abs); err != nil {
		os.Remove(tmpName)
		return &kerrors.IoError{Path: relPath, Err: err}
	}
	return nil
}

// Delete removes relPath; a missing file is treated as success.
func (fs *FS) Delete(relPath string) error {
	abs, err := fs.toAbs(relPath)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		return &kerrors.IoError{Path: relPath, Err: err}
	}
	return nil
}

// AppendJSONL serializes value as one JSON object and appends it as a line
// to relPath, creating parent directories as needed.
func (fs *FS) AppendJSONL(relPath string, value interface{}) error {
	abs, err := fs.toAbs(relPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return &kerrors.IoError{Path: relPath, Err: err}
	}

	data, err := json.Marshal(value)
	if err != nil {
		return &kerrors.ParseError{Source: relPath, Err: err}
	}

	f, err := os.OpenFile(abs, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return &kerrors.IoError{Path: relPath, Err: err}
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return &kerrors.IoError{Path: relPath, Err: err}
	}
	return nil
}

// ReadJSONLLines returns every non-empty line of relPath, or nil if the
// file does not exist.
func (fs *FS) ReadJSONLLines(relPath string) ([]string, error) {
	abs, err := fs.toAbs(relPath)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &kerrors.IoError{Path: relPath, Err: err}
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, &kerrors.IoError{Path: relPath, Err: err}
	}
	return lines, nil
}

const defaultGitignoreRule = ".kai/"

// EnsureGitignore creates a default .gitignore if missing, or appends a
// rule covering the log directory if not already present. It never
// duplicates an existing rule.
func (fs *FS) EnsureGitignore() error {
	path := filepath.Join(fs.ProjectRoot, ".gitignore")
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return &kerrors.IoError{Path: path, Err: err}
		}
		return os.WriteFile(path, []byte(defaultGitignoreRule+"\n"), 0644)
	}

	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == strings.TrimSuffix(defaultGitignoreRule, "/") ||
			strings.TrimSpace(line) == defaultGitignoreRule {
			return nil
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return &kerrors.IoError{Path: path, Err: err}
	}
	defer f.Close()
	if _, err := f.WriteString("\n" + defaultGitignoreRule + "\n"); err != nil {
		return &kerrors.IoError{Path: path, Err: err}
	}
	return nil
}

// ApplyDiff delegates to PatchEngine: it applies diffText against relPath's
// current content (strict then fuzzy), writing the result on success and
// appending a DiffFailureInfo to diff_failures.jsonl on failure.
func (fs *FS) ApplyDiff(relPath, diffText string) (bool, error) {
	current, _, err := fs.Read(relPath)
	if err != nil {
		return false, err
	}

	result := patch.Apply(relPath, current, diffText)
	if result.Failure != nil {
		if logErr := fs.AppendJSONL(".kai/logs/diff_failures.jsonl", result.Failure); logErr != nil {
			return false, logErr
		}
		return false, nil
	}

	if result.IsDelete {
		return true, fs.Delete(relPath)
	}
	return true, fs.Write(relPath, result.Content)
}
