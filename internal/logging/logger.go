// Package logging provides Kai's two-tier logging: a zap console logger for
// CLI-visible messages, and a categorized file logger under .kai/logs/ for
// detailed component telemetry, gated by config so a non-debug run writes
// no telemetry files at all.
package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category names one of Kai's logging subsystems. Unlike the wider
// category lists seen in larger agent systems, Kai only needs the handful
// of subsystems its own components touch.
type Category string

const (
	CategoryBoot        Category = "boot"
	CategorySession     Category = "session"
	CategoryContext     Category = "context"
	CategoryAnalysis    Category = "analysis"
	CategoryPatch       Category = "patch"
	CategoryConsolidate Category = "consolidate"
	CategoryFeedback    Category = "feedback"
	CategoryModel       Category = "model"
)

var allCategories = []Category{
	CategoryBoot, CategorySession, CategoryContext, CategoryAnalysis,
	CategoryPatch, CategoryConsolidate, CategoryFeedback, CategoryModel,
}

// fileConfig mirrors the subset of Kai's config relevant to telemetry
// logging; Initialize fills it from its parameters, so this package has no
// import-time dependency on internal/config.
type fileConfig struct {
	DebugMode  bool     `yaml:"debug_mode"`
	Categories []string `yaml:"categories"`
	JSONFormat bool     `yaml:"json_format"`
}

var (
	mu         sync.Mutex
	logsDir    string
	cfg        fileConfig
	loggers    = map[Category]*Logger{}
	enabledSet = map[Category]bool{}
)

// Initialize prepares categorized file logging rooted at <projectRoot>/.kai.
// When debug_mode is false (the default for a config with no logging
// section), Initialize is a no-op: Get still returns usable loggers, but
// they discard everything rather than create files.
func Initialize(projectRoot string, debugMode bool, categories []string, jsonFormat bool) error {
	mu.Lock()
	defer mu.Unlock()

	logsDir = filepath.Join(projectRoot, ".kai", "logs")
	cfg = fileConfig{DebugMode: debugMode, Categories: categories, JSONFormat: jsonFormat}
	loggers = map[Category]*Logger{}

	enabledSet = map[Category]bool{}
	if len(categories) == 0 {
		for _, c := range allCategories {
			enabledSet[c] = true
		}
	} else {
		for _, c := range categories {
			enabledSet[Category(c)] = true
		}
	}

	if !debugMode {
		return nil
	}
	return os.MkdirAll(logsDir, 0755)
}

// Logger writes lines to a single category's log file, or discards them
// when debug logging is disabled for that category.
type Logger struct {
	category Category
	path     string
	enabled  bool
	json     bool
	mu       sync.Mutex
}

// Get returns the cached-or-new logger for category.
func Get(category Category) *Logger {
	mu.Lock()
	defer mu.Unlock()

	if l, ok := loggers[category]; ok {
		return l
	}

	l := &Logger{
		category: category,
		enabled:  cfg.DebugMode && enabledSet[category],
		json:     cfg.JSONFormat,
	}
	if l.enabled {
		l.path = filepath.Join(logsDir, fmt.Sprintf("%s_%s.log", time.Now().Format("2006-01-02"), category))
	}
	loggers[category] = l
	return l
}

type structuredEntry struct {
	Timestamp string `json:"ts"`
	Category  string `json:"cat"`
	Level     string `json:"lvl"`
	Message   string `json:"msg"`
}

func (l *Logger) write(level, format string, args ...interface{}) {
	if !l.enabled {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	msg := fmt.Sprintf(format, args...)
	var line string
	if l.json {
		data, _ := json.Marshal(structuredEntry{
			Timestamp: time.Now().Format(time.RFC3339),
			Category:  string(l.category),
			Level:     level,
			Message:   msg,
		})
		line = string(data)
	} else {
		line = fmt.Sprintf("%s [%s] %s: %s", time.Now().Format(time.RFC3339), level, l.category, msg)
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	defer f.Close()
	fmt.Fprintln(f, line)
}

func (l *Logger) Debug(format string, args ...interface{}) { l.write("DEBUG", format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.write("INFO", format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.write("WARN", format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.write("ERROR", format, args...) }

// Timer measures and logs the duration of a unit of work.
type Timer struct {
	logger  *Logger
	label   string
	started time.Time
}

// StartTimer begins timing label under category; call Stop when done.
func StartTimer(category Category, label string) *Timer {
	return &Timer{logger: Get(category), label: label, started: time.Now()}
}

func (t *Timer) Stop() {
	t.logger.Debug("%s finished in %s", t.label, time.Since(t.started))
}
