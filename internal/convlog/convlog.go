// Package convlog implements Kai's ConversationLog: an append-only JSONL
// file per named conversation, tolerant of both the current tagged-union
// entry shape and the legacy {type:"request",prompt} / {type:"response",
// response} shapes, reconstructing an in-memory Message sequence on load.
package convlog

import (
	"encoding/json"
	"fmt"
	"time"

	"kai/internal/logging"
	"kai/internal/projectfs"
)

// Role is a Message's speaker.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one turn in a conversation. Immutable once appended.
type Message struct {
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// entry is the on-disk tagged-union shape, covering both current and
// legacy fields; unused fields are simply absent in any given line.
type entry struct {
	Type      string `json:"type"`
	Role      string `json:"role,omitempty"`
	Content   string `json:"content,omitempty"`
	Prompt    string `json:"prompt,omitempty"`
	Response  string `json:"response,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Log is one named conversation's append-only JSONL file plus its
// reconstructed Message sequence.
type Log struct {
	name string
	dir  string
	fs   *projectfs.FS

	messages []Message
}

// Open loads name's existing entries (if any) from <chatsDir>/<name>.jsonl
// relative to fs's project root, tolerating legacy and unknown entries.
func Open(fs *projectfs.FS, chatsDir, name string) (*Log, error) {
	l := &Log{name: name, dir: chatsDir, fs: fs}

	lines, err := fs.ReadJSONLLines(l.path())
	if err != nil {
		return nil, err
	}

	logger := logging.Get(logging.CategorySession)
	for _, line := range lines {
		var e entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			logger.Warn("skipping malformed conversation log line: %v", err)
			continue
		}
		msg, ok := toMessage(e)
		if !ok {
			logger.Warn("skipping unreconstructable conversation log entry of type %q", e.Type)
			continue
		}
		l.messages = append(l.messages, msg)
	}
	return l, nil
}

func (l *Log) path() string {
	return l.dir + "/" + l.name + ".jsonl"
}

// toMessage maps a persisted entry to a Message, handling legacy shapes.
// Error entries and entries lacking both content and legacy prompt/response
// fields are not reconstructable.
func toMessage(e entry) (Message, bool) {
	switch e.Type {
	case "request":
		if e.Content != "" {
			return Message{Role: roleOrDefault(e.Role, RoleUser), Content: e.Content, Timestamp: e.Timestamp}, true
		}
		if e.Prompt != "" {
			return Message{Role: RoleUser, Content: e.Prompt, Timestamp: e.Timestamp}, true
		}
		return Message{}, false
	case "response":
		if e.Content != "" {
			return Message{Role: roleOrDefault(e.Role, RoleAssistant), Content: e.Content, Timestamp: e.Timestamp}, true
		}
		if e.Response != "" {
			return Message{Role: RoleAssistant, Content: e.Response, Timestamp: e.Timestamp}, true
		}
		return Message{}, false
	case "system":
		if e.Content == "" {
			return Message{}, false
		}
		return Message{Role: RoleSystem, Content: e.Content, Timestamp: e.Timestamp}, true
	case "error":
		return Message{}, false
	default:
		return Message{}, false
	}
}

func roleOrDefault(r string, def Role) Role {
	if r == "" {
		return def
	}
	return Role(r)
}

// Messages returns the reconstructed in-memory Message sequence.
func (l *Log) Messages() []Message {
	return append([]Message(nil), l.messages...)
}

// LastMessage returns the most recently appended Message, if any.
func (l *Log) LastMessage() (Message, bool) {
	if len(l.messages) == 0 {
		return Message{}, false
	}
	return l.messages[len(l.messages)-1], true
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// AppendUser appends a user request entry and its reconstructed Message.
func (l *Log) AppendUser(content string) error {
	return l.append(entry{Type: "request", Role: string(RoleUser), Content: content, Timestamp: now()},
		Message{Role: RoleUser, Content: content, Timestamp: now()})
}

// AppendAssistant appends an assistant response entry and its Message.
func (l *Log) AppendAssistant(content string) error {
	return l.append(entry{Type: "response", Role: string(RoleAssistant), Content: content, Timestamp: now()},
		Message{Role: RoleAssistant, Content: content, Timestamp: now()})
}

// AppendSystem appends a system entry and its Message.
func (l *Log) AppendSystem(content string) error {
	return l.append(entry{Type: "system", Role: string(RoleSystem), Content: content, Timestamp: now()},
		Message{Role: RoleSystem, Content: content, Timestamp: now()})
}

// AppendError appends an error entry. Error entries are never reconstructed
// into the Message sequence.
func (l *Log) AppendError(errMsg string) error {
	return l.fs.AppendJSONL(l.path(), entry{Type: "error", Error: errMsg, Timestamp: now()})
}

func (l *Log) append(e entry, msg Message) error {
	if err := l.fs.AppendJSONL(l.path(), e); err != nil {
		return fmt.Errorf("append conversation entry: %w", err)
	}
	l.messages = append(l.messages, msg)
	return nil
}
