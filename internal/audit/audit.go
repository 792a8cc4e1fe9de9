// Package audit appends analyst mutation events to a JSONL trail.
//
// Compliance reviews of flagging decisions need a durable record of who
// changed what and when. The trail is append-only, one JSON object per
// line, written next to the project tier by default. Appends are best
// effort: a failing trail degrades to warnings and never blocks the
// mutation that produced the event.
package audit

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrEmptyPath indicates the trail was constructed without a file path.
var ErrEmptyPath = errors.New("audit trail path cannot be empty")

// Action identifies the mutation an event records.
type Action string

const (
	ActionFlag   Action = "flag"
	ActionUnflag Action = "unflag"
	ActionAlias  Action = "alias"
	ActionDelete Action = "delete"
	ActionLearn  Action = "learn"
)

// Event is one recorded mutation.
type Event struct {
	// ID is a generated UUID.
	ID string `json:"id"`

	// Time is the append time in RFC 3339.
	Time string `json:"time"`

	// Action is the mutation kind.
	Action Action `json:"action"`

	// Key is the canonical entity key, empty for batch actions.
	Key string `json:"key,omitempty"`

	// Details carries small action-specific fields (batch sizes,
	// propagation outcome).
	Details map[string]any `json:"details,omitempty"`
}

// Trail is an append-only JSONL event log. Safe for concurrent use; the
// file is opened lazily on first append.
type Trail struct {
	path   string
	logger *zap.Logger

	mu sync.Mutex
	f  *os.File
}

// NewTrail creates a trail writing to path. The file and its directory
// are created on first append, not here.
func NewTrail(path string, logger *zap.Logger) (*Trail, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trail{path: path, logger: logger}, nil
}

// Record appends one event. Failures are logged and swallowed: auditing
// must never fail the mutation it describes.
func (t *Trail) Record(action Action, key string, details map[string]any) {
	event := Event{
		ID:      uuid.New().String(),
		Time:    time.Now().Format(time.RFC3339),
		Action:  action,
		Key:     key,
		Details: details,
	}

	line, err := json.Marshal(event)
	if err != nil {
		t.logger.Warn("failed to encode audit event", zap.Error(err))
		return
	}
	line = append(line, '\n')

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.f == nil {
		if err := t.open(); err != nil {
			t.logger.Warn("failed to open audit trail",
				zap.String("path", t.path), zap.Error(err))
			return
		}
	}
	if _, err := t.f.Write(line); err != nil {
		t.logger.Warn("failed to append audit event",
			zap.String("path", t.path), zap.Error(err))
	}
}

func (t *Trail) open() error {
	if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(t.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	t.f = f
	return nil
}

// Close closes the trail file if one was opened.
func (t *Trail) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.f == nil {
		return nil
	}
	err := t.f.Close()
	t.f = nil
	return err
}
