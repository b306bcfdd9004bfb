package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ActionLogEntry records one completed action execution
type ActionLogEntry struct {
	RunID      string         `json:"run_id"`
	StateName  string         `json:"state_name"`
	ActionType string         `json:"action_type"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Output     any            `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
	StartTime  time.Time      `json:"start_time"`
	Duration   float64        `json:"duration"`
}

// ActionLogger defines the per-action audit logging interface
type ActionLogger interface {
	// LogAction logs a completed action
	LogAction(ctx context.Context, entry *ActionLogEntry) error

	// GetActionHistory retrieves the action log for a run
	GetActionHistory(ctx context.Context, runID string) ([]*ActionLogEntry, error)
}

// NullActionLogger discards all entries
type NullActionLogger struct{}

func NewNullActionLogger() *NullActionLogger {
	return &NullActionLogger{}
}

func (l *NullActionLogger) LogAction(ctx context.Context, entry *ActionLogEntry) error {
	return nil
}

func (l *NullActionLogger) GetActionHistory(ctx context.Context, runID string) ([]*ActionLogEntry, error) {
	return nil, nil
}

// FileActionLogger appends JSONL entries to one file per run
type FileActionLogger struct {
	directory string
	mutex     sync.Mutex
}

func NewFileActionLogger(directory string) *FileActionLogger {
	return &FileActionLogger{directory: directory}
}

func (l *FileActionLogger) logPath(runID string) string {
	return filepath.Join(l.directory, runID+".jsonl")
}

func (l *FileActionLogger) LogAction(ctx context.Context, entry *ActionLogEntry) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if err := os.MkdirAll(l.directory, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal log entry: %w", err)
	}
	f, err := os.OpenFile(l.logPath(entry.RunID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open action log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write action log: %w", err)
	}
	return nil
}

func (l *FileActionLogger) GetActionHistory(ctx context.Context, runID string) ([]*ActionLogEntry, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	data, err := os.ReadFile(l.logPath(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read action log: %w", err)
	}
	var entries []*ActionLogEntry
	for _, line := range splitLines(data) {
		if len(line) == 0 {
			continue
		}
		var entry ActionLogEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, fmt.Errorf("corrupt action log entry: %w", err)
		}
		entries = append(entries, &entry)
	}
	return entries, nil
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			lines = append(lines, data[start:i])
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}
