// Package transcript persists finished conversations as append-only JSONL so
// a later run can continue them.
package transcript

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"toolrunner/internal/llm/core"
)

const (
	fileExt          = ".jsonl"
	maxJSONLLineSize = 4 * 1024 * 1024
)

var (
	ErrDirRequired       = errors.New("transcript directory is required")
	ErrRunIDRequired     = errors.New("run id is required")
	ErrInvalidRunID      = errors.New("invalid run id")
	ErrTranscriptMissing = errors.New("transcript not found")
)

// Entry is one line of a transcript file.
type Entry struct {
	Seq     int          `json:"seq"`
	Message core.Message `json:"message"`
	Usage   *core.Usage  `json:"usage,omitempty"`
	TS      int64        `json:"ts"`
}

// Info describes one transcript file on disk.
type Info struct {
	RunID     string
	Path      string
	UpdatedAt time.Time
	SizeBytes int64
}

// Store keeps one transcript file per run id.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore constructs a transcript store rooted at dir.
func NewStore(dir string) (*Store, error) {
	root := strings.TrimSpace(dir)
	if root == "" {
		return nil, ErrDirRequired
	}
	return &Store{dir: root}, nil
}

// Save appends messages to the run's transcript, numbering them after the
// entries already stored. Assistant usage is kept alongside each message.
func (s *Store) Save(ctx context.Context, runID string, messages []core.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.path(runID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := readEntries(ctx, path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create transcript dir %s: %w", s.dir, err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open transcript %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	w := bufio.NewWriter(file)
	now := time.Now().Unix()
	for i, msg := range messages {
		entry := Entry{Seq: len(existing) + i, Message: msg, TS: now}
		if msg.Role == core.RoleAssistant {
			entry.Usage = msg.Usage.Clone()
		}
		raw, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshal transcript entry %d: %w", entry.Seq, err)
		}
		if _, err := w.Write(append(raw, '\n')); err != nil {
			return fmt.Errorf("append transcript entry: %w", err)
		}
	}
	return w.Flush()
}

// Load returns the run's messages in order.
func (s *Store) Load(ctx context.Context, runID string) ([]core.Message, error) {
	path, err := s.path(runID)
	if err != nil {
		return nil, err
	}
	entries, err := readEntries(ctx, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrTranscriptMissing, strings.TrimSpace(runID))
		}
		return nil, err
	}

	messages := make([]core.Message, 0, len(entries))
	for _, entry := range entries {
		msg := entry.Message
		if entry.Usage != nil {
			msg.Usage = *entry.Usage
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// List returns stored transcripts, newest first.
func (s *Store) List(ctx context.Context) ([]Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	items, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read transcript dir %s: %w", s.dir, err)
	}

	out := make([]Info, 0, len(items))
	for _, item := range items {
		if item.IsDir() || filepath.Ext(item.Name()) != fileExt {
			continue
		}
		info, err := item.Info()
		if err != nil {
			return nil, fmt.Errorf("stat transcript %s: %w", item.Name(), err)
		}
		out = append(out, Info{
			RunID:     strings.TrimSuffix(item.Name(), fileExt),
			Path:      filepath.Join(s.dir, item.Name()),
			UpdatedAt: info.ModTime(),
			SizeBytes: info.Size(),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].RunID > out[j].RunID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *Store) path(runID string) (string, error) {
	id := strings.TrimSpace(runID)
	if id == "" {
		return "", ErrRunIDRequired
	}
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("%w: %s", ErrInvalidRunID, id)
	}
	return filepath.Join(s.dir, id+fileExt), nil
}

func readEntries(ctx context.Context, path string) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxJSONLLineSize)

	var entries []Entry
	line := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var entry Entry
		if err := json.Unmarshal([]byte(text), &entry); err != nil {
			return nil, fmt.Errorf("decode transcript line %d: %w", line, err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, fmt.Errorf("transcript line too large (> %d bytes): %w", maxJSONLLineSize, err)
		}
		return nil, fmt.Errorf("scan transcript: %w", err)
	}
	return entries, nil
}
