package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/murmur-app/murmur/model"
)

// Store is the persistence collaborator for session transcripts. The core
// only ever appends words: UpsertSession replaces the stored record, but the
// session controller guarantees the word list it writes is a superset of
// what it last read.
type Store interface {
	// GetSession retrieves a session record; the boolean is false when no
	// record exists for the id.
	GetSession(ctx context.Context, id string) (*model.SessionRecord, bool, error)

	// UpsertSession creates or replaces a session record.
	UpsertSession(ctx context.Context, rec *model.SessionRecord) error
}

// FileStore keeps session records in memory and snapshots each upsert to a
// JSON file per session. An empty dir disables snapshots (pure in-memory,
// useful in tests).
type FileStore struct {
	mu       sync.RWMutex
	sessions map[string]*model.SessionRecord
	dir      string
	log      *logrus.Entry
}

// NewFileStore creates a store rooted at dir. Existing snapshots are loaded
// lazily on first Get.
func NewFileStore(dir string) (*FileStore, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	return &FileStore{
		sessions: make(map[string]*model.SessionRecord),
		dir:      dir,
		log:      logrus.WithField("component", "store"),
	}, nil
}

// GetSession returns a copy of the stored record so callers cannot mutate
// store state in place.
func (s *FileStore) GetSession(ctx context.Context, id string) (*model.SessionRecord, bool, error) {
	s.mu.RLock()
	rec, ok := s.sessions[id]
	s.mu.RUnlock()

	if !ok && s.dir != "" {
		loaded, err := s.load(id)
		if err != nil {
			return nil, false, err
		}
		if loaded == nil {
			return nil, false, nil
		}
		s.mu.Lock()
		s.sessions[id] = loaded
		rec, ok = loaded, true
		s.mu.Unlock()
	}
	if !ok {
		return nil, false, nil
	}
	return copyRecord(rec), true, nil
}

// UpsertSession stores the record and snapshots it to disk when a directory
// is configured.
func (s *FileStore) UpsertSession(ctx context.Context, rec *model.SessionRecord) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("session record needs an id")
	}
	stored := copyRecord(rec)

	s.mu.Lock()
	s.sessions[rec.ID] = stored
	s.mu.Unlock()

	if s.dir == "" {
		return nil
	}
	return s.snapshot(stored)
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *FileStore) load(id string) (*model.SessionRecord, error) {
	data, err := os.ReadFile(s.path(id))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session snapshot: %w", err)
	}
	var rec model.SessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode session snapshot: %w", err)
	}
	return &rec, nil
}

func (s *FileStore) snapshot(rec *model.SessionRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session snapshot: %w", err)
	}
	tmp := s.path(rec.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write session snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path(rec.ID)); err != nil {
		return fmt.Errorf("commit session snapshot: %w", err)
	}
	return nil
}

func copyRecord(rec *model.SessionRecord) *model.SessionRecord {
	out := *rec
	out.Words = append([]model.Word(nil), rec.Words...)
	if rec.EndedAt != nil {
		ended := *rec.EndedAt
		out.EndedAt = &ended
	}
	return &out
}
