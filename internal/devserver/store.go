// Package devserver is an in-memory reference implementation of the
// CodeCollab backend contract: the REST surface plus the realtime event
// channel. It exists for local development and integration tests; it is not
// the production backend.
package devserver

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Harris-py/codecollab-go/pkg/api"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrInvalidSessionID = errors.New("invalid session id")
	ErrStorageWrite     = errors.New("failed to write session")
)

var sessionIDRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

func validateSessionID(id string) error {
	if !sessionIDRegex.MatchString(id) {
		return fmt.Errorf("%w: %s", ErrInvalidSessionID, id)
	}
	return nil
}

const joinCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func newJoinCode() string {
	buf := make([]byte, 6)
	_, _ = rand.Read(buf)
	for i, b := range buf {
		buf[i] = joinCodeAlphabet[int(b)%len(joinCodeAlphabet)]
	}
	return string(buf)
}

// record is a stored session plus its execution history.
type record struct {
	Session api.Session        `json:"session"`
	History []api.HistoryEntry `json:"history,omitempty"`
}

// Store keeps session metadata in memory, optionally snapshotted to one JSON
// file per session under baseDir.
type Store struct {
	baseDir string // "" disables persistence

	mu       sync.RWMutex
	sessions map[string]*record
	byCode   map[string]string // join code → session id
}

// NewStore opens a store. With a non-empty baseDir, existing session files
// are loaded and later mutations are written back atomically.
func NewStore(baseDir string) (*Store, error) {
	s := &Store{
		baseDir:  baseDir,
		sessions: make(map[string]*record),
		byCode:   make(map[string]string),
	}
	if baseDir == "" {
		return s, nil
	}

	dir := filepath.Join(baseDir, "sessions")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create sessions directory: %w", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read sessions directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		var rec record
		if err := json.Unmarshal(data, &rec); err != nil || rec.Session.ID == "" {
			continue
		}
		s.sessions[rec.Session.ID] = &rec
		s.byCode[rec.Session.JoinCode] = rec.Session.ID
	}
	return s, nil
}

func (s *Store) sessionPath(id string) string {
	return filepath.Join(s.baseDir, "sessions", id+".json")
}

// persist writes one record atomically (temp file + rename). Caller holds
// at least a read lock on s.mu.
func (s *Store) persist(rec *record) error {
	if s.baseDir == "" {
		return nil
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	dir := filepath.Join(s.baseDir, "sessions")
	f, err := os.CreateTemp(dir, rec.Session.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageWrite, err)
	}
	tmpName := f.Name()
	_ = os.Chmod(tmpName, 0o600)
	if _, err := f.Write(data); err != nil {
		f.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrStorageWrite, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrStorageWrite, err)
	}
	if err := os.Rename(tmpName, s.sessionPath(rec.Session.ID)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrStorageWrite, err)
	}
	return nil
}

// Create registers a new session with a fresh id and join code.
func (s *Store) Create(name, language, username string) (api.Session, error) {
	now := time.Now().UTC()
	sess := api.Session{
		ID:        uuid.NewString(),
		JoinCode:  newJoinCode(),
		Name:      name,
		Language:  language,
		CreatedBy: username,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for s.byCode[sess.JoinCode] != "" {
		sess.JoinCode = newJoinCode()
	}
	rec := &record{Session: sess}
	s.sessions[sess.ID] = rec
	s.byCode[sess.JoinCode] = sess.ID
	if err := s.persist(rec); err != nil {
		return api.Session{}, err
	}
	return sess, nil
}

// Get returns a session by id.
func (s *Store) Get(id string) (api.Session, error) {
	if err := validateSessionID(id); err != nil {
		return api.Session{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.sessions[id]
	if !ok {
		return api.Session{}, ErrSessionNotFound
	}
	return rec.Session, nil
}

// GetByCode resolves a join code.
func (s *Store) GetByCode(code string) (api.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byCode[code]
	if !ok {
		return api.Session{}, ErrSessionNotFound
	}
	return s.sessions[id].Session, nil
}

// Update patches name and language.
func (s *Store) Update(id string, req api.UpdateSessionRequest) (api.Session, error) {
	if err := validateSessionID(id); err != nil {
		return api.Session{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[id]
	if !ok {
		return api.Session{}, ErrSessionNotFound
	}
	if req.Name != "" {
		rec.Session.Name = req.Name
	}
	if req.Language != "" {
		rec.Session.Language = req.Language
	}
	rec.Session.UpdatedAt = time.Now().UTC()
	if err := s.persist(rec); err != nil {
		return api.Session{}, err
	}
	return rec.Session, nil
}

// Delete removes a session and its snapshot file.
func (s *Store) Delete(id string) error {
	if err := validateSessionID(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, id)
	delete(s.byCode, rec.Session.JoinCode)
	if s.baseDir != "" {
		_ = os.Remove(s.sessionPath(id))
	}
	return nil
}

// AppendHistory records a completed execution.
func (s *Store) AppendHistory(id string, entry api.HistoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[id]
	if !ok {
		return
	}
	rec.History = append(rec.History, entry)
	_ = s.persist(rec)
}

// History returns a session's past executions.
func (s *Store) History(id string) ([]api.HistoryEntry, error) {
	if err := validateSessionID(id); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return append([]api.HistoryEntry(nil), rec.History...), nil
}
