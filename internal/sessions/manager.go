package sessions

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Activation is a per-conversation override for group mention gating,
// promoted from prior interaction (an operator set "always respond" or
// "mention only" for that specific conversation). When present it wins
// over the static group/topic configuration.
type Activation string

const (
	ActivationNone    Activation = ""        // no override, config decides
	ActivationAlways  Activation = "always"  // respond without a mention
	ActivationMention Activation = "mention" // require a mention
)

// Session stores the per-conversation state that survives restarts.
type Session struct {
	Key        ConversationKey `json:"key"`
	Activation Activation      `json:"activation,omitempty"`
	Channel    string          `json:"channel,omitempty"`
	TurnCount  int             `json:"turnCount,omitempty"`
	Created    time.Time       `json:"created"`
	Updated    time.Time       `json:"updated"`
}

// Manager handles session lifecycle, persistence, and lookup.
type Manager struct {
	sessions map[ConversationKey]*Session
	mu       sync.RWMutex
	storage  string
}

// NewManager creates a manager persisting sessions as JSON files under
// storage ("" = in-memory only).
func NewManager(storage string) *Manager {
	m := &Manager{
		sessions: make(map[ConversationKey]*Session),
		storage:  storage,
	}
	if storage != "" {
		os.MkdirAll(storage, 0755)
		m.loadAll()
	}
	return m
}

// GetOrCreate returns an existing session or creates a new one.
func (m *Manager) GetOrCreate(key ConversationKey) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[key]; ok {
		return s
	}
	s := &Session{Key: key, Channel: key.Channel(), Created: time.Now(), Updated: time.Now()}
	m.sessions[key] = s
	return s
}

// Activation returns the mention-gating override for key, if any.
func (m *Manager) Activation(key ConversationKey) Activation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.sessions[key]; ok {
		return s.Activation
	}
	return ActivationNone
}

// SetActivation records a mention-gating override for key.
func (m *Manager) SetActivation(key ConversationKey, a Activation) {
	m.mu.Lock()
	s, ok := m.sessions[key]
	if !ok {
		s = &Session{Key: key, Channel: key.Channel(), Created: time.Now()}
		m.sessions[key] = s
	}
	s.Activation = a
	s.Updated = time.Now()
	m.mu.Unlock()

	m.Save(key)
}

// RecordTurn bumps the turn counter after an admitted event.
func (m *Manager) RecordTurn(key ConversationKey) {
	m.mu.Lock()
	if s, ok := m.sessions[key]; ok {
		s.TurnCount++
		s.Updated = time.Now()
	}
	m.mu.Unlock()
}

// Reset clears a session's overrides and counters.
func (m *Manager) Reset(key ConversationKey) {
	m.mu.Lock()
	if s, ok := m.sessions[key]; ok {
		s.Activation = ActivationNone
		s.TurnCount = 0
		s.Updated = time.Now()
	}
	m.mu.Unlock()

	m.Save(key)
}

// List returns all known sessions in no particular order; callers sort
// as needed.
func (m *Manager) List() []Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, *s)
	}
	return out
}

// Save persists a session to disk atomically (temp file + rename) so a
// crash mid-write never leaves a corrupt session file.
func (m *Manager) Save(key ConversationKey) error {
	if m.storage == "" {
		return nil
	}

	m.mu.RLock()
	s, ok := m.sessions[key]
	if !ok {
		m.mu.RUnlock()
		return nil
	}
	snapshot := *s
	m.mu.RUnlock()

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}

	filename := sanitizeFilename(string(key))
	if filename == "." || !filepath.IsLocal(filename) || strings.ContainsAny(filename, `/\`) {
		return os.ErrInvalid
	}
	path := filepath.Join(m.storage, filename+".json")

	tmp, err := os.CreateTemp(m.storage, "session-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	tmp.Close()

	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}
	cleanup = false
	return nil
}

func (m *Manager) loadAll() {
	files, err := os.ReadDir(m.storage)
	if err != nil {
		return
	}
	for _, f := range files {
		if f.IsDir() || filepath.Ext(f.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(m.storage, f.Name()))
		if err != nil {
			continue
		}
		var s Session
		if err := json.Unmarshal(data, &s); err != nil {
			continue
		}
		m.sessions[s.Key] = &s
	}
}

func sanitizeFilename(key string) string {
	return strings.ReplaceAll(key, ":", "_")
}
