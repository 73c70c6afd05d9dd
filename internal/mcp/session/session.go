package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/valkey-io/valkey-go"
)

const (
	sessionKeyPrefix = "sqlscope:mcp:session:"
	sessionTTL       = 30 * time.Minute
	maxHistory       = 20
)

// Session tracks the SQL buffer an agent is working on across MCP tool
// calls, so follow-up calls may omit the text. Stored in Valkey with a
// 30-minute TTL, keyed by sqlscope:mcp:session:{session_id}.
type Session struct {
	ID         string          `json:"id"`
	SQL        string          `json:"sql,omitempty"`
	Vendor     string          `json:"vendor,omitempty"`
	SeenTables map[string]bool `json:"seen_tables"`
	History    []string        `json:"history"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Store loads and saves sessions.
type Store interface {
	Load(ctx context.Context, sessionID string) (*Session, error)
	Save(ctx context.Context, s *Session) error
}

// Manager handles loading and saving sessions to Valkey.
type Manager struct {
	client valkey.Client
}

// NewManager creates a session manager backed by the given Valkey client.
func NewManager(client valkey.Client) *Manager {
	return &Manager{client: client}
}

// Load retrieves a session from Valkey. If the session doesn't exist, a new one is created.
func (m *Manager) Load(ctx context.Context, sessionID string) (*Session, error) {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	key := sessionKeyPrefix + sessionID
	resp := m.client.Do(ctx, m.client.B().Get().Key(key).Build())
	data, err := resp.AsBytes()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return newSession(sessionID), nil
		}
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return newSession(sessionID), nil
	}
	return &s, nil
}

// Save persists a session to Valkey with a 30-minute TTL.
func (m *Manager) Save(ctx context.Context, s *Session) error {
	s.UpdatedAt = time.Now()
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	key := sessionKeyPrefix + s.ID
	resp := m.client.Do(ctx, m.client.B().Set().Key(key).Value(string(data)).Ex(sessionTTL).Build())
	if err := resp.Error(); err != nil {
		return fmt.Errorf("save session %s: %w", s.ID, err)
	}
	return nil
}

// Memory is a process-local Store used when Valkey is not configured.
// Sessions do not expire.
type Memory struct {
	mu       sync.Mutex
	sessions map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{sessions: make(map[string][]byte)}
}

func (m *Memory) Load(_ context.Context, sessionID string) (*Session, error) {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	m.mu.Lock()
	data, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return newSession(sessionID), nil
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return newSession(sessionID), nil
	}
	return &s, nil
}

func (m *Memory) Save(_ context.Context, s *Session) error {
	s.UpdatedAt = time.Now()
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	m.mu.Lock()
	m.sessions[s.ID] = data
	m.mu.Unlock()
	return nil
}

func newSession(id string) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		SeenTables: make(map[string]bool),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// SetBuffer replaces the session's SQL buffer. An empty vendor keeps the
// previous one.
func (s *Session) SetBuffer(sql, vendor string) {
	s.SQL = sql
	if vendor != "" {
		s.Vendor = vendor
	}
}

// MarkSeen records that the given tables have been described to the agent.
func (s *Session) MarkSeen(names ...string) {
	if s.SeenTables == nil {
		s.SeenTables = make(map[string]bool)
	}
	for _, n := range names {
		s.SeenTables[strings.ToLower(n)] = true
	}
}

// IsSeen returns true if the table was previously described in this session.
func (s *Session) IsSeen(name string) bool {
	if s.SeenTables == nil {
		return false
	}
	return s.SeenTables[strings.ToLower(name)]
}

// SeenCount returns the number of tables seen in this session.
func (s *Session) SeenCount() int {
	return len(s.SeenTables)
}

// AddHistory appends a tool call summary, keeping the last maxHistory entries.
func (s *Session) AddHistory(entry string) {
	s.History = append(s.History, entry)
	if len(s.History) > maxHistory {
		s.History = s.History[len(s.History)-maxHistory:]
	}
}
