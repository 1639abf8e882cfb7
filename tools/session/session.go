// Package session persists per-session analysis state so the data query and
// actuarial tools can hand results to each other across invocations.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned when a session has no record of the requested kind.
var ErrNotFound = errors.New("session record not found")

// QueryResult records where a completed query landed its unloaded rows.
type QueryResult struct {
	SessionID string    `json:"session_id"`
	S3Prefix  string    `json:"s3_prefix"`
	Columns   []string  `json:"columns"`
	RowCount  int64     `json:"row_count"`
	Query     string    `json:"query"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists query results and derived loss triangles per session.
type Store interface {
	SaveQueryResult(ctx context.Context, result QueryResult) error
	GetQueryResult(ctx context.Context, sessionID string) (*QueryResult, error)
	SaveTriangles(ctx context.Context, sessionID string, triangles json.RawMessage) error
	GetTriangles(ctx context.Context, sessionID string) (json.RawMessage, error)
}

// MemoryStore keeps session state in memory. Used in tests and local runs.
type MemoryStore struct {
	mu        sync.RWMutex
	results   map[string]QueryResult
	triangles map[string]json.RawMessage
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		results:   make(map[string]QueryResult),
		triangles: make(map[string]json.RawMessage),
	}
}

func (m *MemoryStore) SaveQueryResult(_ context.Context, result QueryResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[result.SessionID] = result
	return nil
}

func (m *MemoryStore) GetQueryResult(_ context.Context, sessionID string) (*QueryResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result, ok := m.results[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return &result, nil
}

func (m *MemoryStore) SaveTriangles(_ context.Context, sessionID string, triangles json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.triangles[sessionID] = append(json.RawMessage(nil), triangles...)
	return nil
}

func (m *MemoryStore) GetTriangles(_ context.Context, sessionID string) (json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	triangles, ok := m.triangles[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return append(json.RawMessage(nil), triangles...), nil
}
