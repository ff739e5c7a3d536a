package store

import (
	"context"
	"sync"
)

// Memory is an in-process store used when no database is configured, and by
// tests. It satisfies all three store interfaces.
type Memory struct {
	mu       sync.RWMutex
	config   map[string]string
	channels []ChannelRecord
	users    map[string]RegisteredUser // keyed by fingerprint hash
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		config: make(map[string]string),
		users:  make(map[string]RegisteredUser),
	}
}

// SetConfig replaces one config row.
func (m *Memory) SetConfig(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config[key] = value
}

// SetChannels replaces the channel tree.
func (m *Memory) SetChannels(recs []ChannelRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = append([]ChannelRecord(nil), recs...)
}

// PutUser registers a user under its fingerprint hash.
func (m *Memory) PutUser(u RegisteredUser) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.Hash] = u
}

func (m *Memory) ServerConfig(_ context.Context, _ int) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.config))
	for k, v := range m.config {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) Channels(_ context.Context, _ int) ([]ChannelRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ChannelRecord(nil), m.channels...), nil
}

func (m *Memory) FindByHash(_ context.Context, _ int, hash string) (*RegisteredUser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[hash]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}
