// Package store defines the persistent collaborators the engine consults:
// server config rows, the channel tree and registered-user lookup. The
// engine only reads through these interfaces; writing is out of scope.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by lookups with no matching row.
var ErrNotFound = errors.New("store: not found")

// Channel info keys, fixed by the murmur schema.
const (
	ChannelKeyDescription = 0
	ChannelKeyPosition    = 1
)

// User info keys, fixed by the murmur schema.
const (
	UserKeyComment = 2
	UserKeyHash    = 3
)

// ChannelRecord is one row of the channel tree.
type ChannelRecord struct {
	ID          uint32
	Parent      *uint32 // nil only for the root
	Name        string
	Position    int32
	Description string
}

// RegisteredUser is a persistent user resolved by certificate fingerprint.
type RegisteredUser struct {
	UserID      uint32
	Name        string
	LastChannel uint32
	Comment     string
	Hash        string
}

// ConfigStore returns the raw string key/value config rows for a server.
type ConfigStore interface {
	ServerConfig(ctx context.Context, serverID int) (map[string]string, error)
}

// ChannelStore returns the channel tree for a server.
type ChannelStore interface {
	Channels(ctx context.Context, serverID int) ([]ChannelRecord, error)
}

// UserStore resolves a certificate fingerprint to a registered user.
// A missing fingerprint returns ErrNotFound, which callers treat as
// "unregistered guest", not as a failure.
type UserStore interface {
	FindByHash(ctx context.Context, serverID int, hash string) (*RegisteredUser, error)
}
