package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// SQLite reads the murmur-compatible sqlite database: config, channels,
// channel_info, users and user_info tables.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens the database at path. The file must already exist and
// carry the murmur schema; this server never writes to it.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	return &SQLite{db: db}, nil
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) ServerConfig(ctx context.Context, serverID int) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM config WHERE server_id = ?`, serverID)
	if err != nil {
		return nil, fmt.Errorf("store: config query: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("store: config scan: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (s *SQLite) Channels(ctx context.Context, serverID int) ([]ChannelRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT channel_id, parent_id, name FROM channels WHERE server_id = ?`, serverID)
	if err != nil {
		return nil, fmt.Errorf("store: channels query: %w", err)
	}
	defer rows.Close()

	var recs []ChannelRecord
	for rows.Next() {
		var rec ChannelRecord
		var parent sql.NullInt64
		if err := rows.Scan(&rec.ID, &parent, &rec.Name); err != nil {
			return nil, fmt.Errorf("store: channels scan: %w", err)
		}
		if parent.Valid && parent.Int64 >= 0 {
			p := uint32(parent.Int64)
			rec.Parent = &p
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range recs {
		if err := s.fillChannelInfo(ctx, serverID, &recs[i]); err != nil {
			// Missing channel_info rows degrade to empty description.
			log.Warn().Err(err).Str("module", "store").
				Uint32("channel", recs[i].ID).Msg("channel info lookup failed")
		}
	}
	return recs, nil
}

func (s *SQLite) fillChannelInfo(ctx context.Context, serverID int, rec *ChannelRecord) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM channel_info WHERE server_id = ? AND channel_id = ?`,
		serverID, rec.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key int
		var value string
		if err := rows.Scan(&key, &value); err != nil {
			return err
		}
		switch key {
		case ChannelKeyDescription:
			rec.Description = value
		case ChannelKeyPosition:
			var pos int32
			if _, err := fmt.Sscan(value, &pos); err == nil {
				rec.Position = pos
			}
		}
	}
	return rows.Err()
}

func (s *SQLite) FindByHash(ctx context.Context, serverID int, hash string) (*RegisteredUser, error) {
	var userID uint32
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id FROM user_info WHERE server_id = ? AND key = ? AND value = ?`,
		serverID, UserKeyHash, hash).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: user_info query: %w", err)
	}

	user := &RegisteredUser{UserID: userID, Hash: hash}

	var lastChannel sql.NullInt64
	var name sql.NullString
	err = s.db.QueryRowContext(ctx,
		`SELECT name, lastchannel FROM users WHERE server_id = ? AND user_id = ?`,
		serverID, userID).Scan(&name, &lastChannel)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: users query: %w", err)
	}
	if name.Valid {
		user.Name = name.String
	}
	if lastChannel.Valid && lastChannel.Int64 >= 0 {
		user.LastChannel = uint32(lastChannel.Int64)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM user_info WHERE server_id = ? AND user_id = ?`,
		serverID, userID)
	if err != nil {
		return nil, fmt.Errorf("store: user_info rows: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key int
		var value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("store: user_info scan: %w", err)
		}
		if key == UserKeyComment {
			user.Comment = value
		}
	}
	return user, rows.Err()
}
