// Package sqlite stores users, channels and messages in a SQLite file.
// It suits single-node deployments and local development.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
	CREATE TABLE IF NOT EXISTS servers (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		name       TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS users (
		id        TEXT PRIMARY KEY,
		name      TEXT NOT NULL,
		avatar    TEXT NOT NULL DEFAULT '',
		status    TEXT NOT NULL DEFAULT 'offline',
		role      TEXT NOT NULL DEFAULT 'Member',
		joined_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS channels (
		id              TEXT PRIMARY KEY,
		server_id       INTEGER NOT NULL,
		name            TEXT NOT NULL,
		type            TEXT NOT NULL CHECK (type IN ('text', 'note', 'whiteboard')),
		whiteboard_data TEXT,
		created_at      INTEGER NOT NULL,
		FOREIGN KEY (server_id) REFERENCES servers(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS messages (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		channel_id  TEXT NOT NULL,
		user_id     TEXT NOT NULL,
		user_name   TEXT NOT NULL,
		user_avatar TEXT NOT NULL DEFAULT '',
		text        TEXT NOT NULL DEFAULT '',
		file_path   TEXT,
		file_name   TEXT,
		file_type   TEXT,
		file_size   INTEGER,
		is_link     INTEGER NOT NULL DEFAULT 0,
		timestamp   INTEGER NOT NULL,
		expire_at   INTEGER,
		FOREIGN KEY (channel_id) REFERENCES channels(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_messages_channel_id ON messages(channel_id, id);
	CREATE INDEX IF NOT EXISTS idx_messages_user ON messages(user_id);
	CREATE INDEX IF NOT EXISTS idx_messages_expire_at ON messages(expire_at);
`

type Database struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and prepares the
// schema. ":memory:" gives a private in-memory database.
func Open(ctx context.Context, path string) (*Database, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_foreign_keys=on&_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// sqlite serialises writers; one connection also keeps ":memory:" shared
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	d := &Database{db: db}
	if err := d.CreateTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return d, nil
}

func (d *Database) CreateTables(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	now := time.Now().UnixMilli()
	if _, err := d.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO servers (id, name, created_at) VALUES (1, 'Main', ?)`, now); err != nil {
		return fmt.Errorf("seed server: %w", err)
	}
	if _, err := d.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO channels (id, server_id, name, type, created_at) VALUES ('c1', 1, 'general', 'text', ?)`, now); err != nil {
		return fmt.Errorf("seed channel: %w", err)
	}
	return nil
}

func (d *Database) Close() error { return d.db.Close() }

func (d *Database) Ping(ctx context.Context) error { return d.db.PingContext(ctx) }

// Store groups the repositories over one database.
type Store struct {
	Users    *UserRepository
	Channels *ChannelRepository
	Messages *MessageRepository
}

func (d *Database) Store() *Store {
	return &Store{
		Users:    &UserRepository{db: d.db},
		Channels: &ChannelRepository{db: d.db},
		Messages: &MessageRepository{db: d.db},
	}
}

func millis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
