package postgres

const querySchema = `
	CREATE TABLE IF NOT EXISTS servers (
		id         BIGSERIAL PRIMARY KEY,
		name       TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS users (
		id        TEXT PRIMARY KEY,
		name      TEXT NOT NULL,
		avatar    TEXT NOT NULL DEFAULT '',
		status    TEXT NOT NULL DEFAULT 'offline',
		role      TEXT NOT NULL DEFAULT 'Member',
		joined_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS channels (
		id              TEXT PRIMARY KEY,
		server_id       BIGINT NOT NULL REFERENCES servers(id) ON DELETE CASCADE,
		name            TEXT NOT NULL,
		type            TEXT NOT NULL CHECK (type IN ('text', 'note', 'whiteboard')),
		whiteboard_data JSONB,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS messages (
		id          BIGSERIAL PRIMARY KEY,
		channel_id  TEXT NOT NULL REFERENCES channels(id) ON DELETE CASCADE,
		user_id     TEXT NOT NULL,
		user_name   TEXT NOT NULL,
		user_avatar TEXT NOT NULL DEFAULT '',
		text        TEXT NOT NULL DEFAULT '',
		file_path   TEXT,
		file_name   TEXT,
		file_type   TEXT,
		file_size   BIGINT,
		is_link     BOOLEAN NOT NULL DEFAULT FALSE,
		timestamp   TIMESTAMPTZ NOT NULL DEFAULT now(),
		expire_at   TIMESTAMPTZ
	);

	CREATE INDEX IF NOT EXISTS idx_messages_channel_id ON messages (channel_id, id DESC);
	CREATE INDEX IF NOT EXISTS idx_messages_user ON messages (user_id);
	CREATE INDEX IF NOT EXISTS idx_messages_expire_at ON messages (expire_at) WHERE expire_at IS NOT NULL;
`

const querySeed = `
	INSERT INTO servers (id, name) VALUES (1, 'Main') ON CONFLICT (id) DO NOTHING;
	INSERT INTO channels (id, server_id, name, type) VALUES ('c1', 1, 'general', 'text') ON CONFLICT (id) DO NOTHING;
`

const messageColumns = `id, channel_id, user_id, user_name, user_avatar, text,
	file_path, file_name, file_type, file_size, is_link, timestamp, expire_at`

const (
	queryCreateMessage = `
		INSERT INTO messages (channel_id, user_id, user_name, user_avatar, text,
			file_path, file_name, file_type, file_size, is_link, timestamp, expire_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, timestamp;
	`
	queryGetMessage        = `SELECT ` + messageColumns + ` FROM messages WHERE id = $1;`
	queryDeleteMessage     = `DELETE FROM messages WHERE id = $1;`
	queryDeleteOwnMessage  = `DELETE FROM messages WHERE id = $1 AND user_id = $2;`
	queryListRecentMessage = `
		SELECT * FROM (
			SELECT ` + messageColumns + ` FROM messages
			WHERE channel_id = $1
			ORDER BY id DESC
			LIMIT $2
		) recent ORDER BY id ASC;
	`
	queryListPageMessage = `
		SELECT ` + messageColumns + ` FROM messages
		WHERE channel_id = $1 AND ($2::bigint = 0 OR id < $2)
		ORDER BY id DESC
		LIMIT $3;
	`
	queryListByAuthor = `
		SELECT ` + messageColumns + ` FROM messages
		WHERE user_id = $1
		ORDER BY id DESC
		LIMIT $2;
	`
	queryCountByAuthor = `SELECT count(*) FROM messages WHERE user_id = $1;`
	queryCountMessages = `SELECT count(*) FROM messages;`
	queryListExpired   = `
		SELECT ` + messageColumns + ` FROM messages
		WHERE expire_at IS NOT NULL AND expire_at <= $1
		ORDER BY expire_at ASC
		LIMIT $2;
	`
)

const (
	queryGetUser    = `SELECT id, name, avatar, status, role, joined_at FROM users WHERE id = $1;`
	queryUpsertUser = `
		INSERT INTO users (id, name, avatar, status, role, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, avatar = EXCLUDED.avatar, status = EXCLUDED.status, role = EXCLUDED.role;
	`
	queryUpdateUserStatus = `UPDATE users SET status = $2 WHERE id = $1;`
	queryListUsers        = `SELECT id, name, avatar, status, role, joined_at FROM users ORDER BY name, id;`
)

const (
	queryGetChannel     = `SELECT id, server_id, name, type, whiteboard_data, created_at FROM channels WHERE id = $1;`
	queryLoadWhiteboard = `SELECT whiteboard_data FROM channels WHERE id = $1;`
	querySaveWhiteboard = `UPDATE channels SET whiteboard_data = $2 WHERE id = $1;`
	queryUpsertChannel  = `
		INSERT INTO channels (id, server_id, name, type)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name;
	`
)
