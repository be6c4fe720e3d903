package sqlite

import "database/sql"

// schema is applied on every open. CREATE IF NOT EXISTS keeps it idempotent
// so the server can restart against an existing database file. Timestamps
// are unix milliseconds.
const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id            TEXT PRIMARY KEY,
	pair_key      TEXT NOT NULL UNIQUE,
	participant_a TEXT NOT NULL,
	participant_b TEXT NOT NULL,
	created_at    INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL,
	CHECK (participant_a != participant_b)
);

CREATE INDEX IF NOT EXISTS idx_conversations_participant_a ON conversations(participant_a, updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_conversations_participant_b ON conversations(participant_b, updated_at DESC);

CREATE TABLE IF NOT EXISTS messages (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id TEXT NOT NULL,
	sender_id       TEXT NOT NULL,
	content         TEXT NOT NULL,
	created_at      INTEGER NOT NULL,
	is_read         BOOLEAN NOT NULL DEFAULT 0,
	FOREIGN KEY (conversation_id) REFERENCES conversations(id)
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, id);

CREATE TABLE IF NOT EXISTS identities (
	id              TEXT PRIMARY KEY,
	display_name    TEXT NOT NULL,
	avatar_url      TEXT NOT NULL DEFAULT '',
	role            TEXT NOT NULL,
	access_key_hash TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_identities_role ON identities(role, id);
`

func ensureSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
