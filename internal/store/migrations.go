package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS mailboxes (
	id               TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL,
	address          TEXT NOT NULL,
	nickname         TEXT NOT NULL DEFAULT '',
	secret_enc       TEXT NOT NULL,
	is_active        INTEGER NOT NULL DEFAULT 1 CHECK(is_active IN (0, 1)),
	is_verified      INTEGER NOT NULL DEFAULT 0 CHECK(is_verified IN (0, 1)),
	is_deleted       INTEGER NOT NULL DEFAULT 0 CHECK(is_deleted IN (0, 1)),
	last_sync_at     DATETIME,
	last_sync_status TEXT NOT NULL DEFAULT '',
	last_sync_error  TEXT NOT NULL DEFAULT '',
	created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_mailboxes_user_address
	ON mailboxes(user_id, address) WHERE is_deleted = 0;
CREATE INDEX IF NOT EXISTS idx_mailboxes_user_active_updated
	ON mailboxes(user_id, is_active, updated_at);

CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL,
	mailbox_id      TEXT NOT NULL,
	mailbox_address TEXT NOT NULL DEFAULT '',
	nickname        TEXT NOT NULL DEFAULT '',
	message_id      TEXT NOT NULL,
	subject         TEXT NOT NULL DEFAULT '',
	body            TEXT NOT NULL DEFAULT '',
	from_address    TEXT NOT NULL DEFAULT '',
	from_name       TEXT NOT NULL DEFAULT '',
	reply_body      TEXT NOT NULL DEFAULT '',
	summary         TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT 'Unread'
		CHECK(status IN ('Unread', 'DraftSaved', 'ReadResponded')),
	received_at     DATETIME NOT NULL,
	draft_saved_at  DATETIME,
	sent_at         DATETIME,
	send_error      TEXT NOT NULL DEFAULT '',
	created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(mailbox_id, message_id)
);

CREATE INDEX IF NOT EXISTS idx_messages_user_status_received
	ON messages(user_id, status, received_at);
CREATE INDEX IF NOT EXISTS idx_messages_mailbox_id
	ON messages(mailbox_id);

CREATE TABLE IF NOT EXISTS bulk_jobs (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	kind       TEXT NOT NULL DEFAULT 'bulk_send',
	total      INTEGER NOT NULL DEFAULT 0,
	processed  INTEGER NOT NULL DEFAULT 0,
	success    INTEGER NOT NULL DEFAULT 0,
	failed     INTEGER NOT NULL DEFAULT 0,
	status     TEXT NOT NULL DEFAULT 'QUEUED'
		CHECK(status IN ('QUEUED', 'RUNNING', 'DONE', 'FAILED')),
	last_error TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_bulk_jobs_user_id ON bulk_jobs(user_id);

CREATE TABLE IF NOT EXISTS bulk_job_results (
	job_id     TEXT NOT NULL REFERENCES bulk_jobs(id) ON DELETE CASCADE,
	seq        INTEGER NOT NULL,
	message_id TEXT NOT NULL,
	ok         INTEGER NOT NULL CHECK(ok IN (0, 1)),
	error      TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (job_id, seq)
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
