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

CREATE TABLE IF NOT EXISTS accounts (
	id            TEXT PRIMARY KEY,
	display_name  TEXT NOT NULL DEFAULT '',
	email_address TEXT NOT NULL,
	provider      TEXT NOT NULL,
	domains       TEXT NOT NULL DEFAULT '[]',
	settings      TEXT NOT NULL DEFAULT '{}',
	created_at    DATETIME NOT NULL,
	updated_at    DATETIME NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_email
	ON accounts(email_address, provider);

CREATE TABLE IF NOT EXISTS sync_jobs (
	id            TEXT PRIMARY KEY,
	account_id    TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	domain        TEXT NOT NULL CHECK(domain IN ('email', 'calendar', 'tasks')),
	status        TEXT NOT NULL DEFAULT 'queued'
		CHECK(status IN ('queued', 'running', 'completed', 'failed')),
	payload       TEXT NOT NULL DEFAULT '{}',
	attempt_count INTEGER NOT NULL DEFAULT 0,
	max_attempts  INTEGER NOT NULL DEFAULT 5,
	run_after     DATETIME NOT NULL,
	last_error    TEXT,
	created_at    DATETIME NOT NULL,
	updated_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sync_jobs_due ON sync_jobs(status, run_after);
CREATE INDEX IF NOT EXISTS idx_sync_jobs_account ON sync_jobs(account_id, domain);

CREATE TABLE IF NOT EXISTS mail_messages (
	id           TEXT PRIMARY KEY,
	account_id   TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	remote_id    TEXT NOT NULL,
	thread_id    TEXT NOT NULL,
	folder_path  TEXT NOT NULL,
	subject      TEXT NOT NULL DEFAULT '',
	from_json    TEXT NOT NULL DEFAULT '{}',
	to_json      TEXT NOT NULL DEFAULT '[]',
	cc_json      TEXT NOT NULL DEFAULT '[]',
	bcc_json     TEXT NOT NULL DEFAULT '[]',
	flags_json   TEXT NOT NULL DEFAULT '[]',
	labels_json  TEXT NOT NULL DEFAULT '[]',
	headers_json TEXT NOT NULL DEFAULT '{}',
	preview      TEXT NOT NULL DEFAULT '',
	body_text    TEXT,
	body_html    TEXT,
	attachments_json TEXT NOT NULL DEFAULT '[]',
	sent_at      DATETIME,
	received_at  DATETIME NOT NULL,
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL,
	UNIQUE(account_id, remote_id)
);

CREATE INDEX IF NOT EXISTS idx_mail_thread ON mail_messages(account_id, thread_id);
CREATE INDEX IF NOT EXISTS idx_mail_folder ON mail_messages(account_id, folder_path, received_at);

CREATE TABLE IF NOT EXISTS mail_attachment_content (
	message_id TEXT NOT NULL REFERENCES mail_messages(id) ON DELETE CASCADE,
	filename   TEXT NOT NULL,
	mime_type  TEXT NOT NULL DEFAULT '',
	content    BLOB NOT NULL,
	PRIMARY KEY (message_id, filename)
);

CREATE TABLE IF NOT EXISTS mail_folders (
	account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	path       TEXT NOT NULL,
	name       TEXT NOT NULL,
	PRIMARY KEY (account_id, path)
);

CREATE TABLE IF NOT EXISTS calendar_events (
	id              TEXT PRIMARY KEY,
	account_id      TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	calendar_id     TEXT NOT NULL DEFAULT '',
	remote_id       TEXT,
	title           TEXT NOT NULL,
	description     TEXT,
	location        TEXT,
	start_at        DATETIME NOT NULL,
	end_at          DATETIME NOT NULL,
	all_day         INTEGER NOT NULL DEFAULT 0 CHECK(all_day IN (0, 1)),
	recurrence_rule TEXT,
	organizer_json  TEXT,
	attendees_json  TEXT NOT NULL DEFAULT '[]',
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_events_remote
	ON calendar_events(account_id, remote_id) WHERE remote_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_events_range ON calendar_events(account_id, start_at);

CREATE TABLE IF NOT EXISTS reminder_tasks (
	id            TEXT PRIMARY KEY,
	account_id    TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	list_id       TEXT NOT NULL DEFAULT '',
	remote_id     TEXT,
	title         TEXT NOT NULL,
	notes         TEXT,
	due_at        DATETIME,
	completed_at  DATETIME,
	priority      TEXT NOT NULL DEFAULT 'medium'
		CHECK(priority IN ('low', 'medium', 'high')),
	status        TEXT NOT NULL DEFAULT 'not_started'
		CHECK(status IN ('not_started', 'in_progress', 'completed', 'canceled')),
	repeat_rule   TEXT,
	parent_id     TEXT,
	snoozed_until DATETIME,
	created_at    DATETIME NOT NULL,
	updated_at    DATETIME NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_tasks_remote
	ON reminder_tasks(account_id, remote_id) WHERE remote_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_tasks_due ON reminder_tasks(account_id, due_at);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE INDEX IF NOT EXISTS idx_mail_received
	ON mail_messages(account_id, received_at);

CREATE INDEX IF NOT EXISTS idx_sync_jobs_updated
	ON sync_jobs(status, updated_at);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
