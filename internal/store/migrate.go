package store

import "context"

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id             TEXT PRIMARY KEY,
	full_name      TEXT NOT NULL,
	email          TEXT UNIQUE NOT NULL,
	personal_email TEXT NOT NULL DEFAULT '',
	role           TEXT NOT NULL,
	password_hash  TEXT NOT NULL DEFAULT '',
	is_active      BOOLEAN NOT NULL DEFAULT TRUE,
	last_login     TIMESTAMPTZ,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	created_by     TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS attendance_records (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	type        TEXT NOT NULL,
	date        TEXT NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL,
	location    TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_attendance_user ON attendance_records(user_id);
CREATE INDEX IF NOT EXISTS idx_attendance_date ON attendance_records(date);
CREATE INDEX IF NOT EXISTS idx_attendance_created ON attendance_records(created_at);

CREATE TABLE IF NOT EXISTS notifications (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	message     TEXT NOT NULL,
	target_role TEXT NOT NULL,
	created_by  TEXT NOT NULL DEFAULT '',
	is_active   BOOLEAN NOT NULL DEFAULT TRUE,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS user_notifications (
	id              TEXT PRIMARY KEY,
	notification_id TEXT NOT NULL REFERENCES notifications(id),
	user_id         TEXT NOT NULL,
	user_email      TEXT NOT NULL DEFAULT '',
	title           TEXT NOT NULL,
	message         TEXT NOT NULL,
	target_role     TEXT NOT NULL,
	is_read         BOOLEAN NOT NULL DEFAULT FALSE,
	read_at         TIMESTAMPTZ,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_user_notifications_user ON user_notifications(user_id);

CREATE TABLE IF NOT EXISTS tasks (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	description TEXT NOT NULL,
	class_name  TEXT NOT NULL,
	assigned_to TEXT,
	teacher_id  TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_tasks_assignee ON tasks(assigned_to);
CREATE INDEX IF NOT EXISTS idx_tasks_teacher  ON tasks(teacher_id);
`

// Migrate creates all tables and indexes if they do not exist yet. Safe to
// run on every startup.
func (d *DB) Migrate(ctx context.Context) error {
	_, err := d.Client.ExecContext(ctx, schema)
	return err
}
