package pgsession

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS batch_sessions (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  user_name TEXT NOT NULL DEFAULT '',
  default_pallet_id TEXT NOT NULL DEFAULT '',
  default_priority TEXT NOT NULL DEFAULT '',
  default_weight_unit TEXT NOT NULL DEFAULT '',
  default_content TEXT NOT NULL DEFAULT '',
  default_weight DOUBLE PRECISION NULL,
  default_box_id TEXT NOT NULL DEFAULT '',
  packages_scanned INT NOT NULL DEFAULT 0,
  status TEXT NOT NULL,
  started_at TIMESTAMPTZ NOT NULL,
  completed_at TIMESTAMPTZ NULL,
  last_activity_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_batch_sessions_user_id ON batch_sessions(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_batch_sessions_status_idle ON batch_sessions(status, last_activity_at)`,
		`
CREATE TABLE IF NOT EXISTS batch_scans (
  id TEXT PRIMARY KEY,
  session_id TEXT NOT NULL REFERENCES batch_sessions(id) ON DELETE CASCADE,
  tracking_number TEXT NOT NULL,
  weight DOUBLE PRECISION NULL,
  recipient_name TEXT NOT NULL DEFAULT '',
  notes TEXT NOT NULL DEFAULT '',
  scanned_at TIMESTAMPTZ NOT NULL
)`,
		// Дубль трек-номера в рамках сессии запрещён без учёта регистра.
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_batch_scans_session_tracking ON batch_scans(session_id, lower(tracking_number))`,
		`CREATE INDEX IF NOT EXISTS idx_batch_scans_session_scanned_at ON batch_scans(session_id, scanned_at)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
