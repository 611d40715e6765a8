package pgsession

import (
	"context"
	"time"

	"github.com/BearBump/ScanDock/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const sessionColumns = `
  id, user_id, user_name,
  default_pallet_id, default_priority, default_weight_unit,
  default_content, default_weight, default_box_id,
  packages_scanned, status,
  started_at, completed_at, last_activity_at`

func (s *Storage) CreateSession(ctx context.Context, sess *models.BatchSession) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO batch_sessions (
  id, user_id, user_name,
  default_pallet_id, default_priority, default_weight_unit,
  default_content, default_weight, default_box_id,
  packages_scanned, status,
  started_at, completed_at, last_activity_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
`,
		sess.ID, sess.UserID, sess.UserName,
		sess.DefaultPalletID, sess.DefaultPriority, sess.DefaultWeightUnit,
		sess.DefaultContent, sess.DefaultWeight, sess.DefaultBoxID,
		sess.PackagesScanned, sess.Status,
		sess.StartedAt.UTC(), sess.CompletedAt, sess.LastActivityAt.UTC(),
	)
	return errors.Wrap(err, "insert session")
}

func (s *Storage) GetSession(ctx context.Context, id string) (*models.BatchSession, error) {
	row := s.db.QueryRow(ctx, `SELECT`+sessionColumns+` FROM batch_sessions WHERE id = $1`, id)
	sess, err := scanSession(row)
	if err == pgx.ErrNoRows {
		return nil, models.ErrSessionNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select session")
	}
	return sess, nil
}

func (s *Storage) ListSessionsByUser(ctx context.Context, userID string) ([]*models.BatchSession, error) {
	rows, err := s.db.Query(ctx, `
SELECT`+sessionColumns+`
FROM batch_sessions
WHERE user_id = $1
ORDER BY started_at DESC
`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "select sessions")
	}
	defer rows.Close()

	out := make([]*models.BatchSession, 0)
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan session")
		}
		out = append(out, sess)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// UpdateSession читает строку под FOR UPDATE, применяет mutate и пишет
// обратно в той же транзакции — атомарный compare-and-swap по ключу сессии.
func (s *Storage) UpdateSession(ctx context.Context, id string, mutate func(*models.BatchSession) error) (*models.BatchSession, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `SELECT`+sessionColumns+` FROM batch_sessions WHERE id = $1 FOR UPDATE`, id)
	sess, err := scanSession(row)
	if err == pgx.ErrNoRows {
		return nil, models.ErrSessionNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select session for update")
	}

	if err := mutate(sess); err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
UPDATE batch_sessions
SET
  user_name = $2,
  default_pallet_id = $3,
  default_priority = $4,
  default_weight_unit = $5,
  default_content = $6,
  default_weight = $7,
  default_box_id = $8,
  packages_scanned = $9,
  status = $10,
  completed_at = $11,
  last_activity_at = $12
WHERE id = $1
`,
		sess.ID, sess.UserName,
		sess.DefaultPalletID, sess.DefaultPriority, sess.DefaultWeightUnit,
		sess.DefaultContent, sess.DefaultWeight, sess.DefaultBoxID,
		sess.PackagesScanned, sess.Status,
		sess.CompletedAt, sess.LastActivityAt.UTC(),
	)
	if err != nil {
		return nil, errors.Wrap(err, "update session")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return sess, nil
}

func (s *Storage) DeleteSession(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM batch_sessions WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "delete session")
	}
	if tag.RowsAffected() == 0 {
		return models.ErrSessionNotFound
	}
	return nil
}

// CancelStaleSessions отменяет пачку простаивающих сессий.
// FOR UPDATE SKIP LOCKED — чтобы несколько воркеров не дрались за строки.
func (s *Storage) CancelStaleSessions(ctx context.Context, idleBefore time.Time, limit int) ([]*models.BatchSession, error) {
	rows, err := s.db.Query(ctx, `
WITH stale AS (
  SELECT id FROM batch_sessions
  WHERE status IN ($1, $2)
    AND last_activity_at < $3
  ORDER BY last_activity_at ASC
  LIMIT $4
  FOR UPDATE SKIP LOCKED
)
UPDATE batch_sessions b
SET status = $5
FROM stale
WHERE b.id = stale.id
RETURNING
  b.id, b.user_id, b.user_name,
  b.default_pallet_id, b.default_priority, b.default_weight_unit,
  b.default_content, b.default_weight, b.default_box_id,
  b.packages_scanned, b.status,
  b.started_at, b.completed_at, b.last_activity_at
`, models.SessionStatusActive, models.SessionStatusPaused, idleBefore.UTC(), limit, models.SessionStatusCancelled)
	if err != nil {
		return nil, errors.Wrap(err, "cancel stale sessions")
	}
	defer rows.Close()

	var out []*models.BatchSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan session")
		}
		out = append(out, sess)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.BatchSession, error) {
	var sess models.BatchSession
	var completedAt *time.Time
	if err := row.Scan(
		&sess.ID, &sess.UserID, &sess.UserName,
		&sess.DefaultPalletID, &sess.DefaultPriority, &sess.DefaultWeightUnit,
		&sess.DefaultContent, &sess.DefaultWeight, &sess.DefaultBoxID,
		&sess.PackagesScanned, &sess.Status,
		&sess.StartedAt, &completedAt, &sess.LastActivityAt,
	); err != nil {
		return nil, err
	}
	sess.CompletedAt = completedAt
	return &sess, nil
}
