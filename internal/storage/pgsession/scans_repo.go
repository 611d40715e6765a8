package pgsession

import (
	"context"

	"github.com/BearBump/ScanDock/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// AddScan: проверка статуса, защита от дубля и инкремент счётчика — в одной
// транзакции под локом строки сессии. Дубль ловится уникальным индексом
// по (session_id, lower(tracking_number)).
func (s *Storage) AddScan(ctx context.Context, scan *models.BatchScan) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var status string
	err = tx.QueryRow(ctx, `SELECT status FROM batch_sessions WHERE id = $1 FOR UPDATE`, scan.SessionID).Scan(&status)
	if err == pgx.ErrNoRows {
		return models.ErrSessionNotFound
	}
	if err != nil {
		return errors.Wrap(err, "select session")
	}
	if status != models.SessionStatusActive {
		return models.ErrSessionNotActive
	}

	tag, err := tx.Exec(ctx, `
INSERT INTO batch_scans (id, session_id, tracking_number, weight, recipient_name, notes, scanned_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (session_id, lower(tracking_number)) DO NOTHING
`, scan.ID, scan.SessionID, scan.TrackingNumber, scan.Weight, scan.RecipientName, scan.Notes, scan.ScannedAt.UTC())
	if err != nil {
		return errors.Wrap(err, "insert scan")
	}
	if tag.RowsAffected() == 0 {
		return models.ErrDuplicateTracking
	}

	_, err = tx.Exec(ctx, `
UPDATE batch_sessions
SET packages_scanned = packages_scanned + 1,
    last_activity_at = $2
WHERE id = $1
`, scan.SessionID, scan.ScannedAt.UTC())
	if err != nil {
		return errors.Wrap(err, "bump scan counter")
	}

	return errors.Wrap(tx.Commit(ctx), "commit tx")
}

func (s *Storage) ListScans(ctx context.Context, sessionID string, limit, offset int) ([]*models.BatchScan, int, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, 0, err
	}

	var total int
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM batch_scans WHERE session_id = $1`, sessionID).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "count scans")
	}

	rows, err := s.db.Query(ctx, `
SELECT id, session_id, tracking_number, weight, recipient_name, notes, scanned_at
FROM batch_scans
WHERE session_id = $1
ORDER BY scanned_at ASC, id ASC
LIMIT $2 OFFSET $3
`, sessionID, limit, offset)
	if err != nil {
		return nil, 0, errors.Wrap(err, "select scans")
	}
	defer rows.Close()

	out := make([]*models.BatchScan, 0, limit)
	for rows.Next() {
		var sc models.BatchScan
		if err := rows.Scan(
			&sc.ID, &sc.SessionID, &sc.TrackingNumber,
			&sc.Weight, &sc.RecipientName, &sc.Notes, &sc.ScannedAt,
		); err != nil {
			return nil, 0, errors.Wrap(err, "scan row")
		}
		out = append(out, &sc)
	}
	if rows.Err() != nil {
		return nil, 0, errors.Wrap(rows.Err(), "rows")
	}
	return out, total, nil
}

func (s *Storage) DeleteScan(ctx context.Context, sessionID, scanID string) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var status string
	err = tx.QueryRow(ctx, `SELECT status FROM batch_sessions WHERE id = $1 FOR UPDATE`, sessionID).Scan(&status)
	if err == pgx.ErrNoRows {
		return models.ErrSessionNotFound
	}
	if err != nil {
		return errors.Wrap(err, "select session")
	}

	tag, err := tx.Exec(ctx, `DELETE FROM batch_scans WHERE id = $1 AND session_id = $2`, scanID, sessionID)
	if err != nil {
		return errors.Wrap(err, "delete scan")
	}
	if tag.RowsAffected() == 0 {
		return models.ErrScanNotFound
	}

	// Счётчик не опускаем ниже нуля.
	_, err = tx.Exec(ctx, `
UPDATE batch_sessions
SET packages_scanned = GREATEST(packages_scanned - 1, 0)
WHERE id = $1
`, sessionID)
	if err != nil {
		return errors.Wrap(err, "drop scan counter")
	}

	return errors.Wrap(tx.Commit(ctx), "commit tx")
}
