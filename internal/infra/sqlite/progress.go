package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vip-ladder/tierbot/internal/domain"
)

var _ domain.ProgressRepository = (*DB)(nil)

// ─── Progress Operations ────────────────────────────────────────────────────

// LoadProgress returns every stored record ordered by user.
func (db *DB) LoadProgress(ctx context.Context) ([]domain.UserProgress, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT user_id, activity_count, acknowledged_tier, updated_at
		FROM user_progress ORDER BY user_id
	`)
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}
	defer rows.Close()

	var out []domain.UserProgress
	for rows.Next() {
		var p domain.UserProgress
		var updatedStr string
		if err := rows.Scan(&p.UserID, &p.ActivityCount, &p.AcknowledgedTier, &updatedStr); err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		p.UpdatedAt = parseTime(updatedStr)
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetProgress returns one record. A missing user yields the default record.
func (db *DB) GetProgress(ctx context.Context, userID string) (domain.UserProgress, error) {
	p := domain.NewUserProgress(userID)
	var updatedStr string
	err := db.db.QueryRowContext(ctx, `
		SELECT activity_count, acknowledged_tier, updated_at
		FROM user_progress WHERE user_id = ?
	`, userID).Scan(&p.ActivityCount, &p.AcknowledgedTier, &updatedStr)
	if errors.Is(err, sql.ErrNoRows) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("get progress %s: %w", userID, err)
	}
	p.UpdatedAt = parseTime(updatedStr)
	return p, nil
}

// SaveProgress upserts the batch in one transaction. Either the whole batch
// commits or none of it does. Stored values never move backwards, so a stale
// writer cannot regress a counter or an acknowledged tier.
func (db *DB) SaveProgress(ctx context.Context, batch []domain.UserProgress) (err error) {
	if len(batch) == 0 {
		return nil
	}
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO user_progress (user_id, activity_count, acknowledged_tier, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			activity_count    = MAX(activity_count, excluded.activity_count),
			acknowledged_tier = MAX(acknowledged_tier, excluded.acknowledged_tier),
			updated_at        = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, p := range batch {
		updated := p.UpdatedAt
		if updated.IsZero() {
			updated = time.Now()
		}
		if _, err = stmt.ExecContext(ctx, p.UserID, p.ActivityCount, p.AcknowledgedTier,
			updated.UTC().Format(timeLayout)); err != nil {
			return fmt.Errorf("upsert %s: %w", p.UserID, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// CountUsers returns the number of stored records.
func (db *DB) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := db.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_progress`).Scan(&n)
	return n, err
}

const timeLayout = "2006-01-02 15:04:05"

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t
}
