package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// GetAssessment looks up a cached verdict for (url, focus). Entries
// older than ttl are misses; they stay in place until pruned.
func (s *Store) GetAssessment(ctx context.Context, url, focus string, ttl time.Duration) (string, bool, error) {
	var assessment string
	var createdAt int64
	err := s.DB.QueryRowContext(ctx, `
		SELECT assessment, created_at FROM assessment_cache
		WHERE url = ? AND focus = ?`, url, focus).Scan(&assessment, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if time.Since(time.UnixMilli(createdAt)) > ttl {
		return "", false, nil
	}
	return assessment, true, nil
}

// PutAssessment stores or refreshes a verdict for (url, focus).
func (s *Store) PutAssessment(ctx context.Context, url, focus, assessment string) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO assessment_cache (url, focus, assessment, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(url, focus) DO UPDATE SET
			assessment = excluded.assessment,
			created_at = excluded.created_at`,
		url, focus, assessment, time.Now().UnixMilli(),
	)
	return err
}

// PruneAssessments keeps the cache bounded: entries past ttl go first,
// then the oldest entries beyond maxRows. Returns rows removed.
func (s *Store) PruneAssessments(ctx context.Context, ttl time.Duration, maxRows int) (int64, error) {
	cutoff := time.Now().Add(-ttl).UnixMilli()
	res, err := s.DB.ExecContext(ctx,
		`DELETE FROM assessment_cache WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	removed, _ := res.RowsAffected()

	if maxRows > 0 {
		res, err = s.DB.ExecContext(ctx, `
			DELETE FROM assessment_cache WHERE (url, focus) IN (
				SELECT url, focus FROM assessment_cache
				ORDER BY created_at DESC LIMIT -1 OFFSET ?
			)`, maxRows)
		if err != nil {
			return removed, err
		}
		n, _ := res.RowsAffected()
		removed += n
	}
	return removed, nil
}
