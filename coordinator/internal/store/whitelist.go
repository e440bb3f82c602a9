package store

import (
	"context"
	"strings"
	"time"
)

// Whitelist entries come in two shapes. A full URL (anything with a
// scheme) matches the snapshot URL by exact string comparison. A bare
// host matches every page on that host or a subdomain of it.

// AddWhitelist records an entry. Re-adding is a no-op.
func (s *Store) AddWhitelist(ctx context.Context, entry string) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO whitelist (entry, added_at) VALUES (?, ?)
		ON CONFLICT(entry) DO NOTHING`,
		normalizeEntry(entry), time.Now().UnixMilli(),
	)
	return err
}

// RemoveWhitelist drops an entry. Returns true if it was present.
func (s *Store) RemoveWhitelist(ctx context.Context, entry string) (bool, error) {
	res, err := s.DB.ExecContext(ctx,
		`DELETE FROM whitelist WHERE entry = ?`, normalizeEntry(entry))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// IsWhitelisted reports whether the exact URL is an entry, or its host
// (or a registrable parent, so docs.example.com matches a whitelisted
// example.com) is.
func (s *Store) IsWhitelisted(ctx context.Context, url, host string) (bool, error) {
	hit, err := s.hasEntry(ctx, strings.TrimSpace(url))
	if err != nil || hit {
		return hit, err
	}
	host = normalizeHost(host)
	for host != "" {
		hit, err = s.hasEntry(ctx, host)
		if err != nil || hit {
			return hit, err
		}
		dot := strings.Index(host, ".")
		if dot < 0 || strings.Index(host[dot+1:], ".") < 0 {
			// Never match a bare TLD.
			return false, nil
		}
		host = host[dot+1:]
	}
	return false, nil
}

func (s *Store) hasEntry(ctx context.Context, entry string) (bool, error) {
	var n int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM whitelist WHERE entry = ?`, entry).Scan(&n)
	return n > 0, err
}

// ListWhitelist returns all entries, alphabetically.
func (s *Store) ListWhitelist(ctx context.Context) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT entry FROM whitelist ORDER BY entry`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []string
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// normalizeEntry keeps URL entries verbatim apart from trimming; bare
// hosts are lowercased so lookups are case-insensitive.
func normalizeEntry(entry string) string {
	entry = strings.TrimSpace(entry)
	if strings.Contains(entry, "://") {
		return entry
	}
	return normalizeHost(entry)
}

func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	host = strings.TrimPrefix(host, "www.")
	return strings.TrimSuffix(host, ".")
}
