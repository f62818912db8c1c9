package storage

import (
	"context"
	"database/sql"
	"fmt"

	"vintedwatch/internal/models"
)

// ListActiveQueries returns every query that should be polled, oldest first.
func (s *Store) ListActiveQueries(ctx context.Context) ([]models.Query, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, url, last_item, active, created_at
		 FROM queries WHERE active = 1 ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing active queries: %w", err)
	}
	defer rows.Close()

	var queries []models.Query
	for rows.Next() {
		var q models.Query
		if err := rows.Scan(&q.ID, &q.Name, &q.URL, &q.LastItem, &q.Active, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning query: %w", err)
		}
		queries = append(queries, q)
	}
	return queries, rows.Err()
}

// ListQueries returns every saved query, active or not, oldest first.
func (s *Store) ListQueries(ctx context.Context) ([]models.Query, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, url, last_item, active, created_at FROM queries ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing queries: %w", err)
	}
	defer rows.Close()

	var queries []models.Query
	for rows.Next() {
		var q models.Query
		if err := rows.Scan(&q.ID, &q.Name, &q.URL, &q.LastItem, &q.Active, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning query: %w", err)
		}
		queries = append(queries, q)
	}
	return queries, rows.Err()
}

// GetQuery returns a query by ID, or nil when it does not exist.
func (s *Store) GetQuery(ctx context.Context, id int64) (*models.Query, error) {
	q := &models.Query{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, url, last_item, active, created_at
		 FROM queries WHERE id = ?`, id,
	).Scan(&q.ID, &q.Name, &q.URL, &q.LastItem, &q.Active, &q.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting query: %w", err)
	}
	return q, nil
}

// CreateQuery stores a new active query and returns its assigned ID.
func (s *Store) CreateQuery(ctx context.Context, url, name string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO queries (name, url) VALUES (?, ?)`, name, url,
	)
	if err != nil {
		return 0, fmt.Errorf("creating query: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting query id: %w", err)
	}
	return id, nil
}

// UpdateWatermark moves a query's last_item forward. The WHERE clause keeps
// the watermark monotone even if two cycles race.
func (s *Store) UpdateWatermark(ctx context.Context, id, timestampMs int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE queries SET last_item = ? WHERE id = ? AND last_item < ?`,
		timestampMs, id, timestampMs,
	)
	if err != nil {
		return fmt.Errorf("updating watermark: %w", err)
	}
	return nil
}

// SetQueryActive flips a query's polling flag.
func (s *Store) SetQueryActive(ctx context.Context, id int64, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE queries SET active = ? WHERE id = ?`, active, id,
	)
	if err != nil {
		return fmt.Errorf("updating query active flag: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrQueryNotFound
	}
	return nil
}

// DeleteQuery removes a query; its items cascade.
func (s *Store) DeleteQuery(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM queries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting query: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrQueryNotFound
	}
	return nil
}

// DeleteAllQueries removes every query and, via cascade, every item.
func (s *Store) DeleteAllQueries(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM queries`); err != nil {
		return fmt.Errorf("deleting all queries: %w", err)
	}
	return nil
}
