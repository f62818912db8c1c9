package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"vintedwatch/internal/models"
)

// ItemExists reports whether an item ID is already stored. Defends against
// watermark resets and cross-session races.
func (s *Store) ItemExists(ctx context.Context, id int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM items WHERE id = ?`, id,
	).Scan(&one)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("checking item existence: %w", err)
}

// InsertItemIfAbsent stores an item unless its ID is already present.
// Reports whether a row was actually inserted.
func (s *Store) InsertItemIfAbsent(ctx context.Context, item models.Item) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO items
		 (id, query_id, title, brand, size, price, currency, photo_url, url, buy_url, created_at_ms, raw_timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.QueryID, item.Title, item.Brand, item.Size, item.Price,
		item.Currency, item.PhotoURL, item.URL, item.BuyURL, item.CreatedAtMs, item.RawTimestamp,
	)
	if err != nil {
		return false, fmt.Errorf("inserting item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("inserting item: %w", err)
	}
	return n > 0, nil
}

// ListItems returns stored items newest first, optionally scoped to a query.
// queryID 0 means all queries.
func (s *Store) ListItems(ctx context.Context, queryID int64, limit int) ([]models.Item, error) {
	if limit <= 0 {
		limit = 50
	}

	const cols = `id, query_id, title, brand, size, price, currency, photo_url, url, buy_url, created_at_ms, raw_timestamp`
	var (
		rows *sql.Rows
		err  error
	)
	if queryID > 0 {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+cols+` FROM items WHERE query_id = ? ORDER BY created_at_ms DESC LIMIT ?`,
			queryID, limit,
		)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+cols+` FROM items ORDER BY created_at_ms DESC LIMIT ?`,
			limit,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	var items []models.Item
	for rows.Next() {
		var it models.Item
		if err := rows.Scan(&it.ID, &it.QueryID, &it.Title, &it.Brand, &it.Size, &it.Price,
			&it.Currency, &it.PhotoURL, &it.URL, &it.BuyURL, &it.CreatedAtMs, &it.RawTimestamp); err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
