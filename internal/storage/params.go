package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Recognized parameter keys and their defaults. Unset keys fall back to the
// default passed by the caller, so new keys never require a migration.
const (
	ParamItemsPerQuery        = "items_per_query"
	ParamQueryRefreshDelay    = "query_refresh_delay"
	ParamMessageTemplate      = "message_template"
	ParamBanwords             = "banwords"
	ParamCountryAllowlist     = "country_allowlist"
	ParamTimeWindow           = "time_window"
	ParamNotificationsEnabled = "notifications_enabled"
)

const (
	DefaultItemsPerQuery        = "20"
	DefaultQueryRefreshDelay    = "60"
	DefaultMessageTemplate      = "{title}\n{price} - {brand} {size}"
	DefaultTimeWindow           = "1200"
	DefaultNotificationsEnabled = "1"
)

// GetParam returns the stored value for key, or def when unset.
func (s *Store) GetParam(ctx context.Context, key, def string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM params WHERE key = ?`, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("getting param %q: %w", key, err)
	}
	return value, nil
}

// SetParam stores a value for key, replacing any previous value.
func (s *Store) SetParam(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO params (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("setting param %q: %w", key, err)
	}
	return nil
}
