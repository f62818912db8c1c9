package monitor

import (
	"context"

	"vintedwatch/internal/client"
	"vintedwatch/internal/models"
)

// SearchClient abstracts the marketplace client.
type SearchClient interface {
	Search(ctx context.Context, url string, perPage, page int) ([]client.CatalogItem, error)
	UserCountry(ctx context.Context, userID int64, host string) (string, error)
}

// QueryStore abstracts the saved-query side of the store.
type QueryStore interface {
	ListActiveQueries(ctx context.Context) ([]models.Query, error)
	UpdateWatermark(ctx context.Context, id, timestampMs int64) error
}

// ItemStore abstracts the seen-item side of the store.
type ItemStore interface {
	ItemExists(ctx context.Context, id int64) (bool, error)
	InsertItemIfAbsent(ctx context.Context, item models.Item) (bool, error)
}

// ParamStore abstracts named settings with defaults.
type ParamStore interface {
	GetParam(ctx context.Context, key, def string) (string, error)
}

// Sink receives the aggregate batch of new items once per cycle.
// Delivery failures are the sink's concern; the engine never retries.
type Sink interface {
	NotifyBatch(ctx context.Context, items []models.Item)
}
