package models

import (
	"errors"
	"time"
)

// ErrQueryNotFound is returned when a query ID does not resolve to a stored query.
var ErrQueryNotFound = errors.New("query not found")

// Query is a saved marketplace search. LastItem is the watermark: the creation
// timestamp (ms since epoch) of the newest item already admitted for this
// query. It only ever moves forward.
type Query struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url" validate:"required,url"`
	LastItem  int64     `json:"last_item"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Item is one admitted marketplace listing. ID is the marketplace-assigned
// identifier and doubles as the dedup key. Items are written once and never
// updated.
type Item struct {
	ID           int64  `json:"id" validate:"required"`
	QueryID      int64  `json:"query_id"`
	Title        string `json:"title"`
	Brand        string `json:"brand"`
	Size         string `json:"size"`
	Price        string `json:"price"`
	Currency     string `json:"currency"`
	PhotoURL     string `json:"photo_url" validate:"omitempty,url"`
	URL          string `json:"url" validate:"omitempty,url"`
	BuyURL       string `json:"buy_url"`
	CreatedAtMs  int64  `json:"created_at_ms"`
	RawTimestamp string `json:"raw_timestamp,omitempty"`
}

// Age reports how long ago the item was listed, relative to now.
func (i Item) Age(now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(i.CreatedAtMs))
}
