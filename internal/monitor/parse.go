package monitor

import (
	"fmt"
	"strconv"
	"time"

	"vintedwatch/internal/client"
	"vintedwatch/internal/models"
)

// parseItem turns one raw catalog record into an Item owned by queryID.
// The listing timestamp comes preferentially from the high-resolution photo
// timestamp, then the top-level creation timestamp (both seconds, scaled to
// ms), then "now". A record without an ID is unusable and skipped.
func parseItem(raw client.CatalogItem, queryID int64, now time.Time) (models.Item, error) {
	if raw.ID == 0 {
		return models.Item{}, fmt.Errorf("catalog record missing item id")
	}

	createdMs := now.UnixMilli()
	rawTs := ""
	switch {
	case raw.Photo != nil && raw.Photo.HighResolution != nil && raw.Photo.HighResolution.Timestamp > 0:
		createdMs = raw.Photo.HighResolution.Timestamp * 1000
		rawTs = strconv.FormatInt(raw.Photo.HighResolution.Timestamp, 10)
	case raw.CreatedAtTs > 0:
		createdMs = raw.CreatedAtTs * 1000
		rawTs = strconv.FormatInt(raw.CreatedAtTs, 10)
	}

	photoURL := ""
	if raw.Photo != nil {
		photoURL = raw.Photo.URL
	}

	return models.Item{
		ID:           raw.ID,
		QueryID:      queryID,
		Title:        raw.Title,
		Brand:        raw.BrandTitle,
		Size:         raw.SizeTitle,
		Price:        raw.Price.Amount,
		Currency:     raw.Price.Symbol(),
		PhotoURL:     photoURL,
		URL:          raw.URL,
		BuyURL:       client.BuyURL(raw.URL, raw.ID),
		CreatedAtMs:  createdMs,
		RawTimestamp: rawTs,
	}, nil
}
