package client

import (
	"encoding/json"
	"strings"
)

// CatalogItem is one raw record from the catalog search endpoint. Fields are
// kept permissive: the upstream payload shifts between locales and app
// versions, and a record that fails to parse should only cost itself.
type CatalogItem struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	BrandTitle  string  `json:"brand_title"`
	SizeTitle   string  `json:"size_title"`
	Price       Price   `json:"price"`
	URL         string  `json:"url"`
	Photo       *Photo  `json:"photo"`
	User        *Seller `json:"user"`
	CreatedAtTs int64   `json:"created_at_ts"`
}

// Price arrives either as an object or, on some locales, as a bare string.
type Price struct {
	Amount         string `json:"amount"`
	CurrencySymbol string `json:"currency_symbol"`
	CurrencyCode   string `json:"currency_code"`
}

func (p *Price) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		p.Amount = strings.TrimSpace(s)
		return nil
	}
	type alias Price
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*p = Price(a)
	return nil
}

// Symbol returns the display currency, preferring the symbol over the code.
func (p Price) Symbol() string {
	if p.CurrencySymbol != "" {
		return p.CurrencySymbol
	}
	return p.CurrencyCode
}

type Photo struct {
	URL            string          `json:"url"`
	HighResolution *HighResolution `json:"high_resolution"`
}

type HighResolution struct {
	Timestamp int64 `json:"timestamp"`
}

type Seller struct {
	ID             int64  `json:"id"`
	CountryISOCode string `json:"country_iso_code"`
	CountryCode    string `json:"country_code"`
}

// Country returns whichever country field the payload carried, or "".
func (s *Seller) Country() string {
	if s == nil {
		return ""
	}
	if s.CountryISOCode != "" {
		return s.CountryISOCode
	}
	return s.CountryCode
}

type catalogResponse struct {
	Items []CatalogItem `json:"items"`
}

type userResponse struct {
	User Seller `json:"user"`
}
