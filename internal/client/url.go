package client

import (
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// volatileParams are per-session noise the upstream embeds in shared search
// URLs. They are stripped so the same saved query always hits the same page.
var volatileParams = []string{"time", "search_id", "disabled_personalization", "page"}

// SearchParams is a cleaned, replayable search request.
type SearchParams struct {
	Host   string
	Params url.Values
}

var bracketKeyRegex = regexp.MustCompile(`^(.+?)\[\d*\]$`)

// ParseSearchURL extracts the host and query parameters from a saved search
// URL. Bracketed array syntax (key[]=v, key[0]=v) collapses into a single
// comma-joined value. The result always orders by newest first and never
// carries volatile parameters.
func ParseSearchURL(raw string) (SearchParams, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return SearchParams{}, err
	}
	if u.Host == "" {
		return SearchParams{}, &url.Error{Op: "parse", URL: raw, Err: url.InvalidHostError("missing host")}
	}

	query := u.Query()
	keys := make([]string, 0, len(query))
	for key := range query {
		keys = append(keys, key)
	}
	// Indexed array keys (key[0], key[1], ...) must collapse in index order.
	sort.Strings(keys)

	merged := url.Values{}
	for _, key := range keys {
		base := key
		if m := bracketKeyRegex.FindStringSubmatch(key); m != nil {
			base = m[1]
		}
		for _, v := range query[key] {
			if v == "" {
				continue
			}
			if cur := merged.Get(base); cur != "" {
				merged.Set(base, cur+","+v)
			} else {
				merged.Set(base, v)
			}
		}
	}

	for _, p := range volatileParams {
		merged.Del(p)
	}
	merged.Set("order", "newest_first")

	return SearchParams{Host: u.Host, Params: merged}, nil
}

// IsValidSearchURL reports whether raw looks like a marketplace catalog URL
// worth saving. Malformed input is simply not valid, never an error.
func IsValidSearchURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if !strings.Contains(host, "vinted.") {
		return false
	}
	return strings.Contains(u.Path, "/catalog") || len(u.Query()) > 0
}

var itemIDRegex = regexp.MustCompile(`/items/(\d+)`)

// ItemIDFromURL pulls the numeric item ID out of a canonical item URL.
// Returns 0 when no ID is present.
func ItemIDFromURL(raw string) int64 {
	m := itemIDRegex.FindStringSubmatch(raw)
	if m == nil {
		return 0
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// BuyURL derives the direct checkout URL from a canonical item URL by
// splitting at the literal "items" segment. Returns "" when the URL does not
// contain that segment.
func BuyURL(itemURL string, itemID int64) string {
	if itemID == 0 {
		return ""
	}
	prefix, _, found := strings.Cut(itemURL, "items")
	if !found {
		return ""
	}
	return prefix + "transaction/buy/new?source_screen=item&transaction%5Bitem_id%5D=" + strconv.FormatInt(itemID, 10)
}

// QueryNameFromURL derives a display name for a saved search from its
// search_text parameter, falling back to "All".
func QueryNameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "All"
	}
	if text := strings.TrimSpace(u.Query().Get("search_text")); text != "" {
		return text
	}
	return "All"
}
