// Package filter holds the pure admission checks applied to parsed items.
// Nothing here touches the network or the stores.
package filter

import "strings"

// BanwordDelimiter separates segments in the stored banword setting.
const BanwordDelimiter = "|||"

// ParseBanwords splits the stored banword setting into a cleaned list:
// segments are trimmed and case-folded, empty segments are dropped.
func ParseBanwords(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var words []string
	for _, seg := range strings.Split(raw, BanwordDelimiter) {
		seg = strings.ToLower(strings.TrimSpace(seg))
		if seg != "" {
			words = append(words, seg)
		}
	}
	return words
}

// ParseAllowlist splits a comma-separated country code setting into an
// upper-cased set. Empty input means no restriction.
func ParseAllowlist(raw string) map[string]bool {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	allow := make(map[string]bool)
	for _, seg := range strings.Split(raw, ",") {
		seg = strings.ToUpper(strings.TrimSpace(seg))
		if seg != "" {
			allow[seg] = true
		}
	}
	if len(allow) == 0 {
		return nil
	}
	return allow
}

// AllowedCountry reports whether a seller country passes the allowlist.
// An empty allowlist admits everything.
func AllowedCountry(code string, allowlist map[string]bool) bool {
	if len(allowlist) == 0 {
		return true
	}
	return allowlist[strings.ToUpper(strings.TrimSpace(code))]
}

// Banned reports whether any banword is a substring of the case-folded title.
// Banwords are expected to be already folded by ParseBanwords.
func Banned(title string, banwords []string) bool {
	if len(banwords) == 0 {
		return false
	}
	folded := strings.ToLower(title)
	for _, w := range banwords {
		if strings.Contains(folded, w) {
			return true
		}
	}
	return false
}
