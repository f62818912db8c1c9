// Package client talks to the marketplace search API while defending against
// anti-bot responses: rotating user agents, cookie refreshes, bounded retries
// with error-class-specific delays, and a one-shot session reset when the
// retry budget ends on an auth failure.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"time"
)

const (
	searchAttempts = 3
	catalogPath    = "/api/v2/catalog/items"
)

// UnknownCountry is returned when the seller country cannot be determined by
// any path.
const UnknownCountry = "XX"

// Options configures a Client. Zero values fall back to sane defaults.
type Options struct {
	UserAgents []string
	Proxies    []string
	Timeout    time.Duration
	Logger     *slog.Logger
}

// Client executes search and user-lookup requests. It owns exactly one
// rotating session; callers never mutate session state directly.
type Client struct {
	http       *http.Client
	session    *session
	userAgents []string
	proxies    []string
	rnd        *rand.Rand
	log        *slog.Logger

	// Knobs overridable in tests: retry delays and the URL scheme
	// (httptest servers speak plain HTTP).
	authRetryDelay time.Duration
	transportDelay time.Duration
	backoffBase    time.Duration
	backoffMax     time.Duration
	scheme         string
}

func New(opts Options) *Client {
	uas := opts.UserAgents
	if len(uas) == 0 {
		uas = defaultUserAgents
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	jar, _ := cookiejar.New(nil)
	return &Client{
		http:           &http.Client{Timeout: timeout, Jar: jar},
		userAgents:     uas,
		proxies:        opts.Proxies,
		rnd:            rand.New(rand.NewSource(time.Now().UnixNano())),
		log:            logger,
		authRetryDelay: time.Second,
		transportDelay: 500 * time.Millisecond,
		backoffBase:    time.Second,
		backoffMax:     5 * time.Second,
		scheme:         "https",
	}
}

// Search runs one catalog search for a saved query URL. The returned slice is
// empty whenever the upstream could not be convinced to answer; the error
// says why, and is informational — callers treat it as "zero items this
// cycle", never as fatal.
func (c *Client) Search(ctx context.Context, rawURL string, perPage, page int) ([]CatalogItem, error) {
	sp, err := ParseSearchURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("unusable search URL %q: %w", rawURL, err)
	}
	c.ensureSession(sp.Host)

	params := url.Values{}
	for k, v := range sp.Params {
		params[k] = v
	}
	params.Set("page", strconv.Itoa(page))
	params.Set("per_page", strconv.Itoa(perPage))
	endpoint := c.scheme + "://" + sp.Host + catalogPath + "?" + params.Encode()

	lastStatus := 0
	refreshed := false
	for attempt := 1; attempt <= searchAttempts; attempt++ {
		status, body, err := c.doGET(ctx, endpoint)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if isTimeout(err) {
				delay := c.backoffBase << (attempt - 1)
				if delay > c.backoffMax {
					delay = c.backoffMax
				}
				c.log.Warn("search timed out", "attempt", attempt, "delay", delay)
				if !c.sleep(ctx, delay) {
					return nil, ctx.Err()
				}
			} else {
				c.log.Warn("search transport error", "attempt", attempt, "error", err)
				if !c.sleep(ctx, c.transportDelay) {
					return nil, ctx.Err()
				}
			}
			continue
		}

		lastStatus = status
		switch {
		case status == http.StatusOK:
			return decodeItems(body), nil
		case status == http.StatusUnauthorized || status == http.StatusNotFound:
			// One refresh per call; repeat rejections just wait and retry.
			if !refreshed {
				c.log.Info("search rejected, refreshing cookies", "status", status, "attempt", attempt)
				c.RefreshCookies(ctx)
				refreshed = true
			}
			if attempt < searchAttempts && !c.sleep(ctx, c.authRetryDelay) {
				return nil, ctx.Err()
			}
		default:
			c.log.Warn("search returned unexpected status", "status", status, "attempt", attempt)
		}
	}

	// One-shot escape valve: a final auth-flavored rejection gets a full
	// session reset and exactly one more attempt, not a new retry budget.
	if lastStatus == http.StatusUnauthorized || lastStatus == http.StatusForbidden {
		c.rotateSession()
		c.RefreshCookies(ctx)
		if !c.sleep(ctx, c.authRetryDelay) {
			return nil, ctx.Err()
		}
		status, body, err := c.doGET(ctx, endpoint)
		if err == nil && status == http.StatusOK {
			return decodeItems(body), nil
		}
		if err == nil {
			lastStatus = status
		}
	}

	return nil, fmt.Errorf("search exhausted %d attempts (last status %d)", searchAttempts, lastStatus)
}

// UserCountry looks up a seller's country code. On rate limiting it falls
// back to the seller's first listed item. Always usable: the code defaults to
// UnknownCountry and the error is informational.
func (c *Client) UserCountry(ctx context.Context, userID int64, host string) (string, error) {
	if userID == 0 || host == "" {
		return UnknownCountry, nil
	}
	c.ensureSession(host)

	userURL := fmt.Sprintf("%s://%s/api/v2/users/%d?localize=false", c.scheme, host, userID)
	status, body, err := c.doGET(ctx, userURL)
	if err != nil {
		return UnknownCountry, fmt.Errorf("user lookup: %w", err)
	}

	switch status {
	case http.StatusOK:
		var resp userResponse
		if jsonErr := json.Unmarshal(body, &resp); jsonErr == nil {
			if code := resp.User.Country(); code != "" {
				return code, nil
			}
		}
		return UnknownCountry, nil
	case http.StatusTooManyRequests:
		return c.countryFromFirstItem(ctx, userID, host)
	default:
		return UnknownCountry, fmt.Errorf("user lookup status %d", status)
	}
}

func (c *Client) countryFromFirstItem(ctx context.Context, userID int64, host string) (string, error) {
	itemsURL := fmt.Sprintf("%s://%s/api/v2/users/%d/items?page=1&per_page=1", c.scheme, host, userID)
	status, body, err := c.doGET(ctx, itemsURL)
	if err != nil {
		return UnknownCountry, fmt.Errorf("user items fallback: %w", err)
	}
	if status != http.StatusOK {
		return UnknownCountry, fmt.Errorf("user items fallback status %d", status)
	}
	var resp catalogResponse
	if jsonErr := json.Unmarshal(body, &resp); jsonErr != nil || len(resp.Items) == 0 {
		return UnknownCountry, nil
	}
	if code := resp.Items[0].User.Country(); code != "" {
		return code, nil
	}
	return UnknownCountry, nil
}

// RefreshCookies issues a HEAD request to the site root so the jar picks up a
// fresh session cookie set. Failures are logged and reported, never raised.
func (c *Client) RefreshCookies(ctx context.Context) bool {
	if c.session == nil {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.scheme+"://"+c.session.host+"/", nil)
	if err != nil {
		return false
	}
	c.applyHeaders(req)
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("cookie refresh failed", "host", c.session.host, "error", err)
		return false
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return true
}

func (c *Client) doGET(ctx context.Context, rawURL string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, nil, err
	}
	c.applyHeaders(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

func (c *Client) applyHeaders(req *http.Request) {
	if c.session == nil {
		return
	}
	for k, v := range c.session.headers {
		if k == "Host" {
			req.Host = v
			continue
		}
		req.Header.Set(k, v)
	}
}

// sleep waits for d or until the context is done. Reports false on cancel.
func (c *Client) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func decodeItems(body []byte) []CatalogItem {
	var resp catalogResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil
	}
	return resp.Items
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
