// Package notifier delivers new-item batches to a webhook. It is one
// implementation of the engine's sink; the engine itself never retries
// delivery, so all remediation lives here.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"vintedwatch/internal/models"
	"vintedwatch/internal/storage"
)

// Discord caps embeds per webhook message.
const maxEmbedsPerMessage = 10

// Settings provides the mutable message template.
type Settings interface {
	GetParam(ctx context.Context, key, def string) (string, error)
}

type Client struct {
	webhookURL  string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	settings    Settings
	log         *slog.Logger
}

func New(webhookURL string, settings Settings, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		webhookURL:  webhookURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		rateLimiter: rate.NewLimiter(rate.Every(2*time.Second), 5),
		settings:    settings,
		log:         logger,
	}
}

type webhookPayload struct {
	Content string  `json:"content,omitempty"`
	Embeds  []embed `json:"embeds"`
}

type embedThumbnail struct {
	URL string `json:"url,omitempty"`
}

type embed struct {
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	URL         string         `json:"url,omitempty"`
	Timestamp   string         `json:"timestamp,omitempty"`
	Thumbnail   embedThumbnail `json:"thumbnail,omitempty"`
}

// NotifyBatch sends every item in one or more webhook messages. Failures are
// logged and swallowed: a missed notification is not worth failing a cycle.
func (c *Client) NotifyBatch(ctx context.Context, items []models.Item) {
	if c.webhookURL == "" || len(items) == 0 {
		return
	}

	template := storage.DefaultMessageTemplate
	if c.settings != nil {
		if t, err := c.settings.GetParam(ctx, storage.ParamMessageTemplate, storage.DefaultMessageTemplate); err == nil {
			template = t
		}
	}

	embeds := make([]embed, 0, len(items))
	for _, item := range items {
		embeds = append(embeds, itemToEmbed(item, template))
	}

	for start := 0; start < len(embeds); start += maxEmbedsPerMessage {
		end := min(start+maxEmbedsPerMessage, len(embeds))
		if err := c.send(ctx, webhookPayload{Embeds: embeds[start:end]}); err != nil {
			c.log.Warn("webhook delivery failed", "embeds", end-start, "error", err)
		}
	}
}

// RenderMessage fills the template placeholders from an item.
func RenderMessage(template string, item models.Item) string {
	price := strings.TrimSpace(item.Price + " " + item.Currency)
	r := strings.NewReplacer(
		"{title}", item.Title,
		"{price}", price,
		"{brand}", item.Brand,
		"{size}", item.Size,
	)
	return r.Replace(template)
}

func itemToEmbed(item models.Item, template string) embed {
	e := embed{
		Title:       item.Title,
		Description: RenderMessage(template, item),
		URL:         item.URL,
	}
	if item.BuyURL != "" {
		e.Description += fmt.Sprintf("\n[Buy now](%s)", item.BuyURL)
	}
	if item.PhotoURL != "" {
		e.Thumbnail.URL = item.PhotoURL
	}
	if item.CreatedAtMs > 0 {
		e.Timestamp = time.UnixMilli(item.CreatedAtMs).UTC().Format(time.RFC3339)
	}
	return e
}

func (c *Client) send(ctx context.Context, payload webhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	const maxRetries = 2
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}

		backoff := retryBackoff(resp, attempt)
		lastErr = fmt.Errorf("webhook status %s: %s", resp.Status, string(respBody))
		if backoff == 0 {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("webhook failed after %d attempts: %w", maxRetries+1, lastErr)
}

// retryBackoff decides whether and how long to wait before retrying a failed
// delivery. 429 honors Retry-After; 5xx backs off exponentially; other 4xx
// are permanent and get no retry (zero backoff).
func retryBackoff(resp *http.Response, attempt int) time.Duration {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if sec, err := strconv.Atoi(ra); err == nil && sec > 0 {
				return time.Duration(sec) * time.Second
			}
		}
		return time.Second
	case resp.StatusCode >= 500:
		return time.Duration(1<<attempt) * time.Second
	default:
		return 0
	}
}
