// Package monitor runs the check cycle: fetch each active query, admit new
// items against the watermark, time window, store, and filters, persist what
// survives, and hand the aggregate batch to the notification sink.
package monitor

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"vintedwatch/internal/client"
	"vintedwatch/internal/filter"
	"vintedwatch/internal/models"
	"vintedwatch/internal/storage"
)

// Monitor orchestrates check cycles. Construct with New; all collaborators
// are injected so tests can substitute fakes.
type Monitor struct {
	client  SearchClient
	queries QueryStore
	items   ItemStore
	params  ParamStore
	sink    Sink
	log     *slog.Logger

	listeners []Listener
	group     singleflight.Group
	now       func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

func New(sc SearchClient, queries QueryStore, items ItemStore, params ParamStore, sink Sink, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		client:  sc,
		queries: queries,
		items:   items,
		params:  params,
		sink:    sink,
		log:     logger,
		now:     time.Now,
	}
}

// cycleSettings is the parameter snapshot one cycle runs under.
type cycleSettings struct {
	perPage   int
	window    time.Duration
	banwords  []string
	allowlist map[string]bool
	notify    bool
}

// CheckAllQueries runs one full cycle over every active query. Concurrent
// triggers coalesce into the in-flight cycle rather than overlapping it:
// watermark reads and writes must never race. Returns the number of new
// items found.
func (m *Monitor) CheckAllQueries(ctx context.Context) (int, error) {
	v, err, shared := m.group.Do("cycle", func() (any, error) {
		return m.runCycle(ctx), nil
	})
	if shared {
		m.log.Debug("check trigger coalesced into running cycle")
	}
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

func (m *Monitor) runCycle(ctx context.Context) int {
	m.emit(Event{Type: EventCycleStarted})
	start := m.now()

	queries, err := m.queries.ListActiveQueries(ctx)
	if err != nil {
		m.log.Error("listing active queries failed", "error", err)
		m.emit(Event{Type: EventCycleFinished})
		return 0
	}
	if len(queries) == 0 {
		m.log.Info("no active queries, cycle ends")
		m.emit(Event{Type: EventCycleFinished})
		return 0
	}

	settings := m.loadSettings(ctx)

	// Sequential on purpose: admission depends on a monotonically advancing
	// watermark per query, and overlapping searches would share one session.
	var batch []models.Item
	for _, q := range queries {
		batch = append(batch, m.processQuery(ctx, q, settings)...)
	}

	if len(batch) > 0 && settings.notify {
		m.sink.NotifyBatch(ctx, batch)
	}

	m.log.Info("cycle finished", "queries", len(queries), "new_items", len(batch), "took", m.now().Sub(start))
	m.emit(Event{Type: EventCycleFinished, NewItems: len(batch)})
	return len(batch)
}

func (m *Monitor) processQuery(ctx context.Context, q models.Query, settings cycleSettings) []models.Item {
	raw, err := m.client.Search(ctx, q.URL, settings.perPage, 1)
	if err != nil {
		m.log.Warn("search failed, skipping query", "query_id", q.ID, "error", err)
	}
	if len(raw) == 0 {
		return nil
	}

	sp, err := client.ParseSearchURL(q.URL)
	if err != nil {
		return nil
	}

	var admitted []models.Item
	candidate := q.LastItem
	now := m.now()
	countryCache := map[int64]string{}

	// Oldest to newest, so the watermark candidate only ever moves forward.
	for i := len(raw) - 1; i >= 0; i-- {
		item, err := parseItem(raw[i], q.ID, now)
		if err != nil {
			m.log.Debug("skipping unparsable record", "query_id", q.ID, "error", err)
			continue
		}

		if item.CreatedAtMs <= candidate {
			m.emit(Event{Type: EventItemFiltered, QueryID: q.ID, ItemID: item.ID, Reason: ReasonWatermark})
			continue
		}
		if item.Age(now) > settings.window {
			m.emit(Event{Type: EventItemFiltered, QueryID: q.ID, ItemID: item.ID, Reason: ReasonTimeWindow})
			continue
		}

		// Past the timestamp gates the item counts as evaluated: the
		// watermark advances even if a later filter drops it, so it is
		// never re-examined (and never re-triggers a country lookup).
		candidate = item.CreatedAtMs

		exists, err := m.items.ItemExists(ctx, item.ID)
		if err != nil {
			m.log.Warn("existence check failed, skipping item", "item_id", item.ID, "error", err)
			continue
		}
		if exists {
			m.emit(Event{Type: EventItemFiltered, QueryID: q.ID, ItemID: item.ID, Reason: ReasonDuplicate})
			continue
		}

		if len(settings.allowlist) > 0 {
			country := m.sellerCountry(ctx, raw[i], sp.Host, countryCache)
			if !filter.AllowedCountry(country, settings.allowlist) {
				m.emit(Event{Type: EventItemFiltered, QueryID: q.ID, ItemID: item.ID, Reason: ReasonCountry})
				continue
			}
		}
		if filter.Banned(item.Title, settings.banwords) {
			m.emit(Event{Type: EventItemFiltered, QueryID: q.ID, ItemID: item.ID, Reason: ReasonBanword})
			continue
		}

		inserted, err := m.items.InsertItemIfAbsent(ctx, item)
		if err != nil {
			m.log.Warn("persisting item failed, dropping from batch", "item_id", item.ID, "error", err)
			continue
		}
		if !inserted {
			m.emit(Event{Type: EventItemFiltered, QueryID: q.ID, ItemID: item.ID, Reason: ReasonDuplicate})
			continue
		}

		admitted = append(admitted, item)
		m.emit(Event{Type: EventItemAdmitted, QueryID: q.ID, ItemID: item.ID})
	}

	if candidate > q.LastItem {
		if err := m.queries.UpdateWatermark(ctx, q.ID, candidate); err != nil {
			m.log.Warn("watermark update failed", "query_id", q.ID, "error", err)
		}
	}

	return admitted
}

// sellerCountry reads the seller country off the payload, falling back to a
// user lookup when absent. Lookups are cached for the cycle.
func (m *Monitor) sellerCountry(ctx context.Context, raw client.CatalogItem, host string, cache map[int64]string) string {
	if code := raw.User.Country(); code != "" {
		return code
	}
	if raw.User == nil || raw.User.ID == 0 {
		return client.UnknownCountry
	}
	if code, ok := cache[raw.User.ID]; ok {
		return code
	}
	code, err := m.client.UserCountry(ctx, raw.User.ID, host)
	if err != nil {
		m.log.Debug("country lookup failed", "user_id", raw.User.ID, "error", err)
	}
	cache[raw.User.ID] = code
	return code
}

func (m *Monitor) loadSettings(ctx context.Context) cycleSettings {
	perPage := m.intParam(ctx, storage.ParamItemsPerQuery, storage.DefaultItemsPerQuery)
	windowSec := m.intParam(ctx, storage.ParamTimeWindow, storage.DefaultTimeWindow)
	banwordsRaw, _ := m.params.GetParam(ctx, storage.ParamBanwords, "")
	allowRaw, _ := m.params.GetParam(ctx, storage.ParamCountryAllowlist, "")
	notify, _ := m.params.GetParam(ctx, storage.ParamNotificationsEnabled, storage.DefaultNotificationsEnabled)

	return cycleSettings{
		perPage:   perPage,
		window:    time.Duration(windowSec) * time.Second,
		banwords:  filter.ParseBanwords(banwordsRaw),
		allowlist: filter.ParseAllowlist(allowRaw),
		notify:    notify != "0",
	}
}

func (m *Monitor) intParam(ctx context.Context, key, def string) int {
	raw, err := m.params.GetParam(ctx, key, def)
	if err != nil {
		raw = def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		n, _ = strconv.Atoi(def)
	}
	return n
}

// RefreshDelay reads the configured delay between interval-mode cycles.
func (m *Monitor) RefreshDelay(ctx context.Context) time.Duration {
	sec := m.intParam(ctx, storage.ParamQueryRefreshDelay, storage.DefaultQueryRefreshDelay)
	return time.Duration(sec) * time.Second
}

// Start begins interval mode: run a cycle, wait the refresh delay, repeat.
// Starting while running is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	stopCh := make(chan struct{})
	m.stopCh = stopCh
	m.mu.Unlock()

	go func() {
		m.log.Info("interval mode started")
		for {
			if _, err := m.CheckAllQueries(ctx); err != nil {
				m.log.Error("check cycle failed", "error", err)
			}
			select {
			case <-stopCh:
				m.log.Info("interval mode stopped")
				return
			case <-ctx.Done():
				m.log.Info("interval mode cancelled")
				return
			case <-time.After(m.RefreshDelay(ctx)):
			}
		}
	}()
}

// Stop ends interval mode. Stopping while stopped is a no-op.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.running = false
	close(m.stopCh)
}

// Running reports whether interval mode is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
