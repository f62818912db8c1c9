package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"vintedwatch/internal/client"
	"vintedwatch/internal/config"
	"vintedwatch/internal/models"
	"vintedwatch/internal/monitor"
	"vintedwatch/internal/notifier"
	"vintedwatch/internal/storage"
)

type Server struct {
	monitor *monitor.Monitor
	store   *storage.Store
}

func main() {
	slog.Info("Starting marketplace watch server...")
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Critical error loading configuration", "error", err)
		os.Exit(1)
	}

	store, err := storage.Open(cfg.DBPath)
	if err != nil {
		slog.Error("Critical error opening store", "error", err, "path", cfg.DBPath)
		os.Exit(1)
	}
	defer store.Close()

	mc := client.New(client.Options{
		UserAgents: cfg.UserAgents,
		Proxies:    cfg.Proxies,
		Timeout:    cfg.HTTPTimeout,
	})
	sink := notifier.New(cfg.WebhookURL, store, nil)
	m := monitor.New(mc, store, store, store, sink, nil)
	m.Subscribe(logListener())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if cfg.AutoCheck {
		m.Start(ctx)
		defer m.Stop()
	}

	srv := &Server{monitor: m, store: store}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, `{"status":"ok"}`)
	})
	mux.HandleFunc("/check", srv.CheckHandler)
	mux.HandleFunc("/queries", srv.QueriesHandler)
	mux.HandleFunc("/queries/", srv.QueryByIDHandler)
	mux.HandleFunc("/items", srv.ItemsHandler)
	mux.HandleFunc("/settings", srv.SettingsHandler)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGTERM/SIGINT
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh
		slog.Info("Received signal, shutting down gracefully...", "signal", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		}
	}()

	slog.Info("Listening on port", "port", cfg.Port)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("Failed to listen and serve", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped.")
}

// logListener mirrors engine events into the log.
func logListener() monitor.Listener {
	return func(e monitor.Event) {
		switch e.Type {
		case monitor.EventItemAdmitted:
			slog.Info("item admitted", "query_id", e.QueryID, "item_id", e.ItemID)
		case monitor.EventItemFiltered:
			slog.Debug("item filtered", "query_id", e.QueryID, "item_id", e.ItemID, "reason", e.Reason)
		case monitor.EventCycleFinished:
			slog.Debug("cycle finished", "new_items", e.NewItems)
		}
	}
}

// CheckHandler triggers a cycle without blocking the response; the cycle may
// outlive typical proxy timeouts. Concurrent triggers coalesce in the engine.
func (s *Server) CheckHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("Panic in check cycle", "panic", rec)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
		defer cancel()
		if _, err := s.monitor.CheckAllQueries(ctx); err != nil {
			slog.Error("Error running check cycle", "error", err)
		}
	}()

	w.WriteHeader(http.StatusAccepted)
	fmt.Fprintln(w, "Check cycle started.")
}

type createQueryRequest struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

func (s *Server) QueriesHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		queries, err := s.store.ListQueries(r.Context())
		if err != nil {
			slog.Error("listing queries failed", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, queries)

	case http.MethodPost:
		var req createQueryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		if !client.IsValidSearchURL(req.URL) {
			http.Error(w, "not a recognizable catalog search URL", http.StatusBadRequest)
			return
		}
		name := strings.TrimSpace(req.Name)
		if name == "" {
			name = client.QueryNameFromURL(req.URL)
		}
		id, err := s.store.CreateQuery(r.Context(), req.URL, name)
		if err != nil {
			slog.Error("creating query failed", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"id": id, "name": name})

	case http.MethodDelete:
		if err := s.store.DeleteAllQueries(r.Context()); err != nil {
			slog.Error("deleting all queries failed", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) QueryByIDHandler(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/queries/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid query id", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		q, err := s.store.GetQuery(r.Context(), id)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if q == nil {
			http.Error(w, "query not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, q)

	case http.MethodDelete:
		err := s.store.DeleteQuery(r.Context(), id)
		if err == models.ErrQueryNotFound {
			http.Error(w, "query not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) ItemsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	queryID, _ := strconv.ParseInt(r.URL.Query().Get("query_id"), 10, 64)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := s.store.ListItems(r.Context(), queryID, limit)
	if err != nil {
		slog.Error("listing items failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// recognizedParams maps settings exposed over HTTP to their defaults.
var recognizedParams = map[string]string{
	storage.ParamItemsPerQuery:        storage.DefaultItemsPerQuery,
	storage.ParamQueryRefreshDelay:    storage.DefaultQueryRefreshDelay,
	storage.ParamMessageTemplate:      storage.DefaultMessageTemplate,
	storage.ParamBanwords:             "",
	storage.ParamCountryAllowlist:     "",
	storage.ParamTimeWindow:           storage.DefaultTimeWindow,
	storage.ParamNotificationsEnabled: storage.DefaultNotificationsEnabled,
}

type setParamRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (s *Server) SettingsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		settings := make(map[string]string, len(recognizedParams))
		for key, def := range recognizedParams {
			value, err := s.store.GetParam(r.Context(), key, def)
			if err != nil {
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			settings[key] = value
		}
		writeJSON(w, http.StatusOK, settings)

	case http.MethodPut:
		var req setParamRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		if _, ok := recognizedParams[req.Key]; !ok {
			http.Error(w, "unrecognized setting key", http.StatusBadRequest)
			return
		}
		if err := s.store.SetParam(r.Context(), req.Key, req.Value); err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding response failed", "error", err)
	}
}
