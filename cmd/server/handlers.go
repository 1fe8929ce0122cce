package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"optionchain/internal/aggregate"
	"optionchain/internal/logging"
	"optionchain/internal/notify"
	"optionchain/internal/provider"
	"optionchain/internal/provider/fallback"
)

type resolver interface {
	Resolve(ctx context.Context) fallback.Result
}

type latestReader interface {
	Latest(ctx context.Context) (*provider.Snapshot, error)
}

type broadcaster interface {
	Broadcast(msg notify.Message)
}

type api struct {
	resolver    resolver
	store       latestReader
	hub         broadcaster
	log         *zap.Logger
	readTimeout time.Duration
}

// scrapeResponse keeps the labels at the top level next to the snapshot.
type scrapeResponse struct {
	Message      string            `json:"message"`
	Data         provider.Snapshot `json:"data"`
	Error        string            `json:"error,omitempty"`
	IsMockData   bool              `json:"isMockData,omitempty"`
	IsRecentData bool              `json:"isRecentData,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (a *api) routes(corsOrigins []string, ws http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(withRequestIDHeader)
	r.Use(middleware.RealIP)
	r.Use(logging.Requests(a.log))
	r.Use(recoverPanic(a.log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if ws != nil {
		r.Handle("/ws", ws)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(withJSONHeaders)
		r.Use(withGzip)
		// the live pipeline carries its own deadline
		r.Get("/scrape-option-chain", a.handleScrape)
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(a.readTimeout))
			r.Get("/option-chain/latest", a.handleLatest)
			r.Get("/option-chain/summary", a.handleSummary)
		})
	})
	return r
}

// handleScrape always answers 200: the resolver degrades instead of failing.
func (a *api) handleScrape(w http.ResponseWriter, r *http.Request) {
	res := a.resolver.Resolve(r.Context())
	if a.hub != nil {
		a.hub.Broadcast(snapshotMessage(res))
	}
	writeJSON(w, http.StatusOK, newScrapeResponse(res))
}

func (a *api) handleLatest(w http.ResponseWriter, r *http.Request) {
	snap, ok := a.latest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *api) handleSummary(w http.ResponseWriter, r *http.Request) {
	snap, ok := a.latest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, aggregate.Summarize(*snap))
}

func (a *api) latest(w http.ResponseWriter, r *http.Request) (*provider.Snapshot, bool) {
	snap, err := a.store.Latest(r.Context())
	if err != nil {
		a.log.Error("read latest snapshot", zap.Error(err), zap.String("request_id", middleware.GetReqID(r.Context())))
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "failed to read stored option chain"})
		return nil, false
	}
	if snap == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no option chain stored yet"})
		return nil, false
	}
	return snap, true
}

func newScrapeResponse(res fallback.Result) scrapeResponse {
	return scrapeResponse{
		Message:      res.Message,
		Data:         res.Snapshot,
		Error:        res.Snapshot.Error,
		IsMockData:   res.Snapshot.IsMockData,
		IsRecentData: res.Snapshot.IsRecentData,
	}
}

func snapshotMessage(res fallback.Result) notify.Message {
	return notify.Message{Type: "snapshot", Message: res.Message, Data: res.Snapshot}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
