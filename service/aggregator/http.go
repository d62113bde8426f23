package aggregator

import (
	"encoding/json"
	"net/http"

	"github.com/dewey/feed-aggregator/entity"
	"github.com/dewey/feed-aggregator/feed"
	"github.com/go-chi/chi/v5"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
)

// Notice is shown instead of the list if none of the feeds of an entity could be loaded
const Notice = "The related feeds could not be loaded right now."

type itemsResponse struct {
	Items      []feed.Item `json:"items"`
	ShowImage  bool        `json:"show_image"`
	ShowSource bool        `json:"show_source"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewHandler initializes a new aggregator API handler
func NewHandler(s *Service) *chi.Mux {
	r := chi.NewRouter()

	r.Get("/entities/{type}/{id}/items", itemsHandler(s))
	r.Route("/hooks/{token}", func(r chi.Router) {
		r.Use(tokenMiddleware(s))
		r.Post("/entities/{type}/{id}/refresh", refreshHandler(s))
		r.Put("/entities/{type}/{id}", saveConfigHandler(s))
	})

	return r
}

func tokenMiddleware(s *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !s.ValidToken(chi.URLParam(r, "token")) {
				level.Warn(s.l).Log("msg", "received invalid hook token", "path", r.URL.Path)
				writeJSON(s.l, w, http.StatusUnauthorized, errorResponse{Error: "invalid token"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func itemsHandler(s *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref, ok := refFromRequest(s, w, r)
		if !ok {
			return
		}
		items, cfg, err := s.Items(r.Context(), ref)
		if err != nil {
			if errors.Is(err, ErrAllFeedsFailed) {
				writeJSON(s.l, w, http.StatusBadGateway, errorResponse{Error: Notice})
				return
			}
			level.Error(s.l).Log("err", err, "entity", ref)
			writeJSON(s.l, w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
			return
		}
		writeJSON(s.l, w, http.StatusOK, itemsResponse{
			Items:      items,
			ShowImage:  cfg.ShowImage,
			ShowSource: cfg.ShowSource,
		})
	}
}

func refreshHandler(s *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref, ok := refFromRequest(s, w, r)
		if !ok {
			return
		}
		if err := s.Invalidate(r.Context(), ref); err != nil {
			level.Error(s.l).Log("err", err, "entity", ref)
			writeJSON(s.l, w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
			return
		}
		level.Info(s.l).Log("msg", "cache refreshed", "entity", ref)
		w.WriteHeader(http.StatusAccepted)
	}
}

func saveConfigHandler(s *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref, ok := refFromRequest(s, w, r)
		if !ok {
			return
		}
		cfg := entity.Defaults()
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			writeJSON(s.l, w, http.StatusBadRequest, errorResponse{Error: "invalid configuration"})
			return
		}
		if err := s.SaveConfig(r.Context(), ref, cfg); err != nil {
			level.Error(s.l).Log("err", err, "entity", ref)
			writeJSON(s.l, w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
			return
		}
		level.Info(s.l).Log("msg", "config saved", "entity", ref, "feeds", len(cfg.URLs))
		w.WriteHeader(http.StatusNoContent)
	}
}

func refFromRequest(s *Service, w http.ResponseWriter, r *http.Request) (entity.Ref, bool) {
	ref, err := entity.NewRef(chi.URLParam(r, "type"), chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(s.l, w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return entity.Ref{}, false
	}
	return ref, true
}

func writeJSON(l log.Logger, w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		level.Debug(l).Log("msg", "error writing response", "status", status, "err", err)
	}
}
