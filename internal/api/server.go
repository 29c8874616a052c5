package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagecache-warmer/internal/config"
	"github.com/JakeFAU/pagecache-warmer/internal/metrics"
	"github.com/JakeFAU/pagecache-warmer/internal/report"
	"github.com/JakeFAU/pagecache-warmer/internal/schedule"
	"github.com/JakeFAU/pagecache-warmer/internal/warmer"
)

// Warmer is the engine surface the API exposes.
type Warmer interface {
	IsEnabled() bool
	WarmOne(ctx context.Context, candidate warmer.CandidateURL) warmer.WarmResult
	CheckPresence(ctx context.Context, rawURL string) warmer.PresenceStatus
}

// URLCollector lists and invalidates candidate URLs.
type URLCollector interface {
	Collect(ctx context.Context, siteID int) ([]warmer.CandidateURL, error)
	Invalidate(ctx context.Context) error
}

// RunTrigger starts background warming runs.
type RunTrigger interface {
	TriggerSite(ctx context.Context, siteID int) (string, error)
}

// RunLookup finds reports of finished runs.
type RunLookup interface {
	Find(runID string) (report.RunReport, bool)
}

// Sites resolves the configured storefronts. Match confines single-URL
// warming and presence checks to storefront URLs.
type Sites interface {
	warmer.SiteDirectory
	Match(rawURL string) (warmer.Site, bool)
}

// Deps are the collaborators the handlers call. Runs may be nil, in which case
// run lookups answer 404.
type Deps struct {
	Warmer    Warmer
	Collector URLCollector
	Sites     Sites
	Trigger   RunTrigger
	Runs      RunLookup
}

// Server wires HTTP handlers to the warming engine.
type Server struct {
	router chi.Router
	deps   Deps
	cfg    config.Config
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	s := &Server{
		deps:   deps,
		cfg:    cfg,
		logger: logger.Named("api"),
	}

	timeout := time.Duration(cfg.Server.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(timeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Get("/schedules", s.listSchedules)
		r.Get("/sites", s.listSites)
		r.Route("/sites/{site_id}", func(r chi.Router) {
			r.Get("/urls", s.listURLs)
			r.Post("/warm", s.warmSite)
		})
		// Collections share one cache tag, so invalidation covers every site.
		r.Post("/urls/invalidate", s.invalidateURLs)
		r.Get("/runs/{run_id}", s.getRun)
		r.Post("/warm", s.warmURL)
		r.Get("/presence", s.presence)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready", "enabled": s.deps.Warmer.IsEnabled()})
}

func (s *Server) listSchedules(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"presets": schedule.Presets})
}

func (s *Server) listSites(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sites": s.deps.Sites.ListSites()})
}

func (s *Server) listURLs(w http.ResponseWriter, r *http.Request) {
	siteID, ok := siteParam(w, r)
	if !ok {
		return
	}
	urls, err := s.deps.Collector.Collect(r.Context(), siteID)
	if err != nil {
		writeSiteError(w, err)
		return
	}
	if urls == nil {
		urls = []warmer.CandidateURL{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"site_id": siteID, "count": len(urls), "urls": urls})
}

func (s *Server) invalidateURLs(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Collector.Invalidate(r.Context()); err != nil {
		s.logger.Error("invalidate url collections", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to invalidate url collections")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (s *Server) warmSite(w http.ResponseWriter, r *http.Request) {
	siteID, ok := siteParam(w, r)
	if !ok {
		return
	}
	runID, err := s.deps.Trigger.TriggerSite(r.Context(), siteID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]any{"run_id": runID, "site_id": siteID})
	case errors.Is(err, schedule.ErrDisabled):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, schedule.ErrRunInProgress):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeSiteError(w, err)
	}
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	if s.deps.Runs == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	rep, ok := s.deps.Runs.Find(runID)
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

type warmRequest struct {
	URL  string         `json:"url"`
	Type warmer.URLType `json:"type"`
}

func (s *Server) warmURL(w http.ResponseWriter, r *http.Request) {
	if !s.deps.Warmer.IsEnabled() {
		writeError(w, http.StatusConflict, "cache warmer is disabled")
		return
	}
	var req warmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if !s.storefrontURL(w, req.URL) {
		return
	}
	if req.Type == "" {
		req.Type = warmer.URLTypeManual
	}
	result := s.deps.Warmer.WarmOne(r.Context(), warmer.CandidateURL{URL: req.URL, Type: req.Type})
	writeJSON(w, http.StatusOK, result)
}

type presenceResponse struct {
	URL    string                `json:"url"`
	Cached bool                  `json:"cached"`
	Source warmer.PresenceSource `json:"source,omitempty"`
	Key    string                `json:"key,omitempty"`
	Error  string                `json:"error,omitempty"`
}

func (s *Server) presence(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	if !s.storefrontURL(w, raw) {
		return
	}
	status := s.deps.Warmer.CheckPresence(r.Context(), raw)
	writeJSON(w, http.StatusOK, presenceResponse{
		URL:    raw,
		Cached: status.Cached,
		Source: status.Source,
		Key:    status.Key,
		Error:  status.Error(),
	})
}

// storefrontURL accepts only absolute URLs under a configured site's base
// URL and writes the error response otherwise.
func (s *Server) storefrontURL(w http.ResponseWriter, raw string) bool {
	if err := validateURL(raw); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	if _, ok := s.deps.Sites.Match(raw); !ok {
		writeError(w, http.StatusUnprocessableEntity, "url does not belong to a configured site")
		return false
	}
	return true
}

func siteParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "site_id"))
	if err != nil || id < 0 {
		writeError(w, http.StatusBadRequest, "invalid site_id")
		return 0, false
	}
	return id, true
}

func validateURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return errors.New("url required")
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("url must be an absolute http(s) URL")
	}
	return nil
}

func writeSiteError(w http.ResponseWriter, err error) {
	if errors.Is(err, warmer.ErrSiteNotFound) {
		writeError(w, http.StatusNotFound, "site not found")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
