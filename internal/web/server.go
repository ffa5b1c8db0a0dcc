// Package web serves the operator UI and JSON API: collection runs against a
// switch, ISE endpoint group reassignment, the latest snapshot and the
// Prometheus endpoint, all on one chi router.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dagolovach/ise-session-manager/internal/config"
	"github.com/dagolovach/ise-session-manager/internal/metrics"
	"github.com/dagolovach/ise-session-manager/internal/model"
)

//go:embed templates/*.html
var templatesFS embed.FS

// pageNames lists the page templates parsed onto the shared layout.
var pageNames = []string{"index", "result", "mac", "update", "login"}

// SessionCollector runs one collection against a switch.
type SessionCollector interface {
	Collect(ctx context.Context, target string) (*model.CollectionResult, error)
}

// EndpointDirectory is the slice of the ISE client the UI drives.
type EndpointDirectory interface {
	GetEndpointGroups(ctx context.Context) (map[string]string, error)
	GetEndpointGroupID(ctx context.Context, mac string) (string, error)
	UpdateEndpointGroup(ctx context.Context, mac, groupID string) error
}

// SnapshotStore persists and serves the latest collection result.
type SnapshotStore interface {
	Write(result *model.CollectionResult) error
	Load() (*model.CollectionResult, error)
	Dir() string
}

// DeviceInventory feeds the landing-page device dropdown.
type DeviceInventory interface {
	Targets() []model.Target
	Resolve(name string) (model.Target, bool)
}

// ResultPublisher pushes completed runs to downstream consumers.
type ResultPublisher interface {
	Publish(result *model.CollectionResult) error
}

// Server hosts the operator UI and API.
type Server struct {
	cfg       *config.Config
	collector SessionCollector
	directory EndpointDirectory
	snapshots SnapshotStore
	inventory DeviceInventory
	publisher ResultPublisher
	metrics   *metrics.Metrics
	logger    *slog.Logger

	secret []byte
	pages  map[string]*template.Template
	router *chi.Mux
}

// viewData is the shared payload handed to every page template.
type viewData struct {
	AuthEnabled  bool
	HideNav      bool
	Flash        string
	FlashKind    string // ok|err|""
	Devices      []model.Target
	Target       string
	Result       *model.CollectionResult
	MAC          string
	MACInvalid   bool
	CurrentGroup string
	Groups       map[string]string
	UpdateOK     bool
}

// NewServer wires the web layer. The publisher and metrics may be nil; the
// other collaborators are required.
func NewServer(cfg *config.Config, collector SessionCollector, directory EndpointDirectory, snapshots SnapshotStore, inventory DeviceInventory, publisher ResultPublisher, m *metrics.Metrics, logger *slog.Logger) (*Server, error) {
	pages, err := parsePages()
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	secret := []byte(cfg.JWTSecret)
	if len(secret) == 0 {
		secret, err = newRandomSecret(32)
		if err != nil {
			return nil, fmt.Errorf("failed to generate session secret: %w", err)
		}
		if cfg.UIPassword != "" {
			logger.Warn("No JWT secret configured, operator sessions will not survive a restart")
		}
	}

	s := &Server{
		cfg:       cfg,
		collector: collector,
		directory: directory,
		snapshots: snapshots,
		inventory: inventory,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		secret:    secret,
		pages:     pages,
		router:    chi.NewRouter(),
	}
	s.routes()
	return s, nil
}

// parsePages parses each page template onto its own copy of the layout.
func parsePages() (map[string]*template.Template, error) {
	pages := make(map[string]*template.Template)
	for _, page := range pageNames {
		t, err := template.ParseFS(templatesFS, "templates/layout.html", "templates/"+page+".html")
		if err != nil {
			return nil, err
		}
		pages[page] = t
	}
	return pages, nil
}

// routes wires the HTTP surface.
func (s *Server) routes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())
	s.router.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(s.snapshots.Dir()))))

	if s.authEnabled() {
		s.router.Get("/login", s.handleLoginPage)
		s.router.Post("/login", s.handleLogin)
	}

	s.router.Group(func(r chi.Router) {
		if s.authEnabled() {
			r.Use(s.requireAuth)
			r.Post("/logout", s.handleLogout)
		}
		r.Get("/", s.handleIndex)
		r.Post("/check-result", s.handleCheckResult)
		r.Get("/mac/{mac}", s.handleMACPage)
		r.Post("/endpoint", s.handleEndpointSearch)
		r.Post("/update/{mac}", s.handleUpdateGroup)
		r.Get("/api/snapshot", s.handleSnapshot)
	})
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// renderPage executes one embedded page template.
func (s *Server) renderPage(w http.ResponseWriter, page string, data *viewData) {
	t, ok := s.pages[page]
	if !ok {
		s.logger.Error("Unknown page template", "page", page)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	data.AuthEnabled = s.authEnabled()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := t.Execute(w, data); err != nil {
		s.logger.Error("Failed to render page", "page", page, "error", err)
	}
}

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, v any, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
