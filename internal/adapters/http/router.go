package http

import (
	"cmp"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/astrozzc/manageiq-automation-engine/internal/adapters/yamltree"
	"github.com/astrozzc/manageiq-automation-engine/internal/application"
	"github.com/astrozzc/manageiq-automation-engine/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

type Config struct {
	// ImportRoot is the directory that import source paths are resolved in.
	ImportRoot string
	Logger     *slog.Logger
	// Registry receives the API metrics served on /metrics. A private
	// registry is created when nil.
	Registry *prometheus.Registry
}

type Handler struct {
	service *application.ImportService
	root    string
	log     *slog.Logger
	metrics *metrics
}

func NewRouter(service *application.ImportService, cfg Config) http.Handler {
	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	h := &Handler{service: service, root: cfg.ImportRoot, log: cfg.Logger, metrics: newMetrics(reg)}
	if h.log == nil {
		h.log = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", metricsHandler(reg))
	r.Route("/api", func(api chi.Router) {
		api.Get("/domains", h.metrics.instrument("/api/domains", h.handleAPIListDomains))
		api.Post("/imports", h.metrics.instrument("/api/imports", h.handleAPIImport))
	})
	return r
}

func (h *Handler) handleAPIListDomains(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListDomains(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type apiImportRequest struct {
	// Path is relative to the import root: an export directory or a .zip.
	Path   string `json:"path"`
	Domain string `json:"domain"`
	application.ImportOptions
}

func (h *Handler) handleAPIImport(w http.ResponseWriter, r *http.Request) {
	var req apiImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid payload"})
		return
	}
	if strings.TrimSpace(req.Domain) == "" {
		req.Domain = domain.AllDomains
	}

	src, err := yamltree.OpenWithin(h.root, req.Path)
	if err != nil {
		h.metrics.recordImport(string(domain.KindOf(err)))
		writeError(w, err)
		return
	}
	defer func() { _ = src.Close() }()

	opts := req.ImportOptions
	opts.Trusted = false
	result, err := h.service.Import(r.Context(), src, req.Domain, opts)
	if err != nil {
		h.log.Warn("import request failed", "path", req.Path, "domain", req.Domain, "error", err)
		h.metrics.recordImport(string(cmp.Or(domain.KindOf(err), domain.KindStorage)))
		writeError(w, err)
		return
	}
	if opts.Preview {
		h.metrics.recordImport("preview")
	} else {
		h.metrics.recordImport("ok")
	}
	writeJSON(w, http.StatusOK, result)
}

// statusFor maps an import error kind to its HTTP status.
func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindInvalidInput:
		return http.StatusBadRequest
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindPolicyDenied:
		return http.StatusForbidden
	case domain.KindUnresolvedReference:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	payload := map[string]any{"error": err.Error()}
	if kind := domain.KindOf(err); kind != "" {
		payload["kind"] = kind
	}
	var refErr *domain.ReferenceError
	if errors.As(err, &refErr) {
		hints := make([]string, 0, len(refErr.Unresolved))
		for _, u := range refErr.Unresolved {
			hints = append(hints, u.Hint)
		}
		payload["unresolved"] = hints
	}
	writeJSON(w, statusFor(err), payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
