package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/haukened/rr-block/internal/block/common/log"
	"github.com/haukened/rr-block/internal/block/domain"
	"github.com/haukened/rr-block/internal/block/repos/parsers"
	"github.com/haukened/rr-block/internal/block/repos/rulestore"
	"github.com/haukened/rr-block/internal/block/services/filter"
	"github.com/haukened/rr-block/internal/block/services/rules"
)

// RuleService is the rule list as seen by the management API.
type RuleService interface {
	List() []domain.BlockRule
	Get(id string) (domain.BlockRule, error)
	Add(rawURL string) (domain.BlockRule, error)
	Toggle(id string) (domain.BlockRule, error)
	Remove(id string) error
	Import(r io.Reader, format parsers.Format, source string) (rules.ImportResult, error)
}

// FilterView is the read side of the request filter.
type FilterView interface {
	Decider
	Stats() filter.FilterStats
}

// StoreStatser reports persistence metadata.
type StoreStatser interface {
	Stats() rulestore.StoreStats
}

// APIOptions configures the management API.
type APIOptions struct {
	Rules  RuleService
	Filter FilterView
	Store  StoreStatser // optional

	// MaxImportBytes caps the body of an import request.
	MaxImportBytes int64

	// DecideTimeout bounds how long a decision request waits for rules.
	DecideTimeout time.Duration

	Logger log.Logger
}

// AddRuleRequest is the body of POST /v1/rules.
type AddRuleRequest struct {
	URL string `json:"url"`
}

// StatsResponse is the body of GET /v1/stats.
type StatsResponse struct {
	Filter filter.FilterStats    `json:"filter"`
	Store  *rulestore.StoreStats `json:"store,omitempty"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
	Ready  bool   `json:"ready"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
}

type api struct {
	opts   APIOptions
	logger log.Logger
}

// NewAPIHandler returns the management API routes.
func NewAPIHandler(opts APIOptions) http.Handler {
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	if opts.MaxImportBytes <= 0 {
		opts.MaxImportBytes = 10 << 20
	}
	if opts.DecideTimeout <= 0 {
		opts.DecideTimeout = 5 * time.Second
	}
	a := &api{opts: opts, logger: opts.Logger}

	router := httprouter.New()
	router.GET("/healthz", a.health)
	router.GET("/v1/rules", a.listRules)
	router.POST("/v1/rules", a.addRule)
	router.GET("/v1/rules/:id", a.getRule)
	router.POST("/v1/rules/:id/toggle", a.toggleRule)
	router.DELETE("/v1/rules/:id", a.removeRule)
	router.POST("/v1/import", a.importRules)
	router.GET("/v1/decision", a.decision)
	router.GET("/v1/stats", a.stats)
	router.PanicHandler = func(w http.ResponseWriter, r *http.Request, v any) {
		a.logger.Error(map[string]any{"path": r.URL.Path, "panic": v}, "API handler panic")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
	return router
}

// NewAPITransport returns a ServerTransport serving the management API on addr.
func NewAPITransport(addr string, opts APIOptions) ServerTransport {
	return NewHTTPTransport(TransportAPI, addr, NewAPIHandler(opts), opts.Logger)
}

func (a *api) health(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Ready: a.opts.Filter.Stats().Ready})
}

func (a *api) listRules(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, a.opts.Rules.List())
}

func (a *api) addRule(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req AddRuleRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	rule, err := a.opts.Rules.Add(req.URL)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

func (a *api) getRule(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	rule, err := a.opts.Rules.Get(ps.ByName("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (a *api) toggleRule(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	rule, err := a.opts.Rules.Toggle(ps.ByName("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (a *api) removeRule(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := a.opts.Rules.Remove(ps.ByName("id")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) importRules(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	format, err := parsers.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	source := r.URL.Query().Get("source")
	if source == "" {
		source = "api"
	}
	body := http.MaxBytesReader(w, r.Body, a.opts.MaxImportBytes)
	res, err := a.opts.Rules.Import(body, format, source)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, err.Error())
			return
		}
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *api) decision(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	target := strings.TrimSpace(r.URL.Query().Get("url"))
	if target == "" {
		writeError(w, http.StatusBadRequest, "missing url parameter")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), a.opts.DecideTimeout)
	defer cancel()
	d, err := a.opts.Filter.Decide(ctx, target)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "blocking rules are not loaded yet")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (a *api) stats(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	resp := StatsResponse{Filter: a.opts.Filter.Stats()}
	if a.opts.Store != nil {
		st := a.opts.Store.Stats()
		resp.Store = &st
	}
	writeJSON(w, http.StatusOK, resp)
}

// fail maps service errors onto status codes.
func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case domain.IsValidationError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		a.logger.Error(map[string]any{
			"method": r.Method,
			"path":   r.URL.Path,
			"error":  err.Error(),
		}, "API request failed")
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
