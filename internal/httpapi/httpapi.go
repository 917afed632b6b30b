// Package httpapi exposes the gateway's single POST /query endpoint. It
// owns request parsing, same-origin/service-key authentication, the
// per-request deadline, and the error-type-to-HTTP-status mapping; all
// query semantics live in internal/coordinator.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	gwerrors "github.com/Aiuser8/thallos-llm-service/internal/errors"
	"github.com/Aiuser8/thallos-llm-service/internal/coordinator"
	"github.com/Aiuser8/thallos-llm-service/internal/logging"
)

// Coordinator is the narrow capability the handler needs.
type Coordinator interface {
	Handle(ctx context.Context, question string) (coordinator.Response, error)
}

// Handler serves POST /query and GET /healthz.
type Handler struct {
	Coordinator     Coordinator
	ServiceAPIKey   string
	RequestDeadline time.Duration
}

// New builds a Handler. serviceAPIKey may be empty only in local/dev
// deployments where same-origin is always assumed to hold.
func New(coord Coordinator, serviceAPIKey string, requestDeadline time.Duration) *Handler {
	return &Handler{
		Coordinator:     coord,
		ServiceAPIKey:   serviceAPIKey,
		RequestDeadline: requestDeadline,
	}
}

type queryRequest struct {
	Question string `json:"question"`
	Minimal  bool   `json:"minimal"`
}

type queryResponseFull struct {
	OK     bool             `json:"ok"`
	Answer string           `json:"answer"`
	SQL    string           `json:"sql"`
	Rows   []map[string]any `json:"rows"`
}

type queryResponseMinimal struct {
	OK     bool   `json:"ok"`
	Answer string `json:"answer"`
}

type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	SQL   string `json:"sql,omitempty"`
}

// Routes registers the gateway's HTTP surface on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/query", h.handleQuery)
	mux.HandleFunc("/healthz", h.handleHealthz)
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	reqLog := logging.WithRequestID(logging.NewRequestID())

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}

	if !h.authorized(r) {
		logging.Warnf("query rejected: unauthorized remote=%s", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, "unauthorized", "")
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "")
		return
	}

	question := strings.TrimSpace(req.Question)
	if question == "" {
		writeError(w, http.StatusBadRequest, "question is required", "")
		return
	}

	if r.Header.Get("x-minimal") == "1" {
		req.Minimal = true
	}

	deadline := h.RequestDeadline
	if deadline <= 0 {
		deadline = 120 * time.Second
	}

	ctx, cancel := context.WithTimeout(r.Context(), deadline)
	defer cancel()

	resp, err := h.Coordinator.Handle(ctx, question)
	if err != nil {
		h.writeCoordinatorError(w, err)
		reqLog.WithField("duration", time.Since(start)).ErrorWithErr("query failed", err)
		return
	}

	writeSuccess(w, resp, req.Minimal)
	reqLog.WithFields(map[string]interface{}{
		"duration": time.Since(start),
		"rows":     len(resp.Rows),
	}).Info("query ok")
}

// authorized implements the spec's dual policy: a matching x-service-key
// header always passes; absent that, a same-origin request (Referer or
// Origin host equals the Host header) is also accepted.
func (h *Handler) authorized(r *http.Request) bool {
	if h.ServiceAPIKey != "" {
		if r.Header.Get("x-service-key") == h.ServiceAPIKey {
			return true
		}
	}

	return isSameOrigin(r)
}

func isSameOrigin(r *http.Request) bool {
	host := r.Host

	for _, header := range []string{"Origin", "Referer"} {
		raw := r.Header.Get(header)
		if raw == "" {
			continue
		}

		u, err := url.Parse(raw)
		if err != nil {
			continue
		}

		if u.Host == host {
			return true
		}
	}

	return false
}

func (h *Handler) writeCoordinatorError(w http.ResponseWriter, err error) {
	var gerr *gwerrors.Error
	if !errors.As(err, &gerr) {
		writeError(w, http.StatusInternalServerError, "internal error", "")
		return
	}

	switch gerr.Type {
	case gwerrors.ErrTypeBadJSON, gwerrors.ErrTypeMissingQuestion:
		writeError(w, http.StatusBadRequest, gerr.Message, "")
	case gwerrors.ErrTypeGuardRejection:
		writeGuardError(w, gerr)
	case gwerrors.ErrTypeUnauthorized:
		writeError(w, http.StatusUnauthorized, gerr.Message, "")
	case gwerrors.ErrTypeMethodNotAllowed:
		writeError(w, http.StatusMethodNotAllowed, gerr.Message, "")
	case gwerrors.ErrTypeDeadlineExceeded:
		writeError(w, http.StatusGatewayTimeout, "request deadline exceeded", "")
	case gwerrors.ErrTypeDatabaseUnavail, gwerrors.ErrTypeLLMFailure, gwerrors.ErrTypePlannerParse,
		gwerrors.ErrTypeExecution, gwerrors.ErrTypeRetryExhausted, gwerrors.ErrTypeInternal, gwerrors.ErrTypeConfig:
		writeError(w, http.StatusInternalServerError, gerr.Message, "")
	default:
		writeError(w, http.StatusInternalServerError, gerr.Message, "")
	}
}

func writeGuardError(w http.ResponseWriter, gerr *gwerrors.Error) {
	writeJSON(w, http.StatusBadRequest, errorResponse{
		OK:    false,
		Error: gerr.Message,
		Kind:  gerr.GuardKind,
		SQL:   gerr.SQL,
	})
}

func writeError(w http.ResponseWriter, status int, message, sql string) {
	writeJSON(w, status, errorResponse{OK: false, Error: message, SQL: sql})
}

func writeSuccess(w http.ResponseWriter, resp coordinator.Response, minimal bool) {
	if minimal {
		writeJSON(w, http.StatusOK, queryResponseMinimal{OK: true, Answer: resp.Answer})
		return
	}

	rows := make([]map[string]any, len(resp.Rows))
	for i, row := range resp.Rows {
		rows[i] = row
	}

	writeJSON(w, http.StatusOK, queryResponseFull{
		OK:     true,
		Answer: resp.Answer,
		SQL:    resp.SQL,
		Rows:   rows,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
