package handler

import (
	"io"
	"log/slog"
	"net/http"

	"scielocore/internal/domain"
	"scielocore/internal/httputil"
	"scielocore/internal/service/idprovider"
	"scielocore/internal/xmlsps"
)

// maxBodySize bounds the submitted package size.
const maxBodySize = 64 << 20

// PidHandler handles identifier request HTTP calls.
type PidHandler struct {
	pipeline *idprovider.Pipeline
	logger   *slog.Logger
}

// NewPidHandler creates a new pid handler.
func NewPidHandler(pipeline *idprovider.Pipeline, logger *slog.Logger) *PidHandler {
	return &PidHandler{
		pipeline: pipeline,
		logger:   logger,
	}
}

// HealthCheck reports liveness.
// GET /health
func (h *PidHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// RequestID submits one XML package through the identifier pipeline.
// POST /api/requests
// Returns the rewritten XML bytes when identifiers changed, 201 with the
// assigned identifiers when a new record was registered unchanged, 200
// otherwise.
func (h *PidHandler) RequestID(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "read request body")
		return
	}
	if len(body) == 0 {
		httputil.RespondError(w, http.StatusBadRequest, "empty request body")
		return
	}

	user := r.Header.Get("X-User")
	if user == "" {
		user = "anonymous"
	}

	facts, err := xmlsps.ExtractFacts(string(body))
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	res, err := h.pipeline.RequestID(r.Context(), user, facts)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	if res.Changed {
		httputil.RespondXML(w, http.StatusOK, res.XML)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	httputil.RespondJSON(w, status, map[string]any{
		"v3":      res.V3,
		"v2":      res.V2,
		"aop_pid": res.AopPid,
		"created": res.Created,
	})
}

// GetXML returns the stored XML of a registered document.
// GET /api/documents/{v3}/xml
func (h *PidHandler) GetXML(w http.ResponseWriter, r *http.Request) {
	v3 := r.PathValue("v3")
	if v3 == "" {
		httputil.RespondError(w, http.StatusBadRequest, "document id is required")
		return
	}

	rec, err := h.pipeline.GetDocument(r.Context(), v3)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httputil.RespondXML(w, http.StatusOK, rec.XML)
}

func (h *PidHandler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := domain.StatusCodeFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "path", r.URL.Path, "error", err)
	}
	httputil.RespondError(w, status, err.Error())
}
