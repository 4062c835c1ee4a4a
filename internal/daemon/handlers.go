package daemon

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"tankobon/internal/acquire"
	"tankobon/internal/api"
	"tankobon/internal/logging"
	"tankobon/internal/services"
	"tankobon/internal/source"
	"tankobon/internal/tags"
)

// maxRequestBody bounds JSON request bodies.
const maxRequestBody = 1 << 20

type handlers struct {
	daemon     *Daemon
	sourceName string
	systemID   int
	logger     *slog.Logger
}

func errorBody(message string) api.ErrorResponse {
	return api.ErrorResponse{Error: message}
}

// requireSource rejects requests for a source this daemon does not serve.
func (h *handlers) requireSource(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.EqualFold(chi.URLParam(r, "source"), h.sourceName) {
			writeJSON(w, http.StatusNotFound, errorBody("unknown source"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *handlers) addDocument(w http.ResponseWriter, r *http.Request) {
	var req api.AddRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, api.AddResponse{Message: "invalid request body: " + err.Error()})
		return
	}
	sourceID, err := source.ExtractID(req.SourceDocumentID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, api.AddResponse{Message: err.Error()})
		return
	}

	outcome, err := h.daemon.Submit(r.Context(), sourceID, api.Definitions(req.InexistentTags))
	if err != nil {
		status := statusFor(err)
		resp := api.AddResponse{Message: services.FailureMessage(err), State: string(acquire.StateFailed)}
		var unresolved *tags.UnresolvedError
		if errors.As(err, &unresolved) {
			resp.Unresolved = unresolved.Aliases
		}
		h.logFailure(r, "add document rejected", status, err)
		writeJSON(w, status, resp)
		return
	}

	status := http.StatusAccepted
	if outcome.State == acquire.StateAlreadyArchived {
		status = http.StatusOK
	}
	writeJSON(w, status, api.AddResponse{RedirectURL: outcome.Redirect, State: string(outcome.State)})
}

func (h *handlers) search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("q is required"))
		return
	}
	records, err := h.daemon.resolver.Search(r.Context(), query)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]api.SearchResult, 0, len(records))
	for _, rec := range records {
		out = append(out, api.FromRecord(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) getDocument(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	doc, err := h.daemon.store.DocumentBySource(r.Context(), h.systemID, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if doc == nil {
		writeJSON(w, http.StatusNotFound, errorBody("document not found"))
		return
	}
	docTags, err := h.daemon.store.DocumentTags(r.Context(), doc.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.DocumentDetail{
		Document: api.FromDocument(doc),
		Tags:     api.FromTags(docTags),
	})
}

func (h *handlers) pendingDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.daemon.store.PendingDocuments(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromDocuments(docs))
}

func (h *handlers) tagGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.daemon.store.TagGroups(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromTagGroups(groups))
}

func (h *handlers) missingTags(w http.ResponseWriter, r *http.Request) {
	sourceID, ok := h.sourceIDParam(w, r)
	if !ok {
		return
	}
	missing, err := h.daemon.orchestrator.MissingTags(r.Context(), sourceID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromMissing(missing))
}

func (h *handlers) downloadURLs(w http.ResponseWriter, r *http.Request) {
	sourceID, ok := h.sourceIDParam(w, r)
	if !ok {
		return
	}
	urls, err := h.daemon.orchestrator.DownloadURLs(r.Context(), sourceID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, urls)
}

func (h *handlers) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, api.StatusResponse{
		Tasks:          h.daemon.registry.Snapshot(),
		RoutingVersion: h.daemon.resolver.RoutingVersion(),
	})
}

func (h *handlers) statusEntry(w http.ResponseWriter, r *http.Request) {
	label, ok := labelParam(w, r)
	if !ok {
		return
	}
	entry, found := h.daemon.registry.Get(label)
	if !found {
		writeJSON(w, http.StatusNotFound, errorBody("no task with that label"))
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *handlers) clearStatus(w http.ResponseWriter, r *http.Request) {
	label, ok := labelParam(w, r)
	if !ok {
		return
	}
	if _, found := h.daemon.registry.Get(label); !found {
		writeJSON(w, http.StatusNotFound, errorBody("no task with that label"))
		return
	}
	h.daemon.registry.Remove(label)
	w.WriteHeader(http.StatusNoContent)
}

// sourceIDParam reads source_document_id, accepting gallery URLs too.
func (h *handlers) sourceIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := r.URL.Query().Get("source_document_id")
	id, err := source.ExtractID(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return "", false
	}
	return id, true
}

// labelParam returns the unescaped {label} segment. Labels are free text and
// may contain escaped slashes.
func labelParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	label, err := url.PathUnescape(chi.URLParam(r, "label"))
	if err != nil || label == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid label"))
		return "", false
	}
	return label, true
}

func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	h.logFailure(r, "api request failed", status, err)
	writeJSON(w, status, errorBody(services.FailureMessage(err)))
}

func (h *handlers) logFailure(r *http.Request, msg string, status int, err error) {
	logger := logging.WithContext(r.Context(), h.logger)
	if status >= http.StatusInternalServerError {
		logging.ErrorWithContext(logger, msg, "api_request_failed",
			logging.Int("status", status),
			logging.Error(err),
		)
		return
	}
	logger.Info(msg, logging.Int("status", status), logging.Error(err))
}

// statusFor maps error markers onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrCatalogRead):
		return http.StatusInternalServerError
	case errors.Is(err, services.ErrReconciliation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrPreexistingState), errors.Is(err, services.ErrDuplicateArtifact):
		return http.StatusConflict
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, source.ErrTooManyResults):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrTransport):
		return http.StatusBadGateway
	case errors.Is(err, acquire.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, services.ErrResolution):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
