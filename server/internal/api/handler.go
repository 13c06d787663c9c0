package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/vitalstream/vitalstream/pkg/types"
	"github.com/vitalstream/vitalstream/server/internal/alerts"
	"github.com/vitalstream/vitalstream/server/internal/ingest"
	"github.com/vitalstream/vitalstream/server/internal/store"
)

// maxBodyBytes caps POST /ingest bodies.
const maxBodyBytes = 64 << 10

// Service is the ingestion and query surface the handler serves.
// *ingest.Service implements it.
type Service interface {
	Ingest(ctx context.Context, patientID string, vitals types.Vitals) (ingest.Result, error)
	List(ctx context.Context, limit int) ([]types.Record, error)
	Get(ctx context.Context, id int64) (types.Record, error)
	Verify(ctx context.Context, id int64) (ingest.Verification, error)
	Count(ctx context.Context) (int64, error)
}

// AlertHistory lists recent notifications. *alerts.Dispatcher implements it.
type AlertHistory interface {
	Recent() []alerts.Alert
}

// Options wires optional collaborators into the handler.
type Options struct {
	// Alerts backs GET /alerts. Nil serves an empty list.
	Alerts AlertHistory
	// Subscribers reports the live stream count for GET /healthz.
	Subscribers func() int
	// IngestAuth wraps POST /ingest, typically auth.APIKeyMiddleware.
	IngestAuth func(http.Handler) http.Handler
	// Fallback serves paths no route matches, e.g. a static UI.
	Fallback http.Handler
}

// Handler is the HTTP handler for the record API.
type Handler struct {
	svc  Service
	opts Options
	mux  *http.ServeMux
}

// New creates a Handler backed by svc and registers all routes.
func New(svc Service, opts Options) http.Handler {
	h := &Handler{svc: svc, opts: opts, mux: http.NewServeMux()}

	var ingestHandler http.Handler = http.HandlerFunc(h.ingest)
	if opts.IngestAuth != nil {
		ingestHandler = opts.IngestAuth(ingestHandler)
	}

	h.mux.Handle("/ingest", ingestHandler)
	h.mux.HandleFunc("/records", h.listRecords)
	h.mux.HandleFunc("/records/", h.getRecord) // subtree, extracts {id}
	h.mux.HandleFunc("/verify/", h.verify)
	h.mux.HandleFunc("/alerts", h.alerts)
	h.mux.HandleFunc("/healthz", h.health)
	h.mux.HandleFunc("/", h.fallback)

	return withRequestLog(h)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// ingest handles POST /ingest.
func (h *Handler) ingest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req *types.Reading
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			jsonErr(w, http.StatusBadRequest, "empty body")
			return
		}
		jsonErr(w, http.StatusBadRequest, "malformed body: "+err.Error())
		return
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		jsonErr(w, http.StatusBadRequest, "malformed body: unexpected data after JSON object")
		return
	}
	if req == nil {
		jsonErr(w, http.StatusBadRequest, "body must be a JSON object")
		return
	}

	res, err := h.svc.Ingest(r.Context(), req.PatientID, req.Values())
	switch {
	case errors.Is(err, ingest.ErrInvalidReading):
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		slog.Error("api: ingest", "patient_id", req.PatientID, "err", err)
		jsonErr(w, http.StatusInternalServerError, "failed to store record")
		return
	}

	jsonResp(w, http.StatusOK, IngestResponse{Status: "ok", ID: res.ID, Hash: res.Hash})
}

// listRecords handles GET /records[?limit=N], newest first.
func (h *Handler) listRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	limit := store.MaxListLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			jsonErr(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = store.ClampLimit(n)
	}

	recs, err := h.svc.List(r.Context(), limit)
	if err != nil {
		slog.Error("api: list records", "err", err)
		jsonErr(w, http.StatusInternalServerError, "failed to list records")
		return
	}
	if recs == nil {
		recs = []types.Record{}
	}
	jsonResp(w, http.StatusOK, recs)
}

// getRecord handles GET /records/{id}.
func (h *Handler) getRecord(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/records/")
	if rest == "" {
		h.listRecords(w, r)
		return
	}
	id, ok := parseID(w, rest)
	if !ok {
		return
	}

	rec, err := h.svc.Get(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		jsonErr(w, http.StatusNotFound, "record not found")
		return
	case err != nil:
		slog.Error("api: get record", "id", id, "err", err)
		jsonErr(w, http.StatusInternalServerError, "failed to load record")
		return
	}
	jsonResp(w, http.StatusOK, rec)
}

// verify handles GET /verify/{id}. A hash mismatch is a 200 with
// valid=false; only an unknown id is a 404.
func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id, ok := parseID(w, strings.TrimPrefix(r.URL.Path, "/verify/"))
	if !ok {
		return
	}

	v, err := h.svc.Verify(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		jsonResp(w, http.StatusNotFound, statusResponse{Status: "not_found"})
		return
	case err != nil:
		slog.Error("api: verify", "id", id, "err", err)
		jsonErr(w, http.StatusInternalServerError, "verification failed")
		return
	}
	if !v.Valid {
		slog.Warn("api: hash mismatch", "id", id, "stored", v.StoredHash, "recomputed", v.Recomputed)
	}
	jsonResp(w, http.StatusOK, v)
}

// alerts handles GET /alerts, newest first.
func (h *Handler) alerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.opts.Alerts == nil {
		jsonResp(w, http.StatusOK, []AlertResponse{})
		return
	}
	out := lo.Map(h.opts.Alerts.Recent(), func(a alerts.Alert, _ int) AlertResponse {
		return AlertResponse{
			ID:         a.ID,
			RecordID:   a.RecordID,
			PatientID:  a.PatientID,
			Alerts:     a.Alerts,
			Message:    a.Message,
			FiredAt:    a.FiredAt.UTC().Format(time.RFC3339),
			Suppressed: a.Suppressed,
		}
	})
	jsonResp(w, http.StatusOK, out)
}

// health handles GET /healthz.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	n, err := h.svc.Count(r.Context())
	if err != nil {
		slog.Error("api: health count", "err", err)
		jsonResp(w, http.StatusServiceUnavailable, HealthResponse{Status: "degraded"})
		return
	}
	resp := HealthResponse{Status: "ok", Records: n}
	if h.opts.Subscribers != nil {
		resp.Subscribers = h.opts.Subscribers()
	}
	jsonResp(w, http.StatusOK, resp)
}

func (h *Handler) fallback(w http.ResponseWriter, r *http.Request) {
	if h.opts.Fallback != nil {
		h.opts.Fallback.ServeHTTP(w, r)
		return
	}
	jsonErr(w, http.StatusNotFound, "not found")
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

// parseID parses a positive record id, writing a 400 on failure.
func parseID(w http.ResponseWriter, s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		jsonErr(w, http.StatusBadRequest, "invalid record id")
		return 0, false
	}
	return id, true
}
