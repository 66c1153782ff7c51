package authority

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/roach88/invsync/internal/wire"
)

const maxRequestBytes = 1 << 20

// NewHandler serves the sync and resync endpoints for svc.
func NewHandler(svc *Service) http.Handler {
	h := &handler{svc: svc}
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+wire.SyncPath, h.handleSync)
	mux.HandleFunc("GET "+wire.ResyncPath, h.handleResync)
	return mux
}

type handler struct {
	svc *Service
}

func (h *handler) handleSync(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, wire.CodeInvalid, "request body too large")
		return
	}
	req, err := wire.DecodeSyncRequest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, wire.CodeInvalid, err.Error())
		return
	}

	syncedAt, err := h.svc.Apply(r.Context(), userID, req)
	if err != nil {
		status, code := classify(err)
		slog.Warn("sync refused",
			"user_id", userID,
			"command_id", req.ID,
			"correlation_id", r.Header.Get(wire.HeaderCorrelationID),
			"status", status,
			"error", err,
		)
		writeError(w, status, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, wire.SyncResponse{SyncedAt: syncedAt})
}

func (h *handler) handleResync(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	inv, syncedAt, err := h.svc.Snapshot(r.Context(), userID)
	if err != nil {
		slog.Error("snapshot failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, wire.CodeInternal, "snapshot unavailable")
		return
	}
	data, err := inv.Encode()
	if err != nil {
		writeError(w, http.StatusInternalServerError, wire.CodeInternal, "snapshot unavailable")
		return
	}
	writeJSON(w, http.StatusOK, wire.ResyncResponse{SyncedAt: syncedAt, Inventory: data})
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := strings.TrimSpace(r.Header.Get(wire.HeaderUser))
	if userID == "" {
		writeError(w, http.StatusBadRequest, wire.CodeInvalid, "missing "+wire.HeaderUser+" header")
		return "", false
	}
	return userID, true
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrStale):
		return http.StatusConflict, wire.CodeStale
	case errors.Is(err, ErrInvalid):
		return http.StatusBadRequest, wire.CodeInvalid
	case errors.Is(err, ErrRejected):
		return http.StatusUnprocessableEntity, wire.CodeRejected
	default:
		return http.StatusInternalServerError, wire.CodeInternal
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, wire.ErrorResponse{Code: code, Message: message})
}
