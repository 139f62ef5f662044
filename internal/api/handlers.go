/**
 * @description
 * This file contains the HTTP handlers for the hawala-service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the
 * appropriate methods on the application service, and writing the HTTP
 * response. They act as the bridge between the web layer and the business
 * logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - github.com/go-chi/chi/v5: URL parameter extraction.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sarafnet/hawala-service/internal/app"
	"github.com/sarafnet/hawala-service/internal/domain"
	"github.com/sarafnet/hawala-service/internal/store"
)

// TransferHandlers holds the application service that handlers will use.
type TransferHandlers struct {
	service *app.Service
}

// NewTransferHandlers creates a new instance of TransferHandlers.
func NewTransferHandlers(service *app.Service) *TransferHandlers {
	return &TransferHandlers{service: service}
}

// convertRequest is the body of the public conversion endpoint. Query
// parameters are accepted as well so the endpoint is curl-friendly.
type convertRequest struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Amount float64 `json:"amount"`
}

// invalidatePatternRequest is the body of the internal cache invalidation
// endpoint.
type invalidatePatternRequest struct {
	Pattern string `json:"pattern"`
}

// ConvertHandler prices an ad-hoc conversion. Public, throttled per IP.
func (h *TransferHandlers) ConvertHandler(w http.ResponseWriter, r *http.Request) {
	req := convertRequest{
		From: r.URL.Query().Get("from"),
		To:   r.URL.Query().Get("to"),
	}
	if raw := r.URL.Query().Get("amount"); raw != "" {
		amount, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid amount")
			return
		}
		req.Amount = amount
	}
	if r.Body != nil && r.Header.Get("Content-Type") == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
			return
		}
	}

	result, err := h.service.Convert(r.Context(), req.From, req.To, req.Amount)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// TrackTransferHandler is the public lookup by reference code. The response
// is the sanitized projection; operator-only fields never leave the service.
func (h *TransferHandlers) TrackTransferHandler(w http.ResponseWriter, r *http.Request) {
	referenceCode := strings.TrimSpace(chi.URLParam(r, "referenceCode"))

	tracked, err := h.service.TrackTransfer(r.Context(), referenceCode)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, tracked)
}

// CreateTransferHandler registers a new pending transfer.
func (h *TransferHandlers) CreateTransferHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := GetActor(r.Context())
	if !ok {
		http.Error(w, "Could not get actor from context", http.StatusInternalServerError)
		return
	}

	var req domain.CreateTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	transfer, err := h.service.CreateTransfer(r.Context(), actor, req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, transfer)
}

// GetTransferHandler returns the full operator view of a single transfer.
func (h *TransferHandlers) GetTransferHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := GetActor(r.Context())
	if !ok {
		http.Error(w, "Could not get actor from context", http.StatusInternalServerError)
		return
	}

	transferID, err := uuid.Parse(chi.URLParam(r, "transferID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid transfer ID format")
		return
	}

	transfer, err := h.service.GetTransfer(r.Context(), actor, transferID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, transfer)
}

// ListTransfersHandler lists a saraf's transfers with optional filters.
// Handlers list their own saraf implicitly; admins pass ?saraf_id=.
func (h *TransferHandlers) ListTransfersHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := GetActor(r.Context())
	if !ok {
		http.Error(w, "Could not get actor from context", http.StatusInternalServerError)
		return
	}

	var sarafID uuid.UUID
	if raw := r.URL.Query().Get("saraf_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid saraf_id format")
			return
		}
		sarafID = parsed
	} else if actor.OwnedSarafID != nil {
		sarafID = *actor.OwnedSarafID
	} else {
		h.writeError(w, http.StatusBadRequest, "saraf_id is required")
		return
	}

	opts := domain.TransferListOptions{
		Status:       strings.TrimSpace(r.URL.Query().Get("status")),
		FromCurrency: strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("from_currency"))),
		ToCurrency:   strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("to_currency"))),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil {
			opts.Limit = limit
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if offset, err := strconv.Atoi(raw); err == nil {
			opts.Offset = offset
		}
	}

	transfers, err := h.service.ListTransfers(r.Context(), actor, sarafID, opts)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"transfers": transfers,
		"count":     len(transfers),
	})
}

// CompleteTransferHandler settles a pending transfer.
func (h *TransferHandlers) CompleteTransferHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := GetActor(r.Context())
	if !ok {
		http.Error(w, "Could not get actor from context", http.StatusInternalServerError)
		return
	}

	transferID, err := uuid.Parse(chi.URLParam(r, "transferID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid transfer ID format")
		return
	}

	var req domain.CompleteTransferRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	transfer, err := h.service.CompleteTransfer(r.Context(), actor, transferID, req.Notes)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, transfer)
}

// CancelTransferHandler cancels a pending transfer.
func (h *TransferHandlers) CancelTransferHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := GetActor(r.Context())
	if !ok {
		http.Error(w, "Could not get actor from context", http.StatusInternalServerError)
		return
	}

	transferID, err := uuid.Parse(chi.URLParam(r, "transferID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid transfer ID format")
		return
	}

	var req domain.CancelTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	transfer, err := h.service.CancelTransfer(r.Context(), actor, transferID, req.Reason)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, transfer)
}

// InvalidateRateCacheHandler clears cached rate quotes. Internal only, keyed.
func (h *TransferHandlers) InvalidateRateCacheHandler(w http.ResponseWriter, r *http.Request) {
	var req invalidatePatternRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	removed, err := h.service.InvalidateRateCache(req.Pattern)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid pattern: %v", err))
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]int{"cleared": removed})
}

// writeServiceError maps application and storage errors onto HTTP statuses.
func (h *TransferHandlers) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrTransferNotFound):
		h.writeError(w, http.StatusNotFound, "Transfer not found")
	case errors.Is(err, store.ErrTransferStateConflict):
		h.writeError(w, http.StatusConflict, "Transfer is not in a state that allows this action")
	case errors.Is(err, store.ErrSarafNotFound):
		h.writeError(w, http.StatusNotFound, "Saraf not found")
	case errors.Is(err, app.ErrPermissionDenied):
		h.writeError(w, http.StatusForbidden, "You are not permitted to perform this action")
	case errors.Is(err, app.ErrInvalidAmount),
		errors.Is(err, app.ErrInvalidFee),
		errors.Is(err, app.ErrSameCurrency),
		errors.Is(err, app.ErrInvalidCurrency),
		errors.Is(err, app.ErrMissingReceiver),
		errors.Is(err, app.ErrMissingSaraf),
		errors.Is(err, app.ErrMissingReason),
		errors.Is(err, app.ErrMissingReference):
		h.writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("level=error component=api msg=\"unhandled service error\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// writeJSON is a helper for writing JSON responses.
func (h *TransferHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *TransferHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
