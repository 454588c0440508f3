package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bimakw/curve-analytics/internal/application/services"
	"github.com/bimakw/curve-analytics/internal/domain/entities"
)

// HistoryHandler handles HTTP requests for portfolio history endpoints
type HistoryHandler struct {
	service *services.HistoryService
	logger  *zap.Logger
}

// NewHistoryHandler creates a new history handler
func NewHistoryHandler(service *services.HistoryService, logger *zap.Logger) *HistoryHandler {
	return &HistoryHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers the history routes on a chi router
func (h *HistoryHandler) RegisterRoutes(r chi.Router) {
	r.Get("/addresses/{address}/history", h.GetHistory)
}

// GetHistory handles GET /api/v1/addresses/{address}/history
//
// Query parameters:
//   - start, end: range bounds as unix seconds; both omitted means a
//     single current-state snapshot
//   - interval: sample spacing in seconds
//   - currency: coin (default) or usd
//   - include_pnl: attach a full PNL breakdown to each snapshot
func (h *HistoryHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	address := chi.URLParam(r, "address")

	if !isValidAddress(address) {
		h.respondError(w, http.StatusBadRequest, "Invalid address format")
		return
	}
	address = strings.ToLower(address)

	query := services.HistoryQuery{}
	q := r.URL.Query()

	if v := q.Get("start"); v != "" {
		sec, err := strconv.ParseInt(v, 10, 64)
		if err != nil || sec < 0 {
			h.respondError(w, http.StatusBadRequest, "Invalid start parameter")
			return
		}
		query.Start = time.Unix(sec, 0).UTC()
	}
	if v := q.Get("end"); v != "" {
		sec, err := strconv.ParseInt(v, 10, 64)
		if err != nil || sec < 0 {
			h.respondError(w, http.StatusBadRequest, "Invalid end parameter")
			return
		}
		query.End = time.Unix(sec, 0).UTC()
	}
	if query.Start.IsZero() && !query.End.IsZero() {
		h.respondError(w, http.StatusBadRequest, "end requires start")
		return
	}
	if v := q.Get("interval"); v != "" {
		sec, err := strconv.ParseInt(v, 10, 64)
		if err != nil || sec < 1 {
			h.respondError(w, http.StatusBadRequest, "Invalid interval parameter")
			return
		}
		query.Interval = time.Duration(sec) * time.Second
	}
	if !query.Start.IsZero() {
		end := query.End
		if end.IsZero() {
			end = time.Now().UTC()
		}
		if !query.Start.Before(end) {
			h.respondError(w, http.StatusBadRequest, "start must precede end")
			return
		}
		if query.Interval > 0 && end.Sub(query.Start)/query.Interval >= 1000 {
			h.respondError(w, http.StatusBadRequest, "Range at this interval yields too many points")
			return
		}
	}

	currency, err := entities.ParseCurrency(q.Get("currency"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid currency parameter")
		return
	}
	query.Currency = currency
	query.IncludePnl = q.Get("include_pnl") == "true"

	response, err := h.service.GetHistory(ctx, address, query)
	if err != nil {
		h.logger.Error("Failed to get portfolio history",
			zap.Error(err),
			zap.String("address", address),
		)
		h.respondError(w, http.StatusInternalServerError, "Failed to get portfolio history")
		return
	}

	h.respondJSON(w, http.StatusOK, response)
}

func (h *HistoryHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (h *HistoryHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
