package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bimakw/curve-analytics/internal/application/services"
	"github.com/bimakw/curve-analytics/internal/domain/entities"
)

// PnlHandler handles HTTP requests for cost-basis PNL endpoints
type PnlHandler struct {
	service *services.PnlService
	logger  *zap.Logger
}

// NewPnlHandler creates a new PNL handler
func NewPnlHandler(service *services.PnlService, logger *zap.Logger) *PnlHandler {
	return &PnlHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers the PNL routes on a chi router
func (h *PnlHandler) RegisterRoutes(r chi.Router) {
	r.Get("/addresses/{address}/pnl", h.GetPnl)
}

// GetPnl handles GET /api/v1/addresses/{address}/pnl
//
// Query parameters:
//   - height: value the portfolio as of this block height (exclusive)
//   - from_height: only count trades at or after this height
func (h *PnlHandler) GetPnl(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	address := chi.URLParam(r, "address")

	if !isValidAddress(address) {
		h.respondError(w, http.StatusBadRequest, "Invalid address format")
		return
	}
	address = strings.ToLower(address)

	var height, fromHeight int64
	if v := r.URL.Query().Get("height"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil || parsed < 1 {
			h.respondError(w, http.StatusBadRequest, "Invalid height parameter")
			return
		}
		height = parsed
	}
	if v := r.URL.Query().Get("from_height"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil || parsed < 0 {
			h.respondError(w, http.StatusBadRequest, "Invalid from_height parameter")
			return
		}
		fromHeight = parsed
	}
	if height > 0 && fromHeight >= height {
		h.respondError(w, http.StatusBadRequest, "from_height must be below height")
		return
	}

	// Results carry both denominations; the parameter is validated so
	// clients get a clear error instead of a silently ignored value.
	if _, err := entities.ParseCurrency(r.URL.Query().Get("currency")); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid currency parameter")
		return
	}

	var (
		response *services.PnlResult
		err      error
	)
	if height > 0 {
		response, err = h.service.PnlAt(ctx, address, height, fromHeight)
	} else {
		response, err = h.service.PnlCurrent(ctx, address)
	}
	if err != nil {
		h.logger.Error("Failed to compute PNL",
			zap.Error(err),
			zap.String("address", address),
			zap.Int64("height", height),
		)
		h.respondError(w, http.StatusInternalServerError, "Failed to compute PNL")
		return
	}

	h.respondJSON(w, http.StatusOK, response)
}

func (h *PnlHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (h *PnlHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

func isValidAddress(addr string) bool {
	if len(addr) != 42 {
		return false
	}
	if !strings.HasPrefix(addr, "0x") {
		return false
	}
	return true
}
