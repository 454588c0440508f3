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
)

// BalanceHandler handles HTTP requests for reconstructed balances
type BalanceHandler struct {
	service *services.ReplayService
	logger  *zap.Logger
}

// NewBalanceHandler creates a new balance handler
func NewBalanceHandler(service *services.ReplayService, logger *zap.Logger) *BalanceHandler {
	return &BalanceHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers the balance routes on a chi router
func (h *BalanceHandler) RegisterRoutes(r chi.Router) {
	r.Get("/addresses/{address}/balance", h.GetBalance)
}

// BalanceResponse is one reconstructed balance
type BalanceResponse struct {
	Address      string  `json:"address"`
	AssetAddress string  `json:"asset_address,omitempty"`
	Balance      float64 `json:"balance"`
	Height       int64   `json:"height,omitempty"`
	Timestamp    int64   `json:"timestamp,omitempty"`
}

// GetBalance handles GET /api/v1/addresses/{address}/balance
//
// Query parameters:
//   - asset: reconstruct this asset's balance; without it the native
//     coin balance is reconstructed
//   - time: unix seconds to reconstruct at (default now)
//   - height: block height to reconstruct at (asset lookups only)
func (h *BalanceHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	address := chi.URLParam(r, "address")

	if !isValidAddress(address) {
		h.respondError(w, http.StatusBadRequest, "Invalid address format")
		return
	}
	address = strings.ToLower(address)

	asset := r.URL.Query().Get("asset")
	if asset != "" {
		if !isValidAddress(asset) {
			h.respondError(w, http.StatusBadRequest, "Invalid asset parameter")
			return
		}
		asset = strings.ToLower(asset)
	}

	var height int64
	if v := r.URL.Query().Get("height"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil || parsed < 1 {
			h.respondError(w, http.StatusBadRequest, "Invalid height parameter")
			return
		}
		height = parsed
	}

	at := time.Now().UTC()
	if v := r.URL.Query().Get("time"); v != "" {
		if height > 0 {
			h.respondError(w, http.StatusBadRequest, "time and height are mutually exclusive")
			return
		}
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil || parsed < 0 {
			h.respondError(w, http.StatusBadRequest, "Invalid time parameter")
			return
		}
		at = time.Unix(parsed, 0).UTC()
	}

	if asset == "" && height > 0 {
		h.respondError(w, http.StatusBadRequest, "height lookups require an asset")
		return
	}

	response := BalanceResponse{
		Address:      address,
		AssetAddress: asset,
	}

	var balance float64
	var err error
	switch {
	case asset != "" && height > 0:
		response.Height = height
		balance, err = h.service.AssetBalanceAtHeight(ctx, address, asset, height)
	case asset != "":
		response.Timestamp = at.Unix()
		balance, err = h.service.AssetBalanceAtTime(ctx, address, asset, at)
	default:
		response.Timestamp = at.Unix()
		balance, err = h.service.NativeBalanceAt(ctx, address, at)
	}
	if err != nil {
		h.logger.Error("Failed to reconstruct balance",
			zap.Error(err),
			zap.String("address", address),
			zap.String("asset", asset),
		)
		h.respondError(w, http.StatusInternalServerError, "Failed to reconstruct balance")
		return
	}
	response.Balance = balance

	h.respondJSON(w, http.StatusOK, response)
}

func (h *BalanceHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (h *BalanceHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
