package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bimakw/curve-analytics/internal/application/services"
	"github.com/bimakw/curve-analytics/internal/domain/entities"
)

const (
	defaultLeaderboardLimit = 50
	maxLeaderboardLimit     = 100
	maxCandidatePool        = 500
)

// LeaderboardHandler handles HTTP requests for the trader leaderboard
type LeaderboardHandler struct {
	service *services.LeaderboardService
	logger  *zap.Logger
}

// NewLeaderboardHandler creates a new leaderboard handler
func NewLeaderboardHandler(service *services.LeaderboardService, logger *zap.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers the leaderboard routes on a chi router
func (h *LeaderboardHandler) RegisterRoutes(r chi.Router) {
	r.Get("/leaderboard", h.GetLeaderboard)
}

// GetLeaderboard handles GET /api/v1/leaderboard
//
// Query parameters:
//   - window: 7d, 30d or all (default 7d)
//   - sort: pnl, roi, mdd or aum (default pnl)
//   - direction: asc or desc (default depends on the metric)
//   - page, limit: pagination
//   - min_aum, pool: on-demand computation overrides
func (h *LeaderboardHandler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	windowParam := q.Get("window")
	if windowParam == "" {
		windowParam = string(entities.Window7d)
	}
	window, err := entities.ParseWindow(windowParam)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid window parameter")
		return
	}

	sortParam := q.Get("sort")
	if sortParam == "" {
		sortParam = string(entities.MetricPnl)
	}
	metric, err := entities.ParseSortMetric(sortParam)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid sort parameter")
		return
	}

	ascending := metric.DefaultAscending()
	switch q.Get("direction") {
	case "":
	case "asc":
		ascending = true
	case "desc":
		ascending = false
	default:
		h.respondError(w, http.StatusBadRequest, "Invalid direction parameter")
		return
	}

	page := 1
	if v := q.Get("page"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			h.respondError(w, http.StatusBadRequest, "Invalid page parameter")
			return
		}
		page = parsed
	}
	limit := defaultLeaderboardLimit
	if v := q.Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			h.respondError(w, http.StatusBadRequest, "Invalid limit parameter")
			return
		}
		if parsed > maxLeaderboardLimit {
			parsed = maxLeaderboardLimit
		}
		limit = parsed
	}

	query := services.LeaderboardQuery{
		Window:    window,
		Metric:    metric,
		Ascending: ascending,
		Limit:     limit,
		Offset:    (page - 1) * limit,
	}

	if v := q.Get("min_aum"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || parsed < 0 {
			h.respondError(w, http.StatusBadRequest, "Invalid min_aum parameter")
			return
		}
		query.MinAUM = parsed
	}
	if v := q.Get("pool"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 || parsed > maxCandidatePool {
			h.respondError(w, http.StatusBadRequest, "Invalid pool parameter")
			return
		}
		query.Pool = parsed
	}

	response, err := h.service.GetLeaders(ctx, query)
	if err != nil {
		h.logger.Error("Failed to get leaderboard",
			zap.Error(err),
			zap.String("window", string(window)),
			zap.String("sort", string(metric)),
		)
		h.respondError(w, http.StatusInternalServerError, "Failed to get leaderboard")
		return
	}

	h.respondJSON(w, http.StatusOK, response)
}

func (h *LeaderboardHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (h *LeaderboardHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
