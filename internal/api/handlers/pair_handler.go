package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"spotbot/internal/models"
	"spotbot/internal/repository"
)

// PairReader - читающая поверхность журнала пар
type PairReader interface {
	GetActive() ([]*models.OrderPair, error)
	GetRecent(limit int) ([]*models.OrderPair, error)
	GetCompleted(limit int) ([]*models.OrderPair, error)
	GetByIndex(idx int) (*models.OrderPair, error)
	GetStats() (*models.Stats, error)
}

// PairHandler отвечает за чтение журнала пар ордеров
//
// Endpoints:
// - GET /api/v1/pairs            - список пар (active | recent | completed)
// - GET /api/v1/pairs/{id}       - конкретная пара по индексу
// - GET /api/v1/stats            - агрегированная статистика торговли
type PairHandler struct {
	pairs PairReader
}

// NewPairHandler создает новый PairHandler с внедрением зависимостей
func NewPairHandler(pairs PairReader) *PairHandler {
	return &PairHandler{pairs: pairs}
}

// GetPairs возвращает список пар
// GET /api/v1/pairs
//
// Query Parameters:
// - view: active (default) | recent | completed
// - limit: максимум записей для recent/completed (default 50)
//
// Response:
// - 200 OK: массив пар
func (h *PairHandler) GetPairs(w http.ResponseWriter, r *http.Request) {
	view := r.URL.Query().Get("view")
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	var (
		pairs []*models.OrderPair
		err   error
	)
	switch view {
	case "", "active":
		pairs, err = h.pairs.GetActive()
	case "recent":
		pairs, err = h.pairs.GetRecent(limit)
	case "completed":
		pairs, err = h.pairs.GetCompleted(limit)
	default:
		respondWithError(w, http.StatusBadRequest, "invalid_view", "View must be active, recent or completed", "")
		return
	}
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "internal_error", "Failed to get pairs", err.Error())
		return
	}

	if pairs == nil {
		pairs = []*models.OrderPair{}
	}
	respondWithJSON(w, http.StatusOK, pairs)
}

// GetPair возвращает конкретную пару по индексу
// GET /api/v1/pairs/{id}
//
// Response:
// - 200 OK: данные пары
// - 404 Not Found: пара не найдена
func (h *PairHandler) GetPair(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	idx, err := strconv.Atoi(vars["id"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_id", "Invalid pair index", "Index must be a number")
		return
	}

	pair, err := h.pairs.GetByIndex(idx)
	if err != nil {
		if errors.Is(err, repository.ErrPairNotFound) {
			respondWithError(w, http.StatusNotFound, "pair_not_found", "Pair not found", "")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "internal_error", "Failed to get pair", err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, pair)
}

// GetStats возвращает агрегированную статистику торговли
// GET /api/v1/stats
func (h *PairHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.pairs.GetStats()
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "internal_error", "Failed to get stats", err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}
