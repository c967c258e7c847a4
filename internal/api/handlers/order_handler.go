package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"spotbot/internal/bot"
	"spotbot/internal/repository"
)

// OrderHandler отвечает за явные действия оператора над ордерами
//
// Endpoints:
// - POST /api/v1/orders/{id}/cancel - отмена активного ордера пары
// - POST /api/v1/orders/cancel-all  - отмена всех активных ордеров
//
// Оба требуют явного подтверждения в теле запроса: воркеры никогда
// не отменяют ордера сами, это исключительно ручная операция.
type OrderHandler struct {
	botService BotService
}

// NewOrderHandler создает новый OrderHandler с внедрением зависимостей
func NewOrderHandler(botService BotService) *OrderHandler {
	return &OrderHandler{botService: botService}
}

// CancelRequest структура запроса на отмену
type CancelRequest struct {
	Confirm bool `json:"confirm"`
}

// CancelAllResponse структура ответа массовой отмены
type CancelAllResponse struct {
	Cancelled int    `json:"cancelled"`
	Error     string `json:"error,omitempty"`
}

// CancelOrder отменяет активный ордер пары на бирже
// POST /api/v1/orders/{id}/cancel
//
// Request Body: {"confirm": true}
//
// Response:
// - 200 OK: ордер отменен
// - 400 Bad Request: нет подтверждения или невалидный индекс
// - 404 Not Found: пара не найдена
// - 409 Conflict: пара в финальном статусе или продажа не размещена
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	idx, err := strconv.Atoi(vars["id"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_id", "Invalid pair index", "Index must be a number")
		return
	}

	var req CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
		return
	}

	if err := h.botService.CancelOrder(r.Context(), idx, req.Confirm); err != nil {
		h.handleCancelError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "Order cancelled"})
}

// CancelAllOrders отменяет все активные ордера
// POST /api/v1/orders/cancel-all
//
// Request Body: {"confirm": true}
//
// Response:
// - 200 OK: количество отмененных пар (частичный успех тоже 200)
// - 400 Bad Request: нет подтверждения
func (h *OrderHandler) CancelAllOrders(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
		return
	}

	cancelled, err := h.botService.CancelAllOrders(r.Context(), req.Confirm)
	if err != nil && errors.Is(err, bot.ErrConfirmationRequired) {
		respondWithError(w, http.StatusBadRequest, "confirmation_required", "Cancellation requires explicit confirmation", "")
		return
	}

	resp := CancelAllResponse{Cancelled: cancelled}
	if err != nil {
		resp.Error = err.Error()
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// handleCancelError мапит ошибки отмены на HTTP статусы
func (h *OrderHandler) handleCancelError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, bot.ErrConfirmationRequired):
		respondWithError(w, http.StatusBadRequest, "confirmation_required", "Cancellation requires explicit confirmation", "")
	case errors.Is(err, repository.ErrPairNotFound):
		respondWithError(w, http.StatusNotFound, "pair_not_found", "Pair not found", "")
	case errors.Is(err, repository.ErrNoSellOrder):
		respondWithError(w, http.StatusConflict, "no_sell_order", "Pair has no sell order to cancel", "")
	case errors.Is(err, repository.ErrInvalidTransition):
		respondWithError(w, http.StatusConflict, "pair_finalized", "Pair is already in a final status", "")
	default:
		respondWithError(w, http.StatusInternalServerError, "internal_error", "Failed to cancel order", err.Error())
	}
}
