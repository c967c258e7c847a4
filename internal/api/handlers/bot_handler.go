package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"spotbot/internal/bot"
	"spotbot/internal/models"
)

// BotService - управляющая поверхность торгового ядра
type BotService interface {
	Start() error
	Stop() error
	IsRunning() bool
	GetStatus() *bot.Status
	SetBuyingEnabled(enabled bool) error
	ForceSync(ctx context.Context)
	GetPendingOrders() ([]*models.OrderPair, error)
	GetCompletedPairs(limit int) ([]*models.OrderPair, error)
	CancelOrder(ctx context.Context, idx int, confirm bool) error
	CancelAllOrders(ctx context.Context, confirm bool) (int, error)
	ReloadConfig() error
}

// BotHandler отвечает за управление жизненным циклом бота
//
// Endpoints:
// - POST /api/v1/bot/start  - запуск воркеров
// - POST /api/v1/bot/stop   - остановка воркеров
// - GET  /api/v1/bot/status - состояние ядра, предохранителя и статистика
// - POST /api/v1/bot/sync   - внеплановый проход сверки
// - POST /api/v1/bot/buying - включение/выключение открытия новых пар
// - POST /api/v1/bot/reload - перечитывание конфигурации из окружения
type BotHandler struct {
	botService BotService
}

// NewBotHandler создает новый BotHandler с внедрением зависимостей
func NewBotHandler(botService BotService) *BotHandler {
	return &BotHandler{botService: botService}
}

// StartBot запускает торговое ядро
// POST /api/v1/bot/start
//
// Response:
// - 200 OK: ядро запущено
// - 409 Conflict: уже запущено
func (h *BotHandler) StartBot(w http.ResponseWriter, r *http.Request) {
	if err := h.botService.Start(); err != nil {
		if errors.Is(err, bot.ErrAlreadyRunning) {
			respondWithError(w, http.StatusConflict, "already_running", "Bot is already running", "")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "internal_error", "Failed to start bot", err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "Bot started"})
}

// StopBot останавливает торговое ядро
// POST /api/v1/bot/stop
//
// Response:
// - 200 OK: ядро остановлено
// - 409 Conflict: не запущено
func (h *BotHandler) StopBot(w http.ResponseWriter, r *http.Request) {
	if err := h.botService.Stop(); err != nil {
		if errors.Is(err, bot.ErrNotRunning) {
			respondWithError(w, http.StatusConflict, "not_running", "Bot is not running", "")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "internal_error", "Failed to stop bot", err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "Bot stopped"})
}

// GetStatus возвращает срез состояния ядра
// GET /api/v1/bot/status
func (h *BotHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.botService.GetStatus())
}

// ForceSync запускает внеплановый проход сверки с биржей
// POST /api/v1/bot/sync
func (h *BotHandler) ForceSync(w http.ResponseWriter, r *http.Request) {
	h.botService.ForceSync(r.Context())
	respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "Sync pass completed"})
}

// ReloadConfig перечитывает конфигурацию и пересобирает воркеры
// POST /api/v1/bot/reload
//
// Response:
// - 200 OK: конфигурация применена
// - 500 Internal Server Error: конфигурация не прошла загрузку или валидацию
func (h *BotHandler) ReloadConfig(w http.ResponseWriter, r *http.Request) {
	if err := h.botService.ReloadConfig(); err != nil {
		respondWithError(w, http.StatusInternalServerError, "reload_failed", "Failed to reload config", err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "Config reloaded"})
}

// SetBuyingRequest структура запроса переключения покупок
type SetBuyingRequest struct {
	Enabled *bool `json:"enabled"`
}

// SetBuying включает/выключает открытие новых пар
// POST /api/v1/bot/buying
//
// Request Body: {"enabled": false}
//
// Response:
// - 200 OK: флаг переключен
// - 400 Bad Request: поле enabled отсутствует
func (h *BotHandler) SetBuying(w http.ResponseWriter, r *http.Request) {
	var req SetBuyingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
		return
	}
	if req.Enabled == nil {
		respondWithError(w, http.StatusBadRequest, "missing_enabled", "Field 'enabled' is required", "")
		return
	}

	if err := h.botService.SetBuyingEnabled(*req.Enabled); err != nil {
		respondWithError(w, http.StatusInternalServerError, "internal_error", "Failed to toggle buying", err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "Buying flag updated"})
}
