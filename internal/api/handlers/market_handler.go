package handlers

import (
	"context"
	"errors"
	"net/http"

	"spotbot/internal/market"
)

// MarketService - классификация рынка по требованию панели
type MarketService interface {
	Analyze(ctx context.Context) (*market.Snapshot, error)
	Params(snap *market.Snapshot) market.TradingParams
}

// MarketHandler отвечает за анализ рынка по запросу
//
// Endpoints:
// - GET /api/v1/market - свежий срез: фаза, цена, MA, торговые параметры
type MarketHandler struct {
	marketService MarketService
}

// NewMarketHandler создает новый MarketHandler с внедрением зависимостей
func NewMarketHandler(marketService MarketService) *MarketHandler {
	return &MarketHandler{marketService: marketService}
}

// MarketResponse структура ответа анализа рынка
type MarketResponse struct {
	Snapshot *market.Snapshot     `json:"snapshot"`
	Params   market.TradingParams `json:"params"`
}

// GetMarket возвращает свежий срез анализа рынка
// GET /api/v1/market
//
// Response:
// - 200 OK: снимок рынка и торговые параметры фазы
// - 502 Bad Gateway: биржа не отдала свечи
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	snap, err := h.marketService.Analyze(r.Context())
	if err != nil {
		if errors.Is(err, market.ErrNoCandles) {
			respondWithError(w, http.StatusBadGateway, "no_candles", "Exchange returned no candle data", "")
			return
		}
		respondWithError(w, http.StatusBadGateway, "exchange_error", "Market analysis failed", err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, MarketResponse{
		Snapshot: snap,
		Params:   h.marketService.Params(snap),
	})
}
