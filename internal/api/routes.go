package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"spotbot/internal/api/handlers"
	"spotbot/internal/api/middleware"
	"spotbot/internal/config"
	"spotbot/internal/websocket"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	Bot           handlers.BotService
	Pairs         handlers.PairReader
	Market        handlers.MarketService
	Notifications handlers.NotificationService
	Hub           *websocket.Hub
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Структура маршрутов:
//
// /api/v1/ (Basic Auth, если настроен ADMIN_PASSWORD_HASH)
//
//	├── /bot/
//	│   ├── POST /start  - запуск торгового ядра
//	│   ├── POST /stop   - остановка ядра
//	│   ├── GET  /status - состояние ядра и предохранителя
//	│   ├── POST /sync   - внеплановая сверка с биржей
//	│   ├── POST /buying - переключение открытия новых пар
//	│   └── POST /reload - перечитывание конфигурации
//	├── /pairs/
//	│   ├── GET /        - список пар (active | recent | completed)
//	│   └── GET /{id}    - пара по индексу
//	├── /orders/
//	│   ├── POST /{id}/cancel  - отмена ордера пары (с подтверждением)
//	│   └── POST /cancel-all   - отмена всех активных ордеров
//	├── /market/
//	│   └── GET / - срез анализа рынка
//	├── /notifications/
//	│   ├── GET    / - последние уведомления
//	│   └── DELETE / - очистка журнала
//	└── /stats/
//	    └── GET / - агрегированная статистика
//
// /ws/stream - WebSocket для real-time обновлений панели
// /metrics   - Prometheus метрики
// /health    - health check
//
// Middleware: Recovery -> Logging -> CORS для всех маршрутов,
// BasicAuth только для /api/v1.
func SetupRoutes(deps *Dependencies, cfg *config.Config) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)
	router.Use(middleware.CORS)

	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(middleware.BasicAuth(cfg.Security.AdminUser, cfg.Security.AdminPasswordHash))

	if deps != nil && deps.Bot != nil {
		botHandler := handlers.NewBotHandler(deps.Bot)
		apiRouter.HandleFunc("/bot/start", botHandler.StartBot).Methods("POST")
		apiRouter.HandleFunc("/bot/stop", botHandler.StopBot).Methods("POST")
		apiRouter.HandleFunc("/bot/status", botHandler.GetStatus).Methods("GET")
		apiRouter.HandleFunc("/bot/sync", botHandler.ForceSync).Methods("POST")
		apiRouter.HandleFunc("/bot/buying", botHandler.SetBuying).Methods("POST")
		apiRouter.HandleFunc("/bot/reload", botHandler.ReloadConfig).Methods("POST")

		orderHandler := handlers.NewOrderHandler(deps.Bot)
		apiRouter.HandleFunc("/orders/{id}/cancel", orderHandler.CancelOrder).Methods("POST")
		apiRouter.HandleFunc("/orders/cancel-all", orderHandler.CancelAllOrders).Methods("POST")
	}

	if deps != nil && deps.Pairs != nil {
		pairHandler := handlers.NewPairHandler(deps.Pairs)
		apiRouter.HandleFunc("/pairs", pairHandler.GetPairs).Methods("GET")
		apiRouter.HandleFunc("/pairs/{id}", pairHandler.GetPair).Methods("GET")
		apiRouter.HandleFunc("/stats", pairHandler.GetStats).Methods("GET")
	}

	if deps != nil && deps.Market != nil {
		marketHandler := handlers.NewMarketHandler(deps.Market)
		apiRouter.HandleFunc("/market", marketHandler.GetMarket).Methods("GET")
	}

	if deps != nil && deps.Notifications != nil {
		notificationHandler := handlers.NewNotificationHandler(deps.Notifications)
		apiRouter.HandleFunc("/notifications", notificationHandler.GetNotifications).Methods("GET")
		apiRouter.HandleFunc("/notifications", notificationHandler.ClearNotifications).Methods("DELETE")
	}

	if deps != nil && deps.Hub != nil {
		hub := deps.Hub
		router.HandleFunc("/ws/stream", func(w http.ResponseWriter, r *http.Request) {
			websocket.ServeWS(hub, w, r)
		})
	}

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	return router
}
