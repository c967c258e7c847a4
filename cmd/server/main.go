package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"spotbot/internal/api"
	"spotbot/internal/bot"
	"spotbot/internal/config"
	"spotbot/internal/exchange"
	"spotbot/internal/market"
	"spotbot/internal/notify"
	"spotbot/internal/repository"
	"spotbot/internal/websocket"
	"spotbot/pkg/breaker"
	"spotbot/pkg/retry"
	"spotbot/pkg/utils"

	_ "github.com/lib/pq"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	logger := utils.InitGlobalLogger(utils.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	defer logger.Sync()

	// Инициализация базы данных
	db, err := initDatabase(cfg)
	if err != nil {
		logger.Fatal("Не удалось подключиться к базе данных", utils.Err(err))
	}
	defer db.Close()

	if err := repository.Migrate(db); err != nil {
		logger.Fatal("Не удалось применить миграции", utils.Err(err))
	}

	logger.Info("База данных подключена",
		utils.String("dsn", cfg.Database.DSNWithoutPassword()),
	)

	// Инициализация репозиториев
	pairRepo := repository.NewPairRepository(db)
	stateRepo := repository.NewStateRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	// Клиент биржи: venue -> pacer -> breaker -> retry
	venue := exchange.NewHyperliquidWithBaseURL(
		cfg.Exchange.BaseURL,
		cfg.Exchange.WalletAddress,
		cfg.Exchange.APISecret,
	)
	exClient := exchange.NewClient(venue, exchangeClientConfig(cfg), logger)
	defer exClient.Close()

	// Анализатор рынка
	analyzer := market.NewAnalyzer(exClient, cfg.Trading.MarketConfig(), logger)

	// Уведомления
	notifier := notify.NewNotifier(cfg, notificationRepo, logger)
	if cfg.Telegram.Enabled {
		tgCtx, tgCancel := context.WithTimeout(context.Background(), 15*time.Second)
		if err := notifier.TestConnection(tgCtx); err != nil {
			logger.Warn("Telegram недоступен, уведомления будут теряться", utils.Err(err))
		}
		tgCancel()
	}

	// WebSocket hub
	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	hub := websocket.NewHub(logger)
	go hub.Run(hubCtx)

	// Торговый контроллер
	controller := bot.NewController(
		exClient,
		pairRepo,
		stateRepo,
		analyzer,
		notifier,
		hub,
		cfg,
		logger,
	)
	if err := controller.Start(); err != nil {
		logger.Fatal("Не удалось запустить торговый цикл", utils.Err(err))
	}

	// Настройка зависимостей для API
	deps := &api.Dependencies{
		Bot:           controller,
		Pairs:         pairRepo,
		Market:        analyzer,
		Notifications: notificationRepo,
		Hub:           hub,
	}

	router := api.SetupRoutes(deps, cfg)

	// HTTP сервер
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Запуск сервера в отдельной горутине
	go func() {
		logger.Info("HTTP сервер запущен", utils.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP сервер упал", utils.Err(err))
		}
	}()

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("Остановка сервиса...")

	// Сначала воркеры: пока HTTP жив, панель видит финальное состояние
	if err := controller.Stop(); err != nil {
		logger.Warn("Ошибка остановки торгового цикла", utils.Err(err))
	}
	hubCancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Принудительное завершение HTTP сервера", utils.Err(err))
	}

	logger.Info("Сервис остановлен")
}

// exchangeClientConfig собирает настройки отказоустойчивости из конфига
func exchangeClientConfig(cfg *config.Config) exchange.ClientConfig {
	return exchange.ClientConfig{
		MinOrderValueUSDC: cfg.Exchange.MinOrderValueUSDC,
		RequestInterval:   cfg.Exchange.RequestDelay,
		Breaker: breaker.Config{
			Name:             "exchange",
			FailureThreshold: cfg.Exchange.FailureThreshold,
			Timeout:          cfg.Exchange.BreakerTimeout,
			HalfOpenAttempts: cfg.Exchange.HalfOpenAttempts,
		},
		Retry: retry.NetworkConfig(),
	}
}

// initDatabase создает подключение к базе данных
func initDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
