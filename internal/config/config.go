package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"spotbot/internal/market"
	"spotbot/pkg/crypto"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Security SecurityConfig
	Exchange ExchangeConfig
	Trading  TradingConfig
	Telegram TelegramConfig
	Logging  LoggingConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port int
	Host string
}

// DatabaseConfig - настройки подключения к БД
type DatabaseConfig struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// SecurityConfig - настройки безопасности
type SecurityConfig struct {
	// EncryptionKey - 32 байта для AES-256 шифрования секретов
	EncryptionKey string

	// AdminUser / AdminPasswordHash - BasicAuth для мутирующих роутов
	// панели; хэш bcrypt, генерируется оператором заранее
	AdminUser         string
	AdminPasswordHash string
}

// ExchangeConfig - подключение к бирже и политика отказоустойчивости
type ExchangeConfig struct {
	BaseURL       string
	WalletAddress string

	// APISecret задается либо открытым текстом (API_SECRET), либо
	// запечатанным AES-256-GCM (API_SECRET_SEALED + ENCRYPTION_KEY)
	APISecret       string
	APISecretSealed string

	MinOrderValueUSDC float64
	RequestDelay      time.Duration // общий минимальный интервал между запросами

	// Circuit breaker
	FailureThreshold int
	BreakerTimeout   time.Duration
	HalfOpenAttempts int
}

// TradingConfig - параметры стратегии
type TradingConfig struct {
	Symbol   string
	Interval string // интервал свечей для анализа рынка
	Lookback int    // сколько свечей запрашивать

	// MakerFeePercent в процентах как на бирже (0.04 = 0.04%)
	MakerFeePercent float64

	// Глобальный выключатель покупок; к нему добавляются флаги по фазам
	BuyEnabled bool

	Bull  MarketPhaseConfig
	Bear  MarketPhaseConfig
	Range MarketPhaseConfig

	// Скользящие средние и детект плоского рынка
	MA4Period           int
	MA8Period           int
	MA12Period          int
	MA12FlatThreshold   float64
	MA12PeriodsCheck    int
	RangePeriods        int
	RangeDynamicPercent float64

	// Тайминги воркеров
	InitialDelay      time.Duration // пауза перед первым циклом покупки
	MinCheckInterval  time.Duration // минимальный интервал между попытками покупки
	SellCheckInterval time.Duration // пауза между полными проходами воркера продаж
	SellPairDelay     time.Duration // пауза между парами внутри прохода
	SellRetryDelay    time.Duration // карантин пары после неудачного размещения
	ReconcileInterval time.Duration // период сверки с биржей
}

// MarketPhaseConfig - параметры одной рыночной фазы
type MarketPhaseConfig struct {
	BuyEnabled   bool
	BuyOffset    float64
	SellOffset   float64
	Percent      float64
	TimePause    time.Duration
	AutoInterval time.Duration
}

// TelegramConfig - уведомления в Telegram
type TelegramConfig struct {
	Enabled  bool
	BotToken string
	ChatID   string

	OnOrderPlaced bool
	OnOrderFilled bool
	OnProfit      bool
	OnError       bool
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: getEnvAsInt("SERVER_PORT", 8080),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "spotbot"),
			User:     getEnv("DB_USER", "spotbot"),
			Password: getEnv("DB_PASSWORD", ""),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Security: SecurityConfig{
			EncryptionKey:     getEnv("ENCRYPTION_KEY", ""),
			AdminUser:         getEnv("ADMIN_USER", "admin"),
			AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
		},
		Exchange: ExchangeConfig{
			BaseURL:           getEnv("EXCHANGE_BASE_URL", "https://api.hyperliquid.xyz"),
			WalletAddress:     getEnv("WALLET_ADDRESS", ""),
			APISecret:         getEnv("API_SECRET", ""),
			APISecretSealed:   getEnv("API_SECRET_SEALED", ""),
			MinOrderValueUSDC: getEnvAsFloat("MIN_ORDER_VALUE_USDC", 10.0),
			RequestDelay:      getEnvAsDuration("REQUEST_DELAY", 2500*time.Millisecond),
			FailureThreshold:  getEnvAsInt("BREAKER_FAILURE_THRESHOLD", 3),
			BreakerTimeout:    getEnvAsDuration("BREAKER_TIMEOUT", 180*time.Second),
			HalfOpenAttempts:  getEnvAsInt("BREAKER_HALF_OPEN_ATTEMPTS", 2),
		},
		Trading: TradingConfig{
			Symbol:          getEnv("SYMBOL", "BTC"),
			Interval:        getEnv("INTERVAL", "1h"),
			Lookback:        getEnvAsInt("CANDLE_LOOKBACK", 100),
			MakerFeePercent: getEnvAsFloat("MAKER_FEE", 0.04),
			BuyEnabled:      getEnvAsBool("BUY_ENABLED", true),
			Bull: MarketPhaseConfig{
				BuyEnabled:   getEnvAsBool("BULL_BUY_ENABLED", true),
				BuyOffset:    getEnvAsFloat("BULL_BUY_OFFSET", 0),
				SellOffset:   getEnvAsFloat("BULL_SELL_OFFSET", 1000),
				Percent:      getEnvAsFloat("BULL_PERCENT", 3),
				TimePause:    getEnvAsDuration("BULL_TIME_PAUSE", 10*time.Minute),
				AutoInterval: getEnvAsDuration("BULL_AUTO_INTERVAL", 360*time.Minute),
			},
			Bear: MarketPhaseConfig{
				BuyEnabled:   getEnvAsBool("BEAR_BUY_ENABLED", false),
				BuyOffset:    getEnvAsFloat("BEAR_BUY_OFFSET", -1000),
				SellOffset:   getEnvAsFloat("BEAR_SELL_OFFSET", 0),
				Percent:      getEnvAsFloat("BEAR_PERCENT", 3),
				TimePause:    getEnvAsDuration("BEAR_TIME_PAUSE", 10*time.Minute),
				AutoInterval: getEnvAsDuration("BEAR_AUTO_INTERVAL", 360*time.Minute),
			},
			Range: MarketPhaseConfig{
				BuyEnabled:   getEnvAsBool("RANGE_BUY_ENABLED", true),
				BuyOffset:    getEnvAsFloat("RANGE_BUY_OFFSET", -400),
				SellOffset:   getEnvAsFloat("RANGE_SELL_OFFSET", 400),
				Percent:      getEnvAsFloat("RANGE_PERCENT", 5),
				TimePause:    getEnvAsDuration("RANGE_TIME_PAUSE", 10*time.Minute),
				AutoInterval: getEnvAsDuration("RANGE_AUTO_INTERVAL", 180*time.Minute),
			},
			MA4Period:           getEnvAsInt("MA4_PERIOD", 4),
			MA8Period:           getEnvAsInt("MA8_PERIOD", 8),
			MA12Period:          getEnvAsInt("MA12_PERIOD", 12),
			MA12FlatThreshold:   getEnvAsFloat("MA12_FLAT_THRESHOLD", 0.25),
			MA12PeriodsCheck:    getEnvAsInt("MA12_PERIODS_CHECK", 5),
			RangePeriods:        getEnvAsInt("RANGE_CALCULATION_PERIODS", 20),
			RangeDynamicPercent: getEnvAsFloat("RANGE_DYNAMIC_PERCENT", 75),
			InitialDelay:        getEnvAsDuration("INITIAL_DELAY", 0),
			MinCheckInterval:    getEnvAsDuration("MIN_CHECK_INTERVAL", 10*time.Minute),
			SellCheckInterval:   getEnvAsDuration("SELL_CHECK_INTERVAL", 120*time.Second),
			SellPairDelay:       getEnvAsDuration("SELL_PAIR_DELAY", 2*time.Second),
			SellRetryDelay:      getEnvAsDuration("SELL_RETRY_DELAY", 300*time.Second),
			ReconcileInterval:   getEnvAsDuration("RECONCILE_INTERVAL", 2*time.Minute),
		},
		Telegram: TelegramConfig{
			Enabled:       getEnvAsBool("TELEGRAM_ENABLED", false),
			BotToken:      getEnv("TELEGRAM_BOT_TOKEN", ""),
			ChatID:        getEnv("TELEGRAM_CHAT_ID", ""),
			OnOrderPlaced: getEnvAsBool("TELEGRAM_ON_ORDER_PLACED", true),
			OnOrderFilled: getEnvAsBool("TELEGRAM_ON_ORDER_FILLED", true),
			OnProfit:      getEnvAsBool("TELEGRAM_ON_PROFIT", true),
			OnError:       getEnvAsBool("TELEGRAM_ON_ERROR", true),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			Output: getEnv("LOG_OUTPUT", "stderr"),
		},
	}

	if err := cfg.unsealSecrets(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// unsealSecrets расшифровывает запечатанный секрет биржи, если он задан.
// Открытый API_SECRET имеет приоритет.
func (c *Config) unsealSecrets() error {
	if c.Exchange.APISecret != "" || c.Exchange.APISecretSealed == "" {
		return nil
	}
	if c.Security.EncryptionKey == "" {
		return fmt.Errorf("API_SECRET_SEALED requires ENCRYPTION_KEY")
	}
	secret, err := crypto.OpenSecret(c.Exchange.APISecretSealed, []byte(c.Security.EncryptionKey))
	if err != nil {
		return fmt.Errorf("failed to unseal API_SECRET_SEALED: %w", err)
	}
	c.Exchange.APISecret = secret
	return nil
}

// validate проверяет конфигурацию до старта воркеров.
// Ошибки здесь фатальны: процесс не должен торговать с кривым конфигом.
func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}

	if c.Exchange.WalletAddress == "" {
		return fmt.Errorf("WALLET_ADDRESS is required")
	}
	if c.Exchange.APISecret == "" {
		return fmt.Errorf("API_SECRET is required")
	}
	if c.Exchange.MinOrderValueUSDC <= 0 {
		return fmt.Errorf("MIN_ORDER_VALUE_USDC must be positive, got %v", c.Exchange.MinOrderValueUSDC)
	}
	if c.Exchange.RequestDelay < 0 {
		return fmt.Errorf("REQUEST_DELAY cannot be negative, got %v", c.Exchange.RequestDelay)
	}
	if c.Exchange.FailureThreshold < 1 {
		return fmt.Errorf("BREAKER_FAILURE_THRESHOLD must be at least 1, got %d", c.Exchange.FailureThreshold)
	}

	if c.Trading.Symbol == "" {
		return fmt.Errorf("SYMBOL is required")
	}
	if c.Trading.MakerFeePercent < 0 {
		return fmt.Errorf("MAKER_FEE cannot be negative, got %v", c.Trading.MakerFeePercent)
	}
	for _, phase := range []struct {
		name string
		cfg  MarketPhaseConfig
	}{
		{"BULL", c.Trading.Bull},
		{"BEAR", c.Trading.Bear},
		{"RANGE", c.Trading.Range},
	} {
		if cfg := phase.cfg; cfg.Percent <= 0 || cfg.Percent > 100 {
			return fmt.Errorf("%s_PERCENT must be in (0, 100], got %v", phase.name, cfg.Percent)
		}
	}
	if c.Trading.MinCheckInterval <= 0 {
		return fmt.Errorf("MIN_CHECK_INTERVAL must be positive, got %v", c.Trading.MinCheckInterval)
	}
	if c.Trading.ReconcileInterval <= 0 {
		return fmt.Errorf("RECONCILE_INTERVAL must be positive, got %v", c.Trading.ReconcileInterval)
	}

	if c.Security.EncryptionKey != "" && len(c.Security.EncryptionKey) != 32 {
		return fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes for AES-256")
	}

	if c.Telegram.Enabled && (c.Telegram.BotToken == "" || c.Telegram.ChatID == "") {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID are required when TELEGRAM_ENABLED=true")
	}

	return nil
}

// MakerFeeRate переводит биржевой процент комиссии в долю (0.04% -> 0.0004)
func (t TradingConfig) MakerFeeRate() float64 {
	return t.MakerFeePercent / 100
}

// MarketConfig собирает конфиг анализатора рынка из торговых параметров
func (t TradingConfig) MarketConfig() market.Config {
	return market.Config{
		Symbol:              t.Symbol,
		Interval:            t.Interval,
		Lookback:            t.Lookback,
		MA4Period:           t.MA4Period,
		MA8Period:           t.MA8Period,
		MA12Period:          t.MA12Period,
		FlatThreshold:       t.MA12FlatThreshold,
		FlatPeriodsCheck:    t.MA12PeriodsCheck,
		RangePeriods:        t.RangePeriods,
		RangeDynamicPercent: t.RangeDynamicPercent,
		Bull:                phaseParams(t.Bull),
		Bear:                phaseParams(t.Bear),
		Range:               phaseParams(t.Range),
	}
}

func phaseParams(p MarketPhaseConfig) market.MarketParams {
	return market.MarketParams{
		BuyOffset:    p.BuyOffset,
		SellOffset:   p.SellOffset,
		Percent:      p.Percent,
		TimePause:    p.TimePause,
		AutoInterval: p.AutoInterval,
		BuyEnabled:   p.BuyEnabled,
	}
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
