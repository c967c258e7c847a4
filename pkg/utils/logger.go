package utils

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig конфигурация логгера
type LogConfig struct {
	// Level - уровень логирования: debug, info, warn, error, fatal
	Level string

	// Format - формат вывода: json или text
	Format string

	// Output - путь к файлу лога; пусто = stderr
	Output string

	// Development - режим разработки (цветной вывод, stacktrace на warn)
	Development bool
}

// Logger обёртка над zap.Logger с доменными помощниками
type Logger struct {
	*zap.Logger
	sugar *zap.SugaredLogger
}

// parseLevel преобразует строковый уровень в zapcore.Level
// Неизвестный уровень = info
func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// InitLogger создаёт новый логгер по конфигурации
//
// Не паникует: при недоступном файле лога fallback на stderr
func InitLogger(cfg LogConfig) *Logger {
	level := parseLevel(cfg.Level)

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeDuration = zapcore.StringDurationEncoder

	var encoder zapcore.Encoder
	if strings.ToLower(cfg.Format) == "text" {
		if cfg.Development {
			encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		} else {
			encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		}
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	// "stderr"/"stdout" - именованные потоки, не пути к файлам
	var sink zapcore.WriteSyncer = zapcore.AddSync(os.Stderr)
	switch cfg.Output {
	case "", "stderr":
	case "stdout":
		sink = zapcore.AddSync(os.Stdout)
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			sink = zapcore.AddSync(file)
		}
	}

	core := zapcore.NewCore(encoder, sink, level)

	opts := []zap.Option{zap.AddCaller()}
	if cfg.Development {
		opts = append(opts, zap.Development(), zap.AddStacktrace(zapcore.WarnLevel))
	} else {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	zl := zap.New(core, opts...)

	return &Logger{
		Logger: zl,
		sugar:  zl.Sugar(),
	}
}

// Sugar возвращает sugared логгер для printf-style логирования
func (l *Logger) Sugar() *zap.SugaredLogger {
	return l.sugar
}

// With возвращает новый логгер с дополнительными полями
func (l *Logger) With(fields ...zap.Field) *Logger {
	zl := l.Logger.With(fields...)
	return &Logger{
		Logger: zl,
		sugar:  zl.Sugar(),
	}
}

// WithComponent возвращает логгер с полем component
func (l *Logger) WithComponent(name string) *Logger {
	return l.With(Component(name))
}

// WithSymbol возвращает логгер с полем symbol
func (l *Logger) WithSymbol(symbol string) *Logger {
	return l.With(Symbol(symbol))
}

// WithPairID возвращает логгер с полем pair_id
func (l *Logger) WithPairID(id int) *Logger {
	return l.With(PairID(id))
}

// WithMarket возвращает логгер с полем market (BULL/BEAR/RANGE)
func (l *Logger) WithMarket(market string) *Logger {
	return l.With(Market(market))
}

// ============================================================
// Глобальный логгер
// ============================================================

var (
	globalLogger *Logger
	globalMu     sync.RWMutex
)

// InitGlobalLogger инициализирует и устанавливает глобальный логгер
func InitGlobalLogger(cfg LogConfig) *Logger {
	logger := InitLogger(cfg)
	SetGlobalLogger(logger)
	return logger
}

// SetGlobalLogger устанавливает глобальный логгер
func SetGlobalLogger(logger *Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = logger
}

// GetGlobalLogger возвращает глобальный логгер
// Если не инициализирован - создаёт логгер по умолчанию
func GetGlobalLogger() *Logger {
	globalMu.RLock()
	if globalLogger != nil {
		defer globalMu.RUnlock()
		return globalLogger
	}
	globalMu.RUnlock()

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = InitLogger(LogConfig{})
	}
	return globalLogger
}

// L сокращение для GetGlobalLogger
func L() *Logger {
	return GetGlobalLogger()
}

// Debug логирует через глобальный логгер
func Debug(msg string, fields ...zap.Field) {
	GetGlobalLogger().Debug(msg, fields...)
}

// Info логирует через глобальный логгер
func Info(msg string, fields ...zap.Field) {
	GetGlobalLogger().Info(msg, fields...)
}

// Warn логирует через глобальный логгер
func Warn(msg string, fields ...zap.Field) {
	GetGlobalLogger().Warn(msg, fields...)
}

// Error логирует через глобальный логгер
func Error(msg string, fields ...zap.Field) {
	GetGlobalLogger().Error(msg, fields...)
}

// Fatal логирует через глобальный логгер и завершает процесс
func Fatal(msg string, fields ...zap.Field) {
	GetGlobalLogger().Fatal(msg, fields...)
}

// Debugf printf-style debug через глобальный логгер
func Debugf(template string, args ...interface{}) {
	GetGlobalLogger().sugar.Debugf(template, args...)
}

// Infof printf-style info через глобальный логгер
func Infof(template string, args ...interface{}) {
	GetGlobalLogger().sugar.Infof(template, args...)
}

// Warnf printf-style warn через глобальный логгер
func Warnf(template string, args ...interface{}) {
	GetGlobalLogger().sugar.Warnf(template, args...)
}

// Errorf printf-style error через глобальный логгер
func Errorf(template string, args ...interface{}) {
	GetGlobalLogger().sugar.Errorf(template, args...)
}

// ============================================================
// Доменные конструкторы полей
// ============================================================

// Symbol поле торговой пары (BTCUSDC)
func Symbol(symbol string) zap.Field {
	return zap.String("symbol", symbol)
}

// PairID поле индекса пары ордеров
func PairID(id int) zap.Field {
	return zap.Int("pair_id", id)
}

// OrderID поле идентификатора ордера на бирже
func OrderID(id string) zap.Field {
	return zap.String("order_id", id)
}

// Price поле цены
func Price(price float64) zap.Field {
	return zap.Float64("price", price)
}

// Size поле размера ордера в базовой валюте
func Size(size float64) zap.Field {
	return zap.Float64("size", size)
}

// Gain поле прибыли в USDC
func Gain(gain float64) zap.Field {
	return zap.Float64("gain_usdc", gain)
}

// Side поле стороны ордера (buy/sell)
func Side(side string) zap.Field {
	return zap.String("side", side)
}

// State поле статуса пары
func State(state string) zap.Field {
	return zap.String("state", state)
}

// Market поле типа рынка (BULL/BEAR/RANGE)
func Market(market string) zap.Field {
	return zap.String("market", market)
}

// Latency поле задержки запроса в миллисекундах
func Latency(ms float64) zap.Field {
	return zap.Float64("latency_ms", ms)
}

// RequestID поле идентификатора HTTP запроса
func RequestID(id string) zap.Field {
	return zap.String("request_id", id)
}

// Component поле имени компонента
func Component(name string) zap.Field {
	return zap.String("component", name)
}

// ============================================================
// Переэкспорт стандартных конструкторов zap
// ============================================================

var (
	String  = zap.String
	Int     = zap.Int
	Int64   = zap.Int64
	Float64 = zap.Float64
	Bool    = zap.Bool
	Err     = zap.Error
	Any     = zap.Any
)

// fieldsToInterface преобразует zap поля в плоский список key, value
// для sugared логгера
func fieldsToInterface(fields []zap.Field) []interface{} {
	result := make([]interface{}, 0, len(fields)*2)
	for _, f := range fields {
		var value interface{}
		switch {
		case f.Interface != nil:
			value = f.Interface
		case f.String != "":
			value = f.String
		default:
			value = f.Integer
		}
		result = append(result, f.Key, value)
	}
	return result
}
