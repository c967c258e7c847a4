package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"spotbot/internal/models"
)

// ============================================================
// Prometheus метрики торгового ядра
// ============================================================
//
// Использование:
// - Grafana дашборды (активные пары, гейн, длительность сверки)
// - Alertmanager: алерт на открытый circuit breaker и рост Unknown

// ============ Счётчики событий ============

// OrdersPlaced - размещенные ордера по сторонам и фазам рынка
var OrdersPlaced = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "spotbot",
		Subsystem: "trading",
		Name:      "orders_placed_total",
		Help:      "Total number of orders placed on the venue",
	},
	[]string{"side", "market"},
)

// OrdersFailed - неудачные попытки размещения
var OrdersFailed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "spotbot",
		Subsystem: "trading",
		Name:      "orders_failed_total",
		Help:      "Total number of failed order placements",
	},
	[]string{"side", "reason"}, // reason: min_notional, insufficient, circuit_open, venue, network
)

// PairTransitions - переходы статусов пар
var PairTransitions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "spotbot",
		Subsystem: "trading",
		Name:      "pair_transitions_total",
		Help:      "Total number of pair status transitions",
	},
	[]string{"to"}, // Sell, Complete, Cancelled
)

// RealizedGain - накопленный чистый гейн в USDC
var RealizedGain = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "spotbot",
		Subsystem: "trading",
		Name:      "realized_gain_usdc",
		Help:      "Cumulative realized net gain in USDC",
	},
)

// ============ Метрики сверки ============

// ReconcilePassDuration - длительность одного прохода сверки
var ReconcilePassDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "spotbot",
		Subsystem: "reconcile",
		Name:      "pass_duration_seconds",
		Help:      "Duration of a reconciliation pass in seconds",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	},
)

// ReconcileSkippedPasses - пропущенные тики (прошлый проход еще идет)
var ReconcileSkippedPasses = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "spotbot",
		Subsystem: "reconcile",
		Name:      "skipped_passes_total",
		Help:      "Reconciliation ticks skipped because the previous pass was still running",
	},
)

// UnknownOrders - ордера, чей статус не удалось определить.
// Рост этой метрики - сигнал оператору.
var UnknownOrders = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "spotbot",
		Subsystem: "reconcile",
		Name:      "unknown_orders",
		Help:      "Number of in-flight orders with undeterminable status in the last pass",
	},
)

// ============ Метрики состояния ============

// ActivePairs - количество пар по статусам
var ActivePairs = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "spotbot",
		Subsystem: "trading",
		Name:      "pairs",
		Help:      "Number of pairs by status",
	},
	[]string{"status"},
)

// BreakerState - состояние circuit breaker'а биржевого API
// (0=closed, 1=half-open, 2=open)
var BreakerState = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "spotbot",
		Subsystem: "exchange",
		Name:      "breaker_state",
		Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
	},
	[]string{"surface"},
)

// APICallErrors - ошибки запросов к бирже по операциям
var APICallErrors = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "spotbot",
		Subsystem: "exchange",
		Name:      "api_call_errors_total",
		Help:      "Total number of failed venue API calls",
	},
	[]string{"op"},
)

// MarketPhase - текущая фаза рынка (1 у активной, 0 у остальных)
var MarketPhase = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "spotbot",
		Subsystem: "market",
		Name:      "phase",
		Help:      "Current market phase (1 for the active phase)",
	},
	[]string{"phase"},
)

// ============ Вспомогательные функции ============

// RecordOrderPlaced записывает размещенный ордер
func RecordOrderPlaced(side, marketType string) {
	OrdersPlaced.WithLabelValues(side, marketType).Inc()
}

// RecordOrderFailed записывает неудачное размещение
func RecordOrderFailed(side, reason string) {
	OrdersFailed.WithLabelValues(side, reason).Inc()
}

// RecordTransition записывает переход статуса пары
func RecordTransition(to string) {
	PairTransitions.WithLabelValues(to).Inc()
}

// RecordGain добавляет реализованный гейн
func RecordGain(netUSDC float64) {
	RealizedGain.Add(netUSDC)
}

// UpdateBreakerState обновляет метрику состояния breaker'а
func UpdateBreakerState(surface, state string) {
	var v float64
	switch state {
	case "half_open":
		v = 1
	case "open":
		v = 2
	}
	BreakerState.WithLabelValues(surface).Set(v)
}

// UpdateMarketPhase выставляет метрику активной фазы
func UpdateMarketPhase(active string) {
	for _, phase := range []string{"BULL", "BEAR", "RANGE"} {
		v := 0.0
		if phase == active {
			v = 1
		}
		MarketPhase.WithLabelValues(phase).Set(v)
	}
}

// UpdatePairCounts обновляет счетчики пар по статусам
func UpdatePairCounts(stats *models.Stats) {
	ActivePairs.WithLabelValues(models.PairStatusBuy).Set(float64(stats.BuyPending))
	ActivePairs.WithLabelValues(models.PairStatusSell).Set(float64(stats.SellPending))
	ActivePairs.WithLabelValues(models.PairStatusComplete).Set(float64(stats.Completed))
	ActivePairs.WithLabelValues(models.PairStatusCancelled).Set(float64(stats.Cancelled))
}
