// Package market классифицирует рыночную фазу по скользящим средним
// и выдает торговые параметры (офсеты, процент депозита, паузы) для
// каждой фазы.
package market

import (
	"context"
	"errors"
	"strconv"
	"time"

	"spotbot/internal/models"
	"spotbot/pkg/utils"
)

// Типы рынка
const (
	TypeBull  = "BULL"  // ma4 > ma8 > ma12, восходящий тренд
	TypeBear  = "BEAR"  // ma4 < ma8 < ma12, нисходящий тренд
	TypeRange = "RANGE" // MA12 плоская или порядок MA смешанный
)

// ErrNoCandles возвращается когда биржа не отдала ни одной свечи
var ErrNoCandles = errors.New("no candles returned")

// CandleSource абстрагирует источник свечей (реализуется exchange.Client)
type CandleSource interface {
	GetCandles(ctx context.Context, symbol, interval string, lookback int) ([]models.Candle, error)
}

// MarketParams - торговые параметры одной рыночной фазы
type MarketParams struct {
	BuyOffset    float64       // прибавляется к споту для цены покупки (обычно <= 0)
	SellOffset   float64       // прибавляется к споту для цены продажи
	Percent      float64       // % доступного баланса на один ордер
	TimePause    time.Duration // пауза после размещения ордера
	AutoInterval time.Duration // минимальный интервал между новыми парами
	BuyEnabled   bool          // разрешены ли покупки в этой фазе
}

// Config - параметры анализатора
type Config struct {
	Symbol   string
	Interval string // "1h", "15m" и т.д.
	Lookback int    // сколько свечей запрашивать

	MA4Period  int
	MA8Period  int
	MA12Period int

	// MA12 считается плоской если разброс последних FlatPeriodsCheck
	// значений MA12 не превышает FlatThreshold процентов
	FlatThreshold    float64
	FlatPeriodsCheck int

	// Границы диапазона считаются по последним RangePeriods закрытиям.
	// В RANGE офсеты динамические: +/- delta*RangeDynamicPercent/100/2
	RangePeriods        int
	RangeDynamicPercent float64

	Bull  MarketParams
	Bear  MarketParams
	Range MarketParams
}

// DefaultConfig возвращает параметры по умолчанию
func DefaultConfig(symbol string) Config {
	return Config{
		Symbol:              symbol,
		Interval:            "1h",
		Lookback:            100,
		MA4Period:           4,
		MA8Period:           8,
		MA12Period:          12,
		FlatThreshold:       0.25,
		FlatPeriodsCheck:    5,
		RangePeriods:        20,
		RangeDynamicPercent: 75,
		Bull: MarketParams{
			BuyOffset:    0,
			SellOffset:   1000,
			Percent:      3,
			TimePause:    10 * time.Minute,
			AutoInterval: 360 * time.Minute,
			BuyEnabled:   true,
		},
		Bear: MarketParams{
			BuyOffset:    -1000,
			SellOffset:   0,
			Percent:      3,
			TimePause:    10 * time.Minute,
			AutoInterval: 360 * time.Minute,
			BuyEnabled:   false,
		},
		Range: MarketParams{
			BuyOffset:    -400,
			SellOffset:   400,
			Percent:      5,
			TimePause:    10 * time.Minute,
			AutoInterval: 180 * time.Minute,
			BuyEnabled:   true,
		},
	}
}

// Snapshot - результат одного прогона анализа
type Snapshot struct {
	Market string  `json:"market"`
	Price  float64 `json:"price"` // закрытие последней свечи

	MA4  float64 `json:"ma4"`
	MA8  float64 `json:"ma8"`
	MA12 float64 `json:"ma12"`

	RangeHigh  float64 `json:"range_high"`
	RangeLow   float64 `json:"range_low"`
	RangeDelta float64 `json:"range_delta"`
	RangeMid   float64 `json:"range_mid"`

	Timestamp time.Time `json:"timestamp"`
}

// TradingParams - параметры текущей фазы, готовые к применению воркером.
// OffsetLabel вида "-400/+400" пишется в запись пары для отчетности.
type TradingParams struct {
	Market       string        `json:"market"`
	BuyOffset    float64       `json:"buy_offset"`
	SellOffset   float64       `json:"sell_offset"`
	Percent      float64       `json:"percent"`
	TimePause    time.Duration `json:"-"`
	AutoInterval time.Duration `json:"-"`
	BuyEnabled   bool          `json:"buy_enabled"`
	OffsetLabel  string        `json:"offset_label"`
}

// Analyzer классифицирует рынок по свечам с биржи
type Analyzer struct {
	source CandleSource
	cfg    Config
	log    *utils.Logger
}

// NewAnalyzer создает анализатор рынка
func NewAnalyzer(source CandleSource, cfg Config, log *utils.Logger) *Analyzer {
	return &Analyzer{
		source: source,
		cfg:    cfg,
		log:    log.WithComponent("market_analyzer"),
	}
}

// Analyze запрашивает свечи и классифицирует текущую фазу рынка
func (a *Analyzer) Analyze(ctx context.Context) (*Snapshot, error) {
	candles, err := a.source.GetCandles(ctx, a.cfg.Symbol, a.cfg.Interval, a.cfg.Lookback)
	if err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, ErrNoCandles
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	snap := Classify(closes, a.cfg)
	snap.Timestamp = time.Now().UTC()

	a.log.Debug("market classified",
		utils.Market(snap.Market),
		utils.Price(snap.Price),
		utils.Float64("ma4", snap.MA4),
		utils.Float64("ma8", snap.MA8),
		utils.Float64("ma12", snap.MA12),
	)
	return snap, nil
}

// Params возвращает торговые параметры для фазы из снимка.
// В RANGE офсеты динамические от ширины диапазона; при вырожденном
// диапазоне действует статический фолбэк из конфига.
func (a *Analyzer) Params(snap *Snapshot) TradingParams {
	switch snap.Market {
	case TypeBull:
		return makeParams(TypeBull, a.cfg.Bull)
	case TypeBear:
		return makeParams(TypeBear, a.cfg.Bear)
	default:
		p := a.cfg.Range
		if snap.RangeDelta > 0 {
			offset := snap.RangeDelta * a.cfg.RangeDynamicPercent / 100 / 2
			p.BuyOffset = -offset
			p.SellOffset = offset
		}
		return makeParams(TypeRange, p)
	}
}

func makeParams(market string, p MarketParams) TradingParams {
	return TradingParams{
		Market:       market,
		BuyOffset:    p.BuyOffset,
		SellOffset:   p.SellOffset,
		Percent:      p.Percent,
		TimePause:    p.TimePause,
		AutoInterval: p.AutoInterval,
		BuyEnabled:   p.BuyEnabled,
		OffsetLabel:  offsetLabel(p.BuyOffset, p.SellOffset),
	}
}

// ============================================================
// Чистая математика классификации (без I/O, тестируется напрямую)
// ============================================================

// Classify вычисляет фазу рынка и границы диапазона по ряду закрытий.
// Порядок проверок важен: плоская MA12 означает RANGE даже при
// выстроенном порядке MA4/MA8/MA12.
func Classify(closes []float64, cfg Config) *Snapshot {
	price := closes[len(closes)-1]

	snap := &Snapshot{
		Price: price,
		MA4:   MovingAverage(closes, cfg.MA4Period, 0),
		MA8:   MovingAverage(closes, cfg.MA8Period, 0),
		MA12:  MovingAverage(closes, cfg.MA12Period, 0),
	}

	high, low := rangeLimits(closes, cfg.RangePeriods)
	snap.RangeHigh = high
	snap.RangeLow = low
	snap.RangeDelta = high - low
	snap.RangeMid = (high + low) / 2

	switch {
	case isFlat(closes, cfg):
		snap.Market = TypeRange
	case snap.MA4 > snap.MA8 && snap.MA8 > snap.MA12:
		snap.Market = TypeBull
	case snap.MA4 < snap.MA8 && snap.MA8 < snap.MA12:
		snap.Market = TypeBear
	default:
		snap.Market = TypeRange
	}
	return snap
}

// MovingAverage возвращает среднее последних period закрытий со сдвигом
// offset свечей от конца ряда. При нехватке данных возвращает текущую
// цену: такая MA нейтральна и не ломает сравнение порядка.
func MovingAverage(closes []float64, period, offset int) float64 {
	end := len(closes) - offset
	if period <= 0 || end-period < 0 {
		return closes[len(closes)-1]
	}
	var sum float64
	for _, v := range closes[end-period : end] {
		sum += v
	}
	return sum / float64(period)
}

// isFlat проверяет, что последние FlatPeriodsCheck значений MA12
// разбросаны не больше чем на FlatThreshold процентов
func isFlat(closes []float64, cfg Config) bool {
	if len(closes) < cfg.MA12Period+cfg.FlatPeriodsCheck-1 {
		return false
	}

	min, max := 0.0, 0.0
	for i := 0; i < cfg.FlatPeriodsCheck; i++ {
		ma := MovingAverage(closes, cfg.MA12Period, i)
		if i == 0 || ma < min {
			min = ma
		}
		if i == 0 || ma > max {
			max = ma
		}
	}
	if min <= 0 {
		return false
	}
	return (max-min)/min*100 <= cfg.FlatThreshold
}

// rangeLimits возвращает максимум и минимум последних periods закрытий
func rangeLimits(closes []float64, periods int) (high, low float64) {
	start := len(closes) - periods
	if start < 0 {
		start = 0
	}
	window := closes[start:]
	high, low = window[0], window[0]
	for _, v := range window[1:] {
		if v > high {
			high = v
		}
		if v < low {
			low = v
		}
	}
	return high, low
}

func offsetLabel(buy, sell float64) string {
	return signedNum(buy) + "/" + signedNum(sell)
}

func signedNum(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if v > 0 {
		return "+" + s
	}
	return s
}
