package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"spotbot/internal/models"
)

const (
	hyperliquidBaseURL = "https://api.hyperliquid.xyz"

	// Стороны в нотации биржи: B = bid (покупка), A = ask (продажа)
	hlSideBid = "B"
	hlSideAsk = "A"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Hyperliquid реализует Venue для спотового API Hyperliquid.
//
// Протокол: два POST эндпоинта. /info - публичные и аккаунт-запросы
// без подписи, /exchange - торговые действия с подписью. Все числа
// приходят строками.
type Hyperliquid struct {
	baseURL    string
	address    string // адрес аккаунта для info запросов
	apiSecret  string // ключ подписи торговых действий
	httpClient *http.Client
}

// NewHyperliquid создает новый адаптер.
// Использует глобальный HTTP клиент с connection pooling.
func NewHyperliquid(address, apiSecret string) *Hyperliquid {
	return &Hyperliquid{
		baseURL:    hyperliquidBaseURL,
		address:    address,
		apiSecret:  apiSecret,
		httpClient: GetGlobalHTTPClient().GetClient(),
	}
}

// NewHyperliquidWithBaseURL создает адаптер с нестандартным URL (тесты)
func NewHyperliquidWithBaseURL(baseURL, address, apiSecret string) *Hyperliquid {
	h := NewHyperliquid(address, apiSecret)
	h.baseURL = strings.TrimRight(baseURL, "/")
	return h
}

// Name возвращает имя биржи
func (h *Hyperliquid) Name() string {
	return "hyperliquid"
}

// ============================================================
// Info эндпоинт
// ============================================================

// GetSpotPrice возвращает текущую спотовую цену символа
func (h *Hyperliquid) GetSpotPrice(ctx context.Context, symbol string) (float64, error) {
	body, err := h.post(ctx, "/info", map[string]interface{}{"type": "allMids"}, false)
	if err != nil {
		return 0, err
	}

	var mids map[string]string
	if err := json.Unmarshal(body, &mids); err != nil {
		return 0, h.wrapErr("decode allMids", err)
	}

	raw, ok := mids[symbol]
	if !ok {
		return 0, &VenueError{Venue: h.Name(), Message: "no mid price for " + symbol}
	}

	price, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, h.wrapErr("parse mid price", err)
	}
	return price, nil
}

// GetBalances возвращает балансы спотового аккаунта
func (h *Hyperliquid) GetBalances(ctx context.Context) ([]models.Balance, error) {
	body, err := h.post(ctx, "/info", map[string]interface{}{
		"type": "spotClearinghouseState",
		"user": h.address,
	}, false)
	if err != nil {
		return nil, err
	}

	var state struct {
		Balances []struct {
			Coin  string `json:"coin"`
			Total string `json:"total"`
			Hold  string `json:"hold"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(body, &state); err != nil {
		return nil, h.wrapErr("decode balances", err)
	}

	balances := make([]models.Balance, 0, len(state.Balances))
	for _, b := range state.Balances {
		total, _ := strconv.ParseFloat(b.Total, 64)
		hold, _ := strconv.ParseFloat(b.Hold, 64)
		balances = append(balances, models.Balance{
			Asset:     b.Coin,
			Total:     total,
			Hold:      hold,
			Available: total - hold,
		})
	}
	return balances, nil
}

// GetOpenOrders возвращает все открытые ордера аккаунта
func (h *Hyperliquid) GetOpenOrders(ctx context.Context) ([]models.RemoteOrder, error) {
	body, err := h.post(ctx, "/info", map[string]interface{}{
		"type": "openOrders",
		"user": h.address,
	}, false)
	if err != nil {
		return nil, err
	}

	var raw []struct {
		OID       int64  `json:"oid"`
		Coin      string `json:"coin"`
		Side      string `json:"side"`
		LimitPx   string `json:"limitPx"`
		Sz        string `json:"sz"`
		Timestamp int64  `json:"timestamp"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, h.wrapErr("decode open orders", err)
	}

	orders := make([]models.RemoteOrder, 0, len(raw))
	for _, o := range raw {
		price, _ := strconv.ParseFloat(o.LimitPx, 64)
		size, _ := strconv.ParseFloat(o.Sz, 64)
		orders = append(orders, models.RemoteOrder{
			ID:        strconv.FormatInt(o.OID, 10),
			Symbol:    o.Coin,
			Side:      hlSideToSide(o.Side),
			Price:     price,
			Size:      size,
			Status:    models.RemoteStatusOpen,
			Timestamp: time.UnixMilli(o.Timestamp),
		})
	}
	return orders, nil
}

// GetFills возвращает исполнения начиная с указанного времени
func (h *Hyperliquid) GetFills(ctx context.Context, since time.Time) ([]models.RemoteFill, error) {
	body, err := h.post(ctx, "/info", map[string]interface{}{
		"type":      "userFillsByTime",
		"user":      h.address,
		"startTime": since.UnixMilli(),
	}, false)
	if err != nil {
		return nil, err
	}

	var raw []struct {
		OID  int64  `json:"oid"`
		Coin string `json:"coin"`
		Side string `json:"side"`
		Px   string `json:"px"`
		Sz   string `json:"sz"`
		Fee  string `json:"fee"`
		Time int64  `json:"time"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, h.wrapErr("decode fills", err)
	}

	fills := make([]models.RemoteFill, 0, len(raw))
	for _, f := range raw {
		price, _ := strconv.ParseFloat(f.Px, 64)
		size, _ := strconv.ParseFloat(f.Sz, 64)
		fee, _ := strconv.ParseFloat(f.Fee, 64)
		fills = append(fills, models.RemoteFill{
			OrderID:   strconv.FormatInt(f.OID, 10),
			Symbol:    f.Coin,
			Side:      hlSideToSide(f.Side),
			Price:     price,
			Size:      size,
			Fee:       fee,
			Timestamp: time.UnixMilli(f.Time),
		})
	}
	return fills, nil
}

// GetOrderStatus возвращает нормализованный статус ордера.
// Биржа различает отмененный ордер и ордер, которого никогда не было:
// на "unknownOid" отвечаем RemoteStatusUnknown без ошибки.
func (h *Hyperliquid) GetOrderStatus(ctx context.Context, orderID string) (string, error) {
	oid, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return "", h.wrapErr("parse order id", err)
	}

	body, err := h.post(ctx, "/info", map[string]interface{}{
		"type": "orderStatus",
		"user": h.address,
		"oid":  oid,
	}, false)
	if err != nil {
		return "", err
	}

	var raw struct {
		Status string `json:"status"` // "order" | "unknownOid"
		Order  struct {
			Status string `json:"status"`
		} `json:"order"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", h.wrapErr("decode order status", err)
	}

	if raw.Status != "order" {
		return models.RemoteStatusUnknown, nil
	}
	return hlOrderStatus(raw.Order.Status), nil
}

// hlOrderStatus переводит статус ордера биржи в нормализованный
func hlOrderStatus(s string) string {
	switch s {
	case "open":
		return models.RemoteStatusOpen
	case "filled":
		return models.RemoteStatusFilled
	case "canceled", "marginCanceled", "openInterestCapCanceled", "selfTradeCanceled", "reduceOnlyCanceled", "siblingFilledCanceled", "delistedCanceled", "liquidatedCanceled", "scheduledCancel":
		return models.RemoteStatusCancelled
	default:
		return models.RemoteStatusUnknown
	}
}

// GetCandles возвращает свечи символа для заданного интервала
func (h *Hyperliquid) GetCandles(ctx context.Context, symbol, interval string, lookback int) ([]models.Candle, error) {
	body, err := h.post(ctx, "/info", map[string]interface{}{
		"type": "candleSnapshot",
		"req": map[string]interface{}{
			"coin":      symbol,
			"interval":  interval,
			"startTime": 0,
			"endTime":   time.Now().UnixMilli(),
		},
	}, false)
	if err != nil {
		return nil, err
	}

	var raw []struct {
		T int64  `json:"t"`
		O string `json:"o"`
		H string `json:"h"`
		L string `json:"l"`
		C string `json:"c"`
		V string `json:"v"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, h.wrapErr("decode candles", err)
	}

	if lookback > 0 && len(raw) > lookback {
		raw = raw[len(raw)-lookback:]
	}

	candles := make([]models.Candle, 0, len(raw))
	for _, c := range raw {
		open, _ := strconv.ParseFloat(c.O, 64)
		high, _ := strconv.ParseFloat(c.H, 64)
		low, _ := strconv.ParseFloat(c.L, 64)
		cls, _ := strconv.ParseFloat(c.C, 64)
		vol, _ := strconv.ParseFloat(c.V, 64)
		candles = append(candles, models.Candle{
			Time:   time.UnixMilli(c.T),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  cls,
			Volume: vol,
		})
	}
	return candles, nil
}

// ============================================================
// Exchange эндпоинт
// ============================================================

// PlaceLimitOrder размещает лимитный GTC ордер
func (h *Hyperliquid) PlaceLimitOrder(ctx context.Context, symbol, side string, price, size float64) (*models.RemoteOrder, error) {
	action := map[string]interface{}{
		"type": "order",
		"orders": []map[string]interface{}{
			{
				"coin":    symbol,
				"isBuy":   side == SideBuy,
				"limitPx": formatNum(price),
				"sz":      formatNum(size),
				"orderType": map[string]interface{}{
					"limit": map[string]string{"tif": "Gtc"},
				},
			},
		},
	}

	body, err := h.post(ctx, "/exchange", map[string]interface{}{"action": action}, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Status   string `json:"status"`
		Response struct {
			Data struct {
				Statuses []struct {
					Resting *struct {
						OID int64 `json:"oid"`
					} `json:"resting"`
					Filled *struct {
						OID int64 `json:"oid"`
					} `json:"filled"`
					Error string `json:"error"`
				} `json:"statuses"`
			} `json:"data"`
		} `json:"response"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, h.wrapErr("decode order response", err)
	}

	if resp.Status != "ok" || len(resp.Response.Data.Statuses) == 0 {
		return nil, &VenueError{Venue: h.Name(), Message: "order not accepted", Original: ErrOrderRejected}
	}

	st := resp.Response.Data.Statuses[0]
	if st.Error != "" {
		return nil, h.classifyOrderError(st.Error)
	}

	var oid int64
	status := models.RemoteStatusOpen
	switch {
	case st.Resting != nil:
		oid = st.Resting.OID
	case st.Filled != nil:
		oid = st.Filled.OID
		status = models.RemoteStatusFilled
	default:
		return nil, &VenueError{Venue: h.Name(), Message: "order status missing", Original: ErrOrderRejected}
	}

	return &models.RemoteOrder{
		ID:        strconv.FormatInt(oid, 10),
		Symbol:    symbol,
		Side:      side,
		Price:     price,
		Size:      size,
		Status:    status,
		Timestamp: time.Now().UTC(),
	}, nil
}

// CancelOrder отменяет ордер по биржевому ID
func (h *Hyperliquid) CancelOrder(ctx context.Context, symbol, orderID string) error {
	oid, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return h.wrapErr("parse order id", err)
	}

	action := map[string]interface{}{
		"type": "cancel",
		"cancels": []map[string]interface{}{
			{"coin": symbol, "oid": oid},
		},
	}

	body, err := h.post(ctx, "/exchange", map[string]interface{}{"action": action}, true)
	if err != nil {
		return err
	}

	var resp struct {
		Status   string `json:"status"`
		Response struct {
			Data struct {
				Statuses []jsoniter.RawMessage `json:"statuses"`
			} `json:"data"`
		} `json:"response"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return h.wrapErr("decode cancel response", err)
	}

	if resp.Status != "ok" {
		return &VenueError{Venue: h.Name(), Message: "cancel not accepted", Original: ErrOrderRejected}
	}
	return nil
}

// Close закрывает соединения (глобальный пул остается жить)
func (h *Hyperliquid) Close() error {
	return nil
}

// ============================================================
// Внутреннее
// ============================================================

// post отправляет JSON запрос; signed добавляет подпись действия
func (h *Hyperliquid) post(ctx context.Context, path string, payload map[string]interface{}, signed bool) ([]byte, error) {
	if signed {
		payload["nonce"] = time.Now().UnixMilli()
	}

	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	if signed {
		req.Header.Set("X-Signature", h.sign(reqBody))
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &VenueError{
			Venue:   h.Name(),
			Code:    strconv.Itoa(resp.StatusCode),
			Message: fmt.Sprintf("http %d: %s", resp.StatusCode, truncate(string(body), 200)),
		}
	}

	return body, nil
}

// sign подписывает тело запроса HMAC-SHA256
func (h *Hyperliquid) sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(h.apiSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// classifyOrderError переводит текст отказа биржи в доменную ошибку
func (h *Hyperliquid) classifyOrderError(msg string) error {
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "insufficient") || strings.Contains(lower, "balance") {
		return &VenueError{Venue: h.Name(), Message: msg, Original: ErrInsufficientFunds}
	}
	return &VenueError{Venue: h.Name(), Message: msg, Original: ErrOrderRejected}
}

func (h *Hyperliquid) wrapErr(op string, err error) error {
	return &VenueError{Venue: h.Name(), Message: op + ": " + err.Error(), Original: err}
}

func hlSideToSide(s string) string {
	if s == hlSideBid {
		return SideBuy
	}
	return SideSell
}

// formatNum печатает число без экспоненты и без хвостовых нулей
func formatNum(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
