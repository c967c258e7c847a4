package models

// Stats представляет агрегированную статистику по парам ордеров
type Stats struct {
	TotalPairs       int     `json:"total_pairs"`
	BuyPending       int     `json:"buy_pending"`       // status=Buy
	SellPending      int     `json:"sell_pending"`      // status=Sell
	Completed        int     `json:"completed"`         // status=Complete
	Cancelled        int     `json:"cancelled"`         // status=Cancelled
	ProfitableTrades int     `json:"profitable_trades"` // завершенные с gain > 0
	LosingTrades     int     `json:"losing_trades"`
	TotalGainUSDC    float64 `json:"total_gain_usdc"`
	AverageGainUSDC  float64 `json:"average_gain_usdc"`
	WinRate          float64 `json:"win_rate"` // % прибыльных среди завершенных
}
