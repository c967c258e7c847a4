package models

// GainBreakdown - разбивка прибыли завершённой пары
type GainBreakdown struct {
	GrossUSDC   float64 `json:"gross_usdc"`
	FeeUSDC     float64 `json:"fee_usdc"`
	NetUSDC     float64 `json:"net_usdc"`
	NetPercent  float64 `json:"net_percent"`
	CostBasis   float64 `json:"cost_basis"`
	ProceedsRaw float64 `json:"proceeds_raw"`
}

// ComputeGain вычисляет итог пары после исполнения sell ордера.
//
// Обе стороны - лимитные maker ордера, комиссия берётся с нотионала
// каждой стороны:
//
//	gross = (sell - buy) * qty
//	fee   = feeRate * (buy + sell) * qty
//	net   = gross - fee
//	pct   = net / (buy * qty) * 100
//
// feeRate - доля, не процент (0.04% = 0.0004).
func ComputeGain(buyPrice, sellPrice, quantityBTC, feeRate float64) GainBreakdown {
	costBasis := buyPrice * quantityBTC
	proceeds := sellPrice * quantityBTC

	gross := proceeds - costBasis
	fee := feeRate * (buyPrice + sellPrice) * quantityBTC
	net := gross - fee

	var pct float64
	if costBasis != 0 {
		pct = net / costBasis * 100
	}

	return GainBreakdown{
		GrossUSDC:   gross,
		FeeUSDC:     fee,
		NetUSDC:     net,
		NetPercent:  pct,
		CostBasis:   costBasis,
		ProceedsRaw: proceeds,
	}
}
