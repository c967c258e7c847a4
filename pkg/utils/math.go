package utils

import "math"

// RoundTo округляет значение до заданного числа знаков после запятой
func RoundTo(value float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))
	return math.Round(value*pow) / pow
}

// RoundSize округляет размер ордера в BTC до точности биржи (5 знаков)
func RoundSize(size float64) float64 {
	return RoundTo(size, 5)
}

// RoundPrice округляет цену в USDC до целого значения
func RoundPrice(price float64) float64 {
	return math.Round(price)
}

// WithinTolerance проверяет что actual отличается от expected
// не более чем на fraction (например 0.001 = 0.1%)
//
// Для expected == 0 возвращает true только при actual == 0
func WithinTolerance(actual, expected, fraction float64) bool {
	if expected == 0 {
		return actual == 0
	}
	return math.Abs(actual-expected) <= math.Abs(expected)*fraction
}
