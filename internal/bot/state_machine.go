package bot

import "spotbot/internal/models"

// ValidTransitions определяет допустимые переходы статуса пары.
// Путь строго вперед: Buy -> Sell -> Complete; Cancelled - единственный
// боковой выход для пар, чей ордер отменен на бирже до исполнения.
var ValidTransitions = map[string][]string{
	models.PairStatusBuy:       {models.PairStatusSell, models.PairStatusCancelled},
	models.PairStatusSell:      {models.PairStatusComplete, models.PairStatusCancelled},
	models.PairStatusComplete:  {},
	models.PairStatusCancelled: {},
}

// CanTransition проверяет допустимость перехода
func CanTransition(from, to string) bool {
	allowed, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// StatusInfo возвращает описание статуса для UI
func StatusInfo(s string) string {
	switch s {
	case models.PairStatusBuy:
		return "Ордер покупки размещен, ожидание исполнения"
	case models.PairStatusSell:
		return "Покупка исполнена, продажа размещается или ждет исполнения"
	case models.PairStatusComplete:
		return "Пара завершена, гейн зафиксирован"
	case models.PairStatusCancelled:
		return "Ордер отменен до исполнения"
	default:
		return "Неизвестный статус"
	}
}

// IsFinal возвращает true для терминальных статусов
func IsFinal(s string) bool {
	return s == models.PairStatusComplete || s == models.PairStatusCancelled
}
