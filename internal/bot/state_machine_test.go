package bot

import (
	"testing"

	"spotbot/internal/models"
)

// TestCanTransition_ValidTransitions проверяет все валидные переходы статуса
func TestCanTransition_ValidTransitions(t *testing.T) {
	tests := []struct {
		name string
		from string
		to   string
	}{
		{"Buy → Sell (покупка исполнена)", models.PairStatusBuy, models.PairStatusSell},
		{"Buy → Cancelled (ордер покупки отменен)", models.PairStatusBuy, models.PairStatusCancelled},
		{"Sell → Complete (продажа исполнена)", models.PairStatusSell, models.PairStatusComplete},
		{"Sell → Cancelled (ордер продажи отменен)", models.PairStatusSell, models.PairStatusCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !CanTransition(tt.from, tt.to) {
				t.Errorf("CanTransition(%s, %s) = false, want true", tt.from, tt.to)
			}
		})
	}
}

// TestCanTransition_InvalidTransitions проверяет, что путь строго вперед
func TestCanTransition_InvalidTransitions(t *testing.T) {
	tests := []struct {
		name string
		from string
		to   string
	}{
		{"Buy → Complete (минуя Sell)", models.PairStatusBuy, models.PairStatusComplete},
		{"Sell → Buy (назад)", models.PairStatusSell, models.PairStatusBuy},
		{"Complete → Sell (из финального)", models.PairStatusComplete, models.PairStatusSell},
		{"Complete → Cancelled (из финального)", models.PairStatusComplete, models.PairStatusCancelled},
		{"Cancelled → Buy (из финального)", models.PairStatusCancelled, models.PairStatusBuy},
		{"неизвестный статус", "Pending", models.PairStatusSell},
		{"переход в самого себя", models.PairStatusBuy, models.PairStatusBuy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if CanTransition(tt.from, tt.to) {
				t.Errorf("CanTransition(%s, %s) = true, want false", tt.from, tt.to)
			}
		})
	}
}

func TestIsFinal(t *testing.T) {
	if IsFinal(models.PairStatusBuy) || IsFinal(models.PairStatusSell) {
		t.Error("active statuses must not be final")
	}
	if !IsFinal(models.PairStatusComplete) || !IsFinal(models.PairStatusCancelled) {
		t.Error("Complete and Cancelled must be final")
	}
}

func TestStatusInfo(t *testing.T) {
	for _, s := range []string{
		models.PairStatusBuy,
		models.PairStatusSell,
		models.PairStatusComplete,
		models.PairStatusCancelled,
	} {
		if StatusInfo(s) == "Неизвестный статус" {
			t.Errorf("StatusInfo(%s) returned the unknown fallback", s)
		}
	}
	if StatusInfo("garbage") != "Неизвестный статус" {
		t.Error("unknown status must return the fallback description")
	}
}
