package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"spotbot/internal/models"
)

func TestPairHandlerGetPairs(t *testing.T) {
	t.Run("активные по умолчанию", func(t *testing.T) {
		mock := newMockPairReader()
		mock.active = []*models.OrderPair{
			{Index: 1, Status: models.PairStatusBuy},
			{Index: 2, Status: models.PairStatusSell},
		}
		handler := NewPairHandler(mock)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/pairs", nil)
		w := httptest.NewRecorder()
		handler.GetPairs(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("статус = %d, ожидался 200", w.Code)
		}
		var pairs []*models.OrderPair
		if err := json.NewDecoder(w.Body).Decode(&pairs); err != nil {
			t.Fatalf("декодирование: %v", err)
		}
		if len(pairs) != 2 || pairs[0].Index != 1 {
			t.Errorf("пары = %+v", pairs)
		}
	})

	t.Run("завершенные с лимитом", func(t *testing.T) {
		mock := newMockPairReader()
		mock.completed = []*models.OrderPair{{Index: 5, Status: models.PairStatusComplete}}
		handler := NewPairHandler(mock)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/pairs?view=completed&limit=10", nil)
		w := httptest.NewRecorder()
		handler.GetPairs(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("статус = %d", w.Code)
		}
		var pairs []*models.OrderPair
		json.NewDecoder(w.Body).Decode(&pairs)
		if len(pairs) != 1 || pairs[0].Status != models.PairStatusComplete {
			t.Errorf("пары = %+v", pairs)
		}
	})

	t.Run("пустой список - не null", func(t *testing.T) {
		handler := NewPairHandler(newMockPairReader())

		req := httptest.NewRequest(http.MethodGet, "/api/v1/pairs", nil)
		w := httptest.NewRecorder()
		handler.GetPairs(w, req)

		if body := w.Body.String(); body == "null\n" {
			t.Errorf("тело = %q, ожидался пустой массив", body)
		}
	})

	t.Run("неизвестный view - 400", func(t *testing.T) {
		handler := NewPairHandler(newMockPairReader())

		req := httptest.NewRequest(http.MethodGet, "/api/v1/pairs?view=bogus", nil)
		w := httptest.NewRecorder()
		handler.GetPairs(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("статус = %d, ожидался 400", w.Code)
		}
	})

	t.Run("сбой хранилища - 500", func(t *testing.T) {
		mock := newMockPairReader()
		mock.err = ErrMockDatabase
		handler := NewPairHandler(mock)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/pairs", nil)
		w := httptest.NewRecorder()
		handler.GetPairs(w, req)

		if w.Code != http.StatusInternalServerError {
			t.Errorf("статус = %d, ожидался 500", w.Code)
		}
	})
}

func TestPairHandlerGetPair(t *testing.T) {
	t.Run("существующая пара", func(t *testing.T) {
		mock := newMockPairReader()
		mock.byIndex[7] = &models.OrderPair{Index: 7, Status: models.PairStatusSell, BuyPrice: 65000}
		handler := NewPairHandler(mock)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/pairs/7", nil)
		req = mux.SetURLVars(req, map[string]string{"id": "7"})
		w := httptest.NewRecorder()
		handler.GetPair(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("статус = %d", w.Code)
		}
		var pair models.OrderPair
		json.NewDecoder(w.Body).Decode(&pair)
		if pair.Index != 7 || pair.BuyPrice != 65000 {
			t.Errorf("пара = %+v", pair)
		}
	})

	t.Run("несуществующая - 404", func(t *testing.T) {
		handler := NewPairHandler(newMockPairReader())

		req := httptest.NewRequest(http.MethodGet, "/api/v1/pairs/99", nil)
		req = mux.SetURLVars(req, map[string]string{"id": "99"})
		w := httptest.NewRecorder()
		handler.GetPair(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("статус = %d, ожидался 404", w.Code)
		}
	})

	t.Run("нечисловой индекс - 400", func(t *testing.T) {
		handler := NewPairHandler(newMockPairReader())

		req := httptest.NewRequest(http.MethodGet, "/api/v1/pairs/abc", nil)
		req = mux.SetURLVars(req, map[string]string{"id": "abc"})
		w := httptest.NewRecorder()
		handler.GetPair(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("статус = %d, ожидался 400", w.Code)
		}
	})
}

func TestPairHandlerGetStats(t *testing.T) {
	mock := newMockPairReader()
	mock.stats = &models.Stats{
		TotalPairs:    10,
		Completed:     6,
		TotalGainUSDC: 42.5,
	}
	handler := NewPairHandler(mock)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	w := httptest.NewRecorder()
	handler.GetStats(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("статус = %d", w.Code)
	}
	var stats models.Stats
	if err := json.NewDecoder(w.Body).Decode(&stats); err != nil {
		t.Fatalf("декодирование: %v", err)
	}
	if stats.TotalPairs != 10 || stats.TotalGainUSDC != 42.5 {
		t.Errorf("статистика = %+v", stats)
	}
}
