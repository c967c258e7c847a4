package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"

	"spotbot/internal/repository"
)

func TestOrderHandlerCancelOrder(t *testing.T) {
	t.Run("отменяет с подтверждением", func(t *testing.T) {
		mock := newMockBotService()
		handler := NewOrderHandler(mock)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/3/cancel", strings.NewReader(`{"confirm":true}`))
		req = mux.SetURLVars(req, map[string]string{"id": "3"})
		w := httptest.NewRecorder()
		handler.CancelOrder(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("статус = %d, ожидался 200", w.Code)
		}
		if len(mock.cancelCalls) != 1 || mock.cancelCalls[0] != 3 {
			t.Errorf("вызовы отмены = %v", mock.cancelCalls)
		}
	})

	t.Run("без подтверждения - 400", func(t *testing.T) {
		mock := newMockBotService()
		handler := NewOrderHandler(mock)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/3/cancel", strings.NewReader(`{"confirm":false}`))
		req = mux.SetURLVars(req, map[string]string{"id": "3"})
		w := httptest.NewRecorder()
		handler.CancelOrder(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("статус = %d, ожидался 400", w.Code)
		}
		if len(mock.cancelCalls) != 0 {
			t.Error("отмена выполнена без подтверждения")
		}
	})

	t.Run("пара не найдена - 404", func(t *testing.T) {
		mock := newMockBotService()
		mock.cancelErr = repository.ErrPairNotFound
		handler := NewOrderHandler(mock)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/99/cancel", strings.NewReader(`{"confirm":true}`))
		req = mux.SetURLVars(req, map[string]string{"id": "99"})
		w := httptest.NewRecorder()
		handler.CancelOrder(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("статус = %d, ожидался 404", w.Code)
		}
	})

	t.Run("финальный статус - 409", func(t *testing.T) {
		mock := newMockBotService()
		mock.cancelErr = repository.ErrInvalidTransition
		handler := NewOrderHandler(mock)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/5/cancel", strings.NewReader(`{"confirm":true}`))
		req = mux.SetURLVars(req, map[string]string{"id": "5"})
		w := httptest.NewRecorder()
		handler.CancelOrder(w, req)

		if w.Code != http.StatusConflict {
			t.Errorf("статус = %d, ожидался 409", w.Code)
		}
	})

	t.Run("продажа не размещена - 409", func(t *testing.T) {
		mock := newMockBotService()
		mock.cancelErr = repository.ErrNoSellOrder
		handler := NewOrderHandler(mock)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/5/cancel", strings.NewReader(`{"confirm":true}`))
		req = mux.SetURLVars(req, map[string]string{"id": "5"})
		w := httptest.NewRecorder()
		handler.CancelOrder(w, req)

		if w.Code != http.StatusConflict {
			t.Errorf("статус = %d, ожидался 409", w.Code)
		}
	})
}

func TestOrderHandlerCancelAllOrders(t *testing.T) {
	t.Run("отменяет все", func(t *testing.T) {
		mock := newMockBotService()
		mock.cancelAllN = 4
		handler := NewOrderHandler(mock)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/cancel-all", strings.NewReader(`{"confirm":true}`))
		w := httptest.NewRecorder()
		handler.CancelAllOrders(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("статус = %d", w.Code)
		}
		var resp CancelAllResponse
		json.NewDecoder(w.Body).Decode(&resp)
		if resp.Cancelled != 4 {
			t.Errorf("отменено = %d, ожидалось 4", resp.Cancelled)
		}
	})

	t.Run("частичный успех - 200 с ошибкой в теле", func(t *testing.T) {
		mock := newMockBotService()
		mock.cancelAllN = 2
		mock.cancelAllErr = ErrMockDatabase
		handler := NewOrderHandler(mock)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/cancel-all", strings.NewReader(`{"confirm":true}`))
		w := httptest.NewRecorder()
		handler.CancelAllOrders(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("статус = %d", w.Code)
		}
		var resp CancelAllResponse
		json.NewDecoder(w.Body).Decode(&resp)
		if resp.Cancelled != 2 || resp.Error == "" {
			t.Errorf("ответ = %+v", resp)
		}
	})

	t.Run("без подтверждения - 400", func(t *testing.T) {
		handler := NewOrderHandler(newMockBotService())

		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/cancel-all", strings.NewReader(`{"confirm":false}`))
		w := httptest.NewRecorder()
		handler.CancelAllOrders(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("статус = %d, ожидался 400", w.Code)
		}
	})
}
