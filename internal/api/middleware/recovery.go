package middleware

import (
	"net/http"
	"runtime/debug"

	"spotbot/pkg/utils"
)

// Recovery перехватывает панику в handlers и предотвращает падение
// сервера. Клиент получает 500, стек попадает в лог.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				utils.Error("Паника в HTTP handler",
					utils.Any("panic", err),
					utils.String("path", r.URL.Path),
					utils.String("stack", string(debug.Stack())),
				)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
