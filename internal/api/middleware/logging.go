package middleware

import (
	"net/http"
	"time"

	"spotbot/pkg/utils"
)

// responseWriter перехватывает статус и размер ответа
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// Logging логирует все входящие HTTP запросы: метод, путь, статус,
// длительность, адрес клиента и размер ответа
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		utils.Debug("HTTP запрос",
			utils.String("method", r.Method),
			utils.String("path", r.URL.Path),
			utils.Int("status", wrapped.statusCode),
			utils.Latency(float64(time.Since(start).Milliseconds())),
			utils.String("remote", r.RemoteAddr),
			utils.Int64("bytes", wrapped.written),
		)
	})
}
