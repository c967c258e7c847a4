package middleware

import (
	"crypto/subtle"
	"net/http"

	"spotbot/pkg/crypto"
)

// BasicAuth защищает API панели HTTP Basic аутентификацией.
//
// Имя пользователя сравнивается в константное время, пароль
// проверяется по bcrypt хешу из конфигурации. Если хеш пуст,
// аутентификация отключена (локальное развертывание).
func BasicAuth(username, passwordHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if passwordHash == "" {
				next.ServeHTTP(w, r)
				return
			}

			user, pass, ok := r.BasicAuth()
			if !ok {
				w.Header().Set("WWW-Authenticate", `Basic realm="spotbot"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			userMatch := subtle.ConstantTimeCompare([]byte(user), []byte(username)) == 1
			passMatch := crypto.CheckPasswordMatch(pass, passwordHash)

			if !userMatch || !passMatch {
				w.Header().Set("WWW-Authenticate", `Basic realm="spotbot"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
