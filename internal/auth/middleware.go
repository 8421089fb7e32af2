package auth

import (
	"net/http"
	"strings"
)

// ErrorFunc пишет ответ об ошибке доступа в формате вызывающего.
type ErrorFunc func(w http.ResponseWriter, r *http.Request, status int, message string)

// Middleware определяет личность по заголовку "Authorization: Bearer <jwt>".
// Без заголовка запрос идёт дальше анонимным; неверный токен - 401.
func Middleware(secret []byte, onError ErrorFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}
			if !strings.HasPrefix(header, "Bearer ") {
				onError(w, r, http.StatusUnauthorized, "Authorization header must use the Bearer scheme.")
				return
			}

			id, err := ParseToken(secret, strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")))
			if err != nil {
				onError(w, r, http.StatusUnauthorized, "Invalid or expired token.")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// RequireAuth пропускает только аутентифицированные запросы.
func RequireAuth(onError ErrorFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if FromContext(r.Context()) == nil {
				onError(w, r, http.StatusUnauthorized, "Authentication credentials were not provided.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireStaff пропускает только сотрудников.
func RequireStaff(onError ErrorFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := FromContext(r.Context())
			if id == nil {
				onError(w, r, http.StatusUnauthorized, "Authentication credentials were not provided.")
				return
			}
			if !id.IsStaff {
				onError(w, r, http.StatusForbidden, "You do not have permission to perform this action.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
