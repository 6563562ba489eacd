package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/planner/internal/logger"
	"github.com/planner/internal/sanitize"
)

// bearerToken берёт токен из Authorization: Bearer, иначе из ?token= (браузерный WebSocket не шлёт заголовки).
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:])
		}
	}
	return r.URL.Query().Get("token")
}

// AuthServiceValidate проверяет токен у сервиса авторизации (POST {url}/internal/validate)
// и кладёт в контекст user_id и email. Пустой ответ или не-200 — 401.
func AuthServiceValidate(authServiceURL string, client *http.Client) func(http.Handler) http.Handler {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	validateURL := strings.TrimSuffix(authServiceURL, "/") + "/internal/validate"
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			jsonBody, _ := json.Marshal(map[string]string{"token": token})
			req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, validateURL, bytes.NewReader(jsonBody))
			if err != nil {
				http.Error(w, `{"error":"internal"}`, http.StatusInternalServerError)
				return
			}
			req.Header.Set("Content-Type", "application/json")
			resp, err := client.Do(req)
			if err != nil {
				logger.Errorf("auth validate token=%s: %v", MaskToken(token), err)
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			var result struct {
				UserID string `json:"user_id"`
				Email  string `json:"email"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&result); err != nil || (result.UserID == "" && result.Email == "") {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			ctx := withIdentity(r.Context(), result.UserID, sanitize.Email(result.Email))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TrustedHeaders — только для -dev: идентичность берётся из X-User-Id и X-User-Email без проверки.
// Запрос без обоих заголовков идёт дальше анонимным.
func TrustedHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get("X-User-Id"))
		email := sanitize.Email(r.Header.Get("X-User-Email"))
		if userID == "" && email == "" {
			q := r.URL.Query()
			userID, email = strings.TrimSpace(q.Get("user_id")), sanitize.Email(q.Get("email"))
		}
		if userID == "" && email == "" {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), userID, email)))
	})
}
