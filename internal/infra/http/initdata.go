package http

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

// InitDataHeader — заголовок, в котором мини-приложение передаёт initData.
const InitDataHeader = "X-Telegram-Init-Data"

type webAppUserKey struct{}

// WithWebAppUser кладёт в контекст id пользователя, подтверждённый подписью initData.
func WithWebAppUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, webAppUserKey{}, userID)
}

// WebAppUserID возвращает id пользователя из проверенного initData, если он есть.
func WebAppUserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(webAppUserKey{}).(string)
	return id, ok && id != ""
}

// WebAppAuthMiddleware проверяет initData мини-приложения по токену бота и
// кладёт id пользователя из него в контекст запроса.
func WebAppAuthMiddleware(botToken string) func(http.Handler) http.Handler {
	secret := webAppSecret(botToken)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			initData := r.Header.Get(InitDataHeader)
			if initData == "" {
				initData = r.URL.Query().Get("init_data")
			}
			if initData == "" {
				WriteError(w, http.StatusUnauthorized, "unauthorized", errors.New("init_data отсутствует"))
				return
			}
			if !ValidateInitData(initData, secret) {
				WriteError(w, http.StatusUnauthorized, "unauthorized", errors.New("подпись недействительна"))
				return
			}
			userID, ok := initDataUserID(initData)
			if !ok {
				WriteError(w, http.StatusUnauthorized, "unauthorized", errors.New("в init_data нет пользователя"))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithWebAppUser(r.Context(), userID)))
		})
	}
}

func webAppSecret(botToken string) []byte {
	h := hmac.New(sha256.New, []byte("WebAppData"))
	h.Write([]byte(botToken))
	return h.Sum(nil)
}

// ValidateInitData проверяет подпись строки initData.
func ValidateInitData(initData string, secret []byte) bool {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return false
	}
	expected, err := hex.DecodeString(values.Get("hash"))
	if err != nil || len(expected) == 0 {
		return false
	}
	return hmac.Equal(signInitData(values, secret), expected)
}

func initDataUserID(initData string) (string, bool) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return "", false
	}
	var user struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal([]byte(values.Get("user")), &user); err != nil || user.ID == 0 {
		return "", false
	}
	return strconv.FormatInt(user.ID, 10), true
}

func signInitData(values url.Values, secret []byte) []byte {
	pairs := make([]string, 0, len(values))
	for key := range values {
		if key == "hash" {
			continue
		}
		pairs = append(pairs, key+"="+values.Get(key))
	}
	sort.Strings(pairs)
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(strings.Join(pairs, "\n")))
	return h.Sum(nil)
}

// RequestID возвращает request ID из контекста chi.
func RequestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}

// ErrorResponse описывает ошибку.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteJSON отправляет JSON с указанным статусом.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError отправляет JSON с ошибкой.
func WriteError(w http.ResponseWriter, status int, kind string, err error) {
	WriteJSON(w, status, ErrorResponse{Error: kind, Message: err.Error()})
}
