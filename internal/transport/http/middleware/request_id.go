package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"kpihub/internal/platform/requestctx"
)

type ctxKey string

const ctxKeyUser ctxKey = "user"

// RequestID honors an incoming X-Request-Id header so upstream proxies can
// correlate, and mints one otherwise.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get("X-Request-Id"))
		if requestID == "" || len(requestID) > 64 {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", requestID)
		ctx := requestctx.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetRequestID(ctx context.Context) string {
	return requestctx.GetRequestID(ctx)
}
