package middleware

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/edulms/api-gateway/internal/httputil"
)

// Recovery catches panics at the top of the chain. The client always gets
// the uniform 500 envelope; the stack trace goes to the log only.
func Recovery(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic while handling request",
						zap.String("method", r.Method),
						zap.String("path", r.URL.Path),
						zap.Any("panic", rec),
						zap.Stack("stack"))
					httputil.WriteError(w, http.StatusInternalServerError, "Internal gateway error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
