package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Recovery turns panics into 500 responses, reporting them to Sentry when a client is bound.
func Recovery(log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}

			hub := sentry.CurrentHub().Clone()
			hub.WithScope(func(scope *sentry.Scope) {
				scope.SetTag("route", c.FullPath())
				scope.SetTag("trace_id", GetTraceID(c))
				scope.SetExtra("stack", string(debug.Stack()))
				hub.Recover(rec)
			})

			log.Error("panic recovered",
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method),
				zap.String("panic", fmt.Sprint(rec)),
			)

			c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorBody{
				Error:   "internal server error",
				Code:    "internal_error",
				TraceID: GetTraceID(c),
			})
		}()

		c.Next()
	}
}

// ErrorBody is the JSON error envelope shared by handlers and middleware.
type ErrorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	TraceID string `json:"traceId,omitempty"`
}
