package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	obscontext "github.com/smallbiznis/sentinel/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// MiddlewareConfig controls request logging behavior.
type MiddlewareConfig struct {
	Debug           bool
	ErrorClassifier func(err error) (string, string)
}

// GinMiddleware emits one structured line per request and guarantees a
// request ID on both the context and the response headers.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := ensureRequestID(c)
		c.Request = c.Request.WithContext(obscontext.WithRequestID(c.Request.Context(), requestID))

		c.Next()

		route := strings.TrimSpace(c.FullPath())
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		fields := requestFields(c, route, status, start)

		var errorType string
		if last := c.Errors.Last(); last != nil {
			var errorCode string
			if cfg.ErrorClassifier != nil {
				errorType, errorCode = cfg.ErrorClassifier(last.Err)
			}
			fields = append(fields,
				zap.String("error_type", errorType),
				zap.String("error_code", errorCode),
			)
			if cfg.Debug {
				fields = append(fields, zap.Stack("stack"))
			}
		}

		log := FromContext(c.Request.Context())
		if log == nil {
			return
		}
		switch levelFor(route, status, errorType) {
		case zapcore.DebugLevel:
			log.Debug("http_request", fields...)
		case zapcore.ErrorLevel:
			log.Error("http_request", fields...)
		default:
			log.Info("http_request", fields...)
		}
	}
}

// ensureRequestID prefers a caller-supplied header so client retries
// correlate, otherwise mints a fresh ID. Either way the ID is echoed on
// the response.
func ensureRequestID(c *gin.Context) string {
	var id string
	for _, candidate := range []string{
		c.GetHeader("X-Request-Id"),
		c.GetHeader("X-Request-ID"),
		c.GetString("request_id"),
	} {
		if v := strings.TrimSpace(candidate); v != "" {
			id = v
			break
		}
	}
	if id == "" {
		id = uuid.NewString()
	}
	c.Set("request_id", id)
	c.Header("X-Request-Id", id)
	return id
}

func requestFields(c *gin.Context, route string, status int, start time.Time) []zap.Field {
	fields := []zap.Field{
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("route", route),
		zap.Int("status", status),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		zap.Int64("bytes_in", nonNegative(c.Request.ContentLength)),
		zap.Int("bytes_out", nonNegative(c.Writer.Size())),
	}
	if bbl := strings.TrimSpace(c.GetString("bbl")); bbl != "" {
		fields = append(fields, zap.String("bbl", bbl))
	}
	return fields
}

// levelFor drops scrape traffic and expected client noise to debug so the
// info stream stays readable under load.
func levelFor(route string, status int, errorType string) zapcore.Level {
	switch {
	case strings.EqualFold(route, "/metrics"):
		return zapcore.DebugLevel
	case isPropertyLookup(route) && status >= http.StatusBadRequest && status < http.StatusInternalServerError && errorType == "validation_error":
		return zapcore.DebugLevel
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// isPropertyLookup matches the high-volume lookup routes where a malformed
// BBL is expected client noise rather than an operational signal.
func isPropertyLookup(route string) bool {
	return strings.HasPrefix(route, "/v1/properties/")
}

func nonNegative[N int | int64](v N) N {
	if v < 0 {
		return 0
	}
	return v
}
