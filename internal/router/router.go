package router

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"

	"github.com/lif3time-secr3t-c0de/Meeting-Memory/internal/handler"
)

// SetupRouter configures the Gin router with routes and middleware and wraps
// it with CORS for allowedOrigins
func SetupRouter(h *handler.Handlers, allowedOrigins []string) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(loggerMiddleware())
	r.SetHTMLTemplate(handler.Templates())
	h.SetupRoutes(r)

	if len(allowedOrigins) == 0 {
		return r
	}
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", handler.AdminKeyHeader},
	})
	return c.Handler(r)
}

func loggerMiddleware() gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
			param.ClientIP,
			param.TimeStamp.Format(time.RFC1123),
			param.Method,
			redactToken(param.Path),
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
	})
}

// redactToken keeps signed link tokens out of access logs.
func redactToken(path string) string {
	for _, prefix := range []string{"/a/", "/u/", "/inbox/"} {
		if len(path) > len(prefix) && path[:len(prefix)] == prefix {
			return prefix + "<token>"
		}
	}
	return path
}
