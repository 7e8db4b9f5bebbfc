package handler

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AdminKeyHeader carries the admin API key.
const AdminKeyHeader = "X-Admin-Key"

// AdminAuth rejects requests without the configured admin key. With no key
// configured the admin API is closed.
func (h *Handlers) AdminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.adminKey == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{
				Error:   "admin_disabled",
				Message: "Admin API is disabled",
				Code:    http.StatusForbidden,
			})
			return
		}
		given := c.GetHeader(AdminKeyHeader)
		if subtle.ConstantTimeCompare([]byte(given), []byte(h.adminKey)) != 1 {
			logrus.WithField("client_ip", c.ClientIP()).Warn("Rejected admin request")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "unauthorized",
				Message: "Missing or invalid admin key",
				Code:    http.StatusUnauthorized,
			})
			return
		}
		c.Next()
	}
}
