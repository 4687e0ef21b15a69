package server

import (
	"ctchen222/tictactoe-solo/internal/api/response"
	"ctchen222/tictactoe-solo/internal/api/service"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const sessionIDKey = "session.id"

// requestLogger logs method, path, status, bytes, and duration of each request.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.InfoContext(c.Request.Context(), "http",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"bytes", c.Writer.Size(),
			"dur", time.Since(start).Round(time.Millisecond),
		)
	}
}

// requireSessionToken accepts only a bearer token issued for the :id session.
func requireSessionToken(tokens *service.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			response.AbortWithError(c, http.StatusUnauthorized, "missing bearer token")
			return
		}

		sessionID, err := tokens.Verify(token)
		if err != nil {
			response.AbortWithError(c, http.StatusUnauthorized, err.Error())
			return
		}
		if sessionID != c.Param("id") {
			response.AbortWithError(c, http.StatusForbidden, "token was issued for another session")
			return
		}

		c.Set(sessionIDKey, sessionID)
		c.Next()
	}
}
