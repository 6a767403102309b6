package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"shop-auth/internal/auth"
	"shop-auth/internal/captcha"
	"shop-auth/internal/domain"
)

const (
	ctxProfileKey = "auth.profile"
	ctxTokenKey   = "auth.token"
)

// requireAuth rejects requests without a valid bearer token and stores the
// decoded profile on the context.
func (h *Handler) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.ExtractToken(c.Request)
		if err != nil {
			h.abortUnauthorized(c, err)
			return
		}

		profile, err := h.tokens.VerifyProfile(token)
		if err != nil {
			h.logger.WithError(err).WithField("path", c.FullPath()).Debug("bearer token rejected")
			h.abortUnauthorized(c, err)
			return
		}

		c.Set(ctxTokenKey, token)
		c.Set(ctxProfileKey, profile)
		c.Next()
	}
}

func (h *Handler) requireCaptcha() gin.HandlerFunc {
	return func(c *gin.Context) {
		err := h.captcha.Verify(c.Request.Context(), c.GetHeader(captchaHeader), c.ClientIP())
		switch {
		case err == nil:
			c.Next()
		case errors.Is(err, captcha.ErrVerificationFailed):
			h.abortUnauthorized(c, auth.Unauthorizedf(err, "Captcha verification failed."))
		default:
			h.logger.WithError(err).Error("captcha provider unavailable")
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "captcha provider unavailable"})
		}
	}
}

func (h *Handler) abortUnauthorized(c *gin.Context, err error) {
	msg := err.Error()
	var unauthorized *auth.UnauthorizedError
	if errors.As(err, &unauthorized) {
		msg = unauthorized.Message
	}
	c.Header("WWW-Authenticate", "Bearer")
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
}

func currentProfile(c *gin.Context) domain.UserProfile {
	profile, _ := c.Get(ctxProfileKey)
	p, _ := profile.(domain.UserProfile)
	return p
}

func currentToken(c *gin.Context) string {
	return c.GetString(ctxTokenKey)
}

func accessLog(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := logger.WithFields(logrus.Fields{
			"method":    c.Request.Method,
			"path":      c.Request.URL.Path,
			"status":    c.Writer.Status(),
			"latency":   time.Since(start).String(),
			"client_ip": c.ClientIP(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("request served")
			return
		}
		entry.Debug("request served")
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, "+captchaHeader)
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
