package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/llmrelay/llmrelay/internal/models"
	"github.com/llmrelay/llmrelay/internal/service"
)

const apiKeyContextKey = "api_key"

// BearerToken extracts the credential from the Authorization header.
func BearerToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return auth[7:]
	}
	return ""
}

// RequireAPIKey validates the client credential on inference endpoints.
// When vendorHeader is set the Anthropic-style x-api-key header is accepted
// ahead of the Authorization header. Rejections are persisted as 401 call
// logs with the offending request body attached.
func RequireAPIKey(auth *service.AuthService, proxy *service.ProxyService, vendorHeader bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var token string
		if vendorHeader {
			token = c.GetHeader("x-api-key")
		}
		if token == "" {
			token = BearerToken(c)
		}

		key, err := auth.ValidateAPIKey(c.Request.Context(), token)
		if err != nil {
			var aerr *service.AuthError
			if errors.As(err, &aerr) {
				body, _ := io.ReadAll(c.Request.Body)
				c.Request.Body = io.NopCloser(bytes.NewReader(body))
				proxy.LogAuthFailure(aerr.Detail, body)

				errType := "authentication_error"
				if aerr.Missing {
					errType = "invalid_request_error"
				}
				c.Header("WWW-Authenticate", "Bearer")
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": gin.H{"message": aerr.Detail, "type": errType},
				})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": gin.H{"message": "Internal server error", "type": "api_error"},
			})
			return
		}

		c.Set(apiKeyContextKey, key)
		c.Next()
	}
}

// APIKeyFrom returns the key stored by RequireAPIKey, or nil.
func APIKeyFrom(c *gin.Context) *models.APIKey {
	v, ok := c.Get(apiKeyContextKey)
	if !ok {
		return nil
	}
	key, ok := v.(*models.APIKey)
	if !ok {
		return nil
	}
	return key
}

// RequireAdmin validates the admin JWT on management endpoints.
func RequireAdmin(auth *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c)
		if token == "" {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"message": "Not authenticated", "type": "authentication_error"},
			})
			return
		}
		if _, err := auth.VerifyAdminToken(token); err != nil {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"message": "Could not validate credentials", "type": "authentication_error"},
			})
			return
		}
		c.Next()
	}
}
