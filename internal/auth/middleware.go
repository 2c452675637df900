package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"autocheckin/internal/api/response"
)

// HeaderName is the static key header shared with the CheckOut API.
const HeaderName = "x-checkout-key"

// APIKey enforces the static key on every request. Authentication is skipped
// entirely in the dev environment, matching the upstream contract.
func APIKey(expectedKey, env string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if env == "dev" || env == "development" {
			c.Next()
			return
		}

		key := c.GetHeader(HeaderName)
		if key == "" {
			response.Abort(c, http.StatusUnauthorized, "Authentication Failed", "Missing "+HeaderName+" header")
			return
		}
		if expectedKey == "" {
			response.Abort(c, http.StatusInternalServerError, "Server Configuration Error", "API key not configured on server")
			return
		}
		if key != expectedKey {
			response.Abort(c, http.StatusUnauthorized, "Authentication Failed", "Invalid API key")
			return
		}
		c.Next()
	}
}
