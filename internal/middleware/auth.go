package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/osvaldoandrade/gaitkeepr/pkg/auth"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware requires a valid bearer token. A nil validator leaves the
// route open, which is the dev default.
func AuthMiddleware(validator auth.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if validator == nil {
			c.Next()
			return
		}
		claims, err := validateBearer(validator, c.GetHeader("Authorization"))
		if err != nil {
			c.Header("WWW-Authenticate", `Bearer realm="gaitkeepr"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set("userClaims", claims)
		c.Set("subject", claims.Subject)
		c.Next()
	}
}

func validateBearer(validator auth.Validator, authHeader string) (*auth.Claims, error) {
	if strings.TrimSpace(authHeader) == "" {
		return nil, fmt.Errorf("missing Authorization header")
	}
	token := bearerToken(authHeader)
	if token == "" {
		return nil, fmt.Errorf("invalid Authorization format")
	}
	claims, err := validator.Validate(token)
	if err != nil {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

func bearerToken(authHeader string) string {
	authHeader = strings.TrimSpace(authHeader)
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
