package api

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"chipbridge/models"
)

const internalAPIKeyHeader = "x-internal-api-key"

// sessionClaims are the JWT claims issued by the wallet auth endpoint
type sessionClaims struct {
	WalletAddress string `json:"walletAddress"`
	jwt.RegisteredClaims
}

func issueSessionToken(secret, address string) (string, error) {
	claims := sessionClaims{
		WalletAddress: models.NormalizeAddress(address),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   models.NormalizeAddress(address),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// requireSession validates the bearer token and stores the wallet address
// in the request context
func requireSession(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "missing bearer token"})
			return
		}

		claims := &sessionClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid || claims.WalletAddress == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid session token"})
			return
		}

		c.Set("walletAddress", claims.WalletAddress)
		c.Next()
	}
}

// requireInternalKey guards the internal settlement endpoint
func requireInternalKey(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := c.GetHeader(internalAPIKeyHeader)
		if apiKey == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid internal API key"})
			return
		}
		c.Next()
	}
}
