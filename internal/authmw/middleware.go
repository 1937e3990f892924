// Package authmw is a thin bearer-JWT guard for the administrative
// endpoints: queue listing and ticket history.
package authmw

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the minimal JWT payload this service expects: who issued the
// request, nothing ticket-specific.
type Claims struct {
	Subject string `json:"sub"`
	jwt.RegisteredClaims
}

// Middleware validates a bearer token signed with a shared HMAC secret.
type Middleware struct {
	secret []byte
}

// New builds a Middleware over the given signing secret.
func New(secret string) *Middleware {
	return &Middleware{secret: []byte(secret)}
}

// RequireAuth is a gin.HandlerFunc that rejects requests without a valid
// bearer token.
func (m *Middleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		tokenString := strings.TrimPrefix(header, "Bearer ")
		claims, err := m.verify(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("subject", claims.Subject)
		c.Next()
	}
}

func (m *Middleware) verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("authmw: invalid token")
	}
	return claims, nil
}
