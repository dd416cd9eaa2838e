package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"founding-members/internal/service"
)

const buyerKey = "buyer"

// requireAuth accepts an HS256 bearer token and stores the caller as a
// service.Buyer. The user id always comes from the token's sub claim.
func (s *Server) requireAuth() gin.HandlerFunc {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	return func(c *gin.Context) {
		raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || raw == "" {
			abortWithError(c, http.StatusUnauthorized, "unauthenticated", "missing bearer token")
			return
		}

		claims := jwt.MapClaims{}
		token, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
			return s.jwtSecret, nil
		})
		if err != nil || !token.Valid {
			abortWithError(c, http.StatusUnauthorized, "unauthenticated", "invalid token")
			return
		}

		sub, _ := claims.GetSubject()
		if sub == "" {
			abortWithError(c, http.StatusUnauthorized, "unauthenticated", "token has no subject")
			return
		}
		email, _ := claims["email"].(string)
		name, _ := claims["name"].(string)

		c.Set(buyerKey, service.Buyer{UserID: sub, Email: email, Name: name})
		c.Next()
	}
}

func buyerFrom(c *gin.Context) service.Buyer {
	b, _ := c.Get(buyerKey)
	buyer, _ := b.(service.Buyer)
	return buyer
}
