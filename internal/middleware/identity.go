package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"roomsync/pkg/logger"
)

const identityKey = "identity_username"

// IdentityClaims - claims внешнего провайдера аутентификации
type IdentityClaims struct {
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	jwt.RegisteredClaims
}

// Name - имя пользователя в чате
func (c *IdentityClaims) Name() string {
	switch {
	case c.Username != "":
		return c.Username
	case c.DisplayName != "":
		return c.DisplayName
	default:
		return c.Subject
	}
}

// IdentityMiddleware валидирует токены внешнего провайдера.
// Без required запросы без заголовка проходят анонимно.
type IdentityMiddleware struct {
	jwtSecret []byte
	required  bool
	log       logger.Logger
}

func NewIdentityMiddleware(jwtSecret string, required bool, log logger.Logger) *IdentityMiddleware {
	return &IdentityMiddleware{
		jwtSecret: []byte(jwtSecret),
		required:  required,
		log:       log,
	}
}

func (m *IdentityMiddleware) Identify() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			// токен можно передать query-параметром, браузерный WebSocket не умеет заголовки
			tokenString = c.Query("access_token")
		}
		if tokenString == "" || len(m.jwtSecret) == 0 {
			if m.required {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
				return
			}
			c.Next()
			return
		}

		claims, err := m.parseToken(tokenString)
		if err != nil {
			m.log.Warn("Token validation failed", "error", err.Error())
			if m.required {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
				return
			}
			c.Next()
			return
		}

		if name := claims.Name(); name != "" {
			c.Set(identityKey, name)
		}
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func (m *IdentityMiddleware) parseToken(tokenString string) (*IdentityClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &IdentityClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*IdentityClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token claims")
}

// Username возвращает имя из проверенного токена, если он был
func Username(c *gin.Context) (string, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return "", false
	}
	name, ok := v.(string)
	return name, ok && name != ""
}
