package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"transitdocs/internal/config"
)

// LocalKey is the Fiber locals key under which middleware stores the Session.
const LocalKey = "session"

// Claims are the JWT claims issued by the identity provider. The subject is
// the user id; Department carries the organizational claim.
type Claims struct {
	Department string `json:"department"`
	jwt.RegisteredClaims
}

// GenerateToken signs a token for a user. Used by provisioning tooling and tests.
func GenerateToken(userID, department, secret string, ttl time.Duration) (string, error) {
	claims := Claims{
		Department: department,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken validates a signed token and returns its claims.
func ParseToken(tokenString, secret string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// Middleware validates the Authorization bearer token and stores a Session in
// the request locals for downstream handlers.
func Middleware(cfg config.AuthConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "authorization header required")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid authorization header format")
		}

		claims, err := ParseToken(parts[1], cfg.JWTSecret)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid or expired token")
		}

		c.Locals(LocalKey, Static{User: claims.Subject, Dept: claims.Department})
		return c.Next()
	}
}

// FromCtx extracts the Session stored by Middleware. The second return is
// false when the route was not behind the middleware.
func FromCtx(c *fiber.Ctx) (Session, bool) {
	s, ok := c.Locals(LocalKey).(Static)
	return s, ok
}
