package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/organ-waitlist-engine/internal/domain"
)

const actorKey = "actor"

// Claims are the bearer-token claims used for actor attribution.
type Claims struct {
	jwt.RegisteredClaims
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
}

// Actor attributes each request to an actor. With a secret configured a valid
// HS256 bearer token is required and its subject becomes the actor. Without one,
// requests run as the system actor. The engine performs no authorization.
func Actor(cfg domain.AuthConfig) gin.HandlerFunc {
	secret := []byte(cfg.JWTSecret)
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if cfg.JWTIssuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.JWTIssuer))
	}

	return func(c *gin.Context) {
		if len(secret) == 0 {
			c.Set(actorKey, domain.SystemActor)
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			abortUnauthorized(c, "missing or malformed authorization header")
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, func(*jwt.Token) (interface{}, error) {
			return secret, nil
		}, opts...)
		if err != nil || !token.Valid || claims.Subject == "" {
			abortUnauthorized(c, "invalid token")
			return
		}

		c.Set(actorKey, domain.Actor{ID: claims.Subject, Name: claims.Name, Role: claims.Role})
		c.Next()
	}
}

// ActorFrom returns the request's actor, or the system actor when none was set.
func ActorFrom(c *gin.Context) domain.Actor {
	if v, ok := c.Get(actorKey); ok {
		if actor, ok := v.(domain.Actor); ok {
			return actor
		}
	}
	return domain.SystemActor
}

// IssueToken signs an actor token. It exists for operators and tests; the
// engine itself never issues credentials.
func IssueToken(cfg domain.AuthConfig, actor domain.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			Issuer:    cfg.JWTIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Name: actor.Name,
		Role: actor.Role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
}

func abortUnauthorized(c *gin.Context, details string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, domain.NewEngineError(
		"UNAUTHORIZED", "authentication required", details, c.GetString(CorrelationIDKey),
	))
}
