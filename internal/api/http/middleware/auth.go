package middleware

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/banking/refdata-service/internal/pkg/logger"
)

// Context keys for auth
const (
	SubjectKey = logger.SubjectKey
	ScopesKey  ContextKey = "scopes"
)

// Scope required for lookups
const ScopeRead = "refdata:read"

// Common errors
var (
	ErrForbidden      = errors.New("forbidden")
	ErrInvalidToken   = errors.New("invalid token")
	ErrTokenExpired   = errors.New("token expired")
	ErrMissingAuth    = errors.New("missing authorization header")
	ErrInvalidSubject = errors.New("invalid subject in token")
	ErrInvalidKey     = errors.New("invalid public key")
)

// AuthConfig holds authentication configuration
type AuthConfig struct {
	PublicKey crypto.PublicKey // RSA or ECDSA public key
	Issuer    string
	Audiences []string
	SkipPaths []string // Paths to skip auth (e.g., health checks)
}

// Claims represents JWT claims
type Claims struct {
	jwt.RegisteredClaims
	Scopes []string `json:"scopes,omitempty"`
}

// ParsePublicKey decodes a PEM encoded RSA or ECDSA public key
func ParsePublicKey(pemData string) (crypto.PublicKey, error) {
	data := []byte(pemData)
	if key, err := jwt.ParseRSAPublicKeyFromPEM(data); err == nil {
		return key, nil
	}
	if key, err := jwt.ParseECPublicKeyFromPEM(data); err == nil {
		return key, nil
	}
	return nil, ErrInvalidKey
}

// Auth middleware validates bearer tokens and stores the caller's subject and
// scopes in the request context
func Auth(cfg AuthConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// Skip auth for certain paths
			path := c.Request().URL.Path
			for _, skip := range cfg.SkipPaths {
				if strings.HasPrefix(path, skip) {
					return next(c)
				}
			}

			// Extract token from Authorization header
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, ErrMissingAuth.Error())
			}

			// Expect "Bearer <token>"
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, ErrInvalidToken.Error())
			}

			// Parse and validate token
			claims, err := validateToken(parts[1], cfg)
			if err != nil {
				if errors.Is(err, jwt.ErrTokenExpired) {
					return echo.NewHTTPError(http.StatusUnauthorized, ErrTokenExpired.Error())
				}
				return echo.NewHTTPError(http.StatusUnauthorized, ErrInvalidToken.Error())
			}

			// Extract subject (calling client)
			subject := claims.Subject
			if subject == "" || len(subject) > 128 {
				return echo.NewHTTPError(http.StatusUnauthorized, ErrInvalidSubject.Error())
			}

			// Set in context
			ctx := c.Request().Context()
			ctx = context.WithValue(ctx, SubjectKey, subject)
			ctx = context.WithValue(ctx, ScopesKey, claims.Scopes)
			c.SetRequest(c.Request().WithContext(ctx))

			// Also set in Echo context
			c.Set(string(SubjectKey), subject)
			c.Set(string(ScopesKey), claims.Scopes)

			return next(c)
		}
	}
}

func validateToken(tokenString string, cfg AuthConfig) (*Claims, error) {
	opts := []jwt.ParserOption{
		// Asymmetric algorithms only; an HS* token must never verify against a public key
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512", "PS256", "PS384", "PS512", "ES256", "ES384", "ES512"}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if cfg.PublicKey == nil {
			return nil, ErrInvalidKey
		}
		return cfg.PublicKey, nil
	}, opts...)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	// Validate audience
	if len(cfg.Audiences) > 0 && !slices.ContainsFunc(claims.Audience, func(aud string) bool {
		return slices.Contains(cfg.Audiences, aud)
	}) {
		return nil, fmt.Errorf("%w: audience", ErrInvalidToken)
	}

	return claims, nil
}

// RequireScopes middleware checks if the token has required scopes.
// Requests that were not authenticated pass through.
func RequireScopes(requiredScopes ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, authenticated := GetSubjectFromEcho(c); !authenticated {
				return next(c)
			}

			// Check if all required scopes are present
			scopes, _ := c.Get(string(ScopesKey)).([]string)
			for _, required := range requiredScopes {
				if !slices.Contains(scopes, required) {
					return echo.NewHTTPError(http.StatusForbidden, "insufficient permissions")
				}
			}

			return next(c)
		}
	}
}

// GetSubject extracts the authenticated caller from context
func GetSubject(ctx context.Context) (string, bool) {
	sub, ok := ctx.Value(SubjectKey).(string)
	return sub, ok
}

// GetSubjectFromEcho extracts the authenticated caller from Echo context
func GetSubjectFromEcho(c echo.Context) (string, bool) {
	sub, ok := c.Get(string(SubjectKey)).(string)
	return sub, ok
}
