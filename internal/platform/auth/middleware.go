package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// ErrUnknownUser is returned by a PrincipalLoader when no active account
// matches the token.
var ErrUnknownUser = errors.New("unknown or inactive user")

// PrincipalLoader resolves the account named by a validated token.
type PrincipalLoader interface {
	LoadPrincipal(ctx context.Context, username string) (*Principal, error)
}

type Claims struct {
	jwt.RegisteredClaims
	PreferredUsername string `json:"preferred_username,omitempty"`
}

// Username is preferred_username when the issuer sets it, else the subject.
func (c *Claims) Username() string {
	if c.PreferredUsername != "" {
		return c.PreferredUsername
	}
	return c.Subject
}

type JWTConfig struct {
	Issuer   string
	Audience string
	// Keys verifies RS256 tokens. Ignored when SigningKey is set.
	Keys *JWKSCache
	// SigningKey verifies HS256 tokens.
	SigningKey []byte
	Loader     PrincipalLoader
	Skipper    func(c echo.Context) bool
}

func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	opts := []jwt.ParserOption{}
	if len(cfg.SigningKey) > 0 {
		opts = append(opts, jwt.WithValidMethods([]string{"HS256"}))
	} else {
		opts = append(opts, jwt.WithValidMethods([]string{"RS256"}))
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}

			tokenStr, ok := bearerToken(c.Request().Header.Get("Authorization"))
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication credentials were not provided")
			}

			ctx := c.Request().Context()
			var keyFunc jwt.Keyfunc
			if len(cfg.SigningKey) > 0 {
				keyFunc = func(*jwt.Token) (interface{}, error) { return cfg.SigningKey, nil }
			} else if cfg.Keys != nil {
				keyFunc = cfg.Keys.Keyfunc(ctx)
			} else {
				return echo.NewHTTPError(http.StatusUnauthorized, "token verification is not configured")
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(tokenStr, claims, keyFunc, opts...)
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			return authenticate(c, next, cfg.Loader, claims.Username())
		}
	}
}

// DevAuthMiddleware lets development requests act as the account named in
// the X-Dev-User header. Requests carrying a bearer token go through verify
// and are rejected when verify is nil.
func DevAuthMiddleware(loader PrincipalLoader, verify echo.MiddlewareFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		var verified echo.HandlerFunc = func(echo.Context) error {
			return echo.NewHTTPError(http.StatusUnauthorized, "bearer tokens not configured")
		}
		if verify != nil {
			verified = verify(next)
		}
		return func(c echo.Context) error {
			if c.Request().Header.Get("Authorization") != "" {
				return verified(c)
			}
			username := c.Request().Header.Get("X-Dev-User")
			if username == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "set X-Dev-User or send a bearer token")
			}
			return authenticate(c, next, loader, username)
		}
	}
}

func authenticate(c echo.Context, next echo.HandlerFunc, loader PrincipalLoader, username string) error {
	if username == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "token has no subject")
	}
	ctx := c.Request().Context()
	p, err := loader.LoadPrincipal(ctx, username)
	if errors.Is(err, ErrUnknownUser) {
		return echo.NewHTTPError(http.StatusUnauthorized, "user not found or inactive")
	}
	if err != nil {
		return err
	}

	c.SetRequest(c.Request().WithContext(WithPrincipal(ctx, p)))
	c.Set("username", p.Username)
	return next(c)
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

var publicPaths = map[string]bool{
	"/health":    true,
	"/health/db": true,
}

// PublicPath skips authentication for infrastructure endpoints.
func PublicPath(c echo.Context) bool {
	return publicPaths[c.Path()]
}
