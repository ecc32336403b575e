package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const claimsContextKey = "auth.claims"

// ExtractBearerTokenFromHeader returns the token part of an "Authorization: Bearer <token>" header value.
func ExtractBearerTokenFromHeader(header string) string {
	header = strings.TrimSpace(header)
	const bearerPrefix = "bearer "
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(header[len(bearerPrefix):])
}

// ExtractToken looks at the Authorization header first and then at the given query parameter
// (default "token"). Browsers cannot set headers on websocket upgrades, hence the query fallback.
func ExtractToken(r *http.Request, queryParam string) string {
	if r == nil {
		return ""
	}
	if token := ExtractBearerTokenFromHeader(r.Header.Get("Authorization")); token != "" {
		return token
	}
	if queryParam == "" {
		queryParam = "token"
	}
	if r.URL == nil {
		return ""
	}
	return strings.TrimSpace(r.URL.Query().Get(queryParam))
}

// Middleware validates the request token and stores the claims on the echo context.
func Middleware(validator TokenValidator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, err := validator.Validate(ExtractToken(c.Request(), "token"))
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or missing token")
			}
			c.Set(claimsContextKey, claims)
			return next(c)
		}
	}
}

// RequireRole rejects requests whose claims carry none of the roles. Must run after Middleware.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !ClaimsFrom(c).HasRole(roles...) {
				return echo.NewHTTPError(http.StatusForbidden, ErrForbidden.Error())
			}
			return next(c)
		}
	}
}

// ClaimsFrom returns the claims set by Middleware, or nil.
func ClaimsFrom(c echo.Context) *Claims {
	claims, _ := c.Get(claimsContextKey).(*Claims)
	return claims
}
