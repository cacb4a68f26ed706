package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths bypass the session gate.
var publicPaths = map[string]bool{
	"/health":         true,
	"/health/db":      true,
	"/metrics":        true,
	"/api/v1/session": true,
}

// Skipper reports whether the matched route is public.
func Skipper(c echo.Context) bool {
	return IsPublicPath(c.Path())
}

// IsPublicPath reports whether path bypasses the session gate.
func IsPublicPath(path string) bool {
	return publicPaths[path]
}
