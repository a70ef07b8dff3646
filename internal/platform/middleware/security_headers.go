package middleware

import (
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
)

// SecurityHeadersConfig controls the transport-dependent headers.
type SecurityHeadersConfig struct {
	// HSTSMaxAge enables Strict-Transport-Security on requests that reached
	// the server over https (directly or per X-Forwarded-Proto). Zero disables it.
	HSTSMaxAge time.Duration
}

// SecurityHeaders sets the headers carried by every response of the
// scheduling API. Schedules change with every booking, so nothing is cached.
func SecurityHeaders(cfg SecurityHeadersConfig) echo.MiddlewareFunc {
	hsts := ""
	if secs := int64(cfg.HSTSMaxAge / time.Second); secs > 0 {
		hsts = fmt.Sprintf("max-age=%d", secs)
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()

			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			h.Set("Cross-Origin-Resource-Policy", "same-site")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Cache-Control", "no-store")
			if hsts != "" && c.Scheme() == "https" {
				h.Set("Strict-Transport-Security", hsts)
			}

			return next(c)
		}
	}
}
