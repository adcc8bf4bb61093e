package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Capability is a permission checked by route guards.
type Capability string

const (
	ReadPatient   Capability = "patient:read"
	WritePatient  Capability = "patient:write"
	DeletePatient Capability = "patient:delete"
)

// AllCapabilities is granted to the admin role and to development principals.
var AllCapabilities = []Capability{ReadPatient, WritePatient, DeletePatient}

// authorityAliases maps upper-case authority names used by older clients
// (e.g. "WRITE_PATIENT") to capabilities.
var authorityAliases = map[string]Capability{
	"READ_PATIENT":   ReadPatient,
	"WRITE_PATIENT":  WritePatient,
	"DELETE_PATIENT": DeletePatient,
}

// roleCapabilities lists the capabilities implied by a role claim.
var roleCapabilities = map[string][]Capability{
	"admin":     AllCapabilities,
	"registrar": {ReadPatient, WritePatient},
	"clinician": {ReadPatient},
	"auditor":   {ReadPatient},
}

// ParseCapability normalises a raw capability or authority string.
func ParseCapability(raw string) (Capability, bool) {
	raw = strings.TrimSpace(raw)
	if c, ok := authorityAliases[strings.ToUpper(raw)]; ok {
		return c, true
	}
	for _, c := range AllCapabilities {
		if string(c) == raw {
			return c, true
		}
	}
	return "", false
}

// ResolveCapabilities merges the capabilities granted directly with those
// implied by roles. Unknown entries are ignored.
func ResolveCapabilities(roles, granted []string) []Capability {
	seen := make(map[Capability]bool)
	var out []Capability
	add := func(c Capability) {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	for _, r := range roles {
		for _, c := range roleCapabilities[strings.ToLower(r)] {
			add(c)
		}
	}
	for _, g := range granted {
		if c, ok := ParseCapability(g); ok {
			add(c)
		}
	}
	return out
}

// RequireCapability returns middleware that rejects the request with 403 unless
// the principal holds the capability. It must run after an authentication
// middleware has populated the request context.
func RequireCapability(required Capability) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			if UserIDFromContext(ctx) == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			if HasCapability(CapabilitiesFromContext(ctx), required) {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required capability: %s", required))
		}
	}
}

// HasCapability reports whether required is among granted.
func HasCapability(granted []Capability, required Capability) bool {
	for _, g := range granted {
		if g == required {
			return true
		}
	}
	return false
}
