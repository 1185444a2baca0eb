package web

import (
	"errors"

	"github.com/dukex/flowmirror/pkg/auth"
	"github.com/gofiber/fiber/v3"
)

// ServiceKeyHeader carries the shared secret of service-to-service calls.
const ServiceKeyHeader = "X-Service-Key"

const callerLocalsKey = "flowmirror.caller"

type Middleware struct {
	authenticator auth.Authenticator
	serviceKey    *auth.ServiceKey
}

func NewMiddleware(authenticator auth.Authenticator, serviceKey *auth.ServiceKey) *Middleware {
	return &Middleware{authenticator: authenticator, serviceKey: serviceKey}
}

// RequireUser rejects requests without a valid bearer token and stores the
// caller for the handlers.
func (m *Middleware) RequireUser(c fiber.Ctx) error {
	if m.authenticator == nil {
		return unauthorized(c, "end-user authentication is not configured")
	}

	caller, err := m.authenticator.Authenticate(c.Context(), auth.BearerToken(c.Get(fiber.HeaderAuthorization)))
	if err != nil {
		if errors.Is(err, auth.ErrMissingToken) {
			return unauthorized(c, "missing bearer token")
		}

		return unauthorized(c, "invalid bearer token")
	}

	c.Locals(callerLocalsKey, caller)

	return c.Next()
}

// RequireAdmin must run after RequireUser.
func (m *Middleware) RequireAdmin(c fiber.Ctx) error {
	caller := CallerFrom(c)
	if caller == nil {
		return unauthorized(c, "authentication required")
	}

	if !caller.Admin {
		return forbidden(c, "admin role required")
	}

	return c.Next()
}

// RequireServiceKey guards service-to-service routes. It runs before any
// handler touches storage.
func (m *Middleware) RequireServiceKey(c fiber.Ctx) error {
	if m.serviceKey == nil || !m.serviceKey.Valid(c.Get(ServiceKeyHeader)) {
		return unauthorized(c, "invalid service key")
	}

	return c.Next()
}

// CallerFrom returns the caller stored by RequireUser, or nil.
func CallerFrom(c fiber.Ctx) *auth.Caller {
	caller, _ := c.Locals(callerLocalsKey).(*auth.Caller)

	return caller
}
