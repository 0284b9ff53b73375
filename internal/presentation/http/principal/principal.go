// Package principal reads the caller identity asserted by the upstream
// gateway. Requests are never authenticated here.
package principal

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Additional-Code/auctioneer/internal/entity"
	"github.com/Additional-Code/auctioneer/internal/presentation/http/response"
	"github.com/Additional-Code/auctioneer/pkg/errorbank"
)

const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"

	contextKey = "principal.actor"
)

// Middleware parses the identity headers and stores the actor on the
// context. Malformed roles are rejected; missing headers yield an anonymous
// actor.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			actor, err := FromHeaders(c.Request().Header.Get(HeaderUserID), c.Request().Header.Get(HeaderUserRole))
			if err != nil {
				return response.New(c).WithError(err).Build()
			}
			c.Set(contextKey, actor)
			return next(c)
		}
	}
}

// FromHeaders builds an actor from raw header values.
func FromHeaders(id, role string) (entity.Actor, error) {
	actor := entity.Actor{
		ID:   strings.TrimSpace(id),
		Role: entity.Role(strings.ToLower(strings.TrimSpace(role))),
	}
	if actor.Role != "" && !actor.Role.Valid() {
		return entity.Actor{}, errorbank.BadRequest("unknown user role",
			errorbank.WithCode("validation_error"),
			errorbank.WithDetail("role", string(actor.Role)),
		)
	}
	return actor, nil
}

// Actor returns the caller stored by Middleware, falling back to the raw
// headers when the middleware did not run.
func Actor(c echo.Context) entity.Actor {
	if actor, ok := c.Get(contextKey).(entity.Actor); ok {
		return actor
	}
	actor, _ := FromHeaders(c.Request().Header.Get(HeaderUserID), c.Request().Header.Get(HeaderUserRole))
	return actor
}

// Require returns the caller or an error when no user id was asserted.
func Require(c echo.Context) (entity.Actor, error) {
	actor := Actor(c)
	if actor.ID == "" {
		return entity.Actor{}, errorbank.BadRequest("missing "+HeaderUserID+" header",
			errorbank.WithCode("validation_error"),
		)
	}
	return actor, nil
}
