package echoapi

import (
	"crypto/subtle"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/registrar/core/user"
)

var (
	ownerRoles     = []string{user.RoleAdminOwner}
	registrarRoles = []string{user.RoleAdminOwner, user.RoleAdminRegistrar}
	cashierRoles   = []string{user.RoleAdminOwner, user.RoleAdminCashier}
)

// adminMiddleware lets admins through; with roles, only those holding one of them.
func adminMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			if claims.IsAdmin && contextHasAnyRole(ctx, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// cronMiddleware authenticates scheduler calls with the static `Bearer <secret>` header.
// An empty secret disables the route.
func cronMiddleware(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if secret == "" {
				return errHttpForbidden
			}
			token := strings.TrimPrefix(ctx.Request().Header.Get(echo.HeaderAuthorization), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
				return errUnauthorized
			}
			return next(ctx)
		}
	}
}
