package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/bondoverhobbies/internal/service"
	"github.com/noah-isme/bondoverhobbies/internal/utils"
)

const (
	localPrincipal = "principal"
	localUserID    = "user_id"
	localToken     = "token"
)

// Authenticator resolves a bearer token into a principal.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (service.Principal, error)
}

// RequireAuth rejects requests without a valid, unrevoked token. The token is
// read from the Authorization header, or from the token query parameter for
// clients that cannot set headers (WebSocket and EventSource).
func RequireAuth(auth Authenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, err := extractToken(c)
		if err != nil {
			return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
		}

		principal, err := auth.Authenticate(c.UserContext(), token)
		if err != nil {
			if errors.Is(err, service.ErrUnauthenticated) {
				return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
			}
			return utils.SendError(c, fiber.StatusServiceUnavailable, "unable to verify session")
		}

		c.Locals(localPrincipal, &principal)
		c.Locals(localUserID, principal.UID)
		c.Locals(localToken, token)

		return c.Next()
	}
}

// PrincipalFromContext returns the authenticated principal of the request, if any.
func PrincipalFromContext(c *fiber.Ctx) *service.Principal {
	if principal, ok := c.Locals(localPrincipal).(*service.Principal); ok {
		return principal
	}
	return nil
}

// TokenFromContext returns the raw token the request authenticated with.
func TokenFromContext(c *fiber.Ctx) string {
	if token, ok := c.Locals(localToken).(string); ok {
		return token
	}
	return ""
}

func extractToken(c *fiber.Ctx) (string, error) {
	authorization := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if authorization == "" {
		if token := strings.TrimSpace(c.Query("token")); token != "" {
			return token, nil
		}
		return "", errors.New("authorization header missing")
	}

	const bearer = "bearer "
	if len(authorization) < len(bearer) || !strings.EqualFold(authorization[:len(bearer)], bearer) {
		return "", errors.New("invalid authorization header")
	}

	token := strings.TrimSpace(authorization[len(bearer):])
	if token == "" {
		return "", errors.New("invalid token")
	}
	return token, nil
}
