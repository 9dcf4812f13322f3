package middleware

import (
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"ncfpos/internal/core/apperror"
	appctx "ncfpos/internal/core/context"
)

// JWTValidator validates bearer tokens.
type JWTValidator interface {
	ValidateToken(tokenString string) (*appctx.UserContext, error)
}

// Auth requires a valid bearer token and stores the user in the request context.
func Auth(validator JWTValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abort(c, apperror.NewUnauthorized("missing authorization header"))
			return
		}

		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
			abort(c, apperror.NewUnauthorized("invalid authorization header format"))
			return
		}

		user, err := validator.ValidateToken(strings.TrimSpace(token))
		if err != nil {
			abort(c, apperror.NewUnauthorized("invalid token").WithCause(err))
			return
		}

		c.Request = c.Request.WithContext(appctx.WithUser(c.Request.Context(), user))
		c.Set("user_id", user.UserID)
		c.Next()
	}
}

// RequireRole lets the request through when the user holds one of roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := appctx.GetUser(c.Request.Context())
		if user == nil {
			abort(c, apperror.NewUnauthorized("authentication required"))
			return
		}
		if slices.ContainsFunc(roles, func(r string) bool { return slices.Contains(user.Roles, r) }) {
			c.Next()
			return
		}
		abort(c, apperror.NewForbidden("insufficient permissions").
			WithDetail("required_roles", roles))
	}
}

func abort(c *gin.Context, err *apperror.AppError) {
	_ = c.Error(err)
	c.Abort()
}
