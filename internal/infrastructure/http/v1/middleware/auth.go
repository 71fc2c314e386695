package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"routeledger/internal/core/apperror"
	appctx "routeledger/internal/core/context"
)

// TokenValidator verifies operator tokens.
type TokenValidator interface {
	ValidateToken(tokenString string) (*appctx.Operator, error)
}

// Auth requires a valid bearer token and puts the operator in the request context.
func Auth(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearer(c)
		if !ok {
			abortUnauthorized(c, "missing or malformed authorization header")
			return
		}
		op, err := validator.ValidateToken(token)
		if err != nil {
			_ = c.Error(apperror.NewUnauthorized("invalid token").WithCause(err))
			c.Abort()
			return
		}
		c.Request = c.Request.WithContext(appctx.WithOperator(c.Request.Context(), op))
		c.Set("operator", op.Subject)
		c.Next()
	}
}

// LocalOperator is used when authentication is disabled: every request acts
// as one local operator holding the given scopes.
func LocalOperator(scopes ...string) gin.HandlerFunc {
	op := &appctx.Operator{Subject: "local", Scopes: scopes}
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(appctx.WithOperator(c.Request.Context(), op))
		c.Set("operator", op.Subject)
		c.Next()
	}
}

// RequireScope rejects operators without scope with 403.
func RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if appctx.GetOperator(ctx) == nil {
			abortUnauthorized(c, "authentication required")
			return
		}
		if !appctx.HasScope(ctx, scope) {
			_ = c.Error(apperror.NewForbidden("operator lacks the required scope").WithDetail("scope", scope))
			c.Abort()
			return
		}
		c.Next()
	}
}

func bearer(c *gin.Context) (string, bool) {
	scheme, token, ok := strings.Cut(c.GetHeader("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
		return "", false
	}
	return token, true
}

func abortUnauthorized(c *gin.Context, message string) {
	_ = c.Error(apperror.NewUnauthorized(message))
	c.Abort()
}
