package auth

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"magazine/internal/apperr"
)

// HeaderToken is the header carrying the access token.
const HeaderToken = "x-auth-token"

const claimsKey = "claims"

type ctxKey struct{}

var (
	ErrMissingCredential = apperr.Unauthorized("missing_credential", "No auth token, authorization denied!")
	ErrInvalidCredential = apperr.Unauthorized("invalid_credential", "Token authorization failed, authorization denied!")
	ErrForbiddenRole     = apperr.Forbidden("forbidden_role", "Your role is not permitted to perform this action!")
)

// Require enforces a valid access token whose role is allowed for op.
func Require(signer *Signer, op Operation) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := tokenFrom(c)
		if tokenStr == "" {
			abort(c, ErrMissingCredential)
			return
		}
		claims, err := signer.Parse(tokenStr, KindAccess)
		if err != nil {
			abort(c, ErrInvalidCredential)
			return
		}
		if !Allowed(op, claims.Role) {
			abort(c, ErrForbiddenRole)
			return
		}
		c.Set(claimsKey, claims)
		c.Request = c.Request.WithContext(WithClaims(c.Request.Context(), claims))
		c.Next()
	}
}

func tokenFrom(c *gin.Context) string {
	if tok := strings.TrimSpace(c.GetHeader(HeaderToken)); tok != "" {
		return tok
	}
	authz := c.GetHeader("Authorization")
	if len(authz) > len("bearer ") && strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return strings.TrimSpace(authz[len("bearer "):])
	}
	return ""
}

func abort(c *gin.Context, err *apperr.Error) {
	c.AbortWithStatusJSON(apperr.Status(err), gin.H{"error": err.Code, "message": err.Message})
}

// ClaimsFrom returns the claims attached by Require.
func ClaimsFrom(c *gin.Context) (Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return Claims{}, false
	}
	claims, ok := v.(Claims)
	return claims, ok
}

// WithClaims stores claims on a context.
func WithClaims(ctx context.Context, claims Claims) context.Context {
	return context.WithValue(ctx, ctxKey{}, claims)
}

// FromContext returns claims stored by WithClaims.
func FromContext(ctx context.Context) (Claims, bool) {
	claims, ok := ctx.Value(ctxKey{}).(Claims)
	return claims, ok
}
