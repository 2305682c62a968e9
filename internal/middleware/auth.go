package middleware

import (
	"context"
	"strings"

	"github.com/sevendrop/backend/internal/model"
	"github.com/sevendrop/backend/pkg/errorx"
	"github.com/sevendrop/backend/pkg/jwt"
	"github.com/sevendrop/backend/pkg/router"
	"github.com/sevendrop/backend/pkg/xcontext"
)

type OperatorAuth struct {
	verifier *jwt.Verifier[model.OperatorToken]
}

func NewOperatorAuth(secret string) *OperatorAuth {
	return &OperatorAuth{verifier: jwt.NewVerifier[model.OperatorToken](secret)}
}

// Middleware accepts requests carrying a valid operator token in the
// Authorization header and records the operator as the request user.
func (a *OperatorAuth) Middleware() router.MiddlewareFunc {
	return func(ctx context.Context) (context.Context, error) {
		header := xcontext.HTTPRequest(ctx).Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			return nil, errorx.New(errorx.Unauthenticated, "You need to authenticate before")
		}

		_, operator, err := a.verifier.Verify(token)
		if err != nil {
			xcontext.Logger(ctx).Debugf("Invalid operator token: %v", err)
			return nil, errorx.New(errorx.Unauthenticated, "Invalid token")
		}

		if operator.Name == "" {
			return nil, errorx.New(errorx.PermissionDenied, "Permission denied")
		}

		return xcontext.WithRequestUserID(ctx, operator.Name), nil
	}
}
