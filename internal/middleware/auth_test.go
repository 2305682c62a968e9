package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sevendrop/backend/internal/model"
	"github.com/sevendrop/backend/pkg/errorx"
	"github.com/sevendrop/backend/pkg/jwt"
	"github.com/sevendrop/backend/pkg/testutil"
	"github.com/sevendrop/backend/pkg/xcontext"
	"github.com/stretchr/testify/require"
)

func TestOperatorAuth(t *testing.T) {
	ctx := testutil.MockContext()
	auth := NewOperatorAuth("secret")

	token, err := jwt.NewEngine[model.OperatorToken]("secret", time.Minute).Generate("ops", model.OperatorToken{Name: "ops"})
	require.NoError(t, err)

	forged, err := jwt.NewEngine[model.OperatorToken]("other", time.Minute).Generate("ops", model.OperatorToken{Name: "ops"})
	require.NoError(t, err)

	anonymous, err := jwt.NewEngine[model.OperatorToken]("secret", time.Minute).Generate("ops", model.OperatorToken{})
	require.NoError(t, err)

	tests := []struct {
		name    string
		header  string
		wantErr errorx.Code
	}{
		{name: "valid token", header: "Bearer " + token},
		{name: "missing header", wantErr: errorx.Unauthenticated},
		{name: "wrong scheme", header: "Key " + token, wantErr: errorx.Unauthenticated},
		{name: "wrong secret", header: "Bearer " + forged, wantErr: errorx.Unauthenticated},
		{name: "no operator", header: "Bearer " + anonymous, wantErr: errorx.PermissionDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/runDraw", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			got, err := auth.Middleware()(xcontext.WithHTTPRequest(ctx, req))
			if tt.wantErr != 0 {
				require.Error(t, err)
				require.Equal(t, tt.wantErr, errorx.CodeOf(err))
				return
			}

			require.NoError(t, err)
			require.Equal(t, "ops", xcontext.RequestUserID(got))
		})
	}
}
