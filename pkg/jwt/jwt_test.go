package jwt_test

import (
	"testing"
	"time"

	"github.com/sevendrop/backend/pkg/jwt"
	"github.com/stretchr/testify/require"
)

type operator struct {
	Role string `json:"role"`
}

func TestJWT(t *testing.T) {
	engine := jwt.NewEngine[operator]("secret", time.Minute)
	token, err := engine.Generate("alice", operator{Role: "operator"})
	require.NoError(t, err)

	verifier := jwt.NewVerifier[operator]("secret")
	sub, obj, err := verifier.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "alice", sub)
	require.Equal(t, "operator", obj.Role)
}

func TestJWTExpiration(t *testing.T) {
	engine := jwt.NewEngine[operator]("secret", -time.Minute)
	token, err := engine.Generate("alice", operator{})
	require.NoError(t, err)

	_, _, err = jwt.NewVerifier[operator]("secret").Verify(token)
	require.Error(t, err)
}

func TestJWTWrongSecret(t *testing.T) {
	engine := jwt.NewEngine[operator]("secret", time.Minute)
	token, err := engine.Generate("alice", operator{})
	require.NoError(t, err)

	_, _, err = jwt.NewVerifier[operator]("not secret").Verify(token)
	require.Error(t, err)
}

func TestJWTDiffType(t *testing.T) {
	engine := jwt.NewEngine[string]("secret", time.Minute)
	token, err := engine.Generate("alice", "abc")
	require.NoError(t, err)

	_, _, err = jwt.NewVerifier[int]("secret").Verify(token)
	require.Error(t, err)
}
