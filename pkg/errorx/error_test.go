package errorx

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCodeOf(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", New(StoreUnavailable, "Cannot read %s", "entries"))
	require.Equal(t, StoreUnavailable, CodeOf(err))
	require.Equal(t, Unknown.Code, CodeOf(fmt.Errorf("plain")))
}

func TestHTTPStatus(t *testing.T) {
	require.Equal(t, http.StatusServiceUnavailable, StoreUnavailable.HTTPStatus())
	require.Equal(t, http.StatusConflict, InvariantViolation.HTTPStatus())
	require.Equal(t, http.StatusBadGateway, PayoutSendUnknown.HTTPStatus())
	require.Equal(t, http.StatusInternalServerError, Unknown.Code.HTTPStatus())
}
