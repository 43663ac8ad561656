package apierror

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAPIErrorMessage(t *testing.T) {
	t.Parallel()

	require.Equal(t, "BAD_REQUEST: invalid role (owner)", BadRequest("invalid role", "owner").Error())
	require.Equal(t, "CONFLICT: taken", New("CONFLICT", "taken", "", http.StatusConflict).Error())

	var nilErr *APIError
	require.Equal(t, "", nilErr.Error())
}

func TestWrapKeepsCause(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("sentinel")
	err := Wrap(sentinel, "BAD_REQUEST", "bad", "", http.StatusBadRequest)

	require.ErrorIs(t, err, sentinel)

	var apiErr *APIError
	require.ErrorAs(t, error(err), &apiErr)
	require.Equal(t, http.StatusBadRequest, apiErr.HTTPStatus)
}
