package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/parking-reservation/internal/apperr"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		msg    string
	}{
		{apperr.Validation("bad input"), http.StatusBadRequest, "bad input"},
		{apperr.State("reservation is not active"), http.StatusBadRequest, "reservation is not active"},
		{apperr.Conflict("time slot not available"), http.StatusConflict, "time slot not available"},
		{apperr.InsufficientFunds("insufficient balance"), http.StatusPaymentRequired, "insufficient balance"},
		{apperr.NotFound("reservation not found"), http.StatusNotFound, "reservation not found"},
		{fmt.Errorf("op: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, "internal error"},
		{apperr.Internal(errors.New("dial tcp 10.0.0.5:3306")), http.StatusInternalServerError, "internal error"},
	}
	e := echo.New()
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
		require.NoError(t, writeError(c, tt.err))
		assert.Equal(t, tt.status, rec.Code, tt.err.Error())
		assert.JSONEq(t, fmt.Sprintf(`{"error":%q}`, tt.msg), rec.Body.String())
	}
}

func TestGetUserID(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	_, err := getUserID(c)
	assert.Error(t, err)

	c.Set("user_id", uint64(5))
	id, err := getUserID(c)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), id)

	c.Set("user_id", "12")
	id, err = getUserID(c)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), id)
}

func TestPathID(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	for raw, ok := range map[string]bool{"7": true, "0": false, "-1": false, "x": false, "": false} {
		c.SetParamValues(raw)
		_, got := pathID(c, "id")
		assert.Equal(t, ok, got, raw)
	}
}
