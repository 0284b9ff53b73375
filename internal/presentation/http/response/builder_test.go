package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/auctioneer/pkg/errorbank"
)

func newContext() (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	return e.NewContext(req, rec), rec
}

func TestBuilder_ErrorCarriesCode(t *testing.T) {
	ctx, rec := newContext()

	err := errorbank.BadRequest("bid too low",
		errorbank.WithCode("bid_too_low"),
		errorbank.WithDetail("floor", "100.00"),
	)
	require.NoError(t, New(ctx).WithError(err).Build())

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Kind    string         `json:"kind"`
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "bad_request", body.Error.Kind)
	assert.Equal(t, "bid_too_low", body.Error.Code)
	assert.Equal(t, "100.00", body.Error.Details["floor"])
}

func TestBuilder_UnknownErrorIsInternal(t *testing.T) {
	ctx, rec := newContext()

	require.NoError(t, New(ctx).WithError(errors.New("boom")).Build())
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestBuilder_NoContent(t *testing.T) {
	ctx, rec := newContext()

	require.NoError(t, New(ctx).WithStatus(http.StatusNoContent).Build())
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestBuilder_SuccessEnvelope(t *testing.T) {
	ctx, rec := newContext()

	err := New(ctx).
		WithStatus(http.StatusCreated).
		WithHeader(echo.HeaderLocation, "/auctions/a-1").
		WithData([]string{}).
		WithMeta("count", 0).
		WithMeta("", "ignored").
		Build()
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "/auctions/a-1", rec.Header().Get(echo.HeaderLocation))
	assert.JSONEq(t, `{"success":true,"data":[],"meta":{"count":0}}`, rec.Body.String())
}

func TestBuilder_ErrorCarriesRequestID(t *testing.T) {
	ctx, rec := newContext()
	ctx.Response().Header().Set(echo.HeaderXRequestID, "req-42")

	require.NoError(t, New(ctx).WithError(errorbank.NotFound("auction not found")).Build())
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var env Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.NotNil(t, env.Error)
	assert.Equal(t, "auction not found", env.Error.Message)
	assert.Equal(t, "req-42", env.Meta["request_id"])
	assert.Nil(t, env.Data)
}
