package http

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/spec-kit/ticket-bot/pkg/util"
)

func newTestApp(handler fiber.Handler) *fiber.App {
	app := fiber.New()
	app.Use(errorHandlingMiddleware(zap.NewNop(), nil))
	app.Get("/test", handler)
	return app
}

func doRequest(t *testing.T, app *fiber.App) (int, map[string]any) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/test", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var body map[string]any
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &body))
	}
	return resp.StatusCode, body
}

func TestErrorHandlingMapsDomainErrors(t *testing.T) {
	app := newTestApp(func(c *fiber.Ctx) error {
		return apperrors.NewTicketNotFound(map[string]any{"ticket_id": "AAAA1111"})
	})

	status, body := doRequest(t, app)
	assert.Equal(t, http.StatusNotFound, status)

	errBody, ok := body["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeTicketNotFound, errBody["code"])
	details, ok := errBody["details"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "AAAA1111", details["ticket_id"])
}

func TestErrorHandlingWrapsUnknownErrors(t *testing.T) {
	app := newTestApp(func(c *fiber.Ctx) error {
		return io.ErrUnexpectedEOF
	})

	status, body := doRequest(t, app)
	assert.Equal(t, http.StatusInternalServerError, status)

	errBody, ok := body["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeInternalError, errBody["code"])
}

func TestErrorHandlingRecoversPanics(t *testing.T) {
	app := newTestApp(func(c *fiber.Ctx) error {
		panic("boom")
	})

	status, body := doRequest(t, app)
	assert.Equal(t, http.StatusInternalServerError, status)
	errBody, ok := body["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeInternalError, errBody["code"])
}

func TestSuccessPassesThrough(t *testing.T) {
	app := newTestApp(func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"data": "ok"})
	})

	status, body := doRequest(t, app)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["data"])
}
