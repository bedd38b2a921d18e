package web_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/pkg/ratelimit"
	"github.com/loomworks/loom/pkg/web"
)

func setupLimitedApp(t *testing.T, limit int) *fiber.App {
	t.Helper()

	app := fiber.New()
	app.Use(web.RateLimitMiddleware(ratelimit.New(ratelimit.WithLimit(limit))))
	app.Get("/ping", func(c fiber.Ctx) error {
		return c.SendString("pong")
	})

	return app
}

func TestRateLimitMiddleware_AllowsWithinLimit(t *testing.T) {
	app := setupLimitedApp(t, 3)

	for i := 0; i < 3; i++ {
		response, err := app.Test(httptest.NewRequest(http.MethodGet, "/ping", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, response.StatusCode)
		assert.Equal(t, "3", response.Header.Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, response.Header.Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, response.Header.Get("X-RateLimit-Reset"))
	}
}

func TestRateLimitMiddleware_LimitsExcess(t *testing.T) {
	app := setupLimitedApp(t, 2)

	for i := 0; i < 2; i++ {
		response, err := app.Test(httptest.NewRequest(http.MethodGet, "/ping", nil))
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, response.StatusCode)
	}

	response, err := app.Test(httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, response.StatusCode)
	assert.Equal(t, "0", response.Header.Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, response.Header.Get("X-RateLimit-Reset"))
}
