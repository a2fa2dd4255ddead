package loggingmw

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/therapy_shop/pkg/logging"
)

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	base := logging.NewTo(&buf, "info")

	e := echo.New()
	e.Use(RequestLogger(base))
	e.GET("/boom", func(c echo.Context) error {
		logging.FromContext(c.Request().Context()).Info("inside")
		return echo.NewHTTPError(http.StatusNotFound, "nope")
	})

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set(echo.HeaderXRequestID, "rid-1")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "rid-1", rec.Header().Get(echo.HeaderXRequestID))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var inner, done map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &inner))
	require.NoError(t, json.Unmarshal(lines[1], &done))
	assert.Equal(t, "rid-1", inner["request_id"])
	assert.Equal(t, "request_completed", done["msg"])
	assert.Equal(t, "WARN", done["level"])
	assert.EqualValues(t, 404, done["status"])
	assert.Equal(t, "/boom", done["route"])
	assert.Contains(t, done["error"], "nope")
}

func TestRequestLoggerLevels(t *testing.T) {
	assert.Equal(t, slog.LevelInfo, levelFor(204))
	assert.Equal(t, slog.LevelWarn, levelFor(429))
	assert.Equal(t, slog.LevelError, levelFor(503))
}
