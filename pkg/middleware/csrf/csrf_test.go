package csrf

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, cfg Config, req *http.Request) (int, *httptest.ResponseRecorder) {
	t.Helper()

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := Middleware(cfg)(func(c echo.Context) error { return c.NoContent(http.StatusOK) })(c)
	if err != nil {
		var he *echo.HTTPError
		require.True(t, errors.As(err, &he))
		return he.Code, rec
	}
	return rec.Code, rec
}

func TestSafeMethodIssuesToken(t *testing.T) {
	code, rec := serve(t, Config{}, httptest.NewRequest(http.MethodGet, "/api/v1/products", nil))
	assert.Equal(t, http.StatusOK, code)
	assert.NotEmpty(t, rec.Header().Get("X-CSRF-Token"))
	assert.Contains(t, rec.Header().Get("Set-Cookie"), "XSRF-TOKEN=")
}

func TestUnsafeMethod(t *testing.T) {
	newReq := func() *http.Request {
		r := httptest.NewRequest(http.MethodPost, "http://example.com/api/v1/orders", nil)
		r.Header.Set("Origin", "http://example.com")
		r.AddCookie(&http.Cookie{Name: "XSRF-TOKEN", Value: "tok"})
		return r
	}

	t.Run("missing header", func(t *testing.T) {
		code, _ := serve(t, Config{}, newReq())
		assert.Equal(t, http.StatusForbidden, code)
	})

	t.Run("matching header", func(t *testing.T) {
		r := newReq()
		r.Header.Set("X-CSRF-Token", "tok")
		code, _ := serve(t, Config{}, r)
		assert.Equal(t, http.StatusOK, code)
	})

	t.Run("foreign origin", func(t *testing.T) {
		r := newReq()
		r.Header.Set("Origin", "http://evil.test")
		r.Header.Set("X-CSRF-Token", "tok")
		code, _ := serve(t, Config{EnforceSameOrigin: true}, r)
		assert.Equal(t, http.StatusForbidden, code)

		code, _ = serve(t, Config{}, r)
		assert.Equal(t, http.StatusOK, code, "origin check is opt-in")
	})

	t.Run("bearer requests skip", func(t *testing.T) {
		r := newReq()
		r.Header.Set(echo.HeaderAuthorization, "Bearer abc")
		code, _ := serve(t, Config{}, r)
		assert.Equal(t, http.StatusOK, code)
	})

	t.Run("no session cookie", func(t *testing.T) {
		cfg := Config{SessionCookies: []string{"accessToken", "refreshToken"}}
		code, _ := serve(t, cfg, newReq())
		assert.Equal(t, http.StatusOK, code)

		r := newReq()
		r.AddCookie(&http.Cookie{Name: "refreshToken", Value: "jwt"})
		code, _ = serve(t, cfg, r)
		assert.Equal(t, http.StatusForbidden, code)
	})

	t.Run("skip path", func(t *testing.T) {
		code, _ := serve(t, Config{SkipPaths: []string{"/api/v1/orders"}}, newReq())
		assert.Equal(t, http.StatusOK, code)
	})
}
