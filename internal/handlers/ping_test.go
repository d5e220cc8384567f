package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestPingHandler(t *testing.T) {
	t.Parallel()
	e := echo.New()
	NewPingHandler(nil).Register(e)

	for _, tc := range []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/ping"},
		{http.MethodHead, "/health"},
	} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s %s = %d", tc.method, tc.path, rec.Code)
		}
	}
}
