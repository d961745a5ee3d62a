package telemetry

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinegate/pkg/logging"
	"cinegate/pkg/utils"
)

func TestInitWithoutDSNIsNoop(t *testing.T) {
	require.NoError(t, Init(utils.TelemetryConfig{}, "test"))
	CaptureError(errors.New("ignored"), map[string]string{"op": "test"})
	CaptureError(nil, nil)
	Flush()
}

func TestRecoveryAnswersJSON500(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Recovery(logging.Discard()))
	r.GET("/boom", func(c *gin.Context) { panic("boom") })
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "fine") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestScrubRedactsCredentials(t *testing.T) {
	ev := &sentry.Event{
		User: sentry.User{IPAddress: "10.0.0.1"},
		Request: &sentry.Request{
			Headers: map[string]string{"Authorization": "Bearer x", "Cookie": "cg_visitor=v", "Accept": "json"},
			Cookies: "cg_visitor=v",
		},
	}
	out := scrub(ev)
	assert.Empty(t, out.User.IPAddress)
	assert.Equal(t, "[redacted]", out.Request.Headers["Authorization"])
	assert.Equal(t, "[redacted]", out.Request.Headers["Cookie"])
	assert.Equal(t, "json", out.Request.Headers["Accept"])
	assert.Empty(t, out.Request.Cookies)
	assert.Nil(t, scrub(nil))
}
