package logging

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestGinLogrusLoggerPassesThroughHandlerResponse(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(GinLogrusLogger())
	engine.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "fine") })

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "fine", rec.Body.String())
}

func TestRoutingSuffixIncludesChannelServiceAndAttempts(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.GET("/route", func(c *gin.Context) {
		c.Set(CtxChannel, "chan-a")
		c.Set(CtxServiceType, "openai")
		c.Set(CtxAttempts, 2)
		suffix := routingSuffix(c)
		c.String(http.StatusOK, suffix)
	})

	req := httptest.NewRequest(http.MethodGet, "/route", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Contains(t, rec.Body.String(), "upstream=chan-a")
	assert.Contains(t, rec.Body.String(), "service=openai")
	assert.Contains(t, rec.Body.String(), "attempts=2")
}

func TestRoutingSuffixEmptyWhenNoChannelRecorded(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.GET("/unrouted", func(c *gin.Context) {
		c.String(http.StatusOK, routingSuffix(c))
	})

	req := httptest.NewRequest(http.MethodGet, "/unrouted", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, "", rec.Body.String())
}

func TestGinLogrusRecoveryConvertsPanicToInternalServerError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(GinLogrusRecovery())
	engine.GET("/boom", func(c *gin.Context) { panic("kaboom") })

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
