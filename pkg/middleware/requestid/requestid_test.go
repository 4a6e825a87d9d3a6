package requestid

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestMiddlewareKeepsOrReplacesHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	var fromGin, fromCtx string
	r.GET("/", func(c *gin.Context) {
		fromGin = Value(c)
		fromCtx = FromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderKey, "5f2b9c0e41d7a3b8")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "5f2b9c0e41d7a3b8", w.Header().Get(HeaderKey))
	assert.Equal(t, "5f2b9c0e41d7a3b8", fromGin)
	assert.Equal(t, fromGin, fromCtx)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderKey, "abc")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	_, err := uuid.Parse(w.Header().Get(HeaderKey))
	assert.NoError(t, err)
	assert.Equal(t, fromGin, fromCtx)
}
