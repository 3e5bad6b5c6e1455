package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestBodyLimit(t *testing.T) {
	r := gin.New()
	r.Use(BodyLimit(16))
	r.POST("/x", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusOK)
	})

	t.Run("small body passes", func(t *testing.T) {
		w := serve(r, httptest.NewRequest(http.MethodPost, "/x", strings.NewReader("{}")))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("declared oversize body is rejected", func(t *testing.T) {
		w := serve(r, httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(strings.Repeat("x", 64))))
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Contains(t, w.Body.String(), "REQUEST_TOO_LARGE")
	})

	t.Run("streamed oversize body is cut", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(strings.Repeat("x", 64)))
		req.ContentLength = -1
		w := serve(r, req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})
}
