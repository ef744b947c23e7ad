package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestAllow_ExhaustsBucket(t *testing.T) {
	t.Parallel()
	l := NewSimpleTokenBucket(3, 3)

	require.True(t, l.allow("1.2.3.4"))
	require.True(t, l.allow("1.2.3.4"))
	require.True(t, l.allow("1.2.3.4"))
	require.False(t, l.allow("1.2.3.4"))

	// Buckets are per key.
	require.True(t, l.allow("5.6.7.8"))
}

func TestGinMiddleware_Rejects(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(NewSimpleTokenBucket(2, 2).GinMiddleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusTooManyRequests, w.Code)
}
