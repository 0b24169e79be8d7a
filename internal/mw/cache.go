package mw

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

// cachedResponse is a replayable snapshot of a GET response.
type cachedResponse struct {
	status  int
	headers http.Header
	body    []byte
}

// bodyCacheWriter tees the body into a buffer while it is written out.
type bodyCacheWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w bodyCacheWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w bodyCacheWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Cache is a middleware for in-memory caching of GET responses. Entries are
// keyed per caller so authenticated responses never leak across users.
func Cache(store *cache.Cache, duration time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := c.GetString(CtxUserIDKey) + "|" + c.Request.RequestURI
		if resp, found := store.Get(key); found {
			cached := resp.(cachedResponse)
			for k, v := range cached.headers {
				c.Writer.Header()[k] = v
			}
			c.Writer.Header().Set("X-Cache", "HIT")
			c.Writer.WriteHeader(cached.status)
			_, _ = c.Writer.Write(cached.body)
			c.Abort()
			return
		}

		blw := &bodyCacheWriter{body: bytes.NewBuffer(nil), ResponseWriter: c.Writer}
		c.Writer = blw

		c.Next()

		// 2xx only.
		if blw.Status() >= 200 && blw.Status() < 300 {
			store.Set(key, cachedResponse{
				status:  blw.Status(),
				headers: blw.Header().Clone(),
				body:    append([]byte(nil), blw.body.Bytes()...),
			}, duration)
		}
	}
}
