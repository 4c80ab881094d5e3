package middleware

import (
	"github.com/gin-gonic/gin"
)

// NoStore forbids any cache from keeping the response. Test papers and
// answer files must not outlive the request on shared machines.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store, private")
		c.Header("Pragma", "no-cache")
		c.Next()
	}
}
