package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// OperatorKeyHeader carries the operator key on mutating requests.
const OperatorKeyHeader = "X-Operator-Key"

// OperatorAuth guards mutating endpoints with a bcrypt-hashed operator
// key. An empty hash disables the check entirely.
func OperatorAuth(keyHash string) gin.HandlerFunc {
	if keyHash == "" {
		return func(c *gin.Context) {
			c.Next()
		}
	}
	hash := []byte(keyHash)

	return func(c *gin.Context) {
		key := c.GetHeader(OperatorKeyHeader)
		if key == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "operator key required",
			})
			c.Abort()
			return
		}
		if err := bcrypt.CompareHashAndPassword(hash, []byte(key)); err != nil {
			c.JSON(http.StatusForbidden, gin.H{
				"error": "invalid operator key",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
