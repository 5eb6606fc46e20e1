package guard

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Gin adapta o pipeline para um middleware gin. Em caso de rejeição a
// resposta já foi escrita e a cadeia é abortada.
func (g *Guard) Gin() gin.HandlerFunc {
	return func(c *gin.Context) {
		ok := g.serve(c.Writer, c.Request, func(http.ResponseWriter) int {
			c.Next()
			return c.Writer.Status()
		})
		if !ok {
			c.Abort()
		}
	}
}

// Gin é o atalho: New(opts).Gin().
func Gin(opts Options) gin.HandlerFunc {
	return New(opts).Gin()
}
