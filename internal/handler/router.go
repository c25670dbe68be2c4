package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type Registrar interface {
	Register(r *gin.Engine)
}

// NewEngine builds the gin engine with recovery, CORS and the given
// middlewares, then registers every handler.
func NewEngine(middlewares []gin.HandlerFunc, handlers ...Registrar) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())
	for _, m := range middlewares {
		engine.Use(m)
	}
	for _, h := range handlers {
		h.Register(engine)
	}
	return engine
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
