package router

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/temanhiv-blip/teman-hiv-bot/api"
	"github.com/temanhiv-blip/teman-hiv-bot/internal/handler"
)

const (
	PathHealth  = "/health"
	PathReady   = "/ready"
	PathSwagger = "/swagger"
)

func New(ticketHandler *handler.TicketHandler, store handler.Pinger) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET(PathHealth, handler.Health)
	r.GET(PathReady, handler.Ready(store))
	r.GET(PathSwagger, func(c *gin.Context) { c.Redirect(http.StatusFound, PathSwagger+"/") })
	r.GET(PathSwagger+"/*any", func(c *gin.Context) {
		if strings.TrimPrefix(c.Param("any"), "/") == "openapi.json" {
			c.Data(http.StatusOK, "application/json", api.OpenAPISpec)
			return
		}
		if strings.TrimPrefix(c.Param("any"), "/") == "" {
			c.Request.URL.Path = PathSwagger + "/index.html"
			c.Request.RequestURI = PathSwagger + "/index.html"
		}
		ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL(PathSwagger+"/openapi.json"))(c)
	})

	v1 := r.Group("/api/v1")
	{
		v1.GET("/tickets", ticketHandler.List)
		v1.GET("/tickets/:code", ticketHandler.Get)
		v1.POST("/tickets/:code/lock", ticketHandler.Lock)
		v1.POST("/tickets/:code/reply", ticketHandler.Reply)
	}

	return r
}
