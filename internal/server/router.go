package server

import (
	"net/http"
	_ "net/http/pprof" // registers on http.DefaultServeMux

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/omero-biomero/tusgate/internal/api"
	"github.com/omero-biomero/tusgate/internal/auth"
	"github.com/omero-biomero/tusgate/internal/model"
	"github.com/omero-biomero/tusgate/pkg"
)

func (s *Server) registerRoutes(app *gin.Engine) {
	app.Use(accessLog)
	if s.conf.EnableMetrics() {
		app.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
	app.Use(auth.Middleware(s.resolver))

	s.tus.RegisterRoutes(app)

	apiMiddleware := []gin.HandlerFunc{auth.Require}
	if s.conf.EnableCrossOrigin() {
		cors := crossOrigin(pkg.SliceToMapSet(s.conf.CrossOriginAllow(), true))
		app.OPTIONS("/api/*path", cors)
		apiMiddleware = append([]gin.HandlerFunc{cors}, apiMiddleware...)
	}
	v1 := app.Group("/api", apiMiddleware...)
	{
		// curl -H 'X-Omero-User-Id: 2' http://127.0.0.1:8080/api/files?path=
		api.ListFiles("/files", v1, s.browser)
		api.GroupMappings("/group-mappings", v1, s.mappings)
		api.Import("/import", v1, s.importer)
		api.ListOrders("/orders", v1, s.importer)
	}
	admin := v1.Group("", auth.RequireAdmin)
	{
		api.Status("/status", admin, s.conf, s.tus)
	}
	app.GET("/debug/pprof/*any", auth.RequireAdmin, gin.WrapH(http.DefaultServeMux))

	app.NoRoute(func(ctx *gin.Context) {
		ctx.JSON(http.StatusNotFound, model.NewFailResult("Not Found"))
	})
}
