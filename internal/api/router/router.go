package router

import (
	"github.com/wb-go/wbf/ginext"

	"github.com/aliskhannn/album-curator/internal/api/handlers/job"
	"github.com/aliskhannn/album-curator/internal/middleware"
)

func Setup(h *job.Handler) *ginext.Engine {
	r := ginext.New()

	r.Use(middleware.CORSMiddleware())
	r.Use(ginext.Logger())
	r.Use(ginext.Recovery())

	api := r.Group("/api")

	api.POST("/jobs", h.Create)                      // submitting a processing job
	api.GET("/jobs/:id/status", h.Status)            // polling job status
	api.GET("/jobs/:id/albums", h.Albums)            // fetching materialized albums
	api.POST("/internal/process", h.ProcessCallback) // queue callback, secret-protected

	return r
}
