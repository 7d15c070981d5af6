package http

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ozzus/ring-exporter/internal/api/http/middleware"
)

func NewRouter(
	log *slog.Logger,
	probeController *ProbeController,
	statusController *StatusController,
	gatherer prometheus.Gatherer,
) *gin.Engine {
	router := gin.New()
	router.Use(middleware.Logger(log), gin.Recovery())

	router.GET("/", statusController.Index)
	router.GET("/probe", probeController.Probe)
	router.GET("/health", statusController.Health)
	router.GET("/sessions", statusController.Sessions)
	router.GET("/debug", statusController.Debug)
	router.GET("/api/filter-options", statusController.FilterOptions)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return router
}
