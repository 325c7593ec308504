package transport

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/menta2k/shotcoach/internal/transport/middleware"
)

// RouterConfig holds router-wide limits
type RouterConfig struct {
	Timeout   time.Duration
	MaxUpload int64
}

// InitRoutes builds the gin engine. Metrics are served from gatherer when it is
// not nil.
func InitRoutes(h *Handler, gatherer prometheus.Gatherer, config RouterConfig) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.Logger(h.logger))
	router.Use(middleware.Timeout(config.Timeout))
	router.Use(middleware.MaxBody(config.MaxUpload))

	api := router.Group("/v1")
	{
		api.POST("/composition/evaluate", h.Evaluate)

		blur := api.Group("/blur")
		{
			blur.POST("", h.Blur)
			blur.POST("/preview", h.Preview)
		}

		cache := api.Group("/cache")
		{
			cache.GET("/stats", h.CacheStats)
			cache.DELETE("", h.ClearCache)
			cache.DELETE("/:fingerprint", h.ClearImageCache)
		}

		session := api.Group("/session")
		{
			session.POST("", h.StartSession)
			session.GET("", h.GetSession)
			session.DELETE("", h.EndSession)
		}

		api.POST("/memory-pressure", h.MemoryPressure)
	}

	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	router.GET("/health", h.Health)

	return router
}
