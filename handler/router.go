package handler

import (
	"net/http"
	"time"

	"github.com/Ampplex/InfluencerFlow-sub001/config"
	"github.com/Ampplex/InfluencerFlow-sub001/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires middleware and routes. Everything under /api except
// preview requires a bearer token.
func NewRouter(cfg *config.Config, contracts *ContractHandler) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.Metrics())
	router.Use(middleware.CORS())
	router.Use(middleware.RateLimit(cfg.RateLimit.Requests, time.Duration(cfg.RateLimit.WindowSeconds)*time.Second))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})

	api := router.Group("/api")
	{
		api.POST("/contracts/preview", contracts.Preview)
	}

	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware(&cfg.Auth))
	{
		protected.POST("/contracts/generate", contracts.Generate)
		protected.POST("/contracts/sign", contracts.Sign)
		protected.GET("/contracts", contracts.List)
		protected.GET("/contracts/:id", contracts.Get)
	}

	return router
}
