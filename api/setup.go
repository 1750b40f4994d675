package api

import (
	"backend/internal/config"
	"backend/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// SetupRouter 设置并返回 Gin 路由与应用容器
func SetupRouter(db *gorm.DB, cfg *config.Config) (*gin.Engine, *AppContainer, error) {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	router := gin.New()

	// 全局中间件
	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(CORS())
	router.Use(metrics.PrometheusMiddleware())

	container, err := InitContainer(db, cfg)
	if err != nil {
		return nil, nil, err
	}

	// 公开端点（不需要认证）
	router.GET("/healthz", HealthCheck())
	router.GET("/ready", ReadinessCheck(db, container))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handlers := container.InitHandlers()
	RegisterRoutes(router, container, handlers)

	return router, container, nil
}
