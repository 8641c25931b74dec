package router

import (
	"fmt"
	"strings"

	"github.com/paycore-next/internal/cache"
	"github.com/paycore-next/internal/config"
	adminhandlers "github.com/paycore-next/internal/http/handlers/admin"
	publichandlers "github.com/paycore-next/internal/http/handlers/public"
	"github.com/paycore-next/internal/logger"
	"github.com/paycore-next/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	publicHandler := publichandlers.New(c)
	adminHandler := adminhandlers.New(c)

	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "pc"
	}
	redisClient := cache.Client()
	submitRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:payment_submit", redisPrefix),
		WindowSeconds: cfg.Security.SubmitRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.SubmitRateLimit.MaxAttempts,
	}

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	apiV1 := r.Group("/api/v1")
	{
		payments := apiV1.Group("/payments")
		{
			payments.POST("", RateLimitMiddleware(redisClient, submitRule, KeyByIPAndJSONField("idempotency_key")), publicHandler.SubmitPayment)
			payments.GET("", publicHandler.ListOrderPayments)
			payments.GET("/:id", publicHandler.GetPayment)
			payments.POST("/:id/cancel", publicHandler.CancelPayment)
		}

		// 管理员接口
		admin := apiV1.Group("/admin")
		admin.Use(AdminAuthMiddleware(cfg.JWT.SecretKey))
		{
			admin.GET("/orders", adminHandler.GetAdminOrders)
			admin.GET("/payments", adminHandler.GetAdminPayments)
			admin.GET("/payments/:id", adminHandler.GetAdminPayment)
			admin.POST("/payments/:id/cancel", adminHandler.CancelAdminPayment)
			admin.POST("/idempotency/sweep", adminHandler.SweepIdempotency)
		}
	}

	return r
}
