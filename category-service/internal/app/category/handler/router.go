package handler

import (
	"net/http"
	"time"

	"augustberries/pkg/logger"
	"augustberries/pkg/metrics"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const serviceName = "category-service"

// SetupRoutes настраивает все маршруты Category Service.
// Чтения публичные, записи требуют JWT с ролью manager или admin.
func SetupRoutes(categoryHandler *CategoryHandler, authMiddleware *AuthMiddleware) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logger.GinLoggerMiddleware())
	router.Use(metrics.GinPrometheusMiddleware(serviceName))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	// Health check endpoint - публичный, без аутентификации
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": serviceName,
		})
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	categories := router.Group("/categories")
	{
		// Чтения идут через кеш Redis
		categories.GET("", categoryHandler.GetAllCategories)
		categories.GET("/:id", categoryHandler.GetCategory)
		categories.GET("/:id/children", categoryHandler.GetChildCategories)
		categories.GET("/name/:name", categoryHandler.GetCategoryByName)
		categories.GET("/level/:level", categoryHandler.GetCategoriesByLevel)

		// Записи сбрасывают кеш, только для manager и admin
		writes := categories.Group("")
		writes.Use(authMiddleware.Authenticate())
		writes.POST("", authMiddleware.RequireRole("manager", "admin"), categoryHandler.CreateCategory)
		writes.PUT("/:id", authMiddleware.RequireRole("manager", "admin"), categoryHandler.UpdateCategory)
		writes.DELETE("/:id", authMiddleware.RequireRole("admin"), categoryHandler.DeleteCategory) // Только admin
	}

	return router
}
