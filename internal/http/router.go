package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRouter configura el router de Gin con middlewares y rutas base.
func NewRouter(
	logger *zap.Logger,
	matchH *MatchHandler,
	adminH *AdminHandler,
	embeddingH *EmbeddingHandler,
	contentH *ContentHandler,
) *gin.Engine {
	r := gin.New()

	// Middlewares basicos: logging, recovery y JSON content-type.
	r.Use(zapLoggerMiddleware(logger), gin.Recovery(), jsonContentTypeMiddleware())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/match/sessions/:id/rank", matchH.Rank)

	admin := r.Group("/admin")
	admin.GET("/weights", adminH.GetWeights)
	admin.PUT("/weights", adminH.SetWeights)
	admin.POST("/weights/refresh", adminH.RefreshWeights)
	admin.GET("/settings", adminH.GetSettings)
	admin.PUT("/settings", adminH.UpdateSettings)

	embeddings := admin.Group("/embeddings")
	embeddings.GET("/jobs", embeddingH.ListJobs)
	embeddings.GET("/jobs/:id", embeddingH.GetJob)
	embeddings.POST("/jobs/:id/requeue", embeddingH.RequeueJob)
	embeddings.GET("/stats", embeddingH.Stats)
	embeddings.POST("/batch", embeddingH.RunBatch)

	admin.PUT("/questions/:id/text", contentH.UpdateQuestionText)
	admin.PUT("/choices/:id", contentH.UpdateChoice)
	admin.PUT("/images/:id", contentH.UpdateImage)
	admin.PUT("/photographers/:id/descriptions", contentH.UpdateProfileDescriptions)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}
