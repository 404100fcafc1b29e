package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/enrollee-api/internal/handler"
	"github.com/noah-isme/enrollee-api/internal/middleware"
	"github.com/noah-isme/enrollee-api/internal/models"
	"github.com/noah-isme/enrollee-api/pkg/config"
	"github.com/noah-isme/enrollee-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/enrollee-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/enrollee-api/pkg/middleware/requestid"
)

// multipart framing on top of the file itself
const uploadOverhead = 1 << 20

type routerDeps struct {
	cfg      *config.Config
	logger   *zap.Logger
	observer middleware.RequestObserver
	tokens   middleware.TokenValidator
	audit    middleware.AuditRecorder

	auth      *handler.AuthHandler
	enrollees *handler.EnrolleeHandler
	imports   *handler.ImportHandler
	exports   *handler.ExportHandler
	users     *handler.UserHandler
	ops       *handler.MetricsHandler
}

func newRouter(d routerDeps) *gin.Engine {
	r := gin.New()
	r.MaxMultipartMemory = 8 << 20
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(d.logger))
	r.Use(corsmiddleware.New(d.cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(d.observer))

	r.GET("/health", d.ops.Health)
	r.GET("/ready", d.ops.Ready)
	r.GET("/metrics", d.ops.Prometheus)
	if d.cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(d.cfg.APIPrefix, middleware.WithResponseMeta())

	auth := api.Group("/auth")
	auth.POST("/register", d.auth.Register)
	auth.POST("/login", d.auth.Login)
	auth.POST("/refresh", d.auth.Refresh)
	auth.POST("/logout", middleware.JWT(d.tokens), d.auth.Logout)
	auth.GET("/me", middleware.JWT(d.tokens), d.auth.Me)

	public := api.Group("/enrollees")
	public.POST("/details", d.enrollees.Details)
	public.GET("/last-uploaded", d.enrollees.LastUploaded)

	admin := api.Group("/admin", middleware.JWT(d.tokens), middleware.RequireRoles(models.RoleAdmin))
	admin.GET("/metrics", d.ops.Snapshot)
	admin.POST("/users/:username/promote", d.users.Promote)

	enrollees := admin.Group("/enrollees")
	enrollees.GET("", d.enrollees.List)
	enrollees.POST("", d.enrollees.Create)
	enrollees.POST("/upload", limitBody(d.cfg.Import.MaxFileSizeBytes+uploadOverhead), d.imports.Upload)
	enrollees.GET("/export", d.exports.Export)
	enrollees.GET("/:pan", d.enrollees.Get)
	enrollees.PUT("/:pan", d.enrollees.Update)
	enrollees.DELETE("/:pan", d.enrollees.Delete)

	admin.GET("/exports/download", middleware.Audit(d.audit, models.AuditActionExportDownload, "enrollee_exports"), d.exports.Download)

	return r
}

func limitBody(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}
