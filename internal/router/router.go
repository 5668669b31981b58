package router

import (
	"net/http"

	"github.com/3Eeeecho/go-fastdb/internal/config"
	"github.com/3Eeeecho/go-fastdb/internal/handlers"
	"github.com/3Eeeecho/go-fastdb/internal/middlewares"
	"github.com/3Eeeecho/go-fastdb/internal/pkg/xerr"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handlers 路由需要的所有 handler
type Handlers struct {
	Version *handlers.VersionHandler
	Ltcv    *handlers.LtcvHandler
	Search  *handlers.SearchHandler
	Job     *handlers.JobHandler
}

func InitRouter(h Handlers, cfg *config.Config) *gin.Engine {
	// 设置 Gin 模式，开发环境为 DebugMode，生产环境为 ReleaseMode
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	router := gin.New()
	router.Use(middlewares.Recovery(), middlewares.RequestLogger())

	// Health Check 路由
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := router.Group("/api/v1")
	{
		// 处理版本
		v1.GET("/procvers", h.Version.ListVersions)
		v1.GET("/procver/:procver", h.Version.DescribeProcver)
		v1.POST("/procver", h.Version.CreateProcver)
		v1.POST("/procver/:procver/alias", h.Version.CreateAlias)
		v1.POST("/procver/:procver/base", h.Version.AddBase)
		v1.GET("/baseprocver/:procver", h.Version.DescribeBaseProcver)
		v1.POST("/baseprocver", h.Version.CreateBaseProcver)

		// 光变曲线
		v1.GET("/count/:which/:procver", h.Ltcv.Count)
		v1.POST("/objectinfo/:procver", h.Ltcv.ObjectInfos)
		ltcvGroup := v1.Group("/ltcv")
		{
			ltcvGroup.POST("/hot", h.Ltcv.HotLtcvs)
			ltcvGroup.POST("/:procver", h.Ltcv.ManyObjectLtcvs)
			ltcvGroup.GET("/:procver/:objid", h.Ltcv.ObjectLtcv)
		}

		v1.POST("/objectsearch/:procver", h.Search.ObjectSearch)

		// 后台任务
		v1.POST("/ingest", h.Job.EnqueueIngest)
		v1.POST("/export/hot", h.Job.ExportHot)
		v1.GET("/export/hot/:procver/:mjd", h.Job.DownloadSnapshot)
		v1.DELETE("/export/hot/:procver/:mjd", h.Job.RemoveSnapshot)
	}

	router.NoRoute(func(c *gin.Context) {
		xerr.Error(c, http.StatusNotFound, xerr.NotFoundCode, "Route not found")
	})

	return router
}
