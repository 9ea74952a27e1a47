package api

import (
	_ "embed"
	"net/http"

	"QuakeSync/internal/config"
	"QuakeSync/internal/interfaces"
	"QuakeSync/internal/middleware"
	"QuakeSync/internal/observability"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

//go:embed static/map.html
var mapViewHTML []byte

// RouterDeps 组装路由所需的依赖
type RouterDeps struct {
	Config   *config.Config
	DB       *gorm.DB
	Ingester interfaces.EarthquakeIngester
	Metrics  *observability.Metrics
	Clock    clockwork.Clock // nil 时使用真实时钟
	Logger   *logrus.Logger
}

// NewRouter 注册中间件与全部路由
func NewRouter(d RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.CORS())
	r.Use(middleware.ExecutionLog(d.DB, d.Config.Auth.BypassPaths, d.Metrics, d.Clock, d.Logger))
	r.Use(middleware.BasicAuth(d.Config.Auth))

	// pprof 同样走 Basic 认证
	pprof.Register(r)

	earthquakeHandler := NewEarthquakeHandler(d.DB, d.Ingester, d.Logger)
	r.GET("/features", earthquakeHandler.ListFeatures)
	r.GET("/visualization/map", earthquakeHandler.GetMapData)
	r.GET("/visualization/map-view", earthquakeHandler.MapView)
	r.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusTemporaryRedirect, "/visualization/map-view")
	})

	healthHandler := NewHealthHandler(d.DB, d.Logger)
	r.GET("/healthz", healthHandler.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}
