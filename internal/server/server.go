package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/faturolabs/faturo/internal/config"
	"github.com/faturolabs/faturo/internal/observability"
	obsmiddleware "github.com/faturolabs/faturo/internal/observability/logger"
	obsmetrics "github.com/faturolabs/faturo/internal/observability/metrics"
	obstracing "github.com/faturolabs/faturo/internal/observability/tracing"
	orderdomain "github.com/faturolabs/faturo/internal/order/domain"
	"github.com/faturolabs/faturo/internal/ratelimit"
	"github.com/faturolabs/faturo/internal/tenantctx"
	usagedomain "github.com/faturolabs/faturo/internal/usage/domain"
	webhookdomain "github.com/faturolabs/faturo/internal/webhook/domain"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
		ContextFields:   tenantLogFields,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

// tenantLogFields annotates the access log with the tenant the API-key
// middleware authenticated, read back from the request context.
func tenantLogFields(ctx context.Context) []zap.Field {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok {
		return nil
	}
	return []zap.Field{zap.String("tenant_id", tenantID.String())}
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	db         *gorm.DB
	genID      *snowflake.Node
	webhookSvc webhookdomain.Service
	usageSvc   usagedomain.Service
	orderSvc   orderdomain.Service
	limiter    *ratelimit.IngestLimiter
	obsMetrics *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	DB         *gorm.DB
	GenID      *snowflake.Node
	WebhookSvc webhookdomain.Service
	UsageSvc   usagedomain.Service
	OrderSvc   orderdomain.Service
	Limiter    *ratelimit.IngestLimiter `optional:"true"`
	ObsMetrics *obsmetrics.Metrics      `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		db:         p.DB,
		genID:      p.GenID,
		webhookSvc: p.WebhookSvc,
		usageSvc:   p.UsageSvc,
		orderSvc:   p.OrderSvc,
		limiter:    p.Limiter,
		obsMetrics: p.ObsMetrics,
	}

	svc.registerWebhookRoutes()
	svc.registerAPIRoutes()

	return svc
}

// The webhook route is its own trust boundary: provider token auth inside
// the service, no API-key middleware.
func (s *Server) registerWebhookRoutes() {
	webhook := s.engine.Group("/webhook")
	webhook.Use(s.WebhookRateLimit())
	webhook.POST("/asaas", s.HandleAsaasWebhook)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/")
	api.Use(s.APIKeyRequired())

	api.GET("/usage/current", s.RequireScope(scopeUsageRead), s.GetCurrentUsage)

	orders := api.Group("/orders")
	orders.POST("", s.RequireScope(scopeOrdersWrite), s.OrderRateLimit(), s.CreateOrder)
	orders.GET("", s.RequireScope(scopeOrdersRead), s.ListOrders)
	orders.GET("/:id", s.RequireScope(scopeOrdersRead), s.GetOrder)
}
