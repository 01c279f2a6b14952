package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/petlog/internal/authorization"
	"github.com/smallbiznis/petlog/internal/cache"
	"github.com/smallbiznis/petlog/internal/config"
	"github.com/smallbiznis/petlog/internal/lock"
	"github.com/smallbiznis/petlog/internal/observability"
	obsmiddleware "github.com/smallbiznis/petlog/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/petlog/internal/observability/metrics"
	obstracing "github.com/smallbiznis/petlog/internal/observability/tracing"
	"github.com/smallbiznis/petlog/internal/payment"
	paymentdomain "github.com/smallbiznis/petlog/internal/payment/domain"
	"github.com/smallbiznis/petlog/internal/plan"
	plandomain "github.com/smallbiznis/petlog/internal/plan/domain"
	"github.com/smallbiznis/petlog/internal/ratelimit"
	"github.com/smallbiznis/petlog/internal/setting"
	settingdomain "github.com/smallbiznis/petlog/internal/setting/domain"
	"github.com/smallbiznis/petlog/internal/subscription"
	subscriptiondomain "github.com/smallbiznis/petlog/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module wires the billing services behind the HTTP surface. Callers still
// pick which route groups to register.
var Module = fx.Module("http.server",
	cache.Module,
	lock.Module,
	ratelimit.Module,
	authorization.Module,
	plan.Module,
	setting.Module,
	subscription.Module,
	payment.Module,
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.Middleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

// RunHTTP serves the engine for the lifetime of the fx app.
func RunHTTP(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
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
	engine          *gin.Engine
	cfg             config.Config
	log             *zap.Logger
	authzSvc        authorization.Service
	planSvc         plandomain.Service
	subscriptionSvc subscriptiondomain.Service
	settingSvc      settingdomain.Service
	paymentSvc      paymentdomain.Service
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	AuthzSvc        authorization.Service
	PlanSvc         plandomain.Service
	SubscriptionSvc subscriptiondomain.Service
	SettingSvc      settingdomain.Service
	PaymentSvc      paymentdomain.Service
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("http"),
		authzSvc:        p.AuthzSvc,
		planSvc:         p.PlanSvc,
		subscriptionSvc: p.SubscriptionSvc,
		settingSvc:      p.SettingSvc,
		paymentSvc:      p.PaymentSvc,
	}
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// RegisterRoutes mounts every route group.
func (s *Server) RegisterRoutes() {
	s.RegisterPublicRoutes()
	s.RegisterOwnerRoutes()
	s.RegisterAdminRoutes()
}

// RegisterPublicRoutes mounts routes that need no caller identity.
func (s *Server) RegisterPublicRoutes() {
	api := s.engine.Group("/api")

	api.GET("/payment/plans", s.ListPlans)

	// -------- Payment Webhooks --------
	api.POST("/payment/webhook", s.HandlePaymentWebhook)
	api.POST("/payment/webhooks/:provider", s.HandlePaymentWebhook)
}

func (s *Server) RegisterOwnerRoutes() {
	api := s.engine.Group("/api")
	api.Use(TenantContext(), RoleContext())

	// -------- Payment --------
	pay := api.Group("/payment")
	{
		pay.GET("/upgrade-cost", s.authorize(authorization.ObjectPayment, authorization.ActionCheckout), s.UpgradeCost)
		pay.GET("/extra-rooms-cost", s.authorize(authorization.ObjectPayment, authorization.ActionCheckout), s.ExtraRoomsCost)
		pay.GET("/renewal-cost", s.authorize(authorization.ObjectPayment, authorization.ActionCheckout), s.RenewalCost)
		pay.POST("/create", s.authorize(authorization.ObjectPayment, authorization.ActionCheckout), s.CreatePayment)
		pay.GET("/check", s.authorize(authorization.ObjectPayment, authorization.ActionView), s.CheckPayment)
		pay.GET("/history", s.authorize(authorization.ObjectPayment, authorization.ActionView), s.PaymentHistory)
	}

	// -------- Subscription --------
	api.GET("/subscription", s.authorize(authorization.ObjectSubscription, authorization.ActionView), s.GetSubscription)
	api.GET("/subscription/access", s.authorize(authorization.ObjectSubscription, authorization.ActionView), s.CheckSubscriptionAccess)
}

func (s *Server) RegisterAdminRoutes() {
	admin := s.engine.Group("/api/admin")
	admin.Use(RoleContext())

	admin.GET("/stats", s.authorize(authorization.ObjectSubscription, authorization.ActionManage), s.AdminStats)

	// -------- Plans --------
	admin.GET("/plans", s.authorize(authorization.ObjectPlan, authorization.ActionManage), s.AdminListPlans)
	admin.POST("/plans", s.authorize(authorization.ObjectPlan, authorization.ActionManage), s.AdminCreatePlan)
	admin.PATCH("/plans/:id", s.authorize(authorization.ObjectPlan, authorization.ActionManage), s.AdminUpdatePlan)
	admin.DELETE("/plans/:id", s.authorize(authorization.ObjectPlan, authorization.ActionManage), s.AdminDeletePlan)

	// -------- Hotels --------
	admin.GET("/hotels/:id/subscription", s.authorize(authorization.ObjectSubscription, authorization.ActionManage), s.AdminGetSubscription)
	admin.PATCH("/hotels/:id/subscription", s.authorize(authorization.ObjectSubscription, authorization.ActionManage), s.AdminUpdateSubscription)
	admin.POST("/hotels/:id/trial", s.authorize(authorization.ObjectSubscription, authorization.ActionManage), s.AdminStartTrial)
	admin.GET("/hotels/:id/payments", s.authorize(authorization.ObjectPayment, authorization.ActionManage), s.AdminTenantPayments)

	// -------- Config --------
	admin.GET("/config", s.authorize(authorization.ObjectConfig, authorization.ActionView), s.AdminListConfigs)
	admin.PATCH("/config/:key", s.authorize(authorization.ObjectConfig, authorization.ActionManage), s.AdminUpdateConfig)

	// -------- Payments --------
	admin.GET("/payments", s.authorize(authorization.ObjectPayment, authorization.ActionManage), s.AdminListPayments)
	admin.GET("/revenue", s.authorize(authorization.ObjectRevenue, authorization.ActionView), s.AdminRevenue)
}
