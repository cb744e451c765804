package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/assurline/assurline/internal/config"
	contractdomain "github.com/assurline/assurline/internal/contract/domain"
	paymentdomain "github.com/assurline/assurline/internal/payment/domain"
	quotedomain "github.com/assurline/assurline/internal/quote/domain"
	tariffdomain "github.com/assurline/assurline/internal/tariff/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Server struct {
	log         *zap.Logger
	cfg         config.Config
	genID       *snowflake.Node
	quoteSvc    quotedomain.Service
	tariffSvc   tariffdomain.Service
	checkoutSvc paymentdomain.CheckoutService
	webhookSvc  paymentdomain.ReconciliationService
	contractSvc contractdomain.Service
}

type Params struct {
	fx.In

	Log         *zap.Logger
	Cfg         config.Config
	GenID       *snowflake.Node
	QuoteSvc    quotedomain.Service
	TariffSvc   tariffdomain.Service
	CheckoutSvc paymentdomain.CheckoutService
	WebhookSvc  paymentdomain.ReconciliationService
	ContractSvc contractdomain.Service
}

func NewServer(p Params) *Server {
	return &Server{
		log:         p.Log.Named("server"),
		cfg:         p.Cfg,
		genID:       p.GenID,
		quoteSvc:    p.QuoteSvc,
		tariffSvc:   p.TariffSvc,
		checkoutSvc: p.CheckoutSvc,
		webhookSvc:  p.WebhookSvc,
		contractSvc: p.ContractSvc,
	}
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")
	{
		api.POST("/quotes", s.CreateQuote)
		api.GET("/quotes/:id", s.GetQuote)
		api.POST("/quotes/:id/save", s.SaveQuote)
		api.POST("/quotes/:id/checkout", s.CheckoutQuote)
		api.DELETE("/quotes/:id", s.DeleteQuote)

		api.GET("/payments/:reference", s.GetPayment)
		api.GET("/contracts/:number", s.GetContract)

		api.GET("/products/:id", s.GetProduct)
		api.PUT("/products/:id/formula", s.SaveFormula)
	}

	r.POST("/webhooks/payment/:aggregator", s.HandlePaymentWebhook)
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
}

func newEngine(cfg config.Config) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	return engine
}

func runHTTP(lc fx.Lifecycle, engine *gin.Engine, s *Server, cfg config.Config, log *zap.Logger) {
	s.RegisterRoutes(engine)
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: engine}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

var Module = fx.Module("server",
	fx.Provide(NewServer),
	fx.Provide(newEngine),
	fx.Invoke(runHTTP),
)
