// Package server exposes the invoice engine over HTTP.
package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zenbill/zenbill/internal/config"
	invoicedomain "github.com/zenbill/zenbill/internal/invoice/domain"
	loyaltydomain "github.com/zenbill/zenbill/internal/loyalty/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(RegisterRoutes),
	fx.Invoke(run),
)

// NewEngine builds the gin engine with the baseline middleware and probes.
func NewEngine(cfg config.Config) *gin.Engine {
	gin.SetMode(cfg.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

// Server holds the HTTP handler dependencies.
type Server struct {
	engine     *gin.Engine
	log        *zap.Logger
	invoiceSvc invoicedomain.Service
	loyaltySvc loyaltydomain.Service
}

type Params struct {
	fx.In

	Engine     *gin.Engine
	Log        *zap.Logger
	InvoiceSvc invoicedomain.Service
	LoyaltySvc loyaltydomain.Service
}

func NewServer(p Params) *Server {
	return &Server{
		engine:     p.Engine,
		log:        p.Log.Named("http.server"),
		invoiceSvc: p.InvoiceSvc,
		loyaltySvc: p.LoyaltySvc,
	}
}

// RegisterRoutes mounts the tenant-scoped API.
func RegisterRoutes(s *Server) {
	api := s.engine.Group("/api/v1")
	api.Use(TenantMiddleware())

	api.POST("/invoices", s.CreateInvoice)
	api.GET("/invoices", s.ListInvoices)
	api.GET("/invoices/:id", s.GetInvoice)
	api.PUT("/invoices/:id", s.UpdateInvoice)
	api.DELETE("/invoices/:id", s.DeleteInvoice)
	api.POST("/invoices/:id/payments", s.AddPayment)

	api.GET("/customers/:id/loyalty", s.GetCustomerLoyalty)
}

func run(lc fx.Lifecycle, engine *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: engine,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Info("http server starting", zap.String("addr", srv.Addr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("http server exited", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("http server stopping")
			return srv.Shutdown(ctx)
		},
	})
}
