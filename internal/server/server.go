// Package server exposes the invoicing operations over HTTP.
package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/orderstack/fulfill/internal/config"
	"github.com/orderstack/fulfill/internal/guard"
	invoicedomain "github.com/orderstack/fulfill/internal/invoice/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(RegisterRoutes),
	fx.Invoke(RunHTTP),
)

func NewEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ErrorHandlingMiddleware())
	return r
}

type ServerParam struct {
	fx.In

	Engine     *gin.Engine
	Log        *zap.Logger
	InvoiceSvc invoicedomain.Service
	Guard      *guard.IssueGuard `optional:"true"`
}

type Server struct {
	engine *gin.Engine
	log    *zap.Logger

	invoiceSvc invoicedomain.Service
	guard      *guard.IssueGuard
}

func NewServer(p ServerParam) *Server {
	return &Server{
		engine:     p.Engine,
		log:        p.Log.Named("http.server"),
		invoiceSvc: p.InvoiceSvc,
		guard:      p.Guard,
	}
}

func RegisterRoutes(s *Server) {
	v1 := s.engine.Group("/v1")

	v1.POST("/orders/:id/invoice/queue", s.QueueInvoice)
	v1.POST("/orders/:id/invoice/issue", s.IssueInvoice)
	v1.POST("/orders/:id/refund-voucher", s.IssueRefundVoucher)
	v1.GET("/orders/:id/invoice", s.GetInvoiceByOrder)

	v1.POST("/invoices/:id/retry", s.RetryInvoice)
	v1.POST("/invoices/bulk-issue", s.IssueBulk)
	v1.GET("/invoices/:id", s.GetInvoice)

	v1.GET("/taxpayers/:taxid", s.CheckTaxpayer)
}

func RunHTTP(lc fx.Lifecycle, engine *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: engine,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
