// Package server runs the HTTP listener for the integration endpoints and
// drains in-flight OAuth callbacks on shutdown.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/smallbiznis/integration-hub/internal/config"
)

// HTTPServer serves the integration routes until its context is cancelled.
type HTTPServer struct {
	engine          *gin.Engine
	addr            string
	shutdownTimeout time.Duration
	logger          *zap.Logger
}

// NewHTTPServer binds the router to the configured port. Client IPs are taken
// from forwarding headers since the web client reaches us through a proxy in
// deployment.
func NewHTTPServer(cfg config.Config, router *gin.Engine, logger *zap.Logger) *HTTPServer {
	router.HandleMethodNotAllowed = true
	router.ForwardedByClientIP = true
	if logger == nil {
		logger = zap.L()
	}
	return &HTTPServer{
		engine:          router,
		addr:            ":" + cfg.HTTPPort,
		shutdownTimeout: cfg.ShutdownTimeout,
		logger:          logger,
	}
}

// Run blocks serving requests until ctx is cancelled, then drains in-flight
// requests within the configured shutdown timeout. An OAuth callback caught
// mid-exchange gets to finish; its credentials would otherwise be lost and
// the user forced back through the popup.
func (s *HTTPServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("http server listening", zap.String("addr", s.addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("listen on %s: %w", s.addr, err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		s.logger.Info("http server draining", zap.Duration("timeout", s.shutdownTimeout))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
