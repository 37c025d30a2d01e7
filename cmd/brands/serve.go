package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/martin3r-me/platforms-brands-sub000/internal/auth"
	"github.com/martin3r-me/platforms-brands-sub000/internal/config"
	"github.com/martin3r-me/platforms-brands-sub000/internal/httpserver"
	"github.com/martin3r-me/platforms-brands-sub000/internal/logging"
	"github.com/martin3r-me/platforms-brands-sub000/internal/tlsutil"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config load: %w", err)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	verifier, err := auth.NewVerifier(auth.VerifierConfig{
		Secret:        cfg.AuthSecret,
		PublicKeyFile: cfg.AuthPublicKeyFile,
		Issuer:        cfg.AuthIssuer,
		DebugToken:    cfg.DebugToken,
	})
	if err != nil {
		return err
	}

	server := httpserver.New(a.svc, verifier, logger, cfg.AdapterTimeout+30*time.Second)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if cfg.TLSCertFile != "" {
		tlsCfg, err := tlsutil.ServerConfig(cfg.TLSCertFile, cfg.TLSKeyFile, cfg.TLSClientCAFile)
		if err != nil {
			return err
		}
		httpServer.TLSConfig = tlsCfg
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("brands api listening", zap.String("addr", cfg.Addr), zap.Bool("tls", httpServer.TLSConfig != nil))
		var err error
		if httpServer.TLSConfig != nil {
			err = httpServer.ListenAndServeTLS("", "")
		} else {
			err = httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-stop:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
	return nil
}
