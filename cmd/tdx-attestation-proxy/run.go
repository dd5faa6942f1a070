package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/edgelesssys/go-tdx-attest/internal/config"
	"github.com/edgelesssys/go-tdx-attest/internal/logger"
	"github.com/edgelesssys/go-tdx-attest/internal/server"
	"github.com/edgelesssys/go-tdx-attest/tdx"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print which quote sources are available on this host",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := config.NewProxyConfigFromViper(viper.GetViper())
		out, err := json.MarshalIndent(tdx.GetStatus(cfg.Paths()), "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func runProxy(_ *cobra.Command, _ []string) error {
	cfg := config.NewProxyConfigFromViper(viper.GetViper())
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug, File: cfg.LogFile})
	if err != nil {
		l.Warn("Logging to stderr only", zap.String("logFile", cfg.LogFile), zap.Error(err))
	}
	defer l.Sync() //nolint:errcheck

	paths := cfg.Paths()
	status := tdx.GetStatus(paths)
	l.Info("Starting TDX attestation proxy",
		zap.String("addr", cfg.Addr()),
		zap.String("libraryPath", paths.Library),
		zap.Bool("libraryExists", status.LibTDXAttest),
		zap.String("tsmReportPath", paths.TSMReport),
		zap.Bool("tsmExists", status.TSMAvailable),
		zap.String("guestDevice", paths.GuestDevice),
		zap.Bool("guestDeviceExists", status.GuestDevice),
	)
	if !status.Available {
		l.Warn("No quote source available, /quote will answer 503 until one appears")
	}

	srv := server.New(tdx.NewQuoteSource(paths, l), paths, cfg.LogFile, l)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.ListenAndServe(ctx, cfg.Addr()); err != nil {
		l.Error("Server stopped", zap.Error(err))
		return err
	}
	l.Info("Shutting down")
	return nil
}
