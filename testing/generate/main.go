package main

import (
	"fmt"
	"os"

	"github.com/edgelesssys/go-tdx-attest/internal/logger"
	"github.com/edgelesssys/go-tdx-attest/tdx"
	"go.uber.org/zap"
)

func main() {
	if err := testTDX(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func testTDX() error {
	log, _ := logger.NewLogger(&logger.LoggerConfig{Debug: true})
	defer log.Sync() //nolint:errcheck

	source := tdx.NewQuoteSource(tdx.DefaultPaths(), log)

	res := source.Acquire([]byte("Hello from Edgeless Systems!"))
	if !res.OK() {
		return fmt.Errorf("no quote generated, status: %+v", tdx.GetStatus(tdx.DefaultPaths()))
	}

	if err := os.WriteFile("quote", res.Quote, 0o644); err != nil {
		return err
	}
	log.Info("Successfully written quote", zap.String("source", res.Source), zap.Int("size", len(res.Quote)))

	return nil
}
