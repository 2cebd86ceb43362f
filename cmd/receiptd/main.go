// Command receiptd serves the receipt extraction HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ironsheep/receipt-extractor/internal/app"
	"github.com/ironsheep/receipt-extractor/internal/config"
	"github.com/ironsheep/receipt-extractor/internal/httpapi"
	"github.com/ironsheep/receipt-extractor/internal/log"
)

// Version is set by ldflags during build.
var Version = "dev"

func main() {
	configPath := flag.String("config", "", "YAML configuration file (default $RECEIPT_CONFIG_FILE)")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before the environment is read")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("receiptd %s\n", Version)
		return
	}

	if err := run(*configPath, *envFile); err != nil {
		log.Errorf("receiptd: %v", err)
		os.Exit(1)
	}
}

func run(configPath, envFile string) error {
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var holder app.Holder
	defer holder.Close()

	// Models load in the background; /health reports "loading" meanwhile.
	go func() {
		a, err := app.New(ctx, cfg)
		if err != nil {
			holder.Fail(err)
			if errors.Is(err, app.ErrModelUnavailable) {
				log.Errorf("models failed to load, service stays not ready: %v", err)
			} else {
				log.Errorf("initialization failed: %v", err)
			}
			return
		}
		if ctx.Err() != nil {
			_ = a.Close()
			return
		}
		holder.Set(a)
	}()

	srv := httpapi.New(&holder, httpapi.Options{
		MaxUploadBytes: cfg.HTTP.MaxUploadBytes(),
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	})
	log.Infof("receiptd %s starting on %s", Version, cfg.HTTP.Addr())
	return srv.ListenAndServe(ctx, cfg.HTTP.Addr())
}
