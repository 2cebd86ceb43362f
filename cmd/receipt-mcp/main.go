package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ironsheep/receipt-extractor/internal/app"
	"github.com/ironsheep/receipt-extractor/internal/config"
	"github.com/ironsheep/receipt-extractor/internal/log"
	"github.com/ironsheep/receipt-extractor/internal/server"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Handle --version and -v flags
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("receipt-mcp %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			fmt.Println("receipt-mcp - MCP server for receipt extraction")
			fmt.Println()
			fmt.Println("Usage: receipt-mcp [options]")
			fmt.Println()
			fmt.Println("Options:")
			fmt.Println("  --version, -v    Print version information")
			fmt.Println("  --help, -h       Print this help message")
			fmt.Println()
			fmt.Println("Environment variables:")
			fmt.Println("  RECEIPT_CONFIG_FILE=path      Optional YAML configuration")
			fmt.Println("  RECEIPT_DETECTOR_URL=url      Region detector inference service")
			fmt.Println("  RECEIPT_LOG_LEVEL=debug       Enable debug logging")
			fmt.Println()
			fmt.Println("This server communicates via MCP protocol over stdin/stdout.")
			fmt.Println("Configure it in your MCP client (e.g., Claude Desktop).")
			return
		}
	}

	if err := run(); err != nil {
		log.Errorf("server error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.Load("")
	if err != nil {
		return err
	}
	log.SetLevel(cfg.LogLevel)
	log.Debugf("receipt MCP server %s (built %s, commit %s)", Version, BuildTime, GitCommit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	server.Version = Version
	return server.New(a).Run(ctx)
}
