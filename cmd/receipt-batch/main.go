// Command receipt-batch extracts every receipt image in a directory and
// writes the results to an XLSX or CSV file.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ironsheep/receipt-extractor/internal/app"
	"github.com/ironsheep/receipt-extractor/internal/batch"
	"github.com/ironsheep/receipt-extractor/internal/config"
	"github.com/ironsheep/receipt-extractor/internal/export"
	"github.com/ironsheep/receipt-extractor/internal/log"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		out        string
		workers    int
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:          "receipt-batch <dir>",
		Short:        "Extract date, amount and category from every receipt image in a directory",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := export.FormatFor(out); err != nil {
				return err
			}
			if err := config.LoadDotEnv(); err != nil {
				return err
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if debug {
				cfg.LogLevel = log.LevelDebug
			}
			log.SetLevel(cfg.LogLevel)
			// One Tesseract client per worker.
			if cfg.OCR.PoolSize < workers {
				cfg.OCR.PoolSize = workers
			}

			files, err := batch.Collect(args[0])
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return fmt.Errorf("no .jpg, .jpeg or .png files in %s", args[0])
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			rows, runErr := batch.Run(ctx, a, files, workers)
			if rows != nil {
				if err := export.WriteFile(out, rows); err != nil {
					return err
				}
			}
			if runErr != nil {
				return runErr
			}

			failed := 0
			for _, r := range rows {
				if r.Error != "" {
					failed++
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d receipts, %d failed, written to %s\n", len(rows), failed, out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "results.xlsx", "output file (.xlsx or .csv)")
	cmd.Flags().IntVarP(&workers, "workers", "w", runtime.NumCPU(), "number of receipts processed in parallel")
	cmd.Flags().StringVar(&configPath, "config", "", "YAML configuration file (default $RECEIPT_CONFIG_FILE)")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")
	return cmd
}
