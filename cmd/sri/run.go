package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nexconsult/sri-invoices/internal/models"
	"github.com/nexconsult/sri-invoices/internal/services"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func runCmd() *cobra.Command {
	var (
		ruc       string
		startDate string
		mode      string
		all       bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Log in to the portal and download received invoices",
		Long: `Runs the portal automation in the foreground and prints the run
result as JSON. With --all every registered company is processed one
after another, pausing COMPANY_PAUSE between companies.`,
		Example: `  sri run --ruc 1790011674001 --start-date 2025-01-01
  sri run --ruc 1790011674001 --mode login
  sri run --all`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (ruc != "") {
				return fmt.Errorf("exactly one of --ruc or --all is required")
			}

			from, err := services.ParseStartDate(startDate)
			if err != nil {
				return err
			}
			runMode := models.RunMode(mode)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return withContainer(func(c *services.Container, log *logrus.Logger) error {
				if all {
					return runAll(ctx, c, log, from, runMode)
				}

				result, err := c.DownloadService.Run(ctx, ruc, from, runMode)
				if result == nil {
					return err
				}
				if err := printJSON(result); err != nil {
					return err
				}
				if !succeeded(result) {
					return fmt.Errorf("run finished with outcome %s", result.Outcome)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&ruc, "ruc", "", "Taxpayer RUC (13 digits)")
	cmd.Flags().StringVar(&startDate, "start-date", "", "Only invoices issued from this date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&mode, "mode", string(models.ModeFull), "Run mode (login, full)")
	cmd.Flags().BoolVar(&all, "all", false, "Process every registered company")

	return cmd
}

func runAll(ctx context.Context, c *services.Container, log *logrus.Logger, from *time.Time, mode models.RunMode) error {
	results, err := c.DownloadService.RunAll(ctx, from, mode)
	if printErr := printJSON(results); printErr != nil {
		return printErr
	}
	if err != nil {
		return err
	}

	failed := 0
	for _, result := range results {
		if !succeeded(result) {
			failed++
		}
	}
	log.WithFields(logrus.Fields{
		"companies": len(results),
		"failed":    failed,
	}).Info("All companies processed")

	if failed > 0 {
		return fmt.Errorf("%d of %d runs failed", failed, len(results))
	}
	return nil
}

func succeeded(result *models.RunResult) bool {
	return result.Outcome == models.OutcomeSuccess || result.Outcome == models.OutcomePartial
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
