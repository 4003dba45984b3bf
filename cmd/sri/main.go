package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/nexconsult/sri-invoices/internal/config"
	"github.com/nexconsult/sri-invoices/internal/logger"
	"github.com/nexconsult/sri-invoices/internal/services"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:          "sri",
		Short:        "Downloads received invoices from the SRI portal",
		Version:      Version,
		SilenceUsage: true,
	}

	// Add subcommands
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(encryptCmd())
	rootCmd.AddCommand(companiesCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads .env when present and then the environment
func loadConfig() (*config.Config, *logrus.Logger, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, logger.New(cfg.Log.Level, cfg.Log.Format), nil
}

// withContainer builds the service container, runs fn and closes it
func withContainer(fn func(*services.Container, *logrus.Logger) error) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	container, err := services.NewContainer(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer func() {
		if err := container.Close(); err != nil {
			log.WithError(err).Error("Failed to close services")
		}
	}()

	return fn(container, log)
}
