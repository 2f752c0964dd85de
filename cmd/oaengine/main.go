// Package main implements oaengine, the approval workflow engine's server
// and catalog-administration CLI.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/c360studio/oaengine/config"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		natsURL    string
	)

	rootCmd := &cobra.Command{
		Use:     "oaengine",
		Short:   "Approval workflow engine",
		Version: fmt.Sprintf("%s (built %s)", Version, BuildTime),
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&natsURL, "nats-url", "", "NATS server URL (default: embedded)")

	rootCmd.AddCommand(
		newServeCmd(&configPath, &natsURL),
		newSeedCatalogCmd(&configPath, &natsURL),
		newReconcileCatalogCmd(&configPath, &natsURL),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return rootCmd.ExecuteContext(ctx)
}

func loadConfig(configPath, natsURL string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configPath != "" {
		loaded, err := config.LoadFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if natsURL != "" {
		cfg.NATS.URL = natsURL
		cfg.NATS.Embedded = false
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newServeCmd(configPath, natsURL *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the approval engine, holding its NATS/JetStream connection open",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath, *natsURL)
			if err != nil {
				return err
			}

			app, err := NewApp(cfg)
			if err != nil {
				return fmt.Errorf("initialize app: %w", err)
			}
			defer app.Shutdown(5 * time.Second)

			ctx := cmd.Context()
			if err := app.Start(ctx); err != nil {
				return fmt.Errorf("start app: %w", err)
			}

			<-ctx.Done()
			slog.Info("shutting down")
			return nil
		},
	}
}

func newSeedCatalogCmd(configPath, natsURL *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed-catalog",
		Short: "Seed the workflow variant catalog with its embedded defaults and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath, *natsURL)
			if err != nil {
				return err
			}

			app, err := NewApp(cfg)
			if err != nil {
				return fmt.Errorf("initialize app: %w", err)
			}
			defer app.Shutdown(5 * time.Second)

			if err := app.Start(cmd.Context()); err != nil {
				return fmt.Errorf("start app: %w", err)
			}

			fmt.Println("catalog seeded")
			return nil
		},
	}
}

func newReconcileCatalogCmd(configPath, natsURL *string) *cobra.Command {
	var seedPath string
	cmd := &cobra.Command{
		Use:   "reconcile-catalog",
		Short: "Apply a catalog override file on top of the seeded defaults and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath, *natsURL)
			if err != nil {
				return err
			}
			if seedPath != "" {
				cfg.Catalog.SeedPath = seedPath
				cfg.Catalog.WatchForChanges = false
			}
			if cfg.Catalog.SeedPath == "" {
				return fmt.Errorf("reconcile-catalog requires --file or catalog.seed_path in config")
			}

			app, err := NewApp(cfg)
			if err != nil {
				return fmt.Errorf("initialize app: %w", err)
			}
			defer app.Shutdown(5 * time.Second)

			if err := app.Start(cmd.Context()); err != nil {
				return fmt.Errorf("start app: %w", err)
			}

			fmt.Printf("catalog override %s applied\n", cfg.Catalog.SeedPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&seedPath, "file", "", "Path to a catalog override YAML file")
	return cmd
}
