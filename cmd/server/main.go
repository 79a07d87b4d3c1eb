package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"personhood/internal/platform/config"
	"personhood/internal/platform/logger"
)

// main loads configuration and dispatches to a subcommand. Wiring lives in
// app.go; business logic lives in internal packages.
func main() {
	_ = godotenv.Load(".env")     // base
	_ = godotenv.Load(".env.dev") // dev overrides

	cfg := config.FromEnv()

	root := &cobra.Command{
		Use:           "personhood",
		Short:         "World ID proof-of-personhood verification service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug|info|warn|error (env LOG_LEVEL)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), cfg, logger.New(cfg.Env, cfg.LogLevel))
		},
	}
	serveCmd.Flags().StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address (env PERSONHOOD_ADDR)")

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations to DATABASE_URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrate(cmd.Context(), cfg, logger.New(cfg.Env, cfg.LogLevel))
		},
	}

	var (
		tokenAccount string
		tokenTTL     time.Duration
	)
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development access token for an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if tokenAccount == "" {
				return fmt.Errorf("--account is required")
			}
			token, err := issueToken(cfg, tokenAccount, tokenTTL)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	tokenCmd.Flags().StringVar(&tokenAccount, "account", "", "account id to put in the token subject")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "token lifetime")

	root.AddCommand(serveCmd, migrateCmd, tokenCmd)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
