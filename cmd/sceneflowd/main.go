// Command sceneflowd runs the SceneFlow collaboration hub.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sceneflow-dev/sceneflow/internal/config"
	"github.com/sceneflow-dev/sceneflow/pkg/hub"
)

var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "sceneflowd",
		Short:        "SceneFlow real-time collaboration hub",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd(), tokenCmd(), versionCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the collaboration hub server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			setupLogging(cfg)

			server, err := hub.NewServer(cfg.HubConfig())
			if err != nil {
				return err
			}

			slog.Info("starting sceneflowd", "version", version, "address", cfg.Address)
			return server.Run(cmd.Context())
		},
	}
}

func tokenCmd() *cobra.Command {
	var (
		userID int64
		name   string
		color  string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development bearer token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			token, err := hub.MintToken([]byte(cfg.JWTSecret), hub.Identity{
				UserID: userID,
				Name:   name,
				Color:  color,
			}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().Int64Var(&userID, "user", 1, "numeric user ID")
	cmd.Flags().StringVar(&name, "name", "dev", "display name")
	cmd.Flags().StringVar(&color, "color", "#4F8EF7", "presence color")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

func setupLogging(cfg *config.Config) {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
