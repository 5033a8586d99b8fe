package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/vibesql/shardmerge/internal/config"
	"github.com/vibesql/shardmerge/internal/server"
	"github.com/vibesql/shardmerge/internal/version"
)

const pingTimeout = 5 * time.Second

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "shardmerge",
		Short:         "ShardMerge - fan-out executor and result merger for sharded SQL",
		Version:       version.Get().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate("{{.Version}}\n")
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")

	root.AddCommand(
		newServeCmd(&configPath),
		newPingCmd(&configPath),
		newVersionCmd(),
	)
	return root
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			a, err := newApp(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			a.logger.Info("Starting "+version.Name, "build", version.Get().String(), "data_sources", a.sources.Len())

			ctx, cancel := context.WithTimeout(cmd.Context(), pingTimeout)
			if err := a.sources.PingAll(ctx); err != nil {
				a.logger.Warn("Data source not reachable at startup", "error", err)
			}
			cancel()

			srv := server.NewServer(cfg.Server, a.Router(), a.logger)
			if err := srv.Start(); err != nil {
				return fmt.Errorf("failed to start HTTP server: %w", err)
			}
			a.logger.Info("Ready", "http", "http://"+srv.Addr(), "pool_size", a.executor.Size())

			srv.WaitForShutdown()
			a.logger.Info("Shutdown complete")
			return nil
		},
	}
}

func newPingCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that every configured data source is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			sources, err := openSources(cfg)
			if err != nil {
				return err
			}
			defer sources.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), pingTimeout)
			defer cancel()
			if err := sources.PingAll(ctx); err != nil {
				return err
			}
			for _, name := range sources.Names() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\tok\n", name)
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	var short, asJSON bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Get()
			out := cmd.OutOrStdout()
			switch {
			case asJSON:
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			case short:
				fmt.Fprintln(out, info.Version)
			default:
				fmt.Fprintln(out, info.Full())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&short, "short", false, "print the version number only")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print version information as JSON")
	return cmd
}
