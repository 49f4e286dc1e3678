package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/septapod/agentmapper/internal/build"
	"github.com/septapod/agentmapper/internal/config"
	"github.com/septapod/agentmapper/internal/mcp"
	"github.com/septapod/agentmapper/internal/web"
)

// shutdownTimeout bounds the graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

// newRootCmd builds the command tree. Running the root command is the same
// as "serve".
func newRootCmd() *cobra.Command {
	var configPath string

	v := config.New()

	loadConfig := func(cmd *cobra.Command) (*config.Config, error) {
		if err := config.BindFlags(v, cmd.Flags()); err != nil {
			return nil, err
		}

		return config.Load(v, configPath)
	}

	root := &cobra.Command{
		Use:           "workshopd",
		Short:         "Workshop insight and cloud sync daemon",
		Version:       build.Version(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(
		&configPath, "config", "", "Path to workshop.yaml",
	)
	root.PersistentFlags().String(
		"data-dir", "", "Directory for the database and logs",
	)
	root.PersistentFlags().String(
		"log-level", "", "Log level: trace, debug, info, warn, error",
	)

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			return runServe(cmd.Context(), cfg)
		},
	}
	serve.Flags().String("web-addr", "", "HTTP listen address")
	serve.Flags().String("inbox-dir", "",
		"Directory of <exercise-id>.json answer files to import")
	serve.Flags().Bool("cloud-serve", false,
		"Host the cloud copy for other daemons")

	mcpCmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the MCP tools over stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			return runMCP(cmd.Context(), cfg)
		},
	}

	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())
	root.AddCommand(serve, mcpCmd)

	return root
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context,
	context.CancelFunc) {

	if parent == nil {
		parent = context.Background()
	}

	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func runServe(parent context.Context, cfg *config.Config) error {
	ctx, stop := signalContext(parent)
	defer stop()

	d, err := newDaemon(ctx, cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer d.close()

	if err := d.start(ctx); err != nil {
		return err
	}

	srv := web.NewServer(web.Config{
		Addr:       cfg.Web.Addr,
		Summarizer: d.summarizer,
		Insights:   d.insights,
		Store:      d.store,
		Sync:       d.sync,
		CloudHost:  d.cloudHost,
		Log:        d.log,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err = <-errCh:
		if err != nil {
			err = fmt.Errorf("web server: %w", err)
		}

	case <-ctx.Done():
		d.log.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(), shutdownTimeout,
	)
	defer cancel()

	return errors.Join(err, srv.Shutdown(shutdownCtx))
}

func runMCP(parent context.Context, cfg *config.Config) error {
	ctx, stop := signalContext(parent)
	defer stop()

	// Stdout belongs to the protocol, so nothing may be logged there.
	d, err := newDaemon(ctx, cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer d.close()

	if err := d.start(ctx); err != nil {
		return err
	}

	server := mcp.NewServer(mcp.Config{
		Insights: d.insights,
		Store:    d.store,
		Sync:     d.sync,
		Log:      d.log,
	})

	d.log.Info("Starting MCP server on stdio")

	return server.Run(ctx, &sdkmcp.StdioTransport{})
}
