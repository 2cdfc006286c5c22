// Command mcpsup supervises a fleet of MCP servers described by an mcp.json
// file. It can list the aggregated tool inventory or front the fleet with a
// single Streamable HTTP gateway.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	mcpgateway "github.com/toolmesh/mcp-supervisor-go/pkg/mcp-gateway"
	"github.com/toolmesh/mcp-supervisor-go/pkg/mcpsup"
)

var (
	flagConfig  string
	flagVerbose bool
)

func main() {
	root := &cobra.Command{
		Use:           "mcpsup",
		Short:         "Supervise a fleet of MCP servers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "path to an mcp.json (or .yaml) config file; defaults to ./mcp.json when present")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newToolsCommand())
	root.AddCommand(newServeCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func newSupervisor(logger *slog.Logger) (*mcpsup.Supervisor, error) {
	opts := &mcpsup.Options{Logger: logger}
	if flagConfig != "" {
		return mcpsup.NewFromFile(flagConfig, opts)
	}
	return mcpsup.New(opts), nil
}

func newToolsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tools [server...]",
		Short: "Connect to every configured server and list the discovered tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			sup, err := newSupervisor(logger)
			if err != nil {
				return err
			}
			defer sup.Close()

			if len(sup.Servers()) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no servers configured")
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if _, err := sup.InitializeAll(ctx); err != nil {
				return err
			}
			for _, entry := range sup.Tools(args...) {
				if entry.Tool.Description != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "%s/%s\t%s\n", entry.Server, entry.Tool.Name, entry.Tool.Description)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%s/%s\n", entry.Server, entry.Tool.Name)
				}
			}
			return nil
		},
	}
}

func newServeCommand() *cobra.Command {
	var (
		addr string
		path string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose every configured server's tools through one Streamable HTTP endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			sup, err := newSupervisor(logger)
			if err != nil {
				return err
			}
			defer sup.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if _, err := sup.InitializeAll(ctx); err != nil {
				return err
			}

			gateway, err := mcpgateway.NewGateway(sup, &mcpgateway.Options{
				Addr:   addr,
				Path:   path,
				Logger: logger,
			})
			if err != nil {
				return err
			}

			logger.Info("gateway listening", "addr", addr, "path", path,
				"servers", len(sup.Servers()), "tools", len(sup.Tools()))
			if err := gateway.ListenAndServe(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8700", "listen address")
	cmd.Flags().StringVar(&path, "path", "/mcp", "HTTP path for the Streamable endpoint")
	return cmd
}
