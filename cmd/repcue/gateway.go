package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dotsetgreg/repcue/pkg/bus"
	"github.com/dotsetgreg/repcue/pkg/channels"
	"github.com/dotsetgreg/repcue/pkg/conversation"
	"github.com/dotsetgreg/repcue/pkg/gateway"
	"github.com/dotsetgreg/repcue/pkg/logger"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownGrace = 15 * time.Second

func newGatewayCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "gateway",
		Short:   "Run the HTTP gateway, chat channels, and engine",
		Long:    "Start the SQLite-backed engine, the HTTP/websocket gateway, enabled chat channels, and the idle worker reaper.",
		Example: "  repcue gateway --debug",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := buildRuntime(ctx, cfg, true)
			if err != nil {
				return err
			}

			msgBus := bus.NewMessageBus()
			channelManager, err := channels.NewManager(cfg, msgBus)
			if err != nil {
				_ = rt.Close(context.Background())
				return fmt.Errorf("create channel manager: %w", err)
			}
			reaper, err := conversation.NewReaper(rt.engine, cfg.Engine.IdleReaperCron,
				time.Duration(cfg.Engine.IdleWorkerMinutes)*time.Minute)
			if err != nil {
				_ = rt.Close(context.Background())
				return err
			}
			server := gateway.NewServer(cfg.Gateway, rt.engine, rt.registry, rt.sqlite)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ Catalog: %s (%d exercises)\n", rt.catalog, rt.index.Len())
			fmt.Fprintf(out, "✓ Store: %s\n", cfg.StorePath())
			if enabled := channelManager.GetEnabledChannels(); len(enabled) > 0 {
				fmt.Fprintf(out, "✓ Channels enabled: %s\n", strings.Join(enabled, ", "))
			}
			fmt.Fprintf(out, "✓ Gateway started on %s\n", server.Addr())
			fmt.Fprintln(out, "Press Ctrl+C to stop")

			g, gctx := errgroup.WithContext(ctx)
			if err := channelManager.StartAll(gctx); err != nil {
				_ = rt.Close(context.Background())
				return err
			}
			g.Go(func() error { return rt.engine.Run(gctx, msgBus) })
			g.Go(func() error { return reaper.Run(gctx) })
			g.Go(func() error { return server.ListenAndServe(gctx) })

			runErr := g.Wait()

			fmt.Fprintln(out, "\nShutting down...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			if err := channelManager.StopAll(shutdownCtx); err != nil {
				logger.WarnCF("gateway", "Channel shutdown incomplete", map[string]interface{}{"error": err.Error()})
			}
			if err := rt.Close(shutdownCtx); err != nil {
				logger.ErrorCF("gateway", "Engine shutdown incomplete", map[string]interface{}{"error": err.Error()})
			}
			msgBus.Close()
			fmt.Fprintln(out, "✓ Gateway stopped")
			return runErr
		},
	}
}
