package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Kaniroj/New-AI-Kanilla/internal/telemetry"
	"github.com/Kaniroj/New-AI-Kanilla/server"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Serve POST /ask, POST /rag/query and the /ws websocket over the configured index",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().StringP("addr", "a", "", "Address to listen on (overrides server.addr)")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}

	flush := telemetry.Init(telemetry.Config{
		DSN:         cfg.Server.SentryDSN,
		Environment: cfg.Server.Environment,
	})
	defer flush()

	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	return server.New(a.synthesizer, cfg.Server).ListenAndServe(ctx)
}
