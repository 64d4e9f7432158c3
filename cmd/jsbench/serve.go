package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/jsbench/internal/server"
)

const shutdownTimeout = 15 * time.Second

func newServeCommand(a *app) *cobra.Command {
	var port, host string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and WebSocket API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if port != "" {
				a.cfg.Server.Port = port
			}
			if host != "" {
				a.cfg.Server.Host = host
			}

			srv, err := server.New(a.cfg, a.logger)
			if err != nil {
				return err
			}

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Run() }()

			select {
			case <-cmd.Context().Done():
				a.logger.Info("Shutting down gracefully...")
			case err := <-errCh:
				if err != nil {
					a.logger.Error("Server error", zap.Error(err))
				}
				_ = srv.Close()
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(ctx)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "listen port (overrides JSBENCH_SERVER_PORT)")
	cmd.Flags().StringVar(&host, "host", "", "listen host (overrides JSBENCH_SERVER_HOST)")
	return cmd
}
