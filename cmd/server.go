package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ziadkadry99/hitl/internal/server"
)

var (
	serverPort     int
	maintainPeriod time.Duration
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the HTTP API server",
	Long: `Starts the hitl HTTP API: uncertainty assessment, engagement routing and
clarification sessions under /api/v1, the reviewer-only audit and
notification logs, /healthz and Prometheus /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if cmd.Flags().Changed("port") {
			a.cfg.Server.Port = serverPort
		}

		srv := server.New(a.cfg.Server, a.cfg.Auth, server.Deps{
			Engine:        a.engine,
			Authorizer:    a.authz,
			Audit:         a.audit,
			Notifications: a.notifStore,
			Dispatcher:    a.dispatcher,
			Metrics:       a.metrics,
			Gatherer:      a.registry,
		}, a.logger)

		a.logger.Info("hitl server starting",
			zap.String("version", Version),
			zap.String("addr", srv.Addr()),
			zap.String("storage", string(a.cfg.Storage.Driver)),
		)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(srv.Start)
		g.Go(func() error {
			<-gctx.Done()
			a.logger.Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		g.Go(func() error {
			ticker := time.NewTicker(maintainPeriod)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					a.maintain(gctx)
				}
			}
		})

		if err := g.Wait(); err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	},
}

func init() {
	serverCmd.Flags().IntVar(&serverPort, "port", 8080, "port to listen on (overrides server.port)")
	serverCmd.Flags().DurationVar(&maintainPeriod, "maintain-every", time.Minute, "interval between session sweeps and webhook retries")
	rootCmd.AddCommand(serverCmd)
}
