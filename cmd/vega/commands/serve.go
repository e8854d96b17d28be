package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Kvijay199428/VEGA-sub001/internal/api"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the order API server",
	Long: `Starts the HTTP API and, unless --no-scheduler is set, the maintenance scheduler.

Endpoints:
  POST   /api/v1/orders/multi        - place a batch (Idempotency-Key honoured)
  PUT    /api/v1/orders/{id}         - modify an order
  DELETE /api/v1/orders/{id}         - cancel an order
  POST   /api/v1/orders/cancel       - cancel a list of orders
  DELETE /api/v1/orders              - cancel by segment / tag
  POST   /api/v1/positions/exit      - exit all positions
  GET    /api/v1/orders              - order book
  GET    /api/v1/orders/history      - order audit trail
  GET    /api/v1/orders/{id}/trades  - executions of an order
  GET    /api/v1/trades              - today's executions
  GET    /api/v1/trades/history      - paged executions
  GET    /api/v1/ratelimit/usage     - venue limiter usage
  GET    /ws/orders                  - live audit events
  GET    /metrics, /health

Example:
  go run ./cmd/vega serve
  go run ./cmd/vega serve --port 9090 --no-scheduler`,
	RunE: runServe,
}

var (
	servePort        string
	serveNoScheduler bool
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&servePort, "port", "", "API port (default from PORT)")
	serveCmd.Flags().BoolVar(&serveNoScheduler, "no-scheduler", false, "do not run maintenance jobs in this process")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort != "" {
		cfg.Port = servePort
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer a.Close()

	deps := api.Deps{
		Coordinator: a.service,
		Orders:      a.orders,
		Throttle:    a.throttle,
		Limiters:    a.limiters,
		Location:    a.location,
	}
	if cfg.MetricsEnabled {
		deps.Metrics = a.metrics
	}
	server := api.New(cfg, log, api.NewRouter(deps, log))

	if !serveNoScheduler {
		sched, err := a.newScheduler()
		if err != nil {
			return fmt.Errorf("init scheduler: %w", err)
		}
		sched.Start()
		defer sched.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	fmt.Printf("\n✅ Server running on http://localhost:%s (broker mode: %s, store: %s)\n",
		cfg.Port, cfg.Broker.Mode, cfg.Orders.StoreBackend)
	fmt.Println("Press Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
