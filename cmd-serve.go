package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"

	"github.com/treasuryhq/treasury/internal/server"
	"github.com/treasuryhq/treasury/telemetry"
)

var (
	FlagServicePort = &cli.IntFlag{
		Name:    "port",
		Usage:   "TCP port to listen on for the treasury wire protocol",
		EnvVars: []string{"TREASURY_SERVICE_PORT"},
		Value:   server.DefaultPort,
	}
	FlagPendingTimeout = &cli.IntFlag{
		Name:    "pending-timeout",
		Usage:   "idle seconds before the server shuts itself down; negative means never",
		EnvVars: []string{"TREASURY_PENDING_TIMEOUT"},
		Value:   -1,
	}
	FlagMetricsAddr = &cli.StringFlag{
		Name:    "metrics-addr",
		Usage:   "address to serve Prometheus metrics on; empty disables it",
		EnvVars: []string{"TREASURY_METRICS_ADDR"},
		Value:   "",
	}
)

func newCmd_Serve() *cli.Command {
	return &cli.Command{
		Name:        "serve",
		Usage:       "Run the treasury server.",
		Description: "Listens for the wire protocol on the configured port and dispatches requests against one treasury per opened path.",
		Flags: []cli.Flag{
			FlagServicePort,
			FlagPendingTimeout,
			FlagMetricsAddr,
		},
		Action: func(c *cli.Context) error {
			return runServe(c.Context, c.Int("port"), c.Int("pending-timeout"), c.String("metrics-addr"))
		},
	}
}

func runServe(ctx context.Context, port, pendingTimeoutSeconds int, metricsAddr string) error {
	shutdown, err := telemetry.InitTelemetry(ctx, "treasury")
	if err != nil {
		return fmt.Errorf("serve: initializing telemetry: %w", err)
	}
	defer shutdown()

	if metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			srv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
			klog.Infof("serving metrics on %s", metricsAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				klog.Errorf("metrics server failed: %v", err)
			}
		}()
	}

	pendingTimeout := time.Duration(pendingTimeoutSeconds) * time.Second
	srv := server.New(server.Config{Port: port, PendingTimeout: pendingTimeout})
	return srv.ListenAndServe(ctx, port)
}

