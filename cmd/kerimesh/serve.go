// kerimesh - KERI identity and group-chat consensus engine
// Copyright (C) 2025 kerimesh contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kerimesh/kerimesh/internal/metrics"
	"github.com/kerimesh/kerimesh/pkg/health"
)

var (
	serveAddr       string
	serveHealthPort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Prometheus metrics and health check servers",
	Long: `Serve the /metrics endpoint on the configured registry, and a health
checker that round-trips a probe key through the configured backend. This
process never owns the group bus or sync transport: it exists purely to
expose the counters and liveness/readiness state the other kerimesh
subcommands produce as they run.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":9090", "address to serve /metrics on")
	serveCmd.Flags().IntVar(&serveHealthPort, "health-port", 8090, "port to serve /health, /health/live and /health/ready on (0 disables it)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if serveHealthPort != 0 {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		backend, err := cfg.OpenBackend(ctx)
		if err != nil {
			return err
		}
		healthSrv, err := health.StartHealthServer(serveHealthPort, backend)
		if err != nil {
			return err
		}
		defer healthSrv.Stop(context.Background())
		fmt.Printf("serving health checks on :%d/health\n", serveHealthPort)
	}

	fmt.Printf("serving metrics on %s/metrics\n", serveAddr)
	go func() {
		<-ctx.Done()
		os.Exit(0)
	}()
	return metrics.StartServer(serveAddr)
}
