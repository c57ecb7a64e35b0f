package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/alfredjeanlab/metarev/internal/client"
	"github.com/alfredjeanlab/metarev/internal/server"
	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Ping the server and report its status",
	Long: `Ping the server and report its status.

With --grpc (or METAREV_GRPC_ADDR) the gRPC health service at that
address is checked as well.`,
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		start := time.Now()
		status, err := metarevClient.Health(ctx)
		if err != nil {
			return fmt.Errorf("%s unreachable: %w", httpURL, err)
		}
		took := time.Since(start).Round(time.Millisecond)

		grpcAddr, _ := cmd.Flags().GetString("grpc")
		var grpcStatus string
		if grpcAddr != "" {
			grpcStatus, err = client.CheckGRPCHealth(ctx, grpcAddr, server.HealthService)
			if err != nil {
				return fmt.Errorf("gRPC %s: %w", grpcAddr, err)
			}
		}

		if jsonOutput {
			out := map[string]any{"url": httpURL, "status": status, "latency_ms": took.Milliseconds()}
			if grpcAddr != "" {
				out["grpc_addr"], out["grpc_status"] = grpcAddr, grpcStatus
			}
			printJSON(out)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%s)\n", httpURL, status, took)
			if grpcAddr != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "grpc %s: %s\n", grpcAddr, grpcStatus)
			}
		}
		if status != "ok" {
			return fmt.Errorf("server reports %q", status)
		}
		if grpcAddr != "" && grpcStatus != "serving" {
			return fmt.Errorf("gRPC health reports %q", grpcStatus)
		}
		return nil
	},
}

func init() {
	healthCmd.Flags().String("grpc", os.Getenv("METAREV_GRPC_ADDR"), "gRPC address to check as well, e.g. localhost:9090")
}
