// sentineldb-admin is a thin cobra root exposing the backup coordinator
// over the store facade, plus a metrics/health endpoint for operators.
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	sdlog "github.com/quietloop/sentineldb/pkg/log"
	"github.com/quietloop/sentineldb/pkg/metrics"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "sentineldb-admin",
	Short:   "Operate a sentineldb storage engine instance",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("sentineldb-admin %s (%s)\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("data-dir", "/var/lib/sentineldb", "sentineldb data directory")
	rootCmd.PersistentFlags().String("classifier-dir", "", "classifier blob directory (default: <data-dir>/classifiers)")
	rootCmd.PersistentFlags().String("pretrained-dir", "", "pretrained artifact directory (default: <data-dir>/pretrained)")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(metricsCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	sdlog.Init(sdlog.Config{Level: sdlog.Level(level), JSONOutput: jsonOut})
}

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Serve prometheus metrics and health endpoints over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("listen")
		metrics.SetVersion(Version)

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.HandleFunc("/health", metrics.HealthHandler())
		mux.HandleFunc("/ready", metrics.ReadyHandler())
		mux.HandleFunc("/live", metrics.LivenessHandler())

		adminLog := sdlog.WithComponent("admin")
		adminLog.Info().Str("addr", addr).Msg("serving metrics")
		return http.ListenAndServe(addr, mux)
	},
}

func init() {
	metricsCmd.Flags().String("listen", ":9099", "address to serve /metrics, /health, /ready, /live on")
}
