package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/sutramem/pkg/log"
	"github.com/cuemby/sutramem/pkg/metrics"
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
	Use:   "sutramem",
	Short: "sutramem - an embedded concept storage engine for AI reasoning systems",
	Long: `sutramem is a single-process key-value, graph, and vector store
designed as the memory layer for an AI reasoning system: concepts with
optional embeddings, typed weighted associations between them, semantic
nearest-neighbor search, and multi-hop path finding with confidence
propagation.

This binary is a thin demo host around the embeddable pkg/memory
library, not a server — every subcommand except serve opens the store,
performs one operation, and closes it again; serve keeps the store open
and exposes Prometheus metrics until interrupted.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("sutramem version %s\nCommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().String("config", "", "Path to the store's YAML configuration file (required)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	_ = rootCmd.MarkPersistentFlagRequired("config")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(learnCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(associateCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(pathCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(serveCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})
}

// serveCmd keeps a store open and exposes /metrics, for exercising the
// reconciler's adaptive behavior and prometheus wiring under load rather
// than a single one-shot operation.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Open the store and serve Prometheus metrics until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStoreFromFlag(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		addr, _ := cmd.Flags().GetString("metrics-addr")
		fmt.Printf("serving metrics on %s/metrics (ctrl-c to stop)\n", addr)
		http.Handle("/metrics", metrics.Handler())
		return http.ListenAndServe(addr, nil)
	},
}

func init() {
	serveCmd.Flags().String("metrics-addr", ":9090", "Address to serve /metrics on")
}
