package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/bftbench/bftbench/harness"
	"github.com/bftbench/bftbench/harness/scenario"
)

var (
	// CLI flags for cluster sizing
	numReplicas int    // Total number of replicas (n)
	maxFaulty   int    // Max tolerated faulty replicas (f)
	maxSlow     int    // Max tolerated slow replicas (c)
	clustersYML string // Path to cluster preset YAML
	preset      string // Named cluster preset from the YAML file

	// CLI flags for scenario execution
	scenarioName string        // Scenario to run
	seed         int64         // Seed for crash/poll/workload randomness
	logLevel     string        // Log verbosity level
	timeout      time.Duration // Overall budget for the scenario run

	// CLI flags for scenario tunables
	workloadWindow    time.Duration // Bound on each workload injection window
	workloadIntensity int           // Concurrent ops in flight per window
	viewWaitTimeout   time.Duration // Overall deadline per convergence wait
	settleDelay       time.Duration // Post-view-change stabilization delay
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "bftbench",
	Short: "Fault-injection scenario runner for BFT view-change testing",
}

// runCmd executes one named scenario against a live cluster
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a failure scenario against the cluster",
	Run: func(cmd *cobra.Command, args []string) {
		// Set up logging
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		cfg := harness.Config{N: numReplicas, F: maxFaulty, C: maxSlow}
		if preset != "" {
			presetCfg, ok := GetClusterConfig(clustersYML, preset)
			if !ok {
				logrus.Fatalf("Cluster preset %q not found in %s", preset, clustersYML)
			}
			cfg = presetCfg
		}
		if err := cfg.Validate(); err != nil {
			logrus.Fatalf("Invalid cluster config: %v", err)
		}

		spec, ok := scenario.DefaultRegistry().Get(scenarioName)
		if !ok {
			logrus.Fatalf("Unknown scenario %q. Use `bftbench list` to see available scenarios.", scenarioName)
		}
		if err := spec.Check(cfg); err != nil {
			logrus.Fatalf("Scenario precondition failed: %v", err)
		}

		if harness.NewClusterFunc == nil {
			logrus.Fatalf("No cluster driver registered: link a driver package that sets harness.NewClusterFunc")
		}
		ctrl, client, tracker, err := harness.NewClusterFunc(cfg)
		if err != nil {
			logrus.Fatalf("Cluster driver setup failed: %v", err)
		}

		orch, err := scenario.New(cfg, ctrl, client, tracker, seed, scenario.Options{
			WorkloadWindow:    workloadWindow,
			WorkloadIntensity: workloadIntensity,
			ViewWaitTimeout:   viewWaitTimeout,
			SettleDelay:       settleDelay,
		})
		if err != nil {
			logrus.Fatalf("Orchestrator setup failed: %v", err)
		}

		logrus.Infof("Running scenario %q with seed %d", spec.Name, seed)
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := orch.RunScenario(ctx, spec); err != nil {
			logrus.Fatalf("Scenario failed: %v", err)
		}
		logrus.Info("Scenario passed.")
	},
}

// listCmd prints the registered scenarios
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List available failure scenarios",
	Run: func(cmd *cobra.Command, args []string) {
		r := scenario.DefaultRegistry()
		for _, name := range r.Names() {
			spec, _ := r.Get(name)
			fmt.Fprintf(cmd.OutOrStdout(), "%-28s f>=%d  %s\n", spec.Name, spec.MinF, spec.Description)
		}
	},
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	runCmd.Flags().StringVar(&scenarioName, "scenario", "single-vc-primary-down", "Scenario name (see `bftbench list`)")
	runCmd.Flags().Int64Var(&seed, "seed", 42, "Seed for crash-candidate, poll-target and workload randomness")
	runCmd.Flags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")
	runCmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "Overall budget for the scenario run")

	// Cluster sizing
	runCmd.Flags().IntVar(&numReplicas, "n", 4, "Total number of replicas")
	runCmd.Flags().IntVar(&maxFaulty, "f", 1, "Max tolerated faulty replicas")
	runCmd.Flags().IntVar(&maxSlow, "c", 0, "Max tolerated slow replicas")
	runCmd.Flags().StringVar(&clustersYML, "clusters-file", "clusters.yaml", "Path to cluster preset YAML")
	runCmd.Flags().StringVar(&preset, "preset", "", "Named cluster preset (overrides --n/--f/--c)")

	// Scenario tunables
	runCmd.Flags().DurationVar(&workloadWindow, "workload-window", time.Second, "Bound on each workload injection window")
	runCmd.Flags().IntVar(&workloadIntensity, "workload-intensity", 1, "Concurrent operations in flight per window")
	runCmd.Flags().DurationVar(&viewWaitTimeout, "view-wait-timeout", 60*time.Second, "Overall deadline per convergence wait")
	runCmd.Flags().DurationVar(&settleDelay, "settle-delay", 10*time.Second, "Stabilization delay after a view change")

	// Attach subcommands to `root`
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(listCmd)
}
