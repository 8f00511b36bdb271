// Command raftsim runs a raft cluster in simulation and lets the user
// drive it step by step.
package main

import (
	"dsbuild/internal/cli"
	"dsbuild/raft/simtest"
	"errors"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	verbose  bool
	seed     int64
	replicas int
	logger   *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "raftsim",
	Short: "Drive a simulated raft cluster from the command line",
	Args:  cobra.NoArgs,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !verbose {
			logger = zap.NewNop()
			return nil
		}
		var err error
		logger, err = cli.NewLogger(verbose)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if replicas <= 0 {
			return errors.New("need at least one replica")
		}
		cluster, err := simtest.New(seed, replicas, simtest.WithLogger(logger))
		if err != nil {
			return err
		}
		defer cluster.Close()
		if err := cluster.SendInitForAll(); err != nil {
			return err
		}
		if !cluster.StepUntilAllInitialized() {
			return errors.New("replicas did not initialize")
		}

		r := &repl{cluster: cluster, out: cmd.OutOrStdout()}
		r.printf("%d replicas up, type help for commands", replicas)
		return r.run(cmd.InOrStdin())
	},
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log the simulation")
	rootCmd.Flags().Int64Var(&seed, "seed", 12345, "Simulation seed")
	rootCmd.Flags().IntVarP(&replicas, "replicas", "n", 3, "Number of replicas")
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
