// Command pingpong runs a pinger or a ponger on a real node.
package main

import (
	"dsbuild/internal/cli"
	"dsbuild/pingpong"
	"dsbuild/process"
	"dsbuild/real"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	verbose bool
	logger  *zap.Logger

	listen     string
	storage    string
	partner    string
	delay      time.Duration
	count      uint32
	inactivity time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "pingpong",
	Short: "Ping and pong between two real nodes",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = cli.NewLogger(verbose)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var pingerCmd = &cobra.Command{
	Use:   "pinger",
	Short: "Ping the partner until enough pongs come back",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		to, err := process.ParseAddress(partner + "/ponger")
		if err != nil {
			return err
		}
		return runNode("pinger", pingpong.NewPinger(delay, to, count))
	},
}

var pongerCmd = &cobra.Command{
	Use:   "ponger",
	Short: "Answer pings until nobody pings for a while",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNode("ponger", pingpong.NewPonger(inactivity))
	},
}

func runNode(name string, p process.Process) error {
	host, portStr, err := net.SplitHostPort(listen)
	if err != nil {
		return err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return err
	}
	node := real.NewNode(host, uint16(port), storage, real.WithLogger(logger))
	local, err := real.AddProcess(node, name, p)
	if err != nil {
		return err
	}
	local.Sender() <- pingpong.Start()

	ctx, stop := cli.SignalContext()
	defer stop()
	logger.Info("node started", zap.String("process", name), zap.String("listen", listen))
	return node.Run(ctx)
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&listen, "listen", "127.0.0.1:10091", "Address of the node")
	rootCmd.PersistentFlags().StringVar(&storage, "storage", os.TempDir(), "Mount directory of the node")

	pingerCmd.Flags().StringVar(&partner, "partner", "127.0.0.1:10092", "Address of the ponger node")
	pingerCmd.Flags().DurationVar(&delay, "delay", 100*time.Millisecond, "Delay between pings")
	pingerCmd.Flags().Uint32Var(&count, "count", 10, "Pongs to collect")
	pongerCmd.Flags().DurationVar(&inactivity, "inactivity", 3*time.Second, "Stop after this long without pings")

	rootCmd.AddCommand(pingerCmd, pongerCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
