// Command raft runs one replica of the replicated key-value store.
package main

import (
	"context"
	"dsbuild/config"
	"dsbuild/internal/cli"
	"dsbuild/raft"
	"dsbuild/raft/api"
	"dsbuild/real"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	verbose bool
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "raft <config> <replica> <storage>",
	Short: "Run a replica of the raft key-value store",
	Long: `Runs replica <replica> of the cluster described in <config> and keeps
its persistent state under <storage>.

The config lists the addresses replicas talk to each other on (inner_net)
and the addresses they serve users on over HTTP (listen_net):

  inner_net: ["127.0.0.1:9001", "127.0.0.1:9002", "127.0.0.1:9003"]
  listen_net: ["127.0.0.1:8001", "127.0.0.1:8002", "127.0.0.1:8003"]
  net_rtt: 100ms`,
	Args: cobra.ExactArgs(3),
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
	RunE: run,
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(args[0])
	if err != nil {
		return err
	}
	me, err := strconv.Atoi(args[1])
	if err != nil || me < 0 || me >= cfg.Size() {
		return fmt.Errorf("bad replica %q: want 0..%d", args[1], cfg.Size()-1)
	}
	peers, err := cfg.Replicas()
	if err != nil {
		return err
	}

	self := peers[me]
	node := real.NewNode(self.Host, self.Port, args[2], real.WithLogger(logger))
	local, err := real.AddProcess(node, config.ProcessName, raft.Make(peers, me, cfg.NetRTT))
	if err != nil {
		return err
	}
	ln, err := net.Listen("tcp", cfg.ListenNet[me])
	if err != nil {
		return err
	}

	ctx, stop := cli.SignalContext()
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	node.Spawn(func(ctx context.Context) {
		err := api.Run(ctx, me, ln, cfg.ListenNet, local, api.WithLogger(logger.Named("api")))
		if err != nil {
			logger.Error("user front end stopped", zap.Error(err))
			cancel()
		}
	})
	logger.Info("starting replica",
		zap.Int("replica", me),
		zap.String("inner", self.HostPort()),
		zap.String("listen", cfg.ListenNet[me]))
	return node.Run(ctx)
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
