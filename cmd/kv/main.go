// Command kv sends commands and reads to a raft key-value cluster over
// its HTTP front ends.
package main

import (
	"context"
	"dsbuild/config"
	"dsbuild/internal/cli"
	"dsbuild/raft/client"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	verbose    bool
	logger     *zap.Logger
	configPath string
	servers    []string
	timeout    time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "kv",
	Short: "Client of the raft key-value store",
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

func newClient() (*client.Client, error) {
	addrs := servers
	if configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		addrs = cfg.ListenNet
	}
	if len(addrs) == 0 {
		return nil, errors.New("no servers: pass --config or --servers")
	}
	return client.New(addrs, client.WithLogger(logger.Named("client"))), nil
}

// command makes a subcommand which runs do with a client and prints the
// reply.
func command(use, short string, nargs int, do func(ctx context.Context, c *client.Client, args []string) (fmt.Stringer, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(nargs),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			ctx, stop := cli.SignalContext()
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			r, err := do(ctx, c, args)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), r)
			return nil
		},
	}
}

type value struct{ v *string }

func (v value) String() string {
	if v.v == nil {
		return "null"
	}
	return *v.v
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Cluster config; its listen_net is used")
	rootCmd.PersistentFlags().StringSliceVar(&servers, "servers", nil, "HTTP addresses of the replicas")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Give up after this long")

	rootCmd.AddCommand(
		command("get <key>", "Read a key", 1, func(ctx context.Context, c *client.Client, args []string) (fmt.Stringer, error) {
			v, err := c.Get(ctx, args[0])
			return value{v}, err
		}),
		command("create <key>", "Create a key holding the empty string", 1, func(ctx context.Context, c *client.Client, args []string) (fmt.Stringer, error) {
			r, err := c.Create(ctx, args[0])
			return r, err
		}),
		command("update <key> <value>", "Update a key", 2, func(ctx context.Context, c *client.Client, args []string) (fmt.Stringer, error) {
			r, err := c.Update(ctx, args[0], args[1])
			return r, err
		}),
		command("delete <key>", "Delete a key", 1, func(ctx context.Context, c *client.Client, args []string) (fmt.Stringer, error) {
			r, err := c.Delete(ctx, args[0])
			return r, err
		}),
		command("cas <key> <compare> <value>", "Set a key if it holds compare", 3, func(ctx context.Context, c *client.Client, args []string) (fmt.Stringer, error) {
			r, err := c.Cas(ctx, args[0], args[1], args[2])
			return r, err
		}),
	)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
