package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"shardproxy/internal/config"
	"shardproxy/pkg/conf"
	"shardproxy/pkg/controlplane"
	"shardproxy/pkg/registry"
	"shardproxy/pkg/stats"
	"shardproxy/pkg/topology"
)

const defaultConfFile = "conf/shardproxy.yml"

var rootCmd = &cobra.Command{
	Use:          "shardproxy",
	Short:        "Sharding proxy control plane for redis and memcache pools",
	SilenceUsage: true,

	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := initConfig(cmd)
		if err != nil {
			return err
		}
		initLogger(&cfg)

		if testConf {
			return checkConf(cmd)
		}
		return run(cmd.Context(), cfg)
	},
}

var (
	confFile      string
	cfgFile       string
	testConf      bool
	statsPort     int
	statsAddr     string
	statsInterval int
)

func init() {
	rootCmd.Flags().StringVarP(&confFile, "conf-file", "c", defaultConfFile, "set configuration file")
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "process config file (logger, stats, registry)")
	rootCmd.Flags().BoolVarP(&testConf, "test-conf", "t", false, "test configuration for syntax errors and exit")
	rootCmd.Flags().IntVarP(&statsPort, "stats-port", "s", stats.DefaultPort, "set stats monitoring port")
	rootCmd.Flags().StringVarP(&statsAddr, "stats-addr", "a", stats.DefaultAddr, "set stats monitoring ip")
	rootCmd.Flags().IntVarP(&statsInterval, "stats-interval", "i", int(stats.DefaultInterval/time.Millisecond), "set stats aggregation interval in msec")
}

func checkConf(cmd *cobra.Command) error {
	if _, err := conf.Load(confFile); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "shardproxy: configuration file '%s' syntax is invalid\n", confFile)
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "shardproxy: configuration file '%s' syntax is ok\n", confFile)
	return nil
}

func run(ctx context.Context, cfg config.Config) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cf, err := conf.Load(confFile)
	if err != nil {
		return err
	}

	rt, err := controlplane.Build(ctx, cf, controlplane.Options{
		Registry: registry.Config{
			Namespace: cfg.Registry.Namespace,
			InitPoll:  cfg.Registry.InitPoll(),
		},
		SessionTimeout: cfg.Registry.SessionTimeout(),
		Stats: &stats.Config{
			Port:     cfg.Stats.Port,
			Addr:     cfg.Stats.Addr,
			Interval: cfg.Stats.Interval(),
			Source:   cfg.Stats.Source,
		},
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	rt.OnAdmission(ctx, func(ev topology.AdmissionEvent) error {
		slog.Info("pair admitted",
			"id", ev.ID,
			"pool", ev.Pool,
			"primary", ev.Primary.PName,
			"backup", ev.Backup.PName,
			"fingerprint", ev.Fingerprint.String(),
		)
		return nil
	})

	slog.Info("shardproxy started", "conf", confFile, "pools", rt.Pools.Len(), "stats", rt.Stats.Addr())
	<-ctx.Done()
	slog.Info("shardproxy stopping")

	return rt.Close()
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
