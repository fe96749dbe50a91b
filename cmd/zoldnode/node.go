package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zold-go/zold/internal/daemon"
)

// rootCmd is the "node" entry point, taking an optional config path and
// a handful of CLI overrides for the options that teams most commonly
// flip per-run (§6 "Configuration options").
var rootCmd = &cobra.Command{
	Use:              "zoldnode",
	Short:            "run a zold node",
	TraverseChildren: true,
	RunE:             runNode,
}

var (
	configPath  string
	bindAddr    string
	standalone  bool
	neverReboot bool
)

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to a TOML config file")
	rootCmd.Flags().StringVar(&bindAddr, "bind", "", "override host:port to listen on")
	rootCmd.Flags().BoolVar(&standalone, "standalone", false, "disable remotes and gossip")
	rootCmd.Flags().BoolVar(&neverReboot, "never-reboot", false, "never self-exit on newer peer version")
}

func runNode(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.Load(configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("standalone") {
		cfg.Remotes.Standalone = standalone
	}
	if cmd.Flags().Changed("never-reboot") {
		cfg.Remotes.NeverReboot = neverReboot
	}

	logger := log.Default()
	node, err := daemon.New(cfg, logger)
	if err != nil {
		return err
	}

	addr := bindAddr
	if addr == "" {
		addr = fmt.Sprintf("%s:%d", cfg.Node.Host, cfg.Node.BindPort)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	node.Metronome.Exit = func() {
		logger.Printf("[zoldnode] metronome triggered self-exit on newer peer version")
		stop()
	}

	logger.Printf("[zoldnode] listening on %s, home=%s", addr, cfg.Node.Home)
	return node.Run(ctx, addr)
}
