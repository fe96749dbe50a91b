package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/zold-go/zold/internal/entrance"
	"github.com/zold-go/zold/internal/farm"
	"github.com/zold-go/zold/internal/front"
	"github.com/zold-go/zold/internal/metronome"
	"github.com/zold-go/zold/internal/remotes"
	"github.com/zold-go/zold/internal/wallet"
)

// Version and Protocol identify this build across the network (§3
// "Version", "Protocol"). Unlike the teacher's package-level singletons,
// every subsystem here is wired explicitly through Node rather than
// reached for as a global.
const (
	Version  = "0.1"
	Protocol = "3"
)

// Node owns every subsystem of a running zold process and the order in
// which they start and stop.
type Node struct {
	cfg Config

	Wallets   *wallet.Wallets
	Farm      *farm.Farm
	Remotes   remotes.Registry
	Entrance  *entrance.Entrance
	Metronome *metronome.Metronome
	Front     *front.Server

	Logger *log.Logger
}

// New assembles every subsystem named in cfg but starts nothing. home is
// expanded from cfg.Node.Home (a leading "~" is resolved against the
// user's home directory, matching the teacher's config convention).
func New(cfg Config, logger *log.Logger) (*Node, error) {
	if logger == nil {
		logger = log.Default()
	}

	home, err := expandHome(cfg.Node.Home)
	if err != nil {
		return nil, fmt.Errorf("daemon: resolve home %s: %w", cfg.Node.Home, err)
	}
	if err := os.MkdirAll(home, 0o755); err != nil {
		return nil, fmt.Errorf("daemon: create home %s: %w", home, err)
	}

	wallets, err := wallet.NewWallets(filepath.Join(home, "zold-wallets"))
	if err != nil {
		return nil, fmt.Errorf("daemon: wallets: %w", err)
	}

	var registry remotes.Registry
	if cfg.Remotes.Standalone {
		registry = remotes.Empty{}
	} else {
		r, err := remotes.Open(filepath.Join(home, "remotes.csv"))
		if err != nil {
			return nil, fmt.Errorf("daemon: remotes: %w", err)
		}
		registry = r
	}

	scoreFarm := farm.New(cfg.Node.Host, cfg.Node.Port, cfg.Node.Invoice, cfg.Farm.Strength,
		filepath.Join(home, "farm-history"), logger)

	ent := entrance.New(wallets, filepath.Join(home, "zold-copies"), cfg.Node.Network, Protocol, logger)

	met := metronome.New(Version, registry, cfg.Remotes.NeverReboot, nil, logger)

	frontSrv := front.NewServer(front.Config{
		Version:          Version,
		Network:          cfg.Node.Network,
		Protocol:         Protocol,
		RequiredStrength: cfg.Farm.Strength,
		StrictScore:      !cfg.Remotes.IgnoreScoreWeakness,
		Halt:             cfg.Front.Halt,
		Started:          time.Now(),
		Wallets:          wallets,
		Farm:             scoreFarm,
		Remotes:          registry,
		Entrance:         ent,
		Metronome:        met,
		Logger:           logger,
	})

	return &Node{
		cfg:       cfg,
		Wallets:   wallets,
		Farm:      scoreFarm,
		Remotes:   registry,
		Entrance:  ent,
		Metronome: met,
		Front:     frontSrv,
		Logger:    logger,
	}, nil
}

// Run brings every subsystem up — the farm's workers, the metronome's
// ticker, then the HTTP front (§4.1 "Node") — and blocks until ctx is
// canceled or the front's listener fails. On return every subsystem has
// been stopped in reverse-dependency order: farm first (so no worker is
// mid-extend), then metronome (so no probe is in flight), and finally the
// HTTP front (SUPPLEMENTED FEATURES 2).
func (n *Node) Run(ctx context.Context, addr string) error {
	if err := n.Farm.Start(n.cfg.Farm.Threads); err != nil {
		return fmt.Errorf("daemon: start farm: %w", err)
	}
	n.Metronome.Start()
	n.Front.SetMetronome(n.Metronome)

	errCh := make(chan error, 1)
	go func() {
		errCh <- n.Front.ListenAndServe(addr)
	}()

	var runErr error
	select {
	case runErr = <-errCh:
		n.Farm.Stop()
		n.Metronome.Stop()
	case <-ctx.Done():
		n.Farm.Stop()
		n.Metronome.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := n.Front.Shutdown(shutdownCtx); err != nil {
			runErr = fmt.Errorf("daemon: shutdown front: %w", err)
		}
		<-errCh
	}
	return runErr
}

// expandHome resolves a leading "~" against the current user's home
// directory, leaving every other path unchanged.
func expandHome(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if path == "~" {
		return home, nil
	}
	if len(path) > 1 && path[1] == '/' {
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}
