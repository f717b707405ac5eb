// eCash wallet sync daemon.
//
// Usage:
//
//	ecashd [--wallet=ID --sync=api|full|blockchair]  Sync wallet chain data
//	ecashd --wallet=ID --clear                       Delete wallet chain data
//	ecashd --help                                    Show help
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/Klingon-tech/ecashkit/config"
	"github.com/Klingon-tech/ecashkit/internal/kit"
	klog "github.com/Klingon-tech/ecashkit/internal/log"
	"github.com/Klingon-tech/ecashkit/internal/syncer"
)

func main() {
	cfg, _, err := config.Load()
	if err != nil {
		fatal(err)
	}

	logFile := cfg.Log.File
	if logFile == "" {
		logFile = filepath.Join(cfg.LogsDir(), "ecashd.log")
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		fatal(fmt.Errorf("initializing logger: %w", err))
	}

	if cfg.Clear {
		if err := kit.Clear(cfg.DataDir, cfg.Network, cfg.Wallet.ID); err != nil {
			fatal(err)
		}
		return
	}

	k, err := kit.New(cfg, kit.WithStatusHandler(func(u syncer.Update) {
		ev := klog.Info()
		switch {
		case u.Status == syncer.Syncing:
			ev = klog.Debug()
		case u.Err != nil:
			ev = klog.Warn().Err(u.Err)
		}
		ev.Str("status", u.Status.String()).Uint32("height", u.Height).Msg("Sync status")
	}))
	if err != nil {
		fatal(err)
	}

	if err := k.Start(); err != nil {
		k.Stop()
		fatal(err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	k.Stop()
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
