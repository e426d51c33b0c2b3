package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/Klingon-tech/klingnet-wallet/config"
	"github.com/Klingon-tech/klingnet-wallet/internal/events"
	"github.com/Klingon-tech/klingnet-wallet/internal/log"
	"github.com/Klingon-tech/klingnet-wallet/internal/metrics"
	"github.com/Klingon-tech/klingnet-wallet/internal/rpc"
	"github.com/Klingon-tech/klingnet-wallet/internal/rpcclient"
	"github.com/Klingon-tech/klingnet-wallet/internal/snapshot"
	"github.com/Klingon-tech/klingnet-wallet/internal/tracker"
	"github.com/Klingon-tech/klingnet-wallet/internal/wallet"
	"github.com/Klingon-tech/klingnet-wallet/internal/walleterr"
	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"
)

// run opens the wallet and keeps it synchronized with the node until ctx
// is done. The wallet is saved on exit.
func run(ctx context.Context, cfg *config.Config, rules *config.Rules, w *wallet.Wallet, node *rpcclient.Client) error {
	level, err := snapshot.ParseLevel(cfg.Wallet.SaveLevel)
	if err != nil {
		return err
	}

	var m *metrics.Observer
	if cfg.Metrics.Enabled {
		m = metrics.New()
		id := w.AddObserver(m)
		defer w.RemoveObserver(id)
	}

	if _, err := open(cfg, w); err != nil {
		return err
	}
	if cfg.ResetHeight >= 0 {
		if err := w.Reset(uint32(cfg.ResetHeight)); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
		log.Wallet.Info().Int64("height", cfg.ResetHeight).Msg("Wallet reset, rescanning")
	}

	view, err := w.GetViewKey()
	if err != nil {
		return err
	}
	poller := rpcclient.NewPoller(rpcclient.PollerConfig{
		Node:          node,
		Local:         w.Chain(),
		ViewKey:       view.Secret,
		Interval:      time.Duration(cfg.Node.PollInterval) * time.Second,
		MaxReorgDepth: rules.Sync.MaxReorgDepth,
		BatchSize:     cfg.Node.BatchSize,
	})

	logger := log.WithWallet(cfg.Wallet.Name)
	logger.Info().Str("node", cfg.Node.URL).Msg("Wallet daemon started")

	if cfg.RPC.Enabled {
		srv := rpc.New(net.JoinHostPort(cfg.RPC.Addr, strconv.Itoa(cfg.RPC.Port)), w, cfg.RPC)
		if err := srv.Start(); err != nil {
			return err
		}
		defer srv.Stop()
	}

	g, gctx := errgroup.WithContext(ctx)
	feed := make(chan tracker.Item, 64)

	g.Go(func() error {
		defer close(feed)
		return poller.Run(gctx, feed)
	})
	g.Go(func() error {
		err := w.Synchronize(gctx, feed)
		if errors.Is(err, walleterr.ErrSynchronizationDivergence) {
			return errors.Wrap(err, "rescan with --reset-height")
		}
		return err
	})
	g.Go(func() error {
		return drainEvents(gctx, w)
	})
	if cfg.Wallet.SaveInterval > 0 {
		g.Go(func() error {
			return autosave(gctx, w, level, time.Duration(cfg.Wallet.SaveInterval)*time.Second)
		})
	}
	if m != nil {
		addr := net.JoinHostPort(cfg.Metrics.Addr, strconv.Itoa(cfg.Metrics.Port))
		g.Go(func() error {
			return serveMetrics(gctx, addr, m.Handler())
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		err = nil
	}

	if saveErr := w.Save(level, nil); saveErr != nil {
		logger.Error().Err(saveErr).Msg("Save on exit failed")
		if err == nil {
			err = saveErr
		}
	} else {
		logger.Info().Str("level", level.String()).Msg("Wallet saved")
	}
	return err
}

// drainEvents logs queue events until ctx is done.
func drainEvents(ctx context.Context, w *wallet.Wallet) error {
	for {
		e, err := w.GetEvent(ctx)
		if err != nil {
			return err
		}
		switch ev := e.(type) {
		case events.TransactionCreated:
			t, err := w.GetTransaction(ev.ID)
			if err != nil {
				continue
			}
			log.Wallet.Info().
				Str("hash", t.Hash.String()).
				Int64("amount", t.TotalAmount).
				Msg("New transaction")
		case events.TransactionUpdated:
			log.Wallet.Debug().Uint64("id", uint64(ev.ID)).Msg("Transaction updated")
		case events.BalanceUnlocked:
			log.Wallet.Debug().Msg("Balance unlocked")
		case events.SyncProgressUpdated:
			log.Sync.Debug().Uint32("processed", ev.Processed).Uint32("total", ev.Total).Msg("Sync progress")
		case events.SyncCompleted:
			if ev.Err != nil {
				log.Sync.Error().Err(ev.Err).Msg("Synchronization failed")
			} else {
				log.Sync.Info().Msg("Synchronized")
			}
		}
	}
}

// autosave saves the wallet every interval until ctx is done.
func autosave(ctx context.Context, w *wallet.Wallet, level snapshot.Level, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Save(level, nil); err != nil {
				log.Wallet.Warn().Err(err).Msg("Periodic save failed")
			}
		}
	}
}

// serveMetrics serves the Prometheus endpoint until ctx is done.
func serveMetrics(ctx context.Context, addr string, h http.Handler) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	log.RPC.Info().Str("addr", addr).Msg("Metrics endpoint listening")

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	}
}
