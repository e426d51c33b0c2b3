package rpcclient

import (
	"context"
	"time"

	"github.com/Klingon-tech/klingnet-wallet/internal/log"
	"github.com/Klingon-tech/klingnet-wallet/internal/tracker"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
	"github.com/cockroachdb/errors"
	"github.com/lightningnetwork/lnd/clock"
)

// Chain is the wallet's local view of the chain.
type Chain interface {
	BlockCount() uint32
	BlockHash(height uint32) (types.Hash, bool)
}

// Node is the subset of Client the poller uses.
type Node interface {
	ChainInfo(ctx context.Context) (ChainInfo, error)
	BlockHash(ctx context.Context, height uint32) (types.Hash, error)
	ScanBlock(ctx context.Context, height uint32, viewKey []byte) (*tracker.Block, error)
}

// PollerConfig configures a Poller.
type PollerConfig struct {
	Node     Node
	Local    Chain
	ViewKey  []byte
	Interval time.Duration
	// MaxReorgDepth bounds how far back a divergence is searched.
	MaxReorgDepth uint32
	// BatchSize caps the blocks fetched per poll. Zero means no cap.
	BatchSize uint32
	Clock     clock.Clock
}

// Poller turns the node's chain into a synchronization feed.
type Poller struct {
	cfg  PollerConfig
	next uint32
	last types.Hash
}

// NewPoller creates a poller starting after the local chain.
func NewPoller(cfg PollerConfig) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}
	return &Poller{cfg: cfg}
}

// Run polls the node until ctx is done, sending items to out. Node errors
// are logged and retried on the next poll.
func (p *Poller) Run(ctx context.Context, out chan<- tracker.Item) error {
	p.next = p.cfg.Local.BlockCount()
	if p.next > 0 {
		p.last, _ = p.cfg.Local.BlockHash(p.next - 1)
	}

	var unreachable bool
	for {
		err := p.Poll(ctx, out)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, ErrNodeUnavailable):
			// Warn once per outage.
			if !unreachable {
				log.Sync.Warn().Err(err).Msg("Node unreachable, retrying")
			}
			unreachable = true
		case err != nil:
			log.Sync.Warn().Err(err).Uint32("next", p.next).Msg("Node poll failed")
		case unreachable:
			log.Sync.Info().Uint32("next", p.next).Msg("Node reachable again")
			unreachable = false
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.cfg.Clock.TickAfter(p.cfg.Interval):
		}
	}
}

// Poll runs one round: it checks the last known block against the node,
// signals a divergence if they differ and sends every new block.
func (p *Poller) Poll(ctx context.Context, out chan<- tracker.Item) error {
	info, err := p.cfg.Node.ChainInfo(ctx)
	if err != nil {
		return err
	}

	// The wallet may have been reset behind the poller.
	if n := p.cfg.Local.BlockCount(); n < p.next {
		p.next = n
		p.last = types.Hash{}
		if n > 0 {
			p.last, _ = p.cfg.Local.BlockHash(n - 1)
		}
	}

	if p.next > 0 {
		fork, err := p.findFork(ctx)
		if err != nil {
			return err
		}
		if fork < p.next {
			log.Sync.Warn().Uint32("fork", fork).Uint32("height", p.next-1).Msg("Chain divergence")
			if err := send(ctx, out, tracker.Item{Divergence: true, Fork: fork, Tip: info.Height}); err != nil {
				return err
			}
			p.next = fork
			p.last = types.Hash{}
			if fork > 0 {
				if p.last, err = p.cfg.Node.BlockHash(ctx, fork-1); err != nil {
					return err
				}
			}
		}
	}

	end := info.Height
	if p.cfg.BatchSize > 0 && end >= p.next+p.cfg.BatchSize {
		end = p.next + p.cfg.BatchSize - 1
	}
	for h := p.next; h <= end; h++ {
		blk, err := p.cfg.Node.ScanBlock(ctx, h, p.cfg.ViewKey)
		if IsNotFound(err) {
			// The node's tip moved back since ChainInfo; the next round
			// sees the divergence.
			return nil
		}
		if err != nil {
			return err
		}
		if err := send(ctx, out, tracker.Item{Block: blk, Tip: info.Height}); err != nil {
			return err
		}
		p.next = h + 1
		p.last = blk.Hash
	}
	return nil
}

// findFork returns the first height whose block the node no longer has, or
// p.next when the last block still matches.
func (p *Poller) findFork(ctx context.Context) (uint32, error) {
	h := p.next - 1
	nodeHash, err := p.cfg.Node.BlockHash(ctx, h)
	if err != nil {
		return 0, err
	}
	if nodeHash == p.last {
		return p.next, nil
	}

	for depth := uint32(1); h > 0 && depth <= p.cfg.MaxReorgDepth; depth++ {
		h--
		nodeHash, err := p.cfg.Node.BlockHash(ctx, h)
		if err != nil {
			return 0, err
		}
		if local, ok := p.cfg.Local.BlockHash(h); ok && local == nodeHash {
			return h + 1, nil
		}
	}
	return h, nil
}

func send(ctx context.Context, out chan<- tracker.Item, it tracker.Item) error {
	select {
	case out <- it:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
