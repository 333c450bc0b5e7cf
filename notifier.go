package esplora

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/ticker"
)

const (
	// subscriberBuffer is the number of epochs buffered per subscriber.
	// Epochs are dropped for subscribers that fall further behind.
	subscriberBuffer = 10
)

// ErrNotifierStopped is returned when starting a notifier that was already
// stopped.
var ErrNotifierStopped = errors.New("tip notifier stopped")

// BlockEpoch announces a new best chain block.
type BlockEpoch struct {
	Height uint32
	Hash   chainhash.Hash
	Header *wire.BlockHeader
}

// TipNotifier polls the chain tip and notifies subscribers of every new
// block. Since Esplora is HTTP-only, polling replaces a subscription.
type TipNotifier struct {
	client *Client
	ticker ticker.Ticker

	started atomic.Bool
	stopped atomic.Bool

	// bestBlockMtx protects the best block fields.
	bestBlockMtx    sync.RWMutex
	bestBlockHash   chainhash.Hash
	bestBlockHeight uint32

	// subscribersMtx protects the subscribers map.
	subscribersMtx sync.RWMutex

	// subscribers maps subscriber IDs to their notification channels.
	// Each subscriber gets its own copy of block notifications.
	subscribers map[uint64]chan *BlockEpoch
	nextSubID   uint64

	wg   sync.WaitGroup
	quit chan struct{}
}

// NewTipNotifier creates a notifier polling through client. If t is nil the
// client's configured poll interval is used.
func NewTipNotifier(client *Client, t ticker.Ticker) *TipNotifier {
	if t == nil {
		t = ticker.New(client.cfg.PollInterval)
	}

	return &TipNotifier{
		client:      client,
		ticker:      t,
		subscribers: make(map[uint64]chan *BlockEpoch),
		quit:        make(chan struct{}),
	}
}

// requestCtx returns a context bounded by the notifier's lifetime.
func (n *TipNotifier) requestCtx() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-n.quit:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// Start fetches the current tip and begins polling for new blocks.
func (n *TipNotifier) Start(ctx context.Context) error {
	if n.stopped.Load() {
		return ErrNotifierStopped
	}
	if n.started.Swap(true) {
		return nil
	}

	log.Infof("Starting tip notifier, url=%s", n.client.URL())

	height, err := n.client.GetHeight(ctx)
	if err != nil {
		n.started.Store(false)
		return err
	}

	hash, err := n.client.GetBlockHashNoOpt(ctx, height)
	if err != nil {
		n.started.Store(false)
		return err
	}

	n.setBestBlock(hash, height)

	log.Infof("Tip notifier started at height=%d, hash=%v", height, hash)

	n.ticker.Resume()

	n.wg.Add(1)
	go n.blockPoller()

	return nil
}

// Stop ends polling and closes all subscriber channels.
func (n *TipNotifier) Stop() {
	if n.stopped.Swap(true) {
		return
	}

	log.Info("Stopping tip notifier")

	close(n.quit)
	n.ticker.Stop()
	n.wg.Wait()

	n.subscribersMtx.Lock()
	for id, ch := range n.subscribers {
		close(ch)
		delete(n.subscribers, id)
	}
	n.subscribersMtx.Unlock()
}

// BestBlock returns the last block the notifier has seen.
func (n *TipNotifier) BestBlock() (chainhash.Hash, uint32) {
	n.bestBlockMtx.RLock()
	defer n.bestBlockMtx.RUnlock()

	return n.bestBlockHash, n.bestBlockHeight
}

func (n *TipNotifier) setBestBlock(hash chainhash.Hash, height uint32) {
	n.bestBlockMtx.Lock()
	n.bestBlockHash = hash
	n.bestBlockHeight = height
	n.bestBlockMtx.Unlock()
}

// Subscribe registers a new subscriber and returns its channel and ID.
func (n *TipNotifier) Subscribe() (<-chan *BlockEpoch, uint64) {
	n.subscribersMtx.Lock()
	defer n.subscribersMtx.Unlock()

	id := n.nextSubID
	n.nextSubID++

	ch := make(chan *BlockEpoch, subscriberBuffer)
	n.subscribers[id] = ch

	log.Debugf("New block subscriber: id=%d, total=%d", id,
		len(n.subscribers))

	return ch, id
}

// Unsubscribe removes a subscriber and closes its channel.
func (n *TipNotifier) Unsubscribe(id uint64) {
	n.subscribersMtx.Lock()
	defer n.subscribersMtx.Unlock()

	if ch, ok := n.subscribers[id]; ok {
		close(ch)
		delete(n.subscribers, id)

		log.Debugf("Removed block subscriber: id=%d, remaining=%d",
			id, len(n.subscribers))
	}
}

// notifySubscribers sends an epoch to every subscriber without blocking.
func (n *TipNotifier) notifySubscribers(epoch *BlockEpoch) {
	n.subscribersMtx.RLock()
	defer n.subscribersMtx.RUnlock()

	for id, ch := range n.subscribers {
		select {
		case ch <- epoch:
		default:
			log.Warnf("Block channel full for subscriber %d, "+
				"skipping height %d", id, epoch.Height)
		}
	}
}

// blockPoller checks for new blocks on every tick.
func (n *TipNotifier) blockPoller() {
	defer n.wg.Done()

	for {
		select {
		case <-n.quit:
			return

		case <-n.ticker.Ticks():
			n.checkForNewBlocks()
		}
	}
}

// checkForNewBlocks notifies every block between the last seen height and
// the current tip.
func (n *TipNotifier) checkForNewBlocks() {
	ctx, cancel := n.requestCtx()
	defer cancel()

	newHeight, err := n.client.GetHeight(ctx)
	if err != nil {
		log.Debugf("Failed to get tip height: %v", err)
		return
	}

	currentHash, currentHeight := n.BestBlock()

	if newHeight <= currentHeight {
		newHash, err := n.client.GetTipHash(ctx)
		if err != nil {
			return
		}
		if newHash != currentHash && newHeight == currentHeight {
			log.Warnf("Possible reorg detected at height %d: "+
				"old=%v new=%v", currentHeight, currentHash,
				newHash)
		}

		return
	}

	for height := currentHeight + 1; height <= newHeight; height++ {
		hash, err := n.client.GetBlockHashNoOpt(ctx, height)
		if err != nil {
			log.Warnf("Failed to get block hash at height %d: %v",
				height, err)
			return
		}

		header, err := n.client.GetHeaderByHash(ctx, hash)
		if err != nil {
			log.Warnf("Failed to get header for %v: %v", hash, err)
			return
		}

		n.setBestBlock(hash, height)

		log.Debugf("New block: height=%d hash=%v", height, hash)
		n.notifySubscribers(&BlockEpoch{
			Height: height,
			Hash:   hash,
			Header: header,
		})
	}
}
