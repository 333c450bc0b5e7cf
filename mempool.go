package esplora

import (
	"context"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// GetMempoolStats fetches the size, total fees and fee histogram of the
// mempool.
func (c *Client) GetMempoolStats(ctx context.Context) (*MempoolStats,
	error) {

	return call(
		ctx, c.dispatcher, get("mempool", "mempool"),
		decodeMempoolStats,
	)
}

// GetMempoolTxids lists the txids of every mempool transaction.
func (c *Client) GetMempoolTxids(ctx context.Context) ([]chainhash.Hash,
	error) {

	return call(
		ctx, c.dispatcher, get("mempool_txids", "mempool", "txids"),
		decodeHashList,
	)
}

// GetMempoolRecent lists the last transactions to enter the mempool.
func (c *Client) GetMempoolRecent(ctx context.Context) ([]MempoolRecentTx,
	error) {

	return call(
		ctx, c.dispatcher, get("mempool_recent", "mempool", "recent"),
		decodeMempoolRecent,
	)
}
