package esplora

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// GetHeaderByHash fetches a block header. Headers are served from the
// in-memory cache when possible.
func (c *Client) GetHeaderByHash(ctx context.Context,
	blockHash chainhash.Hash) (*wire.BlockHeader, error) {

	if header, ok := c.headers.get(blockHash); ok {
		return header, nil
	}

	header, err := call(
		ctx, c.dispatcher,
		get("block_header", "block", blockHash.String(), "header"),
		decodeHexHeader,
	)
	if err != nil {
		return nil, err
	}

	if header.BlockHash() != blockHash {
		return nil, newDecodeError("block header", fmt.Errorf("header "+
			"hashes to %v, requested %v", header.BlockHash(),
			blockHash))
	}
	c.headers.put(blockHash, header)

	return header, nil
}

// GetBlockStatus fetches the best chain status of a block.
func (c *Client) GetBlockStatus(ctx context.Context,
	blockHash chainhash.Hash) (BlockStatus, error) {

	return call(
		ctx, c.dispatcher,
		get("block_status", "block", blockHash.String(), "status"),
		decodeBlockStatus,
	)
}

// GetBlockByHash fetches a full block.
func (c *Client) GetBlockByHash(ctx context.Context,
	blockHash chainhash.Hash) (fn.Option[*wire.MsgBlock], error) {

	return callOpt(
		ctx, c.dispatcher,
		get("block_raw", "block", blockHash.String(), "raw"),
		decodeRawBlock,
	)
}

// GetBlockInfo fetches the explorer's summary of a block.
func (c *Client) GetBlockInfo(ctx context.Context,
	blockHash chainhash.Hash) (fn.Option[*BlockInfo], error) {

	return callOpt(
		ctx, c.dispatcher, get("block", "block", blockHash.String()),
		decodeBlockInfo,
	)
}

// GetBlockTxids fetches the txids of a block in block order.
func (c *Client) GetBlockTxids(ctx context.Context,
	blockHash chainhash.Hash) ([]chainhash.Hash, error) {

	return call(
		ctx, c.dispatcher,
		get("block_txids", "block", blockHash.String(), "txids"),
		decodeHashList,
	)
}

// GetHeight returns the height of the chain tip.
func (c *Client) GetHeight(ctx context.Context) (uint32, error) {
	return call(
		ctx, c.dispatcher, get("tip_height", "blocks", "tip", "height"),
		decodeHeightText,
	)
}

// GetTipHash returns the hash of the chain tip.
func (c *Client) GetTipHash(ctx context.Context) (chainhash.Hash, error) {
	return call(
		ctx, c.dispatcher, get("tip_hash", "blocks", "tip", "hash"),
		decodeHashText,
	)
}

// GetBlockHash returns the hash of the best chain block at the given
// height, or None if the chain is shorter.
func (c *Client) GetBlockHash(ctx context.Context,
	height uint32) (fn.Option[chainhash.Hash], error) {

	return callOpt(
		ctx, c.dispatcher, get(
			"block_height", "block-height",
			strconv.FormatUint(uint64(height), 10),
		),
		decodeHashText,
	)
}

// GetBlockHashNoOpt is like GetBlockHash but reports a missing block as
// ErrHeaderHeightNotFound.
func (c *Client) GetBlockHashNoOpt(ctx context.Context,
	height uint32) (chainhash.Hash, error) {

	hash, err := c.GetBlockHash(ctx, height)
	if err != nil {
		return chainhash.Hash{}, err
	}

	return hash.UnwrapOrErr(
		fmt.Errorf("%w %d", ErrHeaderHeightNotFound, height),
	)
}

// GetHeaderByHeight fetches the header of the best chain block at the given
// height.
func (c *Client) GetHeaderByHeight(ctx context.Context,
	height uint32) (*wire.BlockHeader, error) {

	hash, err := c.GetBlockHashNoOpt(ctx, height)
	if err != nil {
		return nil, err
	}

	return c.GetHeaderByHash(ctx, hash)
}

// GetBlocks returns summaries of the ten blocks ending at height, or ending
// at the tip if no height is given, newest first.
func (c *Client) GetBlocks(ctx context.Context,
	height fn.Option[uint32]) ([]BlockSummary, error) {

	ep := fn.MapOptionZ(height, func(h uint32) *endpoint {
		return get(
			"blocks", "blocks", strconv.FormatUint(uint64(h), 10),
		)
	})
	if ep == nil {
		ep = get("blocks", "blocks")
	}

	return call(ctx, c.dispatcher, ep, decodeBlockSummaries)
}

// GetTxIndex returns the position of a transaction within a block.
func (c *Client) GetTxIndex(ctx context.Context, blockHash,
	txid chainhash.Hash) (uint32, error) {

	txids, err := c.GetBlockTxids(ctx, blockHash)
	if err != nil {
		return 0, err
	}

	for i, id := range txids {
		if id == txid {
			return uint32(i), nil
		}
	}

	return 0, fmt.Errorf("%w: %v in %v", ErrTxNotInBlock, txid, blockHash)
}

// GetBlockNoOpt is like GetBlockByHash but reports a missing block as
// ErrBlockNotFound.
func (c *Client) GetBlockNoOpt(ctx context.Context,
	blockHash chainhash.Hash) (*wire.MsgBlock, error) {

	block, err := c.GetBlockByHash(ctx, blockHash)
	if err != nil {
		return nil, err
	}

	return block.UnwrapOrErr(ErrBlockNotFound)
}

// IsNotFound reports whether err means the requested object does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTxNotFound) ||
		errors.Is(err, ErrBlockNotFound) ||
		errors.Is(err, ErrHeaderHeightNotFound)
}
