package esplora

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/esplora/merkle"
	"github.com/lightningnetwork/lnd/fn/v2"
	"golang.org/x/sync/errgroup"
)

// Inclusion describes a verified transaction inclusion.
type Inclusion struct {
	// BlockHash is the block the transaction was verified against.
	BlockHash chainhash.Hash

	// BlockHeight is the height of that block.
	BlockHeight uint32

	// Pos is the index of the transaction within the block.
	Pos uint32
}

// VerifyTxInclusion proves that a transaction is confirmed by checking the
// server's Merkle path against the merkle root of the confirming block's
// header. The header is the only input trusted beyond the txid, so callers
// that validate headers themselves get a trust-minimized confirmation.
func (c *Client) VerifyTxInclusion(ctx context.Context,
	txid chainhash.Hash) (*Inclusion, error) {

	var (
		proofOpt fn.Option[*merkle.Proof]
		status   TxStatus
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		proofOpt, err = c.GetMerkleProof(gctx, txid)
		return err
	})
	g.Go(func() error {
		var err error
		status, err = c.GetTxStatus(gctx, txid)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	proof, err := proofOpt.UnwrapOrErr(
		fmt.Errorf("%w: no merkle proof for %v", ErrUnconfirmed, txid),
	)
	if err != nil {
		return nil, err
	}

	if !status.Confirmed {
		return nil, fmt.Errorf("%w: %v", ErrUnconfirmed, txid)
	}

	blockHash, err := status.BlockHash.UnwrapOrErr(
		newDecodeError("tx status", errMissingField),
	)
	if err != nil {
		return nil, err
	}

	height := status.BlockHeight.UnwrapOr(proof.BlockHeight)
	if height != proof.BlockHeight {
		return nil, fmt.Errorf("%w: proof at %d, status at %d",
			ErrHeightMismatch, proof.BlockHeight, height)
	}

	header, err := c.GetHeaderByHash(ctx, blockHash)
	if err != nil {
		return nil, err
	}

	if err := merkle.Verify(txid, proof, header.MerkleRoot); err != nil {
		return nil, err
	}

	log.Debugf("Verified inclusion of %v in block %v at height %d",
		txid, blockHash, height)

	return &Inclusion{
		BlockHash:   blockHash,
		BlockHeight: height,
		Pos:         proof.Pos,
	}, nil
}
