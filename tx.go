package esplora

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/esplora/merkle"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// GetTx fetches a transaction by txid. None is returned if the server does
// not know it.
func (c *Client) GetTx(ctx context.Context,
	txid chainhash.Hash) (fn.Option[*wire.MsgTx], error) {

	return callOpt(
		ctx, c.dispatcher, get("tx_hex", "tx", txid.String(), "hex"),
		decodeHexTx,
	)
}

// GetRawTx fetches a transaction by txid in binary form. None is returned if
// the server does not know it.
func (c *Client) GetRawTx(ctx context.Context,
	txid chainhash.Hash) (fn.Option[*wire.MsgTx], error) {

	return callOpt(
		ctx, c.dispatcher, get("tx_raw", "tx", txid.String(), "raw"),
		decodeRawTx,
	)
}

// GetTxNoOpt is like GetTx but reports an unknown transaction as
// ErrTxNotFound.
func (c *Client) GetTxNoOpt(ctx context.Context,
	txid chainhash.Hash) (*wire.MsgTx, error) {

	tx, err := c.GetTx(ctx, txid)
	if err != nil {
		return nil, err
	}

	return tx.UnwrapOrErr(ErrTxNotFound)
}

// GetTxInfo fetches a transaction together with the explorer's metadata.
func (c *Client) GetTxInfo(ctx context.Context,
	txid chainhash.Hash) (fn.Option[*Tx], error) {

	return callOpt(
		ctx, c.dispatcher, get("tx", "tx", txid.String()), decodeTx,
	)
}

// GetTxStatus fetches the confirmation status of a transaction. Esplora
// answers with an unconfirmed status for unknown transactions.
func (c *Client) GetTxStatus(ctx context.Context,
	txid chainhash.Hash) (TxStatus, error) {

	return call(
		ctx, c.dispatcher,
		get("tx_status", "tx", txid.String(), "status"),
		decodeTxStatus,
	)
}

// GetTxidAtBlockIndex returns the txid at the given position of a block.
func (c *Client) GetTxidAtBlockIndex(ctx context.Context,
	blockHash chainhash.Hash, index uint32) (fn.Option[chainhash.Hash],
	error) {

	return callOpt(
		ctx, c.dispatcher, get(
			"block_txid", "block", blockHash.String(), "txid",
			strconv.FormatUint(uint64(index), 10),
		),
		decodeHashText,
	)
}

// GetMerkleProof fetches the Merkle inclusion path of a confirmed
// transaction. None is returned for unknown or unconfirmed transactions.
func (c *Client) GetMerkleProof(ctx context.Context,
	txid chainhash.Hash) (fn.Option[*merkle.Proof], error) {

	return callOpt(
		ctx, c.dispatcher,
		get("tx_merkle_proof", "tx", txid.String(), "merkle-proof"),
		decodeMerkleProof,
	)
}

// GetMerkleBlock fetches the BIP 37 merkle block proving inclusion of a
// transaction.
func (c *Client) GetMerkleBlock(ctx context.Context,
	txid chainhash.Hash) (fn.Option[*wire.MsgMerkleBlock], error) {

	return callOpt(
		ctx, c.dispatcher, get(
			"tx_merkleblock_proof", "tx", txid.String(),
			"merkleblock-proof",
		),
		decodeHexMerkleBlock,
	)
}

// GetOutputStatus fetches the spend status of a single output.
func (c *Client) GetOutputStatus(ctx context.Context, txid chainhash.Hash,
	index uint32) (fn.Option[OutputStatus], error) {

	return callOpt(
		ctx, c.dispatcher, get(
			"tx_outspend", "tx", txid.String(), "outspend",
			strconv.FormatUint(uint64(index), 10),
		),
		decodeOutputStatus,
	)
}

// GetOutputStatuses fetches the spend status of every output of a
// transaction, in output order.
func (c *Client) GetOutputStatuses(ctx context.Context,
	txid chainhash.Hash) ([]OutputStatus, error) {

	return call(
		ctx, c.dispatcher,
		get("tx_outspends", "tx", txid.String(), "outspends"),
		decodeOutputStatuses,
	)
}

// Broadcast submits a transaction to the network. The response body is not
// inspected; any 2xx status is success.
func (c *Client) Broadcast(ctx context.Context, tx *wire.MsgTx) error {
	txHex, err := encodeTxHex(tx)
	if err != nil {
		return err
	}

	return callUnit(ctx, c.dispatcher, post("tx_broadcast", []byte(txHex),
		"tx"))
}

// SubmitPackageOptions bound the fees of a package submission.
type SubmitPackageOptions struct {
	// MaxFeeRate rejects transactions paying more than this rate, in
	// BTC/kvB.
	MaxFeeRate fn.Option[float64]

	// MaxBurnAmount rejects transactions with provably unspendable
	// outputs above this value, in BTC.
	MaxBurnAmount fn.Option[float64]
}

// query renders the options as query parameters.
func (o *SubmitPackageOptions) query() url.Values {
	query := url.Values{}
	o.MaxFeeRate.WhenSome(func(rate float64) {
		query.Set("maxfeerate", formatFloat(rate))
	})
	o.MaxBurnAmount.WhenSome(func(amount float64) {
		query.Set("maxburnamount", formatFloat(amount))
	})

	return query
}

// SubmitPackage submits a package of related transactions, children last.
func (c *Client) SubmitPackage(ctx context.Context, txs []*wire.MsgTx,
	opts SubmitPackageOptions) (*SubmitPackageResult, error) {

	encoded := make([]string, 0, len(txs))
	for _, tx := range txs {
		txHex, err := encodeTxHex(tx)
		if err != nil {
			return nil, err
		}
		encoded = append(encoded, strconv.Quote(txHex))
	}
	body := []byte("[" + strings.Join(encoded, ",") + "]")

	ep := post("txs_package", body, "txs", "package").withQuery(
		opts.query(),
	)
	ep.contentType = "application/json"

	return call(ctx, c.dispatcher, ep, decodeSubmitPackageResult)
}
