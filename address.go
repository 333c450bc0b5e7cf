package esplora

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// ScriptHash returns the Electrum style script hash of an output script:
// the hex encoded SHA256 of the script, not byte reversed.
func ScriptHash(pkScript []byte) string {
	sum := sha256.Sum256(pkScript)
	return hex.EncodeToString(sum[:])
}

// AddressScriptHash returns the script hash of an address' output script.
func AddressScriptHash(addr btcutil.Address) (string, error) {
	pkScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return "", fmt.Errorf("unable to build script for %v: %w",
			addr, err)
	}

	return ScriptHash(pkScript), nil
}

// txsPath returns the path segments of a paginated transaction listing.
// Confirmed transactions are listed newest first, 25 per page; lastSeen
// continues after the given txid.
func txsPath(kind, id string, lastSeen fn.Option[chainhash.Hash]) []string {
	segments := []string{kind, id, "txs"}
	lastSeen.WhenSome(func(txid chainhash.Hash) {
		segments = append(segments, "chain", txid.String())
	})

	return segments
}

// GetAddressStats fetches the funding statistics of an address.
func (c *Client) GetAddressStats(ctx context.Context,
	addr btcutil.Address) (*AddressStats, error) {

	return call(
		ctx, c.dispatcher,
		get("address", "address", addr.EncodeAddress()),
		decodeAddressStats,
	)
}

// GetAddressTxs lists the transactions of an address: up to 50 mempool
// transactions followed by the first page of confirmed ones, or only
// confirmed ones after lastSeen.
func (c *Client) GetAddressTxs(ctx context.Context, addr btcutil.Address,
	lastSeen fn.Option[chainhash.Hash]) ([]*Tx, error) {

	segments := txsPath("address", addr.EncodeAddress(), lastSeen)
	return call(
		ctx, c.dispatcher, get("address_txs", segments...),
		decodeTxList,
	)
}

// GetAddressMempoolTxs lists the unconfirmed transactions of an address.
func (c *Client) GetAddressMempoolTxs(ctx context.Context,
	addr btcutil.Address) ([]*Tx, error) {

	return call(
		ctx, c.dispatcher, get(
			"address_txs_mempool", "address",
			addr.EncodeAddress(), "txs", "mempool",
		),
		decodeTxList,
	)
}

// GetAddressUtxos lists the unspent outputs of an address.
func (c *Client) GetAddressUtxos(ctx context.Context,
	addr btcutil.Address) ([]Utxo, error) {

	return call(
		ctx, c.dispatcher,
		get("address_utxo", "address", addr.EncodeAddress(), "utxo"),
		decodeUtxos,
	)
}

// GetScriptHashStats fetches the funding statistics of an output script.
func (c *Client) GetScriptHashStats(ctx context.Context,
	pkScript []byte) (*ScriptHashStats, error) {

	return call(
		ctx, c.dispatcher,
		get("scripthash", "scripthash", ScriptHash(pkScript)),
		decodeScriptHashStats,
	)
}

// GetScriptHashTxs lists the transactions of an output script, paginated
// like GetAddressTxs.
func (c *Client) GetScriptHashTxs(ctx context.Context, pkScript []byte,
	lastSeen fn.Option[chainhash.Hash]) ([]*Tx, error) {

	segments := txsPath("scripthash", ScriptHash(pkScript), lastSeen)
	return call(
		ctx, c.dispatcher, get("scripthash_txs", segments...),
		decodeTxList,
	)
}

// GetScriptHashMempoolTxs lists the unconfirmed transactions of an output
// script.
func (c *Client) GetScriptHashMempoolTxs(ctx context.Context,
	pkScript []byte) ([]*Tx, error) {

	return call(
		ctx, c.dispatcher, get(
			"scripthash_txs_mempool", "scripthash",
			ScriptHash(pkScript), "txs", "mempool",
		),
		decodeTxList,
	)
}

// GetScriptHashUtxos lists the unspent outputs of an output script.
func (c *Client) GetScriptHashUtxos(ctx context.Context,
	pkScript []byte) ([]Utxo, error) {

	return call(
		ctx, c.dispatcher, get(
			"scripthash_utxo", "scripthash", ScriptHash(pkScript),
			"utxo",
		),
		decodeUtxos,
	)
}
