package esplora

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// TxStatus is the confirmation status of a transaction. The block fields are
// set only for confirmed transactions.
type TxStatus struct {
	Confirmed   bool
	BlockHeight fn.Option[uint32]
	BlockHash   fn.Option[chainhash.Hash]
	BlockTime   fn.Option[uint64]
}

// OutputStatus is the spend status of a transaction output.
type OutputStatus struct {
	Spent bool

	// Txid and Vin identify the spending input, if any.
	Txid fn.Option[chainhash.Hash]
	Vin  fn.Option[uint32]

	// Status is the confirmation status of the spending transaction.
	Status fn.Option[TxStatus]
}

// BlockStatus reports whether a block is part of the best chain.
type BlockStatus struct {
	InBestChain bool
	Height      fn.Option[uint32]
	NextBest    fn.Option[chainhash.Hash]
}

// PrevOut is the output spent by an input.
type PrevOut struct {
	Value        btcutil.Amount
	ScriptPubKey []byte
}

// Vin is a transaction input as reported by the explorer.
type Vin struct {
	Txid       chainhash.Hash
	Vout       uint32
	PrevOut    fn.Option[PrevOut]
	ScriptSig  []byte
	Witness    [][]byte
	Sequence   uint32
	IsCoinbase bool
}

// Vout is a transaction output as reported by the explorer.
type Vout struct {
	Value        btcutil.Amount
	ScriptPubKey []byte
}

// Tx is a transaction together with the explorer's metadata.
type Tx struct {
	Txid     chainhash.Hash
	Version  int32
	LockTime uint32
	Vin      []Vin
	Vout     []Vout
	Size     uint32
	Weight   uint64
	Status   TxStatus
	Fee      btcutil.Amount
}

// ToMsgTx rebuilds the wire transaction.
func (t *Tx) ToMsgTx() *wire.MsgTx {
	msgTx := wire.NewMsgTx(t.Version)
	msgTx.LockTime = t.LockTime

	for _, vin := range t.Vin {
		txIn := wire.NewTxIn(
			wire.NewOutPoint(&vin.Txid, vin.Vout), vin.ScriptSig,
			vin.Witness,
		)
		txIn.Sequence = vin.Sequence
		msgTx.AddTxIn(txIn)
	}

	for _, vout := range t.Vout {
		msgTx.AddTxOut(wire.NewTxOut(
			int64(vout.Value), vout.ScriptPubKey,
		))
	}

	return msgTx
}

// ConfirmationTime returns the height and time of the confirming block, or
// None for unconfirmed transactions.
func (t *Tx) ConfirmationTime() fn.Option[BlockTime] {
	if !t.Status.Confirmed {
		return fn.None[BlockTime]()
	}

	return fn.LiftA2Option(
		func(height uint32, timestamp uint64) BlockTime {
			return BlockTime{Timestamp: timestamp, Height: height}
		},
	)(t.Status.BlockHeight, t.Status.BlockTime)
}

// PreviousOutputs returns the spent output of every input, in input order.
// Coinbase inputs have none.
func (t *Tx) PreviousOutputs() []fn.Option[*wire.TxOut] {
	prevOuts := make([]fn.Option[*wire.TxOut], 0, len(t.Vin))
	for _, vin := range t.Vin {
		prevOuts = append(prevOuts, fn.MapOption(
			func(p PrevOut) *wire.TxOut {
				return wire.NewTxOut(
					int64(p.Value), p.ScriptPubKey,
				)
			},
		)(vin.PrevOut))
	}

	return prevOuts
}

// BlockTime is the height and timestamp of a block.
type BlockTime struct {
	Timestamp uint64
	Height    uint32
}

// BlockSummary is the short form of a block returned by block listings.
type BlockSummary struct {
	ID                chainhash.Hash
	Time              BlockTime
	PreviousBlockHash fn.Option[chainhash.Hash]
	MerkleRoot        chainhash.Hash
}

// BlockInfo holds the explorer's view of a block.
type BlockInfo struct {
	ID                chainhash.Hash
	Height            uint32
	Version           int32
	Timestamp         uint64
	TxCount           uint64
	Size              uint64
	Weight            uint64
	MerkleRoot        chainhash.Hash
	PreviousBlockHash fn.Option[chainhash.Hash]
	MedianTime        uint64
	Nonce             uint32
	Bits              uint32
	Difficulty        float64
}

// TxsSummary aggregates the funding and spending history of an address or
// script hash.
type TxsSummary struct {
	FundedTxoCount uint32
	FundedTxoSum   btcutil.Amount
	SpentTxoCount  uint32
	SpentTxoSum    btcutil.Amount
	TxCount        uint32
}

// Balance returns the funded minus the spent value.
func (s TxsSummary) Balance() btcutil.Amount {
	return s.FundedTxoSum - s.SpentTxoSum
}

// AddressStats are the confirmed and mempool statistics of an address.
type AddressStats struct {
	Address      string
	ChainStats   TxsSummary
	MempoolStats TxsSummary
}

// ScriptHashStats are the confirmed and mempool statistics of a script hash.
type ScriptHashStats struct {
	ChainStats   TxsSummary
	MempoolStats TxsSummary
}

// Utxo is an unspent output of an address or script hash.
type Utxo struct {
	Txid   chainhash.Hash
	Vout   uint32
	Status TxStatus
	Value  btcutil.Amount
}

// OutPoint returns the outpoint of the utxo.
func (u *Utxo) OutPoint() wire.OutPoint {
	return wire.OutPoint{Hash: u.Txid, Index: u.Vout}
}

// FeeHistogramBin is one bucket of the mempool fee histogram: the virtual
// size of all transactions paying at least FeeRate sat/vB and less than the
// previous bucket's rate.
type FeeHistogramBin struct {
	FeeRate float64
	VSize   uint64
}

// MempoolStats summarizes the mempool.
type MempoolStats struct {
	Count        uint64
	VSize        uint64
	TotalFee     btcutil.Amount
	FeeHistogram []FeeHistogramBin
}

// MempoolRecentTx is a transaction recently added to the mempool.
type MempoolRecentTx struct {
	Txid  chainhash.Hash
	Fee   btcutil.Amount
	VSize uint64
	Value btcutil.Amount
}

// SatPerKWeight is a fee rate in satoshis per kilo weight unit.
type SatPerKWeight btcutil.Amount

// String returns a human readable fee rate.
func (s SatPerKWeight) String() string {
	return fmt.Sprintf("%v sat/kw", int64(s))
}

// PackageFees are the fees the mempool accepted a package transaction with.
type PackageFees struct {
	// Base is the transaction's own fee.
	Base btcutil.Amount

	// EffectiveFeeRate is the rate used for mempool acceptance, which
	// may include the fees of other package members.
	EffectiveFeeRate fn.Option[SatPerKWeight]

	// EffectiveIncludes lists the wtxids the effective rate accounts for.
	EffectiveIncludes []chainhash.Hash
}

// TxResult is the outcome of a single package transaction.
type TxResult struct {
	Txid chainhash.Hash

	// OtherWtxid is set when a transaction with the same txid but a
	// different witness was already in the mempool.
	OtherWtxid fn.Option[chainhash.Hash]
	VSize      fn.Option[uint32]
	Fees       fn.Option[PackageFees]
	Error      fn.Option[string]
}

// SubmitPackageResult is the result of a package submission.
type SubmitPackageResult struct {
	// PackageMsg is "success" when the package was accepted.
	PackageMsg string

	// TxResults is keyed by wtxid.
	TxResults map[chainhash.Hash]TxResult

	// ReplacedTransactions are the txids evicted by the package.
	ReplacedTransactions []chainhash.Hash
}

// FeeEstimates maps confirmation targets in blocks to fee rates in sat/vB.
type FeeEstimates map[uint16]float64
