package esplora

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/esplora/merkle"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// The types below mirror the JSON documents served by Esplora. Required
// members are pointers so that absence can be told apart from zero values.

type jsonTxStatus struct {
	Confirmed   *bool   `json:"confirmed"`
	BlockHeight *uint32 `json:"block_height"`
	BlockHash   *string `json:"block_hash"`
	BlockTime   *uint64 `json:"block_time"`
}

func (j *jsonTxStatus) convert() (TxStatus, error) {
	confirmed, err := required(j.Confirmed, "confirmed")
	if err != nil {
		return TxStatus{}, err
	}

	blockHash, err := optionalHash(j.BlockHash, "block_hash")
	if err != nil {
		return TxStatus{}, err
	}

	return TxStatus{
		Confirmed:   confirmed,
		BlockHeight: fn.OptionFromPtr(j.BlockHeight),
		BlockHash:   blockHash,
		BlockTime:   fn.OptionFromPtr(j.BlockTime),
	}, nil
}

type jsonOutputStatus struct {
	Spent  *bool         `json:"spent"`
	Txid   *string       `json:"txid"`
	Vin    *uint32       `json:"vin"`
	Status *jsonTxStatus `json:"status"`
}

func (j *jsonOutputStatus) convert() (OutputStatus, error) {
	spent, err := required(j.Spent, "spent")
	if err != nil {
		return OutputStatus{}, err
	}

	txid, err := optionalHash(j.Txid, "txid")
	if err != nil {
		return OutputStatus{}, err
	}

	status := fn.None[TxStatus]()
	if j.Status != nil {
		s, err := j.Status.convert()
		if err != nil {
			return OutputStatus{}, fmt.Errorf("status: %w", err)
		}
		status = fn.Some(s)
	}

	return OutputStatus{
		Spent:  spent,
		Txid:   txid,
		Vin:    fn.OptionFromPtr(j.Vin),
		Status: status,
	}, nil
}

type jsonBlockStatus struct {
	InBestChain *bool   `json:"in_best_chain"`
	Height      *uint32 `json:"height"`
	NextBest    *string `json:"next_best"`
}

func (j *jsonBlockStatus) convert() (BlockStatus, error) {
	inBestChain, err := required(j.InBestChain, "in_best_chain")
	if err != nil {
		return BlockStatus{}, err
	}

	nextBest, err := optionalHash(j.NextBest, "next_best")
	if err != nil {
		return BlockStatus{}, err
	}

	return BlockStatus{
		InBestChain: inBestChain,
		Height:      fn.OptionFromPtr(j.Height),
		NextBest:    nextBest,
	}, nil
}

type jsonPrevOut struct {
	Value        *uint64 `json:"value"`
	ScriptPubKey *string `json:"scriptpubkey"`
}

func (j *jsonPrevOut) convert() (PrevOut, error) {
	value, err := requiredSats(j.Value, "value")
	if err != nil {
		return PrevOut{}, err
	}

	script, err := requiredHex(j.ScriptPubKey, "scriptpubkey")
	if err != nil {
		return PrevOut{}, err
	}

	return PrevOut{Value: value, ScriptPubKey: script}, nil
}

type jsonVin struct {
	Txid       *string      `json:"txid"`
	Vout       *uint32      `json:"vout"`
	PrevOut    *jsonPrevOut `json:"prevout"`
	ScriptSig  *string      `json:"scriptsig"`
	Witness    []string     `json:"witness"`
	Sequence   *uint32      `json:"sequence"`
	IsCoinbase *bool        `json:"is_coinbase"`
}

func (j *jsonVin) convert() (Vin, error) {
	var (
		vin Vin
		err error
	)

	if vin.Txid, err = requiredHash(j.Txid, "txid"); err != nil {
		return Vin{}, err
	}
	if vin.Vout, err = required(j.Vout, "vout"); err != nil {
		return Vin{}, err
	}
	vin.ScriptSig, err = requiredHex(j.ScriptSig, "scriptsig")
	if err != nil {
		return Vin{}, err
	}
	if vin.Sequence, err = required(j.Sequence, "sequence"); err != nil {
		return Vin{}, err
	}
	vin.IsCoinbase, err = required(j.IsCoinbase, "is_coinbase")
	if err != nil {
		return Vin{}, err
	}

	vin.PrevOut = fn.None[PrevOut]()
	if j.PrevOut != nil {
		prevOut, err := j.PrevOut.convert()
		if err != nil {
			return Vin{}, fmt.Errorf("prevout: %w", err)
		}
		vin.PrevOut = fn.Some(prevOut)
	}

	for i, item := range j.Witness {
		raw, err := parseHex(item)
		if err != nil {
			return Vin{}, fmt.Errorf("witness item %d: %w", i, err)
		}
		vin.Witness = append(vin.Witness, raw)
	}

	return vin, nil
}

type jsonTx struct {
	Txid     *string        `json:"txid"`
	Version  *int32         `json:"version"`
	LockTime *uint32        `json:"locktime"`
	Vin      *[]jsonVin     `json:"vin"`
	Vout     *[]jsonPrevOut `json:"vout"`
	Size     *uint32        `json:"size"`
	Weight   *uint64        `json:"weight"`
	Status   *jsonTxStatus  `json:"status"`
	Fee      *uint64        `json:"fee"`
}

func (j *jsonTx) convert() (*Tx, error) {
	var (
		tx  Tx
		err error
	)

	if tx.Txid, err = requiredHash(j.Txid, "txid"); err != nil {
		return nil, err
	}
	if tx.Version, err = required(j.Version, "version"); err != nil {
		return nil, err
	}
	if tx.LockTime, err = required(j.LockTime, "locktime"); err != nil {
		return nil, err
	}
	if tx.Size, err = required(j.Size, "size"); err != nil {
		return nil, err
	}
	if tx.Weight, err = required(j.Weight, "weight"); err != nil {
		return nil, err
	}
	if tx.Fee, err = requiredSats(j.Fee, "fee"); err != nil {
		return nil, err
	}

	status, err := required(j.Status, "status")
	if err != nil {
		return nil, err
	}
	if tx.Status, err = status.convert(); err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}

	vins, err := required(j.Vin, "vin")
	if err != nil {
		return nil, err
	}
	tx.Vin = make([]Vin, 0, len(vins))
	for i := range vins {
		vin, err := vins[i].convert()
		if err != nil {
			return nil, fmt.Errorf("vin %d: %w", i, err)
		}
		tx.Vin = append(tx.Vin, vin)
	}

	vouts, err := required(j.Vout, "vout")
	if err != nil {
		return nil, err
	}
	tx.Vout = make([]Vout, 0, len(vouts))
	for i := range vouts {
		out, err := vouts[i].convert()
		if err != nil {
			return nil, fmt.Errorf("vout %d: %w", i, err)
		}
		tx.Vout = append(tx.Vout, Vout(out))
	}

	return &tx, nil
}

type jsonMerkleProof struct {
	BlockHeight *uint32   `json:"block_height"`
	Merkle      *[]string `json:"merkle"`
	Pos         *uint32   `json:"pos"`
}

func (j *jsonMerkleProof) convert() (*merkle.Proof, error) {
	var (
		proof merkle.Proof
		err   error
	)

	proof.BlockHeight, err = required(j.BlockHeight, "block_height")
	if err != nil {
		return nil, err
	}
	if proof.Pos, err = required(j.Pos, "pos"); err != nil {
		return nil, err
	}

	siblings, err := required(j.Merkle, "merkle")
	if err != nil {
		return nil, err
	}
	proof.Siblings = make([]chainhash.Hash, 0, len(siblings))
	for i, s := range siblings {
		h, err := parseHash(s)
		if err != nil {
			return nil, fmt.Errorf("merkle %d: %w", i, err)
		}
		proof.Siblings = append(proof.Siblings, h)
	}

	return &proof, nil
}

type jsonBlockInfo struct {
	ID                *string  `json:"id"`
	Height            *uint32  `json:"height"`
	Version           *int32   `json:"version"`
	Timestamp         *uint64  `json:"timestamp"`
	TxCount           *uint64  `json:"tx_count"`
	Size              *uint64  `json:"size"`
	Weight            *uint64  `json:"weight"`
	MerkleRoot        *string  `json:"merkle_root"`
	PreviousBlockHash *string  `json:"previousblockhash"`
	MedianTime        *uint64  `json:"mediantime"`
	Nonce             *uint32  `json:"nonce"`
	Bits              *uint32  `json:"bits"`
	Difficulty        *float64 `json:"difficulty"`
}

func (j *jsonBlockInfo) convert() (*BlockInfo, error) {
	var (
		info BlockInfo
		err  error
	)

	if info.ID, err = requiredHash(j.ID, "id"); err != nil {
		return nil, err
	}
	if info.Height, err = required(j.Height, "height"); err != nil {
		return nil, err
	}
	if info.Version, err = required(j.Version, "version"); err != nil {
		return nil, err
	}
	info.Timestamp, err = required(j.Timestamp, "timestamp")
	if err != nil {
		return nil, err
	}
	if info.TxCount, err = required(j.TxCount, "tx_count"); err != nil {
		return nil, err
	}
	if info.Size, err = required(j.Size, "size"); err != nil {
		return nil, err
	}
	if info.Weight, err = required(j.Weight, "weight"); err != nil {
		return nil, err
	}
	info.MerkleRoot, err = requiredHash(j.MerkleRoot, "merkle_root")
	if err != nil {
		return nil, err
	}
	info.PreviousBlockHash, err = optionalHash(
		j.PreviousBlockHash, "previousblockhash",
	)
	if err != nil {
		return nil, err
	}
	info.MedianTime, err = required(j.MedianTime, "mediantime")
	if err != nil {
		return nil, err
	}
	if info.Nonce, err = required(j.Nonce, "nonce"); err != nil {
		return nil, err
	}
	if info.Bits, err = required(j.Bits, "bits"); err != nil {
		return nil, err
	}
	info.Difficulty, err = required(j.Difficulty, "difficulty")
	if err != nil {
		return nil, err
	}

	return &info, nil
}

type jsonBlockSummary struct {
	ID                *string `json:"id"`
	Height            *uint32 `json:"height"`
	Timestamp         *uint64 `json:"timestamp"`
	PreviousBlockHash *string `json:"previousblockhash"`
	MerkleRoot        *string `json:"merkle_root"`
}

func (j *jsonBlockSummary) convert() (BlockSummary, error) {
	var (
		summary BlockSummary
		err     error
	)

	if summary.ID, err = requiredHash(j.ID, "id"); err != nil {
		return BlockSummary{}, err
	}
	if summary.Time.Height, err = required(j.Height, "height"); err != nil {
		return BlockSummary{}, err
	}
	summary.Time.Timestamp, err = required(j.Timestamp, "timestamp")
	if err != nil {
		return BlockSummary{}, err
	}
	summary.PreviousBlockHash, err = optionalHash(
		j.PreviousBlockHash, "previousblockhash",
	)
	if err != nil {
		return BlockSummary{}, err
	}
	summary.MerkleRoot, err = requiredHash(j.MerkleRoot, "merkle_root")
	if err != nil {
		return BlockSummary{}, err
	}

	return summary, nil
}

type jsonTxsSummary struct {
	FundedTxoCount *uint32 `json:"funded_txo_count"`
	FundedTxoSum   *uint64 `json:"funded_txo_sum"`
	SpentTxoCount  *uint32 `json:"spent_txo_count"`
	SpentTxoSum    *uint64 `json:"spent_txo_sum"`
	TxCount        *uint32 `json:"tx_count"`
}

func (j *jsonTxsSummary) convert() (TxsSummary, error) {
	var (
		s   TxsSummary
		err error
	)

	s.FundedTxoCount, err = required(j.FundedTxoCount, "funded_txo_count")
	if err != nil {
		return TxsSummary{}, err
	}
	s.FundedTxoSum, err = requiredSats(j.FundedTxoSum, "funded_txo_sum")
	if err != nil {
		return TxsSummary{}, err
	}
	s.SpentTxoCount, err = required(j.SpentTxoCount, "spent_txo_count")
	if err != nil {
		return TxsSummary{}, err
	}
	s.SpentTxoSum, err = requiredSats(j.SpentTxoSum, "spent_txo_sum")
	if err != nil {
		return TxsSummary{}, err
	}
	if s.TxCount, err = required(j.TxCount, "tx_count"); err != nil {
		return TxsSummary{}, err
	}

	return s, nil
}

// convertStats converts the chain and mempool summaries shared by address and
// script hash statistics.
func convertStats(chain, mempool *jsonTxsSummary) (TxsSummary, TxsSummary,
	error) {

	chainStats, err := required(chain, "chain_stats")
	if err != nil {
		return TxsSummary{}, TxsSummary{}, err
	}
	mempoolStats, err := required(mempool, "mempool_stats")
	if err != nil {
		return TxsSummary{}, TxsSummary{}, err
	}

	c, err := chainStats.convert()
	if err != nil {
		return TxsSummary{}, TxsSummary{}, fmt.Errorf("chain_stats: %w",
			err)
	}
	m, err := mempoolStats.convert()
	if err != nil {
		return TxsSummary{}, TxsSummary{}, fmt.Errorf("mempool_stats: "+
			"%w", err)
	}

	return c, m, nil
}

type jsonAddressStats struct {
	Address      *string         `json:"address"`
	ChainStats   *jsonTxsSummary `json:"chain_stats"`
	MempoolStats *jsonTxsSummary `json:"mempool_stats"`
}

func (j *jsonAddressStats) convert() (*AddressStats, error) {
	address, err := required(j.Address, "address")
	if err != nil {
		return nil, err
	}

	chain, mempool, err := convertStats(j.ChainStats, j.MempoolStats)
	if err != nil {
		return nil, err
	}

	return &AddressStats{
		Address:      address,
		ChainStats:   chain,
		MempoolStats: mempool,
	}, nil
}

type jsonScriptHashStats struct {
	ChainStats   *jsonTxsSummary `json:"chain_stats"`
	MempoolStats *jsonTxsSummary `json:"mempool_stats"`
}

func (j *jsonScriptHashStats) convert() (*ScriptHashStats, error) {
	chain, mempool, err := convertStats(j.ChainStats, j.MempoolStats)
	if err != nil {
		return nil, err
	}

	return &ScriptHashStats{
		ChainStats:   chain,
		MempoolStats: mempool,
	}, nil
}

type jsonUtxo struct {
	Txid   *string       `json:"txid"`
	Vout   *uint32       `json:"vout"`
	Status *jsonTxStatus `json:"status"`
	Value  *uint64       `json:"value"`
}

func (j *jsonUtxo) convert() (Utxo, error) {
	var (
		utxo Utxo
		err  error
	)

	if utxo.Txid, err = requiredHash(j.Txid, "txid"); err != nil {
		return Utxo{}, err
	}
	if utxo.Vout, err = required(j.Vout, "vout"); err != nil {
		return Utxo{}, err
	}
	if utxo.Value, err = requiredSats(j.Value, "value"); err != nil {
		return Utxo{}, err
	}

	status, err := required(j.Status, "status")
	if err != nil {
		return Utxo{}, err
	}
	if utxo.Status, err = status.convert(); err != nil {
		return Utxo{}, fmt.Errorf("status: %w", err)
	}

	return utxo, nil
}

// jsonFeeHistogramBin is a [fee_rate, vsize] pair.
type jsonFeeHistogramBin FeeHistogramBin

// UnmarshalJSON decodes the two element array form.
func (j *jsonFeeHistogramBin) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("fee histogram entry has %d elements, want 2",
			len(pair))
	}

	if err := json.Unmarshal(pair[0], &j.FeeRate); err != nil {
		return fmt.Errorf("fee rate: %w", err)
	}
	if err := json.Unmarshal(pair[1], &j.VSize); err != nil {
		return fmt.Errorf("vsize: %w", err)
	}

	return nil
}

type jsonMempoolStats struct {
	Count        *uint64                `json:"count"`
	VSize        *uint64                `json:"vsize"`
	TotalFee     *uint64                `json:"total_fee"`
	FeeHistogram *[]jsonFeeHistogramBin `json:"fee_histogram"`
}

func (j *jsonMempoolStats) convert() (*MempoolStats, error) {
	var (
		stats MempoolStats
		err   error
	)

	if stats.Count, err = required(j.Count, "count"); err != nil {
		return nil, err
	}
	if stats.VSize, err = required(j.VSize, "vsize"); err != nil {
		return nil, err
	}
	stats.TotalFee, err = requiredSats(j.TotalFee, "total_fee")
	if err != nil {
		return nil, err
	}

	bins, err := required(j.FeeHistogram, "fee_histogram")
	if err != nil {
		return nil, err
	}
	stats.FeeHistogram = make([]FeeHistogramBin, 0, len(bins))
	for _, bin := range bins {
		stats.FeeHistogram = append(
			stats.FeeHistogram, FeeHistogramBin(bin),
		)
	}

	return &stats, nil
}

type jsonMempoolRecentTx struct {
	Txid  *string `json:"txid"`
	Fee   *uint64 `json:"fee"`
	VSize *uint64 `json:"vsize"`
	Value *uint64 `json:"value"`
}

func (j *jsonMempoolRecentTx) convert() (MempoolRecentTx, error) {
	var (
		tx  MempoolRecentTx
		err error
	)

	if tx.Txid, err = requiredHash(j.Txid, "txid"); err != nil {
		return MempoolRecentTx{}, err
	}
	if tx.Fee, err = requiredSats(j.Fee, "fee"); err != nil {
		return MempoolRecentTx{}, err
	}
	if tx.VSize, err = required(j.VSize, "vsize"); err != nil {
		return MempoolRecentTx{}, err
	}
	if tx.Value, err = requiredSats(j.Value, "value"); err != nil {
		return MempoolRecentTx{}, err
	}

	return tx, nil
}

// btcPerKvBToSatPerKWeight converts a BTC/kvB rate to sat/kw. One BTC/kvB is
// 1e8 sat per 4000 weight units, i.e. 25,000,000 sat/kw.
func btcPerKvBToSatPerKWeight(btcPerKvB float64) (SatPerKWeight, error) {
	satPerKw := math.Round(btcPerKvB * 25_000_000)
	if math.IsNaN(satPerKw) || math.IsInf(satPerKw, 0) || satPerKw < 0 ||
		satPerKw > math.MaxInt64 {

		return 0, fmt.Errorf("fee rate %v BTC/kvB out of range",
			btcPerKvB)
	}

	return SatPerKWeight(satPerKw), nil
}

type jsonPackageFees struct {
	Base              *float64  `json:"base"`
	EffectiveFeeRate  *float64  `json:"effective-feerate"`
	EffectiveIncludes *[]string `json:"effective-includes"`
}

func (j *jsonPackageFees) convert() (PackageFees, error) {
	base, err := required(j.Base, "base")
	if err != nil {
		return PackageFees{}, err
	}

	var fees PackageFees
	if fees.Base, err = btcutil.NewAmount(base); err != nil {
		return PackageFees{}, fmt.Errorf("base: %w", err)
	}

	fees.EffectiveFeeRate = fn.None[SatPerKWeight]()
	if j.EffectiveFeeRate != nil {
		rate, err := btcPerKvBToSatPerKWeight(*j.EffectiveFeeRate)
		if err != nil {
			return PackageFees{}, err
		}
		fees.EffectiveFeeRate = fn.Some(rate)
	}

	if j.EffectiveIncludes != nil {
		for i, s := range *j.EffectiveIncludes {
			wtxid, err := parseHash(s)
			if err != nil {
				return PackageFees{}, fmt.Errorf("effective-"+
					"includes %d: %w", i, err)
			}
			fees.EffectiveIncludes = append(
				fees.EffectiveIncludes, wtxid,
			)
		}
	}

	return fees, nil
}

type jsonTxResult struct {
	Txid       *string          `json:"txid"`
	OtherWtxid *string          `json:"other-wtxid"`
	VSize      *uint32          `json:"vsize"`
	Fees       *jsonPackageFees `json:"fees"`
	Error      *string          `json:"error"`
}

func (j *jsonTxResult) convert() (TxResult, error) {
	var (
		result TxResult
		err    error
	)

	if result.Txid, err = requiredHash(j.Txid, "txid"); err != nil {
		return TxResult{}, err
	}
	result.OtherWtxid, err = optionalHash(j.OtherWtxid, "other-wtxid")
	if err != nil {
		return TxResult{}, err
	}
	result.VSize = fn.OptionFromPtr(j.VSize)
	result.Error = fn.OptionFromPtr(j.Error)

	result.Fees = fn.None[PackageFees]()
	if j.Fees != nil {
		fees, err := j.Fees.convert()
		if err != nil {
			return TxResult{}, fmt.Errorf("fees: %w", err)
		}
		result.Fees = fn.Some(fees)
	}

	return result, nil
}

type jsonSubmitPackageResult struct {
	PackageMsg *string                  `json:"package_msg"`
	TxResults  *map[string]jsonTxResult `json:"tx-results"`

	ReplacedTransactions *[]string `json:"replaced-transactions"`
}

func (j *jsonSubmitPackageResult) convert() (*SubmitPackageResult, error) {
	msg, err := required(j.PackageMsg, "package_msg")
	if err != nil {
		return nil, err
	}
	txResults, err := required(j.TxResults, "tx-results")
	if err != nil {
		return nil, err
	}

	result := &SubmitPackageResult{
		PackageMsg: msg,
		TxResults:  make(map[chainhash.Hash]TxResult, len(txResults)),
	}
	for key, jr := range txResults {
		wtxid, err := parseHash(key)
		if err != nil {
			return nil, fmt.Errorf("tx-results key: %w", err)
		}

		txResult, err := jr.convert()
		if err != nil {
			return nil, fmt.Errorf("tx-results %v: %w", wtxid, err)
		}
		result.TxResults[wtxid] = txResult
	}

	if j.ReplacedTransactions != nil {
		for i, s := range *j.ReplacedTransactions {
			txid, err := parseHash(s)
			if err != nil {
				return nil, fmt.Errorf("replaced-transactions "+
					"%d: %w", i, err)
			}
			result.ReplacedTransactions = append(
				result.ReplacedTransactions, txid,
			)
		}
	}

	return result, nil
}

// convertFeeEstimates parses the string keys of the fee estimate object.
func convertFeeEstimates(raw *map[string]float64) (FeeEstimates, error) {
	estimates := make(FeeEstimates, len(*raw))
	for key, rate := range *raw {
		target, err := strconv.ParseUint(key, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("confirmation target %q: %w",
				key, err)
		}
		estimates[uint16(target)] = rate
	}

	return estimates, nil
}

// Decoders for every JSON document the client consumes.
var (
	decodeTxStatus = jsonDecoder("tx status",
		(*jsonTxStatus).convert)

	decodeOutputStatus = jsonDecoder("output status",
		(*jsonOutputStatus).convert)

	decodeOutputStatuses = jsonListDecoder("output statuses",
		(*jsonOutputStatus).convert)

	decodeBlockStatus = jsonDecoder("block status",
		(*jsonBlockStatus).convert)

	decodeTx = jsonDecoder("tx", (*jsonTx).convert)

	decodeTxList = jsonListDecoder("tx list", (*jsonTx).convert)

	decodeMerkleProof = jsonDecoder("merkle proof",
		(*jsonMerkleProof).convert)

	decodeBlockInfo = jsonDecoder("block info",
		(*jsonBlockInfo).convert)

	decodeBlockSummaries = jsonListDecoder("block summaries",
		(*jsonBlockSummary).convert)

	decodeAddressStats = jsonDecoder("address stats",
		(*jsonAddressStats).convert)

	decodeScriptHashStats = jsonDecoder("script hash stats",
		(*jsonScriptHashStats).convert)

	decodeUtxos = jsonListDecoder("utxos", (*jsonUtxo).convert)

	decodeMempoolStats = jsonDecoder("mempool stats",
		(*jsonMempoolStats).convert)

	decodeMempoolRecent = jsonListDecoder("recent mempool txs",
		(*jsonMempoolRecentTx).convert)

	decodeSubmitPackageResult = jsonDecoder("submit package result",
		(*jsonSubmitPackageResult).convert)

	decodeFeeEstimates = jsonDecoder("fee estimates", convertFeeEstimates)
)
