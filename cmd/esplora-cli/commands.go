package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/lightningnetwork/esplora"
	"github.com/lightningnetwork/lnd/healthcheck"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli"
)

// commandContext returns a context that is cancelled on interrupt. Only the
// async client returns early on cancellation; the blocking client finishes
// the request in flight.
func commandContext() (context.Context, func()) {
	return signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)
}

func printJSON(resp interface{}) {
	b, err := json.Marshal(resp)
	if err != nil {
		fatal(err)
	}

	var out bytes.Buffer
	_ = json.Indent(&out, b, "", "    ")
	out.WriteString("\n")
	_, _ = out.WriteTo(os.Stdout)
}

// parseTxid parses the first positional argument as a txid.
func parseTxid(ctx *cli.Context) (chainhash.Hash, error) {
	if ctx.NArg() != 1 {
		return chainhash.Hash{}, fmt.Errorf("txid argument missing")
	}

	txid, err := chainhash.NewHashFromStr(ctx.Args().First())
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("invalid txid: %w", err)
	}

	return *txid, nil
}

type statusResp struct {
	Confirmed   bool    `json:"confirmed"`
	BlockHeight *uint32 `json:"block_height,omitempty"`
	BlockHash   string  `json:"block_hash,omitempty"`
	BlockTime   *uint64 `json:"block_time,omitempty"`
}

func newStatusResp(status esplora.TxStatus) *statusResp {
	resp := &statusResp{Confirmed: status.Confirmed}
	status.BlockHeight.WhenSome(func(h uint32) {
		resp.BlockHeight = &h
	})
	status.BlockHash.WhenSome(func(h chainhash.Hash) {
		resp.BlockHash = h.String()
	})
	status.BlockTime.WhenSome(func(t uint64) {
		resp.BlockTime = &t
	})

	return resp
}

var tipCommand = cli.Command{
	Name:   "tip",
	Usage:  "Show the height and hash of the best block.",
	Action: tip,
}

func tip(ctx *cli.Context) error {
	client, cleanUp, err := getClient(ctx)
	if err != nil {
		return err
	}
	defer cleanUp()

	ctxc, cancel := commandContext()
	defer cancel()

	height, err := withRetry(ctx, ctxc, client.GetHeight)
	if err != nil {
		return err
	}

	hash, err := withRetry(
		ctx, ctxc, func(ctxc context.Context) (chainhash.Hash, error) {
			return client.GetBlockHashNoOpt(ctxc, height)
		},
	)
	if err != nil {
		return err
	}

	printJSON(struct {
		Height uint32 `json:"height"`
		Hash   string `json:"hash"`
	}{height, hash.String()})

	return nil
}

var headerCommand = cli.Command{
	Name:      "header",
	Usage:     "Show a block header by hash or height.",
	ArgsUsage: "hash|height",
	Action:    header,
}

func header(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.ShowCommandHelp(ctx, "header")
	}

	client, cleanUp, err := getClient(ctx)
	if err != nil {
		return err
	}
	defer cleanUp()

	ctxc, cancel := commandContext()
	defer cancel()

	arg := ctx.Args().First()

	var hdr *wire.BlockHeader
	if len(arg) == chainhash.MaxHashStringSize {
		hash, err := chainhash.NewHashFromStr(arg)
		if err != nil {
			return fmt.Errorf("invalid block hash: %w", err)
		}
		hdr, err = client.GetHeaderByHash(ctxc, *hash)
		if err != nil {
			return err
		}
	} else {
		height, err := strconv.ParseUint(arg, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid block height: %w", err)
		}
		hdr, err = client.GetHeaderByHeight(ctxc, uint32(height))
		if err != nil {
			return err
		}
	}

	printJSON(struct {
		Hash       string `json:"hash"`
		Version    int32  `json:"version"`
		PrevBlock  string `json:"previousblockhash"`
		MerkleRoot string `json:"merkle_root"`
		Timestamp  int64  `json:"timestamp"`
		Bits       string `json:"bits"`
		Nonce      uint32 `json:"nonce"`
	}{
		Hash:       hdr.BlockHash().String(),
		Version:    hdr.Version,
		PrevBlock:  hdr.PrevBlock.String(),
		MerkleRoot: hdr.MerkleRoot.String(),
		Timestamp:  hdr.Timestamp.Unix(),
		Bits:       strconv.FormatUint(uint64(hdr.Bits), 16),
		Nonce:      hdr.Nonce,
	})

	return nil
}

var txCommand = cli.Command{
	Name:      "tx",
	Usage:     "Show a transaction.",
	ArgsUsage: "txid",
	Flags: []cli.Flag{
		cli.BoolFlag{
			Name:  "raw",
			Usage: "Print the serialized transaction as hex.",
		},
	},
	Action: tx,
}

func tx(ctx *cli.Context) error {
	txid, err := parseTxid(ctx)
	if err != nil {
		return err
	}

	client, cleanUp, err := getClient(ctx)
	if err != nil {
		return err
	}
	defer cleanUp()

	ctxc, cancel := commandContext()
	defer cancel()

	if ctx.Bool("raw") {
		msgTx, err := client.GetTxNoOpt(ctxc, txid)
		if err != nil {
			return err
		}

		var buf bytes.Buffer
		if err := msgTx.Serialize(&buf); err != nil {
			return err
		}
		fmt.Println(hex.EncodeToString(buf.Bytes()))

		return nil
	}

	txOpt, err := client.GetTxInfo(ctxc, txid)
	if err != nil {
		return err
	}
	info, err := txOpt.UnwrapOrErr(esplora.ErrTxNotFound)
	if err != nil {
		return err
	}

	type outputResp struct {
		Value        int64  `json:"value"`
		ScriptPubKey string `json:"scriptpubkey"`
	}
	outputs := make([]outputResp, 0, len(info.Vout))
	for _, out := range info.Vout {
		outputs = append(outputs, outputResp{
			Value:        int64(out.Value),
			ScriptPubKey: hex.EncodeToString(out.ScriptPubKey),
		})
	}

	printJSON(struct {
		Txid     string       `json:"txid"`
		Version  int32        `json:"version"`
		LockTime uint32       `json:"locktime"`
		Size     uint32       `json:"size"`
		Weight   uint64       `json:"weight"`
		Fee      int64        `json:"fee"`
		Inputs   int          `json:"num_inputs"`
		Outputs  []outputResp `json:"outputs"`
		Status   *statusResp  `json:"status"`
	}{
		Txid:     info.Txid.String(),
		Version:  info.Version,
		LockTime: info.LockTime,
		Size:     info.Size,
		Weight:   info.Weight,
		Fee:      int64(info.Fee),
		Inputs:   len(info.Vin),
		Outputs:  outputs,
		Status:   newStatusResp(info.Status),
	})

	return nil
}

var txStatusCommand = cli.Command{
	Name:      "txstatus",
	Usage:     "Show the confirmation status of a transaction.",
	ArgsUsage: "txid",
	Action:    txStatus,
}

func txStatus(ctx *cli.Context) error {
	txid, err := parseTxid(ctx)
	if err != nil {
		return err
	}

	client, cleanUp, err := getClient(ctx)
	if err != nil {
		return err
	}
	defer cleanUp()

	ctxc, cancel := commandContext()
	defer cancel()

	getStatus := func(ctxc context.Context) (esplora.TxStatus, error) {
		return client.GetTxStatus(ctxc, txid)
	}
	status, err := withRetry(ctx, ctxc, getStatus)
	if err != nil {
		return err
	}

	printJSON(newStatusResp(status))

	return nil
}

var verifyCommand = cli.Command{
	Name: "verify",
	Usage: "Verify that a transaction is included in the block " +
		"the server reports for it.",
	ArgsUsage: "txid",
	Action:    verify,
}

func verify(ctx *cli.Context) error {
	txid, err := parseTxid(ctx)
	if err != nil {
		return err
	}

	client, cleanUp, err := getClient(ctx)
	if err != nil {
		return err
	}
	defer cleanUp()

	ctxc, cancel := commandContext()
	defer cancel()

	inclusion, err := client.VerifyTxInclusion(ctxc, txid)
	if err != nil {
		return err
	}

	printJSON(struct {
		Txid        string `json:"txid"`
		BlockHash   string `json:"block_hash"`
		BlockHeight uint32 `json:"block_height"`
		Pos         uint32 `json:"pos"`
	}{
		Txid:        txid.String(),
		BlockHash:   inclusion.BlockHash.String(),
		BlockHeight: inclusion.BlockHeight,
		Pos:         inclusion.Pos,
	})

	return nil
}

var feesCommand = cli.Command{
	Name:  "fees",
	Usage: "Show fee estimates in sat/vB by confirmation target.",
	Flags: []cli.Flag{
		cli.UintFlag{
			Name: "target",
			Usage: "Only show the estimate for this confirmation " +
				"target.",
		},
	},
	Action: fees,
}

func fees(ctx *cli.Context) error {
	client, cleanUp, err := getClient(ctx)
	if err != nil {
		return err
	}
	defer cleanUp()

	ctxc, cancel := commandContext()
	defer cancel()

	estimates, err := withRetry(ctx, ctxc, client.GetFeeEstimates)
	if err != nil {
		return err
	}

	if ctx.IsSet("target") {
		target := ctx.Uint("target")
		if target > 0xffff {
			return fmt.Errorf("target %d out of range", target)
		}

		rate, err := esplora.ConvertFeeRate(
			uint16(target), estimates,
		).UnwrapOrErr(fmt.Errorf("no estimate for target %d", target))
		if err != nil {
			return err
		}

		printJSON(struct {
			Target  uint    `json:"target"`
			FeeRate float64 `json:"sat_per_vbyte"`
		}{target, rate})

		return nil
	}

	targets := make([]int, 0, len(estimates))
	for target := range estimates {
		targets = append(targets, int(target))
	}
	sort.Ints(targets)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Target (blocks)", "Fee rate (sat/vB)"})
	for _, target := range targets {
		t.AppendRow(table.Row{
			target, fmt.Sprintf("%.3f", estimates[uint16(target)]),
		})
	}
	t.Render()

	return nil
}

var mempoolCommand = cli.Command{
	Name:   "mempool",
	Usage:  "Show mempool statistics and the fee histogram.",
	Action: mempool,
}

func mempool(ctx *cli.Context) error {
	client, cleanUp, err := getClient(ctx)
	if err != nil {
		return err
	}
	defer cleanUp()

	ctxc, cancel := commandContext()
	defer cancel()

	stats, err := withRetry(ctx, ctxc, client.GetMempoolStats)
	if err != nil {
		return err
	}

	fmt.Printf("Transactions: %d\nVirtual size: %d vB\nTotal fees: %v\n",
		stats.Count, stats.VSize, stats.TotalFee)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Fee rate (sat/vB)", "Virtual size (vB)"})
	for _, bin := range stats.FeeHistogram {
		t.AppendRow(table.Row{
			fmt.Sprintf("%.2f", bin.FeeRate), bin.VSize,
		})
	}
	t.Render()

	return nil
}

var broadcastCommand = cli.Command{
	Name:      "broadcast",
	Usage:     "Broadcast a serialized transaction.",
	ArgsUsage: "txhex",
	Action:    broadcast,
}

func broadcast(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.ShowCommandHelp(ctx, "broadcast")
	}

	raw, err := hex.DecodeString(ctx.Args().First())
	if err != nil {
		return fmt.Errorf("invalid transaction hex: %w", err)
	}

	msgTx := &wire.MsgTx{}
	if err := msgTx.Deserialize(bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("invalid transaction: %w", err)
	}

	client, cleanUp, err := getClient(ctx)
	if err != nil {
		return err
	}
	defer cleanUp()

	ctxc, cancel := commandContext()
	defer cancel()

	if err := client.Broadcast(ctxc, msgTx); err != nil {
		var statusErr *esplora.HTTPStatusError
		if errors.As(err, &statusErr) {
			return fmt.Errorf("rejected (%d): %s", statusErr.Code,
				statusErr.Body)
		}

		return err
	}

	printJSON(struct {
		Txid string `json:"txid"`
	}{msgTx.TxHash().String()})

	return nil
}

var watchCommand = cli.Command{
	Name:  "watch",
	Usage: "Print every new block until interrupted.",
	Flags: []cli.Flag{
		cli.DurationFlag{
			Name:  "interval",
			Value: esplora.DefaultPollInterval,
			Usage: "The interval at which the tip is polled.",
		},
		cli.StringFlag{
			Name: "metricslisten",
			Usage: "If set, serve Prometheus metrics of the " +
				"client on this host:port.",
		},
		cli.DurationFlag{
			Name: "healthinterval",
			Usage: "If set, check that the explorer answers at " +
				"this interval and exit once it stops " +
				"doing so.",
		},
		cli.IntFlag{
			Name:  "healthattempts",
			Value: 3,
			Usage: "The number of failed health checks in a row " +
				"before exiting.",
		},
	},
	Action: watch,
}

// startHealthCheck monitors that the explorer keeps answering tip height
// queries. The returned channel receives an error once the check failed the
// configured number of attempts in a row.
func startHealthCheck(ctx *cli.Context, ctxc context.Context,
	client *esplora.Client) (*healthcheck.Monitor, <-chan error, error) {

	timeout := ctx.GlobalDuration("timeout")
	check := func() error {
		ctxt, cancel := context.WithTimeout(ctxc, timeout)
		defer cancel()

		_, err := client.GetHeight(ctxt)
		return err
	}

	failed := make(chan error, 1)
	monitor := healthcheck.NewMonitor(&healthcheck.Config{
		Checks: []*healthcheck.Observation{
			healthcheck.NewObservation(
				"esplora", check,
				ctx.Duration("healthinterval"), timeout,
				time.Second, ctx.Int("healthattempts"),
			),
		},
		Shutdown: func(format string, params ...interface{}) {
			select {
			case failed <- fmt.Errorf(format, params...):
			default:
			}
		},
	})
	if err := monitor.Start(); err != nil {
		return nil, nil, err
	}

	return monitor, failed, nil
}

func watch(ctx *cli.Context) error {
	var opts []esplora.ClientOption
	if addr := ctx.String("metricslisten"); addr != "" {
		metrics := esplora.NewMetrics("cli")
		registry := prometheus.NewRegistry()
		if err := registry.Register(metrics); err != nil {
			return err
		}
		opts = append(opts, esplora.WithMetrics(metrics))

		srv := &http.Server{
			Addr: addr,
			Handler: promhttp.HandlerFor(
				registry, promhttp.HandlerOpts{},
			),
		}
		go func() {
			err := srv.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("Metrics server failed: %v", err)
			}
		}()
		defer srv.Close()

		log.Infof("Serving metrics on %s", addr)
	}

	client, cleanUp, err := getClient(ctx, opts...)
	if err != nil {
		return err
	}
	defer cleanUp()

	ctxc, cancel := commandContext()
	defer cancel()

	notifier := esplora.NewTipNotifier(
		client, ticker.New(ctx.Duration("interval")),
	)
	if err := notifier.Start(ctxc); err != nil {
		return err
	}
	defer notifier.Stop()

	hash, height := notifier.BestBlock()
	fmt.Printf("Watching from height %d (%v)\n", height, hash)

	var healthFailed <-chan error
	if ctx.Duration("healthinterval") > 0 {
		monitor, failed, err := startHealthCheck(ctx, ctxc, client)
		if err != nil {
			return err
		}
		defer func() {
			if err := monitor.Stop(); err != nil {
				log.Errorf("Unable to stop health check: %v",
					err)
			}
		}()

		healthFailed = failed
	}

	epochs, _ := notifier.Subscribe()
	for {
		select {
		case err := <-healthFailed:
			return err

		case epoch, ok := <-epochs:
			if !ok {
				return nil
			}

			fmt.Printf("%d %v %v\n", epoch.Height, epoch.Hash,
				epoch.Header.Timestamp.UTC())

		case <-ctxc.Done():
			return nil
		}
	}
}
