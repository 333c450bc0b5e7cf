package esplora

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

// fakeResponse is a canned response of the fake server.
type fakeResponse struct {
	status int
	body   string
	header map[string]string
}

// recordedRequest is what the fake server saw.
type recordedRequest struct {
	method   string
	path     string
	rawQuery string
	header   http.Header
	body     []byte
}

// fakeEsplora is an in-memory stand in for an Esplora server. Routes are
// keyed by method and escaped path; unknown routes answer 404.
type fakeEsplora struct {
	mu       sync.Mutex
	routes   map[string]fakeResponse
	requests []recordedRequest
}

func newFakeEsplora(t *testing.T) (*fakeEsplora, *httptest.Server) {
	t.Helper()

	f := &fakeEsplora{
		routes: make(map[string]fakeResponse),
	}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	return f, srv
}

// set installs a canned response.
func (f *fakeEsplora) set(method, path string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.routes[method+" "+path] = fakeResponse{status: status, body: body}
}

// setWithHeader installs a canned response carrying extra headers.
func (f *fakeEsplora) setWithHeader(method, path string, status int,
	body string, header map[string]string) {

	f.mu.Lock()
	defer f.mu.Unlock()

	f.routes[method+" "+path] = fakeResponse{
		status: status,
		body:   body,
		header: header,
	}
}

// recorded returns a copy of all requests seen so far.
func (f *fakeEsplora) recorded() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]recordedRequest(nil), f.requests...)
}

// count returns how often the given route was requested.
func (f *fakeEsplora) count(method, path string) int {
	n := 0
	for _, req := range f.recorded() {
		if req.method == method && req.path == path {
			n++
		}
	}

	return n
}

// ServeHTTP implements http.Handler.
func (f *fakeEsplora) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{
		method:   r.Method,
		path:     r.URL.EscapedPath(),
		rawQuery: r.URL.RawQuery,
		header:   r.Header.Clone(),
		body:     body,
	})
	resp, ok := f.routes[r.Method+" "+r.URL.EscapedPath()]
	f.mu.Unlock()

	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	for name, value := range resp.header {
		w.Header().Set(name, value)
	}
	w.WriteHeader(resp.status)
	_, _ = io.WriteString(w, resp.body)
}

// testConfig returns a config pointing at url with a short timeout.
func testConfig(url string) *Config {
	cfg := DefaultConfig()
	cfg.URL = url
	cfg.RequestTimeout = 5 * time.Second

	return cfg
}

// newTestClient returns a client of the requested model talking to url.
func newTestClient(t *testing.T, url string, async bool,
	opts ...ClientOption) *Client {

	t.Helper()

	var (
		client *Client
		err    error
	)
	if async {
		client, err = NewAsyncClient(testConfig(url), opts...)
	} else {
		client, err = NewBlockingClient(testConfig(url), opts...)
	}
	require.NoError(t, err)
	t.Cleanup(client.Stop)

	return client
}

// transportModels names both scheduling models for table driven tests.
var transportModels = []struct {
	name  string
	async bool
}{
	{name: "blocking", async: false},
	{name: "async", async: true},
}

// testTx returns a distinct transaction for the given seed.
func testTx(seed uint32) *wire.MsgTx {
	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{
			Hash:  chainhash.DoubleHashH([]byte{byte(seed)}),
			Index: seed,
		},
		Sequence: wire.MaxTxInSequenceNum,
	})
	tx.AddTxOut(&wire.TxOut{
		Value:    int64(1000 + seed),
		PkScript: []byte{0x51},
	})

	return tx
}

// txHex serializes tx to hex.
func txHex(t *testing.T, tx *wire.MsgTx) string {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, tx.Serialize(&buf))

	return hex.EncodeToString(buf.Bytes())
}

// headerHex serializes a header to hex.
func headerHex(t *testing.T, header *wire.BlockHeader) string {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, header.Serialize(&buf))

	return hex.EncodeToString(buf.Bytes())
}

// testBlock is a synthetic block and the Merkle paths of its transactions.
type testBlock struct {
	txs    []*wire.MsgTx
	header wire.BlockHeader
	levels [][]chainhash.Hash
}

// newTestBlock builds a block of numTxs transactions on top of prev.
func newTestBlock(prev chainhash.Hash, numTxs int,
	seed uint32) *testBlock {

	b := &testBlock{}
	leaves := make([]chainhash.Hash, 0, numTxs)
	for i := 0; i < numTxs; i++ {
		tx := testTx(seed + uint32(i))
		b.txs = append(b.txs, tx)
		leaves = append(leaves, tx.TxHash())
	}

	b.levels = [][]chainhash.Hash{leaves}
	for level := leaves; len(level) > 1; {
		var next []chainhash.Hash
		for i := 0; i < len(level); i += 2 {
			right := level[i]
			if i+1 < len(level) {
				right = level[i+1]
			}

			var buf [64]byte
			copy(buf[:32], level[i][:])
			copy(buf[32:], right[:])
			next = append(next, chainhash.DoubleHashH(buf[:]))
		}
		b.levels = append(b.levels, next)
		level = next
	}

	b.header = wire.BlockHeader{
		Version:    4,
		PrevBlock:  prev,
		MerkleRoot: b.levels[len(b.levels)-1][0],
		Timestamp:  time.Unix(1700000000+int64(seed), 0),
		Bits:       0x207fffff,
		Nonce:      seed,
	}

	return b
}

// proofJSON renders the merkle-proof document of transaction idx.
func (b *testBlock) proofJSON(height uint32, idx uint32) string {
	var siblings []string
	pos := idx
	for _, level := range b.levels[:len(b.levels)-1] {
		sibling := pos ^ 1
		if int(sibling) >= len(level) {
			sibling = pos
		}
		siblings = append(siblings, fmt.Sprintf("%q",
			level[sibling].String()))
		pos >>= 1
	}

	return fmt.Sprintf(`{"block_height":%d,"merkle":[%s],"pos":%d}`,
		height, strings.Join(siblings, ","), idx)
}

// confirmedStatusJSON renders a confirmed tx status document.
func confirmedStatusJSON(height uint32, hash chainhash.Hash) string {
	return fmt.Sprintf(`{"confirmed":true,"block_height":%d,`+
		`"block_hash":"%v","block_time":1700000000}`, height, hash)
}
