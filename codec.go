package esplora

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
)

var (
	// errMissingField is wrapped by decode errors for required JSON
	// members that are absent or null.
	errMissingField = errors.New("missing required field")

	// errTrailingBytes is wrapped by decode errors for binary payloads
	// with data after the decoded record.
	errTrailingBytes = errors.New("trailing bytes after record")

	// errNullDocument is wrapped by decode errors for a JSON body that is
	// a bare null where a document was expected.
	errNullDocument = errors.New("null document")
)

// decoder turns a successful response body into a typed value. Every failure
// is a *DecodeError.
type decoder[T any] func(body []byte) (T, error)

// endpointPath joins the path segments, escaping each one, into an absolute
// path.
func endpointPath(segments ...string) string {
	var b strings.Builder
	for _, segment := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(segment))
	}

	return b.String()
}

// EncodeQuery renders query parameters deterministically: keys are sorted and
// the values of a key keep their order.
func EncodeQuery(params url.Values) string {
	return params.Encode()
}

// DecodeQuery parses a query string produced by EncodeQuery.
func DecodeQuery(query string) (url.Values, error) {
	return url.ParseQuery(query)
}

// formatFloat renders a float query parameter without exponent or trailing
// zeros.
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// parseHash parses a hash in the usual byte reversed hex form. Unlike
// chainhash.NewHashFromStr it requires exactly 64 hex characters.
func parseHash(s string) (chainhash.Hash, error) {
	if len(s) != chainhash.MaxHashStringSize {
		return chainhash.Hash{}, fmt.Errorf("hash %q has length %d, "+
			"want %d", s, len(s), chainhash.MaxHashStringSize)
	}

	var h chainhash.Hash
	if err := chainhash.Decode(&h, s); err != nil {
		return chainhash.Hash{}, err
	}

	return h, nil
}

// parseHex decodes a strict hex string.
func parseHex(s string) ([]byte, error) {
	return hex.DecodeString(s)
}

// trimBody strips surrounding whitespace from a text body.
func trimBody(body []byte) string {
	return string(bytes.TrimSpace(body))
}

// decodeHashText decodes a text body holding a single hash.
func decodeHashText(body []byte) (chainhash.Hash, error) {
	h, err := parseHash(trimBody(body))
	if err != nil {
		return chainhash.Hash{}, newDecodeError("hash", err)
	}

	return h, nil
}

// decodeHeightText decodes a text body holding a block height.
func decodeHeightText(body []byte) (uint32, error) {
	height, err := strconv.ParseUint(trimBody(body), 10, 32)
	if err != nil {
		return 0, newDecodeError("height", err)
	}

	return uint32(height), nil
}

// consensusDecoder decodes a value with consensus encoding.
type consensusDecoder interface {
	Deserialize(r io.Reader) error
}

// decodeConsensus decodes raw into v and rejects trailing data.
func decodeConsensus(kind string, raw []byte, v consensusDecoder) error {
	r := bytes.NewReader(raw)
	if err := v.Deserialize(r); err != nil {
		return newDecodeError(kind, err)
	}
	if r.Len() != 0 {
		return newDecodeError(kind, fmt.Errorf("%w: %d bytes",
			errTrailingBytes, r.Len()))
	}

	return nil
}

// hexBody decodes a hex text body into bytes.
func hexBody(kind string, body []byte) ([]byte, error) {
	raw, err := parseHex(trimBody(body))
	if err != nil {
		return nil, newDecodeError(kind, err)
	}

	return raw, nil
}

// decodeRawTx decodes a binary transaction.
func decodeRawTx(body []byte) (*wire.MsgTx, error) {
	tx := &wire.MsgTx{}
	if err := decodeConsensus("transaction", body, tx); err != nil {
		return nil, err
	}

	return tx, nil
}

// decodeHexTx decodes a hex transaction.
func decodeHexTx(body []byte) (*wire.MsgTx, error) {
	raw, err := hexBody("transaction", body)
	if err != nil {
		return nil, err
	}

	return decodeRawTx(raw)
}

// decodeHexHeader decodes a hex block header.
func decodeHexHeader(body []byte) (*wire.BlockHeader, error) {
	raw, err := hexBody("block header", body)
	if err != nil {
		return nil, err
	}

	header := &wire.BlockHeader{}
	if err := decodeConsensus("block header", raw, header); err != nil {
		return nil, err
	}

	return header, nil
}

// decodeRawBlock decodes a binary block.
func decodeRawBlock(body []byte) (*wire.MsgBlock, error) {
	block := &wire.MsgBlock{}
	if err := decodeConsensus("block", body, block); err != nil {
		return nil, err
	}

	return block, nil
}

// merkleBlock adapts wire.MsgMerkleBlock, which only has a protocol decoder,
// to consensusDecoder.
type merkleBlock struct {
	*wire.MsgMerkleBlock
}

// Deserialize decodes the merkle block.
func (m merkleBlock) Deserialize(r io.Reader) error {
	return m.BtcDecode(r, wire.ProtocolVersion, wire.BaseEncoding)
}

// decodeHexMerkleBlock decodes a hex merkle block.
func decodeHexMerkleBlock(body []byte) (*wire.MsgMerkleBlock, error) {
	raw, err := hexBody("merkle block", body)
	if err != nil {
		return nil, err
	}

	mb := &wire.MsgMerkleBlock{}
	if err := decodeConsensus("merkle block", raw,
		merkleBlock{mb}); err != nil {

		return nil, err
	}

	return mb, nil
}

// encodeTxHex serializes a transaction to lower case hex.
func encodeTxHex(tx *wire.MsgTx) (string, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return "", fmt.Errorf("unable to serialize tx: %w", err)
	}

	return hex.EncodeToString(buf.Bytes()), nil
}

// jsonDecoder returns a decoder that unmarshals into the wire form W and
// converts it into the domain value T.
func jsonDecoder[W, T any](kind string,
	convert func(*W) (T, error)) decoder[T] {

	return func(body []byte) (T, error) {
		var (
			zero T
			w    W
		)

		// Unmarshal leaves w untouched for a null body, which would
		// turn into an empty list or map below.
		if bytes.Equal(bytes.TrimSpace(body), []byte("null")) {
			return zero, newDecodeError(kind, errNullDocument)
		}
		if err := json.Unmarshal(body, &w); err != nil {
			return zero, newDecodeError(kind, err)
		}

		val, err := convert(&w)
		if err != nil {
			return zero, newDecodeError(kind, err)
		}

		return val, nil
	}
}

// jsonListDecoder decodes a JSON array element by element.
func jsonListDecoder[W, T any](kind string,
	convert func(*W) (T, error)) decoder[[]T] {

	return jsonDecoder(kind, func(ws *[]W) ([]T, error) {
		out := make([]T, 0, len(*ws))
		for i := range *ws {
			val, err := convert(&(*ws)[i])
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out = append(out, val)
		}

		return out, nil
	})
}

// required dereferences a required JSON member.
func required[T any](val *T, name string) (T, error) {
	if val == nil {
		var zero T
		return zero, fmt.Errorf("%w: %s", errMissingField, name)
	}

	return *val, nil
}

// requiredHash parses a required hash member.
func requiredHash(val *string, name string) (chainhash.Hash, error) {
	s, err := required(val, name)
	if err != nil {
		return chainhash.Hash{}, err
	}

	h, err := parseHash(s)
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("%s: %w", name, err)
	}

	return h, nil
}

// optionalHash parses an optional hash member.
func optionalHash(val *string, name string) (fn.Option[chainhash.Hash],
	error) {

	if val == nil {
		return fn.None[chainhash.Hash](), nil
	}

	h, err := parseHash(*val)
	if err != nil {
		return fn.None[chainhash.Hash](), fmt.Errorf("%s: %w", name,
			err)
	}

	return fn.Some(h), nil
}

// requiredHex decodes a required hex member.
func requiredHex(val *string, name string) ([]byte, error) {
	s, err := required(val, name)
	if err != nil {
		return nil, err
	}

	raw, err := parseHex(s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	return raw, nil
}

// requiredSats converts a required satoshi member to an amount.
func requiredSats(val *uint64, name string) (btcutil.Amount, error) {
	sats, err := required(val, name)
	if err != nil {
		return 0, err
	}
	if sats > math.MaxInt64 {
		return 0, fmt.Errorf("%s: amount %d overflows", name, sats)
	}

	return btcutil.Amount(sats), nil
}

// decodeHashList decodes a JSON array of hashes.
var decodeHashList = jsonListDecoder("hash list",
	func(s *string) (chainhash.Hash, error) {
		return parseHash(*s)
	},
)
