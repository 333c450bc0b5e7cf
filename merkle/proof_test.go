package merkle

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// genesisCoinbaseHex is the serialized coinbase transaction of the mainnet
// genesis block.
const genesisCoinbaseHex = "01000000010000000000000000000000000000000000" +
	"000000000000000000000000000000ffffffff4d04ffff001d0104455468652054" +
	"696d65732030332f4a616e2f32303039204368616e63656c6c6f72206f6e206272" +
	"696e6b206f66207365636f6e64206261696c6f757420666f722062616e6b73ffff" +
	"ffff0100f2052a01000000434104678afdb0fe5548271967f1a67130b7105cd6a8" +
	"28e03909a67962e0ea1f61deb649f6bc3f4cef38c4f35504e51ec112de5c384df7" +
	"ba0b8d578a4c702b6bf11d5fac00000000"

// buildTree returns every level of the Bitcoin style tree over the given
// leaves, bottom level first. Odd levels pair their last node with itself.
func buildTree(leaves []chainhash.Hash) [][]chainhash.Hash {
	levels := [][]chainhash.Hash{leaves}
	for level := leaves; len(level) > 1; {
		next := make([]chainhash.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left, right := level[i], level[i]
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, hashPair(&left, &right))
		}
		levels = append(levels, next)
		level = next
	}

	return levels
}

// extractProof returns the authentication path of the leaf at idx.
func extractProof(levels [][]chainhash.Hash, idx uint32) *Proof {
	proof := &Proof{Pos: idx}
	for _, level := range levels[:len(levels)-1] {
		sibling := idx ^ 1
		if int(sibling) >= len(level) {
			sibling = idx
		}
		proof.Siblings = append(proof.Siblings, level[sibling])
		idx >>= 1
	}

	return proof
}

// rootOf returns the root of the tree built by buildTree.
func rootOf(levels [][]chainhash.Hash) chainhash.Hash {
	return levels[len(levels)-1][0]
}

// runningHashes returns the running hash at the start of every level of the
// path, so tests can tell which levels pair a node with itself.
func runningHashes(leaf chainhash.Hash, proof *Proof) []chainhash.Hash {
	hashes := make([]chainhash.Hash, 0, len(proof.Siblings))
	running := leaf
	pos := proof.Pos
	for i := range proof.Siblings {
		hashes = append(hashes, running)
		if pos&1 == 0 {
			running = hashPair(&running, &proof.Siblings[i])
		} else {
			running = hashPair(&proof.Siblings[i], &running)
		}
		pos >>= 1
	}

	return hashes
}

func drawLeaves(t *rapid.T, minLeaves int) []chainhash.Hash {
	raw := rapid.SliceOfNDistinct(
		rapid.SliceOfN(rapid.Byte(), chainhash.HashSize,
			chainhash.HashSize),
		minLeaves, 64, func(b []byte) string { return string(b) },
	).Draw(t, "leaves")

	leaves := make([]chainhash.Hash, len(raw))
	for i := range raw {
		copy(leaves[i][:], raw[i])
	}

	return leaves
}

// TestVerifyValidPaths asserts that every path extracted from a synthetic
// tree verifies against that tree's root.
func TestVerifyValidPaths(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		leaves := drawLeaves(t, 1)
		idx := rapid.Uint32Range(0, uint32(len(leaves)-1)).Draw(
			t, "idx",
		)

		levels := buildTree(leaves)
		proof := extractProof(levels, idx)

		err := Verify(leaves[idx], proof, rootOf(levels))
		if err != nil {
			t.Fatalf("valid path rejected: %v", err)
		}
	})
}

// TestVerifyFlippedSibling asserts that corrupting any single sibling makes
// verification fail.
func TestVerifyFlippedSibling(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		leaves := drawLeaves(t, 2)
		idx := rapid.Uint32Range(0, uint32(len(leaves)-1)).Draw(
			t, "idx",
		)

		levels := buildTree(leaves)
		proof := extractProof(levels, idx)

		level := rapid.IntRange(0, proof.Depth()-1).Draw(t, "level")
		byteIdx := rapid.IntRange(0, chainhash.HashSize-1).Draw(
			t, "byte",
		)
		bit := rapid.IntRange(0, 7).Draw(t, "bit")
		proof.Siblings[level][byteIdx] ^= 1 << bit

		err := Verify(leaves[idx], proof, rootOf(levels))
		if !errors.Is(err, ErrMismatch) {
			t.Fatalf("expected mismatch, got %v", err)
		}
	})
}

// TestVerifyFlippedPosition asserts that flipping a position bit makes
// verification fail at every level where the sibling differs from the
// running hash. Levels that pair a node with itself are insensitive to the
// side and are skipped.
func TestVerifyFlippedPosition(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		leaves := drawLeaves(t, 2)
		idx := rapid.Uint32Range(0, uint32(len(leaves)-1)).Draw(
			t, "idx",
		)

		levels := buildTree(leaves)
		proof := extractProof(levels, idx)
		running := runningHashes(leaves[idx], proof)

		level := rapid.IntRange(0, proof.Depth()-1).Draw(t, "level")
		if running[level] == proof.Siblings[level] {
			t.Skip("node paired with itself")
		}
		proof.Pos ^= 1 << uint(level)

		err := Verify(leaves[idx], proof, rootOf(levels))
		if !errors.Is(err, ErrMismatch) {
			t.Fatalf("expected mismatch, got %v", err)
		}
	})
}

// TestVerifyPositionOutOfRange asserts that a position addressing a leaf
// beyond the path depth is rejected.
func TestVerifyPositionOutOfRange(t *testing.T) {
	t.Parallel()

	leaf := chainhash.Hash{0x01}
	proof := &Proof{
		Siblings: []chainhash.Hash{{0x02}, {0x03}},
		Pos:      0b100,
	}

	_, err := ComputeRoot(leaf, proof)
	require.ErrorIs(t, err, ErrPositionOutOfRange)

	err = Verify(leaf, proof, chainhash.Hash{})
	require.ErrorIs(t, err, ErrMismatch)
	require.ErrorIs(t, err, ErrPositionOutOfRange)
}

// TestVerifyNilProof asserts that a missing proof is an error rather than a
// panic.
func TestVerifyNilProof(t *testing.T) {
	t.Parallel()

	var proof *Proof
	require.Zero(t, proof.Depth())

	_, err := ComputeRoot(chainhash.Hash{0x01}, proof)
	require.ErrorIs(t, err, ErrNilProof)

	err = Verify(chainhash.Hash{0x01}, proof, chainhash.Hash{})
	require.ErrorIs(t, err, ErrMismatch)
	require.ErrorIs(t, err, ErrNilProof)
}

// TestVerifyTwoLevelPath folds a two sibling path at position 0b10 by hand
// and checks Verify agrees.
func TestVerifyTwoLevelPath(t *testing.T) {
	t.Parallel()

	txid := chainhash.DoubleHashH([]byte("tx"))
	a := chainhash.DoubleHashH([]byte("a"))
	b := chainhash.DoubleHashH([]byte("b"))

	// Bit 0 is clear so the running hash is on the left, bit 1 is set so
	// the sibling B is on the left.
	var buf bytes.Buffer
	buf.Write(txid[:])
	buf.Write(a[:])
	inner := chainhash.DoubleHashH(buf.Bytes())

	buf.Reset()
	buf.Write(b[:])
	buf.Write(inner[:])
	root := chainhash.DoubleHashH(buf.Bytes())

	proof := &Proof{
		Siblings: []chainhash.Hash{a, b},
		Pos:      0b10,
	}
	require.NoError(t, Verify(txid, proof, root))

	var mismatch *MismatchError
	err := Verify(txid, proof, inner)
	require.ErrorAs(t, err, &mismatch)
	require.Equal(t, root, mismatch.Computed)
	require.Equal(t, inner, mismatch.Expected)
}

// TestComputeRootMatchesBlockchain cross checks the side convention against
// btcd's block merkle tree construction, which is what consensus uses.
func TestComputeRootMatchesBlockchain(t *testing.T) {
	t.Parallel()

	for numTxs := 1; numTxs <= 17; numTxs++ {
		txs := make([]*btcutil.Tx, 0, numTxs)
		leaves := make([]chainhash.Hash, 0, numTxs)
		for i := 0; i < numTxs; i++ {
			tx := wire.NewMsgTx(wire.TxVersion)
			tx.AddTxIn(&wire.TxIn{
				PreviousOutPoint: wire.OutPoint{
					Index: uint32(i),
				},
			})
			tx.AddTxOut(&wire.TxOut{Value: int64(i)})

			txs = append(txs, btcutil.NewTx(tx))
			leaves = append(leaves, tx.TxHash())
		}

		store := blockchain.BuildMerkleTreeStore(txs, false)
		root := *store[len(store)-1]

		levels := buildTree(leaves)
		require.Equal(t, root, rootOf(levels))

		for idx := range leaves {
			proof := extractProof(levels, uint32(idx))
			require.NoError(
				t, Verify(leaves[idx], proof, root),
				"tx %d of %d", idx, numTxs,
			)
		}
	}
}

// TestVerifyGenesis verifies the single transaction of the mainnet genesis
// block against the merkle root committed in its header.
func TestVerifyGenesis(t *testing.T) {
	t.Parallel()

	raw, err := hex.DecodeString(genesisCoinbaseHex)
	require.NoError(t, err)

	var tx wire.MsgTx
	require.NoError(t, tx.Deserialize(bytes.NewReader(raw)))

	genesis := chaincfg.MainNetParams.GenesisBlock
	proof := &Proof{}
	require.NoError(t, Verify(
		tx.TxHash(), proof, genesis.Header.MerkleRoot,
	))

	// The leaf on its own is the root, so any other root must mismatch.
	err = Verify(tx.TxHash(), proof, genesis.Header.PrevBlock)
	require.ErrorIs(t, err, ErrMismatch)
}
