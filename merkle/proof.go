// Package merkle verifies Merkle inclusion paths for Bitcoin block
// transaction trees.
package merkle

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// maxPathDepth is the deepest tree a position can address.
const maxPathDepth = 32

var (
	// ErrMismatch is matched by every error returned from Verify when the
	// path does not lead to the expected root.
	ErrMismatch = errors.New("merkle root mismatch")

	// ErrPositionOutOfRange is returned when a proof's position has bits
	// set above the depth of its path, meaning the position could not
	// belong to a tree of that height.
	ErrPositionOutOfRange = errors.New("merkle position out of range")

	// ErrNilProof is returned when no proof is supplied.
	ErrNilProof = errors.New("nil merkle proof")
)

// Proof is an ordered Merkle authentication path for a single leaf.
type Proof struct {
	// BlockHeight is the height of the block whose tree the path
	// belongs to.
	BlockHeight uint32

	// Siblings lists the sibling hashes from the leaf level upwards, in
	// internal byte order.
	Siblings []chainhash.Hash

	// Pos is the index of the leaf within the bottom level of the tree.
	// Bit i selects the side of the running hash at level i.
	Pos uint32
}

// Depth returns the number of levels the path climbs.
func (p *Proof) Depth() int {
	if p == nil {
		return 0
	}

	return len(p.Siblings)
}

// MismatchError details a failed verification.
type MismatchError struct {
	// Computed is the root the path folded to.
	Computed chainhash.Hash

	// Expected is the root the caller supplied.
	Expected chainhash.Hash
}

// Error implements the error interface.
func (e *MismatchError) Error() string {
	return fmt.Sprintf("merkle root mismatch: computed %v, expected %v",
		e.Computed, e.Expected)
}

// Is allows errors.Is(err, ErrMismatch) to match.
func (e *MismatchError) Is(target error) bool {
	return target == ErrMismatch
}

// hashPair returns double-SHA256(left || right).
func hashPair(left, right *chainhash.Hash) chainhash.Hash {
	var buf [chainhash.HashSize * 2]byte
	copy(buf[:chainhash.HashSize], left[:])
	copy(buf[chainhash.HashSize:], right[:])

	return chainhash.DoubleHashH(buf[:])
}

// ComputeRoot folds the leaf up the authentication path and returns the
// resulting root. When the low bit of the remaining position is zero the
// running hash is the left operand, otherwise the sibling is.
func ComputeRoot(leaf chainhash.Hash, proof *Proof) (chainhash.Hash, error) {
	if proof == nil {
		return chainhash.Hash{}, ErrNilProof
	}

	depth := proof.Depth()
	if depth < maxPathDepth && proof.Pos>>uint(depth) != 0 {
		return chainhash.Hash{}, fmt.Errorf("%w: position %d with "+
			"depth %d", ErrPositionOutOfRange, proof.Pos, depth)
	}

	running := leaf
	pos := proof.Pos
	for i := range proof.Siblings {
		sibling := &proof.Siblings[i]
		if pos&1 == 0 {
			running = hashPair(&running, sibling)
		} else {
			running = hashPair(sibling, &running)
		}
		pos >>= 1
	}

	return running, nil
}

// Verify checks that the leaf is committed to by root through the given
// path. A nil error means the path is valid. Any failure matches
// ErrMismatch.
func Verify(leaf chainhash.Hash, proof *Proof, root chainhash.Hash) error {
	computed, err := ComputeRoot(leaf, proof)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMismatch, err)
	}

	if computed != root {
		return &MismatchError{
			Computed: computed,
			Expected: root,
		}
	}

	return nil
}
