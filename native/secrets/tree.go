// Package secrets implements the Merkle commitment scheme used for
// progressive secret disclosure during partial fills. An order split into N
// equal tranches commits to N+1 secret hashes: one per tranche boundary plus
// a dedicated completion secret. Resolvers learn exactly one leaf per fill
// and prove membership against the committed root.
package secrets

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	// ErrNotEnoughLeaves indicates fewer than two leaves (one tranche plus
	// the completion secret) were supplied.
	ErrNotEnoughLeaves = errors.New("secrets: tree needs at least two leaves")
	// ErrLeafOutOfRange indicates a proof request for a leaf the tree does not hold.
	ErrLeafOutOfRange = errors.New("secrets: leaf index out of range")
	// ErrZeroTotal indicates a fill-index computation against a zero order size.
	ErrZeroTotal = errors.New("secrets: total size must be positive")
)

// HashSecret derives the leaf commitment (and escrow hashlock) for a secret.
// SHA-256 is used for preimage commitments so the same hashlock verifies on
// chains without a keccak primitive; interior Merkle nodes use keccak256.
func HashSecret(secret []byte) [32]byte {
	return sha256.Sum256(secret)
}

// VerifySecret reports whether the secret opens the given commitment.
func VerifySecret(secret []byte, commitment [32]byte) bool {
	return HashSecret(secret) == commitment
}

// Tree is an immutable Merkle tree over N+1 secret commitments. Interior
// nodes are built with sorted-pair keccak256: the lexicographically smaller
// child is hashed first, so verification needs no left/right direction bits.
// An odd node at any level is promoted unhashed.
type Tree struct {
	leaves [][32]byte
	levels [][][32]byte
	root   [32]byte
}

// NewTree builds the tree over the supplied leaf commitments. The leaf order
// is significant: leaf i opens tranche boundary i, and the final leaf is the
// completion secret.
func NewTree(leaves [][32]byte) (*Tree, error) {
	if len(leaves) < 2 {
		return nil, ErrNotEnoughLeaves
	}
	t := &Tree{leaves: append([][32]byte(nil), leaves...)}
	level := t.leaves
	t.levels = append(t.levels, level)
	for len(level) > 1 {
		next := make([][32]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			next = append(next, hashPair(level[i], level[i+1]))
		}
		t.levels = append(t.levels, next)
		level = next
	}
	t.root = level[0]
	return t, nil
}

// Root returns the committed Merkle root.
func (t *Tree) Root() [32]byte { return t.root }

// Parts returns the number of equal tranches the order is split into.
func (t *Tree) Parts() uint32 { return uint32(len(t.leaves) - 1) }

// Leaf returns the commitment stored at the given index.
func (t *Tree) Leaf(index uint32) ([32]byte, error) {
	if int(index) >= len(t.leaves) {
		return [32]byte{}, ErrLeafOutOfRange
	}
	return t.leaves[index], nil
}

// Proof is a membership proof for a single leaf. Path holds sibling hashes
// from the leaf level upward; promoted odd nodes contribute no sibling.
type Proof struct {
	Index uint32
	Leaf  [32]byte
	Path  [][32]byte
}

// Proof produces the membership proof for the leaf at index.
func (t *Tree) Proof(index uint32) (*Proof, error) {
	if int(index) >= len(t.leaves) {
		return nil, ErrLeafOutOfRange
	}
	proof := &Proof{Index: index, Leaf: t.leaves[index]}
	pos := int(index)
	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := pos ^ 1
		if sibling < len(level) {
			proof.Path = append(proof.Path, level[sibling])
		}
		pos /= 2
	}
	return proof, nil
}

// VerifyProof checks a membership proof against a committed root.
func VerifyProof(root [32]byte, proof *Proof) bool {
	if proof == nil {
		return false
	}
	node := proof.Leaf
	for _, sibling := range proof.Path {
		node = hashPair(node, sibling)
	}
	return node == root
}

func hashPair(a, b [32]byte) [32]byte {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return [32]byte(ethcrypto.Keccak256Hash(a[:], b[:]))
}

// IndexForFill maps a cumulative fill boundary to the leaf that must be
// revealed. A fill reaching cumulative amount `filled` out of `total`, with
// the order split into `parts` tranches, selects
// floor(filled*parts/total) with exact boundaries resolving to the lower
// index, so a fill is never justified by a secret further along than the
// tranche it actually completes. A fill that exactly completes the order
// always selects the dedicated completion leaf `parts`.
func IndexForFill(filled, total *big.Int, parts uint32) (uint32, error) {
	if total == nil || total.Sign() <= 0 {
		return 0, ErrZeroTotal
	}
	if parts == 0 {
		return 0, fmt.Errorf("secrets: parts must be positive")
	}
	if filled == nil || filled.Sign() <= 0 {
		return 0, nil
	}
	if filled.Cmp(total) >= 0 {
		return parts, nil
	}
	// (filled*parts - 1) / total: floor division with exact multiples pulled
	// back to the lower index.
	num := new(big.Int).Mul(filled, big.NewInt(int64(parts)))
	num.Sub(num, big.NewInt(1))
	num.Div(num, total)
	idx := num.Uint64()
	if idx > uint64(parts) {
		idx = uint64(parts)
	}
	return uint32(idx), nil
}
