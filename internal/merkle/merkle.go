// Package merkle builds the binary Keccak-256 commitment over the 52-card
// encrypted deck. Leaves hash the 32-byte big-endian cipher value; internal
// nodes hash the 64-byte concatenation of their children. An unpaired node at
// any level is promoted unchanged to the next level; root, proof and verify
// all apply the same rule.
package merkle

import (
	"fmt"

	"golang.org/x/crypto/sha3"

	"tiltpoker/internal/pokererr"
)

// DeckSize is the fixed leaf count for deck commitments.
const DeckSize = 52

// Proof is an inclusion path from a leaf to the root. Siblings are ordered
// leaf-to-root; levels where the node was promoted contribute no sibling.
type Proof struct {
	Siblings [][32]byte `json:"siblings"`
	Index    uint8      `json:"index"`
}

func keccak256(chunks ...[]byte) [32]byte {
	h := sha3.NewLegacyKeccak256()
	for _, c := range chunks {
		h.Write(c)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// LeafHash hashes a 32-byte encrypted card into its leaf.
func LeafHash(card [32]byte) [32]byte {
	return keccak256(card[:])
}

func hashLevel(nodes [][32]byte) [][32]byte {
	next := make([][32]byte, 0, (len(nodes)+1)/2)
	for i := 0; i+1 < len(nodes); i += 2 {
		next = append(next, keccak256(nodes[i][:], nodes[i+1][:]))
	}
	if len(nodes)%2 == 1 {
		next = append(next, nodes[len(nodes)-1])
	}
	return next
}

// Root computes the commitment root over the 52 encrypted cards.
func Root(cards [DeckSize][32]byte) [32]byte {
	nodes := make([][32]byte, DeckSize)
	for i, c := range cards {
		nodes[i] = LeafHash(c)
	}
	for len(nodes) > 1 {
		nodes = hashLevel(nodes)
	}
	return nodes[0]
}

// BuildProof returns the inclusion proof for the card at index.
func BuildProof(cards [DeckSize][32]byte, index int) (Proof, error) {
	if index < 0 || index >= DeckSize {
		return Proof{}, fmt.Errorf("merkle: index %d out of range: %w", index, pokererr.ErrPrecondition)
	}
	nodes := make([][32]byte, DeckSize)
	for i, c := range cards {
		nodes[i] = LeafHash(c)
	}
	p := Proof{Index: uint8(index)}
	pos := index
	for len(nodes) > 1 {
		if pos == len(nodes)-1 && len(nodes)%2 == 1 {
			// Promoted: no sibling at this level.
		} else {
			sib := pos ^ 1
			p.Siblings = append(p.Siblings, nodes[sib])
		}
		nodes = hashLevel(nodes)
		pos /= 2
	}
	return p, nil
}

// Verify replays the path for a deck-sized tree and compares against root.
func Verify(leaf [32]byte, p Proof, root [32]byte) bool {
	cur := leaf
	pos := int(p.Index)
	size := DeckSize
	used := 0
	if pos >= size {
		return false
	}
	for size > 1 {
		if pos == size-1 && size%2 == 1 {
			// Promoted unchanged.
		} else {
			if used >= len(p.Siblings) {
				return false
			}
			sib := p.Siblings[used]
			used++
			if pos%2 == 0 {
				cur = keccak256(cur[:], sib[:])
			} else {
				cur = keccak256(sib[:], cur[:])
			}
		}
		pos /= 2
		size = (size + 1) / 2
	}
	return used == len(p.Siblings) && cur == root
}
