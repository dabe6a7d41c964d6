package merkle

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func randomDeck(seed int64) [DeckSize][32]byte {
	r := rand.New(rand.NewSource(seed))
	var deck [DeckSize][32]byte
	for i := range deck {
		r.Read(deck[i][:])
	}
	return deck
}

func TestProofVerifiesEveryIndex(t *testing.T) {
	deck := randomDeck(1)
	root := Root(deck)
	for i := 0; i < DeckSize; i++ {
		p, err := BuildProof(deck, i)
		require.NoError(t, err)
		require.True(t, Verify(LeafHash(deck[i]), p, root), "index %d", i)
	}
}

func TestPerturbationFalsifies(t *testing.T) {
	deck := randomDeck(2)
	root := Root(deck)

	for _, idx := range []int{0, 1, 25, 50, 51} {
		p, err := BuildProof(deck, idx)
		require.NoError(t, err)

		// Flip one byte of the leaf.
		card := deck[idx]
		card[7] ^= 0x01
		require.False(t, Verify(LeafHash(card), p, root), "leaf perturbation, index %d", idx)

		// Flip one byte of each sibling in turn.
		for s := range p.Siblings {
			bad := p
			bad.Siblings = make([][32]byte, len(p.Siblings))
			copy(bad.Siblings, p.Siblings)
			bad.Siblings[s][13] ^= 0x80
			require.False(t, Verify(LeafHash(deck[idx]), bad, root), "sibling %d, index %d", s, idx)
		}

		// Flip one byte of the root.
		badRoot := root
		badRoot[0] ^= 0xff
		require.False(t, Verify(LeafHash(deck[idx]), p, badRoot))
	}
}

func TestWrongIndexFails(t *testing.T) {
	deck := randomDeck(3)
	root := Root(deck)
	p, err := BuildProof(deck, 4)
	require.NoError(t, err)
	p.Index = 5
	require.False(t, Verify(LeafHash(deck[4]), p, root))
}

func TestProofLengths(t *testing.T) {
	// Level sizes run 52, 26, 13, 7, 4, 2, 1. The last node of the odd
	// levels (13 and 7) is promoted, so the rightmost leaves shed siblings.
	deck := randomDeck(4)

	p0, err := BuildProof(deck, 0)
	require.NoError(t, err)
	require.Len(t, p0.Siblings, 6)

	p51, err := BuildProof(deck, 51)
	require.NoError(t, err)
	require.Len(t, p51.Siblings, 4)

	_, err = BuildProof(deck, 52)
	require.Error(t, err)
}

func TestTrailingSiblingRejected(t *testing.T) {
	deck := randomDeck(5)
	root := Root(deck)
	p, err := BuildProof(deck, 51)
	require.NoError(t, err)
	p.Siblings = append(p.Siblings, [32]byte{1})
	require.False(t, Verify(LeafHash(deck[51]), p, root))
}

// TestOddNodePromotionHandComputed pins the promotion rule by folding the
// rightmost leaf's path to the root by hand. Level sizes run
// 52 -> 26 -> 13 -> 7 -> 4 -> 2 -> 1, so position 51 pairs at the first two
// levels, is promoted unchanged through the odd levels 13 and 7, and pairs
// again at 4 and 2.
func TestOddNodePromotionHandComputed(t *testing.T) {
	deck := randomDeck(7)

	leaves := make([][32]byte, DeckSize)
	for i := range deck {
		leaves[i] = LeafHash(deck[i])
	}

	// Level 52 -> 26: position 51 hashes with sibling 50.
	n26 := keccak256(leaves[50][:], leaves[51][:])
	// Level 26 -> 13: position 25 hashes with sibling 24.
	sib24 := keccak256(leaves[48][:], leaves[49][:])
	n13 := keccak256(sib24[:], n26[:])
	// Levels 13 -> 7 and 7 -> 4: position 12 then 6 are the unpaired last
	// nodes of odd levels, promoted unchanged.
	n7 := n13
	n4 := n7

	// The left siblings at levels 4 and 2 come from BuildProof; the two
	// promotion levels must have contributed no siblings at all.
	p, err := BuildProof(deck, 51)
	require.NoError(t, err)
	require.Len(t, p.Siblings, 4)
	require.Equal(t, leaves[50], p.Siblings[0])
	require.Equal(t, sib24, p.Siblings[1])

	n2 := keccak256(p.Siblings[2][:], n4[:])
	root := keccak256(p.Siblings[3][:], n2[:])
	require.Equal(t, Root(deck), root)
}

func TestRootDeterministic(t *testing.T) {
	deck := randomDeck(6)
	require.Equal(t, Root(deck), Root(deck))
	other := deck
	other[31][0] ^= 1
	require.NotEqual(t, Root(deck), Root(other))
}
