// Package client implements the off-chain half of the protocol: deck
// preparation and commitment for the non-dealer, re-encryption and board
// selection for the dealer, and reveal construction for both. The chain only
// ever sees the resulting tx payloads.
package client

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"

	"github.com/holiman/uint256"

	"tiltpoker/internal/cipher"
	"tiltpoker/internal/codec"
	"tiltpoker/internal/merkle"
	"tiltpoker/internal/state"
	"tiltpoker/internal/zkproof"
)

// Prover produces the opaque proof bytes the chain stores or verifies. The
// dev implementation is zkproof.TranscriptVerifier; a production client
// plugs a real proving system in.
type Prover interface {
	Prove(kind zkproof.Kind, signals zkproof.Signals) []byte
}

func shuffled(rng io.Reader) ([merkle.DeckSize]uint8, error) {
	var perm [merkle.DeckSize]uint8
	for i := range perm {
		perm[i] = uint8(i)
	}
	for i := merkle.DeckSize - 1; i > 0; i-- {
		j, err := rand.Int(rng, big.NewInt(int64(i+1)))
		if err != nil {
			return perm, fmt.Errorf("client: shuffle: %w", err)
		}
		k := j.Int64()
		perm[i], perm[k] = perm[k], perm[i]
	}
	return perm, nil
}

// Deck is the non-dealer's shuffled, singly-encrypted deck.
type Deck struct {
	Key     *uint256.Int
	Cards   [merkle.DeckSize]uint8 // position -> plaintext card
	Singles [merkle.DeckSize]cipher.Encrypted
	Root    [32]byte
}

// NewDeck shuffles and encrypts a fresh deck under the committer's key.
func NewDeck(key *uint256.Int, rng io.Reader) (*Deck, error) {
	if rng == nil {
		rng = rand.Reader
	}
	perm, err := shuffled(rng)
	if err != nil {
		return nil, err
	}
	d := &Deck{Key: key, Cards: perm}
	var leaves [merkle.DeckSize][32]byte
	for pos, card := range perm {
		ct, err := cipher.Encrypt(card, key)
		if err != nil {
			return nil, err
		}
		d.Singles[pos] = ct
		leaves[pos] = ct
	}
	d.Root = merkle.Root(leaves)
	return d, nil
}

// CommitTx builds the commit_deck payload.
func (d *Deck) CommitTx(matchID uint64, player string, keyPub []byte, p Prover) codec.PokerCommitDeckTx {
	return codec.PokerCommitDeckTx{
		Player:  player,
		MatchID: matchID,
		Root:    d.Root[:],
		Proof:   p.Prove(zkproof.DeckCreation, zkproof.Signals{A: d.Root[:], C: keyPub}),
	}
}

// Join is the dealer's side of a hand: the committed singles re-encrypted
// under the dealer's key, and nine deck positions drawn for the board.
type Join struct {
	Key     *uint256.Int
	Singles [merkle.DeckSize]cipher.Encrypted
	Doubles [merkle.DeckSize]cipher.Encrypted
	NewRoot [32]byte
	Indices [state.NumSlots]uint8 // board slot -> deck position
}

// NewJoin re-encrypts the committed deck and draws the board positions.
func NewJoin(key *uint256.Int, singles [merkle.DeckSize]cipher.Encrypted, rng io.Reader) (*Join, error) {
	if rng == nil {
		rng = rand.Reader
	}
	j := &Join{Key: key, Singles: singles}
	var leaves [merkle.DeckSize][32]byte
	for i, s := range singles {
		j.Doubles[i] = cipher.EncryptLayer(s, key)
		leaves[i] = j.Doubles[i]
	}
	j.NewRoot = merkle.Root(leaves)

	perm, err := shuffled(rng)
	if err != nil {
		return nil, err
	}
	copy(j.Indices[:], perm[:state.NumSlots])
	return j, nil
}

// Tx builds the join_hand payload, with inclusion proofs against the old
// commitment and partial reveals of the opponent's pocket slots.
func (j *Join) Tx(matchID uint64, player string, keyPub []byte, oldRoot [32]byte, opponentIdx int, p Prover) (codec.PokerJoinHandTx, error) {
	var leaves [merkle.DeckSize][32]byte
	for i, s := range j.Singles {
		leaves[i] = s
	}

	msg := codec.PokerJoinHandTx{
		Player:  player,
		MatchID: matchID,
		NewRoot: j.NewRoot[:],
		ReshuffleProof: p.Prove(zkproof.Reshuffle, zkproof.Signals{
			A: oldRoot[:], B: j.NewRoot[:], C: keyPub,
		}),
	}
	for slot, pos := range j.Indices {
		proof, err := merkle.BuildProof(leaves, int(pos))
		if err != nil {
			return msg, err
		}
		sibs := make([][]byte, len(proof.Siblings))
		for i := range proof.Siblings {
			sib := proof.Siblings[i]
			sibs[i] = sib[:]
		}
		msg.Slots[slot] = codec.JoinSlot{
			Single:   j.Singles[pos][:],
			Double:   j.Doubles[pos][:],
			Siblings: sibs,
			Index:    pos,
		}
	}
	for _, slot := range state.PocketSlots(opponentIdx) {
		pr, err := PartialReveal(j.Key, keyPub, j.Doubles[j.Indices[slot]], slot, p)
		if err != nil {
			return msg, err
		}
		msg.PocketPartials = append(msg.PocketPartials, pr)
	}
	return msg, nil
}

// PartialReveal strips the revealer's layer from a stored board cipher and
// attaches the optimistic decryption proof.
func PartialReveal(key *uint256.Int, keyPub []byte, double cipher.Encrypted, slot uint8, p Prover) (codec.PartialReveal, error) {
	partial, err := cipher.StripLayer(double, key)
	if err != nil {
		return codec.PartialReveal{}, err
	}
	return codec.PartialReveal{
		Slot:  slot,
		Value: partial[:],
		Proof: p.Prove(zkproof.Decryption, zkproof.Signals{
			A: double[:], B: partial[:], C: keyPub,
		}),
	}, nil
}

// RevealPlain recovers the plaintext card from the partner's partial reveal
// by stripping one's own remaining layer.
func RevealPlain(partnerPartial []byte, ownKey *uint256.Int) (uint8, error) {
	if len(partnerPartial) != 32 {
		return 0, fmt.Errorf("client: partial must be 32 bytes, got %d", len(partnerPartial))
	}
	var e cipher.Encrypted
	copy(e[:], partnerPartial)
	return cipher.Decrypt(e, ownKey)
}
