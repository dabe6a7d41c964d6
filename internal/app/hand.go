package app

import (
	"fmt"

	abci "github.com/cometbft/cometbft/abci/types"

	"tiltpoker/internal/codec"
	"tiltpoker/internal/merkle"
	"tiltpoker/internal/pokererr"
	"tiltpoker/internal/state"
	"tiltpoker/internal/zkproof"
)

func as32(raw []byte, what string) ([32]byte, error) {
	var out [32]byte
	if len(raw) != 32 {
		return out, fmt.Errorf("%s must be 32 bytes, got %d: %w", what, len(raw), pokererr.ErrPrecondition)
	}
	copy(out[:], raw)
	return out, nil
}

// commitDeck is the non-dealer's move: commit the Merkle root of their
// singly-encrypted deck with an eagerly-verified DeckCreation proof, and
// post the big blind.
func commitDeck(st *state.State, verifier zkproof.Verifier, msg codec.PokerCommitDeckTx, nowUnix int64) ([]abci.Event, error) {
	m, err := loadActiveMatch(st, msg.MatchID)
	if err != nil {
		return nil, err
	}
	h := m.Hand
	if h.Stage != state.StageAwaitingCommit {
		return nil, fmt.Errorf("stage %s: %w", h.Stage, pokererr.ErrPrecondition)
	}
	committer := m.NonDealer()
	if m.PlayerIndex(msg.Player) != committer {
		return nil, fmt.Errorf("deck commitment is the non-dealer's move: %w", pokererr.ErrPrecondition)
	}
	if err := checkOwnDeadline(h.ActionDeadline, nowUnix); err != nil {
		return nil, err
	}
	root, err := as32(msg.Root, "deck root")
	if err != nil {
		return nil, err
	}

	signals := zkproof.Signals{A: root[:], C: m.Keys[committer]}
	if !verifier.Verify(zkproof.DeckCreation, msg.Proof, signals) {
		return nil, fmt.Errorf("deck creation proof rejected: %w", pokererr.ErrProofInvalid)
	}

	h.DeckRoot = root[:]
	posted := betIntoPot(m, committer, m.BigBlind)

	h.Stage = state.StageAwaitingDealer
	setActionDeadline(m, nowUnix)

	return []abci.Event{okEvent("DeckCommitted", map[string]string{
		"matchId":  fmt.Sprintf("%d", m.ID),
		"handId":   fmt.Sprintf("%d", h.HandID),
		"player":   msg.Player,
		"bigBlind": fmt.Sprintf("%d", posted),
	})}, nil
}

// joinHand is the dealer's move: submit the re-encrypted deck commitment,
// the nine board slots with inclusion proofs against the committed root,
// partial reveals for the opponent's pocket, and post the small blind.
// The Reshuffle and Decryption proofs are stored optimistically.
func joinHand(st *state.State, msg codec.PokerJoinHandTx, nowUnix int64) ([]abci.Event, error) {
	m, err := loadActiveMatch(st, msg.MatchID)
	if err != nil {
		return nil, err
	}
	h := m.Hand
	if h.Stage != state.StageAwaitingDealer {
		return nil, fmt.Errorf("stage %s: %w", h.Stage, pokererr.ErrPrecondition)
	}
	dealer := m.DealerIdx
	if m.PlayerIndex(msg.Player) != dealer {
		return nil, fmt.Errorf("joining the hand is the dealer's move: %w", pokererr.ErrPrecondition)
	}
	if err := checkOwnDeadline(h.ActionDeadline, nowUnix); err != nil {
		return nil, err
	}
	newRoot, err := as32(msg.NewRoot, "new deck root")
	if err != nil {
		return nil, err
	}
	oldRoot, err := as32(h.DeckRoot, "stored deck root")
	if err != nil {
		return nil, err
	}

	// Every submitted slot must trace a distinct singly-encrypted card back
	// to the committed deck.
	var board [state.NumSlots][]byte
	var seen [merkle.DeckSize]bool
	for i, slot := range msg.Slots {
		single, err := as32(slot.Single, fmt.Sprintf("slot %d single", i))
		if err != nil {
			return nil, err
		}
		double, err := as32(slot.Double, fmt.Sprintf("slot %d double", i))
		if err != nil {
			return nil, err
		}
		if int(slot.Index) >= merkle.DeckSize {
			return nil, fmt.Errorf("slot %d deck index %d: %w", i, slot.Index, pokererr.ErrPrecondition)
		}
		if seen[slot.Index] {
			return nil, fmt.Errorf("slot %d reuses deck index %d: %w", i, slot.Index, pokererr.ErrPrecondition)
		}
		seen[slot.Index] = true

		proof := merkle.Proof{Index: slot.Index}
		for _, sib := range slot.Siblings {
			s, err := as32(sib, fmt.Sprintf("slot %d sibling", i))
			if err != nil {
				return nil, err
			}
			proof.Siblings = append(proof.Siblings, s)
		}
		if !merkle.Verify(merkle.LeafHash(single), proof, oldRoot) {
			return nil, fmt.Errorf("slot %d inclusion proof: %w", i, pokererr.ErrMerkleMismatch)
		}
		board[i] = double[:]
	}

	// Partial reveals for the opponent's two pocket slots, so they can read
	// their own cards.
	opponent := m.NonDealer()
	pockets := state.PocketSlots(opponent)
	if len(msg.PocketPartials) != 2 {
		return nil, fmt.Errorf("need both opponent pocket partials: %w", pokererr.ErrPrecondition)
	}
	partials := map[uint8][]byte{}
	proofs := map[uint8][]byte{}
	for _, pr := range msg.PocketPartials {
		v, err := as32(pr.Value, fmt.Sprintf("pocket partial slot %d", pr.Slot))
		if err != nil {
			return nil, err
		}
		partials[pr.Slot] = v[:]
		proofs[pr.Slot] = pr.Proof
	}
	for _, slot := range pockets {
		if partials[slot] == nil {
			return nil, fmt.Errorf("missing pocket partial for slot %d: %w", slot, pokererr.ErrPrecondition)
		}
	}

	h.NewDeckRoot = newRoot[:]
	h.Board = board
	for _, slot := range pockets {
		h.Partials[dealer][slot] = partials[slot]
		h.Proofs = append(h.Proofs, state.StoredProof{
			Kind:   string(zkproof.Decryption),
			Slot:   slot,
			Prover: dealer,
			Proof:  proofs[slot],
			Signals: zkproof.Signals{
				A: h.Board[slot],
				B: partials[slot],
				C: m.Keys[dealer],
			},
		})
	}
	h.Proofs = append(h.Proofs, state.StoredProof{
		Kind:   string(zkproof.Reshuffle),
		Slot:   0,
		Prover: dealer,
		Proof:  msg.ReshuffleProof,
		Signals: zkproof.Signals{
			A: oldRoot[:],
			B: newRoot[:],
			C: m.Keys[dealer],
		},
	})

	posted := betIntoPot(m, dealer, m.SmallBlind)

	// Heads-up pre-flop: the small blind (dealer) acts first.
	h.Stage = state.StagePreflopBet
	h.TurnIdx = dealer
	setActionDeadline(m, nowUnix)

	return []abci.Event{okEvent("HandJoined", map[string]string{
		"matchId":    fmt.Sprintf("%d", m.ID),
		"handId":     fmt.Sprintf("%d", h.HandID),
		"player":     msg.Player,
		"smallBlind": fmt.Sprintf("%d", posted),
		"actingOn":   m.Players[h.TurnIdx],
	})}, nil
}
