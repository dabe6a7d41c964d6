package app

import (
	"bytes"
	"fmt"

	abci "github.com/cometbft/cometbft/abci/types"
	"github.com/holiman/uint256"

	"tiltpoker/internal/cipher"
	"tiltpoker/internal/codec"
	"tiltpoker/internal/pokererr"
	"tiltpoker/internal/state"
	"tiltpoker/internal/zkproof"
)

// storePartials records one player's layer-stripped values for the current
// reveal stage's slots, with their optimistic Decryption proofs.
func storePartials(m *state.Match, revealer int, partials []codec.PartialReveal) error {
	h := m.Hand
	slots := h.Stage.RevealSlots()
	if len(slots) == 0 {
		return fmt.Errorf("stage %s has no reveal slots: %w", h.Stage, pokererr.ErrPrecondition)
	}
	bySlot := map[uint8]codec.PartialReveal{}
	for _, pr := range partials {
		bySlot[pr.Slot] = pr
	}
	if len(bySlot) != len(slots) {
		return fmt.Errorf("expected partials for %d slots, got %d: %w",
			len(slots), len(bySlot), pokererr.ErrPrecondition)
	}
	for _, slot := range slots {
		pr, ok := bySlot[slot]
		if !ok {
			return fmt.Errorf("missing partial for slot %d: %w", slot, pokererr.ErrPrecondition)
		}
		v, err := as32(pr.Value, fmt.Sprintf("partial slot %d", slot))
		if err != nil {
			return err
		}
		h.Partials[revealer][slot] = v[:]
		h.Proofs = append(h.Proofs, state.StoredProof{
			Kind:   string(zkproof.Decryption),
			Slot:   slot,
			Prover: revealer,
			Proof:  pr.Proof,
			Signals: zkproof.Signals{
				A: h.Board[slot],
				B: v[:],
				C: m.Keys[revealer],
			},
		})
	}
	return nil
}

// coherent reports whether a claimed plaintext re-encrypts under both
// committed keys to the stored board cipher. Key order is irrelevant by
// commutativity.
func coherent(m *state.Match, slot uint8, card uint8) (bool, error) {
	if card > 51 {
		return false, nil
	}
	k0 := new(uint256.Int).SetBytes(m.Keys[0])
	k1 := new(uint256.Int).SetBytes(m.Keys[1])
	once, err := cipher.Encrypt(card, k0)
	if err != nil {
		return false, err
	}
	twice := cipher.EncryptLayer(once, k1)
	return bytes.Equal(twice[:], m.Hand.Board[slot]), nil
}

// checkPlaintexts verifies the second revealer's claimed cards. Any
// incoherent claim forfeits the hand for the revealer on the spot.
func checkPlaintexts(st *state.State, m *state.Match, revealer int, claims map[uint8]uint8) ([]abci.Event, bool, error) {
	h := m.Hand
	for slot, card := range claims {
		ok, err := coherent(m, slot, card)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			events := []abci.Event{okEvent("CoherenceFailure", map[string]string{
				"matchId": fmt.Sprintf("%d", m.ID),
				"handId":  fmt.Sprintf("%d", h.HandID),
				"player":  m.Players[revealer],
				"slot":    fmt.Sprintf("%d", slot),
				"claimed": fmt.Sprintf("%d", card),
			})}
			events = append(events, settleWin(st, m, state.Other(revealer), "coherence")...)
			return events, false, nil
		}
	}
	for slot, card := range claims {
		h.Plain[slot] = card
		h.PlainSet[slot] = true
	}
	return nil, true, nil
}

// revealShare advances a community reveal stage: partials only from the
// first revealer, partials plus plaintexts from the second.
func revealShare(st *state.State, msg codec.PokerRevealShareTx, nowUnix int64) ([]abci.Event, error) {
	m, err := loadActiveMatch(st, msg.MatchID)
	if err != nil {
		return nil, err
	}
	h := m.Hand
	if !h.Stage.IsCommunityReveal() {
		return nil, fmt.Errorf("stage %s is not a reveal stage: %w", h.Stage, pokererr.ErrPrecondition)
	}
	actor := m.PlayerIndex(msg.Player)
	if actor < 0 || h.RevealTurn != actor {
		return nil, fmt.Errorf("not %s's reveal: %w", msg.Player, pokererr.ErrPrecondition)
	}
	if err := checkOwnDeadline(h.RevealDeadline, nowUnix); err != nil {
		return nil, err
	}

	slots := h.Stage.RevealSlots()
	firstStep := h.Stage == state.StageFlopReveal1 ||
		h.Stage == state.StageTurnReveal1 ||
		h.Stage == state.StageRiverReveal1

	if err := storePartials(m, actor, msg.Partials); err != nil {
		return nil, err
	}

	if firstStep {
		if len(msg.Plaintexts) != 0 {
			return nil, fmt.Errorf("first revealer submits no plaintexts: %w", pokererr.ErrPrecondition)
		}
		h.Stage = revealStep2(h.Stage)
		h.RevealTurn = state.Other(actor)
		setRevealDeadline(m, nowUnix)
		return []abci.Event{stageEvent(m)}, nil
	}

	claims := map[uint8]uint8{}
	for _, pt := range msg.Plaintexts {
		claims[pt.Slot] = pt.Card
	}
	if len(claims) != len(slots) {
		return nil, fmt.Errorf("expected plaintexts for %d slots: %w", len(slots), pokererr.ErrPrecondition)
	}
	for _, slot := range slots {
		if _, ok := claims[slot]; !ok {
			return nil, fmt.Errorf("missing plaintext for slot %d: %w", slot, pokererr.ErrPrecondition)
		}
	}

	forfeitEvents, ok, err := checkPlaintexts(st, m, actor, claims)
	if err != nil {
		return nil, err
	}
	if !ok {
		return forfeitEvents, nil
	}

	events := []abci.Event{revealedEvent(m, slots)}
	events = append(events, advanceAfterReveal(m, nowUnix)...)
	return events, nil
}

// advanceAfterReveal moves from a completed community reveal to the next
// betting round, or straight onward when a player is all-in.
func advanceAfterReveal(m *state.Match, nowUnix int64) []abci.Event {
	h := m.Hand
	runout := h.AnyAllIn()

	switch h.Stage {
	case state.StageFlopReveal2:
		if runout {
			h.Stage = state.StageTurnReveal1
			h.RevealTurn = m.DealerIdx
			setRevealDeadline(m, nowUnix)
		} else {
			h.Stage = state.StageFlopBet
			startBettingRound(m, nowUnix)
		}
	case state.StageTurnReveal2:
		if runout {
			h.Stage = state.StageRiverReveal1
			h.RevealTurn = m.DealerIdx
			setRevealDeadline(m, nowUnix)
		} else {
			h.Stage = state.StageTurnBet
			startBettingRound(m, nowUnix)
		}
	case state.StageRiverReveal2:
		if runout {
			h.Stage = state.StageShowdown1
			h.RevealTurn = m.NonDealer()
			setRevealDeadline(m, nowUnix)
		} else {
			h.Stage = state.StageRiverBet
			startBettingRound(m, nowUnix)
		}
	}
	return []abci.Event{stageEvent(m)}
}

// startBettingRound opens a post-flop street: the non-dealer acts first.
func startBettingRound(m *state.Match, nowUnix int64) {
	h := m.Hand
	h.Bets = [2]uint64{}
	h.Acted = [2]bool{}
	h.RevealTurn = -1
	h.TurnIdx = m.NonDealer()
	setActionDeadline(m, nowUnix)
}

// showdownReveal checks and records one player's own pocket plaintexts.
func showdownReveal(st *state.State, msg codec.PokerShowdownRevealTx, nowUnix int64) ([]abci.Event, error) {
	m, err := loadActiveMatch(st, msg.MatchID)
	if err != nil {
		return nil, err
	}
	h := m.Hand
	if !h.Stage.IsShowdown() {
		return nil, fmt.Errorf("stage %s is not showdown: %w", h.Stage, pokererr.ErrPrecondition)
	}
	actor := m.PlayerIndex(msg.Player)
	if actor < 0 || h.RevealTurn != actor {
		return nil, fmt.Errorf("not %s's reveal: %w", msg.Player, pokererr.ErrPrecondition)
	}
	if err := checkOwnDeadline(h.RevealDeadline, nowUnix); err != nil {
		return nil, err
	}

	pockets := state.PocketSlots(actor)
	claims := map[uint8]uint8{}
	for _, c := range msg.Cards {
		claims[c.Slot] = c.Card
	}
	if len(claims) != 2 {
		return nil, fmt.Errorf("expected both pocket slots: %w", pokererr.ErrPrecondition)
	}
	for _, slot := range pockets {
		if _, ok := claims[slot]; !ok {
			return nil, fmt.Errorf("missing pocket slot %d: %w", slot, pokererr.ErrPrecondition)
		}
	}

	// Optional partial reveals travel with their optimistic proofs.
	for _, pr := range msg.Partials {
		if int(pr.Slot) >= state.NumSlots {
			return nil, fmt.Errorf("partial slot %d: %w", pr.Slot, pokererr.ErrPrecondition)
		}
		v, err := as32(pr.Value, fmt.Sprintf("partial slot %d", pr.Slot))
		if err != nil {
			return nil, err
		}
		h.Partials[actor][pr.Slot] = v[:]
		h.Proofs = append(h.Proofs, state.StoredProof{
			Kind:   string(zkproof.Decryption),
			Slot:   pr.Slot,
			Prover: actor,
			Proof:  pr.Proof,
			Signals: zkproof.Signals{
				A: h.Board[pr.Slot],
				B: v[:],
				C: m.Keys[actor],
			},
		})
	}

	forfeitEvents, ok, err := checkPlaintexts(st, m, actor, claims)
	if err != nil {
		return nil, err
	}
	if !ok {
		return forfeitEvents, nil
	}

	events := []abci.Event{okEvent("ShowdownRevealed", map[string]string{
		"matchId": fmt.Sprintf("%d", m.ID),
		"handId":  fmt.Sprintf("%d", h.HandID),
		"player":  msg.Player,
		"card0":   fmt.Sprintf("%d", claims[pockets[0]]),
		"card1":   fmt.Sprintf("%d", claims[pockets[1]]),
	})}

	if h.Stage == state.StageShowdown1 {
		h.Stage = state.StageShowdown2
		h.RevealTurn = state.Other(actor)
		setRevealDeadline(m, nowUnix)
	} else {
		// Both pockets are public; resolve_hand is now permissionless.
		h.RevealTurn = -1
		clearDeadlines(h)
	}
	events = append(events, stageEvent(m))
	return events, nil
}

func revealedEvent(m *state.Match, slots []uint8) abci.Event {
	h := m.Hand
	attrs := map[string]string{
		"matchId": fmt.Sprintf("%d", m.ID),
		"handId":  fmt.Sprintf("%d", h.HandID),
	}
	for _, slot := range slots {
		attrs[fmt.Sprintf("slot%d", slot)] = fmt.Sprintf("%d", h.Plain[slot])
	}
	return okEvent("ShareRevealed", attrs)
}
