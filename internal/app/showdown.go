package app

import (
	"fmt"

	abci "github.com/cometbft/cometbft/abci/types"

	"tiltpoker/internal/codec"
	"tiltpoker/internal/holdem"
	"tiltpoker/internal/pokererr"
	"tiltpoker/internal/state"
)

// resolveHand runs the evaluator once both pockets and the full board are
// public, and pays the pot out.
func resolveHand(st *state.State, msg codec.PokerResolveHandTx) ([]abci.Event, error) {
	m, err := loadActiveMatch(st, msg.MatchID)
	if err != nil {
		return nil, err
	}
	h := m.Hand
	if m.PlayerIndex(msg.Caller) < 0 {
		return nil, fmt.Errorf("%s is not seated: %w", msg.Caller, pokererr.ErrPrecondition)
	}
	if h.Stage != state.StageShowdown2 || h.RevealTurn != -1 {
		return nil, fmt.Errorf("showdown reveals incomplete: %w", pokererr.ErrPrecondition)
	}
	if !h.CommunityRevealed() || !h.PocketsRevealed(0) || !h.PocketsRevealed(1) {
		return nil, fmt.Errorf("board or pockets unrevealed: %w", pokererr.ErrPrecondition)
	}

	var scores [2]uint32
	for i := 0; i < 2; i++ {
		pockets := state.PocketSlots(i)
		cards := [7]uint8{
			h.Plain[pockets[0]], h.Plain[pockets[1]],
			h.Plain[4], h.Plain[5], h.Plain[6], h.Plain[7], h.Plain[8],
		}
		s, err := holdem.Score7(cards)
		if err != nil {
			return nil, fmt.Errorf("score player %d: %w", i, err)
		}
		scores[i] = s
	}

	var events []abci.Event
	switch {
	case scores[0] > scores[1]:
		events = settleWin(st, m, 0, "showdown")
	case scores[1] > scores[0]:
		events = settleWin(st, m, 1, "showdown")
	default:
		events = settleSplit(st, m, scores)
	}
	if h.Result != nil {
		h.Result.Scores = scores
	}

	return append([]abci.Event{okEvent("ShowdownScored", map[string]string{
		"matchId": fmt.Sprintf("%d", m.ID),
		"handId":  fmt.Sprintf("%d", h.HandID),
		"score0":  fmt.Sprintf("%d", scores[0]),
		"score1":  fmt.Sprintf("%d", scores[1]),
		"rank0":   holdem.CategoryOf(scores[0]).String(),
		"rank1":   holdem.CategoryOf(scores[1]).String(),
	})}, events...), nil
}
