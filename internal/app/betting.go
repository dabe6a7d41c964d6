package app

import (
	"fmt"

	abci "github.com/cometbft/cometbft/abci/types"

	"tiltpoker/internal/codec"
	"tiltpoker/internal/pokererr"
	"tiltpoker/internal/state"
)

// playerAction applies one betting half-move. A move that closes the round
// advances the stage; when the next stage is a community reveal the closing
// action must carry the actor's first-revealer bundle.
func playerAction(st *state.State, msg codec.PokerActionTx, nowUnix int64) ([]abci.Event, error) {
	m, err := loadActiveMatch(st, msg.MatchID)
	if err != nil {
		return nil, err
	}
	h := m.Hand
	if !h.Stage.IsBet() {
		return nil, fmt.Errorf("stage %s admits no betting: %w", h.Stage, pokererr.ErrPrecondition)
	}
	actor := m.PlayerIndex(msg.Player)
	if actor < 0 {
		return nil, fmt.Errorf("%s is not seated: %w", msg.Player, pokererr.ErrPrecondition)
	}
	if h.TurnIdx != actor {
		return nil, fmt.Errorf("not %s's turn: %w", msg.Player, pokererr.ErrPrecondition)
	}
	if err := checkOwnDeadline(h.ActionDeadline, nowUnix); err != nil {
		return nil, err
	}

	other := state.Other(actor)
	events := []abci.Event{}

	switch msg.Action {
	case "fold":
		if msg.Reveal != nil {
			return nil, fmt.Errorf("fold carries no reveal bundle: %w", pokererr.ErrPrecondition)
		}
		h.Folded[actor] = true
		events = append(events, actionEvent(m, msg.Player, "fold", 0))
		events = append(events, settleWin(st, m, other, "fold")...)
		return events, nil

	case "check":
		if h.Bets[actor] != h.Bets[other] {
			return nil, fmt.Errorf("check while facing a bet: %w", pokererr.ErrPrecondition)
		}
		h.Acted[actor] = true

	case "call":
		if h.Bets[other] <= h.Bets[actor] {
			return nil, fmt.Errorf("nothing to call: %w", pokererr.ErrPrecondition)
		}
		betIntoPot(m, actor, h.Bets[other]-h.Bets[actor])
		h.Acted[actor] = true

	case "raise":
		if msg.Amount == 0 {
			return nil, fmt.Errorf("raise of zero: %w", pokererr.ErrPrecondition)
		}
		if msg.Amount > m.Stacks[actor] {
			return nil, fmt.Errorf("raise %d over stack %d: %w",
				msg.Amount, m.Stacks[actor], pokererr.ErrInsufficientStack)
		}
		if h.Bets[actor]+msg.Amount <= h.Bets[other] {
			return nil, fmt.Errorf("raise must exceed the opposing bet: %w", pokererr.ErrPrecondition)
		}
		if h.AllIn[other] {
			return nil, fmt.Errorf("opponent is all-in; call or fold: %w", pokererr.ErrPrecondition)
		}
		betIntoPot(m, actor, msg.Amount)
		h.Acted[actor] = true
		h.Acted[other] = false

	case "allin":
		if m.Stacks[actor] == 0 {
			return nil, fmt.Errorf("empty stack: %w", pokererr.ErrInsufficientStack)
		}
		betIntoPot(m, actor, m.Stacks[actor])
		h.Acted[actor] = true
		if h.Bets[actor] > h.Bets[other] && !h.AllIn[other] {
			// The all-in raised; the opponent must respond.
			h.Acted[other] = false
		}

	default:
		return nil, fmt.Errorf("unknown action %q: %w", msg.Action, pokererr.ErrPrecondition)
	}

	events = append(events, actionEvent(m, msg.Player, msg.Action, msg.Amount))

	if !roundClosed(h) {
		if msg.Reveal != nil {
			return nil, fmt.Errorf("reveal bundle on a non-closing action: %w", pokererr.ErrPrecondition)
		}
		h.TurnIdx = other
		setActionDeadline(m, nowUnix)
		return events, nil
	}

	closeEvents, err := closeBettingRound(m, actor, msg.Reveal, nowUnix)
	if err != nil {
		return nil, err
	}
	return append(events, closeEvents...), nil
}

// roundClosed: both players have acted (or stand all-in) and the bets match,
// modulo an uncalled excess over a short all-in.
func roundClosed(h *state.HandState) bool {
	settled0 := h.Acted[0] || h.AllIn[0]
	settled1 := h.Acted[1] || h.AllIn[1]
	if !settled0 || !settled1 {
		return false
	}
	if h.Bets[0] == h.Bets[1] {
		return true
	}
	lo := 0
	if h.Bets[1] < h.Bets[0] {
		lo = 1
	}
	return h.AllIn[lo]
}

// closeBettingRound settles the street and advances to the next reveal
// stage (or showdown after the river). The closing actor's bundle serves as
// the first-revealer submission for a community reveal.
func closeBettingRound(m *state.Match, closer int, bundle *codec.RevealBundle, nowUnix int64) ([]abci.Event, error) {
	h := m.Hand
	returnUncalledExcess(m)

	h.Bets = [2]uint64{}
	h.Acted = [2]bool{}
	h.TurnIdx = -1

	var next state.Stage
	switch h.Stage {
	case state.StagePreflopBet:
		next = state.StageFlopReveal1
	case state.StageFlopBet:
		next = state.StageTurnReveal1
	case state.StageTurnBet:
		next = state.StageRiverReveal1
	case state.StageRiverBet:
		next = state.StageShowdown1
	default:
		return nil, fmt.Errorf("close from stage %s: %w", h.Stage, pokererr.ErrPrecondition)
	}

	if next == state.StageShowdown1 {
		if bundle != nil {
			return nil, fmt.Errorf("showdown takes no community bundle: %w", pokererr.ErrPrecondition)
		}
		h.Stage = next
		h.RevealTurn = m.NonDealer()
		setRevealDeadline(m, nowUnix)
		return []abci.Event{stageEvent(m)}, nil
	}

	// The spec ties the first reveal share to the round-closing action, so
	// a missing bundle rejects the whole move.
	if bundle == nil {
		return nil, fmt.Errorf("closing action must carry the reveal bundle: %w", pokererr.ErrPrecondition)
	}
	h.Stage = next
	if err := storePartials(m, closer, bundle.Partials); err != nil {
		return nil, err
	}
	h.Stage = revealStep2(next)
	h.RevealTurn = state.Other(closer)
	setRevealDeadline(m, nowUnix)
	return []abci.Event{stageEvent(m)}, nil
}

func revealStep2(s state.Stage) state.Stage {
	switch s {
	case state.StageFlopReveal1:
		return state.StageFlopReveal2
	case state.StageTurnReveal1:
		return state.StageTurnReveal2
	case state.StageRiverReveal1:
		return state.StageRiverReveal2
	}
	return s
}

func actionEvent(m *state.Match, player, action string, amount uint64) abci.Event {
	h := m.Hand
	return okEvent("ActionApplied", map[string]string{
		"matchId": fmt.Sprintf("%d", m.ID),
		"handId":  fmt.Sprintf("%d", h.HandID),
		"player":  player,
		"action":  action,
		"amount":  fmt.Sprintf("%d", amount),
		"pot":     fmt.Sprintf("%d", h.Pot),
	})
}

func stageEvent(m *state.Match) abci.Event {
	h := m.Hand
	attrs := map[string]string{
		"matchId": fmt.Sprintf("%d", m.ID),
		"handId":  fmt.Sprintf("%d", h.HandID),
		"stage":   string(h.Stage),
	}
	if h.RevealTurn >= 0 {
		attrs["revealOn"] = m.Players[h.RevealTurn]
	}
	if h.TurnIdx >= 0 {
		attrs["actingOn"] = m.Players[h.TurnIdx]
	}
	return okEvent("StageAdvanced", attrs)
}
