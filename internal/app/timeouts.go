package app

import (
	"fmt"

	"tiltpoker/internal/pokererr"
	"tiltpoker/internal/state"
)

const defaultActionTimeoutSecs uint64 = 60

func matchActionTimeoutSecs(m *state.Match) uint64 {
	if m == nil || m.ActionTimeoutSecs == 0 {
		return defaultActionTimeoutSecs
	}
	return m.ActionTimeoutSecs
}

// setActionDeadline arms the bet/commit deadline for whoever must move.
func setActionDeadline(m *state.Match, nowUnix int64) {
	h := m.Hand
	h.LastActionAt = nowUnix
	h.ActionDeadline = nowUnix + int64(matchActionTimeoutSecs(m))
	h.RevealDeadline = 0
}

// setRevealDeadline arms the reveal deadline for whoever must reveal.
func setRevealDeadline(m *state.Match, nowUnix int64) {
	h := m.Hand
	h.LastActionAt = nowUnix
	h.RevealDeadline = nowUnix + int64(matchActionTimeoutSecs(m))
	h.ActionDeadline = 0
}

func clearDeadlines(h *state.HandState) {
	h.ActionDeadline = 0
	h.RevealDeadline = 0
}

// expired is strict: at exactly the deadline a move is still in time.
func expired(deadline int64, nowUnix int64) bool {
	return deadline != 0 && nowUnix > deadline
}

// checkOwnDeadline rejects an obligated player's own late move.
func checkOwnDeadline(deadline int64, nowUnix int64) error {
	if expired(deadline, nowUnix) {
		return fmt.Errorf("own deadline %d passed at %d: %w",
			deadline, nowUnix, pokererr.ErrDeadlineExpired)
	}
	return nil
}

// obligation returns who must move in the current stage and against which
// deadline. ok=false when nobody is on the clock.
func obligation(m *state.Match) (playerIdx int, deadline int64, ok bool) {
	h := m.Hand
	switch {
	case h.Stage == state.StageAwaitingCommit:
		return m.NonDealer(), h.ActionDeadline, true
	case h.Stage == state.StageAwaitingDealer:
		return m.DealerIdx, h.ActionDeadline, true
	case h.Stage.IsBet():
		if h.TurnIdx < 0 {
			return 0, 0, false
		}
		return h.TurnIdx, h.ActionDeadline, true
	case h.Stage.IsCommunityReveal() || h.Stage.IsShowdown():
		if h.RevealTurn < 0 {
			return 0, 0, false
		}
		return h.RevealTurn, h.RevealDeadline, true
	}
	return 0, 0, false
}
