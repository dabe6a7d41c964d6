package app

import (
	"fmt"

	abci "github.com/cometbft/cometbft/abci/types"

	"tiltpoker/internal/state"
)

// betIntoPot moves up to amount from a player's stack into the pot,
// clamping at the stack (a short payment is an all-in).
func betIntoPot(m *state.Match, playerIdx int, amount uint64) uint64 {
	h := m.Hand
	put := amount
	if put > m.Stacks[playerIdx] {
		put = m.Stacks[playerIdx]
	}
	m.Stacks[playerIdx] -= put
	h.Bets[playerIdx] += put
	h.Committed[playerIdx] += put
	h.Pot += put
	if m.Stacks[playerIdx] == 0 {
		h.AllIn[playerIdx] = true
	}
	return put
}

// returnUncalledExcess refunds the unmatched part of the street's bets, so
// a closed round always ends with equal bets.
func returnUncalledExcess(m *state.Match) {
	h := m.Hand
	if h.Bets[0] == h.Bets[1] {
		return
	}
	hi, lo := 0, 1
	if h.Bets[1] > h.Bets[0] {
		hi, lo = 1, 0
	}
	excess := h.Bets[hi] - h.Bets[lo]
	h.Bets[hi] -= excess
	h.Committed[hi] -= excess
	h.Pot -= excess
	m.Stacks[hi] += excess
	if m.Stacks[hi] > 0 {
		h.AllIn[hi] = false
	}
}

func recordStats(st *state.State, m *state.Match, res *state.HandResult) {
	h := m.Hand
	for i := 0; i < 2; i++ {
		ps := st.StatsFor(m.Players[i])
		ps.HandsPlayed++
		switch {
		case res.WinnerIdx == i:
			ps.HandsWon++
			ps.Net += int64(res.Pot) - int64(h.Committed[i])
		case res.WinnerIdx < 0:
			// Split pots are handled by the caller crediting stacks; stats
			// treat the hand as a push.
			ps.Net += int64(res.Pot/2) - int64(h.Committed[i])
		default:
			ps.Net -= int64(h.Committed[i])
		}
	}
}

func settleEvent(m *state.Match, res *state.HandResult) abci.Event {
	attrs := map[string]string{
		"matchId": fmt.Sprintf("%d", m.ID),
		"handId":  fmt.Sprintf("%d", m.Hand.HandID),
		"reason":  res.Reason,
		"pot":     fmt.Sprintf("%d", res.Pot),
	}
	if res.WinnerIdx >= 0 {
		attrs["winner"] = m.Players[res.WinnerIdx]
	} else {
		attrs["winner"] = "split"
	}
	return okEvent("HandResolved", attrs)
}

// settleWin ends the hand with the whole pot to one player. Used by folds,
// coherence forfeits, and showdown wins. Bonds stay escrowed for the next
// hand.
func settleWin(st *state.State, m *state.Match, winnerIdx int, reason string) []abci.Event {
	h := m.Hand
	returnUncalledExcess(m)

	res := &state.HandResult{
		Reason:    reason,
		WinnerIdx: winnerIdx,
		Pot:       h.Pot,
	}
	m.Stacks[winnerIdx] += h.Pot
	h.Pot = 0

	recordStats(st, m, res)
	finishHand(h, res)
	return []abci.Event{settleEvent(m, res)}
}

// settleSplit divides the pot evenly, odd unit to this hand's small blind
// (the dealer).
func settleSplit(st *state.State, m *state.Match, scores [2]uint32) []abci.Event {
	h := m.Hand
	res := &state.HandResult{
		Reason:    "showdown",
		WinnerIdx: -1,
		Scores:    scores,
		Pot:       h.Pot,
	}
	half := h.Pot / 2
	odd := h.Pot - 2*half
	m.Stacks[m.DealerIdx] += half + odd
	m.Stacks[m.NonDealer()] += half
	h.Pot = 0

	recordStats(st, m, res)
	finishHand(h, res)
	return []abci.Event{settleEvent(m, res)}
}

// settleForfeit ends the hand for the claimant with the pot plus the
// offender's bond. Used by liveness timeouts and lost disputes.
func settleForfeit(st *state.State, m *state.Match, claimantIdx int, reason string) []abci.Event {
	h := m.Hand
	offender := state.Other(claimantIdx)
	returnUncalledExcess(m)

	res := &state.HandResult{
		Reason:    reason,
		WinnerIdx: claimantIdx,
		Pot:       h.Pot,
	}
	m.Stacks[claimantIdx] += h.Pot + m.Bonds[offender]
	h.Pot = 0
	forfeited := m.Bonds[offender]
	m.Bonds[offender] = 0

	recordStats(st, m, res)
	finishHand(h, res)
	return []abci.Event{
		settleEvent(m, res),
		okEvent("BondForfeited", map[string]string{
			"matchId": fmt.Sprintf("%d", m.ID),
			"handId":  fmt.Sprintf("%d", h.HandID),
			"player":  m.Players[offender],
			"amount":  fmt.Sprintf("%d", forfeited),
		}),
	}
}

func finishHand(h *state.HandState, res *state.HandResult) {
	h.Stage = state.StageSettled
	h.TurnIdx = -1
	h.RevealTurn = -1
	h.Result = res
	clearDeadlines(h)
}
