package app

import (
	"fmt"

	abci "github.com/cometbft/cometbft/abci/types"

	"tiltpoker/internal/codec"
	"tiltpoker/internal/pokererr"
	"tiltpoker/internal/state"
	"tiltpoker/internal/zkproof"
)

// claimTimeout has two modes. Liveness: the opponent missed their deadline
// and the caller takes the pot plus the opponent's bond. Dispute: the caller
// contests a stored optimistic proof; the loser of the verification loses
// their bond.
func claimTimeout(st *state.State, verifier zkproof.Verifier, msg codec.PokerClaimTimeoutTx, nowUnix int64) ([]abci.Event, error) {
	m, err := loadActiveMatch(st, msg.MatchID)
	if err != nil {
		return nil, err
	}
	h := m.Hand
	caller := m.PlayerIndex(msg.Caller)
	if caller < 0 {
		return nil, fmt.Errorf("%s is not seated: %w", msg.Caller, pokererr.ErrPrecondition)
	}
	if h.Stage == state.StageSettled {
		return nil, fmt.Errorf("hand already settled: %w", pokererr.ErrPrecondition)
	}

	if msg.Dispute != nil {
		return disputeProof(st, verifier, m, caller, *msg.Dispute)
	}

	obliged, deadline, ok := obligation(m)
	if !ok {
		return nil, fmt.Errorf("nobody is on the clock: %w", pokererr.ErrPrecondition)
	}
	if obliged == caller {
		return nil, fmt.Errorf("cannot claim own deadline: %w", pokererr.ErrPrecondition)
	}
	if !expired(deadline, nowUnix) {
		return nil, fmt.Errorf("deadline %d not passed at %d: %w", deadline, nowUnix, pokererr.ErrPrecondition)
	}

	events := []abci.Event{okEvent("TimeoutClaimed", map[string]string{
		"matchId":  fmt.Sprintf("%d", m.ID),
		"handId":   fmt.Sprintf("%d", h.HandID),
		"claimant": msg.Caller,
		"against":  m.Players[obliged],
		"deadline": fmt.Sprintf("%d", deadline),
	})}
	return append(events, settleForfeit(st, m, caller, "timeout")...), nil
}

// disputeProof verifies a stored optimistic proof on demand. An invalid
// proof forfeits the prover's hand and bond; a valid one costs the
// challenger their bond and play continues.
func disputeProof(st *state.State, verifier zkproof.Verifier, m *state.Match, caller int, target codec.DisputeTarget) ([]abci.Event, error) {
	h := m.Hand
	if h.Dispute != nil {
		return nil, fmt.Errorf("dispute already used this hand: %w", pokererr.ErrPrecondition)
	}
	kind := zkproof.Kind(target.Kind)
	if kind != zkproof.Reshuffle && kind != zkproof.Decryption {
		return nil, fmt.Errorf("kind %q is not disputable: %w", target.Kind, pokererr.ErrPrecondition)
	}
	stored := h.FindProof(string(kind), target.Slot)
	if stored == nil {
		return nil, fmt.Errorf("no %s proof at slot %d: %w", kind, target.Slot, pokererr.ErrNoSuchProof)
	}
	if stored.Prover == caller {
		return nil, fmt.Errorf("cannot dispute own proof: %w", pokererr.ErrPrecondition)
	}

	valid := verifier.Verify(kind, stored.Proof, stored.Signals)
	h.Dispute = &state.Dispute{
		Kind:       string(kind),
		Slot:       target.Slot,
		Challenger: caller,
		ProofValid: valid,
	}

	events := []abci.Event{okEvent("DisputeResolved", map[string]string{
		"matchId":    fmt.Sprintf("%d", m.ID),
		"handId":     fmt.Sprintf("%d", h.HandID),
		"kind":       string(kind),
		"slot":       fmt.Sprintf("%d", target.Slot),
		"challenger": m.Players[caller],
		"prover":     m.Players[stored.Prover],
		"proofValid": fmt.Sprintf("%t", valid),
	})}

	if !valid {
		// Cheater caught: same payout as a liveness win.
		return append(events, settleForfeit(st, m, caller, "dispute")...), nil
	}

	// False alarm: the challenger's bond moves to the prover and the hand
	// continues untouched.
	transferred := m.Bonds[caller]
	m.Bonds[caller] = 0
	m.Stacks[stored.Prover] += transferred
	events = append(events, okEvent("BondForfeited", map[string]string{
		"matchId": fmt.Sprintf("%d", m.ID),
		"handId":  fmt.Sprintf("%d", h.HandID),
		"player":  m.Players[caller],
		"amount":  fmt.Sprintf("%d", transferred),
	}))
	return events, nil
}
