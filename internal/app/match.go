package app

import (
	"fmt"

	abci "github.com/cometbft/cometbft/abci/types"
	"github.com/holiman/uint256"

	"tiltpoker/internal/cipher"
	"tiltpoker/internal/codec"
	"tiltpoker/internal/pokererr"
	"tiltpoker/internal/state"
)

// BondDivisor: the per-player bond is stake/10, escrowed at join and held
// until the match concludes or a forfeiture takes it.
const BondDivisor = 10

func bondAmount(stake uint64) uint64 {
	return stake / BondDivisor
}

func parseKey(raw []byte) (*uint256.Int, error) {
	if len(raw) != cipher.KeyBytes {
		return nil, fmt.Errorf("key must be %d bytes, got %d: %w",
			cipher.KeyBytes, len(raw), pokererr.ErrPrecondition)
	}
	k := new(uint256.Int).SetBytes(raw)
	if err := cipher.ValidateKey(k); err != nil {
		return nil, err
	}
	return k, nil
}

func createMatch(st *state.State, msg codec.PokerCreateMatchTx) ([]abci.Event, error) {
	if msg.Creator == "" {
		return nil, fmt.Errorf("missing creator: %w", pokererr.ErrPrecondition)
	}
	if msg.Stake == 0 || bondAmount(msg.Stake) == 0 {
		return nil, fmt.Errorf("stake too small for a bond: %w", pokererr.ErrPrecondition)
	}
	if _, err := parseKey(msg.PK); err != nil {
		return nil, fmt.Errorf("creator key: %w", err)
	}

	smallBlind := msg.SmallBlind
	bigBlind := msg.BigBlind
	if bigBlind == 0 {
		bigBlind = msg.Stake / 100
		smallBlind = bigBlind / 2
	}
	if smallBlind == 0 || bigBlind < smallBlind || bigBlind > msg.Stake {
		return nil, fmt.Errorf("invalid blinds sb=%d bb=%d: %w",
			smallBlind, bigBlind, pokererr.ErrPrecondition)
	}

	bond := bondAmount(msg.Stake)
	if err := st.Debit(msg.Creator, msg.Stake+bond); err != nil {
		return nil, err
	}

	id := st.NextMatchID
	st.NextMatchID++
	key := make([]byte, len(msg.PK))
	copy(key, msg.PK)
	m := &state.Match{
		ID:                id,
		Players:           [2]string{msg.Creator, ""},
		ExpectedOpponent:  msg.Opponent,
		Keys:              [2][]byte{key, nil},
		Stake:             msg.Stake,
		Stacks:            [2]uint64{msg.Stake, 0},
		Bonds:             [2]uint64{bond, 0},
		SmallBlind:        smallBlind,
		BigBlind:          bigBlind,
		ActionTimeoutSecs: msg.ActionTimeoutSecs,
		Status:            state.MatchWaiting,
	}
	st.Matches[id] = m

	return []abci.Event{okEvent("MatchCreated", map[string]string{
		"matchId": fmt.Sprintf("%d", id),
		"creator": msg.Creator,
		"stake":   fmt.Sprintf("%d", msg.Stake),
		"bond":    fmt.Sprintf("%d", bond),
	})}, nil
}

func joinMatch(st *state.State, msg codec.PokerJoinMatchTx, nowUnix int64) ([]abci.Event, error) {
	m := st.Matches[msg.MatchID]
	if m == nil {
		return nil, fmt.Errorf("match %d not found: %w", msg.MatchID, pokererr.ErrPrecondition)
	}
	if m.Status != state.MatchWaiting {
		return nil, fmt.Errorf("match %d is %s: %w", m.ID, m.Status, pokererr.ErrPrecondition)
	}
	if msg.Player == "" || msg.Player == m.Players[0] {
		return nil, fmt.Errorf("cannot join own match: %w", pokererr.ErrPrecondition)
	}
	if m.ExpectedOpponent != "" && m.ExpectedOpponent != msg.Player {
		return nil, fmt.Errorf("seat reserved for %s: %w", m.ExpectedOpponent, pokererr.ErrPrecondition)
	}
	if _, err := parseKey(msg.PK); err != nil {
		return nil, fmt.Errorf("joiner key: %w", err)
	}

	bond := bondAmount(m.Stake)
	if err := st.Debit(msg.Player, m.Stake+bond); err != nil {
		return nil, err
	}

	m.Players[1] = msg.Player
	key := make([]byte, len(msg.PK))
	copy(key, msg.PK)
	m.Keys[1] = key
	m.Stacks[1] = m.Stake
	m.Bonds[1] = bond
	m.Status = state.MatchActive
	m.Escrow = m.EscrowTotal()

	// Hand 1: the creator has the button and deals; the joiner, as
	// non-dealer, owes the deck commitment.
	m.CurrentHandID = 1
	m.DealerIdx = 0
	m.Hand = state.NewHand(1)
	setActionDeadline(m, nowUnix)

	return []abci.Event{okEvent("MatchJoined", map[string]string{
		"matchId":   fmt.Sprintf("%d", m.ID),
		"player":    msg.Player,
		"handId":    "1",
		"dealer":    m.Players[0],
		"committer": m.Players[1],
	})}, nil
}

func startNextHand(st *state.State, msg codec.PokerNextHandTx, nowUnix int64) ([]abci.Event, error) {
	m, err := loadActiveMatch(st, msg.MatchID)
	if err != nil {
		return nil, err
	}
	if m.PlayerIndex(msg.Caller) < 0 {
		return nil, fmt.Errorf("%s is not seated: %w", msg.Caller, pokererr.ErrPrecondition)
	}
	if m.Hand.Stage != state.StageSettled {
		return nil, fmt.Errorf("hand %d not settled: %w", m.CurrentHandID, pokererr.ErrPrecondition)
	}
	if m.Stacks[0] == 0 || m.Stacks[1] == 0 {
		return nil, fmt.Errorf("a stack is empty; leave to settle the match: %w", pokererr.ErrPrecondition)
	}

	// Replenish a bond lost to forfeiture from that player's stack.
	bond := bondAmount(m.Stake)
	for i := 0; i < 2; i++ {
		if m.Bonds[i] >= bond {
			continue
		}
		need := bond - m.Bonds[i]
		if m.Stacks[i] <= need {
			return nil, fmt.Errorf("%s cannot cover the bond; leave to settle the match: %w",
				m.Players[i], pokererr.ErrPrecondition)
		}
		m.Stacks[i] -= need
		m.Bonds[i] += need
	}

	m.DealerIdx = state.Other(m.DealerIdx)
	m.CurrentHandID++
	m.Hand = state.NewHand(m.CurrentHandID)
	setActionDeadline(m, nowUnix)

	return []abci.Event{okEvent("HandStarted", map[string]string{
		"matchId":   fmt.Sprintf("%d", m.ID),
		"handId":    fmt.Sprintf("%d", m.CurrentHandID),
		"dealer":    m.Players[m.DealerIdx],
		"committer": m.Players[m.NonDealer()],
	})}, nil
}

func leaveMatch(st *state.State, msg codec.PokerLeaveMatchTx) ([]abci.Event, error) {
	m := st.Matches[msg.MatchID]
	if m == nil {
		return nil, fmt.Errorf("match %d not found: %w", msg.MatchID, pokererr.ErrPrecondition)
	}
	idx := m.PlayerIndex(msg.Player)
	if idx < 0 {
		return nil, fmt.Errorf("%s is not seated: %w", msg.Player, pokererr.ErrPrecondition)
	}

	switch m.Status {
	case state.MatchWaiting:
		// Creator cancels before anyone joined.
		if err := st.Credit(msg.Player, m.Stacks[0]+m.Bonds[0]); err != nil {
			return nil, err
		}
		delete(st.Matches, m.ID)
		return []abci.Event{okEvent("MatchConcluded", map[string]string{
			"matchId": fmt.Sprintf("%d", m.ID),
			"reason":  "cancelled",
		})}, nil

	case state.MatchActive:
		if m.Hand != nil && m.Hand.Stage != state.StageSettled {
			return nil, fmt.Errorf("hand in progress: %w", pokererr.ErrPrecondition)
		}
		// Pay both players out and conclude.
		for i := 0; i < 2; i++ {
			if err := st.Credit(m.Players[i], m.Stacks[i]+m.Bonds[i]); err != nil {
				return nil, err
			}
			m.Stacks[i] = 0
			m.Bonds[i] = 0
		}
		m.Status = state.MatchConcluded
		m.Hand = nil
		return []abci.Event{okEvent("MatchConcluded", map[string]string{
			"matchId": fmt.Sprintf("%d", m.ID),
			"reason":  "left",
			"leaver":  msg.Player,
		})}, nil

	default:
		return nil, fmt.Errorf("match %d already concluded: %w", m.ID, pokererr.ErrPrecondition)
	}
}
