package app

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	abci "github.com/cometbft/cometbft/abci/types"

	"tiltpoker/internal/codec"
	"tiltpoker/internal/pokererr"
	"tiltpoker/internal/state"
	"tiltpoker/internal/zkproof"
)

const (
	AppVersion uint64 = 1
)

// App is the tiltpoker ABCI application: a heads-up mental-poker state
// machine over a persistent match registry. One tx in, one state delta out;
// a failed tx leaves state untouched.
type App struct {
	*abci.BaseApplication

	home     string
	verifier zkproof.Verifier

	mu       sync.Mutex
	st       *state.State
	lastHash []byte
}

func New(home string) (*App, error) {
	return NewWithVerifier(home, zkproof.TranscriptVerifier{})
}

// NewWithVerifier wires a custom proof backend; the state machine only ever
// calls Verify.
func NewWithVerifier(home string, verifier zkproof.Verifier) (*App, error) {
	appHome := filepath.Join(home, "app")
	st, err := state.Load(appHome)
	if err != nil {
		return nil, err
	}
	a := &App{
		BaseApplication: abci.NewBaseApplication(),
		home:            home,
		verifier:        verifier,
		st:              st,
		lastHash:        st.AppHash(),
	}
	return a, nil
}

func (a *App) Info(_ context.Context, _ *abci.InfoRequest) (*abci.InfoResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return &abci.InfoResponse{
		Data:             "tiltpoker (v0)",
		Version:          "v0",
		AppVersion:       AppVersion,
		LastBlockHeight:  a.st.Height,
		LastBlockAppHash: a.lastHash,
	}, nil
}

func (a *App) CheckTx(_ context.Context, req *abci.CheckTxRequest) (*abci.CheckTxResponse, error) {
	_, err := codec.DecodeTxEnvelope(req.Tx)
	if err != nil {
		return &abci.CheckTxResponse{Code: 1, Log: err.Error()}, nil
	}
	// v0: only structural validation; signatures/auth are the host's duty.
	return &abci.CheckTxResponse{Code: 0}, nil
}

func (a *App) InitChain(_ context.Context, _ *abci.InitChainRequest) (*abci.InitChainResponse, error) {
	return &abci.InitChainResponse{}, nil
}

func (a *App) FinalizeBlock(_ context.Context, req *abci.FinalizeBlockRequest) (*abci.FinalizeBlockResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.st.Height = req.Height
	nowUnix := req.Time.Unix()

	txResults := make([]*abci.ExecTxResult, 0, len(req.Txs))
	for _, txBytes := range req.Txs {
		res := a.deliverTx(txBytes, req.Height, nowUnix)
		txResults = append(txResults, res)
	}

	a.lastHash = a.st.AppHash()

	return &abci.FinalizeBlockResponse{
		TxResults: txResults,
		AppHash:   a.lastHash,
	}, nil
}

func (a *App) Commit(_ context.Context, _ *abci.CommitRequest) (*abci.CommitResponse, error) {
	appHome := filepath.Join(a.home, "app")
	if err := a.st.Save(appHome); err != nil {
		// Returning the error halts the node loudly rather than running on
		// unpersisted state.
		return nil, err
	}
	return &abci.CommitResponse{}, nil
}

func (a *App) Query(_ context.Context, req *abci.QueryRequest) (*abci.QueryResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Paths:
	// - /account/<addr>
	// - /match/<id>
	// - /matches
	path := strings.TrimSpace(req.Path)
	switch {
	case path == "/matches":
		ids := make([]uint64, 0, len(a.st.Matches))
		for id := range a.st.Matches {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		b, _ := json.Marshal(ids)
		return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil
	case strings.HasPrefix(path, "/account/"):
		addr := strings.TrimPrefix(path, "/account/")
		b, _ := json.Marshal(map[string]any{
			"addr":    addr,
			"balance": a.st.Balance(addr),
			"stats":   a.st.Stats[addr],
		})
		return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil
	case strings.HasPrefix(path, "/match/"):
		raw := strings.TrimPrefix(path, "/match/")
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return &abci.QueryResponse{Code: 1, Log: "invalid match id", Height: a.st.Height}, nil
		}
		m, ok := a.st.Matches[id]
		if !ok {
			return &abci.QueryResponse{Code: 1, Log: "match not found", Height: a.st.Height}, nil
		}
		b, _ := json.Marshal(m)
		return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil
	default:
		return &abci.QueryResponse{Code: 1, Log: "unknown query path", Height: a.st.Height}, nil
	}
}

// deliverTx stages the tx against a clone of state and adopts the clone only
// on success, so every command is all-or-nothing.
func (a *App) deliverTx(txBytes []byte, height int64, nowUnix int64) *abci.ExecTxResult {
	env, err := codec.DecodeTxEnvelope(txBytes)
	if err != nil {
		return &abci.ExecTxResult{Code: 1, Log: err.Error()}
	}

	staged, err := a.st.Clone()
	if err != nil {
		return &abci.ExecTxResult{Code: 1, Log: "clone state: " + err.Error()}
	}

	events, err := a.applyTx(staged, env, nowUnix)
	if err != nil {
		return &abci.ExecTxResult{Code: 1, Log: err.Error()}
	}

	if err := checkConservation(staged); err != nil {
		return &abci.ExecTxResult{Code: 1, Log: err.Error()}
	}

	a.st = staged
	return &abci.ExecTxResult{Code: 0, Events: events}
}

func (a *App) applyTx(st *state.State, env codec.TxEnvelope, nowUnix int64) ([]abci.Event, error) {
	switch env.Type {
	case "bank/mint":
		var msg codec.BankMintTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, fmt.Errorf("bad bank/mint value")
		}
		if msg.To == "" || msg.Amount == 0 {
			return nil, fmt.Errorf("missing to/amount")
		}
		if err := st.Credit(msg.To, msg.Amount); err != nil {
			return nil, err
		}
		return []abci.Event{okEvent("BankMinted", map[string]string{
			"to":     msg.To,
			"amount": fmt.Sprintf("%d", msg.Amount),
		})}, nil

	case "bank/send":
		var msg codec.BankSendTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, fmt.Errorf("bad bank/send value")
		}
		if msg.From == "" || msg.To == "" || msg.Amount == 0 {
			return nil, fmt.Errorf("missing from/to/amount")
		}
		if err := st.Debit(msg.From, msg.Amount); err != nil {
			return nil, err
		}
		if err := st.Credit(msg.To, msg.Amount); err != nil {
			return nil, err
		}
		return []abci.Event{okEvent("BankSent", map[string]string{
			"from":   msg.From,
			"to":     msg.To,
			"amount": fmt.Sprintf("%d", msg.Amount),
		})}, nil

	case "poker/create_match":
		var msg codec.PokerCreateMatchTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, fmt.Errorf("bad poker/create_match value")
		}
		return createMatch(st, msg)

	case "poker/join_match":
		var msg codec.PokerJoinMatchTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, fmt.Errorf("bad poker/join_match value")
		}
		return joinMatch(st, msg, nowUnix)

	case "poker/commit_deck":
		var msg codec.PokerCommitDeckTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, fmt.Errorf("bad poker/commit_deck value")
		}
		return commitDeck(st, a.verifier, msg, nowUnix)

	case "poker/join_hand":
		var msg codec.PokerJoinHandTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, fmt.Errorf("bad poker/join_hand value")
		}
		return joinHand(st, msg, nowUnix)

	case "poker/action":
		var msg codec.PokerActionTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, fmt.Errorf("bad poker/action value")
		}
		return playerAction(st, msg, nowUnix)

	case "poker/reveal_share":
		var msg codec.PokerRevealShareTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, fmt.Errorf("bad poker/reveal_share value")
		}
		return revealShare(st, msg, nowUnix)

	case "poker/showdown_reveal":
		var msg codec.PokerShowdownRevealTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, fmt.Errorf("bad poker/showdown_reveal value")
		}
		return showdownReveal(st, msg, nowUnix)

	case "poker/resolve_hand":
		var msg codec.PokerResolveHandTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, fmt.Errorf("bad poker/resolve_hand value")
		}
		return resolveHand(st, msg)

	case "poker/claim_timeout":
		var msg codec.PokerClaimTimeoutTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, fmt.Errorf("bad poker/claim_timeout value")
		}
		return claimTimeout(st, a.verifier, msg, nowUnix)

	case "poker/next_hand":
		var msg codec.PokerNextHandTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, fmt.Errorf("bad poker/next_hand value")
		}
		return startNextHand(st, msg, nowUnix)

	case "poker/leave":
		var msg codec.PokerLeaveMatchTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return nil, fmt.Errorf("bad poker/leave value")
		}
		return leaveMatch(st, msg)

	default:
		return nil, fmt.Errorf("unknown tx type: %s", env.Type)
	}
}

// checkConservation re-derives the escrow invariant for every active match.
// A failure here is a bug in a transition, not a user error.
func checkConservation(st *state.State) error {
	for id, m := range st.Matches {
		if m.Status != state.MatchActive {
			continue
		}
		if got := m.EscrowTotal(); got != m.Escrow {
			return fmt.Errorf("match %d escrow %d != %d: %w",
				id, got, m.Escrow, pokererr.ErrConservation)
		}
	}
	return nil
}

func okEvent(typ string, attrs map[string]string) abci.Event {
	ev := abci.Event{Type: typ}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ev.Attributes = append(ev.Attributes, abci.EventAttribute{Key: k, Value: attrs[k], Index: true})
	}
	return ev
}

func loadActiveMatch(st *state.State, id uint64) (*state.Match, error) {
	m := st.Matches[id]
	if m == nil {
		return nil, fmt.Errorf("match %d not found: %w", id, pokererr.ErrPrecondition)
	}
	if m.Status != state.MatchActive {
		return nil, fmt.Errorf("match %d is %s: %w", id, m.Status, pokererr.ErrPrecondition)
	}
	if m.Hand == nil {
		return nil, fmt.Errorf("match %d has no hand: %w", id, pokererr.ErrPrecondition)
	}
	return m, nil
}
