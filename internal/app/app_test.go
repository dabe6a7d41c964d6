package app

import (
	"encoding/json"
	"testing"

	abci "github.com/cometbft/cometbft/abci/types"
	"github.com/holiman/uint256"

	"tiltpoker/internal/cipher"
	"tiltpoker/internal/codec"
	"tiltpoker/internal/merkle"
	"tiltpoker/internal/state"
	"tiltpoker/internal/zkproof"
)

const (
	testHeight  = int64(1)
	testStake   = uint64(20)
	testBond    = uint64(2)
	testSB      = uint64(1)
	testBB      = uint64(2)
	testTimeout = uint64(60)
)

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func txBytes(t *testing.T, typ string, value any) []byte {
	t.Helper()
	return mustMarshal(t, map[string]any{
		"type":  typ,
		"value": value,
	})
}

func findEvent(events []abci.Event, typ string) *abci.Event {
	for i := range events {
		if events[i].Type == typ {
			return &events[i]
		}
	}
	return nil
}

func attr(ev *abci.Event, key string) string {
	if ev == nil {
		return ""
	}
	for _, a := range ev.Attributes {
		if a.Key == key {
			return a.Value
		}
	}
	return ""
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	a, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func mustOk(t *testing.T, res *abci.ExecTxResult) *abci.ExecTxResult {
	t.Helper()
	if res.Code != 0 {
		t.Fatalf("expected ok, got code=%d log=%q", res.Code, res.Log)
	}
	return res
}

func mustFail(t *testing.T, res *abci.ExecTxResult) *abci.ExecTxResult {
	t.Helper()
	if res.Code == 0 {
		t.Fatalf("expected failure, got ok")
	}
	return res
}

// fixture drives a full heads-up match, doing the client-side cryptography
// (deck encryption, Merkle proofs, partial reveals, transcript proofs) that
// real clients would do off-chain.
type fixture struct {
	t *testing.T
	a *App
	v zkproof.TranscriptVerifier

	matchID uint64
	addrs   [2]string       // match player index -> address
	keys    [2]*uint256.Int // cipher exponents
	now     int64

	// Per-hand crypto state.
	dealer  int
	singles [merkle.DeckSize]cipher.Encrypted // committer's deck, identity order
	doubles [merkle.DeckSize]cipher.Encrypted
	root    [32]byte
	newRoot [32]byte
	board   [9]uint8 // plaintext card per board slot
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:    t,
		a:    newTestApp(t),
		now:  10,
		keys: [2]*uint256.Int{uint256.NewInt(7), uint256.NewInt(11)},
	}
	f.addrs = [2]string{"alice", "bob"}

	f.mustDeliver("bank/mint", codec.BankMintTx{To: "alice", Amount: 100})
	f.mustDeliver("bank/mint", codec.BankMintTx{To: "bob", Amount: 100})

	res := f.mustDeliver("poker/create_match", codec.PokerCreateMatchTx{
		Creator:           "alice",
		Stake:             testStake,
		PK:                f.keyBytes(0),
		SmallBlind:        testSB,
		BigBlind:          testBB,
		ActionTimeoutSecs: testTimeout,
	})
	if findEvent(res.Events, "MatchCreated") == nil {
		t.Fatalf("expected MatchCreated event")
	}
	f.matchID = 1

	f.mustDeliver("poker/join_match", codec.PokerJoinMatchTx{
		Player:  "bob",
		MatchID: f.matchID,
		PK:      f.keyBytes(1),
	})
	f.dealer = 0
	return f
}

func (f *fixture) keyBytes(idx int) []byte {
	b := f.keys[idx].Bytes32()
	return b[:]
}

func (f *fixture) deliver(typ string, value any) *abci.ExecTxResult {
	f.t.Helper()
	return f.a.deliverTx(txBytes(f.t, typ, value), testHeight, f.now)
}

func (f *fixture) mustDeliver(typ string, value any) *abci.ExecTxResult {
	f.t.Helper()
	return mustOk(f.t, f.deliver(typ, value))
}

func (f *fixture) match() *state.Match {
	f.t.Helper()
	m := f.a.st.Matches[f.matchID]
	if m == nil {
		f.t.Fatalf("match %d missing", f.matchID)
	}
	return m
}

func (f *fixture) hand() *state.HandState {
	f.t.Helper()
	h := f.match().Hand
	if h == nil {
		f.t.Fatalf("no hand")
	}
	return h
}

func (f *fixture) committer() int {
	return state.Other(f.dealer)
}

func (f *fixture) singlesDeck() [merkle.DeckSize][32]byte {
	var deck [merkle.DeckSize][32]byte
	for i := range f.singles {
		deck[i] = f.singles[i]
	}
	return deck
}

// commitDeck performs the non-dealer's move: singly encrypt the identity
// deck, commit its root, prove deck creation.
func (f *fixture) commitDeck(opts ...func(*codec.PokerCommitDeckTx)) *abci.ExecTxResult {
	f.t.Helper()
	committer := f.committer()
	for i := 0; i < merkle.DeckSize; i++ {
		ct, err := cipher.Encrypt(uint8(i), f.keys[committer])
		if err != nil {
			f.t.Fatalf("encrypt card %d: %v", i, err)
		}
		f.singles[i] = ct
	}
	f.root = merkle.Root(f.singlesDeck())

	proof := f.v.Prove(zkproof.DeckCreation, zkproof.Signals{A: f.root[:], C: f.keyBytes(committer)})
	msg := codec.PokerCommitDeckTx{
		Player:  f.addrs[committer],
		MatchID: f.matchID,
		Root:    f.root[:],
		Proof:   proof,
	}
	for _, opt := range opts {
		opt(&msg)
	}
	return f.deliver("poker/commit_deck", msg)
}

func (f *fixture) nextHand(callerIdx int) *abci.ExecTxResult {
	f.t.Helper()
	return f.deliver("poker/next_hand", codec.PokerNextHandTx{
		Caller:  f.addrs[callerIdx],
		MatchID: f.matchID,
	})
}

type joinOpt func(*codec.PokerJoinHandTx)

func corruptReshuffleProof() joinOpt {
	return func(msg *codec.PokerJoinHandTx) {
		msg.ReshuffleProof[0] ^= 0x01
	}
}

// joinHand performs the dealer's move with the given plaintext board. Board
// slot i is backed by deck index board[i], which works because the committed
// deck is in identity order.
func (f *fixture) joinHand(board [9]uint8, opts ...joinOpt) *abci.ExecTxResult {
	f.t.Helper()
	dealer := f.dealer
	f.board = board

	for i := 0; i < merkle.DeckSize; i++ {
		f.doubles[i] = cipher.EncryptLayer(f.singles[i], f.keys[dealer])
	}
	var doublesDeck [merkle.DeckSize][32]byte
	for i := range f.doubles {
		doublesDeck[i] = f.doubles[i]
	}
	f.newRoot = merkle.Root(doublesDeck)
	singlesDeck := f.singlesDeck()

	msg := codec.PokerJoinHandTx{
		Player:  f.addrs[dealer],
		MatchID: f.matchID,
		NewRoot: f.newRoot[:],
	}
	msg.ReshuffleProof = f.v.Prove(zkproof.Reshuffle, zkproof.Signals{
		A: f.root[:], B: f.newRoot[:], C: f.keyBytes(dealer),
	})
	for i, card := range board {
		p, err := merkle.BuildProof(singlesDeck, int(card))
		if err != nil {
			f.t.Fatalf("proof for card %d: %v", card, err)
		}
		sibs := make([][]byte, len(p.Siblings))
		for j := range p.Siblings {
			sib := p.Siblings[j]
			sibs[j] = sib[:]
		}
		msg.Slots[i] = codec.JoinSlot{
			Single:   f.singles[card][:],
			Double:   f.doubles[card][:],
			Siblings: sibs,
			Index:    card,
		}
	}
	for _, slot := range state.PocketSlots(f.committer()) {
		msg.PocketPartials = append(msg.PocketPartials, f.partialReveal(dealer, slot))
	}
	for _, opt := range opts {
		opt(&msg)
	}
	return f.deliver("poker/join_hand", msg)
}

// partialReveal strips the revealer's layer off a board slot and builds the
// optimistic decryption proof for it.
func (f *fixture) partialReveal(revealer int, slot uint8) codec.PartialReveal {
	f.t.Helper()
	double := f.doubles[f.board[slot]]
	partial, err := cipher.StripLayer(double, f.keys[revealer])
	if err != nil {
		f.t.Fatalf("strip layer: %v", err)
	}
	proof := f.v.Prove(zkproof.Decryption, zkproof.Signals{
		A: double[:], B: partial[:], C: f.keyBytes(revealer),
	})
	return codec.PartialReveal{Slot: slot, Value: partial[:], Proof: proof}
}

func (f *fixture) bundle(revealer int, slots []uint8) *codec.RevealBundle {
	f.t.Helper()
	b := &codec.RevealBundle{}
	for _, slot := range slots {
		b.Partials = append(b.Partials, f.partialReveal(revealer, slot))
	}
	return b
}

func (f *fixture) action(playerIdx int, action string, amount uint64, bundleSlots []uint8) *abci.ExecTxResult {
	f.t.Helper()
	msg := codec.PokerActionTx{
		Player:  f.addrs[playerIdx],
		MatchID: f.matchID,
		Action:  action,
		Amount:  amount,
	}
	if bundleSlots != nil {
		msg.Reveal = f.bundle(playerIdx, bundleSlots)
	}
	return f.deliver("poker/action", msg)
}

// revealFirst is the runout-path first-revealer submission.
func (f *fixture) revealFirst(playerIdx int, slots []uint8) *abci.ExecTxResult {
	f.t.Helper()
	msg := codec.PokerRevealShareTx{
		Player:  f.addrs[playerIdx],
		MatchID: f.matchID,
	}
	for _, slot := range slots {
		msg.Partials = append(msg.Partials, f.partialReveal(playerIdx, slot))
	}
	return f.deliver("poker/reveal_share", msg)
}

// revealSecond completes a community reveal with the true plaintexts.
func (f *fixture) revealSecond(playerIdx int, slots []uint8) *abci.ExecTxResult {
	f.t.Helper()
	return f.revealSecondClaiming(playerIdx, slots, nil)
}

// revealSecondClaiming allows a test to lie about specific slots.
func (f *fixture) revealSecondClaiming(playerIdx int, slots []uint8, lies map[uint8]uint8) *abci.ExecTxResult {
	f.t.Helper()
	msg := codec.PokerRevealShareTx{
		Player:  f.addrs[playerIdx],
		MatchID: f.matchID,
	}
	for _, slot := range slots {
		msg.Partials = append(msg.Partials, f.partialReveal(playerIdx, slot))
		card := f.board[slot]
		if lie, ok := lies[slot]; ok {
			card = lie
		}
		msg.Plaintexts = append(msg.Plaintexts, codec.CardReveal{Slot: slot, Card: card})
	}
	return f.deliver("poker/reveal_share", msg)
}

func (f *fixture) showdown(playerIdx int) *abci.ExecTxResult {
	f.t.Helper()
	pockets := state.PocketSlots(playerIdx)
	msg := codec.PokerShowdownRevealTx{
		Player:  f.addrs[playerIdx],
		MatchID: f.matchID,
	}
	for i, slot := range pockets {
		msg.Cards[i] = codec.CardReveal{Slot: slot, Card: f.board[slot]}
		msg.Partials = append(msg.Partials, f.partialReveal(playerIdx, slot))
	}
	return f.deliver("poker/showdown_reveal", msg)
}

func (f *fixture) resolve(callerIdx int) *abci.ExecTxResult {
	f.t.Helper()
	return f.deliver("poker/resolve_hand", codec.PokerResolveHandTx{
		Caller:  f.addrs[callerIdx],
		MatchID: f.matchID,
	})
}

func (f *fixture) claimTimeout(callerIdx int, dispute *codec.DisputeTarget) *abci.ExecTxResult {
	f.t.Helper()
	return f.deliver("poker/claim_timeout", codec.PokerClaimTimeoutTx{
		Caller:  f.addrs[callerIdx],
		MatchID: f.matchID,
		Dispute: dispute,
	})
}

func (f *fixture) assertEscrow(t *testing.T) {
	t.Helper()
	m := f.match()
	if m.Status != state.MatchActive {
		return
	}
	if got := m.EscrowTotal(); got != m.Escrow {
		t.Fatalf("escrow broken: have %d want %d", got, m.Escrow)
	}
}

// playPreflopToFlop drives commit, join, a call-check pre-flop, and the flop
// reveal, leaving the hand at FlopBet with the given board.
func (f *fixture) playPreflopToFlop(board [9]uint8, opts ...joinOpt) {
	f.t.Helper()
	mustOk(f.t, f.commitDeck())
	mustOk(f.t, f.joinHand(board, opts...))
	mustOk(f.t, f.action(f.dealer, "call", 0, nil))
	mustOk(f.t, f.action(f.committer(), "check", 0, []uint8{4, 5, 6}))
	mustOk(f.t, f.revealSecond(f.dealer, []uint8{4, 5, 6}))
	if f.hand().Stage != state.StageFlopBet {
		f.t.Fatalf("expected flopBet, got %s", f.hand().Stage)
	}
}
