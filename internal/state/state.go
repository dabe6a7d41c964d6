package state

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"tiltpoker/internal/zkproof"
)

type State struct {
	Height int64 `json:"height"`

	NextMatchID uint64                  `json:"nextMatchId"`
	Accounts    map[string]uint64       `json:"accounts"`
	Stats       map[string]*PlayerStats `json:"stats,omitempty"`
	Matches     map[uint64]*Match       `json:"matches"`
}

// PlayerStats persists across matches.
type PlayerStats struct {
	HandsPlayed uint64 `json:"handsPlayed"`
	HandsWon    uint64 `json:"handsWon"`
	Net         int64  `json:"net"` // lifetime winnings minus losses
}

func NewState() *State {
	return &State{
		Height:      0,
		NextMatchID: 1,
		Accounts:    map[string]uint64{},
		Stats:       map[string]*PlayerStats{},
		Matches:     map[uint64]*Match{},
	}
}

func Load(home string) (*State, error) {
	path := filepath.Join(home, "state.json")
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewState(), nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}
	var st State
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	st.normalize()
	return &st, nil
}

func (s *State) normalize() {
	if s.Accounts == nil {
		s.Accounts = map[string]uint64{}
	}
	if s.Stats == nil {
		s.Stats = map[string]*PlayerStats{}
	}
	if s.Matches == nil {
		s.Matches = map[uint64]*Match{}
	}
	if s.NextMatchID == 0 {
		s.NextMatchID = 1
	}
}

func (s *State) Save(home string) error {
	if err := os.MkdirAll(home, 0o755); err != nil {
		return fmt.Errorf("mkdir home: %w", err)
	}
	path := filepath.Join(home, "state.json")
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

// Clone returns a deep copy of state suitable for staged tx execution.
func (s *State) Clone() (*State, error) {
	if s == nil {
		return nil, fmt.Errorf("state is nil")
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode state clone: %w", err)
	}
	var out State
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode state clone: %w", err)
	}
	out.normalize()
	return &out, nil
}

// AppHash hashes a normalized view of state. encoding/json does not
// guarantee map key order, so maps are flattened into sorted slices first.
func (s *State) AppHash() []byte {
	type accountKV struct {
		Addr    string `json:"addr"`
		Balance uint64 `json:"balance"`
	}
	type statsKV struct {
		Addr  string       `json:"addr"`
		Stats *PlayerStats `json:"stats"`
	}
	type matchKV struct {
		ID    uint64 `json:"id"`
		Match *Match `json:"match"`
	}

	accounts := make([]accountKV, 0, len(s.Accounts))
	for k, v := range s.Accounts {
		accounts = append(accounts, accountKV{Addr: k, Balance: v})
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Addr < accounts[j].Addr })

	stats := make([]statsKV, 0, len(s.Stats))
	for k, v := range s.Stats {
		stats = append(stats, statsKV{Addr: k, Stats: v})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Addr < stats[j].Addr })

	matches := make([]matchKV, 0, len(s.Matches))
	for id, m := range s.Matches {
		matches = append(matches, matchKV{ID: id, Match: m})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].ID < matches[j].ID })

	normalized := struct {
		Height      int64       `json:"height"`
		NextMatchID uint64      `json:"nextMatchId"`
		Accounts    []accountKV `json:"accounts"`
		Stats       []statsKV   `json:"stats,omitempty"`
		Matches     []matchKV   `json:"matches"`
	}{
		Height:      s.Height,
		NextMatchID: s.NextMatchID,
		Accounts:    accounts,
		Stats:       stats,
		Matches:     matches,
	}

	b, _ := json.Marshal(normalized)
	sum := sha256.Sum256(b)
	return sum[:]
}

// ---- Bank ----

func (s *State) Balance(addr string) uint64 {
	return s.Accounts[addr]
}

func (s *State) Credit(addr string, amount uint64) error {
	bal := s.Accounts[addr]
	if bal > ^uint64(0)-amount {
		return fmt.Errorf("balance overflow: have=%d add=%d", bal, amount)
	}
	s.Accounts[addr] = bal + amount
	return nil
}

func (s *State) Debit(addr string, amount uint64) error {
	bal := s.Accounts[addr]
	if bal < amount {
		return fmt.Errorf("insufficient funds: have=%d need=%d", bal, amount)
	}
	s.Accounts[addr] = bal - amount
	return nil
}

func (s *State) StatsFor(addr string) *PlayerStats {
	ps := s.Stats[addr]
	if ps == nil {
		ps = &PlayerStats{}
		s.Stats[addr] = ps
	}
	return ps
}

// ---- Match ----

type MatchStatus string

const (
	MatchWaiting   MatchStatus = "waitingForOpponent"
	MatchActive    MatchStatus = "active"
	MatchConcluded MatchStatus = "concluded"
)

// Match is the persistent per-pair record: players, their committed cipher
// keys, stacks, bonds, and the embedded per-hand state.
type Match struct {
	ID uint64 `json:"id"`

	// Players[0] is the creator. The creator deals hand 1.
	Players          [2]string `json:"players"`
	ExpectedOpponent string    `json:"expectedOpponent,omitempty"`

	// Keys holds both players' 32-byte big-endian cipher exponents,
	// committed at match start.
	Keys [2][]byte `json:"keys"`

	Stake  uint64    `json:"stake"`
	Stacks [2]uint64 `json:"stacks"`
	Bonds  [2]uint64 `json:"bonds"`

	// Escrow is the conserved total fixed when the second player joins:
	// stacks + bonds + pot must equal it for the life of the match.
	Escrow uint64 `json:"escrow,omitempty"`

	SmallBlind        uint64 `json:"smallBlind"`
	BigBlind          uint64 `json:"bigBlind"`
	ActionTimeoutSecs uint64 `json:"actionTimeoutSecs"`

	Status        MatchStatus `json:"status"`
	CurrentHandID uint64      `json:"currentHandId"`
	DealerIdx     int         `json:"dealerIdx"` // 0 or 1; button, posts SB

	Hand *HandState `json:"hand,omitempty"`
}

// PlayerIndex returns 0, 1, or -1.
func (m *Match) PlayerIndex(addr string) int {
	for i, p := range m.Players {
		if p != "" && p == addr {
			return i
		}
	}
	return -1
}

func (m *Match) NonDealer() int {
	return 1 - m.DealerIdx
}

func Other(idx int) int {
	return 1 - idx
}

// EscrowTotal is the conserved quantity while a match is active:
// both stacks, both bonds, and the live pot.
func (m *Match) EscrowTotal() uint64 {
	total := m.Stacks[0] + m.Stacks[1] + m.Bonds[0] + m.Bonds[1]
	if m.Hand != nil {
		total += m.Hand.Pot
	}
	return total
}

// ---- Hand ----

type Stage string

const (
	StageAwaitingCommit Stage = "awaitingCommit"
	StageAwaitingDealer Stage = "awaitingDealer"
	StagePreflopBet     Stage = "preflopBet"
	StageFlopReveal1    Stage = "flopReveal1"
	StageFlopReveal2    Stage = "flopReveal2"
	StageFlopBet        Stage = "flopBet"
	StageTurnReveal1    Stage = "turnReveal1"
	StageTurnReveal2    Stage = "turnReveal2"
	StageTurnBet        Stage = "turnBet"
	StageRiverReveal1   Stage = "riverReveal1"
	StageRiverReveal2   Stage = "riverReveal2"
	StageRiverBet       Stage = "riverBet"
	StageShowdown1      Stage = "showdown1"
	StageShowdown2      Stage = "showdown2"
	StageSettled        Stage = "settled"
)

var stageOrder = map[Stage]int{
	StageAwaitingCommit: 0,
	StageAwaitingDealer: 1,
	StagePreflopBet:     2,
	StageFlopReveal1:    3,
	StageFlopReveal2:    4,
	StageFlopBet:        5,
	StageTurnReveal1:    6,
	StageTurnReveal2:    7,
	StageTurnBet:        8,
	StageRiverReveal1:   9,
	StageRiverReveal2:   10,
	StageRiverBet:       11,
	StageShowdown1:      12,
	StageShowdown2:      13,
	StageSettled:        14,
}

// Index orders stages for the forward-only progress invariant.
func (s Stage) Index() int {
	return stageOrder[s]
}

func (s Stage) IsBet() bool {
	switch s {
	case StagePreflopBet, StageFlopBet, StageTurnBet, StageRiverBet:
		return true
	}
	return false
}

func (s Stage) IsCommunityReveal() bool {
	switch s {
	case StageFlopReveal1, StageFlopReveal2,
		StageTurnReveal1, StageTurnReveal2,
		StageRiverReveal1, StageRiverReveal2:
		return true
	}
	return false
}

func (s Stage) IsShowdown() bool {
	return s == StageShowdown1 || s == StageShowdown2
}

// Board slot layout: [0,1] creator pocket, [2,3] joiner pocket,
// [4,5,6] flop, [7] turn, [8] river.
const (
	SlotFlop0 = 4
	SlotTurn  = 7
	SlotRiver = 8
	NumSlots  = 9
)

// PocketSlots returns the board slots of a player's pocket.
func PocketSlots(playerIdx int) [2]uint8 {
	if playerIdx == 0 {
		return [2]uint8{0, 1}
	}
	return [2]uint8{2, 3}
}

// RevealSlots returns the community slots a reveal stage covers.
func (s Stage) RevealSlots() []uint8 {
	switch s {
	case StageFlopReveal1, StageFlopReveal2:
		return []uint8{4, 5, 6}
	case StageTurnReveal1, StageTurnReveal2:
		return []uint8{7}
	case StageRiverReveal1, StageRiverReveal2:
		return []uint8{8}
	}
	return nil
}

// StoredProof is an optimistic proof awaiting a possible dispute, keyed by
// (kind, slot). Reshuffle uses slot 0.
type StoredProof struct {
	Kind    string          `json:"kind"`
	Slot    uint8           `json:"slot"`
	Prover  int             `json:"prover"`
	Proof   []byte          `json:"proof"`
	Signals zkproof.Signals `json:"signals"`
}

// Dispute records the single allowed dispute of a hand.
type Dispute struct {
	Kind       string `json:"kind"`
	Slot       uint8  `json:"slot"`
	Challenger int    `json:"challenger"`
	ProofValid bool   `json:"proofValid"`
}

// HandResult is written when a hand settles.
type HandResult struct {
	Reason    string    `json:"reason"`    // fold|showdown|timeout|dispute|coherence
	WinnerIdx int       `json:"winnerIdx"` // -1 on a split
	Scores    [2]uint32 `json:"scores,omitempty"`
	Pot       uint64    `json:"pot"`
}

// HandState is reset for every hand. Board values are doubly-encrypted
// 32-byte ciphers; Partials[p][slot] is the board value with player p's
// layer stripped; Plain holds verified plaintexts.
type HandState struct {
	HandID uint64 `json:"handId"`
	Stage  Stage  `json:"stage"`

	// TurnIdx is the player to act in a bet stage, RevealTurn the player
	// obliged in a reveal/showdown stage; -1 when not applicable.
	TurnIdx    int `json:"turnIdx"`
	RevealTurn int `json:"revealTurn"`

	DeckRoot    []byte `json:"deckRoot,omitempty"`    // non-dealer's commitment
	NewDeckRoot []byte `json:"newDeckRoot,omitempty"` // dealer's re-encrypted deck

	Board    [NumSlots][]byte    `json:"board"`
	Partials [2][NumSlots][]byte `json:"partials"`
	Plain    [NumSlots]uint8     `json:"plain"`
	PlainSet [NumSlots]bool      `json:"plainSet"`

	Bets      [2]uint64 `json:"bets"`      // current street
	Committed [2]uint64 `json:"committed"` // whole hand, for result accounting
	Acted     [2]bool   `json:"acted"`
	AllIn  [2]bool   `json:"allIn"`
	Folded [2]bool   `json:"folded"`
	Pot    uint64    `json:"pot"`

	LastActionAt   int64 `json:"lastActionAt"`
	ActionDeadline int64 `json:"actionDeadline,omitempty"`
	RevealDeadline int64 `json:"revealDeadline,omitempty"`

	Proofs  []StoredProof `json:"proofs,omitempty"`
	Dispute *Dispute      `json:"dispute,omitempty"`

	Result *HandResult `json:"result,omitempty"`
}

// NewHand returns a zeroed hand in AwaitingCommit.
func NewHand(handID uint64) *HandState {
	return &HandState{
		HandID:     handID,
		Stage:      StageAwaitingCommit,
		TurnIdx:    -1,
		RevealTurn: -1,
	}
}

// FindProof returns the stored proof for (kind, slot), or nil.
func (h *HandState) FindProof(kind string, slot uint8) *StoredProof {
	for i := range h.Proofs {
		if h.Proofs[i].Kind == kind && h.Proofs[i].Slot == slot {
			return &h.Proofs[i]
		}
	}
	return nil
}

// CommunityRevealed reports whether all five community plaintexts are in.
func (h *HandState) CommunityRevealed() bool {
	for slot := SlotFlop0; slot <= SlotRiver; slot++ {
		if !h.PlainSet[slot] {
			return false
		}
	}
	return true
}

// PocketsRevealed reports whether a player's two pocket plaintexts are in.
func (h *HandState) PocketsRevealed(playerIdx int) bool {
	slots := PocketSlots(playerIdx)
	return h.PlainSet[slots[0]] && h.PlainSet[slots[1]]
}

// AnyAllIn reports whether either player is all-in, which suppresses further
// betting rounds.
func (h *HandState) AnyAllIn() bool {
	return h.AllIn[0] || h.AllIn[1]
}
