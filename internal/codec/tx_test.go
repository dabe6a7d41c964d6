package codec

import (
	"encoding/json"
	"testing"
)

func TestDecodeTxEnvelope(t *testing.T) {
	raw := []byte(`{"type":"poker/action","value":{"player":"alice","matchId":3,"action":"check"}}`)
	env, err := DecodeTxEnvelope(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Type != "poker/action" {
		t.Fatalf("unexpected type %q", env.Type)
	}
	var msg PokerActionTx
	if err := json.Unmarshal(env.Value, &msg); err != nil {
		t.Fatalf("unmarshal value: %v", err)
	}
	if msg.Player != "alice" || msg.MatchID != 3 || msg.Action != "check" {
		t.Fatalf("unexpected payload: %+v", msg)
	}
}

func TestDecodeTxEnvelopeErrors(t *testing.T) {
	if _, err := DecodeTxEnvelope([]byte("not json")); err == nil {
		t.Fatalf("expected error for invalid json")
	}
	if _, err := DecodeTxEnvelope([]byte(`{"value":{}}`)); err == nil {
		t.Fatalf("expected error for missing type")
	}
}

func TestJoinHandRoundtrip(t *testing.T) {
	msg := PokerJoinHandTx{
		Player:  "bob",
		MatchID: 1,
		NewRoot: make([]byte, 32),
		Slots: [9]JoinSlot{
			{Single: make([]byte, 32), Double: make([]byte, 32), Index: 17,
				Siblings: [][]byte{make([]byte, 32)}},
		},
		PocketPartials: []PartialReveal{{Slot: 0, Value: make([]byte, 32)}},
	}
	b, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out PokerJoinHandTx
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Slots[0].Index != 17 || len(out.PocketPartials) != 1 {
		t.Fatalf("roundtrip mismatch: %+v", out)
	}
}
