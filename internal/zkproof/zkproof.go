// Package zkproof defines the proof-kind tagged union, the public-signal
// shapes, and the pluggable Verifier the state machine consults. The core
// owns only the interface and the eager-vs-optimistic policy; the proving
// system behind it is swappable.
package zkproof

import (
	"bytes"
	"encoding/binary"

	"golang.org/x/crypto/sha3"
)

// Kind tags the three proof obligations of the protocol.
type Kind string

const (
	// DeckCreation attests that a committed Merkle root covers a
	// permutation of all 52 cards singly encrypted under the author's key.
	// Verified eagerly at commit time.
	DeckCreation Kind = "deckCreation"

	// Reshuffle attests that a new deck commitment is a re-encryption and
	// permutation of an old one. Stored optimistically.
	Reshuffle Kind = "reshuffle"

	// Decryption attests that a partial reveal is the stored cipher with
	// the revealer's layer correctly stripped. Stored optimistically.
	Decryption Kind = "decryption"
)

// Valid reports whether k names a known proof kind.
func (k Kind) Valid() bool {
	switch k {
	case DeckCreation, Reshuffle, Decryption:
		return true
	}
	return false
}

// Signals is the public-signal bag bound into a proof. Field use by kind:
//
//	DeckCreation: A = merkle root,  C = author key
//	Reshuffle:    A = old root,     B = new root,        C = reshuffler key
//	Decryption:   A = stored cipher, B = revealed value, C = revealer key
type Signals struct {
	A []byte `json:"a"`
	B []byte `json:"b,omitempty"`
	C []byte `json:"c"`
}

// Verifier checks an opaque proof against its kind and public signals.
type Verifier interface {
	Verify(kind Kind, proof []byte, signals Signals) bool
}

const transcriptDomain = "tiltpoker/v1/proof-transcript"

// transcript binds kind and signals with length-prefixed framing.
func transcript(kind Kind, signals Signals) [32]byte {
	h := sha3.NewLegacyKeccak256()
	write := func(b []byte) {
		var n [4]byte
		binary.LittleEndian.PutUint32(n[:], uint32(len(b)))
		h.Write(n[:])
		h.Write(b)
	}
	write([]byte(transcriptDomain))
	write([]byte(kind))
	write(signals.A)
	write(signals.B)
	write(signals.C)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// TranscriptVerifier accepts a proof iff it equals the keccak transcript of
// (kind, signals). It gives devnets and tests a real accept/reject surface
// with none of the soundness of a production proving system.
type TranscriptVerifier struct{}

func (TranscriptVerifier) Verify(kind Kind, proof []byte, signals Signals) bool {
	if !kind.Valid() || len(proof) != 32 {
		return false
	}
	want := transcript(kind, signals)
	return bytes.Equal(proof, want[:])
}

// Prove produces the proof bytes TranscriptVerifier accepts.
func (TranscriptVerifier) Prove(kind Kind, signals Signals) []byte {
	t := transcript(kind, signals)
	return t[:]
}
