package zkproof

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTranscriptVerifierAcceptsOwnProofs(t *testing.T) {
	v := TranscriptVerifier{}
	sig := Signals{A: []byte{1, 2, 3}, B: []byte{4}, C: []byte{5, 6}}
	for _, k := range []Kind{DeckCreation, Reshuffle, Decryption} {
		proof := v.Prove(k, sig)
		require.Len(t, proof, 32)
		require.True(t, v.Verify(k, proof, sig))
	}
}

func TestTranscriptVerifierRejects(t *testing.T) {
	v := TranscriptVerifier{}
	sig := Signals{A: []byte{1}, C: []byte{2}}
	proof := v.Prove(Reshuffle, sig)

	// Flipped bit.
	bad := append([]byte(nil), proof...)
	bad[0] ^= 1
	require.False(t, v.Verify(Reshuffle, bad, sig))

	// Wrong kind, wrong signals, wrong length.
	require.False(t, v.Verify(Decryption, proof, sig))
	require.False(t, v.Verify(Reshuffle, proof, Signals{A: []byte{9}, C: []byte{2}}))
	require.False(t, v.Verify(Reshuffle, proof[:31], sig))
	require.False(t, v.Verify(Kind("bogus"), proof, sig))
}

func TestSignalFramingIsPositional(t *testing.T) {
	// Moving a byte between adjacent fields must change the transcript.
	v := TranscriptVerifier{}
	a := Signals{A: []byte{1, 2}, B: []byte{3}, C: nil}
	b := Signals{A: []byte{1}, B: []byte{2, 3}, C: nil}
	require.False(t, v.Verify(Reshuffle, v.Prove(Reshuffle, a), b))
}
