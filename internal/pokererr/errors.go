// Package pokererr defines the protocol error taxonomy. Handlers wrap these
// sentinels with fmt.Errorf("...: %w", ...) context; callers branch with
// errors.Is.
package pokererr

import "errors"

var (
	// ErrPrecondition covers wrong stage, wrong turn, missing blinds and
	// every other "reissue correctly" rejection.
	ErrPrecondition = errors.New("precondition violated")

	// ErrDeadlineExpired means the caller missed their own deadline. The
	// opponent may claim the timeout.
	ErrDeadlineExpired = errors.New("deadline expired")

	// ErrProofInvalid is an eager DeckCreation failure, or a dispute that
	// found a stored Reshuffle/Decryption proof to be bad.
	ErrProofInvalid = errors.New("proof invalid")

	// ErrNoSuchProof: a dispute targeted a (kind, slot) with nothing stored.
	ErrNoSuchProof = errors.New("no stored proof for dispute target")

	// ErrCoherence: a revealed plaintext does not re-encrypt to the stored
	// cipher. The revealer forfeits the hand.
	ErrCoherence = errors.New("reveal coherence failure")

	ErrInsufficientStack = errors.New("insufficient stack")

	// ErrNoInverse and ErrOutOfRange are the CryptoError kinds.
	ErrNoInverse  = errors.New("no modular inverse")
	ErrOutOfRange = errors.New("decrypted value out of card range")

	ErrMerkleMismatch = errors.New("merkle inclusion proof mismatch")

	// ErrConservation is internal: a transfer would break the
	// stack/pot/bond invariant. Reaching it is a bug, not a user error.
	ErrConservation = errors.New("conservation violation")
)
