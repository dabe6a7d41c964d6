// Package cipher implements the commutative SRA (Pohlig-Hellman style) card
// cipher over the protocol prime. A key is a single scalar k with
// gcd(k, P-1) = 1; encrypting raises to k, decrypting raises to
// k^-1 mod P-1. Because exponents commute, two players can layer their keys
// in either order and strip them in either order.
package cipher

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/holiman/uint256"

	"tiltpoker/internal/bigmod"
	"tiltpoker/internal/pokererr"
)

// Encrypted is a cipher value in [0, P), big-endian.
type Encrypted [32]byte

// KeyBytes is the serialized key size.
const KeyBytes = 32

// Cards 0..51 are embedded as 2..53 before exponentiation: x^k leaks x at
// x = 0 and x = 1.
const cardEmbedOffset = 2

func (e Encrypted) Int() *uint256.Int {
	return new(uint256.Int).SetBytes(e[:])
}

func fromInt(v *uint256.Int) Encrypted {
	return Encrypted(v.Bytes32())
}

// GenerateKey samples a uniform scalar in [3, P-1) until it is coprime to
// P-1. The same scalar serves as both the public and private component.
func GenerateKey(r io.Reader) (*uint256.Int, error) {
	if r == nil {
		r = rand.Reader
	}
	var buf [32]byte
	for {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, fmt.Errorf("cipher: sample key: %w", err)
		}
		k := new(uint256.Int).SetBytes(buf[:])
		k.Mod(k, bigmod.Prime())
		if k.LtUint64(3) {
			continue
		}
		if !bigmod.CoprimeToOrder(k) {
			continue
		}
		return k, nil
	}
}

// ValidateKey checks a deserialized key: in [3, P) and coprime to P-1.
func ValidateKey(k *uint256.Int) error {
	if k.LtUint64(3) || k.Cmp(bigmod.Prime()) >= 0 {
		return fmt.Errorf("cipher: key outside [3, P): %w", pokererr.ErrPrecondition)
	}
	if !bigmod.CoprimeToOrder(k) {
		return fmt.Errorf("cipher: key not coprime to P-1: %w", pokererr.ErrNoInverse)
	}
	return nil
}

// Embed maps a card id 0..51 into the plaintext domain.
func Embed(card uint8) (*uint256.Int, error) {
	if card > 51 {
		return nil, fmt.Errorf("cipher: card id %d: %w", card, pokererr.ErrOutOfRange)
	}
	return uint256.NewInt(uint64(card) + cardEmbedOffset), nil
}

// Encrypt applies one key layer to a plaintext card: embed(card)^k mod P.
func Encrypt(card uint8, key *uint256.Int) (Encrypted, error) {
	m, err := Embed(card)
	if err != nil {
		return Encrypted{}, err
	}
	return fromInt(bigmod.ModPow(m, key)), nil
}

// EncryptLayer applies one key layer to an already-encrypted value.
func EncryptLayer(e Encrypted, key *uint256.Int) Encrypted {
	return fromInt(bigmod.ModPow(e.Int(), key))
}

// StripLayer removes one key layer: e^(k^-1 mod P-1) mod P.
func StripLayer(e Encrypted, key *uint256.Int) (Encrypted, error) {
	inv, err := bigmod.ModInverse(key)
	if err != nil {
		return Encrypted{}, fmt.Errorf("cipher: strip layer: %w", err)
	}
	return fromInt(bigmod.ModPow(e.Int(), inv)), nil
}

// Decrypt strips the final layer and un-embeds the card. Fails with
// ErrOutOfRange when the result is not a card, which on an honest path is a
// protocol bug and on a hostile path is tampering.
func Decrypt(e Encrypted, key *uint256.Int) (uint8, error) {
	stripped, err := StripLayer(e, key)
	if err != nil {
		return 0, err
	}
	v := stripped.Int()
	if !v.IsUint64() {
		return 0, fmt.Errorf("cipher: decrypt: %w", pokererr.ErrOutOfRange)
	}
	u := v.Uint64()
	if u < cardEmbedOffset || u > cardEmbedOffset+51 {
		return 0, fmt.Errorf("cipher: decrypt to %d: %w", u, pokererr.ErrOutOfRange)
	}
	return uint8(u - cardEmbedOffset), nil
}
