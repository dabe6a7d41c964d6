// Package bigmod provides fixed-width 256-bit arithmetic modulo the protocol
// prime P = 2^256 - 189 (a safe prime). All exponentiation stays on
// uint256.Int; the only big.Int excursion is the extended-Euclid inverse
// modulo P-1, which is composite and therefore outside Fermat territory.
package bigmod

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	"tiltpoker/internal/pokererr"
)

// PrimeBytes is P = 2^256 - 189 in big-endian form.
var PrimeBytes = [32]byte{
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x43,
}

var (
	prime         = new(uint256.Int).SetBytes(PrimeBytes[:])
	primeMinusOne = new(uint256.Int).Sub(prime, uint256.NewInt(1))
)

// Prime returns a copy of P.
func Prime() *uint256.Int {
	return new(uint256.Int).Set(prime)
}

// PrimeMinusOne returns a copy of P-1, the exponent-group order.
func PrimeMinusOne() *uint256.Int {
	return new(uint256.Int).Set(primeMinusOne)
}

// ModPow computes base^exp mod P by binary square-and-multiply over MulMod.
// The 512-bit intermediate products live inside MulMod, so nothing escapes
// the fixed-width representation.
func ModPow(base, exp *uint256.Int) *uint256.Int {
	result := uint256.NewInt(1)
	pow := new(uint256.Int).Mod(base, prime)
	for i := 0; i < 256; i++ {
		if (exp[i/64]>>(i%64))&1 == 1 {
			result.MulMod(result, pow, prime)
		}
		pow.MulMod(pow, pow, prime)
	}
	return result
}

// ModInverse computes x^-1 mod P-1. P-1 is composite, so the inverse exists
// only when gcd(x, P-1) = 1; otherwise it fails with ErrNoInverse.
func ModInverse(x *uint256.Int) (*uint256.Int, error) {
	if x.IsZero() {
		return nil, fmt.Errorf("bigmod: inverse of zero: %w", pokererr.ErrNoInverse)
	}
	inv := new(big.Int).ModInverse(x.ToBig(), primeMinusOne.ToBig())
	if inv == nil {
		return nil, fmt.Errorf("bigmod: gcd(x, P-1) != 1: %w", pokererr.ErrNoInverse)
	}
	out, overflow := uint256.FromBig(inv)
	if overflow {
		return nil, fmt.Errorf("bigmod: inverse overflow: %w", pokererr.ErrNoInverse)
	}
	return out, nil
}

// GCD returns gcd(a, b).
func GCD(a, b *uint256.Int) *uint256.Int {
	g := new(big.Int).GCD(nil, nil, a.ToBig(), b.ToBig())
	out, _ := uint256.FromBig(g)
	return out
}

// CoprimeToOrder reports whether gcd(k, P-1) = 1, i.e. whether k is a usable
// cipher exponent.
func CoprimeToOrder(k *uint256.Int) bool {
	return GCD(k, primeMinusOne).Eq(uint256.NewInt(1))
}
