package bigmod

import (
	"errors"
	"math/big"
	"math/rand"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"tiltpoker/internal/pokererr"
)

func randU256(r *rand.Rand) *uint256.Int {
	var b [32]byte
	r.Read(b[:])
	return new(uint256.Int).SetBytes(b[:])
}

func TestPrimeValue(t *testing.T) {
	want := new(big.Int).Lsh(big.NewInt(1), 256)
	want.Sub(want, big.NewInt(189))
	require.Zero(t, Prime().ToBig().Cmp(want))
	require.Zero(t, PrimeMinusOne().ToBig().Cmp(new(big.Int).Sub(want, big.NewInt(1))))
}

func TestModPowMatchesBigInt(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	p := Prime().ToBig()
	for i := 0; i < 50; i++ {
		base := randU256(r)
		exp := randU256(r)
		got := ModPow(base, exp)
		want := new(big.Int).Exp(base.ToBig(), exp.ToBig(), p)
		require.Zero(t, got.ToBig().Cmp(want), "iteration %d", i)
	}
}

func TestModPowEdges(t *testing.T) {
	one := uint256.NewInt(1)
	require.True(t, ModPow(uint256.NewInt(0), uint256.NewInt(0)).Eq(one))
	require.True(t, ModPow(uint256.NewInt(7), uint256.NewInt(0)).Eq(one))
	require.True(t, ModPow(Prime(), uint256.NewInt(5)).IsZero())
}

func TestModInverseRoundtrip(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	order := PrimeMinusOne().ToBig()
	found := 0
	for found < 20 {
		x := randU256(r)
		if !CoprimeToOrder(x) {
			continue
		}
		found++
		inv, err := ModInverse(x)
		require.NoError(t, err)
		prod := new(big.Int).Mul(x.ToBig(), inv.ToBig())
		prod.Mod(prod, order)
		require.Zero(t, prod.Cmp(big.NewInt(1)))
	}
}

func TestModInverseNoInverse(t *testing.T) {
	// P-1 = 2^256 - 190 is even, so any even x shares a factor with it.
	_, err := ModInverse(uint256.NewInt(6))
	require.Error(t, err)
	require.True(t, errors.Is(err, pokererr.ErrNoInverse))

	_, err = ModInverse(uint256.NewInt(0))
	require.True(t, errors.Is(err, pokererr.ErrNoInverse))
}

func TestGCD(t *testing.T) {
	require.True(t, GCD(uint256.NewInt(12), uint256.NewInt(18)).Eq(uint256.NewInt(6)))
	require.True(t, GCD(uint256.NewInt(35), uint256.NewInt(64)).Eq(uint256.NewInt(1)))
	require.False(t, CoprimeToOrder(uint256.NewInt(2)))
	require.True(t, CoprimeToOrder(uint256.NewInt(7)))
}
