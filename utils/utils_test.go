package utils

import (
	"testing"

	"github.com/consensys/gnark-crypto/accumulator/merkletree"
	"github.com/stretchr/testify/require"
)

func TestMiMCHashReducesChunks(t *testing.T) {
	small := []byte{0x05}
	padded := make([]byte, 32)
	padded[31] = 0x05
	require.Equal(t, MiMCHash(small), MiMCHash(padded))

	// 0xff..ff is larger than the modulus and must still hash
	big := make([]byte, 32)
	for i := range big {
		big[i] = 0xff
	}
	require.Len(t, MiMCHash(big), 32)
}

func TestFieldHasherMatchesMiMCHash(t *testing.T) {
	a := FieldElement([]byte("left"))
	b := FieldElement([]byte("right"))

	h := MiMCHasher()
	h.Write(a)
	h.Write(b)
	require.Equal(t, MiMCHash(a, b), h.Sum(nil))

	h.Reset()
	h.Write(a)
	require.Equal(t, MiMCHash(a), h.Sum(nil))
}

func TestTreeHashers(t *testing.T) {
	for _, name := range []string{HasherMiMC, HasherBlake2s} {
		newHasher, err := HasherByName(name)
		require.NoError(t, err)

		tree := merkletree.New(newHasher())
		for i := 0; i < 5; i++ {
			tree.Push(KeyedHash("leaf", []byte{byte(i)}))
		}
		require.Len(t, tree.Root(), 32, name)
	}

	_, err := HasherByName("sha1")
	require.ErrorContains(t, err, "unknown hasher")
}

func TestKeyedHashSeparatesDomains(t *testing.T) {
	require.NotEqual(t, KeyedHash("a", []byte("x")), KeyedHash("b", []byte("x")))
	require.Equal(t, KeyedHash("a", []byte("x")), KeyedHash("a", []byte("x")))
}
