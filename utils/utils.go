package utils

import (
	"fmt"
	"hash"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/consensys/gnark-crypto/ecc/twistededwards"
	"golang.org/x/crypto/blake2s"
)

var (
	CURVEID = twistededwards.BN254
)

const (
	HasherMiMC    = "mimc"
	HasherBlake2s = "blake2s"
)

func DefaultHasher() hash.Hash {
	return MiMCHasher()
}

func DefaultHashSum(ins ...[]byte) []byte {
	return MiMCHash(ins...)
}

// HasherByName returns the constructor of a named tree hasher.
func HasherByName(name string) (func() hash.Hash, error) {
	switch name {
	case "", HasherMiMC:
		return MiMCHasher, nil
	case HasherBlake2s:
		return Blake2sHasher, nil
	default:
		return nil, fmt.Errorf("unknown hasher: %s", name)
	}
}

// MiMCHasher returns a hash.Hash over MiMC/BN254 that accepts arbitrary bytes.
func MiMCHasher() hash.Hash {
	return &fieldHasher{inner: mimc.NewMiMC()}
}

// MiMCHash hashes ins as a list of BN254 scalar field elements.
// Every input is split into 32-byte chunks and each chunk is reduced modulo
// the field order, so the result matches a circuit writing the same elements.
func MiMCHash(ins ...[]byte) []byte {
	hasher := mimc.NewMiMC()
	hasher.Reset()
	for _, in := range ins {
		for _, chunk := range fieldChunks(in) {
			if _, err := hasher.Write(chunk); err != nil {
				panic(err)
			}
		}
	}
	return hasher.Sum(nil)
}

// FieldElement returns the canonical 32-byte encoding of b reduced modulo
// the BN254 scalar field order.
func FieldElement(b []byte) []byte {
	var elem fr.Element
	elem.SetBytes(b)
	return elem.Marshal()
}

func fieldChunks(in []byte) [][]byte {
	const blockSize = fr.Bytes

	var chunks [][]byte
	for i := 0; i < len(in); i += blockSize {
		end := i + blockSize
		if end > len(in) {
			end = len(in)
		}
		// this value may be greater than the modulus; convert to fr.Element
		chunks = append(chunks, FieldElement(in[i:end]))
	}
	return chunks
}

// fieldHasher buffers the written bytes and feeds them to the inner MiMC
// hasher as canonical field elements when Sum is called.
type fieldHasher struct {
	inner hash.Hash
	buf   []byte
}

func (w *fieldHasher) Write(p []byte) (n int, err error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

func (w *fieldHasher) Sum(b []byte) []byte {
	w.inner.Reset()
	for _, chunk := range fieldChunks(w.buf) {
		if _, err := w.inner.Write(chunk); err != nil {
			panic(err)
		}
	}
	return append(b, w.inner.Sum(nil)...)
}

func (w *fieldHasher) Reset() {
	w.buf = w.buf[:0]
	w.inner.Reset()
}

func (w *fieldHasher) Size() int {
	return w.inner.Size()
}

func (w *fieldHasher) BlockSize() int {
	return fr.Bytes
}

// Blake2sHasher returns an unkeyed BLAKE2s-256 hasher.
func Blake2sHasher() hash.Hash {
	h, err := blake2s.New256(nil)
	if err != nil {
		panic(err)
	}
	return h
}

// KeyedHash computes BLAKE2s-256 keyed with the domain tag.
// Tags longer than 32 bytes are rejected by blake2s and cause a panic.
func KeyedHash(tag string, ins ...[]byte) []byte {
	h, err := blake2s.New256([]byte(tag))
	if err != nil {
		panic(err)
	}
	for _, in := range ins {
		h.Write(in)
	}
	return h.Sum(nil)
}
