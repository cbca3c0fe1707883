package types

import (
	crand "crypto/rand"

	"github.com/ethereum/go-ethereum/common"
)

func RandBytes(n int) []byte {
	rbz := make([]byte, n)
	_, _ = crand.Read(rbz)
	return rbz
}

func RandHash() common.Hash {
	return common.BytesToHash(RandBytes(common.HashLength))
}
