package types

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/base58"
	"github.com/ethereum/go-ethereum/common"
)

const (
	ver = 0x01

	userPrefix     = "bz"
	contractPrefix = "bc"
)

// UserAddress identifies the owner of unshielded outputs.
type UserAddress [32]byte

// ContractAddress identifies a deployed contract.
type ContractAddress [32]byte

func EncodeAddress(prefix string, payload []byte) string {
	return prefix + base58.CheckEncode(payload, ver)
}

func DecodeAddress(prefix, addr string) ([]byte, error) {
	if !strings.HasPrefix(addr, prefix) {
		if len(addr) < len(prefix) {
			return nil, fmt.Errorf("wrong prefix: got(%s)", addr)
		}
		return nil, fmt.Errorf("wrong prefix: got(%s)", addr[:len(prefix)])
	}
	bz, _ver, err := base58.CheckDecode(addr[len(prefix):])
	if err != nil {
		return nil, err
	}
	if _ver != ver {
		return nil, fmt.Errorf("wrong version: expected(%d), got(%d)", ver, _ver)
	}
	if len(bz) != 32 {
		return nil, fmt.Errorf("wrong length: expected(32), got(%d)", len(bz))
	}
	return bz, nil
}

func (a UserAddress) String() string {
	return EncodeAddress(userPrefix, a[:])
}

func (a UserAddress) Bytes() []byte {
	return a[:]
}

func ParseUserAddress(addr string) (UserAddress, error) {
	var out UserAddress
	bz, err := DecodeAddress(userPrefix, addr)
	if err != nil {
		return out, err
	}
	copy(out[:], bz)
	return out, nil
}

func (a ContractAddress) String() string {
	return EncodeAddress(contractPrefix, a[:])
}

func (a ContractAddress) Bytes() []byte {
	return a[:]
}

func ParseContractAddress(addr string) (ContractAddress, error) {
	var out ContractAddress
	bz, err := DecodeAddress(contractPrefix, addr)
	if err != nil {
		return out, err
	}
	copy(out[:], bz)
	return out, nil
}

// ContractAddressFromBytes panics if bz is not 32 bytes long.
func ContractAddressFromBytes(bz []byte) ContractAddress {
	if len(bz) != 32 {
		panic(fmt.Sprintf("contract address: wrong length: expected(32), got(%d)", len(bz)))
	}
	var out ContractAddress
	copy(out[:], bz)
	return out
}

// HashFromBytes panics if bz is not 32 bytes long.
func HashFromBytes(bz []byte) common.Hash {
	if len(bz) != common.HashLength {
		panic(fmt.Sprintf("hash: wrong length: expected(%d), got(%d)", common.HashLength, len(bz)))
	}
	return common.BytesToHash(bz)
}

// Recipient is either a user or a contract.
type Recipient struct {
	IsContract bool
	ID         [32]byte
}

func UserRecipient(a UserAddress) Recipient {
	return Recipient{ID: a}
}

func ContractRecipient(a ContractAddress) Recipient {
	return Recipient{IsContract: true, ID: a}
}

func (r Recipient) String() string {
	if r.IsContract {
		return ContractAddress(r.ID).String()
	}
	return UserAddress(r.ID).String()
}
