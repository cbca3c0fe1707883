package types

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/kysee/zkledger/utils"
)

// TagDeriveToken is the versioned domain tag of custom token derivation.
const TagDeriveToken = "zkledger:derive_token:v1"

// DeriveTokenID derives the identifier of a contract-issued token from the
// contract address and a caller-chosen domain separator.
func DeriveTokenID(contract ContractAddress, domainSep common.Hash) common.Hash {
	return common.BytesToHash(utils.KeyedHash(TagDeriveToken, domainSep[:], contract[:]))
}

func CustomShieldedTokenType(contract ContractAddress, domainSep common.Hash) ShieldedTokenType {
	return ShieldedTokenType(DeriveTokenID(contract, domainSep))
}

func CustomUnshieldedTokenType(contract ContractAddress, domainSep common.Hash) UnshieldedTokenType {
	return UnshieldedTokenType(DeriveTokenID(contract, domainSep))
}
