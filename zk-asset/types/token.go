package types

import (
	"bytes"
	"fmt"
	"io"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
)

// TokenKind is the wire discriminant of a TokenType.
type TokenKind uint8

const (
	KindUnshielded TokenKind = 0
	KindShielded   TokenKind = 1
	KindDust       TokenKind = 2
)

func (k TokenKind) String() string {
	switch k {
	case KindUnshielded:
		return "unshielded"
	case KindShielded:
		return "shielded"
	case KindDust:
		return "dust"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// TokenType is a tagged token identifier. Two token types are equal only if
// both the kind and the identifier match, so a shielded and an unshielded
// type derived from the same inputs never alias.
type TokenType struct {
	Kind TokenKind
	ID   common.Hash
}

type ShieldedTokenType common.Hash
type UnshieldedTokenType common.Hash

var DustTokenType = TokenType{Kind: KindDust}

func (t ShieldedTokenType) TokenType() TokenType {
	return TokenType{Kind: KindShielded, ID: common.Hash(t)}
}

func (t ShieldedTokenType) Bytes() []byte {
	return t[:]
}

func (t ShieldedTokenType) String() string {
	return t.TokenType().String()
}

func (t UnshieldedTokenType) TokenType() TokenType {
	return TokenType{Kind: KindUnshielded, ID: common.Hash(t)}
}

func (t UnshieldedTokenType) Bytes() []byte {
	return t[:]
}

func (t UnshieldedTokenType) String() string {
	return t.TokenType().String()
}

// Shielded returns the shielded identifier if t is a shielded type.
func (t TokenType) Shielded() (ShieldedTokenType, bool) {
	if t.Kind != KindShielded {
		return ShieldedTokenType{}, false
	}
	return ShieldedTokenType(t.ID), true
}

// Unshielded returns the unshielded identifier if t is an unshielded type.
func (t TokenType) Unshielded() (UnshieldedTokenType, bool) {
	if t.Kind != KindUnshielded {
		return UnshieldedTokenType{}, false
	}
	return UnshieldedTokenType(t.ID), true
}

func (t TokenType) String() string {
	if t.Kind == KindDust {
		return "dust"
	}
	return fmt.Sprintf("%s:%x", t.Kind, t.ID[:8])
}

// Compare orders token types by kind, then by identifier.
func (t TokenType) Compare(o TokenType) int {
	if t.Kind != o.Kind {
		if t.Kind < o.Kind {
			return -1
		}
		return 1
	}
	return bytes.Compare(t.ID[:], o.ID[:])
}

// Bytes returns the wire encoding: the discriminant followed by the 32-byte
// identifier, or the discriminant alone for dust.
func (t TokenType) Bytes() []byte {
	if t.Kind == KindDust {
		return []byte{byte(KindDust)}
	}
	out := make([]byte, 1+common.HashLength)
	out[0] = byte(t.Kind)
	copy(out[1:], t.ID[:])
	return out
}

func (t TokenType) MarshalBinary() ([]byte, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t.Bytes(), nil
}

func (t *TokenType) UnmarshalBinary(data []byte) error {
	if len(data) == 0 {
		return &MalformedError{What: "token type", Reason: "empty encoding"}
	}
	kind := TokenKind(data[0])
	switch kind {
	case KindDust:
		if len(data) != 1 {
			return &MalformedError{What: "token type", Reason: fmt.Sprintf("dust encoding has %d trailing bytes", len(data)-1)}
		}
		*t = DustTokenType
	case KindShielded, KindUnshielded:
		if len(data) != 1+common.HashLength {
			return &MalformedError{What: "token type", Reason: fmt.Sprintf("wrong length: expected(%d), got(%d)", 1+common.HashLength, len(data))}
		}
		*t = TokenType{Kind: kind, ID: common.BytesToHash(data[1:])}
	default:
		return &MalformedError{What: "token type", Reason: fmt.Sprintf("unknown discriminant %d", data[0])}
	}
	return nil
}

// Validate reports a MalformedError for an unknown kind or a dust type
// carrying an identifier.
func (t TokenType) Validate() error {
	switch t.Kind {
	case KindDust:
		if t.ID != (common.Hash{}) {
			return &MalformedError{What: "token type", Reason: "dust carries an identifier"}
		}
	case KindShielded, KindUnshielded:
	default:
		return &MalformedError{What: "token type", Reason: fmt.Sprintf("unknown discriminant %d", uint8(t.Kind))}
	}
	return nil
}

// EncodeRLP implements rlp.Encoder using the wire encoding.
func (t TokenType) EncodeRLP(w io.Writer) error {
	bz, err := t.MarshalBinary()
	if err != nil {
		return err
	}
	return rlp.Encode(w, bz)
}

// DecodeRLP implements rlp.Decoder.
func (t *TokenType) DecodeRLP(s *rlp.Stream) error {
	bz, err := s.Bytes()
	if err != nil {
		return err
	}
	return t.UnmarshalBinary(bz)
}

// TokenTypeFromBytes decodes a wire-encoded token type.
// It panics on malformed input; use UnmarshalBinary for untrusted data.
func TokenTypeFromBytes(bz []byte) TokenType {
	var t TokenType
	if err := t.UnmarshalBinary(bz); err != nil {
		panic(err)
	}
	return t
}

// SortTokenTypes sorts tt in place by Compare.
func SortTokenTypes(tt []TokenType) {
	slices.SortFunc(tt, TokenType.Compare)
}
