package node

import (
	"fmt"

	"github.com/kysee/zkledger/zk-asset/effects"
	"github.com/kysee/zkledger/zk-asset/shielded"
	"github.com/kysee/zkledger/zk-asset/types"
	"github.com/kysee/zkledger/zk-asset/unshielded"
)

// Transaction is a set of shielded bundles and unshielded offers, at most
// one of each per segment, together with the contract calls that move
// value between them.
type Transaction struct {
	Shielded   []*shielded.Bundle
	Unshielded []*unshielded.Offer
	Calls      []*effects.Call
}

// Validate checks the shape of tx.
func (tx *Transaction) Validate() error {
	seen := make(map[types.Segment]bool)
	for i, b := range tx.Shielded {
		if b == nil {
			return &types.MalformedError{What: "transaction", Reason: fmt.Sprintf("shielded bundle %d is nil", i)}
		}
		if seen[b.Segment] {
			return &types.MalformedError{What: "transaction", Reason: fmt.Sprintf("two shielded bundles in segment %d", b.Segment)}
		}
		seen[b.Segment] = true
	}

	seen = make(map[types.Segment]bool)
	for i, o := range tx.Unshielded {
		if o == nil {
			return &types.MalformedError{What: "transaction", Reason: fmt.Sprintf("unshielded offer %d is nil", i)}
		}
		if seen[o.Segment] {
			return &types.MalformedError{What: "transaction", Reason: fmt.Sprintf("two unshielded offers in segment %d", o.Segment)}
		}
		seen[o.Segment] = true
	}

	for i, c := range tx.Calls {
		if c == nil {
			return &types.MalformedError{What: "transaction", Reason: fmt.Sprintf("call %d is nil", i)}
		}
	}
	return nil
}

// Bundles indexes the shielded bundles by segment.
func (tx *Transaction) Bundles() map[types.Segment]*shielded.Bundle {
	ret := make(map[types.Segment]*shielded.Bundle, len(tx.Shielded))
	for _, b := range tx.Shielded {
		ret[b.Segment] = b
	}
	return ret
}

// Offers indexes the unshielded offers by segment.
func (tx *Transaction) Offers() map[types.Segment]*unshielded.Offer {
	ret := make(map[types.Segment]*unshielded.Offer, len(tx.Unshielded))
	for _, o := range tx.Unshielded {
		ret[o.Segment] = o
	}
	return ret
}
