package prover

import (
	"github.com/holiman/uint256"
	"github.com/kysee/zkledger/zk-asset/types"
)

// Wallet holds the coins of one coin secret key. Coin discovery is not its
// concern; coins are added by whoever created them.
type Wallet struct {
	Secret types.CoinSecretKey
	coins  []*types.CoinInfo
}

func NewWallet() *Wallet {
	w := &Wallet{}
	copy(w.Secret[:], types.RandBytes(32))
	return w
}

func (w *Wallet) PublicKey() types.CoinPublicKey {
	return w.Secret.PublicKey()
}

func (w *Wallet) Owner() Owner {
	return UserOwner(w.Secret)
}

func (w *Wallet) Recipient() types.Recipient {
	return types.Recipient{ID: w.PublicKey()}
}

func (w *Wallet) AddCoin(coin *types.CoinInfo) {
	w.coins = append(w.coins, coin)
}

func (w *Wallet) GetCoin(idx int) *types.CoinInfo {
	if idx < len(w.coins) {
		return w.coins[idx]
	}
	return nil
}

func (w *Wallet) GetCoinsCount() int {
	return len(w.coins)
}

// Sync drops the coins whose nullifier has been spent and returns the
// number of coins left.
func (w *Wallet) Sync(spent func(types.Nullifier) bool) int {
	kept := w.coins[:0]
	for _, c := range w.coins {
		if spent(c.Nullifier(w.Secret)) {
			continue
		}
		kept = append(kept, c)
	}
	w.coins = kept
	return len(w.coins)
}

// GetBalance sums the values of the held coins of type tt.
func (w *Wallet) GetBalance(tt types.ShieldedTokenType) *uint256.Int {
	ret := uint256.NewInt(0)
	for _, c := range w.coins {
		if c.Type == tt {
			ret = ret.Add(ret, c.Value)
		}
	}
	return ret
}
