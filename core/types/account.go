package types

import "math/big"

// Account tracks the reserve-currency balance and per-asset holdings of one
// address. Balances are big.Int so the ledger can hold totals past a single
// sale's 64-bit quantities; the engine converts at the boundary with an
// explicit range check.
type Account struct {
	Nonce          uint64
	BalanceReserve *big.Int
	Assets         map[[32]byte]*big.Int
}

// NewAccount returns an account with zeroed balances.
func NewAccount() *Account {
	return &Account{BalanceReserve: big.NewInt(0), Assets: make(map[[32]byte]*big.Int)}
}

// Normalize ensures all balance fields are non-nil.
func (a *Account) Normalize() *Account {
	if a == nil {
		return NewAccount()
	}
	if a.BalanceReserve == nil {
		a.BalanceReserve = big.NewInt(0)
	}
	if a.Assets == nil {
		a.Assets = make(map[[32]byte]*big.Int)
	}
	return a
}

// AssetBalance returns the holding for the given asset, zero when absent.
func (a *Account) AssetBalance(assetID [32]byte) *big.Int {
	if a == nil || a.Assets == nil {
		return big.NewInt(0)
	}
	if bal, ok := a.Assets[assetID]; ok && bal != nil {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return NewAccount()
	}
	clone := NewAccount()
	clone.Nonce = a.Nonce
	if a.BalanceReserve != nil {
		clone.BalanceReserve = new(big.Int).Set(a.BalanceReserve)
	}
	for id, bal := range a.Assets {
		if bal != nil {
			clone.Assets[id] = new(big.Int).Set(bal)
		}
	}
	return clone
}
