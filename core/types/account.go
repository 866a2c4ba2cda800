package types

import "math/big"

// Account holds the custodial balances tracked by the vault service. Balances
// are keyed by the normalized token symbol; absent entries mean zero.
type Account struct {
	Nonce    uint64              `json:"nonce"`
	Balances map[string]*big.Int `json:"balances"`
}

// NewAccount returns an empty account with an allocated balance map.
func NewAccount() *Account {
	return &Account{Balances: make(map[string]*big.Int)}
}

// BalanceOf returns the balance held for the token. The returned value is a
// copy; mutating it does not change the account.
func (a *Account) BalanceOf(token string) *big.Int {
	if a == nil || a.Balances == nil {
		return big.NewInt(0)
	}
	if bal, ok := a.Balances[token]; ok && bal != nil {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

// SetBalance records the balance for the token. Zero balances are removed so
// the stored record stays minimal.
func (a *Account) SetBalance(token string, amount *big.Int) {
	if a == nil {
		return
	}
	if a.Balances == nil {
		a.Balances = make(map[string]*big.Int)
	}
	if amount == nil || amount.Sign() == 0 {
		delete(a.Balances, token)
		return
	}
	a.Balances[token] = new(big.Int).Set(amount)
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	out := NewAccount()
	if a == nil {
		return out
	}
	out.Nonce = a.Nonce
	for token, bal := range a.Balances {
		if bal != nil {
			out.Balances[token] = new(big.Int).Set(bal)
		}
	}
	return out
}
