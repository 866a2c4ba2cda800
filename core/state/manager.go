package state

import (
	"errors"
	"fmt"
	"math/big"
	"sort"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"streamvault/core/types"
	"streamvault/native/stream"
	"streamvault/storage"
)

var accountPrefix = []byte("account/")

// Manager mediates every read and write against the durable key-value store.
// Records are RLP encoded and addressed by keccak256 keys so layout stays
// stable across backends. A Manager is cheap to construct; the Node builds a
// fresh one per operation under its serialization lock.
type Manager struct {
	db storage.Database
}

func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func accountStorageKey(addr []byte) []byte {
	buf := make([]byte, len(accountPrefix)+len(addr))
	copy(buf, accountPrefix)
	copy(buf[len(accountPrefix):], addr)
	return ethcrypto.Keccak256(buf)
}

// tokenBalance is the RLP-friendly shape of one balance entry; the stored
// list is sorted by token so encodings are canonical.
type tokenBalance struct {
	Token  string
	Amount *big.Int
}

type storedAccount struct {
	Nonce    uint64
	Balances []tokenBalance
}

func newStoredAccount(acc *types.Account) *storedAccount {
	record := &storedAccount{}
	if acc == nil {
		return record
	}
	record.Nonce = acc.Nonce
	tokens := make([]string, 0, len(acc.Balances))
	for token, bal := range acc.Balances {
		if bal == nil || bal.Sign() == 0 {
			continue
		}
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	for _, token := range tokens {
		record.Balances = append(record.Balances, tokenBalance{
			Token:  token,
			Amount: new(big.Int).Set(acc.Balances[token]),
		})
	}
	return record
}

func (s *storedAccount) toAccount() *types.Account {
	acc := types.NewAccount()
	if s == nil {
		return acc
	}
	acc.Nonce = s.Nonce
	for _, entry := range s.Balances {
		if entry.Amount == nil {
			continue
		}
		acc.Balances[entry.Token] = new(big.Int).Set(entry.Amount)
	}
	return acc
}

// GetAccount loads the account stored for the address. Unknown addresses
// resolve to an empty account rather than an error.
func (m *Manager) GetAccount(addr []byte) (*types.Account, error) {
	data, err := m.db.Get(accountStorageKey(addr))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return types.NewAccount(), nil
	}
	if err != nil {
		return nil, err
	}
	record := new(storedAccount)
	if err := rlp.DecodeBytes(data, record); err != nil {
		return nil, fmt.Errorf("state: decode account: %w", err)
	}
	return record.toAccount(), nil
}

// PutAccount persists the account under the address key.
func (m *Manager) PutAccount(addr []byte, acc *types.Account) error {
	encoded, err := rlp.EncodeToBytes(newStoredAccount(acc))
	if err != nil {
		return fmt.Errorf("state: encode account: %w", err)
	}
	return m.db.Put(accountStorageKey(addr), encoded)
}

// Transfer moves amount of token between two accounts atomically from the
// caller's perspective: a failed debit leaves both untouched and a failed
// write restores the source. An insufficient source balance surfaces as
// stream.ErrInsufficientFunds.
func (m *Manager) Transfer(from, to [20]byte, token string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: negative transfer amount")
	}
	if amount.Sign() == 0 || from == to {
		return nil
	}
	normalized, err := stream.NormalizeToken(token)
	if err != nil {
		return err
	}
	fromAcc, err := m.GetAccount(from[:])
	if err != nil {
		return err
	}
	toAcc, err := m.GetAccount(to[:])
	if err != nil {
		return err
	}
	fromBal := fromAcc.BalanceOf(normalized)
	if fromBal.Cmp(amount) < 0 {
		return stream.ErrInsufficientFunds
	}
	originalFrom := fromAcc.Clone()
	fromAcc.SetBalance(normalized, new(big.Int).Sub(fromBal, amount))
	toAcc.SetBalance(normalized, new(big.Int).Add(toAcc.BalanceOf(normalized), amount))
	if err := m.PutAccount(from[:], fromAcc); err != nil {
		return err
	}
	if err := m.PutAccount(to[:], toAcc); err != nil {
		if restoreErr := m.PutAccount(from[:], originalFrom); restoreErr != nil {
			return errors.Join(err, fmt.Errorf("state: rollback source account: %w", restoreErr))
		}
		return err
	}
	return nil
}

// MintBalance credits amount of token to the address out of thin air. Used by
// genesis allocations and local test networks; never reachable from a stream
// operation.
func (m *Manager) MintBalance(addr [20]byte, token string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("state: mint amount must be positive")
	}
	normalized, err := stream.NormalizeToken(token)
	if err != nil {
		return err
	}
	acc, err := m.GetAccount(addr[:])
	if err != nil {
		return err
	}
	acc.SetBalance(normalized, new(big.Int).Add(acc.BalanceOf(normalized), amount))
	return m.PutAccount(addr[:], acc)
}
