package state

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"streamvault/native/stream"
	"streamvault/storage"
)

func testAddr(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

func TestAccountRoundTrip(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	addr := testAddr(0x01)

	acc, err := m.GetAccount(addr[:])
	require.NoError(t, err)
	require.Equal(t, int64(0), acc.BalanceOf("SVT").Int64())

	acc.Nonce = 7
	acc.SetBalance("SVT", big.NewInt(1234))
	acc.SetBalance("USDX", big.NewInt(99))
	require.NoError(t, m.PutAccount(addr[:], acc))

	loaded, err := m.GetAccount(addr[:])
	require.NoError(t, err)
	require.Equal(t, uint64(7), loaded.Nonce)
	require.Equal(t, int64(1234), loaded.BalanceOf("SVT").Int64())
	require.Equal(t, int64(99), loaded.BalanceOf("USDX").Int64())
}

func TestAccountZeroBalancesPruned(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	addr := testAddr(0x02)

	acc, err := m.GetAccount(addr[:])
	require.NoError(t, err)
	acc.SetBalance("SVT", big.NewInt(10))
	acc.SetBalance("SVT", big.NewInt(0))
	require.NoError(t, m.PutAccount(addr[:], acc))

	loaded, err := m.GetAccount(addr[:])
	require.NoError(t, err)
	require.Empty(t, loaded.Balances)
}

func TestTransferMovesBalance(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	from := testAddr(0x01)
	to := testAddr(0x02)

	require.NoError(t, m.MintBalance(from, "SVT", big.NewInt(1000)))
	require.NoError(t, m.Transfer(from, to, "svt", big.NewInt(400)))

	fromAcc, err := m.GetAccount(from[:])
	require.NoError(t, err)
	toAcc, err := m.GetAccount(to[:])
	require.NoError(t, err)
	require.Equal(t, int64(600), fromAcc.BalanceOf("SVT").Int64())
	require.Equal(t, int64(400), toAcc.BalanceOf("SVT").Int64())
}

func TestTransferInsufficientFunds(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	from := testAddr(0x01)
	to := testAddr(0x02)

	require.NoError(t, m.MintBalance(from, "SVT", big.NewInt(100)))
	err := m.Transfer(from, to, "SVT", big.NewInt(101))
	require.ErrorIs(t, err, stream.ErrInsufficientFunds)

	fromAcc, err := m.GetAccount(from[:])
	require.NoError(t, err)
	require.Equal(t, int64(100), fromAcc.BalanceOf("SVT").Int64())
}

func TestTransferRejectsNegative(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	err := m.Transfer(testAddr(0x01), testAddr(0x02), "SVT", big.NewInt(-1))
	require.Error(t, err)
}

func TestTransferZeroAndSelfAreNoOps(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	addr := testAddr(0x01)
	require.NoError(t, m.MintBalance(addr, "SVT", big.NewInt(50)))

	require.NoError(t, m.Transfer(addr, testAddr(0x02), "SVT", big.NewInt(0)))
	require.NoError(t, m.Transfer(addr, addr, "SVT", big.NewInt(10)))

	acc, err := m.GetAccount(addr[:])
	require.NoError(t, err)
	require.Equal(t, int64(50), acc.BalanceOf("SVT").Int64())
}

func TestMintBalanceValidation(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	require.Error(t, m.MintBalance(testAddr(0x01), "SVT", big.NewInt(0)))
	require.Error(t, m.MintBalance(testAddr(0x01), "SVT", nil))
	require.Error(t, m.MintBalance(testAddr(0x01), "bad token", big.NewInt(1)))
}
