package state

import (
	"encoding/binary"
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"streamvault/native/stream"
	"streamvault/storage"
)

var (
	streamRecordPrefix = []byte("stream/record/")
	streamVaultPrefix  = []byte("stream/vault/")
	streamCounterKey   = []byte("stream/counter")
)

func streamIdentityBytes(payer, payee [20]byte, token string, count uint64) []byte {
	buf := make([]byte, 0, 40+len(token)+8)
	buf = append(buf, payer[:]...)
	buf = append(buf, payee[:]...)
	buf = append(buf, token...)
	buf = binary.BigEndian.AppendUint64(buf, count)
	return buf
}

func streamStorageKey(payer, payee [20]byte, token string, count uint64) []byte {
	identity := streamIdentityBytes(payer, payee, token, count)
	buf := make([]byte, 0, len(streamRecordPrefix)+len(identity))
	buf = append(buf, streamRecordPrefix...)
	buf = append(buf, identity...)
	return ethcrypto.Keccak256(buf)
}

type storedStream struct {
	Payer     [20]byte
	Payee     [20]byte
	Token     string
	Amount    uint64
	StartTime uint64
	Duration  uint64
	Streamed  uint64
	Count     uint64
}

func newStoredStream(s *stream.Stream) *storedStream {
	return &storedStream{
		Payer:     s.Payer,
		Payee:     s.Payee,
		Token:     s.Token,
		Amount:    s.Amount,
		StartTime: s.StartTime,
		Duration:  s.Duration,
		Streamed:  s.Streamed,
		Count:     s.Count,
	}
}

func (r *storedStream) toStream() *stream.Stream {
	return &stream.Stream{
		Payer:     r.Payer,
		Payee:     r.Payee,
		Token:     r.Token,
		Amount:    r.Amount,
		StartTime: r.StartTime,
		Duration:  r.Duration,
		Streamed:  r.Streamed,
		Count:     r.Count,
	}
}

// StreamPut validates and persists the stream record under its identity key.
func (m *Manager) StreamPut(s *stream.Stream) error {
	sanitized, err := stream.SanitizeStream(s)
	if err != nil {
		return err
	}
	encoded, err := rlp.EncodeToBytes(newStoredStream(sanitized))
	if err != nil {
		return fmt.Errorf("state: encode stream: %w", err)
	}
	key := streamStorageKey(sanitized.Payer, sanitized.Payee, sanitized.Token, sanitized.Count)
	return m.db.Put(key, encoded)
}

// StreamGet loads the stream stored for the identity tuple.
func (m *Manager) StreamGet(payer, payee [20]byte, token string, count uint64) (*stream.Stream, bool) {
	data, err := m.db.Get(streamStorageKey(payer, payee, token, count))
	if err != nil || len(data) == 0 {
		return nil, false
	}
	record := new(storedStream)
	if err := rlp.DecodeBytes(data, record); err != nil {
		return nil, false
	}
	return record.toStream(), true
}

// StreamDelete removes the stream record, releasing its storage reservation.
func (m *Manager) StreamDelete(payer, payee [20]byte, token string, count uint64) error {
	return m.db.Delete(streamStorageKey(payer, payee, token, count))
}

// CounterInit creates the singleton stream counter starting at 1. It fails
// with stream.ErrAlreadyInitialized if the record already exists; bootstrap is
// one-time per deployment.
func (m *Manager) CounterInit() (uint64, error) {
	key := ethcrypto.Keccak256(streamCounterKey)
	exists, err := m.db.Has(key)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, stream.ErrAlreadyInitialized
	}
	if err := m.writeCounter(1); err != nil {
		return 0, err
	}
	return 1, nil
}

// CounterNext returns the next count to assign and advances the counter. The
// read-modify-write runs under the Node's per-operation lock, which is what
// makes assignment collision-free across concurrent creations.
func (m *Manager) CounterNext() (uint64, error) {
	current, err := m.readCounter()
	if err != nil {
		return 0, err
	}
	if err := m.writeCounter(current + 1); err != nil {
		return 0, err
	}
	return current, nil
}

// CounterPeek returns the next count to assign without advancing it.
func (m *Manager) CounterPeek() (uint64, error) {
	return m.readCounter()
}

// CounterRevert restores the counter after a failed creation so counts stay
// dense. The count being reverted was never exposed, so reuse is safe here
// and only here.
func (m *Manager) CounterRevert(count uint64) error {
	return m.writeCounter(count)
}

func (m *Manager) readCounter() (uint64, error) {
	data, err := m.db.Get(ethcrypto.Keccak256(streamCounterKey))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return 0, fmt.Errorf("state: stream counter not initialized")
	}
	if err != nil {
		return 0, err
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("state: malformed stream counter record")
	}
	return binary.BigEndian.Uint64(data), nil
}

func (m *Manager) writeCounter(value uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, value)
	return m.db.Put(ethcrypto.Keccak256(streamCounterKey), buf)
}

// VaultAddress derives the custody address for a stream from its identity
// tuple. No key material exists for the address; the state layer is the only
// authority that can move its balance, and only through Transfer calls issued
// by the engine.
func (m *Manager) VaultAddress(payer, payee [20]byte, token string, count uint64) ([20]byte, error) {
	normalized, err := stream.NormalizeToken(token)
	if err != nil {
		return [20]byte{}, err
	}
	identity := streamIdentityBytes(payer, payee, normalized, count)
	buf := make([]byte, 0, len(streamVaultPrefix)+len(identity))
	buf = append(buf, streamVaultPrefix...)
	buf = append(buf, identity...)
	hash := ethcrypto.Keccak256(buf)
	var addr [20]byte
	copy(addr[:], hash[12:])
	return addr, nil
}
