package stream

import (
	"errors"
	"fmt"
	"strings"
)

// Terminal validation failures surfaced by the engine. None are retried
// internally; the caller resubmits with corrected inputs or waits for time to
// advance.
var (
	ErrNotFound           = errors.New("stream: not found")
	ErrUnauthorized       = errors.New("stream: unauthorized caller")
	ErrInvalidToken       = errors.New("stream: invalid token")
	ErrZeroAmount         = errors.New("stream: amount cannot be zero")
	ErrZeroDuration       = errors.New("stream: duration cannot be zero")
	ErrInvalidTimestamp   = errors.New("stream: starting timestamp before current time")
	ErrNothingToWithdraw  = errors.New("stream: nothing newly vested to withdraw")
	ErrOngoingStream      = errors.New("stream: current term has not elapsed")
	ErrAlreadyInitialized = errors.New("stream: counter already initialized")
	ErrInsufficientFunds  = errors.New("stream: insufficient funds")
)

// Stream captures one vesting term between a payer and payee for a given
// token. The identity tuple (payer, payee, token, count) is stable for the
// life of the record: replenishment overwrites the term fields but never the
// identity, and counts are never reused.
type Stream struct {
	Payer     [20]byte
	Payee     [20]byte
	Token     string
	Amount    uint64
	StartTime uint64
	Duration  uint64
	Streamed  uint64
	Count     uint64
}

// Clone returns a copy of the stream so callers can safely mutate it without
// affecting the stored instance.
func (s *Stream) Clone() *Stream {
	if s == nil {
		return nil
	}
	clone := *s
	return &clone
}

// Remaining reports the portion of the current term's principal not yet
// released to the payee.
func (s *Stream) Remaining() uint64 {
	if s == nil || s.Streamed >= s.Amount {
		return 0
	}
	return s.Amount - s.Streamed
}

// NormalizeToken canonicalises a token symbol to uppercase and validates it:
// one to twelve characters, A-Z and digits only.
func NormalizeToken(symbol string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	if len(trimmed) == 0 || len(trimmed) > 12 {
		return "", fmt.Errorf("%w: %q", ErrInvalidToken, symbol)
	}
	for _, r := range trimmed {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", fmt.Errorf("%w: %q", ErrInvalidToken, symbol)
		}
	}
	return trimmed, nil
}

// SanitizeStream validates and normalises the supplied stream record,
// returning a clone with canonical token casing. The function does not mutate
// the original value.
func SanitizeStream(s *Stream) (*Stream, error) {
	if s == nil {
		return nil, fmt.Errorf("stream: nil record")
	}
	clone := s.Clone()
	token, err := NormalizeToken(clone.Token)
	if err != nil {
		return nil, err
	}
	clone.Token = token
	if clone.Amount == 0 {
		return nil, ErrZeroAmount
	}
	if clone.Duration == 0 {
		return nil, ErrZeroDuration
	}
	if clone.Streamed > clone.Amount {
		return nil, fmt.Errorf("stream: streamed amount %d exceeds principal %d", clone.Streamed, clone.Amount)
	}
	if clone.Count == 0 {
		return nil, fmt.Errorf("stream: count must be positive")
	}
	return clone, nil
}
