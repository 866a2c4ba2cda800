package stream

import (
	"errors"
	"math"
	"math/big"
	"time"

	"streamvault/core/events"
	"streamvault/core/types"
)

var errNilState = errors.New("stream engine: state not configured")

// engineState is the durable-storage and custody surface the engine drives.
// Streams and the counter are keyed records; the vault address for a stream is
// derived from its identity tuple, so the engine never holds a credential for
// the funds it moves.
type engineState interface {
	StreamPut(*Stream) error
	StreamGet(payer, payee [20]byte, token string, count uint64) (*Stream, bool)
	StreamDelete(payer, payee [20]byte, token string, count uint64) error
	CounterInit() (uint64, error)
	CounterNext() (uint64, error)
	CounterRevert(count uint64) error
	VaultAddress(payer, payee [20]byte, token string, count uint64) ([20]byte, error)
	Transfer(from, to [20]byte, token string, amount *big.Int) error
}

type streamEvent struct {
	evt *types.Event
}

func (e streamEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e streamEvent) Event() *types.Event { return e.evt }

// Engine wires the vesting-stream business logic with external state and event
// emitters. Every operation runs under the caller's serialization guarantee:
// one operation against a stream identity fully commits or fully unwinds
// before the next begins.
type Engine struct {
	state   engineState
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine creates a stream engine with a no-op emitter. Callers can override
// the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(streamEvent{evt: event})
}

func (e *Engine) now() uint64 {
	if e == nil || e.nowFn == nil {
		return uint64(time.Now().Unix())
	}
	now := e.nowFn()
	if now < 0 {
		return 0
	}
	return uint64(now)
}

func (e *Engine) loadStream(payer, payee [20]byte, token string, count uint64) (*Stream, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	s, ok := e.state.StreamGet(payer, payee, token, count)
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// claimable computes the transferable delta for the stream at the engine's
// current time: entitlement per the linear formula, capped at the principal,
// minus what the payee already received. The compute, cap, zero-check order is
// the invariant-preserving sequence; callers decide what a zero result means.
func (e *Engine) claimable(s *Stream) uint64 {
	now := e.now()
	var elapsed uint64
	if now > s.StartTime {
		elapsed = now - s.StartTime
	}
	entitled := Entitled(s.Amount, s.Duration, elapsed)
	if entitled > s.Amount {
		entitled = s.Amount
	}
	if entitled <= s.Streamed {
		return 0
	}
	return entitled - s.Streamed
}

func validateTerm(amount, startTime, duration, now uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	if duration == 0 {
		return ErrZeroDuration
	}
	if startTime < now {
		return ErrInvalidTimestamp
	}
	return nil
}

// Initialize creates the singleton stream counter starting at 1. The
// operation is one-time; a second invocation fails with
// ErrAlreadyInitialized.
func (e *Engine) Initialize() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	count, err := e.state.CounterInit()
	if err != nil {
		return 0, err
	}
	e.emit(NewInitializedEvent(count))
	return count, nil
}

// Create escrows amount from the payer into a fresh stream vault and persists
// the new stream record. The counter value captured at creation becomes the
// stream's count and is never reused; a failed funding transfer unwinds both
// the record and the counter increment.
func (e *Engine) Create(payer, payee [20]byte, token string, amount, startTime, duration uint64) (*Stream, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	normalized, err := NormalizeToken(token)
	if err != nil {
		return nil, err
	}
	if err := validateTerm(amount, startTime, duration, e.now()); err != nil {
		return nil, err
	}
	count, err := e.state.CounterNext()
	if err != nil {
		return nil, err
	}
	s := &Stream{
		Payer:     payer,
		Payee:     payee,
		Token:     normalized,
		Amount:    amount,
		StartTime: startTime,
		Duration:  duration,
		Streamed:  0,
		Count:     count,
	}
	if err := e.state.StreamPut(s); err != nil {
		_ = e.state.CounterRevert(count)
		return nil, err
	}
	vault, err := e.state.VaultAddress(payer, payee, normalized, count)
	if err != nil {
		_ = e.state.StreamDelete(payer, payee, normalized, count)
		_ = e.state.CounterRevert(count)
		return nil, err
	}
	if err := e.state.Transfer(payer, vault, normalized, new(big.Int).SetUint64(amount)); err != nil {
		_ = e.state.StreamDelete(payer, payee, normalized, count)
		_ = e.state.CounterRevert(count)
		return nil, err
	}
	e.emit(NewStreamCreatedEvent(s))
	return s.Clone(), nil
}

// Withdraw releases everything newly vested since the last claim to the
// payee. The caller must be the stream's payee. Re-invoking with no further
// elapsed time fails with ErrNothingToWithdraw and leaves state unchanged.
func (e *Engine) Withdraw(caller, payer [20]byte, token string, count uint64) (uint64, error) {
	normalized, err := NormalizeToken(token)
	if err != nil {
		return 0, err
	}
	s, err := e.loadStream(payer, caller, normalized, count)
	if err != nil {
		return 0, err
	}
	if s.Payee != caller {
		return 0, ErrUnauthorized
	}
	claimable := e.claimable(s)
	if claimable == 0 {
		return 0, ErrNothingToWithdraw
	}
	prior := s.Streamed
	s.Streamed += claimable
	if err := e.state.StreamPut(s); err != nil {
		return 0, err
	}
	vault, err := e.state.VaultAddress(s.Payer, s.Payee, normalized, count)
	if err != nil {
		s.Streamed = prior
		_ = e.state.StreamPut(s)
		return 0, err
	}
	if err := e.state.Transfer(vault, s.Payee, normalized, new(big.Int).SetUint64(claimable)); err != nil {
		s.Streamed = prior
		_ = e.state.StreamPut(s)
		return 0, err
	}
	e.emit(NewAmountWithdrawnEvent(s, claimable))
	return claimable, nil
}

// Cancel settles the stream immediately: the payee receives everything vested
// to date, the payer receives the rest, and the record is closed. The caller
// must be the payer. Cancellation proceeds even when nothing has vested; the
// vault always drains to zero.
func (e *Engine) Cancel(caller, payee [20]byte, token string, count uint64) (payeePayout, payerRefund uint64, err error) {
	normalized, err := NormalizeToken(token)
	if err != nil {
		return 0, 0, err
	}
	s, err := e.loadStream(caller, payee, normalized, count)
	if err != nil {
		return 0, 0, err
	}
	if s.Payer != caller {
		return 0, 0, ErrUnauthorized
	}
	vault, err := e.state.VaultAddress(s.Payer, s.Payee, normalized, count)
	if err != nil {
		return 0, 0, err
	}
	payeePayout = e.claimable(s)
	if payeePayout > 0 {
		if err := e.state.Transfer(vault, s.Payee, normalized, new(big.Int).SetUint64(payeePayout)); err != nil {
			return 0, 0, err
		}
		s.Streamed += payeePayout
	}
	payerRefund = s.Remaining()
	if payerRefund > 0 {
		if err := e.state.Transfer(vault, s.Payer, normalized, new(big.Int).SetUint64(payerRefund)); err != nil {
			if payeePayout > 0 {
				_ = e.state.Transfer(s.Payee, vault, normalized, new(big.Int).SetUint64(payeePayout))
			}
			return 0, 0, err
		}
	}
	if err := e.state.StreamDelete(s.Payer, s.Payee, normalized, count); err != nil {
		return 0, 0, err
	}
	e.emit(NewStreamCanceledEvent(s, payeePayout, payerRefund))
	return payeePayout, payerRefund, nil
}

// Replenish restarts a fully elapsed stream under new terms, reusing the same
// identity and vault. Any remainder the payee never claimed from the prior
// term is returned to the payer before the new term is funded; the streamed
// tally resets to zero atomically with the other term fields.
func (e *Engine) Replenish(caller, payee [20]byte, token string, count uint64, newAmount, newStartTime, newDuration uint64) (*Stream, error) {
	normalized, err := NormalizeToken(token)
	if err != nil {
		return nil, err
	}
	s, err := e.loadStream(caller, payee, normalized, count)
	if err != nil {
		return nil, err
	}
	if s.Payer != caller {
		return nil, ErrUnauthorized
	}
	now := e.now()
	end := s.StartTime + s.Duration
	if end < s.StartTime {
		end = math.MaxUint64
	}
	if end >= now {
		return nil, ErrOngoingStream
	}
	if err := validateTerm(newAmount, newStartTime, newDuration, now); err != nil {
		return nil, err
	}
	vault, err := e.state.VaultAddress(s.Payer, s.Payee, normalized, count)
	if err != nil {
		return nil, err
	}
	leftover := s.Remaining()
	if leftover > 0 {
		if err := e.state.Transfer(vault, s.Payer, normalized, new(big.Int).SetUint64(leftover)); err != nil {
			return nil, err
		}
	}
	prior := s.Clone()
	s.Amount = newAmount
	s.StartTime = newStartTime
	s.Duration = newDuration
	s.Streamed = 0
	if err := e.state.StreamPut(s); err != nil {
		if leftover > 0 {
			_ = e.state.Transfer(s.Payer, vault, normalized, new(big.Int).SetUint64(leftover))
		}
		return nil, err
	}
	if err := e.state.Transfer(s.Payer, vault, normalized, new(big.Int).SetUint64(newAmount)); err != nil {
		_ = e.state.StreamPut(prior)
		if leftover > 0 {
			_ = e.state.Transfer(s.Payer, vault, normalized, new(big.Int).SetUint64(leftover))
		}
		return nil, err
	}
	e.emit(NewStreamReplenishedEvent(s))
	return s.Clone(), nil
}

// Get returns a copy of the stream record for the identity tuple.
func (e *Engine) Get(payer, payee [20]byte, token string, count uint64) (*Stream, error) {
	normalized, err := NormalizeToken(token)
	if err != nil {
		return nil, err
	}
	s, err := e.loadStream(payer, payee, normalized, count)
	if err != nil {
		return nil, err
	}
	return s.Clone(), nil
}
