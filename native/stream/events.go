package stream

import (
	"encoding/hex"
	"strconv"

	"streamvault/core/types"
)

const (
	EventTypeInitialized       = "stream.initialized"
	EventTypeStreamCreated     = "stream.created"
	EventTypeAmountWithdrawn   = "stream.withdrawn"
	EventTypeStreamCanceled    = "stream.canceled"
	EventTypeStreamReplenished = "stream.replenished"
)

// NewInitializedEvent returns the canonical payload emitted when the stream
// counter is bootstrapped, carrying the starting count.
func NewInitializedEvent(count uint64) *types.Event {
	return &types.Event{
		Type: EventTypeInitialized,
		Attributes: map[string]string{
			"count": strconv.FormatUint(count, 10),
		},
	}
}

// NewStreamCreatedEvent returns the canonical event payload for a newly
// created and funded stream, carrying the full record snapshot.
func NewStreamCreatedEvent(s *Stream) *types.Event {
	return newStreamEvent(EventTypeStreamCreated, s, nil)
}

// NewAmountWithdrawnEvent returns the payload emitted when the payee claims
// newly vested funds.
func NewAmountWithdrawnEvent(s *Stream, amount uint64) *types.Event {
	return newStreamEvent(EventTypeAmountWithdrawn, s, map[string]string{
		"amountWithdrawn": strconv.FormatUint(amount, 10),
	})
}

// NewStreamCanceledEvent returns the payload emitted when the payer cancels a
// stream, carrying both sides of the final split.
func NewStreamCanceledEvent(s *Stream, payeePayout, payerRefund uint64) *types.Event {
	return newStreamEvent(EventTypeStreamCanceled, s, map[string]string{
		"payeePayout": strconv.FormatUint(payeePayout, 10),
		"payerRefund": strconv.FormatUint(payerRefund, 10),
	})
}

// NewStreamReplenishedEvent returns the payload emitted when a finished
// stream is restarted under new terms.
func NewStreamReplenishedEvent(s *Stream) *types.Event {
	return newStreamEvent(EventTypeStreamReplenished, s, nil)
}

func newStreamEvent(eventType string, s *Stream, extra map[string]string) *types.Event {
	attrs := make(map[string]string)
	if s != nil {
		attrs["payer"] = hex.EncodeToString(s.Payer[:])
		attrs["payee"] = hex.EncodeToString(s.Payee[:])
		attrs["token"] = s.Token
		attrs["amount"] = strconv.FormatUint(s.Amount, 10)
		attrs["startTime"] = strconv.FormatUint(s.StartTime, 10)
		attrs["duration"] = strconv.FormatUint(s.Duration, 10)
		attrs["streamed"] = strconv.FormatUint(s.Streamed, 10)
		attrs["count"] = strconv.FormatUint(s.Count, 10)
	}
	for k, v := range extra {
		attrs[k] = v
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
