package core

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"streamvault/native/stream"
	"streamvault/storage"
)

func testAddr(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

func newTestNode(t *testing.T) *Node {
	t.Helper()
	node := NewNode(storage.NewMemDB(), nil)
	if _, err := node.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return node
}

func TestNodeInitializeOnce(t *testing.T) {
	node := NewNode(storage.NewMemDB(), nil)
	if node.Initialized() {
		t.Fatalf("fresh node reports initialized")
	}
	count, err := node.Initialize()
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected starting count 1, got %d", count)
	}
	if !node.Initialized() {
		t.Fatalf("node does not report initialized")
	}
	if _, err := node.Initialize(); !errors.Is(err, stream.ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}
}

func TestNodeStreamLifecycle(t *testing.T) {
	node := newTestNode(t)
	payer := testAddr(0x01)
	payee := testAddr(0x02)

	if err := node.MintBalance(payer, "SVT", big.NewInt(1000)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	start := uint64(4_000_000_000) // far future so the term never starts
	s, err := node.StreamCreate(payer, payee, "SVT", 1000, start, 100)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if s.Count != 1 {
		t.Fatalf("expected count 1, got %d", s.Count)
	}

	got, err := node.StreamGet(payer, payee, "SVT", 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Amount != 1000 {
		t.Fatalf("unexpected stored stream: %+v", got)
	}

	// Nothing vested yet: withdraw is a safe no-op failure.
	if _, err := node.StreamWithdraw(payee, payer, "SVT", 1); !errors.Is(err, stream.ErrNothingToWithdraw) {
		t.Fatalf("expected ErrNothingToWithdraw, got %v", err)
	}

	payeePayout, payerRefund, err := node.StreamCancel(payer, payee, "SVT", 1)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if payeePayout != 0 || payerRefund != 1000 {
		t.Fatalf("expected 0/1000 split, got %d/%d", payeePayout, payerRefund)
	}
	bal, err := node.BalanceOf(payer, "SVT")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.Int64() != 1000 {
		t.Fatalf("expected payer refunded in full, got %s", bal)
	}
	if _, err := node.StreamGet(payer, payee, "SVT", 1); !errors.Is(err, stream.ErrNotFound) {
		t.Fatalf("expected stream closed, got %v", err)
	}
}

func TestNodeBalanceOfNormalizesToken(t *testing.T) {
	node := newTestNode(t)
	addr := testAddr(0x07)

	if err := node.MintBalance(addr, "svt", big.NewInt(250)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	// Balances are stored under the canonical uppercase symbol; any casing of
	// the query must resolve to the same entry.
	for _, symbol := range []string{"SVT", "svt", " Svt "} {
		bal, err := node.BalanceOf(addr, symbol)
		if err != nil {
			t.Fatalf("balance %q: %v", symbol, err)
		}
		if bal.Int64() != 250 {
			t.Fatalf("balance %q = %s, want 250", symbol, bal)
		}
	}

	if _, err := node.BalanceOf(addr, "no!"); !errors.Is(err, stream.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestNodeRecordsEvents(t *testing.T) {
	node := newTestNode(t)
	payer := testAddr(0x01)
	payee := testAddr(0x02)

	if err := node.MintBalance(payer, "SVT", big.NewInt(500)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := node.StreamCreate(payer, payee, "SVT", 500, 4_000_000_000, 60); err != nil {
		t.Fatalf("create: %v", err)
	}

	events := node.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Type != stream.EventTypeInitialized {
		t.Fatalf("expected initialized event first, got %q", events[0].Type)
	}
	if events[1].Type != stream.EventTypeStreamCreated {
		t.Fatalf("expected created event, got %q", events[1].Type)
	}
	if events[1].Attributes["amount"] != "500" {
		t.Fatalf("unexpected created attributes: %+v", events[1].Attributes)
	}
}
