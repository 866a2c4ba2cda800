package core

import (
	"log/slog"
	"math/big"
	"sync"

	"streamvault/core/events"
	"streamvault/core/state"
	"streamvault/core/types"
	"streamvault/native/stream"
	"streamvault/storage"
)

// eventHistoryLimit bounds the in-memory ring of recent events served to RPC
// consumers.
const eventHistoryLimit = 256

// Node owns the durable store and serializes every lifecycle operation. The
// mutex is the atomicity guarantee the engine relies on: one operation against
// a stream identity fully commits or fully unwinds before the next begins, so
// there is no read-modify-write race on streamed amounts or the counter.
type Node struct {
	db     storage.Database
	logger *slog.Logger

	stateMu sync.Mutex

	eventMu sync.Mutex
	recent  []types.Event
}

func NewNode(db storage.Database, logger *slog.Logger) *Node {
	if logger == nil {
		logger = slog.Default()
	}
	return &Node{db: db, logger: logger}
}

type nodeEventSink struct {
	node *Node
}

type eventWithPayload interface {
	Event() *types.Event
}

func (s nodeEventSink) Emit(evt events.Event) {
	if s.node == nil || evt == nil {
		return
	}
	payload, ok := evt.(eventWithPayload)
	if !ok {
		return
	}
	event := payload.Event()
	if event == nil {
		return
	}
	s.node.appendEvent(event)
}

func (n *Node) appendEvent(evt *types.Event) {
	n.eventMu.Lock()
	defer n.eventMu.Unlock()
	n.recent = append(n.recent, *evt)
	if len(n.recent) > eventHistoryLimit {
		n.recent = n.recent[len(n.recent)-eventHistoryLimit:]
	}
	n.logger.Info("event emitted", "type", evt.Type, "attributes", evt.Attributes)
}

// Events returns a copy of the most recently emitted events, oldest first.
func (n *Node) Events() []types.Event {
	n.eventMu.Lock()
	defer n.eventMu.Unlock()
	out := make([]types.Event, len(n.recent))
	copy(out, n.recent)
	return out
}

func (n *Node) newStreamEngine(manager *state.Manager) *stream.Engine {
	engine := stream.NewEngine()
	engine.SetState(manager)
	engine.SetEmitter(nodeEventSink{node: n})
	return engine
}

// Initialize bootstraps the stream counter. One-time per deployment.
func (n *Node) Initialize() (uint64, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	manager := state.NewManager(n.db)
	engine := n.newStreamEngine(manager)
	return engine.Initialize()
}

// Initialized reports whether the stream counter record exists.
func (n *Node) Initialized() bool {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	_, err := state.NewManager(n.db).CounterPeek()
	return err == nil
}

// StreamCreate escrows funds from the payer into a new stream.
func (n *Node) StreamCreate(payer, payee [20]byte, token string, amount, startTime, duration uint64) (*stream.Stream, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	manager := state.NewManager(n.db)
	engine := n.newStreamEngine(manager)
	return engine.Create(payer, payee, token, amount, startTime, duration)
}

// StreamWithdraw releases newly vested funds to the payee.
func (n *Node) StreamWithdraw(caller, payer [20]byte, token string, count uint64) (uint64, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	manager := state.NewManager(n.db)
	engine := n.newStreamEngine(manager)
	return engine.Withdraw(caller, payer, token, count)
}

// StreamCancel settles and closes a stream on behalf of the payer.
func (n *Node) StreamCancel(caller, payee [20]byte, token string, count uint64) (payeePayout, payerRefund uint64, err error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	manager := state.NewManager(n.db)
	engine := n.newStreamEngine(manager)
	return engine.Cancel(caller, payee, token, count)
}

// StreamReplenish restarts a fully elapsed stream with new terms.
func (n *Node) StreamReplenish(caller, payee [20]byte, token string, count uint64, newAmount, newStartTime, newDuration uint64) (*stream.Stream, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	manager := state.NewManager(n.db)
	engine := n.newStreamEngine(manager)
	return engine.Replenish(caller, payee, token, count, newAmount, newStartTime, newDuration)
}

// StreamGet returns the stream stored for the identity tuple.
func (n *Node) StreamGet(payer, payee [20]byte, token string, count uint64) (*stream.Stream, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	manager := state.NewManager(n.db)
	engine := n.newStreamEngine(manager)
	return engine.Get(payer, payee, token, count)
}

// BalanceOf reports the custodial balance an address holds for a token.
// Balances are keyed by the normalized symbol, so the query normalizes the
// same way every write path does.
func (n *Node) BalanceOf(addr [20]byte, token string) (*big.Int, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	normalized, err := stream.NormalizeToken(token)
	if err != nil {
		return nil, err
	}
	acc, err := state.NewManager(n.db).GetAccount(addr[:])
	if err != nil {
		return nil, err
	}
	return acc.BalanceOf(normalized), nil
}

// MintBalance funds an address outside the stream lifecycle. Genesis
// allocations and local networks only.
func (n *Node) MintBalance(addr [20]byte, token string, amount *big.Int) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	return state.NewManager(n.db).MintBalance(addr, token, amount)
}
