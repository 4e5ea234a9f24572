// Package coordinator drives buy and redeem attempts from intent to broadcast
// and keeps the balance snapshot shown to the user current.
package coordinator

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/google/uuid"
	"github.com/xueqianLu/ticketdesk/internal/chain"
	"github.com/xueqianLu/ticketdesk/internal/contract"
	"github.com/xueqianLu/ticketdesk/internal/intent"
	"github.com/xueqianLu/ticketdesk/internal/metrics"
	"github.com/xueqianLu/ticketdesk/internal/outcome"
	"github.com/xueqianLu/ticketdesk/internal/preflight"
	"github.com/xueqianLu/ticketdesk/internal/txbuilder"
	"github.com/xueqianLu/ticketdesk/internal/wallet"
	"go.uber.org/zap"
)

// Defaults applied by New for zero Config fields.
const (
	DefaultRefreshDelay        = time.Second
	DefaultReceiptTimeout      = 2 * time.Minute
	DefaultReceiptPollInterval = 4 * time.Second
)

// Config tunes the coordinator. Zero fields take the defaults above and
// DefaultGasMarginPercent; a configured zero margin is rejected by config
// validation before it reaches here.
type Config struct {
	GasMarginPercent    uint64
	RefreshDelay        time.Duration
	WatchReceipts       bool
	ReceiptTimeout      time.Duration
	ReceiptPollInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.GasMarginPercent == 0 {
		c.GasMarginPercent = txbuilder.DefaultGasMarginPercent
	}
	if c.RefreshDelay <= 0 {
		c.RefreshDelay = DefaultRefreshDelay
	}
	if c.ReceiptTimeout <= 0 {
		c.ReceiptTimeout = DefaultReceiptTimeout
	}
	if c.ReceiptPollInterval <= 0 {
		c.ReceiptPollInterval = DefaultReceiptPollInterval
	}
	return c
}

// SigningError reports a failure of the external signer.
type SigningError struct {
	Err error
}

func (e *SigningError) Error() string { return "failed to sign transaction: " + e.Err.Error() }

func (e *SigningError) Unwrap() error { return e.Err }

// OutcomeKind implements outcome.Classified.
func (e *SigningError) OutcomeKind() outcome.Kind { return outcome.KindSigningFailed }

// Describe implements outcome.Describer.
func (e *SigningError) Describe() string { return "Signing failed: " + e.Err.Error() }

// Result is the resolution of one attempt.
type Result struct {
	AttemptID  string                `json:"attempt_id"`
	Intent     intent.Intent         `json:"-"`
	Outcome    outcome.Outcome       `json:"outcome"`
	TxHash     *common.Hash          `json:"tx_hash,omitempty"`
	Quote      *txbuilder.PriceQuote `json:"-"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt time.Time             `json:"finished_at"`
}

// Success reports whether the attempt reached the network.
func (r Result) Success() bool { return r.Outcome.Success() }

// Snapshot is the last known balances of the active account.
type Snapshot struct {
	Account       common.Address
	NativeBalance *big.Int
	Tickets       *big.Int
	Inventory     *big.Int
	RefreshedAt   time.Time
}

// Status is a point-in-time view of the state machine.
type Status struct {
	State    State
	InFlight bool
	Last     *Result
}

// Coordinator is the single owner of the wallet session, the in-flight flag,
// the attempt state and the balance snapshot.
type Coordinator struct {
	cfg         Config
	chainID     *big.Int
	backend     chain.Backend
	reader      *contract.Reader
	validator   *preflight.Validator
	builder     *txbuilder.Builder
	broadcaster *chain.Broadcaster
	logger      *zap.Logger
	metrics     *metrics.Metrics

	wallet   wallet.Holder
	inFlight atomic.Bool

	subMu sync.Mutex
	subs  map[chan<- Event]struct{}

	mu       sync.RWMutex
	state    State
	last     *Result
	snapshot *Snapshot

	// background refreshes and receipt watchers
	bgMu   sync.Mutex
	bgWG   sync.WaitGroup
	closed bool
	ctx    context.Context
	cancel context.CancelFunc
}

// New wires a coordinator for the contract at contractAddr on chainID.
// m may be nil.
func New(backend chain.Backend, contractAddr common.Address, chainID *big.Int, cfg Config, logger *zap.Logger, m *metrics.Metrics) *Coordinator {
	cfg = cfg.withDefaults()
	if m == nil {
		m = metrics.New(nil)
	}
	reader := contract.NewReader(backend, contractAddr)
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		cfg:         cfg,
		chainID:     new(big.Int).Set(chainID),
		backend:     backend,
		reader:      reader,
		validator:   preflight.NewValidator(reader),
		builder:     txbuilder.NewBuilder(backend, reader, contractAddr, cfg.GasMarginPercent, logger),
		broadcaster: chain.NewBroadcaster(backend, logger),
		logger:      logger,
		metrics:     m,
		subs:        make(map[chan<- Event]struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Close stops background refreshes and watchers and waits for them.
func (c *Coordinator) Close() {
	c.bgMu.Lock()
	c.closed = true
	c.bgMu.Unlock()
	c.cancel()
	c.bgWG.Wait()
}

// Subscribe delivers coordinator events to ch. Delivery never blocks: an
// event that does not fit in ch is dropped for that subscriber, so ch should
// be buffered. The subscription ends on Unsubscribe or Close.
func (c *Coordinator) Subscribe(ch chan<- Event) event.Subscription {
	c.subMu.Lock()
	c.subs[ch] = struct{}{}
	c.subMu.Unlock()

	return event.NewSubscription(func(quit <-chan struct{}) error {
		select {
		case <-quit:
		case <-c.ctx.Done():
		}
		c.subMu.Lock()
		delete(c.subs, ch)
		c.subMu.Unlock()
		return nil
	})
}

// emit hands ev to every subscriber with room for it.
func (c *Coordinator) emit(ev Event) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for ch := range c.subs {
		select {
		case ch <- ev:
		default:
			c.metrics.DroppedEvents.Inc()
			c.logger.Warn("subscriber is not draining, event dropped", zap.Stringer("event", ev.Type))
		}
	}
}

// ContractAddress returns the ticketing contract address.
func (c *Coordinator) ContractAddress() common.Address {
	return c.reader.Address()
}

// Unlock decrypts a key file and makes it the active session.
func (c *Coordinator) Unlock(fileContents []byte, passphrase string) (*wallet.Session, error) {
	session, err := wallet.Unlock(fileContents, passphrase)
	if err != nil {
		c.logger.Warn("wallet unlock failed", zap.Error(err))
		return nil, err
	}
	if err := c.Establish(session); err != nil {
		return nil, err
	}
	return session, nil
}

// Establish replaces the active session, notifies subscribers and refreshes
// balances in the background.
func (c *Coordinator) Establish(session *wallet.Session) error {
	prev, err := c.wallet.Replace(session)
	if err != nil {
		return err
	}
	if prev != nil && prev.Address != session.Address {
		c.mu.Lock()
		c.snapshot = nil
		c.mu.Unlock()
	}

	c.logger.Info("wallet session established", zap.String("address", session.Address.Hex()))
	c.emit(Event{Type: EventSessionEstablished, Address: session.Address})
	c.scheduleRefresh(0)
	return nil
}

// Session returns the active wallet session or nil.
func (c *Coordinator) Session() *wallet.Session {
	return c.wallet.Current()
}

// Status returns the current state, the in-flight flag and the last result.
func (c *Coordinator) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Status{State: c.state, InFlight: c.inFlight.Load(), Last: c.last}
}

// Quote reads the current price and returns the cost of quantity tickets.
// The quote is informational; Submit reads the price again.
func (c *Coordinator) Quote(ctx context.Context, quantity uint64) (*txbuilder.PriceQuote, error) {
	if err := (intent.Intent{Kind: intent.Buy, Quantity: quantity}).Valid(); err != nil {
		return nil, preflight.InvalidQuantity(err)
	}
	price, err := c.reader.UnitPrice(ctx)
	if err != nil {
		return nil, err
	}
	return &txbuilder.PriceQuote{UnitPrice: price, Total: txbuilder.TotalCost(price, quantity)}, nil
}

// Submit runs one attempt to completion. It never returns an error: every
// failure is folded into Result.Outcome and the machine is back in Idle when
// Submit returns. An intent submitted while another is in flight is rejected
// without reading the chain or changing state.
func (c *Coordinator) Submit(ctx context.Context, in intent.Intent) Result {
	res := &Result{AttemptID: uuid.NewString(), Intent: in, StartedAt: time.Now()}

	if !c.inFlight.CompareAndSwap(false, true) {
		c.logger.Info("attempt rejected, another is in flight", zap.String("attempt", res.AttemptID), zap.Stringer("intent", in))
		return c.finish(res, preflight.ConcurrentAttempt())
	}
	c.metrics.InFlight.Set(1)
	defer c.release(res)

	log := c.logger.With(zap.String("attempt", res.AttemptID), zap.Stringer("intent", in))
	log.Info("attempt started")

	c.transition(res, StateValidating)
	desc, ok := DescriptorFor(in.Kind)
	if !ok {
		return c.fail(log, res, preflight.InvalidQuantity(errors.New("unknown intent kind "+in.Kind.String())))
	}
	session := c.wallet.Current()
	if err := c.validator.Validate(ctx, desc.Checks, in, session); err != nil {
		return c.fail(log, res, err)
	}

	c.transition(res, StateBuilding)
	env, err := c.builder.Build(ctx, desc.call(), in, session.Address)
	if err != nil {
		return c.fail(log, res, err)
	}
	res.Quote = env.Quote

	c.transition(res, StateAwaitingSignature)
	signed, err := session.Signer.SignTx(ctx, env.Transaction(c.chainID), c.chainID)
	if err != nil {
		return c.fail(log, res, &SigningError{Err: err})
	}

	// past this point the attempt can no longer be cancelled
	c.transition(res, StateBroadcasting)
	hash, err := c.broadcaster.Broadcast(context.WithoutCancel(ctx), signed)
	result := outcome.From(err)
	if !result.Success() {
		log.Debug("signed transaction not accepted", zap.String("tx", hash.Hex()))
		return c.fail(log, res, err)
	}
	res.TxHash = &hash

	c.transition(res, StatePending)
	if err == nil {
		result = outcome.Submitted(hash.Hex())
	}
	res.Outcome = result
	res.FinishedAt = time.Now()
	c.transition(res, StateSucceeded)
	log.Info("attempt submitted", zap.String("tx", hash.Hex()), zap.Stringer("outcome", result.Kind))

	c.scheduleRefresh(c.cfg.RefreshDelay)
	if c.cfg.WatchReceipts {
		c.watchReceipt(res.AttemptID, hash)
	}
	return c.finish(res, nil)
}

func (c *Coordinator) fail(log *zap.Logger, res *Result, err error) Result {
	res.Outcome = outcome.From(err)
	res.FinishedAt = time.Now()
	c.transition(res, StateFailed)
	log.Warn("attempt failed", zap.Stringer("outcome", res.Outcome.Kind), zap.Error(err))
	// a failed attempt may still have moved state, e.g. a broadcast that timed out
	c.scheduleRefresh(c.cfg.RefreshDelay)
	return c.finish(res, err)
}

// finish records metrics. Outcome is already set unless err is a rejection
// that never entered the machine.
func (c *Coordinator) finish(res *Result, err error) Result {
	if res.FinishedAt.IsZero() {
		res.Outcome = outcome.From(err)
		res.FinishedAt = time.Now()
	}
	c.metrics.Attempts.WithLabelValues(res.Intent.Kind.String(), res.Outcome.Kind.String()).Inc()
	if res.Outcome.Kind != outcome.KindConcurrentAttempt {
		c.metrics.AttemptDuration.WithLabelValues(res.Intent.Kind.String()).Observe(res.FinishedAt.Sub(res.StartedAt).Seconds())
	}
	return *res
}

// release returns the machine to Idle and only then clears the flag.
func (c *Coordinator) release(res *Result) {
	c.mu.Lock()
	c.last = res
	c.mu.Unlock()
	c.transition(res, StateIdle)
	c.inFlight.Store(false)
	c.metrics.InFlight.Set(0)
}

func (c *Coordinator) transition(res *Result, to State) {
	c.mu.Lock()
	from := c.state
	c.state = to
	c.mu.Unlock()

	ev := Event{Type: EventStateChanged, AttemptID: res.AttemptID, From: from, State: to}
	if to == StateSucceeded || to == StateFailed || to == StateIdle {
		snap := *res
		ev.Result = &snap
	}
	if res.TxHash != nil {
		ev.TxHash = *res.TxHash
	}
	c.emit(ev)
}

// goBackground runs fn unless the coordinator is closed.
func (c *Coordinator) goBackground(fn func(ctx context.Context)) {
	c.bgMu.Lock()
	defer c.bgMu.Unlock()
	if c.closed {
		return
	}
	c.bgWG.Add(1)
	go func() {
		defer c.bgWG.Done()
		fn(c.ctx)
	}()
}
