package router

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// drainBatch caps how many commands run before the loop re-checks its timers.
const drainBatch = 256

// Router is the single owner of connection, binding and pending-queue state.
type Router interface {
	// Start launches the run loop.
	Start(ctx context.Context) error

	// Stop shuts down the run loop and closes every outbound channel.
	Stop(ctx context.Context) error

	// Connect registers a connection and returns its id and outbound channel.
	Connect(ctx context.Context) (ConnID, <-chan string, error)

	// Verify binds key to id after a credential lookup and returns the owner name.
	Verify(ctx context.Context, key string, id ConnID) (string, error)

	// Deliver routes payload to the connection bound to key, or queues it.
	// Never blocks and never fails.
	Deliver(key, payload string)

	// Disconnect releases id and its binding. Idempotent.
	Disconnect(id ConnID)

	// Online reports whether key is currently bound.
	Online(ctx context.Context, key string) (bool, error)

	// Pending returns the payloads queued for key, oldest first.
	Pending(ctx context.Context, key string) ([]string, error)

	// Stats returns current registry statistics.
	Stats(ctx context.Context) (Stats, error)
}

// router is the internal implementation.
type router struct {
	cfg    Config
	store  CredentialLookup
	logger *slog.Logger
	now    func() time.Time

	inbox *Mailbox[command]

	// Owned by the run loop.
	outbound map[ConnID]chan string
	byKey    map[string]*binding
	byConn   map[ConnID]*binding
	pending  map[string]*pendingQueue

	delivered int64
	queued    int64
	expired   int64
	rejected  int64

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan struct{}
}

// NewRouter creates a new Router backed by store.
func NewRouter(cfg Config, store CredentialLookup, logger *slog.Logger) Router {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultConfig()
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaults.SweepInterval
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = defaults.LookupTimeout
	}
	if cfg.OutboundBufferSize < 1 {
		cfg.OutboundBufferSize = defaults.OutboundBufferSize
	}

	return &router{
		cfg:      cfg,
		store:    store,
		logger:   logger,
		now:      time.Now,
		inbox:    NewMailbox[command](cfg.InboxSize),
		outbound: make(map[ConnID]chan string),
		byKey:    make(map[string]*binding),
		byConn:   make(map[ConnID]*binding),
		pending:  make(map[string]*pendingQueue),
		done:     make(chan struct{}),
	}
}

// Start begins processing commands.
func (r *router) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.run()

	r.logger.Info("router started",
		"sweep_interval", r.cfg.SweepInterval,
		"pending_ttl", r.cfg.PendingTTL,
		"outbound_buffer", r.cfg.OutboundBufferSize,
	)

	return nil
}

// Stop gracefully shuts down the router.
func (r *router) Stop(ctx context.Context) error {
	r.logger.Info("stopping router")

	if r.cancel != nil {
		r.cancel()
	}

	// Wait for the run loop and in-flight lookups
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("router stopped")
	case <-ctx.Done():
		r.logger.Warn("router stop timed out")
		return ctx.Err()
	}

	return nil
}

// Connect registers a new connection.
func (r *router) Connect(ctx context.Context) (ConnID, <-chan string, error) {
	reply := make(chan connectResult, 1)
	res, err := call(ctx, r, connectCmd{reply: reply}, reply)
	if err != nil {
		return ConnID{}, nil, err
	}
	return res.id, res.out, nil
}

// Verify binds key to id.
func (r *router) Verify(ctx context.Context, key string, id ConnID) (string, error) {
	reply := make(chan verifyResult, 1)
	res, err := call(ctx, r, verifyCmd{key: key, id: id, reply: reply}, reply)
	if err != nil {
		return "", err
	}
	return res.name, res.err
}

// Deliver enqueues a delivery command.
func (r *router) Deliver(key, payload string) {
	if !r.inbox.Post(deliverCmd{key: key, payload: payload}) {
		r.logger.Warn("router stopped, delivery dropped", "key", redactKey(key))
	}
}

// Disconnect enqueues a disconnect command.
func (r *router) Disconnect(id ConnID) {
	r.inbox.Post(disconnectCmd{id: id})
}

// Online reports whether key is bound.
func (r *router) Online(ctx context.Context, key string) (bool, error) {
	reply := make(chan bool, 1)
	return call(ctx, r, onlineCmd{key: key, reply: reply}, reply)
}

// Pending returns a copy of the queue for key.
func (r *router) Pending(ctx context.Context, key string) ([]string, error) {
	reply := make(chan []string, 1)
	return call(ctx, r, pendingCmd{key: key, reply: reply}, reply)
}

// Stats returns current statistics.
func (r *router) Stats(ctx context.Context) (Stats, error) {
	reply := make(chan Stats, 1)
	return call(ctx, r, statsCmd{reply: reply}, reply)
}

// call posts cmd and waits for its one-shot reply.
func call[T any](ctx context.Context, r *router, cmd command, reply <-chan T) (T, error) {
	var zero T
	if !r.inbox.Post(cmd) {
		return zero, ErrStopped
	}

	select {
	case res := <-reply:
		return res, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-r.done:
		// The loop may have answered just before exiting.
		select {
		case res := <-reply:
			return res, nil
		default:
			return zero, ErrStopped
		}
	}
}

// run is the only goroutine that reads or writes registry state.
func (r *router) run() {
	defer r.wg.Done()
	defer close(r.done)

	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return
		case <-r.inbox.Ready():
			for _, cmd := range r.inbox.DrainTo(drainBatch) {
				r.handle(cmd)
			}
		case <-ticker.C:
			r.sweep()
		}
	}
}

// handle executes a single command.
func (r *router) handle(cmd command) {
	switch c := cmd.(type) {
	case connectCmd:
		c.reply <- r.connect()
	case verifyCmd:
		r.verify(c)
	case lookupDoneCmd:
		r.completeVerify(c)
	case deliverCmd:
		r.deliver(c.key, c.payload)
	case disconnectCmd:
		r.disconnect(c.id)
	case onlineCmd:
		_, ok := r.byKey[c.key]
		c.reply <- ok
	case pendingCmd:
		var items []string
		if q, ok := r.pending[c.key]; ok {
			items = q.snapshot()
		}
		c.reply <- items
	case statsCmd:
		c.reply <- r.snapshot()
	default:
		r.logger.Error("unhandled router command", "type", fmt.Sprintf("%T", cmd))
	}
}

func (r *router) connect() connectResult {
	id := ConnID(uuid.New())
	for {
		if _, taken := r.outbound[id]; !taken {
			break
		}
		id = ConnID(uuid.New())
	}

	out := make(chan string, r.cfg.OutboundBufferSize)
	r.outbound[id] = out

	r.logger.Debug("connection registered", "conn_id", id, "connections", len(r.outbound))
	return connectResult{id: id, out: out}
}

// checkBinding applies the binding invariants for (key, id). done reports an
// idempotent success with the existing name.
func (r *router) checkBinding(key string, id ConnID) (name string, done bool, err error) {
	if _, live := r.outbound[id]; !live {
		return "", false, ErrUnknownConnection
	}
	if b, bound := r.byKey[key]; bound {
		if b.conn == id {
			return b.name, true, nil
		}
		return "", false, ErrDuplicateKey
	}
	if b, bound := r.byConn[id]; bound && b.key != key {
		return "", false, ErrAlreadyBound
	}
	return "", false, nil
}

func (r *router) verify(c verifyCmd) {
	name, done, err := r.checkBinding(c.key, c.id)
	if err != nil {
		r.reject(c, err)
		return
	}
	if done {
		c.reply <- verifyResult{name: name}
		return
	}

	// The lookup may hit a database; keep it off the run loop.
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ctx, cancel := context.WithTimeout(r.ctx, r.cfg.LookupTimeout)
		defer cancel()

		name, found, err := r.store.Lookup(ctx, c.key)
		r.inbox.Post(lookupDoneCmd{req: c, name: name, found: found, err: err})
	}()
}

func (r *router) completeVerify(c lookupDoneCmd) {
	req := c.req
	if c.err != nil {
		r.logger.Error("credential lookup failed", "conn_id", req.id, "error", c.err)
		req.reply <- verifyResult{err: fmt.Errorf("lookup credential: %w", c.err)}
		return
	}
	if !c.found {
		r.reject(req, ErrUnknownKey)
		return
	}

	// State may have changed while the lookup ran.
	name, done, err := r.checkBinding(req.key, req.id)
	if err != nil {
		r.reject(req, err)
		return
	}
	if done {
		req.reply <- verifyResult{name: name}
		return
	}

	b := &binding{key: req.key, conn: req.id, name: c.name, since: r.now()}
	r.byKey[req.key] = b
	r.byConn[req.id] = b
	req.reply <- verifyResult{name: c.name}

	r.logger.Info("connection verified",
		"conn_id", req.id,
		"key", redactKey(req.key),
		"server_name", c.name,
	)

	r.drain(req.key)
}

func (r *router) reject(c verifyCmd, err error) {
	r.rejected++
	r.logger.Warn("verification rejected",
		"conn_id", c.id,
		"key", redactKey(c.key),
		"reason", err,
	)
	c.reply <- verifyResult{err: err}
}

func (r *router) deliver(key, payload string) {
	// A non-empty queue must be flushed first to keep per-key order.
	if q, ok := r.pending[key]; ok && q.len() > 0 {
		r.enqueue(key, payload)
		r.drain(key)
		return
	}
	if r.push(key, payload) {
		return
	}
	r.enqueue(key, payload)
}

// push attempts a non-blocking send to the connection bound to key.
func (r *router) push(key, payload string) bool {
	b, ok := r.byKey[key]
	if !ok {
		return false
	}
	out, ok := r.outbound[b.conn]
	if !ok {
		return false
	}

	select {
	case out <- payload:
		r.delivered++
		return true
	default:
		return false
	}
}

func (r *router) enqueue(key, payload string) {
	q, ok := r.pending[key]
	if !ok {
		q = &pendingQueue{}
		r.pending[key] = q
	}
	q.push(payload, r.now())
	r.queued++

	r.logger.Debug("delivery queued", "key", redactKey(key), "pending", q.len())
}

// drain pushes queued payloads for key in order, stopping at the first
// failure. The queue is removed once empty.
func (r *router) drain(key string) {
	q, ok := r.pending[key]
	if !ok {
		return
	}

	for {
		payload, ok := q.peek()
		if !ok {
			break
		}
		if !r.push(key, payload) {
			return
		}
		q.pop()
	}

	delete(r.pending, key)
}

// sweep retries every queue whose key is bound and expires stale ones.
func (r *router) sweep() {
	now := r.now()
	for key, q := range r.pending {
		if _, bound := r.byKey[key]; bound {
			r.drain(key)
			continue
		}
		if r.cfg.PendingTTL > 0 && now.Sub(q.lastPush) > r.cfg.PendingTTL {
			r.expired += int64(q.len())
			delete(r.pending, key)
			r.logger.Info("pending deliveries expired",
				"key", redactKey(key),
				"count", q.len(),
				"age", now.Sub(q.lastPush),
			)
		}
	}
}

func (r *router) disconnect(id ConnID) {
	if out, ok := r.outbound[id]; ok {
		delete(r.outbound, id)
		close(out)
	}
	if b, ok := r.byConn[id]; ok {
		delete(r.byConn, id)
		delete(r.byKey, b.key)
		r.logger.Info("connection unbound",
			"conn_id", id,
			"key", redactKey(b.key),
			"bound_for", r.now().Sub(b.since),
		)
	}
}

func (r *router) snapshot() Stats {
	payloads := 0
	for _, q := range r.pending {
		payloads += q.len()
	}
	return Stats{
		Connections:     len(r.outbound),
		Bindings:        len(r.byKey),
		PendingKeys:     len(r.pending),
		PendingPayloads: payloads,
		Delivered:       r.delivered,
		Queued:          r.queued,
		Expired:         r.expired,
		Rejected:        r.rejected,
		Inbox:           r.inbox.Stats(),
	}
}

// shutdown rejects new commands and releases every session.
func (r *router) shutdown() {
	r.inbox.Close()

	dropped := len(r.inbox.DrainTo(0))
	for id, out := range r.outbound {
		delete(r.outbound, id)
		close(out)
	}
	clear(r.byKey)
	clear(r.byConn)

	if dropped > 0 {
		r.logger.Warn("router commands dropped at shutdown", "count", dropped)
	}
}
