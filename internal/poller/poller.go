// Package poller keeps a Pioneer's metrics current: one fetch on start,
// then one per interval until stopped.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"mapcap-ipo/internal/domain"
	"mapcap-ipo/internal/observability"
)

// DefaultInterval is the time between timer-driven fetches.
const DefaultInterval = 30 * time.Second

// SyncFailureMessage is reported in State.Err after a failed fetch.
const SyncFailureMessage = "Sync Failure: Check Pi Network Connectivity."

// Fetcher fetches metrics for a Pioneer, surfacing failures.
type Fetcher interface {
	TryFetchMetrics(ctx context.Context, identity domain.Identity) (domain.MetricsSnapshot, error)
}

// State is what presentation code renders.
type State struct {
	Snapshot  domain.MetricsSnapshot
	Loading   bool
	Err       string
	UpdatedAt time.Time // last successful fetch, zero before the first
}

// Options configures a Poller.
type Options struct {
	Interval time.Duration
	Clock    clock.Clock
	Logger   *zap.Logger
}

// Poller drives periodic fetches. Timer-driven fetches may overlap; each
// carries a sequence number and a response older than the last applied
// one is discarded.
type Poller struct {
	fetcher  Fetcher
	interval time.Duration
	clock    clock.Clock
	logger   *zap.Logger

	mu       sync.Mutex
	identity domain.Identity
	state    State
	seq      uint64
	applied  uint64
	ticker   *clock.Ticker
	ctx      context.Context
	running  bool
	detached bool
	stop     chan struct{}
	subs     map[int]func(State)
	nextSub  int

	wg sync.WaitGroup
}

// New creates a poller for identity. It does nothing until Start.
func New(fetcher Fetcher, identity domain.Identity, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Poller{
		fetcher:  fetcher,
		interval: opts.Interval,
		clock:    opts.Clock,
		logger:   opts.Logger.Named("poller"),
		identity: identity,
		state:    State{Snapshot: domain.ZeroSnapshot(), Loading: !identity.IsZero()},
		subs:     make(map[int]func(State)),
	}
}

// Start fetches immediately and then once per interval. Fetches run on
// ctx; Stop does not cancel them. A stopped poller cannot be restarted.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running || p.detached {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.ctx = ctx
	p.stop = make(chan struct{})
	p.ticker = p.clock.Ticker(p.interval)
	ticker, stop := p.ticker, p.stop
	p.mu.Unlock()

	p.dispatch()

	p.wg.Add(1)
	go p.loop(ctx, ticker, stop)
}

func (p *Poller) loop(ctx context.Context, ticker *clock.Ticker, stop chan struct{}) {
	defer p.wg.Done()

	for {
		select {
		case <-ticker.C:
			p.dispatch()
		case <-stop:
			return
		case <-ctx.Done():
			p.Stop()
			return
		}
	}
}

// dispatch starts one fetch for the current identity.
func (p *Poller) dispatch() {
	p.mu.Lock()
	if p.detached || p.identity.IsZero() {
		p.mu.Unlock()
		return
	}
	p.seq++
	seq := p.seq
	identity := p.identity
	ctx := p.ctx
	p.state.Loading = true
	p.mu.Unlock()

	observability.RecordPollTick()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		snap, err := p.fetcher.TryFetchMetrics(ctx, identity)
		p.apply(seq, snap, err)
	}()
}

func (p *Poller) apply(seq uint64, snap domain.MetricsSnapshot, err error) {
	p.mu.Lock()
	if p.detached {
		p.mu.Unlock()
		return
	}
	if seq <= p.applied {
		p.mu.Unlock()
		observability.RecordStaleResponse("poller")
		p.logger.Debug("dropping stale response", zap.Uint64("seq", seq))
		return
	}
	p.applied = seq

	p.state.Loading = p.applied < p.seq
	if err != nil {
		p.state.Err = SyncFailureMessage
		p.logger.Warn("metrics sync failed", zap.Error(err))
	} else {
		p.state.Snapshot = snap.Clone()
		p.state.Err = ""
		p.state.UpdatedAt = p.clock.Now()
	}
	state := p.copyStateLocked()
	p.mu.Unlock()

	p.notify(state)
}

// SetIdentity switches the Pioneer, resets the snapshot and, if running,
// fetches immediately and restarts the interval.
func (p *Poller) SetIdentity(identity domain.Identity) {
	p.mu.Lock()
	if p.detached {
		p.mu.Unlock()
		return
	}
	p.identity = identity
	p.applied = p.seq
	p.state = State{Snapshot: domain.ZeroSnapshot(), Loading: !identity.IsZero() && p.running}
	running := p.running
	if running {
		p.ticker.Reset(p.interval)
	}
	state := p.copyStateLocked()
	p.mu.Unlock()

	p.notify(state)
	if running {
		p.dispatch()
	}
}

// Stop stops the timer and discards results of fetches still in flight.
// It does not wait for them; see Wait.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.detached {
		return
	}
	p.detached = true
	if p.running {
		p.running = false
		p.ticker.Stop()
		close(p.stop)
	}
}

// Wait blocks until the timer loop and all in-flight fetches have returned.
func (p *Poller) Wait() {
	p.wg.Wait()
}

// State returns a copy of the current state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.copyStateLocked()
}

func (p *Poller) copyStateLocked() State {
	s := p.state
	s.Snapshot = p.state.Snapshot.Clone()
	return s
}

// Subscribe registers fn for every applied state. fn must not block.
func (p *Poller) Subscribe(fn func(State)) (unsubscribe func()) {
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

func (p *Poller) notify(state State) {
	p.mu.Lock()
	fns := make([]func(State), 0, len(p.subs))
	for _, fn := range p.subs {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}
