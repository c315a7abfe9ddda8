// Package session holds the per-session state of a dashboard: the
// authenticated Pioneer and the latest accepted metrics snapshot.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"mapcap-ipo/internal/domain"
	"mapcap-ipo/internal/observability"
	"mapcap-ipo/internal/storage"
)

// ErrInconsistentSnapshot is returned by Refresh for a snapshot whose
// userPiInvested exceeds totalPiInvested. The snapshot is not applied.
var ErrInconsistentSnapshot = errors.New("inconsistent metrics snapshot: user investment exceeds pool total")

// ErrIdentityMismatch is returned for a fetch on behalf of a Pioneer who is
// not the session's current one. Nothing is fetched or applied.
var ErrIdentityMismatch = errors.New("fetch is not for the session's pioneer")

// maxAnomalies bounds the anomalies kept for review.
const maxAnomalies = 100

// Fetcher fetches metrics for a Pioneer, surfacing failures.
type Fetcher interface {
	TryFetchMetrics(ctx context.Context, identity domain.Identity) (domain.MetricsSnapshot, error)
}

// Anomaly is a rejected snapshot kept for review.
type Anomaly struct {
	Username   string
	Snapshot   domain.MetricsSnapshot
	Reason     string
	ObservedAt time.Time
}

// State is a copy of the session state.
type State struct {
	Identity domain.Identity
	Metrics  domain.MetricsSnapshot
}

// Options configures a Store.
type Options struct {
	Logger     *zap.Logger
	Identities storage.IdentityStore // identity cache, optional
	History    storage.SnapshotStore // accepted snapshot history, optional
	Now        func() time.Time
}

// Store is the session state with a single Refresh entry point. It is safe
// for concurrent use.
type Store struct {
	fetcher    Fetcher
	logger     *zap.Logger
	identities storage.IdentityStore
	history    storage.SnapshotStore
	now        func() time.Time

	mu        sync.RWMutex
	token     string
	identity  domain.Identity
	metrics   domain.MetricsSnapshot
	seq       uint64 // last dispatched fetch
	applied   uint64 // fetches up to here are stale
	anomalies []Anomaly

	subMu   sync.Mutex
	subs    map[int]func(State)
	nextSub int
}

// New creates a store with no identity and the zero snapshot.
func New(fetcher Fetcher, opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		fetcher:    fetcher,
		logger:     logger.Named("session"),
		identities: opts.Identities,
		history:    opts.History,
		now:        now,
		metrics:    domain.ZeroSnapshot(),
		subs:       make(map[int]func(State)),
	}
}

// Identity returns the authenticated Pioneer, zero if none.
func (s *Store) Identity() domain.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// Metrics returns a copy of the latest accepted snapshot.
func (s *Store) Metrics() domain.MetricsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metrics.Clone()
}

// State returns a copy of identity and metrics taken together.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stateLocked()
}

func (s *Store) stateLocked() State {
	return State{Identity: s.identity, Metrics: s.metrics.Clone()}
}

// Refresh fetches metrics for username, or for the stored identity when
// username is empty, and replaces the snapshot wholesale. Without either
// it does nothing. A username other than the signed-in Pioneer's is
// refused with ErrIdentityMismatch. On fetch failure the previous snapshot
// stays and the error is returned. A response older than one already
// applied is dropped.
func (s *Store) Refresh(ctx context.Context, username string) error {
	return s.refresh(ctx, username, false)
}

func (s *Store) refresh(ctx context.Context, username string, signedIn bool) error {
	s.mu.Lock()
	identity := s.identity
	if signedIn && (identity.IsZero() || username != identity.Username) {
		s.mu.Unlock()
		observability.RecordStaleResponse("session")
		return ErrIdentityMismatch
	}
	if username != "" && username != identity.Username {
		if !identity.IsZero() {
			s.mu.Unlock()
			return ErrIdentityMismatch
		}
		identity = domain.Identity{Username: username}
	}
	if identity.IsZero() {
		s.mu.Unlock()
		return nil
	}
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	snap, err := s.fetcher.TryFetchMetrics(ctx, identity)
	if err != nil {
		s.logger.Warn("metrics refresh failed",
			zap.String("username", identity.Username),
			zap.Error(err))
		return fmt.Errorf("refresh metrics: %w", err)
	}

	if !snap.Consistent() {
		s.recordAnomaly(identity.Username, snap)
		return ErrInconsistentSnapshot
	}

	s.mu.Lock()
	if seq <= s.applied {
		s.mu.Unlock()
		observability.RecordStaleResponse("session")
		s.logger.Debug("dropping stale metrics response", zap.Uint64("seq", seq))
		return nil
	}
	s.applied = seq
	s.metrics = snap.Clone()
	state := s.stateLocked()
	s.mu.Unlock()

	observedAt := s.now()
	observability.RecordSnapshotAccepted(observedAt)
	if s.history != nil {
		rec := &domain.SnapshotRecord{
			Username:   identity.Username,
			ObservedAt: observedAt.UnixMilli(),
			Snapshot:   snap.Clone(),
		}
		if err := s.history.Insert(ctx, rec); err != nil {
			s.logger.Warn("failed to store snapshot history", zap.Error(err))
		}
	}

	s.notify(state)
	return nil
}

// TryFetchMetrics refreshes for identity and returns the resulting
// snapshot, so a poller can drive the store. identity must be the
// signed-in Pioneer; a tick left over from a previous sign-in gets
// ErrIdentityMismatch and changes nothing.
func (s *Store) TryFetchMetrics(ctx context.Context, identity domain.Identity) (domain.MetricsSnapshot, error) {
	if err := s.refresh(ctx, identity.Username, true); err != nil {
		return domain.MetricsSnapshot{}, err
	}
	return s.Metrics(), nil
}

func (s *Store) recordAnomaly(username string, snap domain.MetricsSnapshot) {
	a := Anomaly{
		Username:   username,
		Snapshot:   snap.Clone(),
		Reason:     fmt.Sprintf("userPiInvested %s exceeds totalPiInvested %s", snap.UserPiInvested, snap.TotalPiInvested),
		ObservedAt: s.now(),
	}

	s.mu.Lock()
	s.anomalies = append(s.anomalies, a)
	if len(s.anomalies) > maxAnomalies {
		s.anomalies = s.anomalies[len(s.anomalies)-maxAnomalies:]
	}
	s.mu.Unlock()

	observability.RecordSnapshotRejected("user_exceeds_total")
	s.logger.Error("rejected inconsistent snapshot",
		zap.String("username", username),
		zap.String("reason", a.Reason))
}

// Anomalies returns the rejected snapshots kept for review, oldest first.
func (s *Store) Anomalies() []Anomaly {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Anomaly, len(s.anomalies))
	copy(out, s.anomalies)
	return out
}

// SetIdentity replaces the authenticated Pioneer and caches it under the
// session token. A different Pioneer resets the snapshot to zero and
// fences off fetches still in flight.
func (s *Store) SetIdentity(ctx context.Context, identity domain.Identity) error {
	if identity.IsZero() {
		return domain.ErrNoIdentity
	}

	s.mu.Lock()
	if identity.Username != s.identity.Username {
		s.metrics = domain.ZeroSnapshot()
		s.applied = s.seq
	}
	s.identity = identity
	token := s.token
	state := s.stateLocked()
	s.mu.Unlock()

	s.notify(state)

	if token == "" || s.identities == nil {
		return nil
	}
	rec := &domain.IdentityRecord{
		Token:           token,
		Identity:        identity,
		AuthenticatedAt: s.now().UnixMilli(),
	}
	if err := s.identities.Save(ctx, rec); err != nil {
		return fmt.Errorf("cache identity: %w", err)
	}
	return nil
}

// RestoreIdentity binds the store to a page session token and loads the
// cached identity for it, if any. Reports whether an identity was restored.
func (s *Store) RestoreIdentity(ctx context.Context, token string) (domain.Identity, bool, error) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()

	if token == "" || s.identities == nil {
		return domain.Identity{}, false, nil
	}

	rec, err := s.identities.Get(ctx, token)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.Identity{}, false, nil
	}
	if err != nil {
		return domain.Identity{}, false, fmt.Errorf("load cached identity: %w", err)
	}

	s.mu.Lock()
	if rec.Identity.Username != s.identity.Username {
		s.metrics = domain.ZeroSnapshot()
		s.applied = s.seq
	}
	s.identity = rec.Identity
	state := s.stateLocked()
	s.mu.Unlock()

	s.logger.Info("restored cached identity",
		zap.String("username", rec.Identity.Username),
		zap.Time("authenticated_at", time.UnixMilli(rec.AuthenticatedAt)))
	s.notify(state)
	return rec.Identity, true, nil
}

// Logout clears the identity, purges its cache entry and resets metrics.
func (s *Store) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.identity = domain.Identity{}
	s.metrics = domain.ZeroSnapshot()
	s.applied = s.seq
	token := s.token
	state := s.stateLocked()
	s.mu.Unlock()

	s.notify(state)

	if token == "" || s.identities == nil {
		return nil
	}
	if err := s.identities.Delete(ctx, token); err != nil {
		return fmt.Errorf("purge cached identity: %w", err)
	}
	return nil
}

// Subscribe registers fn for every state change. fn runs on the goroutine
// that changed the state and must not block.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify(state State) {
	s.subMu.Lock()
	fns := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}
