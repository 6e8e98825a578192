// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package coordinator polls every configured arr backend for its library
// count and publishes the merged result as a single snapshot.
package coordinator

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/autobrr/requestarr/internal/models"
	"github.com/autobrr/requestarr/internal/services/arr"
	"github.com/autobrr/requestarr/internal/services/cache"
	"github.com/autobrr/requestarr/internal/services/resilience"
)

const DefaultInterval = 300 * time.Second

// retryPolicy retries refused or reset connections within a cycle. Other
// failures are reported as they are.
var retryPolicy = resilience.Policy{
	Attempts:  3,
	Retryable: arr.IsTransient,
}

type State string

const (
	StateIdle      State = "idle"
	StatePolling   State = "polling"
	StateSuccess   State = "success"
	StateAllFailed State = "all_failed"
)

// Options configures a Coordinator.
type Options struct {
	Interval time.Duration
	Timeout  time.Duration
	// Cache persists the latest snapshot so a restart can serve it before
	// the first cycle completes. Optional.
	Cache cache.Store
}

// serviceSet is the immutable client set built from one settings revision.
type serviceSet struct {
	settings models.Settings
	clients  map[models.Kind]*arr.Client
	order    []models.Kind
}

// Coordinator owns one client per configured backend. Clients are shared
// with the command dispatch layer through Client.
type Coordinator struct {
	interval time.Duration
	timeout  time.Duration
	store    cache.Store

	services atomic.Pointer[serviceSet]
	snapshot atomic.Pointer[Snapshot]
	state    atomic.Value // State
	lastOK   atomic.Bool

	cycleMu sync.Mutex
	sf      singleflight.Group

	subMu       sync.RWMutex
	subscribers []func(*Snapshot)

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a coordinator from the persisted settings.
func New(settings models.Settings, opts Options) (*Coordinator, error) {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = arr.DefaultTimeout
	}

	c := &Coordinator{
		interval: opts.Interval,
		timeout:  opts.Timeout,
		store:    opts.Cache,
	}
	c.state.Store(StateIdle)
	c.snapshot.Store(emptySnapshot())

	if err := c.Reload(settings); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload swaps in a new settings revision. Kinds without a URL are left out
// of the client set.
func (c *Coordinator) Reload(settings models.Settings) error {
	set := &serviceSet{
		settings: models.Settings{},
		clients:  map[models.Kind]*arr.Client{},
	}

	for _, kind := range models.Kinds {
		svc, ok := settings[kind]
		if !ok {
			continue
		}
		svc.Kind = kind
		set.settings[kind] = svc

		if strings.TrimSpace(svc.URL) == "" {
			continue
		}

		client, err := arr.NewClientFromSettings(svc, c.timeout)
		if err != nil {
			return err
		}
		set.clients[kind] = client
		set.order = append(set.order, kind)
	}

	c.services.Store(set)

	log.Debug().
		Int("configured", len(set.order)).
		Interface("kinds", set.order).
		Msg("Coordinator services loaded")
	return nil
}

// Client returns the client of a configured backend.
func (c *Coordinator) Client(kind models.Kind) (*arr.Client, bool) {
	client, ok := c.services.Load().clients[kind]
	return client, ok
}

// Configured lists the kinds that have a client, in polling order.
func (c *Coordinator) Configured() []models.Kind {
	return append([]models.Kind(nil), c.services.Load().order...)
}

// Settings returns the settings revision the clients were built from.
func (c *Coordinator) Settings() models.Settings {
	return c.services.Load().settings
}

// Snapshot returns the latest complete snapshot. It is never nil.
func (c *Coordinator) Snapshot() *Snapshot {
	return c.snapshot.Load()
}

// LastUpdateSuccess reports whether the latest cycle succeeded.
func (c *Coordinator) LastUpdateSuccess() bool {
	return c.lastOK.Load()
}

func (c *Coordinator) State() State {
	return c.state.Load().(State)
}

// Subscribe registers fn to receive every new snapshot. fn runs on the
// polling goroutine and must not block.
func (c *Coordinator) Subscribe(fn func(*Snapshot)) {
	c.subMu.Lock()
	c.subscribers = append(c.subscribers, fn)
	c.subMu.Unlock()
}

// Start restores the cached snapshot, runs a first cycle and keeps polling
// on the configured interval until ctx is done or Stop is called.
func (c *Coordinator) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)

	c.restore(ctx)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		c.tick(ctx)
		for {
			select {
			case <-ticker.C:
				c.tick(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()

	log.Info().Dur("interval", c.interval).Msg("Coordinator started")
}

// Stop ends the polling loop and waits for an in-flight cycle.
func (c *Coordinator) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	log.Info().Msg("Coordinator stopped")
}

func (c *Coordinator) tick(ctx context.Context) {
	if _, err := c.Poll(ctx); err != nil {
		log.Error().Err(err).Msg("Poll cycle failed")
	}
}

// Refresh runs a cycle on demand. Concurrent callers share one cycle, which
// is not cancelled when the caller that started it goes away.
func (c *Coordinator) Refresh(ctx context.Context) (*Snapshot, error) {
	type result struct {
		snap *Snapshot
		err  error
	}

	v, _, _ := c.sf.Do("refresh", func() (interface{}, error) {
		snap, err := c.Poll(context.WithoutCancel(ctx))
		return result{snap: snap, err: err}, nil
	})
	r := v.(result)
	return r.snap, r.err
}

// Poll runs one cycle: every configured backend is counted concurrently, the
// outcomes are folded into a new snapshot and the snapshot replaces the
// previous one. The snapshot is replaced even when every backend failed so
// readers see the per-kind errors.
func (c *Coordinator) Poll(ctx context.Context) (*Snapshot, error) {
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()

	c.state.Store(StatePolling)

	set := c.services.Load()
	outcomes := make([]outcome, len(set.order))

	var g errgroup.Group
	for i, kind := range set.order {
		client := set.clients[kind]
		g.Go(func() error {
			var count int
			err := resilience.RetryWithBackoff(ctx, retryPolicy, func() error {
				var err error
				count, err = client.LibraryCount(ctx)
				return err
			})
			outcomes[i] = outcome{kind: kind, count: count, err: err}
			if err != nil {
				log.Warn().Err(err).Str("service", kind.String()).Msg("Library count failed")
			}
			return nil
		})
	}
	_ = g.Wait()

	snap, err := fold(outcomes, time.Now())

	c.snapshot.Store(snap)
	c.lastOK.Store(err == nil)
	if err != nil {
		c.state.Store(StateAllFailed)
	} else {
		c.state.Store(StateSuccess)
	}

	log.Debug().
		Int("services", len(outcomes)).
		Int("failed", len(snap.Errors)).
		Bool("success", snap.Success).
		Msg("Poll cycle completed")

	// An interrupted cycle holds only cancellation errors; keep the
	// previously cached snapshot for the next start.
	if ctx.Err() == nil {
		c.persist(ctx, snap)
	}
	c.publish(snap)

	return snap, err
}

func (c *Coordinator) publish(snap *Snapshot) {
	c.subMu.RLock()
	subs := append([]func(*Snapshot){}, c.subscribers...)
	c.subMu.RUnlock()

	for _, fn := range subs {
		fn(snap)
	}
}

func (c *Coordinator) persist(ctx context.Context, snap *Snapshot) {
	if c.store == nil {
		return
	}
	if err := c.store.Set(ctx, cache.PrefixSnapshot, snap, cache.SnapshotTTL); err != nil {
		log.Debug().Err(err).Msg("Failed to cache snapshot")
	}
}

// restore loads the previously cached snapshot, if any, as the initial
// state. Only kinds that are still configured are kept.
func (c *Coordinator) restore(ctx context.Context) {
	if c.store == nil {
		return
	}

	var cached Snapshot
	if err := c.store.Get(ctx, cache.PrefixSnapshot, &cached); err != nil {
		return
	}

	set := c.services.Load()
	snap := emptySnapshot()
	snap.UpdatedAt = cached.UpdatedAt
	snap.Success = cached.Success
	for _, kind := range set.order {
		if count, ok := cached.Counts[kind]; ok {
			snap.Counts[kind] = count
		}
		if msg, ok := cached.Errors[kind]; ok {
			snap.Errors[kind] = msg
		}
	}

	c.snapshot.Store(snap)
	log.Debug().Time("updated_at", snap.UpdatedAt).Msg("Restored cached snapshot")
}
