package capacity

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/capacity-router/internal/domain/hospital"
	"github.com/ehr/capacity-router/internal/platform/cache"
)

// Feed is the external push-subscription capability for live capacity
// updates. SubscribeCapacity delivers batches on the returned channel until
// the subscription ends (context cancellation or a terminal feed error), at
// which point the channel is closed.
type Feed interface {
	SubscribeCapacity(ctx context.Context, hospitalIDs []string) (<-chan []*hospital.Capacity, error)
	Close() error
}

// listenerBufSize is the per-listener batch buffer. Slow listeners drop
// batches rather than stalling the fan-out.
const listenerBufSize = 16

// Subscription is one listener's handle on the fan-out stream.
type Subscription struct {
	ID     uuid.UUID
	C      <-chan []*hospital.Capacity
	cancel func()
}

// Cancel removes the listener and closes its channel.
func (s *Subscription) Cancel() {
	s.cancel()
}

// Fanout holds at most one upstream feed subscription and republishes every
// inbound batch to all registered listeners, refreshing the cache as a side
// effect so routing reads stay warm.
type Fanout struct {
	feed   Feed
	cache  *cache.Cache
	logger zerolog.Logger
	ttl    time.Duration

	mu           sync.Mutex
	listeners    map[uuid.UUID]chan []*hospital.Capacity
	stopUpstream context.CancelFunc
	active       bool
	// generation identifies the current upstream pump. A replaced pump's
	// exit must not clear state owned by its successor.
	generation uint64
}

// NewFanout wires a fan-out over the given feed and cache.
func NewFanout(feed Feed, c *cache.Cache, logger zerolog.Logger) *Fanout {
	return &Fanout{
		feed:      feed,
		cache:     c,
		logger:    logger,
		ttl:       DefaultCapacityTTL,
		listeners: make(map[uuid.UUID]chan []*hospital.Capacity),
	}
}

// Subscribe establishes the upstream subscription for the given hospitals,
// replacing any prior one. On a later feed error the upstream simply goes
// inactive; callers must Subscribe again to reconnect, nothing reconnects
// automatically.
func (f *Fanout) Subscribe(ctx context.Context, hospitalIDs []string) error {
	f.mu.Lock()
	f.generation++
	gen := f.generation
	if f.stopUpstream != nil {
		f.stopUpstream()
		f.stopUpstream = nil
		f.active = false
	}
	f.mu.Unlock()

	upCtx, cancel := context.WithCancel(ctx)
	ch, err := f.feed.SubscribeCapacity(upCtx, hospitalIDs)
	if err != nil {
		cancel()
		return err
	}

	f.mu.Lock()
	f.stopUpstream = cancel
	f.active = true
	f.mu.Unlock()

	go f.pump(gen, ch)

	f.logger.Info().Int("hospitals", len(hospitalIDs)).Msg("capacity feed subscribed")
	return nil
}

// Active reports whether an upstream subscription is currently delivering.
func (f *Fanout) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

// Listen registers a listener on the fan-out stream.
func (f *Fanout) Listen() *Subscription {
	id := uuid.New()
	ch := make(chan []*hospital.Capacity, listenerBufSize)

	f.mu.Lock()
	f.listeners[id] = ch
	f.mu.Unlock()

	return &Subscription{
		ID: id,
		C:  ch,
		cancel: func() {
			f.mu.Lock()
			if c, ok := f.listeners[id]; ok {
				delete(f.listeners, id)
				close(c)
			}
			f.mu.Unlock()
		},
	}
}

// Close cancels the upstream subscription, releases the feed connection, and
// drops every listener.
func (f *Fanout) Close() error {
	f.mu.Lock()
	f.generation++
	if f.stopUpstream != nil {
		f.stopUpstream()
		f.stopUpstream = nil
	}
	f.active = false
	for id, ch := range f.listeners {
		delete(f.listeners, id)
		close(ch)
	}
	f.mu.Unlock()

	return f.feed.Close()
}

func (f *Fanout) pump(gen uint64, ch <-chan []*hospital.Capacity) {
	for batch := range ch {
		for _, c := range batch {
			f.cache.StoreTTL(capacityKey(c.HospitalID), c, cache.PriorityMedium, f.ttl)
		}
		f.broadcast(batch)
	}

	// A pump replaced by a newer Subscribe exits here too; only the current
	// one may mark the fan-out inactive.
	f.mu.Lock()
	current := gen == f.generation
	if current {
		f.active = false
	}
	f.mu.Unlock()
	if current {
		f.logger.Warn().Msg("capacity feed ended; explicit resubscribe required")
	}
}

func (f *Fanout) broadcast(batch []*hospital.Capacity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, ch := range f.listeners {
		select {
		case ch <- batch:
		default:
			f.logger.Debug().Str("listener", id.String()).Msg("fan-out listener lagging, batch dropped")
		}
	}
}
