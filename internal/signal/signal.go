// Package signal is a TTL-bounded typed mailbox between agents. A signal
// is emitted once and then visible to its target (or to everyone when
// broadcast) until it expires or is consumed.
package signal

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Priority levels. Lower is more urgent.
const (
	PriorityCritical = 1
	PriorityWarning  = 2
	PriorityInfo     = 3
)

// DefaultTTL applies when an emit does not specify one.
const DefaultTTL = 24 * time.Hour

// Signal is one mailbox entry. Target empty means broadcast. Expiry makes
// the signal invisible to all readers regardless of consumed state.
type Signal struct {
	ID        string
	Type      string
	Source    string
	Target    string
	Message   string
	Payload   map[string]any
	Priority  int
	CreatedAt time.Time
	ExpiresAt time.Time
	Consumed  bool
}

// Expired reports whether the signal is past its TTL at the given time.
// The boundary is exclusive: a signal is already expired at exactly
// ExpiresAt, matching the relational filter `expires_at > now`.
func (s Signal) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !s.ExpiresAt.After(now)
}

// Broadcast reports whether the signal is addressed to every agent.
func (s Signal) Broadcast() bool {
	return s.Target == ""
}

// Query is the store-level filter for signal reads. Agent matching means
// target is empty (broadcast) or equals Agent. Results come back newest
// first, already filtered for expiry against Now.
type Query struct {
	Agent           string
	Source          string
	Types           []string
	Since           time.Time
	Now             time.Time
	MinPriority     int // 0 = any; otherwise priority <= MinPriority
	Limit           int // 0 = no limit
	IncludeConsumed bool
}

// SignalStore persists signals.
type SignalStore interface {
	InsertSignal(ctx context.Context, s *Signal) error
	QuerySignals(ctx context.Context, q Query) ([]Signal, error)
	// MarkConsumed flips consumed=true for the given ids. Already-consumed
	// rows are left as is.
	MarkConsumed(ctx context.Context, ids []string) error
}

// Bus is one agent's handle onto the shared mailbox. Store failures are
// logged and soften into empty results; the bus never returns an error.
type Bus struct {
	agent  string
	store  SignalStore
	logger *zap.Logger
	now    func() time.Time
}

// Option customizes a Bus.
type Option func(*Bus)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(b *Bus) { b.now = now }
}

// NewBus creates a bus bound to one agent identity.
func NewBus(agent string, store SignalStore, logger *zap.Logger, opts ...Option) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bus{agent: agent, store: store, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// EmitOptions tune a single emit. Zero values mean broadcast, info
// priority and the default TTL.
type EmitOptions struct {
	Target   string
	Priority int
	TTL      time.Duration
}

// Emit writes a new signal and returns its id, or "" when the store
// rejects it.
func (b *Bus) Emit(ctx context.Context, signalType, message string, payload map[string]any, opts EmitOptions) string {
	now := b.now()
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	priority := opts.Priority
	if priority < PriorityCritical || priority > PriorityInfo {
		priority = PriorityInfo
	}

	s := &Signal{
		ID:        uuid.NewString(),
		Type:      signalType,
		Source:    b.agent,
		Target:    opts.Target,
		Message:   message,
		Payload:   payload,
		Priority:  priority,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := b.store.InsertSignal(ctx, s); err != nil {
		b.logger.Warn("signal emit failed",
			zap.String("type", signalType),
			zap.String("source", b.agent),
			zap.Error(err))
		return ""
	}
	b.logger.Debug("signal emitted",
		zap.String("id", s.ID),
		zap.String("type", signalType),
		zap.String("target", opts.Target))
	return s.ID
}

// PeekOptions filter a non-destructive read.
type PeekOptions struct {
	Source          string
	Types           []string
	HoursBack       int
	Limit           int
	MinPriority     int
	IncludeConsumed bool
}

// Peek reads signals addressed to this agent (or broadcast) without
// claiming them. Consumed signals are hidden unless IncludeConsumed.
func (b *Bus) Peek(ctx context.Context, opts PeekOptions) []Signal {
	hoursBack := opts.HoursBack
	if hoursBack <= 0 {
		hoursBack = 24
	}
	now := b.now()
	signals, err := b.store.QuerySignals(ctx, Query{
		Agent:           b.agent,
		Source:          opts.Source,
		Types:           opts.Types,
		Since:           now.Add(-time.Duration(hoursBack) * time.Hour),
		Now:             now,
		MinPriority:     opts.MinPriority,
		Limit:           opts.Limit,
		IncludeConsumed: opts.IncludeConsumed,
	})
	if err != nil {
		b.logger.Warn("signal peek failed", zap.String("agent", b.agent), zap.Error(err))
		return nil
	}
	return signals
}

// ConsumeOptions filter a consuming read.
type ConsumeOptions struct {
	Types        []string
	MarkConsumed bool
	Limit        int
}

// Consume reads unconsumed signals and, when MarkConsumed is set, flips
// them so a second identical call returns nothing.
func (b *Bus) Consume(ctx context.Context, opts ConsumeOptions) []Signal {
	signals := b.Peek(ctx, PeekOptions{Types: opts.Types, Limit: opts.Limit})
	if len(signals) == 0 || !opts.MarkConsumed {
		return signals
	}

	ids := make([]string, len(signals))
	for i, s := range signals {
		ids[i] = s.ID
	}
	if err := b.store.MarkConsumed(ctx, ids); err != nil {
		b.logger.Warn("marking signals consumed failed",
			zap.String("agent", b.agent),
			zap.Int("count", len(ids)),
			zap.Error(err))
		return signals
	}
	for i := range signals {
		signals[i].Consumed = true
	}
	return signals
}

// Dismiss marks one specific signal consumed so it stops resurfacing.
func (b *Bus) Dismiss(ctx context.Context, id string) bool {
	if err := b.store.MarkConsumed(ctx, []string{id}); err != nil {
		b.logger.Warn("signal dismiss failed", zap.String("id", id), zap.Error(err))
		return false
	}
	return true
}

// Latest returns the most recent unexpired signal of a type, or nil.
func (b *Bus) Latest(ctx context.Context, signalType string) *Signal {
	signals := b.Peek(ctx, PeekOptions{Types: []string{signalType}, Limit: 1, IncludeConsumed: true})
	if len(signals) == 0 {
		return nil
	}
	return &signals[0]
}

// Summary buckets currently active signals for status displays.
type Summary struct {
	Total      int
	ByPriority map[int]int
	BySource   map[string]int
	Critical   []Signal
}

// ActiveSummary groups every active signal by priority and source.
func (b *Bus) ActiveSummary(ctx context.Context) Summary {
	signals := b.Peek(ctx, PeekOptions{})
	sum := Summary{
		Total:      len(signals),
		ByPriority: make(map[int]int),
		BySource:   make(map[string]int),
	}
	for _, s := range signals {
		sum.ByPriority[s.Priority]++
		sum.BySource[s.Source]++
		if s.Priority == PriorityCritical {
			sum.Critical = append(sum.Critical, s)
		}
	}
	return sum
}
