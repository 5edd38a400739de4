package invalidation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/goliatone/go-supply-cache/cache"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultHistoryCapacity bounds the invalidation history.
const DefaultHistoryCapacity = 100

// EntityTarget is the entity cache as seen by the engine.
type EntityTarget interface {
	Clear(ctx context.Context)
	Remove(ctx context.Context, id string) bool
}

// QueryTarget is the query cache as seen by the engine.
type QueryTarget interface {
	Clear(ctx context.Context) int
	ClearMatching(ctx context.Context, pattern string) int
}

// StateReader returns the current state of a record. It backs the conditional strategy.
type StateReader interface {
	CurrentState(ctx context.Context, table, recordID string) (map[string]any, bool)
}

// StateReaderFunc adapts a function to StateReader.
type StateReaderFunc func(ctx context.Context, table, recordID string) (map[string]any, bool)

// CurrentState calls f.
func (f StateReaderFunc) CurrentState(ctx context.Context, table, recordID string) (map[string]any, bool) {
	return f(ctx, table, recordID)
}

// Timer is a pending scheduled invalidation.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc satisfies it through a small adapter.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// MutationEvent describes a successful remote mutation.
type MutationEvent struct {
	Table     string         `json:"table"`
	Operation Operation      `json:"operation"`
	RecordID  string         `json:"recordId,omitempty"`
	OldData   map[string]any `json:"oldData,omitempty"`
	NewData   map[string]any `json:"newData,omitempty"`
}

// Change is the before and after value of one field.
type Change struct {
	From any `json:"from"`
	To   any `json:"to"`
}

// EventTrigger is the mutation summary kept in the history.
type EventTrigger struct {
	Table     string            `json:"table"`
	Operation Operation         `json:"operation"`
	RecordID  string            `json:"recordId,omitempty"`
	Changes   map[string]Change `json:"changes"`
}

// Event is one entry of the invalidation history. Strategy is the strategy of the
// highest priority applied rule; Strategies lists every strategy involved.
type Event struct {
	ID                string       `json:"id"`
	Timestamp         time.Time    `json:"timestamp"`
	Trigger           EventTrigger `json:"trigger"`
	AppliedRules      []string     `json:"appliedRules"`
	InvalidatedCaches []string     `json:"invalidatedCaches"`
	Strategy          Strategy     `json:"strategy"`
	Strategies        []Strategy   `json:"strategies"`
}

// Stats counts engine activity since creation or the last Reset.
type Stats struct {
	Rules              int              `json:"rules"`
	HistorySize        int              `json:"historySize"`
	PendingScheduled   int              `json:"pendingScheduled"`
	Processed          int              `json:"processed"`
	Matched            int              `json:"matched"`
	Invalidations      int              `json:"invalidations"`
	StaleMarks         int              `json:"staleMarks"`
	ScheduledFired     int              `json:"scheduledFired"`
	ConditionalSkipped int              `json:"conditionalSkipped"`
	ByStrategy         map[Strategy]int `json:"byStrategy"`
}

// dispatchOrder is the order strategy groups are dispatched in.
var dispatchOrder = []Strategy{StrategyImmediate, StrategyConditional, StrategyLazy, StrategyScheduled}

type scheduledEntry struct {
	timer Timer
	seq   uint64
}

// Engine maps mutation events to cache invalidations.
type Engine struct {
	entity  EntityTarget
	query   QueryTarget
	markers *cache.StaleMarkers

	state      StateReader
	afterFunc  AfterFunc
	now        func() time.Time
	newID      func() string
	logger     *zap.Logger
	historyCap int
	defaults   []Rule

	mu        sync.Mutex
	rules     map[string]Rule
	order     []string
	history   []Event
	scheduled map[string]scheduledEntry
	seq       uint64
	stats     Stats
}

// Option configures an Engine.
type Option func(*Engine)

// WithStateReader enables conditional re-evaluation against current record state.
func WithStateReader(r StateReader) Option {
	return func(e *Engine) { e.state = r }
}

// WithAfterFunc sets the timer factory of the scheduled strategy.
func WithAfterFunc(fn AfterFunc) Option {
	return func(e *Engine) { e.afterFunc = fn }
}

// WithClock sets the time source of history entries.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithHistoryCapacity bounds the history.
func WithHistoryCapacity(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.historyCap = n
		}
	}
}

// WithDefaultRules replaces the rule set loaded by New and Reset. Pass nothing to start empty.
func WithDefaultRules(rules ...Rule) Option {
	return func(e *Engine) { e.defaults = rules }
}

// New creates an engine. Any target may be nil, in which case invalidations of that
// region are skipped; without markers the lazy strategy invalidates immediately.
func New(entity EntityTarget, query QueryTarget, markers *cache.StaleMarkers, opts ...Option) *Engine {
	e := &Engine{
		entity:     entity,
		query:      query,
		markers:    markers,
		afterFunc:  realAfterFunc,
		now:        time.Now,
		newID:      uuid.NewString,
		logger:     zap.NewNop(),
		historyCap: DefaultHistoryCapacity,
		defaults:   DefaultRules(),
		rules:      make(map[string]Rule),
		scheduled:  make(map[string]scheduledEntry),
		stats:      Stats{ByStrategy: make(map[Strategy]int)},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.loadDefaults()
	return e
}

func (e *Engine) loadDefaults() {
	for _, rule := range e.defaults {
		if err := e.AddRule(rule); err != nil {
			e.logger.Error("default invalidation rule rejected", zap.String("rule", rule.ID), zap.Error(err))
		}
	}
}

// AddRule validates and stores rule. A rule with an existing id replaces it in place.
func (e *Engine) AddRule(rule Rule) error {
	rule = rule.Normalize()
	if err := rule.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.rules[rule.ID]; !exists {
		e.order = append(e.order, rule.ID)
	}
	e.rules[rule.ID] = rule
	return nil
}

// AddRules adds every rule, stopping at the first invalid one.
func (e *Engine) AddRules(rules ...Rule) error {
	for _, rule := range rules {
		if err := e.AddRule(rule); err != nil {
			return err
		}
	}
	return nil
}

// RemoveRule deletes a rule. It reports whether the rule existed.
func (e *Engine) RemoveRule(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.rules[id]; !exists {
		return false
	}
	delete(e.rules, id)
	for i, ruleID := range e.order {
		if ruleID == id {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	return true
}

// Rules returns the rule set sorted by id.
func (e *Engine) Rules() []Rule {
	e.mu.Lock()
	defer e.mu.Unlock()

	rules := make([]Rule, 0, len(e.rules))
	for _, rule := range e.rules {
		rules = append(rules, rule)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules
}

// Reset cancels scheduled invalidations, forgets rules, history and stats, and reloads
// the default rules.
func (e *Engine) Reset() {
	e.ClearScheduled()

	e.mu.Lock()
	e.rules = make(map[string]Rule)
	e.order = nil
	e.history = nil
	e.stats = Stats{ByStrategy: make(map[Strategy]int)}
	e.mu.Unlock()

	e.loadDefaults()
}

// MatchRules returns the rules that react to event, highest priority first and in
// insertion order otherwise. It has no side effects.
func (e *Engine) MatchRules(event MutationEvent) []Rule {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.matchLocked(event)
}

func (e *Engine) matchLocked(event MutationEvent) []Rule {
	var matched []Rule
	for _, id := range e.order {
		if rule := e.rules[id]; rule.matches(event) {
			matched = append(matched, rule)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Priority.rank() > matched[j].Priority.rank()
	})
	return matched
}

// ProcessDataChange applies every rule matching event and records the outcome in the
// history. Invalidation side effects are the only result.
func (e *Engine) ProcessDataChange(ctx context.Context, event MutationEvent) {
	e.mu.Lock()
	matched := e.matchLocked(event)
	e.stats.Processed++
	e.stats.Matched += len(matched)
	e.mu.Unlock()

	if len(matched) == 0 {
		e.logger.Debug("no invalidation rule matched",
			zap.String("table", event.Table),
			zap.String("operation", string(event.Operation)),
		)
		return
	}

	groups := make(map[Strategy][]Rule)
	for _, rule := range matched {
		groups[rule.Strategy] = append(groups[rule.Strategy], rule)
	}

	var touched []string
	for _, strategy := range dispatchOrder {
		for _, rule := range groups[strategy] {
			touched = append(touched, e.dispatch(ctx, rule, event)...)
		}
	}

	e.record(event, matched, touched)
}

func (e *Engine) dispatch(ctx context.Context, rule Rule, event MutationEvent) []string {
	targets := make([]Target, len(rule.Targets))
	for i, t := range rule.Targets {
		targets[i] = t.resolve(event.RecordID)
	}

	e.mu.Lock()
	e.stats.ByStrategy[rule.Strategy]++
	e.mu.Unlock()

	switch rule.Strategy {
	case StrategyLazy:
		if e.markers == nil {
			return e.invalidate(ctx, rule, targets)
		}
		return e.markStale(ctx, rule, targets)
	case StrategyScheduled:
		return e.schedule(ctx, rule, event, targets)
	case StrategyConditional:
		if !e.stillHolds(ctx, rule, event) {
			e.mu.Lock()
			e.stats.ConditionalSkipped++
			e.mu.Unlock()
			e.logger.Debug("conditional invalidation skipped",
				zap.String("rule", rule.ID),
				zap.String("record_id", event.RecordID),
			)
			return nil
		}
		return e.invalidate(ctx, rule, targets)
	default:
		return e.invalidate(ctx, rule, targets)
	}
}

// stillHolds re-evaluates the rule conditions against the current record state. Without
// a reader, or without current state, the rule is applied as if immediate.
func (e *Engine) stillHolds(ctx context.Context, rule Rule, event MutationEvent) bool {
	if e.state == nil || len(rule.Trigger.Conditions) == 0 {
		return true
	}
	current, ok := e.state.CurrentState(ctx, event.Table, event.RecordID)
	if !ok {
		return true
	}
	return conditionsHold(rule.Trigger.Conditions, event.OldData, current)
}

func (e *Engine) invalidate(ctx context.Context, rule Rule, targets []Target) []string {
	touched := make([]string, 0, len(targets))
	for _, target := range targets {
		e.invalidateTarget(ctx, target)
		touched = append(touched, target.String())
	}

	e.mu.Lock()
	e.stats.Invalidations += len(targets)
	e.mu.Unlock()

	e.logger.Debug("caches invalidated",
		zap.String("rule", rule.ID),
		zap.String("strategy", string(rule.Strategy)),
		zap.Strings("targets", touched),
	)
	return touched
}

func (e *Engine) invalidateTarget(ctx context.Context, target Target) {
	switch target.Type {
	case TargetMainCache:
		if e.entity != nil {
			e.entity.Clear(ctx)
		}
	case TargetQueryCache:
		if e.query != nil {
			e.query.ClearMatching(ctx, target.Pattern)
		}
	case TargetSpecificEntity:
		if e.entity != nil && target.EntityID != "" {
			e.entity.Remove(ctx, target.EntityID)
		}
	case TargetAll:
		if e.entity != nil {
			e.entity.Clear(ctx)
		}
		if e.query != nil {
			e.query.Clear(ctx)
		}
	}
}

func (e *Engine) markStale(ctx context.Context, rule Rule, targets []Target) []string {
	touched := make([]string, 0, len(targets))
	for _, target := range targets {
		e.markers.Mark(ctx, string(target.Type), target.subject())
		touched = append(touched, "stale:"+target.String())
	}

	e.mu.Lock()
	e.stats.StaleMarks += len(targets)
	e.mu.Unlock()

	e.logger.Debug("caches marked stale", zap.String("rule", rule.ID), zap.Strings("targets", touched))
	return touched
}

// scheduleKey identifies a debounced invalidation.
func scheduleKey(ruleID, recordID string) string {
	if recordID == "" {
		recordID = "*"
	}
	return ruleID + ":" + recordID
}

// schedule (re)arms the timer of rule and record. A pending timer for the same key is
// stopped first, so only the latest trigger fires.
func (e *Engine) schedule(ctx context.Context, rule Rule, event MutationEvent, targets []Target) []string {
	key := scheduleKey(rule.ID, event.RecordID)
	fireCtx := context.WithoutCancel(ctx)

	e.mu.Lock()
	if pending, ok := e.scheduled[key]; ok {
		pending.timer.Stop()
	}
	e.seq++
	seq := e.seq

	// The callback takes e.mu, so it cannot observe the map before the entry is stored.
	timer := e.afterFunc(rule.Delay, func() {
		e.mu.Lock()
		current, ok := e.scheduled[key]
		if !ok || current.seq != seq {
			e.mu.Unlock()
			return
		}
		delete(e.scheduled, key)
		e.stats.ScheduledFired++
		e.mu.Unlock()

		e.invalidate(fireCtx, rule, targets)
	})
	e.scheduled[key] = scheduledEntry{timer: timer, seq: seq}
	e.mu.Unlock()

	e.logger.Debug("invalidation scheduled",
		zap.String("key", key),
		zap.Duration("delay", rule.Delay),
	)

	touched := make([]string, 0, len(targets))
	for _, target := range targets {
		touched = append(touched, "scheduled:"+target.String())
	}
	return touched
}

// ClearScheduled cancels every pending scheduled invalidation and returns how many
// were cancelled.
func (e *Engine) ClearScheduled() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := len(e.scheduled)
	for key, pending := range e.scheduled {
		pending.timer.Stop()
		delete(e.scheduled, key)
	}
	return n
}

// PendingScheduled returns the keys ("ruleId:recordId") of pending scheduled invalidations.
func (e *Engine) PendingScheduled() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	keys := make([]string, 0, len(e.scheduled))
	for key := range e.scheduled {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (e *Engine) record(event MutationEvent, applied []Rule, touched []string) {
	ids := make([]string, len(applied))
	seen := make(map[Strategy]bool)
	var strategies []Strategy
	for i, rule := range applied {
		ids[i] = rule.ID
		if !seen[rule.Strategy] {
			seen[rule.Strategy] = true
			strategies = append(strategies, rule.Strategy)
		}
	}
	if touched == nil {
		touched = []string{}
	}

	entry := Event{
		ID:        e.newID(),
		Timestamp: e.now(),
		Trigger: EventTrigger{
			Table:     event.Table,
			Operation: event.Operation,
			RecordID:  event.RecordID,
			Changes:   diff(event.OldData, event.NewData),
		},
		AppliedRules:      ids,
		InvalidatedCaches: touched,
		Strategy:          applied[0].Strategy,
		Strategies:        strategies,
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.history = append([]Event{entry}, e.history...)
	if len(e.history) > e.historyCap {
		e.history = e.history[:e.historyCap]
	}

	e.logger.Info("data change processed",
		zap.String("table", event.Table),
		zap.String("operation", string(event.Operation)),
		zap.String("record_id", event.RecordID),
		zap.Strings("rules", ids),
	)
}

// History returns the recorded invalidations, most recent first.
func (e *Engine) History() []Event {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Event, len(e.history))
	copy(out, e.history)
	return out
}

// ClearHistory forgets the recorded invalidations.
func (e *Engine) ClearHistory() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = nil
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := e.stats
	stats.Rules = len(e.rules)
	stats.HistorySize = len(e.history)
	stats.PendingScheduled = len(e.scheduled)
	stats.ByStrategy = make(map[Strategy]int, len(e.stats.ByStrategy))
	for k, v := range e.stats.ByStrategy {
		stats.ByStrategy[k] = v
	}
	return stats
}
