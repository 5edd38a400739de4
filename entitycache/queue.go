package entitycache

import (
	"context"
	"encoding/json"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-supply-cache/cache"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultMaxRetries is the number of failed drains after which an item is dead-lettered.
const DefaultMaxRetries = 3

// ErrQueueUnavailable is returned when a mutation could not be recorded in the offline queue.
var ErrQueueUnavailable = goerrors.New("offline queue could not be written", goerrors.CategoryOperation).
	WithTextCode("OFFLINE_QUEUE_UNAVAILABLE")

// Operation is the kind of queued mutation.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// QueueItem is a mutation attempted while offline.
type QueueItem struct {
	ID             string          `json:"id"`
	Operation      Operation       `json:"operation"`
	Data           json.RawMessage `json:"data"`
	Timestamp      int64           `json:"timestamp"`
	RetryCount     int             `json:"retryCount"`
	LastError      string          `json:"lastError,omitempty"`
	DeadLetteredAt int64           `json:"deadLetteredAt,omitempty"`
}

// Decode unmarshals the queued payload into dest.
func (q QueueItem) Decode(dest any) error {
	return json.Unmarshal(q.Data, dest)
}

// DrainReport summarizes one Drain pass.
type DrainReport struct {
	Succeeded    int
	Retrying     int
	DeadLettered int
}

// Handler replays one queued mutation against the remote store.
type Handler func(ctx context.Context, item QueueItem) error

// Enqueue records a mutation for later replay.
func (c *EntityCache[T]) Enqueue(ctx context.Context, op Operation, data any) (QueueItem, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return QueueItem{}, goerrors.Wrap(err, goerrors.CategoryBadInput, "encode offline mutation")
	}

	item := QueueItem{
		ID:        uuid.NewString(),
		Operation: op,
		Data:      payload,
		Timestamp: c.now().UnixMilli(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	queue := c.readQueue(ctx)
	queue = append(queue, item)
	if !c.store.Write(ctx, c.keys.Queue, queue) {
		return QueueItem{}, ErrQueueUnavailable
	}

	c.logger.Debug("offline mutation queued",
		zap.String("id", item.ID),
		zap.String("operation", string(op)),
		zap.Int("pending", len(queue)),
	)
	return item, nil
}

// Pending returns the queued mutations in insertion order.
func (c *EntityCache[T]) Pending(ctx context.Context) []QueueItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readQueue(ctx)
}

// Drain replays queued mutations in order. Successful items leave the queue; a failed
// item has its retry count raised and, once it reaches the ceiling, moves to the
// dead-letter list. Items enqueued while Drain runs are kept. A done ctx stops the pass
// and leaves the remaining items untouched.
func (c *EntityCache[T]) Drain(ctx context.Context, handler Handler) DrainReport {
	report := DrainReport{}
	snapshot := c.Pending(ctx)
	if len(snapshot) == 0 {
		return report
	}

	succeeded := make(map[string]bool)
	failed := make(map[string]string)

	for _, item := range snapshot {
		if ctx.Err() != nil {
			break
		}
		if err := handler(ctx, item); err != nil {
			failed[item.ID] = err.Error()
			continue
		}
		succeeded[item.ID] = true
	}

	// Bookkeeping must land even when ctx ended the pass early.
	ctx = context.WithoutCancel(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		kept []QueueItem
		dead []QueueItem
	)
	for _, item := range c.readQueue(ctx) {
		if succeeded[item.ID] {
			report.Succeeded++
			continue
		}
		reason, didFail := failed[item.ID]
		if !didFail {
			kept = append(kept, item)
			continue
		}

		item.RetryCount++
		item.LastError = reason
		if item.RetryCount >= c.maxRetries {
			item.DeadLetteredAt = c.now().UnixMilli()
			dead = append(dead, item)
			report.DeadLettered++
			c.logger.Warn("offline mutation dead-lettered",
				zap.String("id", item.ID),
				zap.String("operation", string(item.Operation)),
				zap.Int("retries", item.RetryCount),
				zap.String("error", reason),
			)
			continue
		}
		kept = append(kept, item)
		report.Retrying++
	}

	if kept == nil {
		kept = []QueueItem{}
	}
	c.store.Write(ctx, c.keys.Queue, kept)

	if len(dead) > 0 {
		letters := c.readDeadLetters(ctx)
		c.store.Write(ctx, c.keys.DeadLetters, append(letters, dead...))
	}

	c.logger.Info("offline queue drained",
		zap.Int("succeeded", report.Succeeded),
		zap.Int("retrying", report.Retrying),
		zap.Int("dead_lettered", report.DeadLettered),
	)
	return report
}

// DeadLetters returns the mutations abandoned after reaching the retry ceiling.
func (c *EntityCache[T]) DeadLetters(ctx context.Context) []QueueItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readDeadLetters(ctx)
}

// ClearDeadLetters discards the dead-letter list.
func (c *EntityCache[T]) ClearDeadLetters(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Remove(ctx, c.keys.DeadLetters)
}

// ClearQueue discards every pending mutation.
func (c *EntityCache[T]) ClearQueue(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Remove(ctx, c.keys.Queue)
}

func (c *EntityCache[T]) readQueue(ctx context.Context) []QueueItem {
	queue, _ := cache.Read[[]QueueItem](ctx, c.store, c.keys.Queue)
	return queue
}

func (c *EntityCache[T]) readDeadLetters(ctx context.Context) []QueueItem {
	letters, _ := cache.Read[[]QueueItem](ctx, c.store, c.keys.DeadLetters)
	return letters
}
