package task

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jobintel/job-intel/internal/telemetry"
)

const memoryQueueCapacity = 1024

// MemoryBroker is a channel-backed Broker for single-process deployments and
// tests. Priority is strict: critical drains before default, default before
// low, and the low queue can be paused entirely.
type MemoryBroker struct {
	critical  chan Item
	standard  chan Item
	low       chan Item
	lowPaused atomic.Bool
	closed    atomic.Bool
}

// NewMemoryBroker builds an empty broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		critical: make(chan Item, memoryQueueCapacity),
		standard: make(chan Item, memoryQueueCapacity),
		low:      make(chan Item, memoryQueueCapacity),
	}
}

// Enqueue implements Broker. A full queue is an error rather than a block so
// the scheduler tick can never wedge.
func (b *MemoryBroker) Enqueue(_ context.Context, item Item) error {
	if b.closed.Load() {
		return fmt.Errorf("broker closed")
	}
	if !validQueue(item.Queue) {
		return fmt.Errorf("unknown queue %q", item.Queue)
	}
	ch := b.channel(item.Queue)
	select {
	case ch <- item:
		telemetry.SetQueueDepth(item.Queue, len(ch))
		return nil
	default:
		return fmt.Errorf("queue %s full", item.Queue)
	}
}

// Dequeue implements Broker.
func (b *MemoryBroker) Dequeue(ctx context.Context) (Item, error) {
	for {
		// Strict priority: drain critical first without waiting.
		select {
		case item := <-b.critical:
			telemetry.SetQueueDepth(QueueCritical, len(b.critical))
			return item, nil
		default:
		}
		select {
		case item := <-b.standard:
			telemetry.SetQueueDepth(QueueDefault, len(b.standard))
			return item, nil
		default:
		}
		if !b.lowPaused.Load() {
			select {
			case item := <-b.low:
				telemetry.SetQueueDepth(QueueLow, len(b.low))
				return item, nil
			default:
			}
		}

		select {
		case <-ctx.Done():
			return Item{}, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// Depths implements Broker.
func (b *MemoryBroker) Depths(context.Context) (map[string]int, error) {
	return map[string]int{
		QueueCritical: len(b.critical),
		QueueDefault:  len(b.standard),
		QueueLow:      len(b.low),
	}, nil
}

// PauseLow implements Broker.
func (b *MemoryBroker) PauseLow() { b.lowPaused.Store(true) }

// ResumeLow implements Broker.
func (b *MemoryBroker) ResumeLow() { b.lowPaused.Store(false) }

// Close implements Broker.
func (b *MemoryBroker) Close() error {
	b.closed.Store(true)
	return nil
}

func (b *MemoryBroker) channel(queue string) chan Item {
	switch queue {
	case QueueCritical:
		return b.critical
	case QueueLow:
		return b.low
	default:
		return b.standard
	}
}
