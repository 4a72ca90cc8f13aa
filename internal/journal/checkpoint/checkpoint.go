// Package checkpoint implements the Checkpoint Manager: the linear state
// machine that flushes allocator context, block map, and stripe map for one
// log group so it can be released back to the Log Buffer.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/cheolho-kang/poseidonos/internal/journal/collab"
)

// State is a step in the checkpoint state machine.
//
//	Idle -> FlushAllocatorContext -> FlushBlockMap -> FlushStripeMap -> Done
type State int

const (
	Idle State = iota
	FlushAllocatorContext
	FlushBlockMap
	FlushStripeMap
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case FlushAllocatorContext:
		return "FlushAllocatorContext"
	case FlushBlockMap:
		return "FlushBlockMap"
	case FlushStripeMap:
		return "FlushStripeMap"
	case Done:
		return "Done"
	default:
		return "Unknown"
	}
}

// partitionOrder is the linear sequence of flush transitions; a failed
// flush re-enters the same state (via flushWithRetry) rather than moving
// on.
var partitionOrder = []struct {
	state     State
	partition collab.FlushPartition
}{
	{FlushAllocatorContext, collab.PartitionAllocatorContext},
	{FlushBlockMap, collab.PartitionBlockMap},
	{FlushStripeMap, collab.PartitionStripeMap},
}

// ErrAlreadyRunning is returned by Run if a checkpoint is already in
// progress; the journal guarantees at most one checkpoint executes
// concurrently.
var ErrAlreadyRunning = errors.New("checkpoint: a checkpoint is already running")

// ErrFlushFailed is returned by Run, wrapping the last flush error, once a
// partition's bounded retry budget is exhausted. The caller must treat this
// as a MediaFailure escalation per the journal's error-handling design.
var ErrFlushFailed = errors.New("checkpoint: flush failed after bounded retries")

// Manager drives the checkpoint state machine for one group at a time.
type Manager struct {
	mapFlush   collab.IMapFlush
	maxRetries int
	running    atomic.Bool
	log        *zap.SugaredLogger
}

// New constructs a Manager. maxRetries bounds the number of re-attempts per
// partition before CheckpointFlushFailed is escalated (0 means a single
// attempt, no retries).
func New(mapFlush collab.IMapFlush, maxRetries int, log *zap.SugaredLogger) *Manager {
	return &Manager{
		mapFlush:   mapFlush,
		maxRetries: maxRetries,
		log:        log.Named("checkpoint"),
	}
}

// Run drives one full checkpoint for volumeID, flushing allocator context,
// block map, and stripe map in order. Concurrent host writes are
// unaffected; Run only quiesces the specific metadata partitions it
// flushes. Returns ErrAlreadyRunning if another checkpoint is in flight, or
// ErrFlushFailed if a partition's flush exhausts its retry budget.
func (m *Manager) Run(ctx context.Context, volumeID uint32) (err error) {
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer m.running.Store(false)

	state := Idle
	for _, step := range partitionOrder {
		state = step.state
		m.log.Debugw("checkpoint transition", "state", state.String(), "volume_id", volumeID)

		if err := m.flushWithRetry(ctx, step.partition, volumeID); err != nil {
			m.log.Errorw("checkpoint flush exhausted retries, escalating",
				"state", state.String(), "volume_id", volumeID, "err", err)
			return fmt.Errorf("%w: partition %s: %v", ErrFlushFailed, step.partition, err)
		}
	}

	state = Done
	m.log.Debugw("checkpoint transition", "state", state.String(), "volume_id", volumeID)
	return nil
}

// Running reports whether a checkpoint is currently in progress.
func (m *Manager) Running() bool {
	return m.running.Load()
}

func (m *Manager) flushWithRetry(ctx context.Context, partition collab.FlushPartition, volumeID uint32) error {
	boff := backoff.ExponentialBackOff{
		InitialInterval:     10 * time.Millisecond,
		RandomizationFactor: 0.2,
		Multiplier:          2,
		MaxInterval:         time.Second,
	}

	var lastErr error
	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		select {
		case err := <-m.mapFlush.FlushDirtyPages(ctx, partition, volumeID):
			if err == nil {
				return nil
			}
			lastErr = err
			m.log.Warnw("checkpoint flush attempt failed",
				"partition", partition, "attempt", attempt, "err", err)
		case <-ctx.Done():
			return ctx.Err()
		}

		if attempt == m.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(boff.NextBackOff()):
		}
	}

	return lastErr
}
