// Package releaser implements the Log Group Releaser: for each group that
// has drained its pending writes, it drives a checkpoint and then releases
// the group back to the Log Buffer.
package releaser

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/cheolho-kang/poseidonos/internal/journal/buffer"
	"github.com/cheolho-kang/poseidonos/internal/journal/checkpoint"
	"github.com/cheolho-kang/poseidonos/internal/journal/group"
)

// pollInterval is how often the background loop checks for groups that have
// become AwaitingCheckpoint.
const pollInterval = 5 * time.Millisecond

// Releaser drives checkpoints for groups in AwaitingCheckpoint and releases
// them once checkpointed.
type Releaser struct {
	buf  *buffer.LogBuffer
	ckpt *checkpoint.Manager
	log  *zap.SugaredLogger
}

// New constructs a Releaser over buf, driving checkpoints through ckpt.
func New(buf *buffer.LogBuffer, ckpt *checkpoint.Manager, log *zap.SugaredLogger) *Releaser {
	return &Releaser{buf: buf, ckpt: ckpt, log: log.Named("releaser")}
}

// Run polls the buffer for AwaitingCheckpoint groups and releases them one
// at a time (the Checkpoint Manager itself enforces at-most-one-running),
// until ctx is cancelled. Intended to run as a background goroutine under
// an errgroup alongside the foreground write path.
func (r *Releaser) Run(ctx context.Context, volumeID uint32) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, snap := range r.buf.Snapshot() {
				if snap.State != group.AwaitingCheckpoint {
					continue
				}
				if err := r.checkpointAndFree(ctx, snap.ID, volumeID); err != nil {
					if errors.Is(err, checkpoint.ErrAlreadyRunning) {
						// Another group is mid-checkpoint; try again next tick.
						continue
					}
					return err
				}
			}
		}
	}
}

// Release drives a checkpoint for groupID and frees it, blocking until its
// pending writes have drained. Intended for callers (e.g. a forced Roll on
// the foreground path) that need to synchronously wait for one specific
// group to clear.
func (r *Releaser) Release(ctx context.Context, groupID uint16, volumeID uint32) error {
	if err := r.waitForDrain(ctx, groupID); err != nil {
		return err
	}
	return r.checkpointAndFree(ctx, groupID, volumeID)
}

// ForceRelease is a test-only hook that skips waiting on the real pending-
// write drain latch (assuming the caller has already arranged for it) and
// immediately drives the checkpoint. Production code should use Release or
// Run.
func (r *Releaser) ForceRelease(ctx context.Context, groupID uint16, volumeID uint32) error {
	if err := r.buf.OnWritesDrained(groupID); err != nil && !errors.Is(err, buffer.ErrWrongState) {
		return err
	}
	return r.checkpointAndFree(ctx, groupID, volumeID)
}

func (r *Releaser) checkpointAndFree(ctx context.Context, groupID uint16, volumeID uint32) error {
	r.log.Debugw("driving checkpoint", "group_id", groupID, "volume_id", volumeID)

	if err := r.ckpt.Run(ctx, volumeID); err != nil {
		return err
	}
	if err := r.buf.CompleteCheckpoint(groupID); err != nil {
		return err
	}

	r.log.Infow("group released after checkpoint", "group_id", groupID)
	return nil
}

func (r *Releaser) waitForDrain(ctx context.Context, groupID uint16) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		for _, snap := range r.buf.Snapshot() {
			if snap.ID == groupID && snap.State == group.AwaitingCheckpoint {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
