// Package writer implements the Log Writer: it serializes typed log
// requests into reservations obtained from the Log Buffer, stamps them
// with a globally increasing sequence number, and submits the meta-page
// write through the storage collaborator.
package writer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/cheolho-kang/poseidonos/internal/journal/buffer"
	"github.com/cheolho-kang/poseidonos/internal/journal/collab"
	"github.com/cheolho-kang/poseidonos/internal/journal/record"
)

// ErrMediaFailure wraps a fatal meta-page I/O error; once returned, the
// owning LogBuffer is poisoned and all subsequent writes fail.
var ErrMediaFailure = errors.New("log writer: media failure")

// backpressureRetryInterval is how long Write parks a caller between
// attempts to activate a freed group while the buffer is under
// backpressure.
const backpressureRetryInterval = 5 * time.Millisecond

// LogWriter serializes records into the log buffer and submits their
// meta-page I/O.
type LogWriter struct {
	buf     *buffer.LogBuffer
	storage collab.IMetaStorage
	seq     atomic.Uint64
	log     *zap.SugaredLogger
}

// New constructs a LogWriter over buf and storage. seed is the last
// sequence number already in use (0 on a fresh journal; the replay
// engine's highest observed sequence number after a restart); the first
// record written is assigned seed+1.
func New(buf *buffer.LogBuffer, storage collab.IMetaStorage, seed uint64, log *zap.SugaredLogger) *LogWriter {
	w := &LogWriter{
		buf:     buf,
		storage: storage,
		log:     log.Named("logwriter"),
	}
	w.seq.Store(seed)
	return w
}

// Result describes where and under what sequence number a record landed.
type Result struct {
	GroupID        uint16
	Offset         int
	SequenceNumber uint64
}

// Write reserves space for rec, stamps it with the next sequence number,
// serializes it, and submits its meta-page write. It blocks (parking the
// caller) across Backpressure until space is available or ctx is
// cancelled. A media failure poisons the underlying buffer and is returned
// wrapped in ErrMediaFailure.
func (w *LogWriter) Write(ctx context.Context, rec record.Record) (Result, error) {
	payloadSize, err := record.PayloadSize(rec.Type())
	if err != nil {
		return Result{}, err
	}
	size := record.HeaderSize + payloadSize

	groupID, offset, err := w.reserveWithBackpressure(ctx, size)
	if err != nil {
		return Result{}, err
	}

	seq := w.seq.Add(1)
	rec.Header.SequenceNumber = seq
	rec.Header.LogGroupID = groupID

	buf, err := record.Encode(rec, size)
	if err != nil {
		return Result{}, err
	}

	if err := w.buf.NoteRecord(groupID, seq); err != nil {
		return Result{}, err
	}
	if err := w.buf.BeginWrite(groupID); err != nil {
		return Result{}, err
	}

	absOffset := w.buf.GroupByteOffset(groupID) + int64(offset)

	select {
	case ioErr := <-w.storage.SubmitWrite(ctx, absOffset, buf):
		_ = w.buf.EndWrite(groupID)
		if ioErr != nil {
			w.buf.Poison()
			w.log.Errorw("meta-page write failed, journal poisoned", "group_id", groupID, "err", ioErr)
			return Result{}, fmt.Errorf("%w: %v", ErrMediaFailure, ioErr)
		}
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	return Result{GroupID: groupID, Offset: offset, SequenceNumber: seq}, nil
}

// reserveWithBackpressure retries Reserve, rolling and activating groups as
// needed, until it succeeds or ctx is cancelled.
func (w *LogWriter) reserveWithBackpressure(ctx context.Context, size int) (uint16, int, error) {
	for {
		groupID, offset, err := w.buf.Reserve(size)
		if err == nil {
			return groupID, offset, nil
		}

		switch {
		case errors.Is(err, buffer.ErrNoSpace):
			if rollErr := w.buf.Roll(ctx); rollErr != nil {
				if !errors.Is(rollErr, buffer.ErrBackpressureFull) {
					return 0, 0, rollErr
				}
				w.log.Warnw("backpressure: no free group to roll into")
				if err := w.parkForBackpressure(ctx); err != nil {
					return 0, 0, err
				}
			}
		case errors.Is(err, buffer.ErrBackpressureFull):
			w.log.Warnw("backpressure: buffer has no active group")
			if err := w.parkForBackpressure(ctx); err != nil {
				return 0, 0, err
			}
		default:
			return 0, 0, err
		}
	}
}

func (w *LogWriter) parkForBackpressure(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(backpressureRetryInterval):
	}
	if err := w.buf.ActivateNext(); err != nil && !errors.Is(err, buffer.ErrBackpressureFull) {
		return err
	}
	return nil
}

// CurrentSequence returns the most recently assigned sequence number.
func (w *LogWriter) CurrentSequence() uint64 {
	return w.seq.Load()
}
