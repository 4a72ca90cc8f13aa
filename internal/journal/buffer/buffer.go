// Package buffer implements the Log Buffer: the fixed-size ring of log
// groups that backs the journal, exposing reserve/roll/release over an
// injected meta-page storage collaborator.
package buffer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/cheolho-kang/poseidonos/internal/bitset"
	"github.com/cheolho-kang/poseidonos/internal/journal/collab"
	"github.com/cheolho-kang/poseidonos/internal/journal/group"
	"github.com/cheolho-kang/poseidonos/internal/journal/record"
)

// ErrNoSpace means the active group's remaining bytes (after meta-page
// alignment) cannot satisfy the reservation; the caller must Roll and
// retry.
var ErrNoSpace = errors.New("log buffer: active group has no space")

// ErrBackpressureFull means no Free group exists to activate; the caller
// must block until the releaser frees one.
var ErrBackpressureFull = errors.New("log buffer: no free group to activate")

// ErrPoisoned means a prior meta-page write failed fatally; all subsequent
// reservations fail until the journal is rebuilt from scratch.
var ErrPoisoned = errors.New("log buffer: poisoned by a prior media failure")

// ErrUnknownGroup is returned by operations referencing a group ID outside
// [0, numGroups).
var ErrUnknownGroup = errors.New("log buffer: unknown group id")

// ErrWrongState is returned when an operation's state precondition isn't
// met, e.g. releasing a group that isn't Checkpointed.
var ErrWrongState = errors.New("log buffer: group is in the wrong state")

// Snapshot is a read-only view of one group's state, used by introspection
// tools such as the journalctl CLI.
type Snapshot struct {
	ID                 uint16
	State              group.State
	Offset             int
	Size               int
	SequenceRangeStart uint64
	SequenceRangeEnd   uint64
	RecordCount        uint32
}

// LogBuffer is the on-media ring of log groups.
type LogBuffer struct {
	mu sync.Mutex

	groupSize    int
	metaPageSize int
	groups       []*group.Group
	free         *bitset.Set
	activeID     int32 // -1 means no active group

	storage  collab.IMetaStorage
	poisoned bool

	log *zap.SugaredLogger
}

// New constructs a LogBuffer of numGroups groups of groupSize bytes each,
// aligned to metaPageSize, and activates group 0. Sizes must already have
// been validated by the config package.
func New(numGroups int, groupSize int, metaPageSize int, storage collab.IMetaStorage, log *zap.SugaredLogger) *LogBuffer {
	groups := make([]*group.Group, numGroups)
	for i := range groups {
		groups[i] = group.NewGroup(uint16(i), groupSize)
	}

	b := &LogBuffer{
		groupSize:    groupSize,
		metaPageSize: metaPageSize,
		groups:       groups,
		free:         bitset.New(uint32(numGroups)),
		activeID:     -1,
		storage:      storage,
		log:          log.Named("logbuffer"),
	}

	for i := range groups {
		b.free.Insert(uint32(i))
	}

	// Activate group 0 so the buffer is immediately writable.
	b.free.Remove(0)
	groups[0].State = group.Active
	b.activeID = 0

	return b
}

// GroupByteOffset returns the absolute media byte offset of the start of
// group id.
func (b *LogBuffer) GroupByteOffset(id uint16) int64 {
	return int64(id) * int64(b.groupSize)
}

func (b *LogBuffer) groupAt(id uint16) (*group.Group, error) {
	if int(id) >= len(b.groups) {
		return nil, ErrUnknownGroup
	}
	return b.groups[id], nil
}

// Reserve atomically reserves size bytes in the Active group, accounting
// for meta-page straddling: if the reservation would cross a meta-page
// boundary, the offset first advances to the next boundary. The group's
// trailing record.FooterSize bytes are kept free for the footer Roll
// writes. Returns ErrNoSpace if the group cannot satisfy the (possibly
// padded) reservation, in which case the group is marked Full and the
// caller must Roll and retry.
func (b *LogBuffer) Reserve(size int) (groupID uint16, offset int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.poisoned {
		return 0, 0, ErrPoisoned
	}
	if b.activeID < 0 {
		return 0, 0, ErrBackpressureFull
	}

	active := b.groups[b.activeID]
	next := active.Offset
	if rem := next % b.metaPageSize; rem+size > b.metaPageSize {
		next += b.metaPageSize - rem
	}

	if next+size > active.Size-record.FooterSize {
		active.State = group.Full
		b.log.Debugw("group full", "group_id", active.ID)
		return 0, 0, ErrNoSpace
	}

	active.Offset = next + size
	return active.ID, next, nil
}

// NoteRecord records that a record with the given sequence number was
// written into groupID, updating the group's sequence range and record
// count for the eventual footer.
func (b *LogBuffer) NoteRecord(groupID uint16, seq uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	g, err := b.groupAt(groupID)
	if err != nil {
		return err
	}
	if g.RecordCount == 0 || seq < g.SequenceRangeStart {
		g.SequenceRangeStart = seq
	}
	if seq > g.SequenceRangeEnd {
		g.SequenceRangeEnd = seq
	}
	g.RecordCount++
	return nil
}

// Roll seals the Active group (writing its footer) and activates the next
// Free group. Returns ErrBackpressureFull if no Free group exists; the
// active group is still sealed in that case and no group is Active, so the
// caller must wait for a release and then call ActivateNext (not Roll).
func (b *LogBuffer) Roll(ctx context.Context) error {
	b.mu.Lock()
	if b.poisoned {
		b.mu.Unlock()
		return ErrPoisoned
	}
	if b.activeID < 0 {
		b.mu.Unlock()
		return fmt.Errorf("log buffer: no active group to roll")
	}
	active := b.groups[b.activeID]
	active.State = group.Full

	footer := record.Footer{
		SequenceRangeStart: active.SequenceRangeStart,
		SequenceRangeEnd:   active.SequenceRangeEnd,
		RecordCount:        active.RecordCount,
	}
	footerBytes := record.EncodeFooter(footer)
	footerOffset := b.GroupByteOffset(active.ID) + int64(active.Size-record.FooterSize)
	b.activeID = -1
	b.mu.Unlock()

	select {
	case err := <-b.storage.SubmitWrite(ctx, footerOffset, footerBytes):
		if err != nil {
			b.poison()
			return fmt.Errorf("log buffer: footer write failed: %w", err)
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	b.mu.Lock()
	active.State = group.Flushing
	b.log.Infow("group sealed", "group_id", active.ID, "records", active.RecordCount)
	b.mu.Unlock()

	return b.activateNext()
}

// activateNext selects the lowest-numbered Free group and makes it Active.
// Returns ErrBackpressureFull if none exists; the caller must retry after a
// Release.
func (b *LogBuffer) activateNext() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	id, ok := b.free.First()
	if !ok {
		return ErrBackpressureFull
	}
	b.free.Remove(id)

	g := b.groups[id]
	g.Reset()
	g.State = group.Active
	b.activeID = int32(id)
	b.log.Debugw("group activated", "group_id", id)
	return nil
}

// ActivateNext is the public retry hook used by callers that previously
// got ErrBackpressureFull from Roll and want to try again once a release
// has happened.
func (b *LogBuffer) ActivateNext() error {
	return b.activateNext()
}

// OnWritesDrained transitions a Full group whose pending writes have all
// completed to AwaitingCheckpoint, ready for the releaser to drive a
// checkpoint. No-op (returns ErrWrongState) if the group isn't Full or
// Flushing.
func (b *LogBuffer) OnWritesDrained(groupID uint16) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	g, err := b.groupAt(groupID)
	if err != nil {
		return err
	}
	if g.State != group.Full && g.State != group.Flushing {
		return ErrWrongState
	}
	g.State = group.AwaitingCheckpoint
	b.log.Debugw("group awaiting checkpoint", "group_id", groupID)
	return nil
}

// CompleteCheckpoint transitions groupID from AwaitingCheckpoint to
// Checkpointed and immediately releases it back to Free.
func (b *LogBuffer) CompleteCheckpoint(groupID uint16) error {
	b.mu.Lock()
	g, err := b.groupAt(groupID)
	if err != nil {
		b.mu.Unlock()
		return err
	}
	if g.State != group.AwaitingCheckpoint {
		b.mu.Unlock()
		return ErrWrongState
	}
	g.State = group.Checkpointed
	b.mu.Unlock()

	return b.Release(groupID)
}

// Release marks a Checkpointed group Free, returning it to the ring.
func (b *LogBuffer) Release(groupID uint16) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	g, err := b.groupAt(groupID)
	if err != nil {
		return err
	}
	if g.State != group.Checkpointed {
		return ErrWrongState
	}
	g.Reset()
	g.State = group.Free
	b.free.Insert(uint32(groupID))
	b.log.Debugw("group released", "group_id", groupID)
	return nil
}

// BeginWrite marks one more meta-page write in flight for groupID, for the
// releaser's drain-latch bookkeeping.
func (b *LogBuffer) BeginWrite(groupID uint16) error {
	b.mu.Lock()
	g, err := b.groupAt(groupID)
	b.mu.Unlock()
	if err != nil {
		return err
	}
	g.PendingWrites.Add(1)
	return nil
}

// EndWrite marks one in-flight meta-page write for groupID as complete. If
// this was the last pending write and the group is no longer accepting new
// reservations (Full or Flushing), the group advances to
// AwaitingCheckpoint.
func (b *LogBuffer) EndWrite(groupID uint16) error {
	b.mu.Lock()
	g, err := b.groupAt(groupID)
	if err != nil {
		b.mu.Unlock()
		return err
	}
	b.mu.Unlock()

	if remaining := g.PendingWrites.Add(-1); remaining == 0 {
		if err := b.OnWritesDrained(groupID); err != nil && !errors.Is(err, ErrWrongState) {
			return err
		}
	}
	return nil
}

func (b *LogBuffer) poison() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.poisoned = true
	b.log.Errorw("log buffer poisoned")
}

// Poison marks the buffer poisoned after a fatal meta I/O failure observed
// by a caller outside this package (e.g. the log writer). All subsequent
// Reserve calls fail with ErrPoisoned.
func (b *LogBuffer) Poison() {
	b.poison()
}

// Poisoned reports whether a prior media failure has poisoned the buffer.
func (b *LogBuffer) Poisoned() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.poisoned
}

// NumGroups returns the number of groups in the ring.
func (b *LogBuffer) NumGroups() int { return len(b.groups) }

// GroupSize returns the fixed size of every group, in bytes.
func (b *LogBuffer) GroupSize() int { return b.groupSize }

// Snapshot returns a read-only view of every group's current state.
func (b *LogBuffer) Snapshot() []Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Snapshot, len(b.groups))
	for i, g := range b.groups {
		out[i] = Snapshot{
			ID:                 g.ID,
			State:              g.State,
			Offset:             g.Offset,
			Size:               g.Size,
			SequenceRangeStart: g.SequenceRangeStart,
			SequenceRangeEnd:   g.SequenceRangeEnd,
			RecordCount:        g.RecordCount,
		}
	}
	return out
}

// ReadGroup synchronously reads the full byte range of groupID from the
// underlying storage collaborator; used by the replay engine's scan phase,
// which runs single-threaded at boot.
func (b *LogBuffer) ReadGroup(groupID uint16) ([]byte, error) {
	if int(groupID) >= len(b.groups) {
		return nil, ErrUnknownGroup
	}
	return b.storage.ReadAt(b.GroupByteOffset(groupID), b.groupSize)
}
