// Package collab defines the narrow contracts the journal consumes from its
// external collaborators: the allocator's context replayer, its
// write-buffer stripe allocator, the map-flush subsystem, the segment
// context, and the underlying meta-page storage. Production code depends
// only on these interfaces; package collab/fake supplies in-memory fakes
// exercised by every other package's tests, mirroring the mock-every-
// collaborator style of the source test suite.
package collab

import (
	"context"

	"github.com/cheolho-kang/poseidonos/internal/journal/record"
)

// ActiveStripeTailArrayLen bounds the number of write-buffer indices the
// active-stripe-tail vector covers.
const ActiveStripeTailArrayLen = 1024

// IContextReplayer is the allocator-context side of replay: it hands back
// the starting point for the active-stripe-tail shadow state and lets the
// replayer reset entries that turned out to be saturated.
type IContextReplayer interface {
	// GetAllActiveStripeTail returns a vector of length
	// ActiveStripeTailArrayLen, every slot initialized to record.UnmapVSA.
	GetAllActiveStripeTail() []record.VSA
	// ResetActiveStripeTail marks the write-buffer index's stripe as fully
	// flushed (no tail to restore).
	ResetActiveStripeTail(wbIndex uint32)
	// GetStoredContextVersion returns the sequence-number cutoff up to and
	// including which segment-validity deltas are already reflected in the
	// persisted allocator context for the given partition.
	GetStoredContextVersion(partition uint32) uint64
}

// IWBStripeAllocator is the write-buffer side of replay: it reconstructs an
// in-flight stripe's reverse map and restores its active tail pointer.
type IWBStripeAllocator interface {
	// ReconstructActiveStripe attempts to rebuild the reverse map for the
	// write-buffer stripe wbLsid of volumeID so writes can resume at
	// tailVsa. Returns a negative value on failure.
	ReconstructActiveStripe(volumeID uint32, wbLsid uint64, tailVsa record.VSA) int
	// SetActiveStripeTail installs the restored tail for wbIndex.
	SetActiveStripeTail(wbIndex uint32, tail record.VSA, wbLsid uint64)
}

// FlushPartition names one of the three metadata partitions the checkpoint
// manager flushes in order.
type FlushPartition int

const (
	PartitionAllocatorContext FlushPartition = iota
	PartitionBlockMap
	PartitionStripeMap
)

func (p FlushPartition) String() string {
	switch p {
	case PartitionAllocatorContext:
		return "AllocatorContext"
	case PartitionBlockMap:
		return "BlockMap"
	case PartitionStripeMap:
		return "StripeMap"
	default:
		return "Unknown"
	}
}

// IMapFlush flushes dirty metadata pages for one partition of one volume,
// reporting completion asynchronously on the returned channel.
type IMapFlush interface {
	FlushDirtyPages(ctx context.Context, partition FlushPartition, volumeID uint32) <-chan error
}

// ISegmentCtx tracks per-segment block validity counts.
type ISegmentCtx interface {
	ValidateBlks(vsa record.VSA, numBlks uint32)
	InvalidateBlks(vsa record.VSA, numBlks uint32, force bool)
}

// IMetaStorage is the aligned async page I/O collaborator the log buffer
// and writer submit meta-page writes/reads through.
type IMetaStorage interface {
	// SubmitWrite asynchronously writes buf (which must be meta-page
	// aligned) at the given byte offset, signaling completion on the
	// returned channel.
	SubmitWrite(ctx context.Context, offset int64, buf []byte) <-chan error
	// ReadAt synchronously reads size bytes at offset; used by the replay
	// engine's scan phase, which runs single-threaded at boot.
	ReadAt(offset int64, size int) ([]byte, error)
}
