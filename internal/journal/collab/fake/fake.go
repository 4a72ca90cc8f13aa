// Package fake supplies in-memory collaborator implementations used across
// the journal's test suites, mirroring the mock-every-collaborator style of
// the original test suite but built on plain Go values instead of a mocking
// framework.
package fake

import (
	"context"
	"sync"

	"github.com/cheolho-kang/poseidonos/internal/journal/collab"
	"github.com/cheolho-kang/poseidonos/internal/journal/record"
)

// MetaStorage is an in-memory stand-in for the array's aligned meta-page
// storage. Writes land in a growable byte slice; reads are synchronous.
type MetaStorage struct {
	mu   sync.Mutex
	data []byte

	// FailNextWrites, if > 0, makes that many subsequent SubmitWrite calls
	// fail with WriteErr before succeeding again; used to simulate
	// MediaFailure.
	FailNextWrites int
	WriteErr       error
}

// NewMetaStorage returns a MetaStorage backed by size zeroed bytes.
func NewMetaStorage(size int) *MetaStorage {
	return &MetaStorage{data: make([]byte, size)}
}

func (m *MetaStorage) SubmitWrite(ctx context.Context, offset int64, buf []byte) <-chan error {
	ch := make(chan error, 1)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailNextWrites > 0 {
		m.FailNextWrites--
		ch <- m.WriteErr
		close(ch)
		return ch
	}

	end := int(offset) + len(buf)
	if end > len(m.data) {
		grown := make([]byte, end)
		copy(grown, m.data)
		m.data = grown
	}
	copy(m.data[offset:end], buf)
	ch <- nil
	close(ch)
	return ch
}

func (m *MetaStorage) ReadAt(offset int64, size int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	end := int(offset) + size
	if end > len(m.data) {
		end = len(m.data)
	}
	out := make([]byte, size)
	if int(offset) < len(m.data) {
		copy(out, m.data[offset:end])
	}
	return out, nil
}

// Corrupt overwrites n bytes starting at offset with garbage, used by tests
// that simulate a torn tail.
func (m *MetaStorage) Corrupt(offset int64, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n && int(offset)+i < len(m.data); i++ {
		m.data[int(offset)+i] = 0xFF
	}
}

// ContextReplayer is a configurable fake of collab.IContextReplayer.
type ContextReplayer struct {
	mu               sync.Mutex
	StoredVersions   map[uint32]uint64
	ResetCalls       []uint32
	initialTailsOnce sync.Once
}

// NewContextReplayer returns a ContextReplayer whose stored context version
// defaults to 0 for every partition (i.e. nothing skipped) unless
// overridden via StoredVersions.
func NewContextReplayer() *ContextReplayer {
	return &ContextReplayer{StoredVersions: make(map[uint32]uint64)}
}

func (c *ContextReplayer) GetAllActiveStripeTail() []record.VSA {
	tails := make([]record.VSA, collab.ActiveStripeTailArrayLen)
	for i := range tails {
		tails[i] = record.UnmapVSA
	}
	return tails
}

func (c *ContextReplayer) ResetActiveStripeTail(wbIndex uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ResetCalls = append(c.ResetCalls, wbIndex)
}

func (c *ContextReplayer) GetStoredContextVersion(partition uint32) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.StoredVersions[partition]
}

// ReconstructCall records one ReconstructActiveStripe invocation for test
// assertions.
type ReconstructCall struct {
	VolumeID uint32
	WBLsid   uint64
	TailVsa  record.VSA
}

// SetTailCall records one SetActiveStripeTail invocation for test
// assertions.
type SetTailCall struct {
	WBIndex uint32
	Tail    record.VSA
	WBLsid  uint64
}

// WBStripeAllocator is a configurable fake of collab.IWBStripeAllocator.
type WBStripeAllocator struct {
	mu sync.Mutex

	// FailReconstruct, keyed by wbLsid, makes ReconstructActiveStripe
	// return the given negative code for that stripe.
	FailReconstruct map[uint64]int

	ReconstructCalls []ReconstructCall
	SetTailCalls     []SetTailCall
}

func NewWBStripeAllocator() *WBStripeAllocator {
	return &WBStripeAllocator{FailReconstruct: make(map[uint64]int)}
}

func (w *WBStripeAllocator) ReconstructActiveStripe(volumeID uint32, wbLsid uint64, tailVsa record.VSA) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ReconstructCalls = append(w.ReconstructCalls, ReconstructCall{volumeID, wbLsid, tailVsa})
	if code, fail := w.FailReconstruct[wbLsid]; fail {
		return code
	}
	return 0
}

func (w *WBStripeAllocator) SetActiveStripeTail(wbIndex uint32, tail record.VSA, wbLsid uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.SetTailCalls = append(w.SetTailCalls, SetTailCall{wbIndex, tail, wbLsid})
}

// MapFlush is a configurable fake of collab.IMapFlush.
type MapFlush struct {
	mu sync.Mutex

	// FailPartitions, when set, makes FlushDirtyPages for that partition
	// return the given error instead of succeeding.
	FailPartitions map[collab.FlushPartition]error

	Calls []collab.FlushPartition
}

func NewMapFlush() *MapFlush {
	return &MapFlush{FailPartitions: make(map[collab.FlushPartition]error)}
}

func (f *MapFlush) FlushDirtyPages(ctx context.Context, partition collab.FlushPartition, volumeID uint32) <-chan error {
	ch := make(chan error, 1)

	f.mu.Lock()
	f.Calls = append(f.Calls, partition)
	err := f.FailPartitions[partition]
	f.mu.Unlock()

	ch <- err
	close(ch)
	return ch
}

// SegmentCtx is a counting fake of collab.ISegmentCtx, used to pin the
// observable total validity count across replay (scenario 3 in the
// testable-properties section).
type SegmentCtx struct {
	mu sync.Mutex

	TotalValidated   uint64
	TotalInvalidated uint64
}

func NewSegmentCtx() *SegmentCtx {
	return &SegmentCtx{}
}

func (s *SegmentCtx) ValidateBlks(vsa record.VSA, numBlks uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TotalValidated += uint64(numBlks)
}

func (s *SegmentCtx) InvalidateBlks(vsa record.VSA, numBlks uint32, force bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TotalInvalidated += uint64(numBlks)
}
