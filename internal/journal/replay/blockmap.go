package replay

import (
	"github.com/cheolho-kang/poseidonos/internal/journal/collab"
	"github.com/cheolho-kang/poseidonos/internal/journal/record"
)

// BlockMapReplayer rebuilds the final block-to-VSA mapping from
// BlockWriteDone records and drives the matching segment-validity deltas,
// skipping deltas already reflected in a persisted checkpoint per the
// journal's inclusive segment-context cutoff: a record is skipped iff its
// sequence number is <= the stored context version for the block-map
// partition. The block map itself is always rebuilt regardless of the
// cutoff, since the map partition's own on-media state is what replay is
// reconstructing.
type BlockMapReplayer struct {
	blockMap        map[BlockKey]record.VSA
	segCtx          collab.ISegmentCtx
	blocksPerStripe uint32
}

// NewBlockMapReplayer constructs a BlockMapReplayer that drives segment
// validity counts through segCtx.
func NewBlockMapReplayer(segCtx collab.ISegmentCtx, blocksPerStripe uint32) *BlockMapReplayer {
	return &BlockMapReplayer{
		blockMap:        make(map[BlockKey]record.VSA),
		segCtx:          segCtx,
		blocksPerStripe: blocksPerStripe,
	}
}

// Apply folds one sequence-ordered BlockWriteDone record into the map.
// storedVersion is the allocator context's GetStoredContextVersion for the
// block-map partition; records at or below it have already had their
// segment deltas applied to the persisted context and must not be reapplied.
func (r *BlockMapReplayer) Apply(rec record.Record, storedVersion uint64) {
	if !rec.Type().IsBlockWrite() {
		return
	}
	b := rec.Block
	skipDelta := rec.Sequence() <= storedVersion

	for i := uint32(0); i < b.NumBlocks; i++ {
		key := BlockKey{VolumeID: b.VolumeID, RBA: b.StartRBA + uint64(i)}
		newVSA := record.VSA{StripeID: b.VirtualBlkAddr.StripeID, Offset: b.VirtualBlkAddr.Offset + i}

		if !skipDelta {
			if old, existed := r.blockMap[key]; existed && !old.IsUnmap() {
				r.segCtx.InvalidateBlks(old, 1, false)
			}
			r.segCtx.ValidateBlks(newVSA, 1)
		}

		r.blockMap[key] = newVSA
	}
}

// Result returns the final block map.
func (r *BlockMapReplayer) Result() map[BlockKey]record.VSA {
	return r.blockMap
}
