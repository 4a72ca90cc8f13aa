package replay

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cheolho-kang/poseidonos/internal/journal/collab/fake"
	"github.com/cheolho-kang/poseidonos/internal/journal/record"
)

func blockWriteSeq(seq uint64, volumeID uint32, rba uint64, vsid uint64, offset, numBlocks uint32) record.Record {
	r := blockWrite(volumeID, 0, 1, vsid, offset, numBlocks)
	r.Header.SequenceNumber = seq
	r.Block.StartRBA = rba
	return r
}

func Test_BlockMapReplayer_RebuildsMapRegardlessOfCutoff(t *testing.T) {
	seg := fake.NewSegmentCtx()
	rep := NewBlockMapReplayer(seg, 8)

	rep.Apply(blockWriteSeq(1, 1, 0, 10, 0, 4), 100) // below stored version: delta skipped
	rep.Apply(blockWriteSeq(200, 1, 0, 20, 0, 4), 100) // above: delta applied

	result := rep.Result()
	require.Equal(t, record.VSA{StripeID: 20, Offset: 0}, result[BlockKey{VolumeID: 1, RBA: 0}])
}

// Scenario 3: re-validating a record already reflected in the flushed
// allocator context must not double-count. With the inclusive cutoff
// convention, a record whose sequence number is <= stored_context_version
// contributes no delta at all.
func Test_BlockMapReplayer_InclusiveCutoffAvoidsDoubleCounting(t *testing.T) {
	seg := fake.NewSegmentCtx()
	rep := NewBlockMapReplayer(seg, 8)

	const storedVersion = 50
	const numStripes = 4
	const blocksPerStripe = 8

	var seq uint64
	for s := uint64(0); s < numStripes; s++ {
		seq++
		rep.Apply(blockWriteSeq(seq, 1, s*blocksPerStripe, s, 0, blocksPerStripe), storedVersion)
	}

	// Every record here has sequence <= storedVersion (1..4 <= 50), so no
	// segment deltas should have been applied at all: the flushed context
	// already reflects them.
	require.Equal(t, uint64(0), seg.TotalValidated)
	require.Equal(t, uint64(0), seg.TotalInvalidated)
}

func Test_BlockMapReplayer_InvalidatesOverwrittenBlock(t *testing.T) {
	seg := fake.NewSegmentCtx()
	rep := NewBlockMapReplayer(seg, 8)

	rep.Apply(blockWriteSeq(100, 1, 0, 1, 0, 1), 0)
	rep.Apply(blockWriteSeq(101, 1, 0, 2, 0, 1), 0)

	require.Equal(t, uint64(2), seg.TotalValidated)
	require.Equal(t, uint64(1), seg.TotalInvalidated)
}
