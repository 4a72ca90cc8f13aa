package replay

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cheolho-kang/poseidonos/internal/journal/record"
)

func volumeDeleted(seq uint64, volumeID uint32, cutoff uint64) Tuple {
	return Tuple{Rec: record.Record{
		Header: record.Header{Type: uint16(record.VolumeDeleted), SequenceNumber: seq},
		Volume: &record.VolumeDeletedLog{VolumeID: volumeID, SequenceCutoff: cutoff},
	}}
}

func Test_VolumeDeletionReplayer_DropsAtOrBelowCutoff(t *testing.T) {
	rep := NewVolumeDeletionReplayer()
	rep.CollectCutoffs([]Tuple{volumeDeleted(10, 1, 5)})

	require.True(t, rep.ShouldDrop(blockWriteSeq(5, 1, 0, 1, 0, 1)))
	require.True(t, rep.ShouldDrop(blockWriteSeq(1, 1, 0, 1, 0, 1)))
	require.False(t, rep.ShouldDrop(blockWriteSeq(6, 1, 0, 1, 0, 1)))
}

func Test_VolumeDeletionReplayer_UnaffectedVolumePasses(t *testing.T) {
	rep := NewVolumeDeletionReplayer()
	rep.CollectCutoffs([]Tuple{volumeDeleted(10, 1, 5)})

	require.False(t, rep.ShouldDrop(blockWriteSeq(1, 2, 0, 1, 0, 1)))
}

func Test_VolumeDeletionReplayer_TakesHighestCutoff(t *testing.T) {
	rep := NewVolumeDeletionReplayer()
	rep.CollectCutoffs([]Tuple{volumeDeleted(10, 1, 5), volumeDeleted(20, 1, 15)})

	require.True(t, rep.ShouldDrop(blockWriteSeq(12, 1, 0, 1, 0, 1)))
	require.False(t, rep.ShouldDrop(blockWriteSeq(16, 1, 0, 1, 0, 1)))
}

func Test_VolumeDeletionReplayer_StripeMapRecordsNeverDropped(t *testing.T) {
	rep := NewVolumeDeletionReplayer()
	rep.CollectCutoffs([]Tuple{volumeDeleted(10, 1, 500)})

	require.False(t, rep.ShouldDrop(stripeFlush(1, record.VSA{StripeID: 1})))
}
