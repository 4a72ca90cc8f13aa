package writer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cheolho-kang/poseidonos/internal/journal/buffer"
	"github.com/cheolho-kang/poseidonos/internal/journal/collab/fake"
	"github.com/cheolho-kang/poseidonos/internal/journal/record"
)

const (
	groupSize    = 1024
	metaPageSize = 256
	numGroups    = 4
)

func newTestWriter(t *testing.T) (*LogWriter, *buffer.LogBuffer, *fake.MetaStorage) {
	t.Helper()
	storage := fake.NewMetaStorage(groupSize * numGroups)
	log := zap.NewNop().Sugar()
	buf := buffer.New(numGroups, groupSize, metaPageSize, storage, log)
	return New(buf, storage, 0, log), buf, storage
}

func blockWriteRecord(seq uint64) record.Record {
	return record.Record{
		Header: record.Header{Type: uint16(record.BlockWriteDone), SequenceNumber: seq},
		Block: &record.BlockWriteDoneLog{
			VolumeID:       1,
			StartRBA:       0,
			NumBlocks:      1,
			VirtualBlkAddr: record.VSA{StripeID: 1, Offset: 0},
			WBLsid:         1,
		},
	}
}

func Test_Write_AssignsIncreasingSequenceNumbers(t *testing.T) {
	w, _, _ := newTestWriter(t)

	r1, err := w.Write(context.Background(), blockWriteRecord(0))
	require.NoError(t, err)
	r2, err := w.Write(context.Background(), blockWriteRecord(0))
	require.NoError(t, err)

	require.Equal(t, uint64(1), r1.SequenceNumber)
	require.Equal(t, uint64(2), r2.SequenceNumber)
}

func Test_Write_SeedsSequenceAfterRestart(t *testing.T) {
	storage := fake.NewMetaStorage(groupSize * numGroups)
	log := zap.NewNop().Sugar()
	buf := buffer.New(numGroups, groupSize, metaPageSize, storage, log)
	w := New(buf, storage, 100, log)

	r, err := w.Write(context.Background(), blockWriteRecord(0))
	require.NoError(t, err)
	require.Equal(t, uint64(101), r.SequenceNumber)
}

func Test_Write_RollsWhenGroupFull(t *testing.T) {
	w, buf, _ := newTestWriter(t)

	// Each block-write record needs less than a meta page; fill past one
	// group's capacity to force a roll.
	for i := 0; i < 20; i++ {
		_, err := w.Write(context.Background(), blockWriteRecord(0))
		require.NoError(t, err)
	}

	snaps := buf.Snapshot()
	// Group 0 must have rolled out of Active by now.
	require.NotEqual(t, "Active", snaps[0].State.String())
}

func Test_Write_MediaFailurePoisonsBuffer(t *testing.T) {
	storage := fake.NewMetaStorage(groupSize * numGroups)
	storage.FailNextWrites = 1
	storage.WriteErr = errors.New("disk error")
	log := zap.NewNop().Sugar()
	buf := buffer.New(numGroups, groupSize, metaPageSize, storage, log)
	w := New(buf, storage, 0, log)

	_, err := w.Write(context.Background(), blockWriteRecord(0))
	require.ErrorIs(t, err, ErrMediaFailure)
	require.True(t, buf.Poisoned())
}

func Test_CurrentSequence_TracksLastAssigned(t *testing.T) {
	w, _, _ := newTestWriter(t)
	require.Equal(t, uint64(0), w.CurrentSequence())

	_, err := w.Write(context.Background(), blockWriteRecord(0))
	require.NoError(t, err)
	require.Equal(t, uint64(1), w.CurrentSequence())
}
