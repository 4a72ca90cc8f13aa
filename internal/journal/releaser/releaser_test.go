package releaser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cheolho-kang/poseidonos/internal/journal/buffer"
	"github.com/cheolho-kang/poseidonos/internal/journal/checkpoint"
	"github.com/cheolho-kang/poseidonos/internal/journal/collab/fake"
	"github.com/cheolho-kang/poseidonos/internal/journal/group"
)

const (
	groupSize    = 1024
	metaPageSize = 256
	numGroups    = 4
)

func newTestReleaser(t *testing.T) (*Releaser, *buffer.LogBuffer) {
	t.Helper()
	storage := fake.NewMetaStorage(groupSize * numGroups)
	log := zap.NewNop().Sugar()
	buf := buffer.New(numGroups, groupSize, metaPageSize, storage, log)
	mf := fake.NewMapFlush()
	ckpt := checkpoint.New(mf, 2, log)
	return New(buf, ckpt, log), buf
}

func Test_ForceRelease_ChecksAndFrees(t *testing.T) {
	r, buf := newTestReleaser(t)

	_, _, err := buf.Reserve(8)
	require.NoError(t, err)
	require.NoError(t, buf.NoteRecord(0, 1))
	require.NoError(t, buf.Roll(context.Background()))

	require.NoError(t, r.ForceRelease(context.Background(), 0, 1))
	require.Equal(t, group.Free, buf.Snapshot()[0].State)
}

func Test_Run_DrivesAwaitingCheckpointGroups(t *testing.T) {
	r, buf := newTestReleaser(t)

	_, _, err := buf.Reserve(8)
	require.NoError(t, err)
	require.NoError(t, buf.NoteRecord(0, 1))
	require.NoError(t, buf.BeginWrite(0))
	require.NoError(t, buf.Roll(context.Background()))
	require.NoError(t, buf.EndWrite(0))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, 1) }()

	require.Eventually(t, func() bool {
		return buf.Snapshot()[0].State == group.Free
	}, 150*time.Millisecond, 5*time.Millisecond)

	cancel()
	<-done
}
