// Package journal wires the log buffer, writer, checkpoint manager,
// releaser, and replay engine into the array's single write-ahead journal.
package journal

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cheolho-kang/poseidonos/internal/journal/buffer"
	"github.com/cheolho-kang/poseidonos/internal/journal/checkpoint"
	"github.com/cheolho-kang/poseidonos/internal/journal/collab"
	"github.com/cheolho-kang/poseidonos/internal/journal/config"
	"github.com/cheolho-kang/poseidonos/internal/journal/releaser"
	"github.com/cheolho-kang/poseidonos/internal/journal/replay"
	"github.com/cheolho-kang/poseidonos/internal/journal/writer"
)

// Collaborators bundles every external dependency the journal needs at
// construction time; Init wires them into the buffer, writer, checkpoint
// manager, and replay engine.
type Collaborators struct {
	Storage         collab.IMetaStorage
	ContextReplayer collab.IContextReplayer
	WBAllocator     collab.IWBStripeAllocator
	MapFlush        collab.IMapFlush
	SegmentCtx      collab.ISegmentCtx
	BlocksPerStripe uint32
}

// Manager is the journal's top-level lifecycle object: one per volume. It
// owns the foreground write path (LogBuffer + LogWriter) and the background
// checkpoint/release loop. Run executes only the release loop under an
// errgroup; the foreground write path is not part of that group, so a
// write-path failure does not stop the loop.
type Manager struct {
	VolumeID uint32

	Buffer   *buffer.LogBuffer
	Writer   *writer.LogWriter
	Releaser *releaser.Releaser

	cfg *config.Config
	log *zap.SugaredLogger
}

// Init constructs a Manager for volumeID, replaying its journal (if
// JournalEnabled) before the volume is allowed to accept writes, per the
// journal's crash-recovery contract: no host I/O may be served until replay
// has reconstructed the block map, stripe map, and active write-buffer
// state.
func Init(
	ctx context.Context,
	volumeID uint32,
	cfg *config.Config,
	collabs Collaborators,
	log *zap.SugaredLogger,
) (*Manager, replay.Result, error) {
	log = log.Named("journal").With(zap.Uint32("volume_id", volumeID))

	buf := buffer.New(cfg.NumLogGroups, cfg.GroupSize(), int(cfg.MetaPageSize), collabs.Storage, log)

	var result replay.Result
	if cfg.JournalEnabled {
		var err error
		engine := replay.NewEngine(buf, collabs.ContextReplayer, collabs.WBAllocator, collabs.SegmentCtx, collabs.BlocksPerStripe)
		result, err = engine.Replay()
		if err != nil {
			return nil, replay.Result{}, fmt.Errorf("journal: replay failed for volume %d: %w", volumeID, err)
		}
		if result.Diagnostics != nil {
			log.Warnw("replay completed with diagnostics", "err", result.Diagnostics)
		}
		log.Infow("replay complete",
			"blocks", len(result.BlockMap), "stripes", len(result.StripeMap), "pending", len(result.Pending))
	}

	w := writer.New(buf, collabs.Storage, result.MaxSequence, log)
	ckpt := checkpoint.New(collabs.MapFlush, cfg.CheckpointMaxRetries, log)
	rel := releaser.New(buf, ckpt, log)

	return &Manager{
		VolumeID: volumeID,
		Buffer:   buf,
		Writer:   w,
		Releaser: rel,
		cfg:      cfg,
		log:      log,
	}, result, nil
}

// Run starts the background checkpoint/release loop and blocks until ctx is
// cancelled or the loop fails. It does nothing if the checkpoint policy is
// manual: a manual-policy deployment is expected to call Releaser.Release
// explicitly, typically from an operator tool such as journalctl.
func (m *Manager) Run(ctx context.Context) error {
	if m.cfg.CheckpointPolicy == config.PolicyManual {
		<-ctx.Done()
		return ctx.Err()
	}

	wg, ctx := errgroup.WithContext(ctx)
	wg.Go(func() error {
		return m.Releaser.Run(ctx, m.VolumeID)
	})
	return wg.Wait()
}
