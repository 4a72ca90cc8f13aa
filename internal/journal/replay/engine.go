package replay

import (
	"sort"

	"github.com/cheolho-kang/poseidonos/internal/journal/buffer"
	"github.com/cheolho-kang/poseidonos/internal/journal/collab"
	"github.com/cheolho-kang/poseidonos/internal/journal/record"
)

// Engine drives the full multi-phase crash-replay algorithm over one log
// buffer: scan every group, sort the surviving records into sequence order,
// drop records superseded by a volume deletion, and fold the remainder into
// the block map, stripe map, and active write-buffer stripe state in a
// single ordered pass.
type Engine struct {
	buf             *buffer.LogBuffer
	ctxReplayer     collab.IContextReplayer
	wbAllocator     collab.IWBStripeAllocator
	segCtx          collab.ISegmentCtx
	blocksPerStripe uint32
}

// NewEngine constructs a replay Engine over buf, driving reconstruction
// through the given collaborators. blocksPerStripe is the write-buffer
// stripe capacity used to tell a saturated stripe from one still accepting
// writes.
func NewEngine(
	buf *buffer.LogBuffer,
	ctxReplayer collab.IContextReplayer,
	wbAllocator collab.IWBStripeAllocator,
	segCtx collab.ISegmentCtx,
	blocksPerStripe uint32,
) *Engine {
	return &Engine{
		buf:             buf,
		ctxReplayer:     ctxReplayer,
		wbAllocator:     wbAllocator,
		segCtx:          segCtx,
		blocksPerStripe: blocksPerStripe,
	}
}

// Replay runs the full algorithm and returns the reconstructed volatile
// metadata. A non-nil Result.Diagnostics reports non-fatal scan anomalies
// (torn groups); Replay itself only returns an error if a collaborator call
// fails outright.
func (e *Engine) Replay() (Result, error) {
	tuples, scanErr := Scan(e.buf)

	sort.SliceStable(tuples, func(i, j int) bool {
		return tuples[i].Rec.Sequence() < tuples[j].Rec.Sequence()
	})

	var maxSeq uint64
	if len(tuples) > 0 {
		maxSeq = tuples[len(tuples)-1].Rec.Sequence()
	}

	volReplayer := NewVolumeDeletionReplayer()
	volReplayer.CollectCutoffs(tuples)

	wbReplayer := NewActiveWBStripeReplayer(e.blocksPerStripe)
	blockReplayer := NewBlockMapReplayer(e.segCtx, e.blocksPerStripe)
	stripeReplayer := NewStripeMapReplayer()

	storedVersion := e.ctxReplayer.GetStoredContextVersion(uint32(collab.PartitionBlockMap))

	for _, t := range tuples {
		rec := t.Rec
		if volReplayer.ShouldDrop(rec) {
			continue
		}

		switch {
		case rec.Type().IsBlockWrite():
			wbReplayer.Update(rec)
			blockReplayer.Apply(rec, storedVersion)
		case rec.Type().IsStripeMapUpdate():
			wbReplayer.Update(rec)
			stripeReplayer.Apply(rec)
		case rec.Type() == record.VolumeDeleted:
			// Cutoffs were already folded in during CollectCutoffs; the
			// deletion record itself carries no other replayable state.
		}
	}

	tails, pending, err := wbReplayer.Replay(e.ctxReplayer, e.wbAllocator)
	if err != nil {
		return Result{}, err
	}

	return Result{
		BlockMap:    blockReplayer.Result(),
		StripeMap:   stripeReplayer.Result(),
		ActiveTails: tails,
		Pending:     pending,
		MaxSequence: maxSeq,
		Diagnostics: scanErr,
	}, nil
}
