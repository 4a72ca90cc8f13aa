package replay

import (
	"sort"

	"github.com/cheolho-kang/poseidonos/internal/journal/collab"
	"github.com/cheolho-kang/poseidonos/internal/journal/record"
)

// wbSlot tracks the most recent stripe observed at one write-buffer index.
type wbSlot struct {
	current    StripeInfo
	hasCurrent bool
}

// ActiveWBStripeReplayer rebuilds the write-buffer allocator's active-stripe
// state from BlockWriteDone and StripeMapUpdated records, keyed by
// write-buffer index (the Data Model's active-tail table is indexed by
// wb_index, not by volume, even though a given index only ever belongs to
// one volume at a time). Update feeds it records in sequence order; Replay
// drives the write-buffer allocator's reconstruction for whatever stripe is
// still active at each index once every record has been seen, mirroring the
// capability-style Update/Replay split of the source's stripe replayer
// fixture.
type ActiveWBStripeReplayer struct {
	slots           map[uint32]*wbSlot
	pending         map[uint64]PendingStripe // superseded, not-yet-flushed stripes, keyed by wb_lsid
	vsidToLsid      map[uint64]uint64
	blocksPerStripe uint32
}

// NewActiveWBStripeReplayer constructs a replayer for a write buffer with
// the given stripe capacity in blocks.
func NewActiveWBStripeReplayer(blocksPerStripe uint32) *ActiveWBStripeReplayer {
	return &ActiveWBStripeReplayer{
		slots:           make(map[uint32]*wbSlot),
		pending:         make(map[uint64]PendingStripe),
		vsidToLsid:      make(map[uint64]uint64),
		blocksPerStripe: blocksPerStripe,
	}
}

// Update folds one sequence-ordered record into the replayer's shadow state.
// Non block-write, non stripe-map records are ignored.
func (a *ActiveWBStripeReplayer) Update(rec record.Record) {
	switch {
	case rec.Type().IsBlockWrite():
		a.applyBlockWrite(rec.Block)
	case rec.Type().IsStripeMapUpdate():
		a.applyStripeFlush(rec.Stripe.Vsid)
	}
}

func (a *ActiveWBStripeReplayer) applyBlockWrite(b *record.BlockWriteDoneLog) {
	info := StripeInfo{
		VolumeID:  b.VolumeID,
		Vsid:      b.VirtualBlkAddr.StripeID,
		WBLsid:    b.WBLsid,
		WBIndex:   b.WriteBufferIndex,
		LastBlock: b.VirtualBlkAddr.Offset + b.NumBlocks - 1,
	}

	slot := a.slotFor(info.WBIndex)
	if slot.hasCurrent && slot.current.WBLsid != info.WBLsid {
		// The previous occupant of this index never saw a StripeMapUpdated
		// before being superseded; it is recorded as pending, and Replay
		// does not reconstruct it.
		old := slot.current
		a.pending[old.WBLsid] = PendingStripe{VolumeID: old.VolumeID, WBLsid: old.WBLsid, WBIndex: info.WBIndex}
	}

	slot.current = info
	slot.hasCurrent = true
	delete(a.pending, info.WBLsid)
	a.vsidToLsid[info.Vsid] = info.WBLsid
}

func (a *ActiveWBStripeReplayer) applyStripeFlush(vsid uint64) {
	if lsid, ok := a.vsidToLsid[vsid]; ok {
		delete(a.pending, lsid)
		delete(a.vsidToLsid, vsid)
	}
	for _, slot := range a.slots {
		if slot.hasCurrent && slot.current.Vsid == vsid {
			slot.hasCurrent = false
		}
	}
}

func (a *ActiveWBStripeReplayer) slotFor(wbIndex uint32) *wbSlot {
	slot, ok := a.slots[wbIndex]
	if !ok {
		slot = &wbSlot{}
		a.slots[wbIndex] = slot
	}
	return slot
}

// Replay asks the write-buffer allocator to reconstruct the reverse map for
// every index still holding an unflushed, partially written stripe (a
// saturated stripe has its tail reset instead), restores the active tail
// for each successful reconstruction, and returns the resulting tail vector
// together with the deduplicated list of stripes that could not be
// reconstructed.
func (a *ActiveWBStripeReplayer) Replay(ctxReplayer collab.IContextReplayer, alloc collab.IWBStripeAllocator) ([]record.VSA, []PendingStripe, error) {
	tails := ctxReplayer.GetAllActiveStripeTail()

	indices := make([]uint32, 0, len(a.slots))
	for idx := range a.slots {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	for _, idx := range indices {
		slot := a.slots[idx]
		if !slot.hasCurrent {
			continue
		}
		info := slot.current

		if info.Saturated(a.blocksPerStripe) {
			// Fully written stripes have no tail to restore; they're done
			// being written and wait on a normal flush, not reconstruction.
			ctxReplayer.ResetActiveStripeTail(idx)
			continue
		}

		rc := alloc.ReconstructActiveStripe(info.VolumeID, info.WBLsid, info.Tail())
		if rc < 0 {
			a.pending[info.WBLsid] = PendingStripe{VolumeID: info.VolumeID, WBLsid: info.WBLsid, WBIndex: idx}
			continue
		}

		alloc.SetActiveStripeTail(idx, info.Tail(), info.WBLsid)
		if int(idx) < len(tails) {
			tails[idx] = info.Tail()
		}
	}

	pending := make([]PendingStripe, 0, len(a.pending))
	for _, p := range a.pending {
		pending = append(pending, p)
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].WBLsid < pending[j].WBLsid })

	return tails, pending, nil
}
