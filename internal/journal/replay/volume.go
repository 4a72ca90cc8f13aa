package replay

import "github.com/cheolho-kang/poseidonos/internal/journal/record"

// VolumeDeletionReplayer implements the journal's volume-deletion cutoff
// rule: once a VolumeDeletedLog is seen for a volume, every other record for
// that volume at or below its sequence cutoff is discarded, regardless of
// the order the records are folded into the other replayers in. It works in
// two passes: CollectCutoffs scans every tuple up front to learn the
// highest cutoff per volume (a volume can in principle be deleted more than
// once across its lifetime, though only the latest cutoff matters), then
// ShouldDrop is consulted per record during the main replay pass.
type VolumeDeletionReplayer struct {
	cutoffs map[uint32]uint64
}

// NewVolumeDeletionReplayer constructs an empty VolumeDeletionReplayer.
func NewVolumeDeletionReplayer() *VolumeDeletionReplayer {
	return &VolumeDeletionReplayer{cutoffs: make(map[uint32]uint64)}
}

// CollectCutoffs scans every tuple for VolumeDeleted records and records the
// highest sequence cutoff seen per volume.
func (r *VolumeDeletionReplayer) CollectCutoffs(tuples []Tuple) {
	for _, t := range tuples {
		if t.Rec.Type() != record.VolumeDeleted {
			continue
		}
		v := t.Rec.Volume
		if cur, ok := r.cutoffs[v.VolumeID]; !ok || v.SequenceCutoff > cur {
			r.cutoffs[v.VolumeID] = v.SequenceCutoff
		}
	}
}

// ShouldDrop reports whether rec predates a recorded deletion cutoff for its
// volume and must be discarded from replay. Records that carry no volume ID
// (stripe-map updates) are never dropped here.
func (r *VolumeDeletionReplayer) ShouldDrop(rec record.Record) bool {
	volumeID, ok := volumeIDOf(rec)
	if !ok {
		return false
	}
	cutoff, exists := r.cutoffs[volumeID]
	if !exists {
		return false
	}
	return rec.Sequence() <= cutoff
}

func volumeIDOf(rec record.Record) (uint32, bool) {
	switch {
	case rec.Type().IsBlockWrite():
		return rec.Block.VolumeID, true
	case rec.Type() == record.VolumeDeleted:
		return rec.Volume.VolumeID, true
	default:
		return 0, false
	}
}
