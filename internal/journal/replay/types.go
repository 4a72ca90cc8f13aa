package replay

import "github.com/cheolho-kang/poseidonos/internal/journal/record"

// BlockKey identifies one logical block inside a volume.
type BlockKey struct {
	VolumeID uint32
	RBA      uint64
}

// StripeInfo summarizes the last BlockWriteDoneLog observed for one
// write-buffer index: which volume and write-buffer stripe it belongs to,
// and how far into the stripe it has been written.
type StripeInfo struct {
	VolumeID  uint32
	Vsid      uint64
	WBLsid    uint64
	WBIndex   uint32
	LastBlock uint32 // highest block offset written within the stripe
}

// Tail returns the VirtualBlkAddr one past the last written block: the
// offset a sequential write would land at next.
func (s StripeInfo) Tail() record.VSA {
	return record.VSA{StripeID: s.Vsid, Offset: s.LastBlock + 1}
}

// Saturated reports whether the stripe has been completely written, given
// blocksPerStripe.
func (s StripeInfo) Saturated(blocksPerStripe uint32) bool {
	return s.LastBlock+1 >= blocksPerStripe
}

// PendingStripe is a write-buffer stripe discovered at replay whose
// reverse map could not be reconstructed, because a later conflicting
// stripe superseded its write-buffer slot before it was ever flushed.
type PendingStripe struct {
	VolumeID uint32
	WBLsid   uint64
	WBIndex  uint32
}

// Result is the full outcome of a replay pass.
type Result struct {
	// BlockMap maps a block to the VSA it was last written to.
	BlockMap map[BlockKey]record.VSA
	// StripeMap maps a virtual stripe ID to its current location.
	StripeMap map[uint64]record.VSA
	// ActiveTails is indexed by write-buffer index; UnmapVSA means the
	// slot has no active in-flight stripe to restore.
	ActiveTails []record.VSA
	// Pending lists write-buffer stripes that could not be reconstructed,
	// each with a unique WBLsid.
	Pending []PendingStripe
	// MaxSequence is the highest sequence number observed across every
	// scanned record, 0 if the journal was empty. The log writer resumes
	// numbering at MaxSequence+1 after a restart.
	MaxSequence uint64
	// Diagnostics aggregates non-fatal anomalies observed during Scan
	// (torn groups, CRC mismatches); nil if none. Reconstruct failures are
	// reported through Pending, not here.
	Diagnostics error
}
