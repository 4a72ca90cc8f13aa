package replay

import "github.com/cheolho-kang/poseidonos/internal/journal/record"

// StripeMapReplayer rebuilds the virtual-stripe-ID to VSA map from
// StripeMapUpdated/GcStripeFlushed records: the latest record for a given
// VSID (by sequence order) wins outright, no versioning needed beyond
// replaying in order.
type StripeMapReplayer struct {
	m map[uint64]record.VSA
}

// NewStripeMapReplayer constructs an empty StripeMapReplayer.
func NewStripeMapReplayer() *StripeMapReplayer {
	return &StripeMapReplayer{m: make(map[uint64]record.VSA)}
}

// Apply folds one sequence-ordered stripe-map record into the map.
func (r *StripeMapReplayer) Apply(rec record.Record) {
	if !rec.Type().IsStripeMapUpdate() {
		return
	}
	s := rec.Stripe
	r.m[s.Vsid] = s.NewLocation
}

// Result returns the final stripe map.
func (r *StripeMapReplayer) Result() map[uint64]record.VSA {
	return r.m
}
