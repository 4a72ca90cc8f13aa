package replay

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/cheolho-kang/poseidonos/internal/journal/buffer"
	"github.com/cheolho-kang/poseidonos/internal/journal/record"
)

// Tuple is one scanned record together with the group it came from, as
// named by the journal's replay algorithm: (group_id, sequence_number,
// record).
type Tuple struct {
	GroupID uint16
	Rec     record.Record
}

// Scan reads every log group in buffer order, validating each record's CRC
// as it goes. A group's tail is truncated at the last well-formed record:
// a CRC mismatch, short buffer, or unrecognized type tag (other than a
// run of zero bytes, which just means "group never filled further") stops
// that group's scan without failing the whole pass. Every such anomaly is
// collected into the returned diagnostics error (nil if every group scanned
// cleanly), so the caller can log a complete picture of a degraded buffer
// without aborting replay — per the journal's error-handling design, Scan
// never aborts on a single bad record.
func Scan(buf *buffer.LogBuffer) ([]Tuple, error) {
	var diagnostics error

	var tuples []Tuple
	for groupID := 0; groupID < buf.NumGroups(); groupID++ {
		groupTuples, err := scanGroup(buf, uint16(groupID))
		if err != nil {
			diagnostics = multierror.Append(diagnostics, err)
		}
		tuples = append(tuples, groupTuples...)
	}

	return tuples, diagnostics
}

func scanGroup(buf *buffer.LogBuffer, groupID uint16) ([]Tuple, error) {
	data, err := buf.ReadGroup(groupID)
	if err != nil {
		return nil, fmt.Errorf("replay: group %d: failed to read: %w", groupID, err)
	}

	maxOffset := len(data) - record.FooterSize
	var tuples []Tuple
	var scanErr error

	offset := 0
	for offset+record.HeaderSize <= maxOffset {
		if isZero(data[offset : offset+record.HeaderSize]) {
			// No more records were ever written past this point.
			break
		}

		rec, err := record.Decode(data[offset:])
		if err != nil {
			scanErr = fmt.Errorf("replay: group %d: torn at offset %d: %w", groupID, offset, err)
			break
		}

		tuples = append(tuples, Tuple{GroupID: groupID, Rec: rec})

		if int(rec.Header.ReservedSize) <= 0 {
			scanErr = fmt.Errorf("replay: group %d: zero-size reservation at offset %d", groupID, offset)
			break
		}
		offset += int(rec.Header.ReservedSize)
	}

	if _, footerErr := record.DecodeFooter(data[len(data)-record.FooterSize:]); footerErr != nil {
		if scanErr == nil {
			scanErr = fmt.Errorf("replay: group %d: %w", groupID, footerErr)
		}
	}

	return tuples, scanErr
}

func isZero(buf []byte) bool {
	for _, b := range buf {
		if b != 0 {
			return false
		}
	}
	return true
}
