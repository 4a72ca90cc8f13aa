// Package record defines the on-media layout of journal log records and the
// group footer, and the codec that converts between them and the wire
// format described by the journal's external interface contract: all
// multi-byte integers little-endian, no padding between fields, one fixed
// 24-byte common header followed by a variant payload.
package record

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

// Type tags the variant of a log record's payload.
type Type uint16

const (
	// BlockWriteDone records that a host write landed in a write-buffer
	// stripe; the block map must point the affected RBAs at the VSA.
	BlockWriteDone Type = iota + 1
	// StripeMapUpdated records a stripe location transition.
	StripeMapUpdated
	// GcBlockWriteDone is the garbage-collector's analogue of
	// BlockWriteDone; semantically identical for replay, tagged so replay
	// can suppress host-visible side effects.
	GcBlockWriteDone
	// GcStripeFlushed is the garbage-collector's analogue of
	// StripeMapUpdated.
	GcStripeFlushed
	// VolumeDeleted marks a volume deletion; replay must drop earlier
	// records for that volume.
	VolumeDeleted
)

func (t Type) String() string {
	switch t {
	case BlockWriteDone:
		return "BlockWriteDone"
	case StripeMapUpdated:
		return "StripeMapUpdated"
	case GcBlockWriteDone:
		return "GcBlockWriteDone"
	case GcStripeFlushed:
		return "GcStripeFlushed"
	case VolumeDeleted:
		return "VolumeDeleted"
	default:
		return fmt.Sprintf("Type(%d)", uint16(t))
	}
}

// IsGc reports whether the record was emitted by garbage collection rather
// than a host write.
func (t Type) IsGc() bool {
	return t == GcBlockWriteDone || t == GcStripeFlushed
}

// IsBlockWrite reports whether the record carries a BlockWriteDone payload,
// host-originated or GC-originated.
func (t Type) IsBlockWrite() bool {
	return t == BlockWriteDone || t == GcBlockWriteDone
}

// IsStripeMapUpdate reports whether the record carries a StripeMapUpdated
// payload, host-originated or GC-originated.
func (t Type) IsStripeMapUpdate() bool {
	return t == StripeMapUpdated || t == GcStripeFlushed
}

// HeaderSize is the size in bytes of the common record header.
const HeaderSize = 24

// Header is the 24-byte prefix common to every log record.
type Header struct {
	Type           uint16
	LogGroupID     uint16
	ReservedSize   uint32
	SequenceNumber uint64
	RecordCRC      uint64
}

// VSA identifies a block inside the internal virtual address space.
type VSA struct {
	StripeID uint64
	Offset   uint32
}

// UnmapVSA is the sentinel VSA meaning "no mapping".
var UnmapVSA = VSA{StripeID: ^uint64(0), Offset: ^uint32(0)}

// IsUnmap reports whether the VSA is the unmap sentinel.
func (v VSA) IsUnmap() bool {
	return v == UnmapVSA
}

const vsaSize = 8 + 4 // StripeID + Offset

// BlockWriteDoneLog is the payload of a BlockWriteDone/GcBlockWriteDone
// record.
type BlockWriteDoneLog struct {
	VolumeID         uint32
	StartRBA         uint64
	NumBlocks        uint32
	VirtualBlkAddr   VSA
	WBLsid           uint64
	WriteBufferIndex uint32
}

const blockWriteDoneLogSize = 4 + 8 + 4 + vsaSize + 8 + 4

// StripeMapUpdatedLog is the payload of a StripeMapUpdated/GcStripeFlushed
// record.
type StripeMapUpdatedLog struct {
	Vsid        uint64
	OldLocation VSA
	NewLocation VSA
}

const stripeMapUpdatedLogSize = 8 + vsaSize + vsaSize

// VolumeDeletedLog is the payload of a VolumeDeleted record.
type VolumeDeletedLog struct {
	VolumeID       uint32
	SequenceCutoff uint64
}

const volumeDeletedLogSize = 4 + 8

// Record is a decoded log record: the common header plus exactly one
// populated payload, selected by Header.Type.
type Record struct {
	Header Header
	Block  *BlockWriteDoneLog
	Stripe *StripeMapUpdatedLog
	Volume *VolumeDeletedLog
}

// Sequence returns the record's sequence number.
func (r Record) Sequence() uint64 {
	return r.Header.SequenceNumber
}

// Type returns the record's type tag.
func (r Record) Type() Type {
	return Type(r.Header.Type)
}

// PayloadSize returns the wire size of the payload for the given record
// type, excluding the common header.
func PayloadSize(t Type) (int, error) {
	switch t {
	case BlockWriteDone, GcBlockWriteDone:
		return blockWriteDoneLogSize, nil
	case StripeMapUpdated, GcStripeFlushed:
		return stripeMapUpdatedLogSize, nil
	case VolumeDeleted:
		return volumeDeletedLogSize, nil
	default:
		return 0, fmt.Errorf("record: unknown type %d", uint16(t))
	}
}

// ErrCRCMismatch is returned by Decode when the record's stored CRC does not
// match the recomputed one; this is how a reader detects a torn tail
// record.
var ErrCRCMismatch = errors.New("record: crc mismatch")

// ErrShortBuffer is returned by Decode when buf is too small to hold a full
// record of its declared type.
var ErrShortBuffer = errors.New("record: short buffer")

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// checksum computes the CRC32C of buf as given. For a record, callers pass
// the bytes with the record_crc field (bytes [16:24)) zeroed, matching what
// Encode hashed before patching in the real value.
func checksum(buf []byte) uint64 {
	return uint64(crc32.Checksum(buf, crc32cTable))
}

// Encode serializes rec into a new buffer sized to reservedSize (the
// meta-page-aligned reservation the caller obtained from the log buffer).
// reservedSize must be >= HeaderSize+payload size; any extra bytes are left
// as padding after the payload.
func Encode(rec Record, reservedSize int) ([]byte, error) {
	payloadSize, err := PayloadSize(rec.Type())
	if err != nil {
		return nil, err
	}
	if reservedSize < HeaderSize+payloadSize {
		return nil, fmt.Errorf("record: reservedSize %d too small for type %s (need %d)",
			reservedSize, rec.Type(), HeaderSize+payloadSize)
	}

	buf := make([]byte, reservedSize)
	binary.LittleEndian.PutUint16(buf[0:2], rec.Header.Type)
	binary.LittleEndian.PutUint16(buf[2:4], rec.Header.LogGroupID)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(reservedSize))
	binary.LittleEndian.PutUint64(buf[8:16], rec.Header.SequenceNumber)
	// buf[16:24] (record_crc) stays zero until the checksum is computed.

	if err := encodePayload(buf[HeaderSize:HeaderSize+payloadSize], rec); err != nil {
		return nil, err
	}

	crc := checksum(buf[:HeaderSize+payloadSize])
	binary.LittleEndian.PutUint64(buf[16:24], crc)

	return buf, nil
}

func encodePayload(dst []byte, rec Record) error {
	w := bytes.NewBuffer(dst[:0])
	switch rec.Type() {
	case BlockWriteDone, GcBlockWriteDone:
		if rec.Block == nil {
			return fmt.Errorf("record: type %s requires a Block payload", rec.Type())
		}
		b := rec.Block
		_ = binary.Write(w, binary.LittleEndian, b.VolumeID)
		_ = binary.Write(w, binary.LittleEndian, b.StartRBA)
		_ = binary.Write(w, binary.LittleEndian, b.NumBlocks)
		_ = binary.Write(w, binary.LittleEndian, b.VirtualBlkAddr.StripeID)
		_ = binary.Write(w, binary.LittleEndian, b.VirtualBlkAddr.Offset)
		_ = binary.Write(w, binary.LittleEndian, b.WBLsid)
		_ = binary.Write(w, binary.LittleEndian, b.WriteBufferIndex)
	case StripeMapUpdated, GcStripeFlushed:
		if rec.Stripe == nil {
			return fmt.Errorf("record: type %s requires a Stripe payload", rec.Type())
		}
		s := rec.Stripe
		_ = binary.Write(w, binary.LittleEndian, s.Vsid)
		_ = binary.Write(w, binary.LittleEndian, s.OldLocation.StripeID)
		_ = binary.Write(w, binary.LittleEndian, s.OldLocation.Offset)
		_ = binary.Write(w, binary.LittleEndian, s.NewLocation.StripeID)
		_ = binary.Write(w, binary.LittleEndian, s.NewLocation.Offset)
	case VolumeDeleted:
		if rec.Volume == nil {
			return fmt.Errorf("record: type %s requires a Volume payload", rec.Type())
		}
		v := rec.Volume
		_ = binary.Write(w, binary.LittleEndian, v.VolumeID)
		_ = binary.Write(w, binary.LittleEndian, v.SequenceCutoff)
	default:
		return fmt.Errorf("record: unknown type %d", uint16(rec.Type()))
	}

	if w.Len() != len(dst) {
		return fmt.Errorf("record: encoded payload size mismatch: got %d want %d", w.Len(), len(dst))
	}
	copy(dst, w.Bytes())
	return nil
}

// Decode parses a record out of buf, which must start at the record's
// header offset. It returns ErrShortBuffer if buf is too small, and
// ErrCRCMismatch if the stored checksum does not match the recomputed one
// (the caller should treat this as the torn tail of the group).
func Decode(buf []byte) (Record, error) {
	if len(buf) < HeaderSize {
		return Record{}, ErrShortBuffer
	}

	hdr := Header{
		Type:           binary.LittleEndian.Uint16(buf[0:2]),
		LogGroupID:     binary.LittleEndian.Uint16(buf[2:4]),
		ReservedSize:   binary.LittleEndian.Uint32(buf[4:8]),
		SequenceNumber: binary.LittleEndian.Uint64(buf[8:16]),
		RecordCRC:      binary.LittleEndian.Uint64(buf[16:24]),
	}

	payloadSize, err := PayloadSize(Type(hdr.Type))
	if err != nil {
		return Record{}, err
	}
	if len(buf) < HeaderSize+payloadSize {
		return Record{}, ErrShortBuffer
	}

	verifyBuf := make([]byte, HeaderSize+payloadSize)
	copy(verifyBuf, buf[:HeaderSize+payloadSize])
	binary.LittleEndian.PutUint64(verifyBuf[16:24], 0)
	if checksum(verifyBuf) != hdr.RecordCRC {
		return Record{}, ErrCRCMismatch
	}

	rec := Record{Header: hdr}
	payload := buf[HeaderSize : HeaderSize+payloadSize]
	r := bytes.NewReader(payload)

	switch Type(hdr.Type) {
	case BlockWriteDone, GcBlockWriteDone:
		var b BlockWriteDoneLog
		_ = binary.Read(r, binary.LittleEndian, &b.VolumeID)
		_ = binary.Read(r, binary.LittleEndian, &b.StartRBA)
		_ = binary.Read(r, binary.LittleEndian, &b.NumBlocks)
		_ = binary.Read(r, binary.LittleEndian, &b.VirtualBlkAddr.StripeID)
		_ = binary.Read(r, binary.LittleEndian, &b.VirtualBlkAddr.Offset)
		_ = binary.Read(r, binary.LittleEndian, &b.WBLsid)
		_ = binary.Read(r, binary.LittleEndian, &b.WriteBufferIndex)
		rec.Block = &b
	case StripeMapUpdated, GcStripeFlushed:
		var s StripeMapUpdatedLog
		_ = binary.Read(r, binary.LittleEndian, &s.Vsid)
		_ = binary.Read(r, binary.LittleEndian, &s.OldLocation.StripeID)
		_ = binary.Read(r, binary.LittleEndian, &s.OldLocation.Offset)
		_ = binary.Read(r, binary.LittleEndian, &s.NewLocation.StripeID)
		_ = binary.Read(r, binary.LittleEndian, &s.NewLocation.Offset)
		rec.Stripe = &s
	case VolumeDeleted:
		var v VolumeDeletedLog
		_ = binary.Read(r, binary.LittleEndian, &v.VolumeID)
		_ = binary.Read(r, binary.LittleEndian, &v.SequenceCutoff)
		rec.Volume = &v
	default:
		return Record{}, fmt.Errorf("record: unknown type %d", hdr.Type)
	}

	return rec, nil
}
