package record

import (
	"encoding/binary"
	"errors"
)

// FooterSize is the fixed size in bytes of the group footer, which always
// occupies the tail of a log group regardless of how many meaningful bytes
// it carries.
const FooterSize = 64

// footerMagic marks a footer written by a complete, properly sealed Roll.
// A group whose trailing FooterSize bytes don't end in this marker (or
// whose checksum doesn't match) is torn.
const footerMagic = 0x504f53534a524e4c // "POSSJRNL"-ish, arbitrary but fixed

// Footer is the last record in every log group.
type Footer struct {
	SequenceRangeStart uint64
	SequenceRangeEnd   uint64
	RecordCount        uint32
}

const footerPayloadSize = 8 + 8 + 4

// ErrTornFooter is returned by DecodeFooter when the footer's seal marker or
// checksum doesn't validate, meaning the group was not (yet) fully sealed.
var ErrTornFooter = errors.New("record: torn group footer")

// EncodeFooter serializes f into a FooterSize-byte buffer.
func EncodeFooter(f Footer) []byte {
	buf := make([]byte, FooterSize)
	binary.LittleEndian.PutUint64(buf[0:8], f.SequenceRangeStart)
	binary.LittleEndian.PutUint64(buf[8:16], f.SequenceRangeEnd)
	binary.LittleEndian.PutUint32(buf[16:20], f.RecordCount)

	crc := crc32Checksum(buf[:footerPayloadSize])
	binary.LittleEndian.PutUint32(buf[20:24], crc)
	binary.LittleEndian.PutUint64(buf[24:32], footerMagic)
	// buf[32:64] stays zero padding.
	return buf
}

// DecodeFooter parses the last FooterSize bytes of a group. It returns
// ErrTornFooter if the seal marker or checksum doesn't validate.
func DecodeFooter(buf []byte) (Footer, error) {
	if len(buf) != FooterSize {
		return Footer{}, ErrTornFooter
	}

	seal := binary.LittleEndian.Uint64(buf[24:32])
	if seal != footerMagic {
		return Footer{}, ErrTornFooter
	}

	crc := binary.LittleEndian.Uint32(buf[20:24])
	if crc32Checksum(buf[:footerPayloadSize]) != crc {
		return Footer{}, ErrTornFooter
	}

	return Footer{
		SequenceRangeStart: binary.LittleEndian.Uint64(buf[0:8]),
		SequenceRangeEnd:   binary.LittleEndian.Uint64(buf[8:16]),
		RecordCount:        binary.LittleEndian.Uint32(buf[16:20]),
	}, nil
}

func crc32Checksum(buf []byte) uint32 {
	return uint32(checksum(buf)) // reuse the CRC32C table from record.go
}
