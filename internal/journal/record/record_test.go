package record

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func reservedSizeFor(t *testing.T, typ Type) int {
	t.Helper()
	payload, err := PayloadSize(typ)
	require.NoError(t, err)
	return HeaderSize + payload
}

func Test_EncodeDecode_BlockWriteDone_RoundTrips(t *testing.T) {
	rec := Record{
		Header: Header{
			Type:           uint16(BlockWriteDone),
			LogGroupID:     3,
			SequenceNumber: 42,
		},
		Block: &BlockWriteDoneLog{
			VolumeID:         7,
			StartRBA:         1024,
			NumBlocks:        8,
			VirtualBlkAddr:   VSA{StripeID: 55, Offset: 2},
			WBLsid:           900,
			WriteBufferIndex: 1,
		},
	}

	buf, err := Encode(rec, reservedSizeFor(t, BlockWriteDone))
	require.NoError(t, err)

	got, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, rec.Header.SequenceNumber, got.Sequence())
	require.Equal(t, BlockWriteDone, got.Type())
	require.Equal(t, rec.Block, got.Block)
}

func Test_EncodeDecode_StripeMapUpdated_RoundTrips(t *testing.T) {
	rec := Record{
		Header: Header{Type: uint16(StripeMapUpdated), SequenceNumber: 1},
		Stripe: &StripeMapUpdatedLog{
			Vsid:        10,
			OldLocation: UnmapVSA,
			NewLocation: VSA{StripeID: 99, Offset: 0},
		},
	}

	buf, err := Encode(rec, reservedSizeFor(t, StripeMapUpdated))
	require.NoError(t, err)

	got, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, rec.Stripe, got.Stripe)
	require.True(t, got.Stripe.OldLocation.IsUnmap())
}

func Test_EncodeDecode_VolumeDeleted_RoundTrips(t *testing.T) {
	rec := Record{
		Header: Header{Type: uint16(VolumeDeleted), SequenceNumber: 5},
		Volume: &VolumeDeletedLog{VolumeID: 2, SequenceCutoff: 4},
	}

	buf, err := Encode(rec, reservedSizeFor(t, VolumeDeleted))
	require.NoError(t, err)

	got, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, rec.Volume, got.Volume)
}

func Test_Encode_PadsToReservedSize(t *testing.T) {
	rec := Record{
		Header: Header{Type: uint16(VolumeDeleted), SequenceNumber: 1},
		Volume: &VolumeDeletedLog{VolumeID: 1, SequenceCutoff: 0},
	}

	reserved := reservedSizeFor(t, VolumeDeleted) + 64
	buf, err := Encode(rec, reserved)
	require.NoError(t, err)
	require.Len(t, buf, reserved)

	got, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, uint32(reserved), got.Header.ReservedSize)
}

func Test_Decode_DetectsCRCMismatch(t *testing.T) {
	rec := Record{
		Header: Header{Type: uint16(VolumeDeleted), SequenceNumber: 1},
		Volume: &VolumeDeletedLog{VolumeID: 1, SequenceCutoff: 0},
	}
	buf, err := Encode(rec, reservedSizeFor(t, VolumeDeleted))
	require.NoError(t, err)

	buf[HeaderSize] ^= 0xFF // corrupt one payload byte

	_, err = Decode(buf)
	require.ErrorIs(t, err, ErrCRCMismatch)
}

func Test_Decode_ShortBuffer(t *testing.T) {
	_, err := Decode(make([]byte, HeaderSize-1))
	require.ErrorIs(t, err, ErrShortBuffer)
}

func Test_Encode_RejectsUndersizedReservation(t *testing.T) {
	rec := Record{
		Header: Header{Type: uint16(BlockWriteDone)},
		Block:  &BlockWriteDoneLog{},
	}
	_, err := Encode(rec, HeaderSize)
	require.Error(t, err)
}

func Test_Encode_RejectsMissingPayload(t *testing.T) {
	rec := Record{Header: Header{Type: uint16(BlockWriteDone)}}
	_, err := Encode(rec, reservedSizeFor(t, BlockWriteDone))
	require.Error(t, err)
}

func Test_PayloadSize_UnknownType(t *testing.T) {
	_, err := PayloadSize(Type(0xFFFF))
	require.Error(t, err)
}

func Test_TypePredicates(t *testing.T) {
	require.True(t, BlockWriteDone.IsBlockWrite())
	require.True(t, GcBlockWriteDone.IsBlockWrite())
	require.True(t, GcBlockWriteDone.IsGc())
	require.True(t, StripeMapUpdated.IsStripeMapUpdate())
	require.True(t, GcStripeFlushed.IsStripeMapUpdate())
	require.False(t, VolumeDeleted.IsGc())
}

func Test_VSA_IsUnmap(t *testing.T) {
	require.True(t, UnmapVSA.IsUnmap())
	require.False(t, (VSA{StripeID: 1}).IsUnmap())
}

func Test_Decode_UnknownType(t *testing.T) {
	buf := make([]byte, HeaderSize)
	buf[0] = 0xFF
	buf[1] = 0xFF
	_, err := Decode(buf)
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrCRCMismatch))
}
