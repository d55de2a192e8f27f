package extra

import (
	"encoding/binary"
	"hash/crc32"
	"testing"
	"time"

	"github.com/sansio/zipfsm/internal/recfmt"
)

func tlv(tag, size uint16, payload []byte) []byte {
	b := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint16(b, tag)
	binary.LittleEndian.PutUint16(b[2:], size)
	copy(b[4:], payload)
	return b
}

func TestParseZip64(t *testing.T) {
	payload := make([]byte, 24)
	binary.LittleEndian.PutUint64(payload[0:], 0x123456789)
	binary.LittleEndian.PutUint64(payload[8:], 0xabcdef)
	binary.LittleEndian.PutUint64(payload[16:], 0x42)

	b := tlv(recfmt.ExtraZip64, 24, payload)
	cat := Parse(b, [4]bool{true, true, true, false}, nil, nil)

	if cat.Zip64 == nil {
		t.Fatal("expected Zip64 fields")
	}
	if *cat.Zip64.UncompressedSize != 0x123456789 {
		t.Errorf("uncompressed = %#x", *cat.Zip64.UncompressedSize)
	}
	if *cat.Zip64.CompressedSize != 0xabcdef {
		t.Errorf("compressed = %#x", *cat.Zip64.CompressedSize)
	}
	if *cat.Zip64.HeaderOffset != 0x42 {
		t.Errorf("offset = %#x", *cat.Zip64.HeaderOffset)
	}
}

func TestParseZip64PartialFields(t *testing.T) {
	// Only the uncompressed size was saturated, so only 8 bytes are present.
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint64(payload, 999)
	b := tlv(recfmt.ExtraZip64, 8, payload)
	cat := Parse(b, [4]bool{true, false, false, false}, nil, nil)

	if cat.Zip64 == nil || cat.Zip64.UncompressedSize == nil || *cat.Zip64.UncompressedSize != 999 {
		t.Fatalf("got %+v", cat.Zip64)
	}
	if cat.Zip64.CompressedSize != nil {
		t.Error("CompressedSize should be nil when not needed")
	}
}

func TestParseUnixTime(t *testing.T) {
	payload := make([]byte, 1+4+4)
	payload[0] = 1 | 2 // mtime + atime present
	binary.LittleEndian.PutUint32(payload[1:], uint32(int32(1000)))
	binary.LittleEndian.PutUint32(payload[5:], uint32(int32(2000)))
	b := tlv(recfmt.ExtraUnixTime, uint16(len(payload)), payload)

	cat := Parse(b, [4]bool{}, nil, nil)
	if len(cat.ModifiedCandidates) != 1 || cat.ModifiedCandidates[0].Unix() != 1000 {
		t.Errorf("modified = %v", cat.ModifiedCandidates)
	}
	if cat.Accessed == nil || cat.Accessed.Unix() != 2000 {
		t.Errorf("accessed = %v", cat.Accessed)
	}
	if cat.Created != nil {
		t.Error("created flag bit wasn't set")
	}
}

func TestParseUnixUIDGID(t *testing.T) {
	payload := []byte{1, 2, 0x34, 0x12, 2, 0x78, 0x56}
	b := tlv(recfmt.ExtraUnixUIDGID, uint16(len(payload)), payload)

	cat := Parse(b, [4]bool{}, nil, nil)
	if cat.UID == nil || *cat.UID != 0x1234 {
		t.Errorf("uid = %v", cat.UID)
	}
	if cat.GID == nil || *cat.GID != 0x5678 {
		t.Errorf("gid = %v", cat.GID)
	}
}

func TestParseNTFS(t *testing.T) {
	inner := make([]byte, 24)
	want := time.Date(2020, time.March, 1, 12, 0, 0, 0, time.UTC)
	// Computed from whole seconds: want.Sub(ntfsEpoch) spans ~419 years and
	// would saturate time.Duration's ~292-year range.
	ticks := uint64(want.Unix()-ntfsEpoch.Unix()) * 1e7
	binary.LittleEndian.PutUint64(inner[0:], ticks) // mtime
	binary.LittleEndian.PutUint64(inner[8:], ticks) // atime
	binary.LittleEndian.PutUint64(inner[16:], ticks) // ctime

	sub := tlv(1, 24, inner)
	payload := append(make([]byte, 4), sub...)
	b := tlv(recfmt.ExtraNTFS, uint16(len(payload)), payload)

	cat := Parse(b, [4]bool{}, nil, nil)
	if len(cat.ModifiedCandidates) != 1 {
		t.Fatal("expected one modified candidate")
	}
	if !cat.ModifiedCandidates[0].Equal(want) {
		t.Errorf("mtime = %v, want %v", cat.ModifiedCandidates[0], want)
	}
	if cat.Created == nil || !cat.Created.Equal(want) {
		t.Errorf("ctime = %v, want %v", cat.Created, want)
	}
}

func TestParseUnicodePathValidatesCRC(t *testing.T) {
	rawName := []byte("caf\xc3\xa9.txt") // latin-1-ish raw bytes stand-in
	unicodeName := "café.txt"

	goodPayload := append([]byte{1}, crcBytes(rawName)...)
	goodPayload = append(goodPayload, unicodeName...)
	b := tlv(recfmt.ExtraUnicodePath, uint16(len(goodPayload)), goodPayload)

	cat := Parse(b, [4]bool{}, rawName, nil)
	if !cat.HasUnicodeName || cat.UnicodeName != unicodeName {
		t.Errorf("got %q, hasUnicode=%v", cat.UnicodeName, cat.HasUnicodeName)
	}
}

func TestParseUnicodePathRejectsMismatchedCRC(t *testing.T) {
	rawName := []byte("plain.txt")
	badPayload := append([]byte{1, 0, 0, 0, 0}, "override.txt"...)
	b := tlv(recfmt.ExtraUnicodePath, uint16(len(badPayload)), badPayload)

	cat := Parse(b, [4]bool{}, rawName, nil)
	if cat.HasUnicodeName {
		t.Error("expected the CRC mismatch to reject the override")
	}
}

func TestParseUnknownTagIsPreserved(t *testing.T) {
	b := tlv(0x9999, 3, []byte{1, 2, 3})
	cat := Parse(b, [4]bool{}, nil, nil)
	if len(cat.Unknown) != 1 || cat.Unknown[0].Tag != 0x9999 {
		t.Errorf("got %+v", cat.Unknown)
	}
}

func crcBytes(raw []byte) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, crc32.ChecksumIEEE(raw))
	return b
}
